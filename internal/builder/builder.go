/*
 * MIT License
 *
 * Copyright (c) 2024 InnoGames GmbH
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package builder turns a parsed internal/config.Document into the live
// object graph the rest of the driver runs: one internal/pool.Pool and
// its internal/node.Node set per configured pool, one internal/probe.Probe
// per (node, address family, health check), and the scheduler.Binding
// slice that ties them to internal/scheduler.
//
// Grounded on original_source/src/main.cpp's startup sequence (parse
// config, build pools/nodes/healthchecks, run pool_logic once before the
// first tick) but expressed as one pure function over config.Document
// instead of populating module-level globals.
package builder

import (
	"fmt"
	"net"
	"sort"

	"github.com/innogames/testtool-sub000/internal/config"
	"github.com/innogames/testtool-sub000/internal/env"
	"github.com/innogames/testtool-sub000/internal/icmpsock"
	"github.com/innogames/testtool-sub000/internal/logger"
	"github.com/innogames/testtool-sub000/internal/metrics"
	"github.com/innogames/testtool-sub000/internal/node"
	"github.com/innogames/testtool-sub000/internal/pool"
	"github.com/innogames/testtool-sub000/internal/probe"
	"github.com/innogames/testtool-sub000/internal/probe/dns"
	"github.com/innogames/testtool-sub000/internal/probe/dummy"
	"github.com/innogames/testtool-sub000/internal/probe/http"
	"github.com/innogames/testtool-sub000/internal/probe/icmp"
	"github.com/innogames/testtool-sub000/internal/probe/postgres"
	"github.com/innogames/testtool-sub000/internal/probe/tcp"
	"github.com/innogames/testtool-sub000/internal/scheduler"
	"github.com/innogames/testtool-sub000/internal/worker"
)

// Result is everything cmd/testtool needs to start the scheduler and the
// worker goroutine.
type Result struct {
	Env      *env.Environment
	Bindings []scheduler.Binding
	Sender   *worker.Sender
	ICMP     *icmpsock.Subsystem // nil if no pool configures a ping check
}

// Build constructs the full object graph from doc. log and m may be nil.
//
// config.Document's Pools and each Pool's Nodes are Go maps, which have
// no iteration order; pool and node names are sorted before registration
// so the deterministic-scheduling-order guarantee in spec.md §4.1 has a
// well-defined meaning (registration order = lexical order of the
// config keys) instead of depending on map iteration.
func Build(doc *config.Document, log logger.Logger, m *metrics.Registry) (*Result, error) {
	idx := env.NewPoolIndex()
	e := env.New(log, m, idx)

	sender := worker.NewSender(log, m)

	var icmpSub *icmpsock.Subsystem
	for _, p := range doc.Pools {
		for _, hc := range p.HealthChecks {
			if hc.Type == "ping" {
				var err error
				icmpSub, err = icmpsock.New()
				if err != nil {
					return nil, fmt.Errorf("builder: icmp subsystem: %w", err)
				}
				break
			}
		}
		if icmpSub != nil {
			break
		}
	}

	poolNames := sortedKeys(doc.Pools)

	// Pass 1: build every Pool and Node so that backup-pool references
	// and active-set template substitution can resolve regardless of
	// config ordering.
	pools := make(map[string]*pool.Pool, len(poolNames))
	for _, name := range poolNames {
		cfg := doc.Pools[name]
		policy, ok := pool.ParseFaultPolicy(cfg.MinNodesAction)
		if !ok && cfg.MinNodesAction != "" {
			return nil, fmt.Errorf("builder: pool %s: unknown min_nodes_action %q", name, cfg.MinNodesAction)
		}
		p := pool.New(name, cfg.TableName, cfg.MinNodes, cfg.MaxNodes, policy, cfg.BackupPool, idx, sender)
		p.IPv4Address = cfg.IPv4Address
		p.IPv6Address = cfg.IPv6Address
		pools[name] = p
		idx.Add(p)

		for _, nodeName := range sortedKeys(cfg.Nodes) {
			ncfg := cfg.Nodes[nodeName]
			n := node.New(nodeName, ncfg.IPv4, ncfg.IPv6)
			if as, ok := node.ParseAdminState(ncfg.State); ok {
				n.SetAdminState(as)
			}
			p.Nodes = append(p.Nodes, n)
		}
	}

	// Pass 2: attach probes, now that every pool's node list is final and
	// {ACTIVE_NODES_*} substitution can read a pool's live Active().
	var bindings []scheduler.Binding
	for _, name := range poolNames {
		cfg := doc.Pools[name]
		p := pools[name]
		for _, n := range p.Nodes {
			ncfg := cfg.Nodes[n.Name]
			// spec.md §3: one probe per (node, address-family, check
			// type). A dual-stack node configuring both ipv4 and ipv6
			// gets independently scheduled probes for each, not just
			// its preferred family.
			for _, v6 := range addressFamilies(ncfg) {
				for _, hc := range cfg.HealthChecks {
					pr, err := buildProbe(hc, p, n, ncfg, v6, icmpSub)
					if err != nil {
						return nil, err
					}
					if pr == nil {
						continue // address family not available on this node
					}
					n.Probes = append(n.Probes, pr)
					bindings = append(bindings, scheduler.Binding{Node: n, Pool: p, Probe: pr})
				}
			}
		}
	}

	// spec.md §4.5: pool logic runs once at startup, in addition to every
	// subsequent node-driven re-evaluation.
	for _, name := range poolNames {
		pools[name].Evaluate()
	}

	return &Result{Env: e, Bindings: bindings, Sender: sender, ICMP: icmpSub}, nil
}

// addressFamilies reports which address families a node is configured
// for, as the v6 flag buildProbe expects: false for ipv4, true for
// ipv6. A dual-stack node yields both.
func addressFamilies(ncfg config.Node) []bool {
	var families []bool
	if ncfg.IPv4 != "" {
		families = append(families, false)
	}
	if ncfg.IPv6 != "" {
		families = append(families, true)
	}
	return families
}

func buildProbe(hc config.HealthCheck, p *pool.Pool, n *node.Node, ncfg config.Node, v6 bool, icmpSub *icmpsock.Subsystem) (*probe.Probe, error) {
	addr := ncfg.IPv4
	if v6 {
		addr = ncfg.IPv6
	}
	if addr == "" {
		return nil, nil
	}

	var task probe.Task
	switch hc.Type {
	case "tcp":
		task = tcp.New(addr, hc.Port, tcpFamily(addr))
	case "http", "https":
		task = http.New(addr, hc.Port, hc.Type == "https", hc.Query, httpHost(hc, n), hc.OKCodes, http.TemplateVars{
			PoolName:    p.Name,
			PoolAddress: poolAddress(p, v6),
			NodeName:    n.Name,
			NodeAddress: addr,
		})
		if t, ok := task.(*http.Task); ok {
			t.VarsFunc = func() http.TemplateVars {
				names, addrs := activeNamesAndAddresses(p, v6)
				return http.TemplateVars{
					PoolName:             p.Name,
					PoolAddress:          poolAddress(p, v6),
					NodeName:             n.Name,
					NodeAddress:          addr,
					ActiveNodesNames:     names,
					ActiveNodesAddresses: addrs,
				}
			}
		}
	case "ping":
		if icmpSub == nil {
			return nil, fmt.Errorf("builder: pool %s node %s: ping check with no icmp subsystem", p.Name, n.Name)
		}
		task = icmp.New(icmpSub, addr, v6)
	case "dns":
		task = dns.New(addr, hc.Port, hc.Query)
	case "postgres":
		task = postgres.New(addr, hc.Port, hc.DBName, hc.User, hc.Function)
	case "dummy":
		task = dummy.New()
	default:
		return nil, fmt.Errorf("builder: pool %s node %s: unknown hc_type %q", p.Name, n.Name, hc.Type)
	}

	typ := probe.Type(hc.Type)
	pr := probe.New(typ, addr, hc.Port, hc.Timeout, hc.Interval, hc.MaxFailed, task)
	return pr, nil
}

func tcpFamily(addr string) string {
	if ip := net.ParseIP(addr); ip != nil && ip.To4() == nil {
		return "tcp6"
	}
	return "tcp4"
}

func httpHost(hc config.HealthCheck, n *node.Node) string {
	if hc.Host != "" {
		return hc.Host
	}
	return n.Name
}

func poolAddress(p *pool.Pool, v6 bool) string {
	if v6 {
		return p.IPv6Address
	}
	return p.IPv4Address
}

// activeNamesAndAddresses projects a pool's current active set into the
// comma-joinable name/address lists {ACTIVE_NODES_NAMES}/
// {ACTIVE_NODES_ADDRESSES} substitute (spec.md §4.2), picking each
// node's address in the same family as the probing node.
func activeNamesAndAddresses(p *pool.Pool, v6 bool) ([]string, []string) {
	active := p.Active()
	names := make([]string, 0, len(active))
	addrs := make([]string, 0, len(active))
	for _, n := range active {
		names = append(names, n.Name)
		a := n.IPv4Address
		if v6 {
			a = n.IPv6Address
		}
		if a == "" {
			continue
		}
		addrs = append(addrs, a)
	}
	return names, addrs
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
