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

// Package pool implements the per-virtual-service active-set logic from
// spec.md §4.5, grounded on original_source/src/lb_pool.h (LbPool's
// min_nodes/max_nodes/fault_policy/backup_pool_name/backup_pool_active/
// pf_synced fields and pool_logic method).
package pool

import (
	"sort"
	"sync"

	"github.com/innogames/testtool-sub000/internal/node"
)

// FaultPolicy selects what happens when the active set would otherwise
// fall below MinNodes (spec.md §3/§4.5).
type FaultPolicy int

const (
	ForceDown FaultPolicy = iota
	ForceUp
	BackupPool
)

func ParseFaultPolicy(s string) (FaultPolicy, bool) {
	switch s {
	case "force_down":
		return ForceDown, true
	case "force_up":
		return ForceUp, true
	case "backup_pool":
		return BackupPool, true
	default:
		return ForceDown, false
	}
}

// State is a pool's aggregate state.
type State int

const (
	Down State = iota
	Up
)

func (s State) String() string {
	if s == Up {
		return "up"
	}
	return "down"
}

// Registry looks up a sibling pool by name, used to resolve BackupPool
// references and to re-run dependent pools transitively (spec.md
// §4.5 step 7).
type Registry interface {
	Pool(name string) (*Pool, bool)
}

// Sender hands a pool's full node list plus its newly computed active
// set to the worker over the bounded channel described in spec.md §4.6.
// All nodes (not just active ones) are passed because the worker needs
// every address's real state and admin-state to decide, on removal,
// whether to forcibly terminate its connections (§4.6 step 3). It must
// be non-blocking: true on success, false if the channel was full.
type Sender interface {
	Send(poolName, tableName string, nodes []*node.Node, active []*node.Node) bool
}

// Pool is a virtual service: a named group of nodes sharing one filter
// table and one fault policy.
type Pool struct {
	mu sync.Mutex

	Name            string
	IPv4Address     string
	IPv6Address     string
	TableName       string
	MinNodes        int
	MaxNodes        int
	FaultPolicy     FaultPolicy
	BackupPoolName  string

	// Nodes is in registration order; §4.1's ordering guarantee depends
	// on this slice never being reordered after construction.
	Nodes []*node.Node

	state             State
	active            []*node.Node
	synced            bool
	backupPoolActive  bool

	registry Registry
	sender   Sender
}

// New builds a Pool. registry and sender may be nil for unit tests that
// only exercise the pure active-set computation (no BackupPool / no
// worker handoff).
func New(name, tableName string, minNodes, maxNodes int, policy FaultPolicy, backupPoolName string, registry Registry, sender Sender) *Pool {
	return &Pool{
		Name:           name,
		TableName:      tableName,
		MinNodes:       minNodes,
		MaxNodes:       maxNodes,
		FaultPolicy:    policy,
		BackupPoolName: backupPoolName,
		state:          Down,
		registry:       registry,
		sender:         sender,
	}
}

func (p *Pool) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Pool) Synced() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.synced
}

// Active returns a copy of the current intended active set.
func (p *Pool) Active() []*node.Node {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*node.Node, len(p.active))
	copy(out, p.active)
	return out
}

// BackupPoolActive reports whether this pool is currently borrowing its
// backup pool's active set.
func (p *Pool) BackupPoolActive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.backupPoolActive
}

// Evaluate recomputes the intended active set per spec.md §4.5. Call it
// whenever any attached node signals a state change, and once at
// startup. When the pool has a registry it returns its own name (nil
// otherwise); finding the pools that name this one as their backup and
// re-evaluating them (step 7) is left to the caller (the scheduler).
func (p *Pool) Evaluate() (dependents []string) {
	p.mu.Lock()

	prevActive := make(map[*node.Node]bool, len(p.active))
	for _, n := range p.active {
		prevActive[n] = true
	}

	var active []*node.Node

	// Step 1: currently max-kept sticky nodes that are still Up, in
	// registration order, up to max.
	for _, n := range p.Nodes {
		if p.MaxNodes > 0 && len(active) >= p.MaxNodes {
			break
		}
		if n.MaxNodesKept() && n.EffectiveUp() {
			active = append(active, n)
		} else {
			n.SetMaxNodesKept(false)
		}
	}

	// Step 2: remaining Up nodes in registration order.
	for _, n := range p.Nodes {
		if p.MaxNodes > 0 && len(active) >= p.MaxNodes {
			break
		}
		if n.MaxNodesKept() {
			continue // already added in step 1
		}
		if n.EffectiveUp() {
			active = append(active, n)
			n.SetMaxNodesKept(true)
		}
	}

	// applyForceUp reads each node's min-kept flag as it stood at the end
	// of the *previous* Evaluate, so a node that is currently satisfying
	// min keeps being chosen even after it stops passing checks
	// (spec.md §4.5's sticky min-kept). The flags are rewritten below,
	// once, to reflect this tick's final decision.
	backupActive := false

	if len(active) < p.MinNodes {
		switch p.FaultPolicy {
		case ForceDown:
			active = nil
		case ForceUp:
			active = p.applyForceUp(active)
		case BackupPool:
			if p.registry != nil {
				if bp, ok := p.registry.Pool(p.BackupPoolName); ok {
					active = bp.Active()
					backupActive = true
				}
			}
		}
	}

	p.backupPoolActive = backupActive

	// Min-kept bookkeeping: a node keeps the flag only while it is both
	// part of the final active set and that set is at or below min (i.e.
	// it is presently relied upon to meet min_nodes); everyone else's
	// flag is cleared. This is what lets a node that was force-added (or
	// that is the sole node satisfying min) stay chosen on a later tick
	// even after it stops passing, and lets the flag decay once spare
	// capacity makes it unnecessary (spec.md §4.5's stickiness rule).
	if !backupActive {
		activeSet := make(map[*node.Node]bool, len(active))
		for _, n := range active {
			activeSet[n] = true
		}
		keep := len(active) <= p.MinNodes
		for _, n := range p.Nodes {
			n.SetMinNodesKept(keep && activeSet[n])
		}
	}

	changed := len(active) != len(prevActive)
	if !changed {
		for _, n := range active {
			if !prevActive[n] {
				changed = true
				break
			}
		}
	}

	p.active = active
	if changed {
		p.synced = false
		if len(active) > 0 {
			p.state = Up
		} else {
			p.state = Down
		}
	}

	sender := p.sender
	tableName := p.TableName
	poolName := p.Name
	activeCopy := make([]*node.Node, len(active))
	copy(activeCopy, active)
	nodesCopy := make([]*node.Node, len(p.Nodes))
	copy(nodesCopy, p.Nodes)

	p.mu.Unlock()

	// Step 6: non-blocking handoff to the worker, outside the lock so a
	// slow Sender cannot stall other pools' evaluation.
	if sender != nil {
		if sender.Send(poolName, tableName, nodesCopy, activeCopy) {
			p.mu.Lock()
			p.synced = true
			p.mu.Unlock()
		}
	}

	// Step 7: anyone whose backup is this pool and who is presently
	// riding on our active set must be re-run.
	if p.registry != nil {
		// Resolution of "anyone" is the scheduler's job (it owns the full
		// pool list); Pool only reports its own name so the scheduler can
		// look up and filter.
		dependents = []string{poolName}
	}
	return dependents
}

// applyForceUp implements spec.md §4.5 step 4's ForceUp branch: first add
// recently-changed min-kept nodes, then any administratively-Up node,
// until |active| == min.
func (p *Pool) applyForceUp(active []*node.Node) []*node.Node {
	have := make(map[*node.Node]bool, len(active))
	for _, n := range active {
		have[n] = true
	}

	add := func(n *node.Node) bool {
		if len(active) >= p.MinNodes {
			return false
		}
		if have[n] {
			return true
		}
		active = append(active, n)
		have[n] = true
		n.SetMinNodesKept(true)
		return true
	}

	for _, n := range p.Nodes {
		if len(active) >= p.MinNodes {
			break
		}
		if n.MinNodesKept() {
			add(n)
		}
	}

	for _, n := range p.Nodes {
		if len(active) >= p.MinNodes {
			break
		}
		if n.AdminState() == node.AdminOnline || n.AdminState() == node.AdminDeployOnline {
			add(n)
		}
	}

	return active
}

// ActiveNodeNames returns the active set's node names, sorted, for status/logging
// use (not for set-membership decisions, which stay in registration
// order above).
func (p *Pool) ActiveNodeNames() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.active))
	for _, n := range p.active {
		out = append(out, n.Name)
	}
	sort.Strings(out)
	return out
}
