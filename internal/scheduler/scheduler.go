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

// Package scheduler drives the ~10Hz schedule/finalize tick loop that
// ties internal/clockwork, internal/probe, internal/node and
// internal/pool together (SPEC_FULL.md §2/§4.1): every tick it launches
// due probes, folds completed outcomes into node and pool state, sweeps
// internal/icmpsock for probes that cannot self-time-out, and polls the
// worker's liveness once a second.
package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/innogames/testtool-sub000/internal/clockwork"
	"github.com/innogames/testtool-sub000/internal/config"
	"github.com/innogames/testtool-sub000/internal/env"
	"github.com/innogames/testtool-sub000/internal/icmpsock"
	"github.com/innogames/testtool-sub000/internal/lberrors"
	"github.com/innogames/testtool-sub000/internal/logger"
	"github.com/innogames/testtool-sub000/internal/node"
	"github.com/innogames/testtool-sub000/internal/pool"
	"github.com/innogames/testtool-sub000/internal/probe"
)

// tickPeriod matches spec.md §2's "roughly 10 Hz" scheduling cadence.
const tickPeriod = 100 * time.Millisecond

// Binding pairs a Probe with the Node it reports into; built once, at
// load time, in registration order (spec.md §4.1's ordering guarantee).
type Binding struct {
	Node  *node.Node
	Pool  *pool.Pool
	Probe *probe.Probe
}

// LivenessChecker reports whether the worker goroutine is still
// running; internal/worker.Worker implements this.
type LivenessChecker interface {
	Alive() bool
}

// Scheduler is the process's single tick loop.
type Scheduler struct {
	env      *env.Environment
	bindings []Binding
	worker   LivenessChecker

	runtime     *probe.Runtime
	icmp        *icmpsock.Subsystem
	icmpTimeout time.Duration

	inner *clockwork.Scheduler

	lastLiveness time.Time

	// pendingReload holds a SIGUSR1-triggered config re-read until the
	// next tick picks it up; spec.md §6 reloads "on the next tick", not
	// immediately, so this stays the scheduler goroutine's job to apply
	// and the single-writer invariant in §5 is never broken.
	pendingReload atomic.Pointer[config.Document]
}

// New builds a Scheduler. icmp may be nil when no pool configures an
// ICMP probe. worker may be nil in tests that do not exercise liveness
// polling.
func New(e *env.Environment, bindings []Binding, w LivenessChecker, icmp *icmpsock.Subsystem, icmpTimeout time.Duration) *Scheduler {
	s := &Scheduler{
		env:         e,
		bindings:    bindings,
		worker:      w,
		runtime:     probe.NewRuntime(len(bindings) + 1),
		icmp:        icmp,
		icmpTimeout: icmpTimeout,
	}
	s.inner = clockwork.NewScheduler(e.Clock, tickPeriod, s.tick)
	return s
}

// Run blocks, ticking until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) { s.inner.Run(ctx) }

// Stop ends the tick loop and waits for it to exit.
func (s *Scheduler) Stop() { s.inner.Stop() }

// RequestReload queues doc's administrative-state decisions to be
// applied on the next tick (spec.md §6's SIGUSR1 reload). Only each
// node's admin state is re-read; doc's pools, nodes and health-checks
// are otherwise ignored — reload never adds or removes anything, it
// only replays downtime/maintenance/retired assignments. Safe to call
// from a signal handler goroutine.
func (s *Scheduler) RequestReload(doc *config.Document) { s.pendingReload.Store(doc) }

func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	if doc := s.pendingReload.Swap(nil); doc != nil {
		s.applyReload(doc)
	}

	// Schedule pass: launch every due probe, pools/nodes/probes all in
	// registration order (spec.md §4.1).
	for _, b := range s.bindings {
		s.runtime.Launch(ctx, b.Probe, now)
	}

	// Drain whatever has completed so far without blocking; anything
	// still in flight is picked up on a later tick.
	s.drainCompletions()

	// Finalize pass: a shared raw socket has no per-probe deadline, so the
	// scheduler sweeps the sequence tables for requests older than the one
	// shared icmpTimeout (spec.md §4.1/§9).
	if s.icmp != nil {
		s.icmp.FinalizeV4(now, s.icmpTimeout)
		s.icmp.FinalizeV6(now, s.icmpTimeout)
	}

	// Worker liveness is polled once per second (spec.md §4.6).
	if s.worker != nil && now.Sub(s.lastLiveness) >= time.Second {
		s.lastLiveness = now
		if !s.worker.Alive() {
			if s.env.Logger != nil {
				err := lberrors.New(lberrors.CodeWorkerDead, "", nil)
				s.env.Logger.Fatal(err.Error(), logger.Fields{}, err, lberrors.ExitCodeFor(err.Code))
			}
		}
	}
}

func (s *Scheduler) drainCompletions() {
	for {
		select {
		case c := <-s.runtime.Results():
			s.applyCompletion(c)
		default:
			return
		}
	}
}

// bindingFor maps back from a *probe.Probe to its Binding; bindings are
// small in practice (tens to low hundreds of probes) so a linear index
// built once at construction would be the natural optimization, but
// correctness matters more than speed here and this runs off the hot
// path (only on probe completion, not every tick).
func (s *Scheduler) bindingFor(p *probe.Probe) (Binding, bool) {
	for _, b := range s.bindings {
		if b.Probe == p {
			return b, true
		}
	}
	return Binding{}, false
}

func (s *Scheduler) applyCompletion(c probe.Completion) {
	b, bound := s.bindingFor(c.Probe)

	if c.Outcome.Result == probe.Panic {
		if s.env.Logger != nil {
			fields := logger.Fields{}
			poolName, nodeName, probeType := "", "", ""
			if bound {
				poolName, nodeName, probeType = b.Pool.Name, b.Node.Name, string(c.Probe.Type)
				fields = logger.Fields{Pool: poolName, Node: nodeName, Probe: probeType}
			}
			err := lberrors.New(lberrors.CodeProbePanic, c.Outcome.Message, nil).WithContext(poolName, nodeName, probeType)
			s.env.Logger.Fatal(err.Error(), fields, err, lberrors.ExitCodeFor(err.Code))
		}
		return
	}

	if s.env.Metrics != nil && bound {
		s.env.Metrics.ChecksTotal.WithLabelValues(b.Pool.Name, b.Node.Name, string(c.Probe.Type), c.Outcome.Result.String()).Inc()
	}

	if !bound {
		return
	}

	c.Probe.ApplyOutcome(c.Outcome)

	if !b.Node.Aggregate() {
		return
	}
	s.evaluatePool(b.Pool, make(map[string]bool))
}

// applyReload replays doc's per-node administrative-state assignments
// (spec.md §4.4's online/deploy_online/deploy_offline/maintenance/
// retired mapping) against the live pool/node graph. A node whose admin
// state is unchanged, or that is not found by name (pool/node added or
// removed since startup — unsupported by reload), is left untouched.
// Downtime immediacy (spec.md §8 scenario 5) falls out of SetAdminState
// and Aggregate already being synchronous: the pool's active set
// reflects the new state before the next probe ever runs.
func (s *Scheduler) applyReload(doc *config.Document) {
	if s.env.Pools == nil {
		return
	}
	for poolName, cfg := range doc.Pools {
		p, ok := s.env.Pools.Pool(poolName)
		if !ok {
			continue
		}
		for nodeName, ncfg := range cfg.Nodes {
			as, ok := node.ParseAdminState(ncfg.State)
			if !ok {
				continue
			}
			for _, n := range p.Nodes {
				if n.Name != nodeName {
					continue
				}
				if n.AdminState() == as {
					break
				}
				n.SetAdminState(as)
				if n.Aggregate() {
					s.evaluatePool(p, make(map[string]bool))
				}
				break
			}
		}
	}
}

// evaluatePool runs Evaluate and then transitively re-runs any pool that
// names p as its backup and is presently borrowing its active set
// (spec.md §4.5 step 7), guarding against cycles with visited.
func (s *Scheduler) evaluatePool(p *pool.Pool, visited map[string]bool) {
	if p == nil || visited[p.Name] {
		return
	}
	visited[p.Name] = true
	p.Evaluate()

	if s.env.Metrics != nil {
		s.env.Metrics.PoolActiveNodes.WithLabelValues(p.Name).Set(float64(len(p.Active())))
	}

	if s.env.Pools == nil {
		return
	}
	for _, other := range s.env.Pools.All() {
		if other.BackupPoolName == p.Name && other.BackupPoolActive() {
			s.evaluatePool(other, visited)
		}
	}
}
