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

package probe

import (
	"context"
	"sync"
	"time"
)

// Completion is what the Runtime posts back once one Probe's Task has
// reached a terminal outcome.
type Completion struct {
	Probe   *Probe
	Outcome Outcome
}

// Runtime dispatches one goroutine per scheduled probe, each suspended
// behind its own context.WithTimeout(parent, Probe.Timeout), and
// collects every Completion onto a single buffered channel. This is the
// Go-idiomatic reading of the single-threaded-reactor design note in
// spec.md §9 ("a target that provides lightweight tasks plus channels
// should model each probe as one task with explicit suspension at I/O
// points"): goroutines plus a channel stand in for an event loop's fd
// multiplexing, with the same per-probe timeout guarantee.
//
// The Runtime itself never touches Node or Pool state; only the
// scheduler goroutine reading Results() does, preserving the
// single-writer invariant from spec.md §4.1/§5.
type Runtime struct {
	results chan Completion
	wg      sync.WaitGroup
}

// NewRuntime builds a Runtime whose result channel holds up to
// bufferSize pending completions before a finished Task's goroutine
// blocks on delivery (Launch itself never blocks).
func NewRuntime(bufferSize int) *Runtime {
	return &Runtime{results: make(chan Completion, bufferSize)}
}

// Launch schedules p if it is due, marking it running and spawning its
// Task in a new goroutine bounded by p.Timeout. It is a no-op if p is
// not due or already running.
func (r *Runtime) Launch(ctx context.Context, p *Probe, now time.Time) {
	if !p.Due(now) {
		return
	}
	p.MarkScheduled(now)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		cctx, cancel := context.WithTimeout(ctx, p.Timeout)
		defer cancel()
		o := p.Run(cctx)
		select {
		case r.results <- Completion{Probe: p, Outcome: o}:
		case <-ctx.Done():
		}
	}()
}

// Results is the channel the scheduler drains every tick.
func (r *Runtime) Results() <-chan Completion { return r.results }

// Wait blocks until every launched Task has posted its Completion or
// been abandoned via context cancellation. The scheduler never calls it,
// not even on shutdown: the spec does not require coordinated shutdown
// of in-flight probes (§5).
func (r *Runtime) Wait() { r.wg.Wait() }
