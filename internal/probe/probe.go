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

// Package probe implements the health-check runtime: the Task/Outcome
// abstraction every concrete protocol state machine plugs into, and the
// Probe type that folds outcomes into hard state per spec.md §4.3.
//
// Grounded on original_source/src/healthcheck.h (HealthcheckState enum,
// schedule_healthcheck/end_check/handle_result flow) reinterpreted as one
// goroutine per scheduled check suspended behind a context.Context
// deadline, per SPEC_FULL.md §4.1.
package probe

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/innogames/testtool-sub000/internal/node"
)

// Result is the terminal outcome of one probe run (spec.md §4.2).
type Result int

const (
	Pass Result = iota
	Fail
	Drain
	Panic
)

func (r Result) String() string {
	switch r {
	case Pass:
		return "pass"
	case Fail:
		return "fail"
	case Drain:
		return "drain"
	case Panic:
		return "panic"
	default:
		return "unknown"
	}
}

// Type tags the probe's protocol.
type Type string

const (
	TypeTCP      Type = "tcp"
	TypeHTTP     Type = "http"
	TypeHTTPS    Type = "https"
	TypePing     Type = "ping"
	TypeDNS      Type = "dns"
	TypePostgres Type = "postgres"
	TypeDummy    Type = "dummy"
)

// Outcome is what a Task posts back to the scheduler on completion.
type Outcome struct {
	Result  Result
	Message string
	At      time.Time
}

// Task is implemented by each concrete protocol state machine
// (internal/probe/{tcp,http,icmp,dns,postgres,dummy}).
type Task interface {
	// Run performs one check, blocking until ctx is done or a terminal
	// outcome is reached. It must never mutate Node/Pool state directly;
	// the returned Outcome is the only channel of communication back to
	// the scheduler (SPEC_FULL.md §4.1's single-writer invariant).
	Run(ctx context.Context) Outcome
}

// Probe is one (node, address-family, check-type) health check. It
// implements node.ProbeView so internal/node can aggregate without
// importing this package's concrete state.
type Probe struct {
	mu sync.Mutex

	Type     Type
	Address  string
	Port     int
	Timeout  time.Duration
	Interval time.Duration
	MaxFailed int

	// Jitter is a fixed per-instance 0-1000ms offset applied when
	// spreading checks across a tick, assigned once at construction.
	Jitter time.Duration

	task Task

	failureCount int
	// lastOutcome is the raw result of the most recent check.
	lastOutcome node.State
	// hardState is what node aggregation reads: it only moves to Down
	// once failureCount reaches MaxFailed, per spec.md §4.3's distinction
	// between a probe's "last state" and its "hard state".
	hardState   node.State
	checked     bool
	running     bool
	lastCheckAt time.Time
	generation  uint64
}

// New builds a Probe bound to a concrete Task.
func New(typ Type, address string, port int, timeout, interval time.Duration, maxFailed int, task Task) *Probe {
	return &Probe{
		Type:        typ,
		Address:     address,
		Port:        port,
		Timeout:     timeout,
		Interval:    interval,
		MaxFailed:   maxFailed,
		Jitter:      time.Duration(rand.Intn(1000)) * time.Millisecond,
		task:        task,
		lastOutcome: node.Down,
		hardState:   node.Down,
	}
}

// Due reports whether, as of now, this probe's interval (plus its fixed
// jitter) has elapsed since its last check and it is not already running.
func (p *Probe) Due(now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return false
	}
	return now.Sub(p.lastCheckAt) >= p.Interval+p.Jitter
}

// Running reports whether a check is currently in flight, true between
// "scheduled" and "outcome recorded" per spec.md §3.
func (p *Probe) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// MarkScheduled flips the running flag; called by the scheduler right
// before launching the goroutine that executes Run.
func (p *Probe) MarkScheduled(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = true
	p.lastCheckAt = now
}

// Run executes the underlying Task. Safe to call from a dedicated
// goroutine; the scheduler is the only caller.
//
// Timeouts are authoritative (spec.md §4.1): if the task did not reach a
// Pass/Drain/Panic outcome before ctx's deadline fired, the result is
// normalized to Fail with the canonical "timeout after <s>.<ms>s"
// message, regardless of whatever message the underlying Task produced
// from its own dial/read error.
func (p *Probe) Run(ctx context.Context) Outcome {
	o := p.task.Run(ctx)
	if o.Result == Fail && ctx.Err() == context.DeadlineExceeded {
		o.Message = fmt.Sprintf("timeout after %.3fs", p.Timeout.Seconds())
	}
	return o
}

// ApplyOutcome folds a terminal Outcome into hard state per spec.md
// §4.3. It returns true if this probe's own last-state changed (which
// the node aggregation step needs in order to decide whether to
// recompute, though in practice the node always re-aggregates on every
// finished probe per the scheduler's tick loop).
func (p *Probe) ApplyOutcome(o Outcome) (stateChanged bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.running = false
	p.checked = true
	p.generation++
	prev := p.hardState

	switch o.Result {
	case Pass:
		p.lastOutcome = node.Up
		p.failureCount = 0
		p.hardState = node.Up
	case Fail:
		p.lastOutcome = node.Down
		p.failureCount++
		if p.failureCount >= p.MaxFailed {
			p.hardState = node.Down
		}
	case Drain:
		p.lastOutcome = node.Drain
		p.hardState = node.Drain
		// counter is not incremented per spec.md §4.3
	case Panic:
		// Handled by the caller: Panic terminates the process (exit code 2
		// per spec.md §4.3); Probe state is left as-is.
	}

	return p.hardState != prev
}

// LastState implements node.ProbeView: it is the probe's hard state, the
// value node aggregation consumes (spec.md §4.4).
func (p *Probe) LastState() node.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hardState
}

// LastOutcome is the raw result of the most recent check, independent of
// the failure-counter threshold.
func (p *Probe) LastOutcome() node.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastOutcome
}

func (p *Probe) Checked() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.checked
}

// Generation implements node.ProbeView: a counter incremented every time
// a check completes, so Node can tell a fresh Pass apart from a stale
// one still sitting in LastState.
func (p *Probe) Generation() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.generation
}

func (p *Probe) FailureCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failureCount
}
