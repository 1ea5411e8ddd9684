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

// Package clockwork supplies the driver's monotonic time source and the
// scheduler ticker, kept behind an interface so tests can drive ticks
// deterministically instead of sleeping.
package clockwork

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock is the monotonic time source used throughout the driver. It is
// github.com/jonboulle/clockwork's interface re-exported so callers only
// need to import this package.
type Clock = clockwork.Clock

// NewRealClock returns the process's real wall/monotonic clock.
func NewRealClock() Clock { return clockwork.NewRealClock() }

// NewFakeClock returns a clock tests can advance manually.
func NewFakeClock() clockwork.FakeClock { return clockwork.NewFakeClock() }

// TickFunc runs one scheduler pass. schedule dispatches probes that are
// due; finalize sweeps probes (ICMP) that cannot self-time-out.
type TickFunc func(ctx context.Context, now time.Time)

// Scheduler drives TickFunc at a fixed period, matching spec.md §2's
// "periodic driver that ticks at roughly 10 Hz" (period defaults to
// 100ms but is caller-configurable for tests).
type Scheduler struct {
	clock  Clock
	period time.Duration
	tick   TickFunc

	stop chan struct{}
	done chan struct{}
}

// NewScheduler builds a Scheduler. period should be 100ms in production;
// tests may pass any value paired with a FakeClock.
func NewScheduler(clock Clock, period time.Duration, tick TickFunc) *Scheduler {
	return &Scheduler{
		clock:  clock,
		period: period,
		tick:   tick,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Run blocks, invoking tick once per period, until ctx is cancelled or
// Stop is called. It closes its done channel on return so Stop can wait
// for the in-flight tick to finish before returning.
func (s *Scheduler) Run(ctx context.Context) {
	defer close(s.done)

	ticker := s.clock.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case now := <-ticker.Chan():
			s.tick(ctx, now)
		}
	}
}

// Stop signals Run to return and waits for it to do so.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}
