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

// Package icmp implements the ICMP v4/v6 echo probe from spec.md §4.2.
// Unlike the other probe types, an ICMP Task never owns its own socket:
// it hands off to the process-wide internal/icmpsock.Subsystem and waits
// on the reply channel it gets back, since raw sockets are shared and
// provide no per-probe deadline. The wait ends at the probe's own context
// deadline like any other Task; the scheduler's finalize pass
// (Subsystem.FinalizeV4/FinalizeV6, i.e. Table.Sweep) additionally frees
// sequence slots older than one shared timeout.
package icmp

import (
	"context"
	"time"

	"github.com/innogames/testtool-sub000/internal/icmpsock"
	"github.com/innogames/testtool-sub000/internal/probe"
)

// Task performs one ICMP echo probe against Address using the given
// Subsystem and address family.
type Task struct {
	Subsystem *icmpsock.Subsystem
	Address   string
	V6        bool
}

// New builds an ICMP probe task.
func New(sub *icmpsock.Subsystem, address string, v6 bool) *Task {
	return &Task{Subsystem: sub, Address: address, V6: v6}
}

func (t *Task) Run(ctx context.Context) probe.Outcome {
	now := time.Now()

	var (
		ch  chan icmpsock.Reply
		err error
	)
	if t.V6 {
		ch, err = t.Subsystem.SendEchoV6(t.Address, now)
	} else {
		ch, err = t.Subsystem.SendEchoV4(t.Address, now)
	}
	if err != nil {
		return probe.Outcome{Result: probe.Fail, Message: err.Error()}
	}

	select {
	case r := <-ch:
		if r.Err != nil {
			return probe.Outcome{Result: probe.Fail, Message: r.Err.Error()}
		}
		return probe.Outcome{Result: probe.Pass}
	case <-ctx.Done():
		// Reached on the probe's own deadline (Runtime's
		// context.WithTimeout), which Probe.Run reports as
		// "timeout after ...", or on outright cancellation (shutdown).
		return probe.Outcome{Result: probe.Fail, Message: "cancelled"}
	}
}
