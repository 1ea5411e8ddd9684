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

package icmpsock

import (
	"testing"
	"time"
)

func TestAllocateDeliverRoundTrip(t *testing.T) {
	tbl := newTable()
	now := time.Now()

	seq, ch := tbl.Allocate(now)
	tbl.Deliver(seq, now.Add(5*time.Millisecond))

	select {
	case r := <-ch:
		if r.Err != nil {
			t.Fatalf("unexpected error: %v", r.Err)
		}
		if r.RTT != 5*time.Millisecond {
			t.Fatalf("expected RTT 5ms, got %s", r.RTT)
		}
	default:
		t.Fatal("expected a reply on the channel")
	}
}

func TestDeliverToUnknownSequenceIsDropped(t *testing.T) {
	tbl := newTable()
	// No Allocate call: slot 42 is not in use.
	tbl.Deliver(42, time.Now())
	// Should not panic and should leave the slot untouched.
	if tbl.slots[42].inUse {
		t.Fatal("slot should remain unused")
	}
}

func TestSweepTimesOutStaleRequests(t *testing.T) {
	tbl := newTable()
	now := time.Now()
	seq, ch := tbl.Allocate(now)
	_ = seq

	tbl.Sweep(now.Add(2*time.Second), time.Second)

	select {
	case r := <-ch:
		if r.Err == nil {
			t.Fatal("expected a timeout error")
		}
	default:
		t.Fatal("expected a synthesized timeout reply")
	}
}

func TestSweepLeavesFreshRequestsAlone(t *testing.T) {
	tbl := newTable()
	now := time.Now()
	_, ch := tbl.Allocate(now)

	tbl.Sweep(now.Add(100*time.Millisecond), time.Second)

	select {
	case <-ch:
		t.Fatal("did not expect a reply for a request still within its timeout")
	default:
	}
}
