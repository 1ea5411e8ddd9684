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

// Package icmpsock owns the process-wide dual-stack raw ICMP sockets and
// the 65,536-slot sequence table described in spec.md §4.2/§9 and
// SPEC_FULL.md §4.2/§5: a single typed subsystem through which every
// ICMP probe sends echoes and receives replies, never touching a socket
// directly.
package icmpsock

import (
	"encoding/binary"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

func resolveAddr(dst string) (net.Addr, error) {
	ip := net.ParseIP(dst)
	if ip == nil {
		return nil, fmt.Errorf("icmpsock: invalid address %q", dst)
	}
	return &net.IPAddr{IP: ip}, nil
}

// filler is the fixed payload appended after the send timestamp, per
// spec.md §4.2 ("a fixed filler string").
const filler = "testtool-sub000-icmp-probe-payload"

// pendingEcho is one in-flight echo request, keyed by sequence number.
type pendingEcho struct {
	inUse   bool
	sentAt  time.Time
	replyCh chan Reply
}

// Reply is what a probe receives once its echo completes.
type Reply struct {
	RTT time.Duration
	Err error
}

// Table is the process-wide array-indexed (not map-indexed, per spec.md
// §9's cache-behavior rationale) sequence-to-probe lookup, one per
// address family.
type Table struct {
	mu      sync.Mutex
	slots   [65536]pendingEcho
	nextSeq uint16
}

func newTable() *Table { return &Table{} }

// Allocate reserves the next sequence number and returns a channel the
// caller receives at most one Reply from: the echo reply via Deliver, or
// a timeout Reply from Sweep if none arrived in time.
func (t *Table) Allocate(now time.Time) (seq uint16, replyCh chan Reply) {
	t.mu.Lock()
	defer t.mu.Unlock()

	seq = t.nextSeq
	t.nextSeq++
	slot := &t.slots[seq]
	slot.inUse = true
	slot.sentAt = now
	slot.replyCh = make(chan Reply, 1)
	return seq, slot.replyCh
}

// Deliver matches an inbound reply's sequence number to a pending
// request and completes it. A reply for a sequence not currently in use
// is dropped silently (spec.md §4.2).
func (t *Table) Deliver(seq uint16, now time.Time) {
	t.mu.Lock()
	slot := &t.slots[seq]
	if !slot.inUse {
		t.mu.Unlock()
		return
	}
	ch := slot.replyCh
	rtt := now.Sub(slot.sentAt)
	slot.inUse = false
	slot.replyCh = nil
	t.mu.Unlock()

	select {
	case ch <- Reply{RTT: rtt}:
	default:
	}
}

// Sweep synthesizes a timeout Reply for every request older than
// timeout, called from the scheduler's finalize pass once per tick
// since raw sockets provide no per-probe deadline (spec.md §4.2/§5).
func (t *Table) Sweep(now time.Time, timeout time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.slots {
		slot := &t.slots[i]
		if !slot.inUse {
			continue
		}
		if now.Sub(slot.sentAt) < timeout {
			continue
		}
		ch := slot.replyCh
		slot.inUse = false
		slot.replyCh = nil
		select {
		case ch <- Reply{Err: errTimeout{elapsed: now.Sub(slot.sentAt)}}:
		default:
		}
	}
}

type errTimeout struct{ elapsed time.Duration }

// Error formats as "timeout after <s>.<ms>s" per spec.md §4.1.
func (e errTimeout) Error() string {
	return fmt.Sprintf("timeout after %.3fs", e.elapsed.Seconds())
}

// Subsystem owns both families' raw sockets and sequence tables for the
// lifetime of the process.
type Subsystem struct {
	id uint16 // process-wide ICMP identifier, fixed at startup

	v4conn *icmp.PacketConn
	v6conn *icmp.PacketConn

	v4Table *Table
	v6Table *Table

	closeOnce sync.Once
	stop      chan struct{}
}

// New opens both raw ICMP sockets and starts their reader goroutines.
// Binding v4/v6 raw sockets typically requires CAP_NET_RAW or root.
func New() (*Subsystem, error) {
	v4conn, err := icmp.ListenPacket("ip4:icmp", "0.0.0.0")
	if err != nil {
		return nil, err
	}
	v6conn, err := icmp.ListenPacket("ip6:ipv6-icmp", "::")
	if err != nil {
		v4conn.Close()
		return nil, err
	}

	// spec.md §4.2: "the kernel filter is configured to deliver only
	// Destination-Unreachable and Echo-Reply" on v6.
	pc := v6conn.IPv6PacketConn()
	f := new(ipv6.ICMPFilter)
	f.SetAll(true)
	f.Accept(ipv6.ICMPTypeEchoReply)
	f.Accept(ipv6.ICMPTypeDestinationUnreachable)
	_ = pc.SetICMPFilter(f)

	s := &Subsystem{
		id:      uint16(os.Getpid()),
		v4conn:  v4conn,
		v6conn:  v6conn,
		v4Table: newTable(),
		v6Table: newTable(),
		stop:    make(chan struct{}),
	}

	go s.readLoop(s.v4conn, s.v4Table, false)
	go s.readLoop(s.v6conn, s.v6Table, true)

	return s, nil
}

func (s *Subsystem) Close() {
	s.closeOnce.Do(func() {
		close(s.stop)
		s.v4conn.Close()
		s.v6conn.Close()
	})
}

// SendEchoV4 sends an IPv4 echo request to dst and returns the channel
// that will receive its Reply.
func (s *Subsystem) SendEchoV4(dst string, now time.Time) (chan Reply, error) {
	return s.sendEcho(s.v4conn, s.v4Table, ipv4.ICMPTypeEcho, dst, now)
}

// SendEchoV6 sends an IPv6 echo request to dst and returns the channel
// that will receive its Reply.
func (s *Subsystem) SendEchoV6(dst string, now time.Time) (chan Reply, error) {
	return s.sendEcho(s.v6conn, s.v6Table, ipv6.ICMPTypeEchoRequest, dst, now)
}

func (s *Subsystem) sendEcho(conn *icmp.PacketConn, table *Table, typ icmp.Type, dst string, now time.Time) (chan Reply, error) {
	seq, ch := table.Allocate(now)

	payload := make([]byte, 8+len(filler))
	binary.BigEndian.PutUint64(payload, uint64(now.UnixNano()))
	copy(payload[8:], filler)

	msg := icmp.Message{
		Type: typ,
		Code: 0,
		Body: &icmp.Echo{
			ID:   int(s.id),
			Seq:  int(seq),
			Data: payload,
		},
	}

	wire, err := msg.Marshal(nil)
	if err != nil {
		return nil, err
	}

	addr, err := resolveAddr(dst)
	if err != nil {
		return nil, err
	}

	if _, err := conn.WriteTo(wire, addr); err != nil {
		return nil, err
	}
	return ch, nil
}

// FinalizeV4 / FinalizeV6 sweep each family's table for stale requests.
// Called once per scheduler tick.
func (s *Subsystem) FinalizeV4(now time.Time, timeout time.Duration) { s.v4Table.Sweep(now, timeout) }
func (s *Subsystem) FinalizeV6(now time.Time, timeout time.Duration) { s.v6Table.Sweep(now, timeout) }

func (s *Subsystem) readLoop(conn *icmp.PacketConn, table *Table, v6 bool) {
	buf := make([]byte, 1500)
	proto := 1 // ICMPv4
	if v6 {
		proto = 58 // ICMPv6
	}
	for {
		select {
		case <-s.stop:
			return
		default:
		}
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-s.stop:
				return
			default:
				continue
			}
		}
		msg, err := icmp.ParseMessage(proto, buf[:n])
		if err != nil {
			continue
		}
		echo, ok := msg.Body.(*icmp.Echo)
		if !ok {
			continue
		}
		if echo.ID != int(s.id) {
			continue // reply identifier must equal process identifier (spec.md §4.2)
		}
		isReply := (!v6 && msg.Type == ipv4.ICMPTypeEchoReply) || (v6 && msg.Type == ipv6.ICMPTypeEchoReply)
		if !isReply {
			continue
		}
		table.Deliver(uint16(echo.Seq), time.Now())
	}
}
