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

// Package dns implements the DNS-UDP probe from spec.md §4.2: a query
// built and parsed with miekg/dns, with the driver's own validation order
// (size bounds, ancount, transaction-ID match) re-applied on top of the
// library's decode rather than trusting its own error returns.
package dns

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/miekg/dns"

	"github.com/innogames/testtool-sub000/internal/probe"
)

// txnCounter is the process-wide monotonically incrementing 16-bit
// transaction-ID source described in spec.md §4.2/§9.
var txnCounter uint32

func nextTxnID() uint16 {
	return uint16(atomic.AddUint32(&txnCounter, 1))
}

// Task performs one DNS A-record query.
type Task struct {
	Address string
	Port    int   // default 53
	Domain  string
}

// New builds a DNS probe task. An empty/zero port defaults to 53.
func New(address string, port int, domain string) *Task {
	if port == 0 {
		port = 53
	}
	if len(domain) == 0 || domain[len(domain)-1] != '.' {
		domain += "."
	}
	return &Task{Address: address, Port: port, Domain: domain}
}

func (t *Task) Run(ctx context.Context) probe.Outcome {
	id := nextTxnID()

	msg := new(dns.Msg)
	msg.Id = id
	msg.RecursionDesired = true
	msg.Opcode = dns.OpcodeQuery
	msg.Question = []dns.Question{{Name: t.Domain, Qtype: dns.TypeA, Qclass: dns.ClassINET}}

	packed, err := msg.Pack()
	if err != nil {
		return probe.Outcome{Result: probe.Fail, Message: err.Error()}
	}

	addr := fmt.Sprintf("%s:%d", t.Address, t.Port)
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		return probe.Outcome{Result: probe.Fail, Message: err.Error()}
	}
	defer conn.Close()

	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	} else {
		_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
	}

	if _, err := conn.Write(packed); err != nil {
		return probe.Outcome{Result: probe.Fail, Message: err.Error()}
	}

	buf := make([]byte, 512)
	n, err := conn.Read(buf)
	if err != nil {
		return probe.Outcome{Result: probe.Fail, Message: err.Error()}
	}

	// spec.md §4.2: Fail if size is below the header size (12) or above
	// 512 bytes.
	if n < 12 || n > 512 {
		return probe.Outcome{Result: probe.Fail, Message: "malformed reply size"}
	}

	reply := new(dns.Msg)
	if err := reply.Unpack(buf[:n]); err != nil {
		return probe.Outcome{Result: probe.Fail, Message: "unpack: " + err.Error()}
	}

	if len(reply.Answer) == 0 {
		return probe.Outcome{Result: probe.Fail, Message: "ancount 0"}
	}
	if reply.Id != id {
		return probe.Outcome{Result: probe.Fail, Message: "transaction id mismatch"}
	}

	return probe.Outcome{Result: probe.Pass}
}
