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

// Package worker models the "separate address-space worker" from
// spec.md §4.6 as a second goroutine rather than a second OS process: a
// native Go chan Message of capacity 10 gives the same fixed-depth,
// drop-and-retry, FIFO, self-contained-message contract the original
// gets from a boost::interprocess::message_queue
// (original_source/src/pfctl_worker.h), without needing a real process
// boundary to express it.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/innogames/testtool-sub000/internal/lberrors"
	"github.com/innogames/testtool-sub000/internal/logger"
	"github.com/innogames/testtool-sub000/internal/metrics"
	"github.com/innogames/testtool-sub000/internal/node"
	"github.com/innogames/testtool-sub000/internal/pfctl"
)

// queueLen matches original_source/src/pfctl_worker.h's QUEUE_LEN: long
// enough to absorb a burst of pool re-evaluations without the scheduler
// blocking, short enough that staleness never accumulates meaningfully
// given the documented ~120ms per operation.
const queueLen = 10

// maxEntries matches pfctl_worker.h's MAX_NODES: a pool is represented
// by at most this many node entries per message; nodes beyond this are
// dropped with a logged warning rather than silently truncated.
const maxEntries = 20

// Entry is one node's address/state tuple as carried by a Message
// (spec.md §4.6). State is Up when the node belongs to the pool's
// current active set (even if its own hard state says otherwise, e.g. a
// ForceUp-promoted node) and is otherwise the node's real hard state, so
// the worker can tell a gracefully-draining removal from any other kind.
type Entry struct {
	IPv4Address string
	IPv6Address string
	State       node.State
	AdminState  node.AdminState
}

// Message is one self-contained reconciliation request: the full
// intended state of one pool's filter table.
type Message struct {
	PoolName  string
	TableName string
	Entries   []Entry
}

// Sender is the pool-facing adapter implementing pool.Sender without
// internal/worker needing to import internal/pool (avoiding an import
// cycle, since pool is the lower-level package).
type Sender struct {
	ch  chan Message
	log logger.Logger
	m   *metrics.Registry
}

// NewSender builds the pool-facing handoff endpoint and its bounded
// channel; NewWorker builds the Worker that drains that channel. m may be
// nil when metrics are disabled.
func NewSender(log logger.Logger, m *metrics.Registry) *Sender {
	return &Sender{ch: make(chan Message, queueLen), log: log, m: m}
}

// Send implements pool.Sender: non-blocking, true only if the message
// was accepted. nodes is the pool's full registration-order node list;
// active is the newly computed active set.
func (s *Sender) Send(poolName, tableName string, nodes []*node.Node, active []*node.Node) bool {
	activeSet := make(map[*node.Node]bool, len(active))
	for _, n := range active {
		activeSet[n] = true
	}

	if len(nodes) > maxEntries && s.log != nil {
		s.log.Warn(fmt.Sprintf("pool %s: %d nodes exceeds the %d-entry message cap, dropping the tail", poolName, len(nodes), maxEntries), logger.Fields{Pool: poolName})
	}

	entries := make([]Entry, 0, maxEntries)
	for i, n := range nodes {
		if i >= maxEntries {
			break
		}
		st := n.State()
		if activeSet[n] {
			st = node.Up
		}
		entries = append(entries, Entry{
			IPv4Address: n.IPv4Address,
			IPv6Address: n.IPv6Address,
			State:       st,
			AdminState:  n.AdminState(),
		})
	}

	msg := Message{PoolName: poolName, TableName: tableName, Entries: entries}
	select {
	case s.ch <- msg:
		if s.m != nil {
			s.m.WorkerQueueDepth.Set(float64(len(s.ch)))
		}
		return true
	default:
		if s.m != nil {
			s.m.WorkerSyncFailures.WithLabelValues(poolName).Inc()
		}
		if s.log != nil {
			err := lberrors.New(lberrors.CodeWorkerChannelFull, "", nil).WithContext(poolName, "", "")
			s.log.Warn(err.Error(), logger.Fields{Pool: poolName})
		}
		return false
	}
}

// Worker drains the Sender's channel single-threaded, reconciling each
// message against the external filter via pfctl.Client (spec.md §4.6).
type Worker struct {
	ch     <-chan Message
	filter *pfctl.Client
	log    logger.Logger
	alive  chan struct{} // closed on exit, for liveness polling
}

// NewWorker builds a Worker draining sender's channel.
func NewWorker(sender *Sender, filter *pfctl.Client, log logger.Logger) *Worker {
	return &Worker{ch: sender.ch, filter: filter, log: log, alive: make(chan struct{})}
}

// Alive reports whether the worker's run loop is still running (false
// once it has exited). The scheduler
// polls this once per second per spec.md §4.6.
func (w *Worker) Alive() bool {
	select {
	case <-w.alive:
		return false
	default:
		return true
	}
}

// Run drains messages until ctx is cancelled, applying each to the
// filter per the §4.6 procedure. It never returns an error: filter
// failures are logged and the rest of that message is abandoned. The
// failure is not reported back to the pool, whose synced flag stays as
// the Sender left it; nothing retries the message.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.alive)
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-w.ch:
			w.reconcile(ctx, msg)
		}
	}
}

func (w *Worker) reconcile(ctx context.Context, msg Message) {
	start := time.Now()

	want := make(map[string]bool)
	byAddr := make(map[string]Entry, len(msg.Entries)*2)
	for _, e := range msg.Entries {
		if e.State == node.Up {
			if e.IPv4Address != "" {
				want[e.IPv4Address] = true
			}
			if e.IPv6Address != "" {
				want[e.IPv6Address] = true
			}
		}
		if e.IPv4Address != "" {
			byAddr[e.IPv4Address] = e
		}
		if e.IPv6Address != "" {
			byAddr[e.IPv6Address] = e
		}
	}

	have, err := w.filter.TableShow(ctx, msg.TableName)
	if err != nil {
		w.logErr(msg.PoolName, "table_show failed", err)
		return
	}
	haveSet := make(map[string]bool, len(have))
	for _, a := range have {
		haveSet[a] = true
	}

	var toDel, toAdd []string
	for a := range haveSet {
		if !want[a] {
			toDel = append(toDel, a)
		}
	}
	for a := range want {
		if !haveSet[a] {
			toAdd = append(toAdd, a)
		}
	}

	// Step 3: delete first, so new connections stop landing on addresses
	// leaving the table before anything else happens.
	if len(toDel) > 0 {
		if err := w.filter.TableDel(ctx, msg.TableName, toDel); err != nil {
			w.logErr(msg.PoolName, "table_del failed", err)
			return
		}
		for _, a := range toDel {
			if e, ok := byAddr[a]; ok && e.State == node.Drain {
				continue // graceful departure: leave its connections alone
			}
			// Three-call sequence for a non-drain removal (spec.md §4.6
			// step 3): kill src-nodes and their linked states, kill any
			// states redirected to the address that weren't linked to a
			// src-node, then kill src-nodes again to catch ones created
			// by the deferred src-node semantics between the first call
			// and now.
			if err := w.filter.KillSrcNodesTo(ctx, msg.TableName, a, true); err != nil {
				w.logErr(msg.PoolName, "kill_src_nodes_to failed", err)
			}
			if err := w.filter.KillStatesToRdr(ctx, msg.TableName, a); err != nil {
				w.logErr(msg.PoolName, "kill_states_to_rdr failed", err)
			}
			if err := w.filter.KillSrcNodesTo(ctx, msg.TableName, a, true); err != nil {
				w.logErr(msg.PoolName, "kill_src_nodes_to (second pass) failed", err)
			}
		}
	}

	// Step 4: add.
	if len(toAdd) > 0 {
		if err := w.filter.TableAdd(ctx, msg.TableName, toAdd); err != nil {
			w.logErr(msg.PoolName, "table_add failed", err)
			return
		}
	}

	// Step 5: rebalance so new flows hash across the enlarged set.
	if len(toAdd) > 0 {
		for a := range want {
			keep := false
			for _, added := range toAdd {
				if added == a {
					keep = true
					break
				}
			}
			if keep {
				continue
			}
			if err := w.filter.KillSrcNodesTo(ctx, msg.TableName, a, false); err != nil {
				w.logErr(msg.PoolName, "rebalance kill_src_nodes_to failed", err)
			}
		}
	}

	if w.log != nil {
		w.log.Debug(fmt.Sprintf("pool %s: reconciled in %s (+%d -%d)", msg.PoolName, time.Since(start), len(toAdd), len(toDel)), logger.Fields{Pool: msg.PoolName})
	}
}

// logErr wraps err as a GradeSubsystemStall lberrors.Error with
// CodeFilterCommandFailed (such failures never terminate the process)
// and logs it.
func (w *Worker) logErr(pool, msg string, err error) {
	if w.log == nil {
		return
	}
	wrapped := lberrors.New(lberrors.CodeFilterCommandFailed, msg, err).WithContext(pool, "", "")
	w.log.Error(wrapped.Error(), logger.Fields{Pool: pool}, err)
}
