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

// Package node implements the per-backend hard/admin state machine from
// spec.md §3/§4.3/§4.4, grounded on original_source/src/lb_node.h
// (LbNode's state/admin_state/min_nodes_kept/max_nodes_kept/checked/
// state_changed fields).
package node

import "sync"

// State is a node's or probe's hard state.
type State int

const (
	Down State = iota
	Up
	Drain
	Downtime
)

func (s State) String() string {
	switch s {
	case Up:
		return "up"
	case Drain:
		return "drain"
	case Downtime:
		return "downtime"
	default:
		return "down"
	}
}

// AdminState is the administrative override coming from configuration or
// an external trigger (spec.md §6 "Node administrative state values").
type AdminState int

const (
	AdminOnline AdminState = iota
	AdminDeployOnline
	AdminDeployOffline
	AdminMaintenance
	AdminRetired
)

func ParseAdminState(s string) (AdminState, bool) {
	switch s {
	case "online":
		return AdminOnline, true
	case "deploy_online":
		return AdminDeployOnline, true
	case "deploy_offline":
		return AdminDeployOffline, true
	case "maintenance":
		return AdminMaintenance, true
	case "retired":
		return AdminRetired, true
	default:
		return AdminOnline, false
	}
}

// KillsStates reports whether this admin state carries the "states
// killed on removal" side effect documented in spec.md §4.4
// (maintenance/retired: yes; deploy_offline: no). internal/worker does
// not call it: each IPC entry carries the node's AdminState itself.
func (a AdminState) KillsStates() bool {
	return a == AdminMaintenance || a == AdminRetired
}

// ProbeView is the minimal read-only projection of a probe's last
// observed outcome that aggregation needs; internal/probe.Probe
// implements this. Generation is a per-probe counter incremented every
// time a check completes, letting Node tell a fresh Pass apart from a
// stale one still sitting in LastState (needed for the "Down until next
// passing probe" rule in spec.md §4.4).
type ProbeView interface {
	LastState() State
	Checked() bool
	Generation() uint64
}

// Node is a backend endpoint. All mutation happens on the scheduler
// goroutine; Node carries no internal locking of its own beyond what is
// needed to let other goroutines read its fields concurrently (the
// getters take RLock/RUnlock).
type Node struct {
	mu sync.RWMutex

	Name        string
	IPv4Address string
	IPv6Address string

	Probes []ProbeView

	hardState    State
	adminState   AdminState
	minNodesKept bool
	maxNodesKept bool
	checked      bool
	stateChanged bool

	// downtimePending tracks the "Down until next passing probe" rule: set
	// when leaving Downtime, cleared only once a probe completes (fresh
	// Generation) after downtimeArmGen with an Up outcome.
	downtimePending bool
	downtimeArmGen  uint64
}

// New builds a Node in its initial Down/AdminOnline state.
func New(name, ipv4, ipv6 string) *Node {
	return &Node{
		Name:        name,
		IPv4Address: ipv4,
		IPv6Address: ipv6,
		hardState:   Down,
		adminState:  AdminOnline,
	}
}

func (n *Node) State() State {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.hardState
}

func (n *Node) AdminState() AdminState {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.adminState
}

func (n *Node) Checked() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.checked
}

func (n *Node) MinNodesKept() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.minNodesKept
}

func (n *Node) MaxNodesKept() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.maxNodesKept
}

func (n *Node) SetMinNodesKept(v bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.minNodesKept = v
}

func (n *Node) SetMaxNodesKept(v bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.maxNodesKept = v
}

// StateChanged reports and clears the "state-changed-since-last-pool-
// evaluation" flag (spec.md §3).
func (n *Node) StateChanged() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	v := n.stateChanged
	n.stateChanged = false
	return v
}

// SetAdminState applies an administrative override per spec.md §4.4.
// Entering Downtime sets the hard state to Downtime immediately; leaving
// it arms the "Down until next passing probe" rule so the node cannot
// flap straight to Up without a fresh check.
func (n *Node) SetAdminState(a AdminState) {
	n.mu.Lock()
	defer n.mu.Unlock()

	wasDowntime := n.adminState == AdminMaintenance || n.adminState == AdminRetired
	n.adminState = a

	if a == AdminMaintenance || a == AdminRetired {
		n.hardState = Downtime
		n.stateChanged = true
		return
	}
	if wasDowntime {
		n.downtimePending = true
		n.downtimeArmGen = n.maxProbeGeneration()
		n.hardState = Down
		n.stateChanged = true
	}
}

func (n *Node) maxProbeGeneration() uint64 {
	var max uint64
	for _, p := range n.Probes {
		if g := p.Generation(); g > max {
			max = g
		}
	}
	return max
}

// Aggregate recomputes hard state from the attached probes per spec.md
// §4.4. It returns the state-changed flag: true if this call or an
// earlier SetAdminState/Aggregate changed the state and StateChanged has
// not cleared the flag since, in which case the pool must re-evaluate.
func (n *Node) Aggregate() (changed bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	allChecked := len(n.Probes) > 0
	anyDrain := false
	allUp := len(n.Probes) > 0
	anyFreshPass := false

	for _, p := range n.Probes {
		if !p.Checked() {
			allChecked = false
		}
		switch p.LastState() {
		case Drain:
			anyDrain = true
		case Up:
			if p.Generation() > n.downtimeArmGen {
				anyFreshPass = true
			}
		default:
			allUp = false
		}
	}

	if allChecked && !n.checked {
		n.checked = true
	}

	var computed State
	switch {
	case anyDrain:
		computed = Drain
	case allUp && len(n.Probes) > 0:
		computed = Up
	default:
		computed = Down
	}

	// Downtime administrative override always wins, and blocks the
	// downtimePending rule below from clearing early.
	if n.adminState == AdminMaintenance || n.adminState == AdminRetired {
		if n.hardState != Downtime {
			n.hardState = Downtime
			n.stateChanged = true
		}
		return n.stateChanged
	}

	if n.downtimePending {
		if computed == Up && anyFreshPass {
			n.downtimePending = false
		} else {
			computed = Down
		}
	}

	if n.adminState == AdminDeployOffline && computed != Drain {
		computed = Drain
	}

	if computed != n.hardState {
		n.hardState = computed
		n.stateChanged = true
	}

	return n.stateChanged
}

// EffectiveUp reports whether the node currently counts as Up for pool
// membership purposes. Per the Open Question resolution recorded in
// DESIGN.md, Drain counts as not-Up.
func (n *Node) EffectiveUp() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if !n.checked {
		return false
	}
	return n.hardState == Up
}
