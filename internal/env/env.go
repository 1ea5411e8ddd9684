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

// Package env holds the process-wide singleton wiring every other
// package depends on: pools, the clock, the logger, and the metrics
// registry, built once in cmd/testtool and passed down explicitly.
//
// The teacher's environment-as-singleton design note (SPEC_FULL.md §9)
// is realized here as one fixed-shape struct rather than the teacher's
// generic pluggable Config[T] component map: this driver's singleton
// has a known, small shape, so a type parameter buys nothing a plain
// struct field doesn't already give.
package env

import (
	"github.com/innogames/testtool-sub000/internal/clockwork"
	"github.com/innogames/testtool-sub000/internal/logger"
	"github.com/innogames/testtool-sub000/internal/metrics"
	"github.com/innogames/testtool-sub000/internal/pool"
)

// PoolIndex is the process-wide pool-name lookup, implementing
// pool.Registry so any Pool can resolve its backup-pool reference
// without the pool package needing to know how the full set is stored.
type PoolIndex struct {
	byName map[string]*pool.Pool
	order  []*pool.Pool // registration order, for deterministic scheduling
}

// NewPoolIndex builds an empty index; pools are added with Add as the
// config loader constructs them.
func NewPoolIndex() *PoolIndex {
	return &PoolIndex{byName: make(map[string]*pool.Pool)}
}

// Add registers p under its own name.
func (idx *PoolIndex) Add(p *pool.Pool) {
	idx.byName[p.Name] = p
	idx.order = append(idx.order, p)
}

// Pool implements pool.Registry.
func (idx *PoolIndex) Pool(name string) (*pool.Pool, bool) {
	p, ok := idx.byName[name]
	return p, ok
}

// All returns every pool in registration order (spec.md §4.1's ordering
// guarantee).
func (idx *PoolIndex) All() []*pool.Pool {
	out := make([]*pool.Pool, len(idx.order))
	copy(out, idx.order)
	return out
}

// Environment bundles the process-wide dependencies. Zero value is not
// useful; build with New.
type Environment struct {
	Clock   clockwork.Clock
	Logger  logger.Logger
	Metrics *metrics.Registry
	Pools   *PoolIndex
}

// New builds an Environment with a real clock and the given logger,
// metrics registry and pool index.
func New(log logger.Logger, m *metrics.Registry, pools *PoolIndex) *Environment {
	return &Environment{
		Clock:   clockwork.NewRealClock(),
		Logger:  log,
		Metrics: m,
		Pools:   pools,
	}
}
