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

// Package metrics exposes the Prometheus collectors described in
// SPEC_FULL.md §4.9: an observability surface the distilled spec is
// silent on but that every comparable driver in the retrieval pack
// ships, served over HTTP on the --metrics-addr address and off unless
// that flag is set.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles every collector the driver updates.
type Registry struct {
	ChecksTotal        *prometheus.CounterVec
	PoolActiveNodes    *prometheus.GaugeVec
	WorkerQueueDepth   prometheus.Gauge
	WorkerSyncFailures *prometheus.CounterVec

	reg *prometheus.Registry
}

// New builds and registers every collector against a fresh registry (not
// the global default, so tests and multiple instances in-process never
// collide).
func New() *Registry {
	r := &Registry{reg: prometheus.NewRegistry()}

	r.ChecksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "testtool_checks_total",
		Help: "Total health checks run, partitioned by pool, node, probe type and result.",
	}, []string{"pool", "node", "probe", "result"})

	r.PoolActiveNodes = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "testtool_pool_active_nodes",
		Help: "Current size of each pool's active node set.",
	}, []string{"pool"})

	r.WorkerQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "testtool_worker_queue_depth",
		Help: "Current depth of the worker handoff channel.",
	})

	r.WorkerSyncFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "testtool_worker_sync_failures_total",
		Help: "Total non-blocking sends to the worker channel that were dropped, by pool.",
	}, []string{"pool"})

	r.reg.MustRegister(r.ChecksTotal, r.PoolActiveNodes, r.WorkerQueueDepth, r.WorkerSyncFailures)
	return r
}

// Handler returns the HTTP handler to mount at e.g. "/metrics".
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
