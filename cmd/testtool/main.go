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

// Command testtool is the driver's process entrypoint: it loads
// configuration, builds the object graph via internal/builder, and runs
// the scheduler and worker goroutines until told to stop.
//
// Grounded on cuemby-warren/cmd/warren/main.go's plain spf13/cobra
// layout (root command, persistent flags, signal.Notify-driven
// shutdown) rather than the teacher's own internal/cobra package, which
// is built around an interactive bubbletea scaffold this daemon has no
// use for.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/innogames/testtool-sub000/internal/builder"
	"github.com/innogames/testtool-sub000/internal/config"
	"github.com/innogames/testtool-sub000/internal/env"
	"github.com/innogames/testtool-sub000/internal/logger"
	"github.com/innogames/testtool-sub000/internal/metrics"
	"github.com/innogames/testtool-sub000/internal/pfctl"
	"github.com/innogames/testtool-sub000/internal/pool"
	"github.com/innogames/testtool-sub000/internal/scheduler"
	"github.com/innogames/testtool-sub000/internal/status"
	"github.com/innogames/testtool-sub000/internal/worker"
)

var (
	flagConfig      string
	flagStatusFile  string
	flagPfctlBin    string
	flagMetricsAddr string
	flagLogLevel    string
	flagLogJSON     bool
	flagVerbose     int
	flagDryRun      bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "testtool",
	Short: "Active health-check driver for an IP-level load balancer",
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&flagConfig, "config", "/etc/testtool/testtool.yaml", "path to the pool/node/health-check configuration file")
	runCmd.Flags().StringVar(&flagStatusFile, "status-file", "/var/run/testtool.status", "path to the periodically rewritten status file")
	runCmd.Flags().StringVar(&flagPfctlBin, "pfctl-binary", "pfctl", "packet-filter CLI binary to shell out to")
	runCmd.Flags().StringVar(&flagMetricsAddr, "metrics-addr", "", "address to serve /metrics on (disabled if empty)")
	runCmd.Flags().StringVar(&flagLogLevel, "log-level", "info", "log level: debug, info, warn, error")
	runCmd.Flags().BoolVar(&flagLogJSON, "log-json", false, "emit JSON-formatted log lines")
	runCmd.Flags().CountVarP(&flagVerbose, "verbose", "v", "increase scheduling/heartbeat chatter (repeatable)")
	runCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "load and build the configuration, then exit without running checks")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the health-check scheduler until stopped",
	RunE:  runE,
}

func runE(cmd *cobra.Command, args []string) error {
	log, err := logger.New(logger.Options{Level: flagLogLevel, JSON: flagLogJSON})
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	log.SetVerbose(flagVerbose)

	doc, err := config.Load(flagConfig)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	m := metrics.New()

	result, err := builder.Build(doc, log, m)
	if err != nil {
		return fmt.Errorf("builder: %w", err)
	}

	if flagDryRun {
		log.Info(fmt.Sprintf("dry run: %d pools, %d probe bindings built successfully", len(result.Env.Pools.All()), len(result.Bindings)), logger.Fields{})
		return nil
	}

	filter := pfctl.New(flagPfctlBin, log)
	w := worker.NewWorker(result.Sender, filter, log)

	sched := scheduler.New(result.Env, result.Bindings, w, result.ICMP, icmpTimeout(doc))

	statusWriter := status.New(flagStatusFile, poolSource{result.Env.Pools})
	statusStop := make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())

	if flagMetricsAddr != "" {
		go serveMetrics(flagMetricsAddr, m, log)
	}

	go w.Run(ctx)
	go sched.Run(ctx)
	go statusWriter.Run(statusStop)

	log.Info(fmt.Sprintf("testtool started: config=%s pools=%d", flagConfig, len(result.Env.Pools.All())), logger.Fields{})

	waitForSignal(ctx, cancel, sched, flagConfig, log)

	close(statusStop)
	sched.Stop()
	log.Info("testtool stopped", logger.Fields{})
	return nil
}

// waitForSignal blocks until SIGTERM/SIGINT requests a graceful stop,
// reloading admin state on every SIGUSR1 in between (spec.md §6) without
// returning, since a reload must not end the process.
func waitForSignal(ctx context.Context, cancel context.CancelFunc, sched *scheduler.Scheduler, configPath string, log logger.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGUSR1)
	defer signal.Stop(sigCh)

	for {
		select {
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGUSR1:
				reload(sched, configPath, log)
			default:
				log.Info("received shutdown signal", logger.Fields{})
				cancel()
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// reload re-reads configPath and queues it for the scheduler to apply
// administrative-state changes on its next tick (spec.md §6). A parse
// failure is logged and otherwise ignored: the process keeps running on
// its last-known-good configuration rather than dying on a bad reload.
func reload(sched *scheduler.Scheduler, configPath string, log logger.Logger) {
	doc, err := config.Load(configPath)
	if err != nil {
		log.Error(fmt.Sprintf("reload: failed to read %s, keeping current state", configPath), logger.Fields{}, err)
		return
	}
	sched.RequestReload(doc)
	log.Info("reload: queued for next tick", logger.Fields{})
}

// icmpTimeout picks the longest hc_timeout configured on any ping
// health check, and never less than config.DefaultTimeout, since
// internal/icmpsock's finalize sweep (spec.md §9) runs on one shared
// deadline for the whole process. Each ICMP probe's own context.Context
// still carries its individual timeout, as for every other protocol.
func icmpTimeout(doc *config.Document) time.Duration {
	longest := config.DefaultTimeout
	for _, p := range doc.Pools {
		for _, hc := range p.HealthChecks {
			if hc.Type == "ping" && hc.Timeout > longest {
				longest = hc.Timeout
			}
		}
	}
	return longest
}

func serveMetrics(addr string, m *metrics.Registry, log logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error(fmt.Sprintf("metrics listener on %s exited", addr), logger.Fields{}, err)
	}
}

// poolSource adapts env.PoolIndex to status.Source.
type poolSource struct {
	idx *env.PoolIndex
}

func (s poolSource) Snapshot() []status.PoolStatus {
	pools := s.idx.All()
	out := make([]status.PoolStatus, 0, len(pools))
	for _, p := range pools {
		out = append(out, status.PoolStatus{
			TableName:  p.TableName,
			NodesAlive: len(p.Active()),
			Backup:     backupState(p),
		})
	}
	return out
}

func backupState(p *pool.Pool) status.BackupState {
	switch {
	case p.BackupPoolName == "":
		return status.BackupNone
	case p.BackupPoolActive():
		return status.BackupActive
	default:
		return status.BackupConfigured
	}
}
