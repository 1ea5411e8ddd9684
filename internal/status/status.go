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

// Package status writes the periodic, atomically-rewritten status file
// consumed by external monitoring (spec.md §6, §8): one line per pool,
// preceded by a human-readable timestamped header.
package status

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// BackupState labels a pool's backup-pool posture in the status line.
type BackupState string

const (
	BackupNone       BackupState = "none"
	BackupConfigured BackupState = "configured"
	BackupActive     BackupState = "active"
)

// PoolStatus is one pool's reported snapshot.
type PoolStatus struct {
	TableName  string
	NodesAlive int
	Backup     BackupState
}

// Source supplies the current snapshot at write time. cmd/testtool
// (poolSource) implements this over its live pool index so Writer never
// needs to know about internal/pool directly.
type Source interface {
	Snapshot() []PoolStatus
}

// Writer rewrites Path every Interval with the current Source snapshot.
type Writer struct {
	Path     string
	Interval time.Duration
	Source   Source
	Now      func() time.Time // overridable for tests
}

// New builds a Writer with a 5-second interval, matching spec.md §6.
func New(path string, source Source) *Writer {
	return &Writer{Path: path, Interval: 5 * time.Second, Source: source, Now: time.Now}
}

// Run rewrites the status file on every tick until ctx-equivalent stop
// is signalled by closing stop.
func (w *Writer) Run(stop <-chan struct{}) {
	t := time.NewTicker(w.Interval)
	defer t.Stop()
	w.WriteOnce()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			w.WriteOnce()
		}
	}
}

// WriteOnce renders and atomically installs one snapshot, regardless of
// the ticker; exported so callers (and SIGUSR1-style reload handlers)
// can force an immediate refresh.
func (w *Writer) WriteOnce() error {
	now := w.Now
	if now == nil {
		now = time.Now
	}
	snap := w.Source.Snapshot()
	sort.Slice(snap, func(i, j int) bool { return snap[i].TableName < snap[j].TableName })

	var buf []byte
	buf = append(buf, fmt.Sprintf("# testtool status as of %s\n", now().Format(time.RFC3339))...)
	for _, s := range snap {
		buf = append(buf, fmt.Sprintf("lbpool: %s nodes_alive: %d backup_pool: %s\n", s.TableName, s.NodesAlive, s.Backup)...)
	}

	return atomicWrite(w.Path, buf)
}

// atomicWrite writes to a temp file in the same directory, then renames
// it over Path, so readers never observe a partially-written file.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".status-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}
