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

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/innogames/testtool-sub000/internal/config"
)

const sampleYAML = `
pools:
  web:
    ipv4_address: 192.0.2.1
    table_name: web_table
    min_nodes: 2
    max_nodes: 0
    min_nodes_action: force_up
    nodes:
      node1:
        ipv4: 192.0.2.10
        state: online
      node2:
        ipv4: 192.0.2.11
        state: online
    health_checks:
      - hc_type: http
        hc_port: 80
        hc_ok_codes: ["200", "204"]
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "testtool.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadParsesPoolsAndNodes(t *testing.T) {
	doc, err := config.Load(writeSample(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	web, ok := doc.Pools["web"]
	if !ok {
		t.Fatal("expected pool \"web\"")
	}
	if web.MinNodes != 2 || web.MinNodesAction != "force_up" {
		t.Fatalf("unexpected pool fields: %+v", web)
	}
	if len(web.Nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(web.Nodes))
	}
	if web.Nodes["node1"].IPv4 != "192.0.2.10" {
		t.Fatalf("unexpected node1: %+v", web.Nodes["node1"])
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	doc, err := config.Load(writeSample(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	hc := doc.Pools["web"].HealthChecks[0]
	if hc.Interval != config.DefaultInterval {
		t.Fatalf("expected default interval %s, got %s", config.DefaultInterval, hc.Interval)
	}
	if hc.MaxFailed != config.DefaultMaxFailed {
		t.Fatalf("expected default max_failed %d, got %d", config.DefaultMaxFailed, hc.MaxFailed)
	}
	if hc.Timeout != config.DefaultTimeout {
		t.Fatalf("expected default timeout %s, got %s", config.DefaultTimeout, hc.Timeout)
	}
	if len(hc.OKCodes) != 2 {
		t.Fatalf("expected configured ok codes to survive, got %v", hc.OKCodes)
	}
}

const bareUnitYAML = `
pools:
  web:
    ipv4_address: 192.0.2.1
    table_name: web_table
    nodes:
      node1:
        ipv4: 192.0.2.10
    health_checks:
      - hc_type: tcp
        hc_port: 80
        hc_interval: 2
        hc_timeout: 1500
`

// hc_interval/hc_timeout are documented (spec.md §6) as bare integer
// seconds/milliseconds; a plain time.Duration mapstructure decode would
// otherwise read "2" as 2 nanoseconds.
func TestLoadDecodesBareIntervalAndTimeoutInDocumentedUnits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "testtool.yaml")
	if err := os.WriteFile(path, []byte(bareUnitYAML), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	doc, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	hc := doc.Pools["web"].HealthChecks[0]
	if hc.Interval != 2*time.Second {
		t.Fatalf("expected hc_interval: 2 to decode as 2s, got %s", hc.Interval)
	}
	if hc.Timeout != 1500*time.Millisecond {
		t.Fatalf("expected hc_timeout: 1500 to decode as 1500ms, got %s", hc.Timeout)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}
