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

// Package config loads the structured configuration document from
// spec.md §6 via spf13/viper, the library the broader example corpus
// reaches for, into typed structs the rest of the driver consumes
// directly (no further marshaling at call sites).
package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Defaults from spec.md §6.
const (
	DefaultInterval  = 2 * time.Second
	DefaultMaxFailed = 3
	DefaultTimeout   = 1500 * time.Millisecond
)

// HealthCheck is one health-check entry attached to a pool (applies to
// every node in the pool, per address family available).
type HealthCheck struct {
	Type      string        `mapstructure:"hc_type"`
	Port      int           `mapstructure:"hc_port"`
	Interval  time.Duration `mapstructure:"hc_interval"`
	MaxFailed int           `mapstructure:"hc_max_failed"`
	Timeout   time.Duration `mapstructure:"hc_timeout"`
	Query     string        `mapstructure:"hc_query"`
	Host      string        `mapstructure:"hc_host"`
	OKCodes   []string      `mapstructure:"hc_ok_codes"`
	DBName    string        `mapstructure:"dbname"`
	User      string        `mapstructure:"user"`
	Function  string        `mapstructure:"function"`
}

// Node is one backend entry inside a pool's nodes map.
type Node struct {
	IPv4  string `mapstructure:"ipv4"`
	IPv6  string `mapstructure:"ipv6"`
	State string `mapstructure:"state"` // administrative state at load time
}

// Pool is one virtual service entry.
type Pool struct {
	IPv4Address    string          `mapstructure:"ipv4_address"`
	IPv6Address    string          `mapstructure:"ipv6_address"`
	TableName      string          `mapstructure:"table_name"`
	MinNodes       int             `mapstructure:"min_nodes"`
	MaxNodes       int             `mapstructure:"max_nodes"`
	MinNodesAction string          `mapstructure:"min_nodes_action"`
	BackupPool     string          `mapstructure:"backup_pool"`
	Nodes          map[string]Node `mapstructure:"nodes"`
	HealthChecks   []HealthCheck   `mapstructure:"health_checks"`
}

// Document is the full configuration: pool name -> Pool.
type Document struct {
	Pools map[string]Pool `mapstructure:"pools"`
}

// Load reads and parses the document at path (YAML or JSON, by
// extension), applying spec.md §6's defaults to any health-check field
// left unset.
func Load(path string) (*Document, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	// hc_interval/hc_timeout are documented (spec.md §6) as bare integer
	// seconds/milliseconds, not time.Duration's default nanosecond-or-
	// suffixed-string encoding. Rewrite bare numbers into
	// time.ParseDuration-compatible strings before decoding so
	// "hc_interval: 2" means 2s, not 2ns.
	raw := v.AllSettings()
	normalizeHealthCheckUnits(raw)

	var doc Document
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		Result: &doc,
	})
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	for poolName, p := range doc.Pools {
		for i := range p.HealthChecks {
			hc := &p.HealthChecks[i]
			if hc.Interval == 0 {
				hc.Interval = DefaultInterval
			}
			if hc.MaxFailed == 0 {
				hc.MaxFailed = DefaultMaxFailed
			}
			if hc.Timeout == 0 {
				hc.Timeout = DefaultTimeout
			}
		}
		doc.Pools[poolName] = p
	}

	return &doc, nil
}

// normalizeHealthCheckUnits rewrites every health check's hc_interval and
// hc_timeout entries in place, turning a bare number into the
// time.ParseDuration string spec.md §6 documents it as shorthand for. A
// value already given as a duration string (e.g. "2s") is left untouched.
func normalizeHealthCheckUnits(raw map[string]interface{}) {
	pools, ok := raw["pools"].(map[string]interface{})
	if !ok {
		return
	}
	for _, pv := range pools {
		pool, ok := pv.(map[string]interface{})
		if !ok {
			continue
		}
		hcs, ok := pool["health_checks"].([]interface{})
		if !ok {
			continue
		}
		for _, hcv := range hcs {
			hc, ok := hcv.(map[string]interface{})
			if !ok {
				continue
			}
			bareUnitToDuration(hc, "hc_interval", "s")
			bareUnitToDuration(hc, "hc_timeout", "ms")
		}
	}
}

func bareUnitToDuration(hc map[string]interface{}, key, unit string) {
	switch n := hc[key].(type) {
	case int:
		hc[key] = fmt.Sprintf("%d%s", n, unit)
	case int64:
		hc[key] = fmt.Sprintf("%d%s", n, unit)
	case float64:
		hc[key] = fmt.Sprintf("%g%s", n, unit)
	}
}
