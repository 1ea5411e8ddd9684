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

// Package tcp implements the TCP-connect probe from spec.md §4.2,
// grounded on original_source/src/healthcheck_tcp.cpp's single
// HC_PASS/HC_FAIL branch (connect succeeds or it doesn't; refused,
// timeout, and unreachable all fold into Fail).
package tcp

import (
	"context"
	"fmt"
	"net"

	"github.com/innogames/testtool-sub000/internal/probe"
)

// Task dials (address, port) once per Run.
type Task struct {
	Address string
	Port    int
	Family  string // "tcp4" or "tcp6"; "tcp" lets the resolver pick.
}

// New builds a TCP probe task.
func New(address string, port int, family string) *Task {
	if family == "" {
		family = "tcp"
	}
	return &Task{Address: address, Port: port, Family: family}
}

func (t *Task) Run(ctx context.Context) probe.Outcome {
	var d net.Dialer
	conn, err := d.DialContext(ctx, t.Family, fmt.Sprintf("%s:%d", t.Address, t.Port))
	if err != nil {
		return probe.Outcome{Result: probe.Fail, Message: err.Error()}
	}
	_ = conn.Close()
	return probe.Outcome{Result: probe.Pass}
}
