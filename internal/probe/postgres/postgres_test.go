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

package postgres_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/innogames/testtool-sub000/internal/probe"
	"github.com/innogames/testtool-sub000/internal/probe/postgres"
)

// These tests only exercise the connect-failure path: spinning up a real
// Postgres wire-protocol server is out of scope, but refusing a TCP
// connection is enough to verify the Fail contract and defaults without
// a live database.
func TestFailOnConnectionRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	addr := l.Addr().String()
	host, port, _ := net.SplitHostPort(addr)
	l.Close() // nothing is listening once we connect

	task := postgres.New(host, mustAtoi(t, port), "testdb", "testtool", "testtool_check")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	o := task.Run(ctx)
	if o.Result != probe.Fail {
		t.Fatalf("expected Fail on refused connection, got %s (%s)", o.Result, o.Message)
	}
}

func TestDefaultPort(t *testing.T) {
	task := postgres.New("127.0.0.1", 0, "testdb", "testtool", "testtool_check")
	if task.Port != 5432 {
		t.Fatalf("expected default port 5432, got %d", task.Port)
	}
}

func mustAtoi(t *testing.T, s string) int {
	t.Helper()
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			t.Fatalf("invalid port %q", s)
		}
		n = n*10 + int(c-'0')
	}
	return n
}
