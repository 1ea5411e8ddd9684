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

package http_test

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/innogames/testtool-sub000/internal/probe"
	hc "github.com/innogames/testtool-sub000/internal/probe/http"
)

func serveOnce(t *testing.T, response string) (host string, port int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		defer ln.Close()
		_, _ = bufio.NewReader(conn).ReadString('\n')
		_, _ = conn.Write([]byte(response))
	}()
	h, p, _ := net.SplitHostPort(ln.Addr().String())
	port, _ = strconv.Atoi(p)
	return h, port
}

func TestPassOn200(t *testing.T) {
	host, port := serveOnce(t, "HTTP/1.1 200 OK\r\n\r\n")

	task := hc.New(host, port, false, "HEAD /", "example.com", nil, hc.TemplateVars{})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	o := task.Run(ctx)
	if o.Result != probe.Pass {
		t.Fatalf("expected Pass, got %s (%s)", o.Result, o.Message)
	}
}

func TestFailOnWrongCode(t *testing.T) {
	host, port := serveOnce(t, "HTTP/1.1 503 Service Unavailable\r\n\r\n")

	task := hc.New(host, port, false, "HEAD /", "example.com", nil, hc.TemplateVars{})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	o := task.Run(ctx)
	if o.Result != probe.Fail || o.Message != "HTTP code 503" {
		t.Fatalf("expected Fail with code 503, got %+v", o)
	}
}

func TestNewRetainsTemplateVars(t *testing.T) {
	task := hc.New("10.0.0.1", 80, false, "GET /{POOL_NAME}/{NODE_NAME}", "h", nil, hc.TemplateVars{
		PoolName: "web",
		NodeName: "lbnode1",
	})
	_ = task // only checks that New keeps Vars on the task; substitution
	// itself is not exercised here.
	if task.Vars.PoolName != "web" || task.Vars.NodeName != "lbnode1" {
		t.Fatal("expected template vars to be retained on the task")
	}
}
