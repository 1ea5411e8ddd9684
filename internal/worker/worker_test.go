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

package worker_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/innogames/testtool-sub000/internal/node"
	"github.com/innogames/testtool-sub000/internal/pfctl"
	"github.com/innogames/testtool-sub000/internal/worker"
)

// fakePfctl writes a shell script that appends every invocation's
// arguments to logPath (one line per call) and, if a "table_show"
// reply has been staged, echoes it back to stdout.
func fakePfctl(t *testing.T, logPath, showReply string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fakes require a POSIX shell")
	}
	if _, err := exec.LookPath("/bin/sh"); err != nil {
		t.Skip("no /bin/sh available")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "fakepfctl")
	script := `#!/bin/sh
echo "$@" >> "` + logPath + `"
case "$*" in
  *-T\ show*) printf '%s' "` + showReply + `" ;;
esac
`
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestReconcileAddsAndDeletes(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "calls.log")
	bin := fakePfctl(t, logFile, "10.0.0.1\n")

	client := pfctl.New(bin, nil)
	sender := worker.NewSender(nil, nil)
	w := worker.NewWorker(sender, client, nil)

	n1 := node.New("n1", "10.0.0.2", "")
	n2 := node.New("n2", "10.0.0.1", "")

	sender.Send("web", "web_table", []*node.Node{n1, n2}, []*node.Node{n1})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	runCtx, runCancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		w.Run(runCtx)
		close(done)
	}()

	time.Sleep(200 * time.Millisecond)
	runCancel()
	<-done

	raw, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	out := string(raw)
	if !strings.Contains(out, "10.0.0.2") {
		t.Fatalf("expected an add for 10.0.0.2, log was: %q", out)
	}
	if !strings.Contains(out, "10.0.0.1") {
		t.Fatalf("expected a delete touching 10.0.0.1, log was: %q", out)
	}
}

func TestSendDropsWhenChannelFull(t *testing.T) {
	sender := worker.NewSender(nil, nil)
	n := node.New("n1", "10.0.0.1", "")

	accepted := 0
	for i := 0; i < 20; i++ {
		if sender.Send("web", "web_table", []*node.Node{n}, []*node.Node{n}) {
			accepted++
		}
	}
	if accepted == 0 {
		t.Fatal("expected at least the queue-depth worth of sends to be accepted")
	}
	if accepted >= 20 {
		t.Fatal("expected some sends to be dropped once the bounded channel fills")
	}
}

func TestAliveReflectsRunLoopExit(t *testing.T) {
	sender := worker.NewSender(nil, nil)
	client := pfctl.New("/bin/true", nil)
	w := worker.NewWorker(sender, client, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	if !w.Alive() {
		t.Fatal("expected worker to report alive while running")
	}
	cancel()
	<-done
	if w.Alive() {
		t.Fatal("expected worker to report not alive after Run returns")
	}
}
