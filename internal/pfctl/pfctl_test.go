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

package pfctl_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/innogames/testtool-sub000/internal/pfctl"
)

// fakeBinary writes a tiny shell script standing in for pfctl: it just
// echoes canned table_show output, regardless of arguments, so these
// tests exercise the output-parsing contract without a real pf(4).
func fakeBinary(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fakes require a POSIX shell")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "fakepfctl")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0755); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := exec.LookPath("/bin/sh"); err != nil {
		t.Skip("no /bin/sh available")
	}
	return path
}

func TestTableShowDropsInvalidLines(t *testing.T) {
	bin := fakeBinary(t, `echo "10.0.0.1"; echo "not-an-ip"; echo "2001:db8::1"`)
	c := pfctl.New(bin, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	addrs, err := c.TableShow(ctx, "lb_pool1")
	if err != nil {
		t.Fatalf("TableShow: %v", err)
	}
	if len(addrs) != 2 {
		t.Fatalf("expected 2 valid addresses, got %d: %v", len(addrs), addrs)
	}
}

func TestTableAddNoopOnEmpty(t *testing.T) {
	bin := fakeBinary(t, `exit 1`) // would fail if actually invoked
	c := pfctl.New(bin, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := c.TableAdd(ctx, "lb_pool1", nil); err != nil {
		t.Fatalf("expected no-op on empty address list, got %v", err)
	}
}

func TestRunPropagatesCommandFailure(t *testing.T) {
	bin := fakeBinary(t, `echo "boom" 1>&2; exit 1`)
	c := pfctl.New(bin, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := c.TableAdd(ctx, "lb_pool1", []string{"10.0.0.1"}); err == nil {
		t.Fatal("expected error from failing command")
	}
}
