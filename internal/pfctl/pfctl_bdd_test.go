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
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/innogames/testtool-sub000/internal/pfctl"
)

// recordingBinary writes a fake pfctl that appends the arguments it was
// invoked with, one call per line, to a log file next to it. Tests
// assert against that log to pin down the exact flag composition
// spec.md §6 requires for each operation.
func recordingBinary() (binPath, logPath string) {
	if runtime.GOOS == "windows" {
		Skip("shell script fakes require a POSIX shell")
	}
	if _, err := exec.LookPath("/bin/sh"); err != nil {
		Skip("no /bin/sh available")
	}
	dir, err := os.MkdirTemp("", "pfctl-bdd-*")
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(func() { os.RemoveAll(dir) })

	logPath = filepath.Join(dir, "invocations.log")
	binPath = filepath.Join(dir, "fakepfctl")
	script := "#!/bin/sh\necho \"$@\" >> " + logPath + "\n"
	Expect(os.WriteFile(binPath, []byte(script), 0755)).To(Succeed())
	return binPath, logPath
}

func lastInvocation(logPath string) string {
	data, err := os.ReadFile(logPath)
	Expect(err).NotTo(HaveOccurred())
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	return lines[len(lines)-1]
}

var _ = Describe("Client command composition", func() {
	var (
		ctx     context.Context
		cancel  context.CancelFunc
		client  *pfctl.Client
		logPath string
	)

	BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
		var bin string
		bin, logPath = recordingBinary()
		client = pfctl.New(bin, nil)
	})

	AfterEach(func() { cancel() })

	Context("KillSrcNodesTo", func() {
		It("issues -K alone when alsoResetStates is false", func() {
			Expect(client.KillSrcNodesTo(ctx, "lb_pool1", "10.0.0.5", false)).To(Succeed())
			Expect(lastInvocation(logPath)).To(Equal("-t lb_pool1 -s 10.0.0.5 -K"))
		})

		It("appends -F state when alsoResetStates is true", func() {
			Expect(client.KillSrcNodesTo(ctx, "lb_pool1", "10.0.0.5", true)).To(Succeed())
			Expect(lastInvocation(logPath)).To(Equal("-t lb_pool1 -s 10.0.0.5 -K -F state"))
		})
	})

	Context("KillStatesToRdr", func() {
		It("always resets state, per spec.md §6", func() {
			Expect(client.KillStatesToRdr(ctx, "lb_pool1", "10.0.0.5")).To(Succeed())
			Expect(lastInvocation(logPath)).To(Equal("-t lb_pool1 -r 10.0.0.5 -K -F state"))
		})
	})

	Context("TableAdd and TableDel", func() {
		It("passes every address through to -T add", func() {
			Expect(client.TableAdd(ctx, "lb_pool1", []string{"10.0.0.1", "10.0.0.2"})).To(Succeed())
			Expect(lastInvocation(logPath)).To(Equal("-t lb_pool1 -T add 10.0.0.1 10.0.0.2"))
		})

		It("passes every address through to -T delete", func() {
			Expect(client.TableDel(ctx, "lb_pool1", []string{"10.0.0.1"})).To(Succeed())
			Expect(lastInvocation(logPath)).To(Equal("-t lb_pool1 -T delete 10.0.0.1"))
		})
	})
})
