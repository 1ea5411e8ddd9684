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

// Package dummy implements the inert test-only probe from spec.md §4.2:
// it terminates with whatever outcome a test harness hands it, and
// exists purely to drive node/pool state machines deterministically in
// tests (and in internal/scheduler's own integration tests).
package dummy

import (
	"context"
	"sync"

	"github.com/innogames/testtool-sub000/internal/probe"
)

// Task is a probe.Task whose result is controlled entirely by Force.
type Task struct {
	mu      sync.Mutex
	result  probe.Result
	message string
}

// New builds a Task that Passes until Force is called.
func New() *Task {
	return &Task{result: probe.Pass}
}

// Force sets the result the next Run call (and every call thereafter,
// until Force is called again) will return.
func (t *Task) Force(r probe.Result, msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.result = r
	t.message = msg
}

func (t *Task) Run(ctx context.Context) probe.Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()
	return probe.Outcome{Result: t.result, Message: t.message}
}
