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

package lberrors

import (
	"fmt"
	"runtime"
)

// Error is a coded, contextual error. It carries the pool/node/probe
// identifiers the "machine-parseable" rule in spec.md §7 requires, an
// optional parent (the error it wraps), and the call site that raised
// it — grounded on the teacher's Error (code + message + parent chain +
// captured runtime.Frame).
type Error struct {
	Code CodeError
	Msg  string

	// Pool, Node, Probe are the optional identifiers rendered into
	// Error()'s "pool=... node=... probe=..." prefix; each is omitted
	// when empty.
	Pool  string
	Node  string
	Probe string

	parent error
	frame  runtime.Frame
}

// New builds an Error at the given code, capturing the immediate
// caller's frame. An empty msg falls back to the code's registered
// message; parent may be nil.
func New(code CodeError, msg string, parent error) *Error {
	if msg == "" {
		msg = code.defaultMessage()
	}
	return &Error{Code: code, Msg: msg, parent: parent, frame: callerFrame(2)}
}

// Newf is New with fmt.Sprintf-style formatting of msg.
func Newf(code CodeError, parent error, format string, args ...interface{}) *Error {
	e := New(code, fmt.Sprintf(format, args...), parent)
	e.frame = callerFrame(2)
	return e
}

// WithContext attaches the pool/node/probe identifiers this error
// occurred under, returning the same *Error for chaining at the call
// site, e.g. lberrors.New(...).WithContext(poolName, nodeName, "").
func (e *Error) WithContext(pool, node, probe string) *Error {
	e.Pool, e.Node, e.Probe = pool, node, probe
	return e
}

// Grade classifies this error per spec.md §7.
func (e *Error) Grade() Grade { return e.Code.Grade() }

// Error implements the error interface, formatting
// "pool=<name> node=<name> probe=<type> <message>" with any empty
// field omitted — the order SPEC_FULL.md §7 requires for machine
// parseability. When trace mode is enabled (SetIncludeTrace), the
// captured call site is appended in parentheses.
func (e *Error) Error() string {
	s := ""
	if e.Pool != "" {
		s += "pool=" + e.Pool + " "
	}
	if e.Node != "" {
		s += "node=" + e.Node + " "
	}
	if e.Probe != "" {
		s += "probe=" + e.Probe + " "
	}
	s += e.Msg
	if includeTrace {
		s += fmt.Sprintf(" (%s)", e.Location())
	}
	return s
}

// Unwrap exposes the wrapped parent error to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.parent }

// Location returns "file:line" of the call site that created this
// Error.
func (e *Error) Location() string {
	if e.frame.File == "" {
		return "unknown:0"
	}
	return fmt.Sprintf("%s:%d", e.frame.File, e.frame.Line)
}

// callerFrame walks up skip frames from its own caller and returns the
// resulting runtime.Frame; skip=2 from New/Newf lands on their caller.
func callerFrame(skip int) runtime.Frame {
	pc := make([]uintptr, 1)
	n := runtime.Callers(skip+1, pc)
	if n == 0 {
		return runtime.Frame{}
	}
	frames := runtime.CallersFrames(pc[:n])
	f, _ := frames.Next()
	return f
}
