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
	"errors"
	"strings"
	"testing"
)

func TestCodeGradeRanges(t *testing.T) {
	cases := []struct {
		code  CodeError
		grade Grade
	}{
		{CodeProbeTimeout, GradeProbeLocal},
		{CodeProbePanic, GradeProbeLocal},
		{CodeWorkerChannelFull, GradeSubsystemStall},
		{CodeFilterCommandFailed, GradeSubsystemStall},
		{CodeFilterTableAbsent, GradeSubsystemStall},
		{CodeAllocationFailure, GradeFatal},
		{CodeImpossibleState, GradeFatal},
		{CodeWorkerDead, GradeFatal},
		{CodeLibpqRescheduleOverflow, GradeFatal},
	}
	for _, c := range cases {
		if got := c.code.Grade(); got != c.grade {
			t.Errorf("%d.Grade() = %v, want %v", c.code, got, c.grade)
		}
	}
}

func TestErrorDefaultMessage(t *testing.T) {
	e := New(CodeWorkerChannelFull, "", nil)
	if e.Msg != codeMessages[CodeWorkerChannelFull] {
		t.Errorf("Msg = %q, want default message", e.Msg)
	}
	if e.Grade() != GradeSubsystemStall {
		t.Errorf("Grade() = %v, want GradeSubsystemStall", e.Grade())
	}
}

func TestErrorStringOrderAndOmission(t *testing.T) {
	e := New(CodeFilterCommandFailed, "table_del failed", nil).WithContext("web", "lbnode1", "")
	got := e.Error()
	if got != "pool=web node=lbnode1 table_del failed" {
		t.Errorf("Error() = %q", got)
	}

	e2 := New(CodeProbePanic, "boom", nil).WithContext("", "", "tcp")
	if got := e2.Error(); got != "probe=tcp boom" {
		t.Errorf("Error() = %q, want field-omitted form", got)
	}
}

func TestErrorUnwrap(t *testing.T) {
	root := errors.New("dial tcp: connection refused")
	e := New(CodeFilterCommandFailed, "table_show failed", root)
	if !errors.Is(e, root) {
		t.Fatal("errors.Is should see through Unwrap to the parent")
	}
}

func TestIncludeTraceToggle(t *testing.T) {
	defer SetIncludeTrace(IncludeTrace())
	SetIncludeTrace(false)
	e := New(CodeWorkerDead, "worker goroutine is gone", nil)
	if strings.Contains(e.Error(), "error_test.go") {
		t.Fatal("trace should be omitted when disabled")
	}

	SetIncludeTrace(true)
	if !strings.Contains(e.Error(), "error_test.go") {
		t.Fatal("trace should be present when enabled")
	}
}

func TestExitCodeFor(t *testing.T) {
	if ExitCodeFor(CodeProbePanic) != ExitProbePanic {
		t.Fatal("probe panic exit code mismatch")
	}
	if ExitCodeFor(CodeWorkerDead) != ExitWorkerDead {
		t.Fatal("worker dead exit code mismatch")
	}
	if ExitCodeFor(CodeImpossibleState) != ExitFatalInvariant {
		t.Fatal("other fatal invariant exit code mismatch")
	}
}
