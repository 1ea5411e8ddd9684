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

// CodeError is a numeric error code in one of the three ranges
// SPEC_FULL.md §7 documents: 1000-1999 probe-local, 2000-2999 subsystem
// stall, 3000-3999 fatal invariant violation. Unlike the teacher's
// open-ended HTTP-status-style CodeError space, every code this driver
// raises is one of the constants below — there is no registration API
// for callers to extend it, since this driver has a fixed, known set of
// fault sites.
type CodeError uint16

// UnknownError is the zero value: no specific code could be determined.
const UnknownError CodeError = 0

// Probe-local (1000-1999): only a probe's Panic outcome ever reaches
// lberrors.New; Fail/Drain stay as plain probe.Outcome.Message strings.
const (
	CodeProbeTimeout CodeError = iota + 1000
	CodeProbePanic
)

// Subsystem stall (2000-2999): worker/filter conditions that mark a pool
// unsynced but never terminate the process.
const (
	CodeWorkerChannelFull CodeError = iota + 2000
	CodeFilterCommandFailed
	CodeFilterTableAbsent
)

// Fatal invariant violation (3000-3999): conditions that terminate the
// process for supervisor restart.
const (
	CodeAllocationFailure CodeError = iota + 3000
	CodeImpossibleState
	CodeWorkerDead
	CodeLibpqRescheduleOverflow
)

var codeMessages = map[CodeError]string{
	CodeProbeTimeout:            "probe timed out",
	CodeProbePanic:              "probe reported an internal fault",
	CodeWorkerChannelFull:       "worker handoff channel full",
	CodeFilterCommandFailed:     "filter command returned non-zero",
	CodeFilterTableAbsent:       "filter table absent",
	CodeAllocationFailure:       "allocation failure",
	CodeImpossibleState:         "impossible probe-callback state",
	CodeWorkerDead:              "worker process is gone",
	CodeLibpqRescheduleOverflow: "exceeded maximum libpq step reschedulings",
}

// Grade classifies c into one of the three documented ranges. A code
// outside all three ranges (should never happen, given the fixed
// constant set above) is treated as probe-local, the least severe.
func (c CodeError) Grade() Grade {
	switch {
	case c >= 1000 && c < 2000:
		return GradeProbeLocal
	case c >= 2000 && c < 3000:
		return GradeSubsystemStall
	case c >= 3000 && c < 4000:
		return GradeFatal
	default:
		return GradeProbeLocal
	}
}

// defaultMessage returns the registered message for c, or a generic
// fallback for UnknownError / an unregistered code.
func (c CodeError) defaultMessage() string {
	if c == UnknownError {
		return "unknown error"
	}
	if m, ok := codeMessages[c]; ok {
		return m
	}
	return "unknown error"
}

func (c CodeError) Uint16() uint16 { return uint16(c) }
