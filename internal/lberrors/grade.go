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

// Package lberrors provides the driver's coded, contextual error type
// (SPEC_FULL.md §7), grounded on the teacher's errors package (a
// CodeError numeric code, a wrapping Error with a captured call site and
// a parent chain) but narrowed to this driver's three documented error
// grades instead of the teacher's open HTTP-status-style code space, and
// with its gin/JSON response-abort surface dropped entirely — this
// driver never serves an HTTP response that needs aborting.
package lberrors

// Grade classifies a CodeError into one of the three error grades
// spec.md §7 names: a probe-local failure, a subsystem stall, or a
// fatal invariant violation.
type Grade int

const (
	// GradeProbeLocal covers Fail/Drain causes. These never surface as an
	// Error beyond the owning node; only a probe's Panic-grade faults are
	// ever wrapped here.
	GradeProbeLocal Grade = iota
	// GradeSubsystemStall covers a full worker channel, a non-zero filter
	// command exit, or an absent filter table. Not fatal: the owning pool
	// is marked unsynced and the condition is retried on the next change.
	GradeSubsystemStall
	// GradeFatal covers an impossible invariant (allocation failure, a
	// probe callback firing while not running, the worker dying, or a
	// libpq step-reschedule overflow). Logged at Fatal and the process
	// exits via one of the ExitXxx codes.
	GradeFatal
)

func (g Grade) String() string {
	switch g {
	case GradeProbeLocal:
		return "probe-local"
	case GradeSubsystemStall:
		return "subsystem-stall"
	case GradeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}
