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

// Process exit codes for the fatal triggers named in spec.md §4.2/§4.3/
// §4.6/§7. internal/scheduler passes one of these (via ExitCodeFor) to
// Logger.Fatal, which logs the GradeFatal Error and exits with it.
const (
	// ExitProbePanic is used when a probe reports Panic (spec.md §4.2/
	// §4.3): allocation failure or an impossible branch inside a probe
	// implementation.
	ExitProbePanic = 2
	// ExitWorkerDead is used when the scheduler's liveness poll finds the
	// worker goroutine gone (spec.md §4.6).
	ExitWorkerDead = 3
	// ExitFatalInvariant is used for every other fatal invariant
	// violation (e.g. a probe callback firing while not running, or a
	// libpq step-reschedule overflow).
	ExitFatalInvariant = 4
)

// ExitCodeFor returns the documented exit code for a GradeFatal code,
// or ExitFatalInvariant for anything it doesn't specifically recognize.
func ExitCodeFor(code CodeError) int {
	switch code {
	case CodeProbePanic:
		return ExitProbePanic
	case CodeWorkerDead:
		return ExitWorkerDead
	default:
		return ExitFatalInvariant
	}
}
