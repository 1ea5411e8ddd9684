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

// Package postgres implements the non-blocking libpq handshake probe
// from spec.md §4.2, using jackc/pgx/v5/pgconn — the lowest-level,
// non-pooling driver in the pgx family, the closest Go analogue to the
// original's non-blocking libpq contract.
//
// pgconn itself performs the actual non-blocking I/O: the five-step
// contract (start, poll, send, flush, consume) runs inside
// pgconn.ConnectConfig and ExecParams, with no step type of its own here.
// This package adds the ≤100-reschedule Panic guard (a retry loop over
// errors pgconn.SafeToRetry accepts, bounded by maxReschedules) and the
// "exactly one row, one column, t/f text" result check.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/innogames/testtool-sub000/internal/probe"
)

// maxReschedules bounds in-flight step reschedulings (spec.md §4.2):
// exceeding it reports Panic to guard against livelock.
const maxReschedules = 100

// Task performs one Postgres function-call probe.
type Task struct {
	Host     string
	Port     int // default 5432
	DBName   string
	User     string
	Function string
}

// New builds a Postgres probe task. A zero port defaults to 5432.
func New(host string, port int, dbname, user, function string) *Task {
	if port == 0 {
		port = 5432
	}
	return &Task{Host: host, Port: port, DBName: dbname, User: user, Function: function}
}

func (t *Task) Run(ctx context.Context) probe.Outcome {
	cfg, err := pgconn.ParseConfig(fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s client_encoding=UTF8 application_name=testtool-sub000",
		t.Host, t.Port, t.DBName, t.User,
	))
	if err != nil {
		// Malformed configuration is an internal fault, not a network
		// condition the target can be blamed for.
		return probe.Outcome{Result: probe.Panic, Message: err.Error()}
	}

	// Step 1: start connection. pgconn.ConnectConfig performs the
	// equivalent of PQconnectStart + the polling loop internally; any
	// non-nil error here is reported as Fail.
	conn, err := pgconn.ConnectConfig(ctx, cfg)
	if err != nil {
		return probe.Outcome{Result: probe.Fail, Message: err.Error()}
	}
	defer conn.Close(ctx)

	// Steps 2-4 (poll/send/flush) are folded into pgconn's ExecParams,
	// which internally drives exactly that non-blocking read/write/flush
	// loop. The reschedule guard below only ever counts genuine poll
	// livelock: a transient condition pgconn itself certifies safe to
	// retry (nothing written to the wire yet), never a deterministic
	// query failure. A missing/unprivileged function, bad dbname, or any
	// other query error the target will keep returning forever is a Fail
	// on the first attempt, per spec.md §4.2 ("a probe that cannot even
	// start a request reports Fail, not Panic").
	query := fmt.Sprintf("SELECT %s()", t.Function)

	var lastErr error
	for attempt := 0; attempt < maxReschedules; attempt++ {
		result := conn.ExecParams(ctx, query, nil, nil, nil, nil).Read()
		if result.Err != nil {
			if ctx.Err() != nil {
				return probe.Outcome{Result: probe.Fail, Message: ctx.Err().Error()}
			}
			if !pgconn.SafeToRetry(result.Err) {
				return probe.Outcome{Result: probe.Fail, Message: result.Err.Error()}
			}
			lastErr = result.Err
			continue
		}

		// Step 5: require exactly one row x one column x text 't'/'f'.
		if len(result.Rows) != 1 || len(result.Rows[0]) != 1 {
			return probe.Outcome{Result: probe.Fail, Message: "expected exactly one row, one column"}
		}
		val := string(result.Rows[0][0])
		switch val {
		case "t":
			return probe.Outcome{Result: probe.Pass}
		case "f":
			return probe.Outcome{Result: probe.Fail, Message: "function returned false"}
		default:
			return probe.Outcome{Result: probe.Fail, Message: "unexpected value: " + val}
		}
	}

	return probe.Outcome{Result: probe.Panic, Message: fmt.Sprintf("exceeded %d reschedules: %s", maxReschedules, lastErr)}
}
