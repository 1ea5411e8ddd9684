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

// Package logger provides the driver's structured, leveled logging, a
// deliberately small reduction of the teacher's multi-hook logging
// framework down to the single stdout/file sink this driver needs.
//
// Every entry is emitted through logrus with pool, node and probe as
// separate fields, each omitted when empty. Their placement is the
// formatter's: the text formatter prints msg= first and then the fields
// sorted by key. The pool/node/probe-then-message order of SPEC_FULL.md §7
// lives inside the message text, via lberrors.Error.
package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Fields carries the structured context attached to a log entry. Any of
// Pool, Node, Probe may be empty when not applicable to the event.
type Fields struct {
	Pool  string
	Node  string
	Probe string
}

func (f Fields) toLogrus() logrus.Fields {
	lf := logrus.Fields{}
	if f.Pool != "" {
		lf["pool"] = f.Pool
	}
	if f.Node != "" {
		lf["node"] = f.Node
	}
	if f.Probe != "" {
		lf["probe"] = f.Probe
	}
	return lf
}

// Logger is the logging surface used throughout the driver.
type Logger interface {
	Debug(msg string, f Fields)
	Info(msg string, f Fields)
	Warn(msg string, f Fields)
	Error(msg string, f Fields, err error)
	// Fatal logs at fatal level and terminates the process with the given
	// exit code (see SPEC_FULL.md §7 for the code taxonomy).
	Fatal(msg string, f Fields, err error, exitCode int)
	// SetLevel changes the minimum level that is emitted.
	SetLevel(level string)
	// SetVerbose toggles the teacher's verbose>1 style extra chatter
	// (state-unchanged heartbeats on Pass outcomes, scheduling traces).
	SetVerbose(verbose int)
	Verbose() int
}

type lgr struct {
	l       *logrus.Logger
	verbose int
}

// Options configures the sink the logger writes to.
type Options struct {
	// Level is one of debug, info, warn, error.
	Level string
	// JSON selects the JSON formatter (for log shipping); otherwise a
	// compact text formatter is used (for interactive/daemon stdout).
	JSON bool
	// FilePath optionally tees output to a file in addition to stdout.
	FilePath string
}

// New builds a Logger from Options, grounded on the teacher's
// logger.New(ctx)/SetOptions shape but collapsed to a single constructor
// since this driver has exactly one logger instance, not a pool of
// independently configurable sinks.
func New(opt Options) (Logger, error) {
	l := logrus.New()
	l.SetOutput(os.Stdout)

	if opt.JSON {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	lv, err := logrus.ParseLevel(levelOrDefault(opt.Level))
	if err != nil {
		return nil, err
	}
	l.SetLevel(lv)

	if opt.FilePath != "" {
		f, err := os.OpenFile(opt.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
		l.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	return &lgr{l: l}, nil
}

func levelOrDefault(lvl string) string {
	if lvl == "" {
		return "info"
	}
	return lvl
}

func (g *lgr) Debug(msg string, f Fields) { g.l.WithFields(f.toLogrus()).Debug(msg) }
func (g *lgr) Info(msg string, f Fields)  { g.l.WithFields(f.toLogrus()).Info(msg) }
func (g *lgr) Warn(msg string, f Fields)  { g.l.WithFields(f.toLogrus()).Warn(msg) }


func (g *lgr) Error(msg string, f Fields, err error) {
	e := g.l.WithFields(f.toLogrus())
	if err != nil {
		e = e.WithError(err)
	}
	e.Error(msg)
}

func (g *lgr) Fatal(msg string, f Fields, err error, exitCode int) {
	e := g.l.WithFields(f.toLogrus())
	if err != nil {
		e = e.WithError(err)
	}
	e.Error(msg)
	os.Exit(exitCode)
}

func (g *lgr) SetLevel(level string) {
	if lv, err := logrus.ParseLevel(levelOrDefault(level)); err == nil {
		g.l.SetLevel(lv)
	}
}

func (g *lgr) SetVerbose(verbose int) { g.verbose = verbose }
func (g *lgr) Verbose() int           { return g.verbose }
