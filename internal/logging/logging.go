//
// Copyright (c) 2012-2018 Red Hat, Inc.
// This program and the accompanying materials are made
// available under the terms of the Eclipse Public License 2.0
// which is available at https://www.eclipse.org/legal/epl-2.0/
//
// SPDX-License-Identifier: EPL-2.0
//
// Contributors:
//   Red Hat, Inc. - initial API and implementation
//

// Package logging provides the structured logging facade used across the
// synchronizer and the gallery API. It plays the role the teacher's
// common.Broker interface played for pushing progress lines to a Che
// master: a small set of leveled print methods every component calls
// through, backed here by logrus fields instead of a JSON-RPC tunnel.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the facade every component logs through. Component-scoped
// loggers are cheap to create (With) and carry their fields on every line.
type Logger interface {
	Debug(format string, v ...interface{})
	Info(format string, v ...interface{})
	Warn(format string, v ...interface{})
	Error(format string, v ...interface{})
	Fatal(format string, v ...interface{})
	With(fields Fields) Logger
}

// Fields is a shorthand for the structured values attached to a log line.
type Fields map[string]interface{}

type logger struct {
	entry *logrus.Entry
}

// New constructs the root Logger. verbose raises the level to Debug,
// matching the synchronizer's "--verbose diagnostic" CLI flag (spec.md §6).
func New(verbose bool, out io.Writer) Logger {
	if out == nil {
		out = os.Stdout
	}
	base := logrus.New()
	base.SetOutput(out)
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if verbose {
		base.SetLevel(logrus.DebugLevel)
	} else {
		base.SetLevel(logrus.InfoLevel)
	}
	return &logger{entry: logrus.NewEntry(base)}
}

func (l *logger) With(fields Fields) Logger {
	return &logger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

func (l *logger) Debug(format string, v ...interface{}) { l.entry.Debugf(format, v...) }
func (l *logger) Info(format string, v ...interface{})  { l.entry.Infof(format, v...) }
func (l *logger) Warn(format string, v ...interface{})  { l.entry.Warnf(format, v...) }
func (l *logger) Error(format string, v ...interface{}) { l.entry.Errorf(format, v...) }
func (l *logger) Fatal(format string, v ...interface{}) { l.entry.Fatalf(format, v...) }

// Nop returns a Logger that discards everything, for tests that don't care
// about log output but still need to satisfy constructors taking a Logger.
func Nop() Logger {
	base := logrus.New()
	base.SetOutput(io.Discard)
	return &logger{entry: logrus.NewEntry(base)}
}
