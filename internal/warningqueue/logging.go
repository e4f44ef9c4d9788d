// GitSentry - GitHub Events Monitoring and Warning Pipeline
// Copyright 2026 Marek V. (marekvw)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marekvw/gitsentry

package warningqueue

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"

	"github.com/marekvw/gitsentry/internal/logging"
)

// ZerologAdapter bridges Watermill's logging interface onto the global
// zerolog logger so queue internals share the application log stream.
type ZerologAdapter struct {
	fields watermill.LogFields
}

// NewLoggerAdapter returns a Watermill logger backed by zerolog.
func NewLoggerAdapter() watermill.LoggerAdapter {
	return &ZerologAdapter{}
}

func (a *ZerologAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.emit(logging.Error().Err(err), msg, fields)
}

func (a *ZerologAdapter) Info(msg string, fields watermill.LogFields) {
	a.emit(logging.Info(), msg, fields)
}

func (a *ZerologAdapter) Debug(msg string, fields watermill.LogFields) {
	a.emit(logging.Debug(), msg, fields)
}

func (a *ZerologAdapter) Trace(msg string, fields watermill.LogFields) {
	a.emit(logging.Trace(), msg, fields)
}

func (a *ZerologAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &ZerologAdapter{fields: a.fields.Add(fields)}
}

func (a *ZerologAdapter) emit(ev *zerolog.Event, msg string, fields watermill.LogFields) {
	for k, v := range a.fields {
		ev = ev.Interface(k, v)
	}
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}
