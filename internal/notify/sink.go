// Package notify delivers user-facing messages produced by the debrid
// components to logs, an in-memory feed and optional webhooks.
package notify

import "log/slog"

// Severity classifies a user-facing message.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityError Severity = "error"
)

// Sink receives user-facing messages. Implementations must be safe for
// concurrent use.
type Sink interface {
	Report(message string, severity Severity)
}

// Func adapts a plain function to a Sink.
type Func func(message string, severity Severity)

func (f Func) Report(message string, severity Severity) {
	f(message, severity)
}

// Noop discards every message.
type Noop struct{}

func (Noop) Report(string, Severity) {}

// Multi fans a message out to every sink in order.
type Multi []Sink

func (m Multi) Report(message string, severity Severity) {
	for _, s := range m {
		if s != nil {
			s.Report(message, severity)
		}
	}
}

// LogSink writes messages to a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

func (l LogSink) Report(message string, severity Severity) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if severity == SeverityError {
		logger.Error("notification", "message", message)
		return
	}
	logger.Info("notification", "message", message)
}
