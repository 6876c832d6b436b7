// Package alert fans operational events out to the operator: log
// lines always, Discord when a webhook is configured.
package alert

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

type Alert struct {
	Severity Severity
	Title    string
	Message  string
	PairID   string
	Time     time.Time
}

type Sink interface {
	Send(ctx context.Context, a Alert) error
}

// Nop discards alerts.
type Nop struct{}

func (Nop) Send(context.Context, Alert) error { return nil }

// LogSink writes alerts to the structured log.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Send(_ context.Context, a Alert) error {
	ev := s.log.Info()
	switch a.Severity {
	case SeverityWarning:
		ev = s.log.Warn()
	case SeverityCritical:
		ev = s.log.Error()
	}
	if a.PairID != "" {
		ev = ev.Str("pair", a.PairID)
	}
	ev.Str("alert", a.Title).Msg(a.Message)
	return nil
}

// MultiSink sends each alert to every sink and reports the combined
// errors. One broken sink never blocks the others.
type MultiSink struct {
	sinks []Sink
}

func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) Send(ctx context.Context, a Alert) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Send(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
