// Package report defines measurement records and the sinks that receive them.
package report

import (
	"context"
	"time"
)

// Kind identifies what a record measured.
type Kind string

const (
	KindLatency   Kind = "latency"
	KindBandwidth Kind = "bandwidth"
)

// Record is a single measurement. Numeric fields are nil when the
// measurement did not produce them.
type Record struct {
	RunID     string
	Host      string
	Kind      Kind
	Timestamp time.Time
	LatencyMs *float64
	DownMbps  *float64
	UpMbps    *float64
	IsUp      bool
	Detail    string
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

// Sink receives records. Implementations handle their own failures.
type Sink interface {
	Report(ctx context.Context, r Record)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ctx context.Context, r Record)

func (f SinkFunc) Report(ctx context.Context, r Record) { f(ctx, r) }

type multi []Sink

// Multi fans a record out to every sink in order. Nil sinks are skipped.
func Multi(sinks ...Sink) Sink {
	var m multi
	for _, s := range sinks {
		if s != nil {
			m = append(m, s)
		}
	}
	return m
}

func (m multi) Report(ctx context.Context, r Record) {
	for _, s := range m {
		s.Report(ctx, r)
	}
}
