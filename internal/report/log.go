package report

import (
	"context"
	"fmt"
	"log/slog"
)

// LogSink writes one console line per record.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink. Pass nil logger to use the default logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Report(ctx context.Context, r Record) {
	level := slog.LevelInfo
	if r.Kind == KindLatency && r.IsUp && r.LatencyMs == nil {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, Line(r), "run_id", r.RunID, "host", r.Host)
}

// Line renders a record the way it is printed on the console.
func Line(r Record) string {
	switch r.Kind {
	case KindBandwidth:
		if !r.IsUp {
			return "BANDWIDTH  : no connection"
		}
		line := "BANDWIDTH  :"
		if r.DownMbps != nil {
			line += fmt.Sprintf(" %.3f mbits down", *r.DownMbps)
		}
		if r.UpMbps != nil {
			line += fmt.Sprintf(" %.3f mbits up", *r.UpMbps)
		}
		return line
	default:
		switch {
		case !r.IsUp:
			return fmt.Sprintf("LATENCY    : no connection to %s", r.Host)
		case r.LatencyMs == nil:
			return fmt.Sprintf("LATENCY    : unreadable reply from %s: %s", r.Host, r.Detail)
		default:
			return fmt.Sprintf("LATENCY    : %.2f ms to %s", *r.LatencyMs, r.Host)
		}
	}
}
