// Package monitor turns probe and bandwidth results into reported records.
// Its jobs are the callbacks the scheduler fires.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hazz-dev/linkmon/internal/probe"
	"github.com/hazz-dev/linkmon/internal/report"
)

// Prober probes many hosts at once.
type Prober interface {
	ProbeMany(ctx context.Context, hosts []string, samples int, timeout time.Duration, maxConcurrency int) []probe.HostOutcome
}

// LatencySettings controls a LatencyJob.
type LatencySettings struct {
	Targets        []string
	Samples        int
	Timeout        time.Duration
	MaxConcurrency int
}

// LatencyJob probes every target and reports one record per host.
type LatencyJob struct {
	prober   Prober
	settings LatencySettings
	sink     report.Sink
	runID    string
	logger   *slog.Logger
	now      func() time.Time
}

// NewLatencyJob creates a LatencyJob. Pass nil logger to use the default logger.
func NewLatencyJob(p Prober, settings LatencySettings, sink report.Sink, runID string, logger *slog.Logger) *LatencyJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &LatencyJob{
		prober:   p,
		settings: settings,
		sink:     sink,
		runID:    runID,
		logger:   logger,
		now:      time.Now,
	}
}

// Run probes all targets. Hosts that could not be probed at all, such as when
// the ping command is missing, are skipped and their errors returned once
// every other host has been reported.
func (j *LatencyJob) Run(ctx context.Context) error {
	s := j.settings
	results := j.prober.ProbeMany(ctx, s.Targets, s.Samples, s.Timeout, s.MaxConcurrency)

	var errs []error
	for _, res := range results {
		if res.Err != nil {
			errs = append(errs, res.Err)
			continue
		}
		j.sink.Report(ctx, j.record(res.Host, res.Outcome))
	}
	return errors.Join(errs...)
}

func (j *LatencyJob) record(host string, out probe.Outcome) report.Record {
	r := report.Record{
		RunID:     j.runID,
		Host:      host,
		Kind:      report.KindLatency,
		Timestamp: j.now(),
		IsUp:      out.IsUp(),
		Detail:    out.Reason,
	}
	switch out.Kind {
	case probe.KindSamples:
		if mean, ok := out.Mean(); ok {
			r.LatencyMs = report.Float(mean)
		}
	case probe.KindMalformed:
		j.logger.Warn("unexpected ping output",
			"host", host,
			"lines", out.LineCount,
			"tokens", out.TokenCount,
			"samples", j.settings.Samples,
		)
	}
	return r
}
