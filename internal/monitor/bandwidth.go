package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazz-dev/linkmon/internal/bandwidth"
	"github.com/hazz-dev/linkmon/internal/report"
)

// BandwidthJob measures download then upload throughput and reports one record.
type BandwidthJob struct {
	meter  bandwidth.Meter
	host   string
	sink   report.Sink
	runID  string
	logger *slog.Logger
	now    func() time.Time
}

// NewBandwidthJob creates a BandwidthJob. host labels the records, usually
// the download endpoint's host name.
func NewBandwidthJob(meter bandwidth.Meter, host string, sink report.Sink, runID string, logger *slog.Logger) *BandwidthJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &BandwidthJob{
		meter:  meter,
		host:   host,
		sink:   sink,
		runID:  runID,
		logger: logger,
		now:    time.Now,
	}
}

// Run takes one measurement. An unreachable endpoint is reported as a down
// record; any other failure is returned.
func (j *BandwidthJob) Run(ctx context.Context) error {
	r := report.Record{
		RunID: j.runID,
		Host:  j.host,
		Kind:  report.KindBandwidth,
	}

	down, err := j.meter.MeasureDownloadMbps(ctx)
	if err != nil {
		return j.fail(ctx, r, "download", err)
	}
	r.DownMbps = report.Float(down)

	up, err := j.meter.MeasureUploadMbps(ctx)
	switch {
	case errors.Is(err, bandwidth.ErrNotConfigured):
		j.logger.Debug("upload endpoint not configured, skipping upload")
	case err != nil:
		return j.fail(ctx, r, "upload", err)
	default:
		r.UpMbps = report.Float(up)
	}

	r.Timestamp = j.now()
	r.IsUp = true
	j.sink.Report(ctx, r)
	return nil
}

func (j *BandwidthJob) fail(ctx context.Context, r report.Record, direction string, err error) error {
	if !errors.Is(err, bandwidth.ErrUnavailable) {
		return fmt.Errorf("measuring %s: %w", direction, err)
	}
	r.DownMbps = nil
	r.Timestamp = j.now()
	r.IsUp = false
	r.Detail = err.Error()
	j.sink.Report(ctx, r)
	return nil
}
