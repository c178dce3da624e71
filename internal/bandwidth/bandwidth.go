// Package bandwidth measures link throughput over HTTP.
package bandwidth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
)

var (
	// ErrUnavailable means the measurement endpoint could not be reached or
	// answered with an error. The link is treated as down.
	ErrUnavailable = errors.New("bandwidth endpoint unavailable")

	// ErrNotConfigured means no endpoint is set for the requested direction.
	ErrNotConfigured = errors.New("bandwidth endpoint not configured")
)

// Meter measures throughput in megabits per second.
type Meter interface {
	MeasureDownloadMbps(ctx context.Context) (float64, error)
	MeasureUploadMbps(ctx context.Context) (float64, error)
}

// HTTPMeter downloads a fixed file and uploads a fixed-size body, dividing
// the bytes moved by the elapsed time.
type HTTPMeter struct {
	DownloadURL string
	UploadURL   string
	UploadBytes int64

	client *http.Client
	logger *slog.Logger
}

// NewHTTPMeter creates an HTTPMeter. Pass nil logger to use the default logger.
func NewHTTPMeter(downloadURL, uploadURL string, uploadBytes int64, timeout time.Duration, logger *slog.Logger) *HTTPMeter {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPMeter{
		DownloadURL: downloadURL,
		UploadURL:   uploadURL,
		UploadBytes: uploadBytes,
		client:      &http.Client{Timeout: timeout},
		logger:      logger,
	}
}

// Mbps converts a byte count moved in elapsed into megabits per second.
func Mbps(n int64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(n) * 8 / elapsed.Seconds() / 1e6
}

func (m *HTTPMeter) MeasureDownloadMbps(ctx context.Context) (float64, error) {
	if m.DownloadURL == "" {
		return 0, ErrNotConfigured
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.DownloadURL, nil)
	if err != nil {
		return 0, fmt.Errorf("building download request: %w", err)
	}

	start := time.Now()
	resp, err := m.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("%w: download returned status %d", ErrUnavailable, resp.StatusCode)
	}

	n, err := io.Copy(io.Discard, resp.Body)
	if err != nil {
		return 0, fmt.Errorf("%w: reading download body: %v", ErrUnavailable, err)
	}
	elapsed := time.Since(start)

	mbps := Mbps(n, elapsed)
	m.logger.Debug("download measured", "bytes", humanize.IBytes(uint64(n)), "elapsed", elapsed, "mbps", mbps)
	return mbps, nil
}

func (m *HTTPMeter) MeasureUploadMbps(ctx context.Context) (float64, error) {
	if m.UploadURL == "" {
		return 0, ErrNotConfigured
	}
	body := bytes.NewReader(make([]byte, m.UploadBytes))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.UploadURL, body)
	if err != nil {
		return 0, fmt.Errorf("building upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	start := time.Now()
	resp, err := m.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	elapsed := time.Since(start)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("%w: upload returned status %d", ErrUnavailable, resp.StatusCode)
	}

	mbps := Mbps(m.UploadBytes, elapsed)
	m.logger.Debug("upload measured", "bytes", humanize.IBytes(uint64(m.UploadBytes)), "elapsed", elapsed, "mbps", mbps)
	return mbps, nil
}
