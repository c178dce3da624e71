package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
)

// CSVHeader names the columns written by CSVSink.
var CSVHeader = []string{"date", "time", "latency", "down", "up", "is_up", "host"}

// CSVSink appends one row per record to a file it owns.
type CSVSink struct {
	mu     sync.Mutex
	f      *os.File
	w      *csv.Writer
	logger *slog.Logger
}

// OpenCSV opens (or creates) the file at path for appending. A header row is
// written when the file is new.
func OpenCSV(path string, logger *slog.Logger) (*CSVSink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening csv %q: %w", path, err)
	}
	s := &CSVSink{f: f, w: csv.NewWriter(f), logger: logger}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat csv %q: %w", path, err)
	}
	if info.Size() == 0 {
		if err := s.write(CSVHeader); err != nil {
			f.Close()
			return nil, fmt.Errorf("writing csv header: %w", err)
		}
	}
	return s, nil
}

func (s *CSVSink) Report(_ context.Context, r Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(Row(r)); err != nil {
		s.logger.Error("writing csv row", "host", r.Host, "error", err)
	}
}

func (s *CSVSink) write(row []string) error {
	if err := s.w.Write(row); err != nil {
		return err
	}
	s.w.Flush()
	return s.w.Error()
}

// Close flushes and closes the file.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w.Flush()
	return s.f.Close()
}

// Row renders a record as a CSV row. Absent measurements are empty fields.
func Row(r Record) []string {
	local := r.Timestamp.Local()
	state := "False"
	if r.IsUp {
		state = "True"
	}
	return []string{
		local.Format("2006-01-02"),
		local.Format("15:04:05"),
		formatOptional(r.LatencyMs, 2),
		formatOptional(r.DownMbps, 3),
		formatOptional(r.UpMbps, 3),
		state,
		r.Host,
	}
}

func formatOptional(v *float64, prec int) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', prec, 64)
}
