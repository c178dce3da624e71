package report_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/hazz-dev/linkmon/internal/report"
)

var stamp = time.Date(2020, 11, 4, 17, 36, 16, 0, time.Local)

func latency(host string, ms float64) report.Record {
	return report.Record{
		RunID:     "run-1",
		Host:      host,
		Kind:      report.KindLatency,
		Timestamp: stamp,
		LatencyMs: report.Float(ms),
		IsUp:      true,
	}
}

func TestMulti_FansOutInOrder(t *testing.T) {
	var got []string
	sink := func(name string) report.Sink {
		return report.SinkFunc(func(_ context.Context, r report.Record) {
			got = append(got, name+":"+r.Host)
		})
	}

	m := report.Multi(sink("log"), nil, sink("csv"), sink("store"))
	m.Report(context.Background(), latency("8.8.8.8", 12))

	want := []string{"log:8.8.8.8", "csv:8.8.8.8", "store:8.8.8.8"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestLine(t *testing.T) {
	tests := []struct {
		name string
		rec  report.Record
		want string
	}{
		{"latency", latency("8.8.8.8", 12), "LATENCY    : 12.00 ms to 8.8.8.8"},
		{"latency down", report.Record{Host: "8.8.8.8", Kind: report.KindLatency}, "LATENCY    : no connection to 8.8.8.8"},
		{
			"latency unreadable",
			report.Record{Host: "8.8.8.8", Kind: report.KindLatency, IsUp: true, Detail: "expected 2 round-trip times, found 1 in 3 lines"},
			"LATENCY    : unreadable reply from 8.8.8.8: expected 2 round-trip times, found 1 in 3 lines",
		},
		{
			"bandwidth",
			report.Record{Kind: report.KindBandwidth, IsUp: true, DownMbps: report.Float(48.2), UpMbps: report.Float(9.5)},
			"BANDWIDTH  : 48.200 mbits down 9.500 mbits up",
		},
		{
			"bandwidth download only",
			report.Record{Kind: report.KindBandwidth, IsUp: true, DownMbps: report.Float(48.2)},
			"BANDWIDTH  : 48.200 mbits down",
		},
		{"bandwidth down", report.Record{Kind: report.KindBandwidth}, "BANDWIDTH  : no connection"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := report.Line(tc.rec); got != tc.want {
				t.Errorf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestRow(t *testing.T) {
	got := report.Row(latency("8.8.8.8", 16.254))
	want := []string{"2020-11-04", "17:36:16", "16.25", "", "", "True", "8.8.8.8"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	down := report.Row(report.Record{Host: "1.1.1.1", Kind: report.KindLatency, Timestamp: stamp})
	if down[2] != "" || down[5] != "False" {
		t.Errorf("unexpected row for unreachable host: %v", down)
	}

	bw := report.Row(report.Record{Kind: report.KindBandwidth, Timestamp: stamp, IsUp: true, DownMbps: report.Float(48.2), UpMbps: report.Float(9.5)})
	if bw[2] != "" || bw[3] != "48.200" || bw[4] != "9.500" {
		t.Errorf("unexpected bandwidth row: %v", bw)
	}
}

func TestCSVSink_AppendsWithSingleHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output.csv")

	sink, err := report.OpenCSV(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	sink.Report(context.Background(), latency("8.8.8.8", 12))
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}

	// Reopening appends without repeating the header.
	sink, err = report.OpenCSV(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	sink.Report(context.Background(), latency("1.1.1.1", 9))
	sink.Close()

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header and 2 rows, got %d rows", len(rows))
	}
	if !reflect.DeepEqual(rows[0], report.CSVHeader) {
		t.Errorf("unexpected header %v", rows[0])
	}
	if rows[1][6] != "8.8.8.8" || rows[2][6] != "1.1.1.1" {
		t.Errorf("rows out of order: %v", rows[1:])
	}
}

func TestOpenCSV_BadPath(t *testing.T) {
	_, err := report.OpenCSV(filepath.Join(t.TempDir(), "missing", "output.csv"), nil)
	if err == nil {
		t.Fatal("expected error for missing directory")
	}
}

type failingStore struct{ calls int }

func (s *failingStore) InsertRecord(context.Context, report.Record) error {
	s.calls++
	return errors.New("database is locked")
}

func TestStoreSink_LogsFailures(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	store := &failingStore{}

	report.NewStoreSink(store, logger).Report(context.Background(), latency("8.8.8.8", 12))

	if store.calls != 1 {
		t.Errorf("expected one insert, got %d", store.calls)
	}
	if !strings.Contains(buf.String(), "database is locked") {
		t.Errorf("expected failure to be logged, got %q", buf.String())
	}
}

func TestLogSink_WritesConsoleLine(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	report.NewLogSink(logger).Report(context.Background(), latency("8.8.8.8", 12))

	if !strings.Contains(buf.String(), "LATENCY    : 12.00 ms to 8.8.8.8") {
		t.Errorf("expected console line in log output, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), "run_id=run-1") {
		t.Errorf("expected run id attribute, got %q", buf.String())
	}
}
