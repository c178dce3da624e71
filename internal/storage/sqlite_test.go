package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/hazz-dev/linkmon/internal/report"
	"github.com/hazz-dev/linkmon/internal/storage"
)

var base = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening in-memory DB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func makeLatency(host string, up bool, ms float64, at time.Time) report.Record {
	r := report.Record{
		RunID:     "run-1",
		Host:      host,
		Kind:      report.KindLatency,
		Timestamp: at,
		IsUp:      up,
	}
	if up {
		r.LatencyMs = report.Float(ms)
	}
	return r
}

func insert(t *testing.T, db *storage.DB, records ...report.Record) {
	t.Helper()
	for _, r := range records {
		if err := db.InsertRecord(context.Background(), r); err != nil {
			t.Fatalf("InsertRecord: %v", err)
		}
	}
}

func TestInsertRecord_And_LatestByHost(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	insert(t, db, makeLatency("8.8.8.8", true, 14.25, base))

	got, err := db.LatestByHost(ctx, "8.8.8.8", report.KindLatency)
	if err != nil {
		t.Fatalf("LatestByHost: %v", err)
	}
	if got == nil {
		t.Fatal("expected a measurement, got nil")
	}
	if got.Host != "8.8.8.8" || got.RunID != "run-1" || !got.IsUp {
		t.Errorf("unexpected measurement %+v", got)
	}
	if got.LatencyMs == nil || *got.LatencyMs != 14.25 {
		t.Errorf("expected latency 14.25, got %v", got.LatencyMs)
	}
	if got.DownMbps != nil || got.UpMbps != nil {
		t.Error("expected bandwidth columns to be null")
	}
	if !got.MeasuredAt.Equal(base) {
		t.Errorf("expected measured_at %v, got %v", base, got.MeasuredAt)
	}
}

func TestInsertRecord_NullLatencyWhenDown(t *testing.T) {
	db := openTestDB(t)
	insert(t, db, makeLatency("192.0.2.1", false, 0, base))

	got, err := db.LatestByHost(context.Background(), "192.0.2.1", report.KindLatency)
	if err != nil {
		t.Fatal(err)
	}
	if got.IsUp {
		t.Error("expected host down")
	}
	if got.LatencyMs != nil {
		t.Errorf("expected null latency, got %v", *got.LatencyMs)
	}
}

func TestLatestByHost_ReturnsNilWhenEmpty(t *testing.T) {
	db := openTestDB(t)
	got, err := db.LatestByHost(context.Background(), "nonexistent", report.KindLatency)
	if err != nil {
		t.Fatalf("LatestByHost: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for unknown host, got %+v", got)
	}
}

func TestLatestByHost_ReturnsMostRecent(t *testing.T) {
	db := openTestDB(t)
	insert(t, db,
		makeLatency("8.8.8.8", true, 20, base.Add(time.Minute)),
		makeLatency("8.8.8.8", false, 0, base),
	)

	got, err := db.LatestByHost(context.Background(), "8.8.8.8", report.KindLatency)
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsUp {
		t.Error("expected the later measurement, which is up")
	}
}

func TestLatestByHost_SubSecondOrdering(t *testing.T) {
	db := openTestDB(t)
	insert(t, db,
		makeLatency("8.8.8.8", true, 1, base.Add(500*time.Millisecond)),
		makeLatency("8.8.8.8", true, 2, base),
	)

	got, err := db.LatestByHost(context.Background(), "8.8.8.8", report.KindLatency)
	if err != nil {
		t.Fatal(err)
	}
	if *got.LatencyMs != 1 {
		t.Errorf("expected the measurement at +500ms, got latency %v", *got.LatencyMs)
	}
}

func TestHistory_Pagination(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		insert(t, db, makeLatency("8.8.8.8", true, float64(i), base.Add(time.Duration(i)*10*time.Second)))
	}

	page, total, err := db.History(ctx, "8.8.8.8", report.KindLatency, 5, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if total != 10 {
		t.Errorf("expected total 10, got %d", total)
	}
	if len(page) != 5 {
		t.Fatalf("expected 5 results, got %d", len(page))
	}
	if *page[0].LatencyMs != 9 {
		t.Errorf("expected newest first, got latency %v", *page[0].LatencyMs)
	}

	page2, total2, err := db.History(ctx, "8.8.8.8", report.KindLatency, 5, 5)
	if err != nil {
		t.Fatal(err)
	}
	if total2 != 10 || len(page2) != 5 {
		t.Errorf("unexpected second page: total=%d len=%d", total2, len(page2))
	}
}

func TestHistory_EmptyDB(t *testing.T) {
	db := openTestDB(t)
	ms, total, err := db.History(context.Background(), "8.8.8.8", report.KindLatency, 10, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if total != 0 || len(ms) != 0 {
		t.Errorf("expected empty history, got total=%d len=%d", total, len(ms))
	}
}

func TestAllLatest_ReturnsOnePerHost(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		insert(t, db, makeLatency("8.8.8.8", true, float64(i), base.Add(time.Duration(i)*time.Second)))
	}
	for i := 0; i < 2; i++ {
		insert(t, db, makeLatency("1.1.1.1", false, 0, base.Add(time.Duration(i)*time.Second)))
	}
	insert(t, db, report.Record{
		Host:      "speed.example.com",
		Kind:      report.KindBandwidth,
		Timestamp: base,
		DownMbps:  report.Float(48.2),
		IsUp:      true,
	})

	all, err := db.AllLatest(ctx, report.KindLatency)
	if err != nil {
		t.Fatalf("AllLatest: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 hosts, got %d", len(all))
	}
	if all[0].Host != "1.1.1.1" || all[0].IsUp {
		t.Errorf("unexpected first host %+v", all[0])
	}
	if all[1].Host != "8.8.8.8" || *all[1].LatencyMs != 2 {
		t.Errorf("unexpected second host %+v", all[1])
	}

	bw, err := db.AllLatest(ctx, report.KindBandwidth)
	if err != nil {
		t.Fatal(err)
	}
	if len(bw) != 1 || *bw[0].DownMbps != 48.2 {
		t.Errorf("unexpected bandwidth latest %+v", bw)
	}
}

func TestAllLatest_EmptyDB(t *testing.T) {
	db := openTestDB(t)
	all, err := db.AllLatest(context.Background(), report.KindLatency)
	if err != nil {
		t.Fatalf("AllLatest: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("expected 0 results, got %d", len(all))
	}
}

func TestUptimePercent(t *testing.T) {
	db := openTestDB(t)
	for i := 0; i < 10; i++ {
		insert(t, db, makeLatency("8.8.8.8", i%2 == 0, 10, base.Add(time.Duration(i)*time.Second)))
	}

	pct, err := db.UptimePercent(context.Background(), "8.8.8.8", 10)
	if err != nil {
		t.Fatalf("UptimePercent: %v", err)
	}
	if pct != 50.0 {
		t.Errorf("expected 50%%, got %.2f", pct)
	}
}

func TestUptimePercent_EmptyDB(t *testing.T) {
	db := openTestDB(t)
	pct, err := db.UptimePercent(context.Background(), "8.8.8.8", 100)
	if err != nil {
		t.Fatalf("UptimePercent: %v", err)
	}
	if pct != 0.0 {
		t.Errorf("expected 0%%, got %.2f", pct)
	}
}

func TestStatesSince(t *testing.T) {
	db := openTestDB(t)
	insert(t, db,
		makeLatency("8.8.8.8", true, 10, base.Add(-time.Hour)),
		makeLatency("8.8.8.8", false, 0, base.Add(20*time.Second)),
		makeLatency("8.8.8.8", true, 12, base.Add(10*time.Second)),
	)

	ms, err := db.StatesSince(context.Background(), base)
	if err != nil {
		t.Fatalf("StatesSince: %v", err)
	}
	if len(ms) != 2 {
		t.Fatalf("expected 2 measurements, got %d", len(ms))
	}
	if !ms[0].IsUp || ms[1].IsUp {
		t.Errorf("expected oldest first, got %+v", ms)
	}
}

func TestClose(t *testing.T) {
	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
