package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hazz-dev/linkmon/internal/report"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS measurements (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id      TEXT    NOT NULL DEFAULT '',
    host        TEXT    NOT NULL,
    kind        TEXT    NOT NULL CHECK(kind IN ('latency', 'bandwidth')),
    latency_ms  REAL,
    down_mbps   REAL,
    up_mbps     REAL,
    is_up       INTEGER NOT NULL CHECK(is_up IN (0, 1)),
    detail      TEXT    NOT NULL DEFAULT '',
    measured_at TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_measurements_measured_at ON measurements(measured_at);
CREATE INDEX IF NOT EXISTS idx_measurements_host_kind ON measurements(host, kind, measured_at DESC);
`

const columns = `id, run_id, host, kind, latency_ms, down_mbps, up_mbps, is_up, detail, measured_at`

// timeLayout is fixed width so measured_at sorts and compares as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Measurement is a stored record.
type Measurement struct {
	ID         int64       `json:"id"`
	RunID      string      `json:"run_id"`
	Host       string      `json:"host"`
	Kind       report.Kind `json:"kind"`
	LatencyMs  *float64    `json:"latency_ms"`
	DownMbps   *float64    `json:"down_mbps,omitempty"`
	UpMbps     *float64    `json:"up_mbps,omitempty"`
	IsUp       bool        `json:"is_up"`
	Detail     string      `json:"detail,omitempty"`
	MeasuredAt time.Time   `json:"measured_at"`
}

// DB wraps a SQLite database.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and applies the schema.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite at %q: %w", path, err)
	}
	// Each connection to ":memory:" is its own database.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying pragma %q: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// InsertRecord persists a measurement record.
func (d *DB) InsertRecord(ctx context.Context, r report.Record) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO measurements (run_id, host, kind, latency_ms, down_mbps, up_mbps, is_up, detail, measured_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID,
		r.Host,
		string(r.Kind),
		nullFloat(r.LatencyMs),
		nullFloat(r.DownMbps),
		nullFloat(r.UpMbps),
		r.IsUp,
		r.Detail,
		r.Timestamp.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting %s record for %q: %w", r.Kind, r.Host, err)
	}
	return nil
}

// LatestByHost returns the most recent measurement of kind for host, or nil if none.
func (d *DB) LatestByHost(ctx context.Context, host string, kind report.Kind) (*Measurement, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+columns+` FROM measurements WHERE host = ? AND kind = ? ORDER BY measured_at DESC, id DESC LIMIT 1`,
		host, string(kind),
	)
	m, err := scanMeasurement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest measurement for %q: %w", host, err)
	}
	return m, nil
}

// History returns paginated measurements of kind for host, newest first, plus the total count.
func (d *DB) History(ctx context.Context, host string, kind report.Kind, limit, offset int) ([]Measurement, int, error) {
	var total int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM measurements WHERE host = ? AND kind = ?`, host, string(kind),
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("counting measurements for %q: %w", host, err)
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT `+columns+` FROM measurements WHERE host = ? AND kind = ? ORDER BY measured_at DESC, id DESC LIMIT ? OFFSET ?`,
		host, string(kind), limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("querying history for %q: %w", host, err)
	}
	defer rows.Close()

	ms, err := scanMeasurements(rows)
	if err != nil {
		return nil, 0, err
	}
	return ms, total, nil
}

// AllLatest returns the most recent measurement of kind for each host.
func (d *DB) AllLatest(ctx context.Context, kind report.Kind) ([]Measurement, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT `+columns+`
		FROM measurements
		WHERE id IN (
			SELECT MAX(id) FROM measurements WHERE kind = ? GROUP BY host
		)
		ORDER BY host
	`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("querying all latest: %w", err)
	}
	defer rows.Close()
	return scanMeasurements(rows)
}

// UptimePercent returns the percentage of up results in the last N latency
// measurements for a host.
func (d *DB) UptimePercent(ctx context.Context, host string, last int) (float64, error) {
	var total int
	var upCount sql.NullInt64
	err := d.db.QueryRowContext(ctx, `
		SELECT COUNT(*), SUM(is_up)
		FROM (
			SELECT is_up FROM measurements WHERE host = ? AND kind = 'latency' ORDER BY measured_at DESC, id DESC LIMIT ?
		)
	`, host, last).Scan(&total, &upCount)
	if err != nil {
		return 0, fmt.Errorf("calculating uptime for %q: %w", host, err)
	}
	if total == 0 {
		return 0, nil
	}
	return float64(upCount.Int64) / float64(total) * 100, nil
}

// StatesSince returns every measurement taken at or after since, oldest first.
func (d *DB) StatesSince(ctx context.Context, since time.Time) ([]Measurement, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+columns+` FROM measurements WHERE measured_at >= ? ORDER BY measured_at, id`,
		since.UTC().Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("querying measurements since %s: %w", since.Format(time.RFC3339), err)
	}
	defer rows.Close()
	return scanMeasurements(rows)
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMeasurement(row scanner) (*Measurement, error) {
	var (
		m                Measurement
		kind, measuredAt string
		lat, down, up    sql.NullFloat64
	)
	err := row.Scan(&m.ID, &m.RunID, &m.Host, &kind, &lat, &down, &up, &m.IsUp, &m.Detail, &measuredAt)
	if err != nil {
		return nil, err
	}
	m.Kind = report.Kind(kind)
	m.LatencyMs = floatPtr(lat)
	m.DownMbps = floatPtr(down)
	m.UpMbps = floatPtr(up)

	t, err := time.Parse(timeLayout, measuredAt)
	if err != nil {
		return nil, fmt.Errorf("parsing measured_at %q: %w", measuredAt, err)
	}
	m.MeasuredAt = t
	return &m, nil
}

func scanMeasurements(rows *sql.Rows) ([]Measurement, error) {
	var ms []Measurement
	for rows.Next() {
		m, err := scanMeasurement(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning measurement row: %w", err)
		}
		ms = append(ms, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating measurement rows: %w", err)
	}
	return ms, nil
}
