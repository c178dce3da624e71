// Package alert posts webhook notifications when a host changes state.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/hazz-dev/linkmon/internal/report"
)

// Alerter is a report.Sink that remembers the last state per host and
// measurement kind and sends a webhook when it flips.
type Alerter struct {
	webhookURL string
	cooldown   time.Duration
	client     *http.Client
	logger     *slog.Logger

	mu        sync.Mutex
	states    map[stateKey]bool
	lastAlert map[stateKey]time.Time
	wg        sync.WaitGroup
}

type stateKey struct {
	host string
	kind report.Kind
}

// New creates a new Alerter. Pass nil logger to use the default logger.
func New(webhookURL string, cooldown time.Duration, logger *slog.Logger) *Alerter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Alerter{
		webhookURL: webhookURL,
		cooldown:   cooldown,
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		states:     make(map[stateKey]bool),
		lastAlert:  make(map[stateKey]time.Time),
	}
}

type webhookPayload struct {
	Host           string   `json:"host"`
	Kind           string   `json:"kind"`
	Status         string   `json:"status"`
	PreviousStatus string   `json:"previous_status"`
	LatencyMs      *float64 `json:"latency_ms,omitempty"`
	Detail         string   `json:"detail,omitempty"`
	RunID          string   `json:"run_id"`
	MeasuredAt     string   `json:"measured_at"`
	Source         string   `json:"source"`
}

func statusName(up bool) string {
	if up {
		return "up"
	}
	return "down"
}

// Report records the host state and sends a webhook if it changed and the
// cooldown for that host has elapsed. The first observation of a host never
// alerts.
func (a *Alerter) Report(_ context.Context, r report.Record) {
	key := stateKey{host: r.Host, kind: r.Kind}

	a.mu.Lock()
	prev, seen := a.states[key]
	a.states[key] = r.IsUp
	if !seen || prev == r.IsUp {
		a.mu.Unlock()
		return
	}
	last, exists := a.lastAlert[key]
	if exists && time.Since(last) < a.cooldown {
		a.mu.Unlock()
		a.logger.Info("alert suppressed by cooldown", "host", r.Host, "kind", r.Kind)
		return
	}
	a.lastAlert[key] = time.Now()
	a.mu.Unlock()

	// Sent in the background so a slow webhook never delays the next probe.
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.send(r, statusName(prev))
	}()
}

// Wait blocks until every in-flight webhook has finished.
func (a *Alerter) Wait() {
	a.wg.Wait()
}

func (a *Alerter) send(r report.Record, prevStatus string) {
	payload := webhookPayload{
		Host:           r.Host,
		Kind:           string(r.Kind),
		Status:         statusName(r.IsUp),
		PreviousStatus: prevStatus,
		LatencyMs:      r.LatencyMs,
		Detail:         r.Detail,
		RunID:          r.RunID,
		MeasuredAt:     r.Timestamp.UTC().Format(time.RFC3339),
		Source:         "linkmon",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		a.logger.Error("marshaling webhook payload", "host", r.Host, "error", err)
		return
	}

	resp, err := a.client.Post(a.webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		a.logger.Error("sending webhook", "host", r.Host, "url", a.webhookURL, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		a.logger.Warn("webhook returned non-2xx status",
			"host", r.Host,
			"status", resp.StatusCode,
		)
	}
}
