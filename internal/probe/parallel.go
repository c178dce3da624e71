package probe

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultMaxConcurrency bounds how many pings run at once. Concurrent pings
// inflate each other's latency, so keep this low.
const DefaultMaxConcurrency = 5

// HostOutcome pairs a host with its probe result. Err is set only when the
// probe could not be attempted (see Probe).
type HostOutcome struct {
	Host    string
	Outcome Outcome
	Err     error
}

// ProbeMany probes every host with at most maxConcurrency pings in flight.
// Results are returned in the order of hosts, regardless of completion order.
// It blocks until every host has a result; each probe is bounded by the ping
// command's own timeout. A maxConcurrency below 1 uses DefaultMaxConcurrency.
func (p *Prober) ProbeMany(ctx context.Context, hosts []string, samples int, timeout time.Duration, maxConcurrency int) []HostOutcome {
	if maxConcurrency < 1 {
		maxConcurrency = DefaultMaxConcurrency
	}

	results := make([]HostOutcome, len(hosts))

	var g errgroup.Group
	g.SetLimit(maxConcurrency)
	for i, host := range hosts {
		g.Go(func() error {
			out, err := p.Probe(ctx, Request{Host: host, Samples: samples, Timeout: timeout})
			results[i] = HostOutcome{Host: host, Outcome: out, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}
