// Package summary computes dropout statistics and smoothed series from
// stored measurements.
package summary

import (
	"sort"
	"time"

	"github.com/hazz-dev/linkmon/internal/report"
	"github.com/hazz-dev/linkmon/internal/storage"
)

// Point is a timestamped value.
type Point struct {
	At    time.Time
	Value float64
}

// Dedupe drops points whose value equals both neighbours. The first and last
// points are always kept, so run boundaries survive.
func Dedupe(points []Point) []Point {
	if len(points) <= 2 {
		return append([]Point(nil), points...)
	}
	out := []Point{points[0]}
	for i := 1; i < len(points)-1; i++ {
		if points[i-1].Value == points[i].Value && points[i].Value == points[i+1].Value {
			continue
		}
		out = append(out, points[i])
	}
	return append(out, points[len(points)-1])
}

// MovingAverage replaces each value with the mean of itself and up to
// window-1 preceding values.
func MovingAverage(points []Point, window int) []Point {
	return slide(points, window, func(vs []float64) float64 {
		var sum float64
		for _, v := range vs {
			sum += v
		}
		return sum / float64(len(vs))
	})
}

// MaxOfLastN replaces each value with the largest of itself and up to
// window-1 preceding values.
func MaxOfLastN(points []Point, window int) []Point {
	return slide(points, window, func(vs []float64) float64 {
		m := vs[0]
		for _, v := range vs[1:] {
			if v > m {
				m = v
			}
		}
		return m
	})
}

func slide(points []Point, window int, fn func([]float64) float64) []Point {
	if window < 1 {
		window = 1
	}
	out := make([]Point, len(points))
	values := make([]float64, 0, len(points))
	for i, p := range points {
		values = append(values, p.Value)
		start := 0
		if len(values) > window {
			start = len(values) - window
		}
		out[i] = Point{At: p.At, Value: fn(values[start:])}
	}
	return out
}

// DropoutStats describes the periods a link was down.
type DropoutStats struct {
	Span  time.Duration // first to last observation
	Count int

	// Durations holds the length of every dropout that ended within the
	// observed span, shortest first. A dropout still in progress at the
	// last observation is counted but has no duration.
	Durations []time.Duration

	Max        time.Duration
	Min        time.Duration
	WorstTenth time.Duration // mean of the longest 10%
	BestTenth  time.Duration // mean of the shortest 10%
}

// Dropouts finds runs of down states. Value 0 is down, anything else is up.
// A dropout lasts from its first down point to the next up point.
func Dropouts(states []Point) DropoutStats {
	var st DropoutStats
	if len(states) == 0 {
		return st
	}
	st.Span = states[len(states)-1].At.Sub(states[0].At)

	var downSince *time.Time
	for i := range states {
		p := states[i]
		down := p.Value == 0
		switch {
		case down && downSince == nil:
			st.Count++
			downSince = &states[i].At
		case !down && downSince != nil:
			st.Durations = append(st.Durations, p.At.Sub(*downSince))
			downSince = nil
		}
	}

	if len(st.Durations) == 0 {
		return st
	}
	sort.Slice(st.Durations, func(i, j int) bool { return st.Durations[i] < st.Durations[j] })
	st.Min = st.Durations[0]
	st.Max = st.Durations[len(st.Durations)-1]

	n := len(st.Durations) / 10
	if n < 1 {
		n = 1
	}
	st.BestTenth = mean(st.Durations[:n])
	st.WorstTenth = mean(st.Durations[len(st.Durations)-n:])
	return st
}

func mean(ds []time.Duration) time.Duration {
	var sum time.Duration
	for _, d := range ds {
		sum += d
	}
	return sum / time.Duration(len(ds))
}

// HostSummary aggregates latency measurements for one host.
type HostSummary struct {
	Host        string
	Samples     int
	UptimePct   float64
	MeanLatency *float64 // ms, over samples that carried a latency
	PeakLatency *float64 // ms
	Dropouts    DropoutStats
}

// Summarize groups latency measurements by host, in order of first
// appearance. Measurements must be ordered oldest first.
func Summarize(ms []storage.Measurement) []HostSummary {
	var order []string
	states := make(map[string][]Point)
	latencies := make(map[string][]float64)
	ups := make(map[string]int)

	for _, m := range ms {
		if m.Kind != report.KindLatency {
			continue
		}
		if _, ok := states[m.Host]; !ok {
			order = append(order, m.Host)
		}
		v := 0.0
		if m.IsUp {
			v = 1
			ups[m.Host]++
		}
		states[m.Host] = append(states[m.Host], Point{At: m.MeasuredAt, Value: v})
		if m.LatencyMs != nil {
			latencies[m.Host] = append(latencies[m.Host], *m.LatencyMs)
		}
	}

	out := make([]HostSummary, 0, len(order))
	for _, host := range order {
		pts := states[host]
		hs := HostSummary{
			Host:      host,
			Samples:   len(pts),
			UptimePct: float64(ups[host]) / float64(len(pts)) * 100,
			Dropouts:  Dropouts(Dedupe(pts)),
		}
		if ls := latencies[host]; len(ls) > 0 {
			var sum, peak float64
			for _, l := range ls {
				sum += l
				if l > peak {
					peak = l
				}
			}
			avg := sum / float64(len(ls))
			hs.MeanLatency = &avg
			hs.PeakLatency = &peak
		}
		out = append(out, hs)
	}
	return out
}
