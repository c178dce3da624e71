package probe

import "fmt"

// FloorMs is the smallest latency a sample can carry. Ping tools print
// sub-millisecond replies as "<1ms", so anything below the floor is reported
// as the floor instead of zero.
const FloorMs = 0.5

// Kind identifies which variant of an Outcome is populated.
type Kind string

const (
	KindSamples     Kind = "samples"
	KindUnreachable Kind = "unreachable"
	KindMalformed   Kind = "malformed"
)

// Outcome is the result of one probe. Exactly one of the variants applies:
// Samples carries one latency per requested echo, Unreachable means the
// ping command failed, Malformed means it succeeded but its output did not
// contain the expected number of round-trip times.
type Outcome struct {
	Kind    Kind
	Samples []float64 // milliseconds, in reply order
	Reason  string

	// Diagnostics for KindMalformed.
	LineCount  int
	TokenCount int
}

// SamplesOutcome returns a successful outcome holding the given latencies.
func SamplesOutcome(samples []float64) Outcome {
	return Outcome{Kind: KindSamples, Samples: samples}
}

// UnreachableOutcome returns an outcome for a host that did not answer.
func UnreachableOutcome(reason string) Outcome {
	return Outcome{Kind: KindUnreachable, Reason: reason}
}

// MalformedOutcome returns an outcome for output that could not be parsed
// into the expected number of samples.
func MalformedOutcome(lines, tokens, want int) Outcome {
	return Outcome{
		Kind:       KindMalformed,
		Reason:     fmt.Sprintf("expected %d round-trip times, found %d in %d lines", want, tokens, lines),
		LineCount:  lines,
		TokenCount: tokens,
	}
}

// IsUp reports whether the host answered. A malformed response still means
// the ping command exited successfully.
func (o Outcome) IsUp() bool {
	return o.Kind == KindSamples || o.Kind == KindMalformed
}

// Mean returns the average latency in milliseconds. ok is false unless the
// outcome holds samples.
func (o Outcome) Mean() (ms float64, ok bool) {
	if o.Kind != KindSamples || len(o.Samples) == 0 {
		return 0, false
	}
	var total float64
	for _, s := range o.Samples {
		total += s
	}
	return total / float64(len(o.Samples)), true
}

func (o Outcome) String() string {
	switch o.Kind {
	case KindSamples:
		mean, _ := o.Mean()
		return fmt.Sprintf("%.2f ms (%d samples)", mean, len(o.Samples))
	case KindUnreachable:
		return "unreachable"
	case KindMalformed:
		return "malformed: " + o.Reason
	default:
		return string(o.Kind)
	}
}
