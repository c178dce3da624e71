package probe

import (
	"bufio"
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// rttRegex matches a reply's round-trip time in the formats printed by the
// common ping tools:
//
//	time=10.0 ms   linux, bsd, darwin
//	time=10ms      windows
//	time<1ms       windows, sub-millisecond
//	time=<1ms      some localized windows builds
//	time=10.0      tools that omit the unit
//
// The linux summary line "time 1001ms" has a space after "time" and does
// not match.
var rttRegex = regexp.MustCompile(`time=?(<?\d+(?:\.\d+)?)(?: ?ms)?`)

// ParseOutput scans ping output line by line and returns Samples when it
// finds exactly want round-trip times, or Malformed otherwise. It has no side
// effects, so parsing the same output twice yields the same Outcome.
func ParseOutput(output []byte, want int) Outcome {
	var (
		samples []float64
		lines   int
	)
	sc := bufio.NewScanner(bytes.NewReader(output))
	for sc.Scan() {
		lines++
		m := rttRegex.FindStringSubmatch(sc.Text())
		if m == nil {
			continue
		}
		ms, ok := parseRTT(m[1])
		if !ok {
			continue
		}
		samples = append(samples, ms)
	}

	if err := sc.Err(); err != nil {
		out := MalformedOutcome(lines, len(samples), want)
		out.Reason = fmt.Sprintf("reading output stopped after %d lines: %v", lines, err)
		return out
	}
	if len(samples) != want {
		return MalformedOutcome(lines, len(samples), want)
	}
	return SamplesOutcome(samples)
}

func parseRTT(token string) (float64, bool) {
	if strings.HasPrefix(token, "<") {
		return FloorMs, true
	}
	ms, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return 0, false
	}
	if ms < FloorMs {
		ms = FloorMs
	}
	return ms, true
}
