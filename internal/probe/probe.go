// Package probe measures round-trip latency by running the platform's ping
// command and parsing its output into typed outcomes.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidRequest is returned for requests that can never succeed,
	// such as an empty host or a zero sample count.
	ErrInvalidRequest = errors.New("invalid probe request")

	// ErrCommandUnavailable is returned when the ping command cannot be
	// started at all. This is a configuration problem, not an unreachable host.
	ErrCommandUnavailable = errors.New("ping command unavailable")
)

// Request describes a single probe.
type Request struct {
	Host    string
	Samples int
	Timeout time.Duration // per echo
}

// Validate checks the request invariants.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidRequest)
	}
	if r.Samples < 1 {
		return fmt.Errorf("%w: samples must be at least 1, got %d", ErrInvalidRequest, r.Samples)
	}
	if r.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive, got %v", ErrInvalidRequest, r.Timeout)
	}
	return nil
}

// Prober runs ping against hosts. The zero value is not usable; use New.
type Prober struct {
	executor CommandExecutor
	goos     string
	command  string
}

// New returns a Prober that spawns the system ping command.
func New() *Prober {
	return NewWithExecutor(&osExecutor{}, runtime.GOOS)
}

// NewWithExecutor creates a Prober with a custom executor and target OS
// (for testing).
func NewWithExecutor(exec CommandExecutor, goos string) *Prober {
	return &Prober{executor: exec, goos: goos, command: "ping"}
}

// Probe sends req.Samples echoes to req.Host. A host that does not answer is
// reported as an Unreachable outcome, never as an error; the error return is
// reserved for invalid requests and a missing ping binary. Cancelling ctx
// does not interrupt a ping that is already running; it is bounded by
// CommandDeadline instead.
func (p *Prober) Probe(ctx context.Context, req Request) (Outcome, error) {
	if err := req.Validate(); err != nil {
		return Outcome{}, err
	}

	// The command gets its own deadline instead of ctx. A stop request must
	// not turn in-flight pings into unreachable hosts.
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), CommandDeadline(req))
	defer cancel()

	stdout, _, err := p.executor.Run(runCtx, p.command, Args(p.goos, req)...)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrPermission) {
			return Outcome{}, fmt.Errorf("%w: %v", ErrCommandUnavailable, err)
		}
		return UnreachableOutcome(fmt.Sprintf("ping %s: %v", req.Host, err)), nil
	}

	return ParseOutput(stdout, req.Samples), nil
}

// TimeoutSeconds rounds a timeout up to whole seconds. Ping tools reject
// values below one second, so the result is never less than 1.
func TimeoutSeconds(d time.Duration) int {
	sec := int(math.Ceil(d.Seconds()))
	if sec < 1 {
		sec = 1
	}
	return sec
}

// commandSlack covers process startup and the pause between echoes.
const commandSlack = 5 * time.Second

// CommandDeadline bounds a whole ping run: every echo may wait the full
// per-echo timeout plus the one-second interval between echoes.
func CommandDeadline(req Request) time.Duration {
	perEcho := time.Duration(TimeoutSeconds(req.Timeout)+1) * time.Second
	return time.Duration(req.Samples)*perEcho + commandSlack
}

// Args builds the ping arguments for the given OS.
func Args(goos string, req Request) []string {
	count := strconv.Itoa(req.Samples)
	sec := TimeoutSeconds(req.Timeout)

	switch goos {
	case "windows":
		return []string{"-n", count, "-w", strconv.Itoa(sec * 1000), req.Host}
	case "darwin":
		// darwin's -W is the per-reply wait in milliseconds.
		return []string{"-c", count, "-W", strconv.Itoa(sec * 1000), req.Host}
	default:
		return []string{"-c", count, "-W", strconv.Itoa(sec), req.Host}
	}
}
