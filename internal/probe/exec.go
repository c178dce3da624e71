package probe

import (
	"context"
	"errors"
	"os/exec"
)

// CommandExecutor abstracts os/exec for testability.
type CommandExecutor interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// osExecutor is the real CommandExecutor that uses os/exec.
type osExecutor struct{}

func (e *osExecutor) Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error) {
	cmd := exec.CommandContext(ctx, name, args...)
	stdout, err = cmd.Output()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		stderr = exitErr.Stderr
	}
	return stdout, stderr, err
}
