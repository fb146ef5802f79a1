package compiler

import (
	"bytes"
	"context"
	"os/exec"
	"time"
)

// Runner starts an external process and waits for it to exit. It returns
// the combined stdout and stderr output. Implementations must stop the
// process when ctx is done.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs processes with os/exec. Arguments are passed as a vector
// and never go through a shell.
type ExecRunner struct {
	// WaitDelay bounds how long Run waits for output pipes to close after
	// the process has been killed.
	WaitDelay time.Duration
}

// Run implements Runner.
func (r ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = r.WaitDelay
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = 5 * time.Second
	}

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	return out.Bytes(), err
}
