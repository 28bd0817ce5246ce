// Package process runs the external media tools (ffprobe, ffmpeg) the
// normalizer shells out to. Each invocation gets its own process group so
// cancelling a job tears down the whole tool tree: SIGTERM first, SIGKILL
// once the grace period lapses.
package process

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"syscall"
	"time"
)

const defaultGracePeriod = 5 * time.Second

// Run executes one tool invocation and blocks until it exits or ctx ends.
// A Result is returned alongside the error whenever the tool got far enough
// to produce output, so callers can surface stderr in diagnostics.
func Run(ctx context.Context, cmd Command) (*Result, error) {
	if cmd.Binary == "" {
		return nil, fmt.Errorf("process: no binary given")
	}

	grace := cmd.GracePeriod
	if grace == 0 {
		grace = defaultGracePeriod
	}

	var stdout, stderr bytes.Buffer
	c := exec.CommandContext(ctx, cmd.Binary, cmd.Args...) //nolint:gosec // args come from the normalizer, not user input
	c.Stdout = &stdout
	c.Stderr = &stderr

	// ffmpeg forks helpers; the group keeps them from outliving the parent.
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	// On cancellation, signal the group to stop cleanly; WaitDelay escalates
	// to SIGKILL when the grace period runs out.
	c.Cancel = func() error {
		if c.Process == nil {
			return nil
		}
		return syscall.Kill(-c.Process.Pid, syscall.SIGTERM)
	}
	c.WaitDelay = grace

	start := time.Now()
	runErr := c.Run()

	exitCode := -1
	if c.ProcessState != nil {
		exitCode = c.ProcessState.ExitCode()
	}
	result := &Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: exitCode,
		Duration: time.Since(start),
	}

	switch {
	case runErr == nil:
		return result, nil
	case ctx.Err() != nil:
		return result, fmt.Errorf("process: %s killed: %w", cmd.Binary, ctx.Err())
	default:
		return result, fmt.Errorf("process: %s exit code %d: %w", cmd.Binary, result.ExitCode, runErr)
	}
}
