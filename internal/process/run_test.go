package process_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/skillsenselab/speechd/internal/process"
)

func TestRunCapturesStdout(t *testing.T) {
	// The normalizer consumes ffprobe's JSON from stdout; any tool that
	// prints JSON exercises the same path.
	result, err := process.Run(context.Background(), process.Command{
		Binary: "sh",
		Args:   []string{"-c", `printf '{"streams":[{"index":0}]}'`},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ExitCode != 0 {
		t.Fatalf("exit code = %d, want 0", result.ExitCode)
	}
	var decoded struct {
		Streams []struct {
			Index int `json:"index"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(result.Stdout, &decoded); err != nil {
		t.Fatalf("stdout is not the JSON the tool printed: %v", err)
	}
	if len(decoded.Streams) != 1 {
		t.Fatalf("decoded %d streams, want 1", len(decoded.Streams))
	}
}

func TestRunCapturesStderr(t *testing.T) {
	result, err := process.Run(context.Background(), process.Command{
		Binary: "sh",
		Args:   []string{"-c", "echo 'Invalid data found' >&2; exit 1"},
	})
	if err == nil {
		t.Fatal("expected error for non-zero exit")
	}
	if result == nil {
		t.Fatal("expected a result alongside the error")
	}
	if result.ExitCode != 1 {
		t.Errorf("exit code = %d, want 1", result.ExitCode)
	}
	if got := strings.TrimSpace(string(result.Stderr)); got != "Invalid data found" {
		t.Errorf("stderr = %q, want the tool's diagnostic", got)
	}
}

func TestRunContextCancelKillsTool(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	result, err := process.Run(ctx, process.Command{
		Binary:      "sleep",
		Args:        []string{"10"},
		GracePeriod: 500 * time.Millisecond,
	})
	if err == nil {
		t.Fatal("expected error from context cancellation")
	}
	if result == nil {
		t.Fatal("expected a result even on cancellation")
	}
	if result.ExitCode == 0 {
		t.Errorf("exit code = 0 for a killed tool")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("tool not killed near the deadline, took %v", elapsed)
	}
}

func TestRunMissingBinary(t *testing.T) {
	result, err := process.Run(context.Background(), process.Command{
		Binary: "no-such-media-tool",
	})
	if err == nil {
		t.Fatal("expected error for an unresolvable binary")
	}
	if result != nil && result.ExitCode != -1 {
		t.Errorf("exit code = %d for a tool that never ran, want -1", result.ExitCode)
	}
}

func TestRunEmptyBinary(t *testing.T) {
	if _, err := process.Run(context.Background(), process.Command{}); err == nil {
		t.Fatal("expected error for empty binary")
	}
}

func TestAdapterTimeout(t *testing.T) {
	a := process.NewAdapter(process.Config{
		Timeout:     100 * time.Millisecond,
		GracePeriod: 200 * time.Millisecond,
	})

	start := time.Now()
	_, err := a.Run(context.Background(), process.Command{
		Binary: "sleep",
		Args:   []string{"10"},
	})
	if err == nil {
		t.Fatal("expected error from adapter timeout")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("adapter timeout not enforced, took %v", elapsed)
	}
}
