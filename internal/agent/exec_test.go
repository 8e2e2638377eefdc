// Tests for exec-backed agent invocation.
package agent

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestInvokeCapturesOutputAndExitCode runs a real shell process.
func TestInvokeCapturesOutputAndExitCode(t *testing.T) {
	root := t.TempDir()
	runner, err := NewExecRunner("sh", []string{"sh", "-c", "cat {prompt_path}; echo done"}, root)
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}

	result, err := runner.Invoke(context.Background(), Invocation{
		TaskID:  "002-001-sample",
		Phase:   "implement",
		Prompt:  "hello prompt",
		Timeout: 10 * time.Second,
	})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if result.ExitCode != 0 {
		t.Fatalf("expected exit 0, got %d", result.ExitCode)
	}
	if !strings.Contains(result.Output, "hello prompt") || !strings.Contains(result.Output, "done") {
		t.Fatalf("unexpected output %q", result.Output)
	}

	// Output must also land in a log file under local state.
	logsDir := filepath.Join(root, logsDirName)
	entries, err := os.ReadDir(logsDir)
	if err != nil {
		t.Fatalf("read logs dir: %v", err)
	}
	var foundLog bool
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), "-output.log") {
			foundLog = true
		}
	}
	if !foundLog {
		t.Fatalf("expected an output log file, got %v", entries)
	}
}

// TestInvokeNonzeroExit reports the code in the result, not an error.
func TestInvokeNonzeroExit(t *testing.T) {
	runner, err := NewExecRunner("sh", []string{"sh", "-c", "echo broken >&2; exit 3"}, t.TempDir())
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}

	result, err := runner.Invoke(context.Background(), Invocation{
		TaskID:  "002-001-sample",
		Phase:   "test",
		Prompt:  "p",
		Timeout: 10 * time.Second,
	})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if result.ExitCode != 3 {
		t.Fatalf("expected exit 3, got %d", result.ExitCode)
	}
	if !strings.Contains(result.Output, "broken") {
		t.Fatalf("expected stderr captured, got %q", result.Output)
	}
}

// TestInvokeTimeout flags the result as timed out.
func TestInvokeTimeout(t *testing.T) {
	runner, err := NewExecRunner("sh", []string{"sh", "-c", "sleep 5"}, t.TempDir())
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}

	result, err := runner.Invoke(context.Background(), Invocation{
		TaskID:  "002-001-sample",
		Phase:   "implement",
		Prompt:  "p",
		Timeout: 100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if !result.TimedOut {
		t.Fatalf("expected timeout flag")
	}
	if result.ExitCode != -1 {
		t.Fatalf("expected exit -1 on timeout, got %d", result.ExitCode)
	}
}

// TestExtractSessionHandle scans output for resumable handles.
func TestExtractSessionHandle(t *testing.T) {
	cases := map[string]string{
		"work done\nsession_id: sess-42\nbye": "sess-42",
		"Session-Handle = abc123":             "abc123",
		"no handle here":                      "",
	}
	for output, want := range cases {
		if got := extractSessionHandle(output); got != want {
			t.Fatalf("output %q: expected handle %q, got %q", output, want, got)
		}
	}
}

// TestExpandArgvDropsUnresolvedTokens omits session/model tokens when unset.
func TestExpandArgvDropsUnresolvedTokens(t *testing.T) {
	runner, err := NewExecRunner("fake", []string{"fake", "--resume={session}", "--model={model}", "{prompt_path}"}, t.TempDir())
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}

	argv := runner.expandArgv(Invocation{}, "/tmp/prompt.md")
	if len(argv) != 2 || argv[0] != "fake" || argv[1] != "/tmp/prompt.md" {
		t.Fatalf("unexpected argv %v", argv)
	}

	argv = runner.expandArgv(Invocation{ResumeHandle: "sess-1", Model: "fast"}, "/tmp/prompt.md")
	if len(argv) != 4 || argv[1] != "--resume=sess-1" || argv[2] != "--model=fast" {
		t.Fatalf("unexpected argv %v", argv)
	}
}
