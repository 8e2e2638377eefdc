package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
)

const (
	// logsDirName is the relative path for agent invocation logs.
	logsDirName = ".doyaken/local-state/logs"
	// logFileMode is the file mode for log and prompt files.
	logFileMode = 0o644
	// logDirMode is the directory mode for the logs directory.
	logDirMode = 0o755
)

// Argv template placeholders expanded per invocation.
const (
	placeholderPrompt  = "{prompt_path}"
	placeholderModel   = "{model}"
	placeholderSession = "{session}"
)

// sessionHandlePattern extracts a resumable session handle from agent output.
var sessionHandlePattern = regexp2.MustCompile(`(?mi)^\s*session[_-]?(?:id|handle)\s*[:=]\s*(\S+)\s*$`, regexp2.RE2)

// ExecRunner runs an agent CLI as a child process with log capture.
type ExecRunner struct {
	name    string
	argv    []string
	logsDir string
	workDir string
}

// NewExecRunner builds an exec-backed runner from an argv template.
func NewExecRunner(name string, argv []string, projectRoot string) (*ExecRunner, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("agent name is required")
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("agent %s: argv template is required", name)
	}
	if strings.TrimSpace(projectRoot) == "" {
		return nil, errors.New("project root is required")
	}
	return &ExecRunner{
		name:    name,
		argv:    argv,
		logsDir: filepath.Join(projectRoot, logsDirName),
		workDir: projectRoot,
	}, nil
}

// Name returns the configured agent name.
func (runner *ExecRunner) Name() string {
	return runner.name
}

// Invoke executes the agent process under the invocation timeout.
// Nonzero exits and timeouts are reported in the Result, not as errors;
// errors are reserved for invocation setup failures.
func (runner *ExecRunner) Invoke(ctx context.Context, invocation Invocation) (Result, error) {
	if strings.TrimSpace(invocation.TaskID) == "" {
		return Result{}, errors.New("task id is required")
	}
	if invocation.Timeout <= 0 {
		return Result{}, errors.New("invocation timeout must be positive")
	}

	if err := os.MkdirAll(runner.logsDir, logDirMode); err != nil {
		return Result{}, fmt.Errorf("create logs directory %s: %w", runner.logsDir, err)
	}

	stamp := time.Now().Format("20060102-150405")
	promptPath := filepath.Join(runner.logsDir, fmt.Sprintf("%s-%s-%s-prompt.md", invocation.TaskID, invocation.Phase, stamp))
	if err := os.WriteFile(promptPath, []byte(invocation.Prompt), logFileMode); err != nil {
		return Result{}, fmt.Errorf("write prompt file %s: %w", promptPath, err)
	}

	argv := runner.expandArgv(invocation, promptPath)
	if len(argv) == 0 {
		return Result{}, fmt.Errorf("agent %s: argv template expanded to nothing", runner.name)
	}

	logPath := filepath.Join(runner.logsDir, fmt.Sprintf("%s-%s-%s-output.log", invocation.TaskID, invocation.Phase, stamp))
	logFile, err := os.Create(logPath)
	if err != nil {
		return Result{}, fmt.Errorf("create output log %s: %w", logPath, err)
	}
	defer logFile.Close()

	invokeCtx, cancel := context.WithTimeout(ctx, invocation.Timeout)
	defer cancel()

	var output bytes.Buffer
	cmd := exec.CommandContext(invokeCtx, argv[0], argv[1:]...)
	cmd.Dir = runner.workDir
	cmd.Stdout = io.MultiWriter(&output, logFile)
	cmd.Stderr = io.MultiWriter(&output, logFile)

	start := time.Now()
	runErr := cmd.Run()
	result := Result{
		Output:   output.String(),
		Duration: time.Since(start),
	}
	result.SessionHandle = extractSessionHandle(result.Output)

	if runErr != nil {
		if invokeCtx.Err() == context.DeadlineExceeded {
			result.TimedOut = true
			result.ExitCode = -1
			return result, nil
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return Result{}, fmt.Errorf("invoke agent %s: %w", runner.name, runErr)
	}
	return result, nil
}

// expandArgv substitutes invocation placeholders into the argv template.
// Tokens referencing an absent session handle are dropped entirely.
func (runner *ExecRunner) expandArgv(invocation Invocation, promptPath string) []string {
	expanded := make([]string, 0, len(runner.argv))
	for _, token := range runner.argv {
		if strings.Contains(token, placeholderSession) {
			if invocation.ResumeHandle == "" {
				continue
			}
			token = strings.ReplaceAll(token, placeholderSession, invocation.ResumeHandle)
		}
		if strings.Contains(token, placeholderModel) {
			if invocation.Model == "" {
				continue
			}
			token = strings.ReplaceAll(token, placeholderModel, invocation.Model)
		}
		token = strings.ReplaceAll(token, placeholderPrompt, promptPath)
		expanded = append(expanded, token)
	}
	return expanded
}

// extractSessionHandle scans agent output for a resumable session handle.
func extractSessionHandle(output string) string {
	match, err := sessionHandlePattern.FindStringMatch(output)
	if err != nil || match == nil {
		return ""
	}
	groups := match.Groups()
	if len(groups) < 2 {
		return ""
	}
	return groups[1].Capture.String()
}
