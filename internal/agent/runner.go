// Package agent provides opaque agent process invocation for phase execution.
package agent

import (
	"context"
	"time"
)

// Invocation carries everything needed for one agent call.
type Invocation struct {
	TaskID string
	Phase  string
	// Prompt is the rendered phase input text.
	Prompt  string
	Timeout time.Duration
	// ResumeHandle continues a prior agent session when supported.
	ResumeHandle string
	Model        string
}

// Result captures the only signals the orchestrator interprets from an
// agent invocation: exit code, raw output text, and an optional session
// handle for context continuity.
type Result struct {
	ExitCode      int
	Output        string
	SessionHandle string
	TimedOut      bool
	Duration      time.Duration
}

// Runner invokes an agent process. The orchestrator core never branches on
// which concrete agent sits behind this interface.
type Runner interface {
	Name() string
	Invoke(ctx context.Context, invocation Invocation) (Result, error)
}
