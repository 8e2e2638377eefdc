package executor

import (
	"context"
	"os/exec"
)

// GateRunner executes a quality-gate command, returning its combined
// output and a non-nil error on nonzero exit.
type GateRunner interface {
	Run(ctx context.Context, command string) (string, error)
}

// ShellGate runs gate commands through the shell in the project root.
type ShellGate struct {
	Dir string
}

// Run executes the command with sh -c and captures combined output.
func (gate ShellGate) Run(ctx context.Context, command string) (string, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = gate.Dir
	output, err := cmd.CombinedOutput()
	return string(output), err
}
