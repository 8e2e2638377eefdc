package executor

import (
	"fmt"
	"strings"

	"github.com/mitchellfyi/doyaken-cli-sub002/internal/phase"
	"github.com/mitchellfyi/doyaken-cli-sub002/internal/task"
)

// gateFailureTailLimit bounds how much gate output is fed back to the
// agent on a retry.
const gateFailureTailLimit = 4000

// phaseInstructions maps each phase to its working brief.
var phaseInstructions = map[phase.Phase]string{
	phase.PhaseExpand:    "Expand the task description into concrete requirements. List ambiguities and resolve each one.",
	phase.PhaseTriage:    "Assess scope and risk. Identify the files and subsystems this task touches.",
	phase.PhasePlan:      "Produce a step-by-step implementation plan. Keep steps small and independently verifiable.",
	phase.PhaseImplement: "Implement the plan. Make the changes in the working tree.",
	phase.PhaseTest:      "Write or update tests covering the change, then make the test suite pass.",
	phase.PhaseDocs:      "Update documentation affected by the change.",
	phase.PhaseReview:    "Review the full change as a skeptical reviewer. Fix what you find.",
	phase.PhaseVerify:    "Verify the task is genuinely complete. Report completion status in a fenced completion block with complete, state, files_changed, and tests_pass fields.",
}

// renderPrompt builds the phase input from the task body, accumulated
// prior-phase context, and any gate failure from the previous attempt.
func renderPrompt(record task.Record, current phase.Phase, priorContext []string, gateFailure string) string {
	var builder strings.Builder

	fmt.Fprintf(&builder, "# Task %s, phase %d/%d: %s\n\n", record.ID, current.Number()+1, phase.Count(), current)
	builder.WriteString(phaseInstructions[current])
	builder.WriteString("\n\n## Task\n\n")
	builder.WriteString(strings.TrimSpace(record.Body))
	builder.WriteString("\n")

	if len(priorContext) > 0 {
		builder.WriteString("\n## Prior phases\n\n")
		for _, entry := range priorContext {
			builder.WriteString(entry)
			builder.WriteString("\n")
		}
	}

	if gateFailure != "" {
		builder.WriteString("\n## Quality gate failure\n\nThe previous attempt failed the quality gate. Output:\n\n")
		builder.WriteString(tail(gateFailure, gateFailureTailLimit))
		builder.WriteString("\n\nFix the failure before reporting completion.\n")
	}

	return builder.String()
}

// phaseContext summarizes a completed phase for later prompts.
func phaseContext(current phase.Phase, output string) string {
	return fmt.Sprintf("### %s\n\n%s", current, tail(strings.TrimSpace(output), gateFailureTailLimit))
}

// tail returns the last limit bytes of s, cutting at a line boundary
// where possible.
func tail(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := s[len(s)-limit:]
	if index := strings.IndexByte(cut, '\n'); index >= 0 && index < len(cut)-1 {
		cut = cut[index+1:]
	}
	return cut
}
