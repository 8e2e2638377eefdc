// Package phase defines the ordered task pipeline phases.
package phase

import (
	"fmt"
	"strings"
)

// Phase represents each numbered pipeline phase a task moves through.
type Phase int

const (
	PhaseExpand Phase = iota
	PhaseTriage
	PhasePlan
	PhaseImplement
	PhaseTest
	PhaseDocs
	PhaseReview
	PhaseVerify
)

var phaseNames = []string{
	"expand",
	"triage",
	"plan",
	"implement",
	"test",
	"docs",
	"review",
	"verify",
}

var phaseByName = map[string]Phase{
	"expand":    PhaseExpand,
	"triage":    PhaseTriage,
	"plan":      PhasePlan,
	"implement": PhaseImplement,
	"test":      PhaseTest,
	"docs":      PhaseDocs,
	"review":    PhaseReview,
	"verify":    PhaseVerify,
}

// gatedPhases marks phases whose output must pass a quality-gate command.
var gatedPhases = map[Phase]struct{}{
	PhaseImplement: {},
	PhaseTest:      {},
}

// Count returns the number of pipeline phases.
func Count() int {
	return len(phaseNames)
}

// All returns every phase in pipeline order.
func All() []Phase {
	phases := make([]Phase, len(phaseNames))
	for i := range phaseNames {
		phases[i] = Phase(i)
	}
	return phases
}

// String returns a human-friendly label for the phase.
func (p Phase) String() string {
	if int(p) < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("unknown(%d)", int(p))
	}
	return phaseNames[p]
}

// ParsePhase resolves a phase enum from its string name.
func ParsePhase(name string) (Phase, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return PhaseExpand, fmt.Errorf("phase name is required")
	}
	if phase, ok := phaseByName[trimmed]; ok {
		return phase, nil
	}
	return PhaseExpand, fmt.Errorf("unknown phase %q", trimmed)
}

// Number returns the numeric representation of the phase.
func (p Phase) Number() int {
	return int(p)
}

// IsLast reports whether the phase is the final pipeline phase.
func (p Phase) IsLast() bool {
	return int(p) == len(phaseNames)-1
}

// Next returns the phase that follows the provided one.
// The final phase is its own successor.
func (p Phase) Next() Phase {
	if p.IsLast() || int(p) < 0 || int(p) >= len(phaseNames) {
		return Phase(len(phaseNames) - 1)
	}
	return p + 1
}

// Gated reports whether the phase requires a quality-gate command to pass.
func (p Phase) Gated() bool {
	_, ok := gatedPhases[p]
	return ok
}
