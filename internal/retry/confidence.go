package retry

import (
	"fmt"

	"github.com/dlclark/regexp2"
)

// CompletionThreshold is the minimum confidence score for a phase to
// count as confidently done.
const CompletionThreshold = 70

// Scoring weights for the completion signals.
const (
	weightStructuredBlock    = 30
	weightCompleteFlag       = 20
	weightTerminalTransition = 20
	weightFilesChanged       = 15
	weightKeyword            = 10
	weightTestsPass          = 5
)

// Agent output scanning patterns. Compiled in RE2 mode so scanning is
// linear in the output size regardless of what the agent prints.
var (
	completionBlockPattern = regexp2.MustCompile("(?ms)^```completion[ \\t]*\\n(.*?)^```", regexp2.RE2)
	completeFlagPattern    = regexp2.MustCompile(`(?mi)^\s*complete\s*:\s*true\s*$`, regexp2.RE2)
	terminalStatePattern   = regexp2.MustCompile(`(?mi)^\s*state\s*:\s*done\s*$`, regexp2.RE2)
	blockFilesPattern      = regexp2.MustCompile(`(?mi)^\s*files_changed\s*:\s*[1-9][0-9]*\s*$`, regexp2.RE2)
	blockTestsPattern      = regexp2.MustCompile(`(?mi)^\s*tests_pass\s*:\s*true\s*$`, regexp2.RE2)
	filesChangedPattern    = regexp2.MustCompile(`(?i)\b(\d+ files? changed|created file|modified file|wrote file)\b`, regexp2.RE2)
	testsPassPattern       = regexp2.MustCompile(`(?i)\ball tests pass(ed)?\b|\btests? (are )?passing\b|\btests passed\b`, regexp2.RE2)
	keywordPattern         = regexp2.MustCompile(`(?i)\b(task complete|phase complete|all done|completed successfully|implementation complete)\b`, regexp2.RE2)
)

// Signals are the completion indicators extracted from phase output.
type Signals struct {
	// StructuredBlock is set when the output carries a fenced
	// completion block.
	StructuredBlock bool
	// CompleteFlag is set when the block declares complete: true.
	CompleteFlag bool
	// TerminalTransition is set when the block declares state: done.
	TerminalTransition bool
	// FilesChanged is set on evidence of file modifications.
	FilesChanged bool
	// Keyword is set when a completion phrase appears in the output.
	Keyword bool
	// TestsPass is set on a tests-passing signal.
	TestsPass bool
}

// Score folds the signals into a 0-100 confidence value. The same
// output always yields the same score.
func (signals Signals) Score() int {
	score := 0
	if signals.StructuredBlock {
		score += weightStructuredBlock
	}
	if signals.CompleteFlag {
		score += weightCompleteFlag
	}
	if signals.TerminalTransition {
		score += weightTerminalTransition
	}
	if signals.FilesChanged {
		score += weightFilesChanged
	}
	if signals.Keyword {
		score += weightKeyword
	}
	if signals.TestsPass {
		score += weightTestsPass
	}
	return score
}

// ExtractSignals scans raw agent output for completion indicators.
func ExtractSignals(output string) Signals {
	signals := Signals{
		FilesChanged: matches(filesChangedPattern, output),
		Keyword:      matches(keywordPattern, output),
		TestsPass:    matches(testsPassPattern, output),
	}

	block, ok := completionBlock(output)
	if !ok {
		return signals
	}
	signals.StructuredBlock = true
	signals.CompleteFlag = matches(completeFlagPattern, block)
	signals.TerminalTransition = matches(terminalStatePattern, block)
	if matches(blockFilesPattern, block) {
		signals.FilesChanged = true
	}
	if matches(blockTestsPattern, block) {
		signals.TestsPass = true
	}
	return signals
}

// Verdict is the outcome of the dual-condition completion gate.
type Verdict struct {
	Signals Signals
	Score   int
	// Confident is set only when the heuristic and structured signals
	// agree and the score clears the threshold.
	Confident bool
	// Warning carries the downgrade reason when Confident is false.
	Warning string
}

// EvaluateCompletion applies the dual-condition gate to phase output.
// A phase counts as confidently done only when both a heuristic signal
// and the structured status signal agree and the score reaches the
// threshold. Anything less downgrades to a warning, never a silent
// success.
func EvaluateCompletion(output string) Verdict {
	signals := ExtractSignals(output)
	verdict := Verdict{Signals: signals, Score: signals.Score()}

	heuristic := signals.Keyword || signals.TestsPass || signals.FilesChanged
	structured := signals.StructuredBlock && signals.CompleteFlag

	switch {
	case !signals.StructuredBlock:
		verdict.Warning = "no structured completion block in output"
	case !structured:
		verdict.Warning = "structured block present but not marked complete"
	case !heuristic:
		verdict.Warning = "structured block claims completion without supporting signals"
	case verdict.Score < CompletionThreshold:
		verdict.Warning = fmt.Sprintf("confidence %d below threshold %d", verdict.Score, CompletionThreshold)
	default:
		verdict.Confident = true
	}
	return verdict
}

func matches(pattern *regexp2.Regexp, input string) bool {
	ok, err := pattern.MatchString(input)
	return err == nil && ok
}

func completionBlock(output string) (string, bool) {
	match, err := completionBlockPattern.FindStringMatch(output)
	if err != nil || match == nil {
		return "", false
	}
	group := match.GroupByNumber(1)
	if group == nil {
		return "", false
	}
	return group.String(), true
}
