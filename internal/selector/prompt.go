package selector

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mitchellfyi/doyaken-cli-sub002/internal/task"
)

// DefaultPromptTimeout is how long the orphan-resume prompt waits for
// an answer before defaulting to resume.
const DefaultPromptTimeout = 60 * time.Second

// TimeoutPrompter asks the operator whether to resume an orphaned task,
// defaulting to yes when no answer arrives within the timeout.
type TimeoutPrompter struct {
	In      io.Reader
	Out     io.Writer
	Timeout time.Duration
}

// ConfirmResume prompts for a yes/no answer. Only an explicit "n" or
// "no" declines; anything else, including silence, resumes.
func (prompter TimeoutPrompter) ConfirmResume(id task.ID, holder string) bool {
	timeout := prompter.Timeout
	if timeout <= 0 {
		timeout = DefaultPromptTimeout
	}

	if holder == "" {
		holder = "unknown worker"
	}
	fmt.Fprintf(prompter.Out, "task %s looks orphaned (last held by %s). resume it? [Y/n] (resuming in %s) ", id, holder, timeout)

	answers := make(chan string, 1)
	go func() {
		line, _ := bufio.NewReader(prompter.In).ReadString('\n')
		answers <- line
	}()

	select {
	case line := <-answers:
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer != "n" && answer != "no"
	case <-time.After(timeout):
		fmt.Fprintln(prompter.Out, "\nno answer, resuming")
		return true
	}
}
