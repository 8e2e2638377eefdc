// Package worker derives worker process identities.
package worker

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
)

// Identity returns the worker id for this process. An explicit override
// wins; otherwise the id combines hostname, pid, and a random suffix so
// two workers on the same host never collide.
func Identity(override string) string {
	if trimmed := strings.TrimSpace(override); trimmed != "" {
		return trimmed
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), suffix)
}
