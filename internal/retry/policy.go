// Package retry implements backoff, agent fallback, circuit-breaking, and
// completion-confidence policy for phase execution.
package retry

import (
	"time"

	"github.com/mitchellfyi/doyaken-cli-sub002/internal/config"
)

// Policy captures the per-run retry parameters.
type Policy struct {
	// MaxAttempts is the hard ceiling on attempts within one phase.
	MaxAttempts int
	// FallbackAfter is the primary-agent failure count before the
	// fallback agent is substituted.
	FallbackAfter int
	// BackoffBase is the delay before the first retry.
	BackoffBase time.Duration
	// BackoffCap bounds the exponential growth of the delay.
	BackoffCap time.Duration
}

// PolicyFromConfig builds the retry policy from the loaded manifest.
func PolicyFromConfig(cfg config.Config) Policy {
	return Policy{
		MaxAttempts:   cfg.Retries.MaxAttempts,
		FallbackAfter: cfg.Agents.FallbackAfter,
		BackoffBase:   cfg.Retries.BackoffBase(),
		BackoffCap:    cfg.Retries.BackoffCap(),
	}
}

// Backoff returns the delay before the given retry. The first retry waits
// the base delay; each subsequent retry doubles it up to the cap.
func (policy Policy) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := policy.BackoffBase
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= policy.BackoffCap {
			return policy.BackoffCap
		}
	}
	if delay > policy.BackoffCap {
		return policy.BackoffCap
	}
	return delay
}

// Exhausted reports whether the attempt count has reached the ceiling.
func (policy Policy) Exhausted(attempts int) bool {
	return attempts >= policy.MaxAttempts
}

// AgentFor selects the agent for the next attempt. The fallback agent is
// substituted once the primary has failed FallbackAfter times, without
// resetting the attempt count.
func (policy Policy) AgentFor(failures int, primary, fallback string) string {
	if fallback != "" && policy.FallbackAfter > 0 && failures >= policy.FallbackAfter {
		return fallback
	}
	return primary
}
