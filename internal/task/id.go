// Package task provides durable task records and state-container storage.
package task

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// MinPriority is the highest-urgency priority class.
	MinPriority = 1
	// MaxPriority is the lowest-urgency priority class.
	MaxPriority = 4
)

// ID identifies a task as priority class, monotonic sequence, and slug.
type ID struct {
	Priority int
	Sequence int
	Slug     string
}

// ParseID resolves a task ID from its canonical PPP-SSS-slug form.
func ParseID(raw string) (ID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ID{}, fmt.Errorf("task id is required")
	}

	parts := strings.SplitN(trimmed, "-", 3)
	if len(parts) != 3 {
		return ID{}, fmt.Errorf("malformed task id %q: expected priority-sequence-slug", trimmed)
	}

	priority, err := strconv.Atoi(parts[0])
	if err != nil {
		return ID{}, fmt.Errorf("malformed task id %q: parse priority: %w", trimmed, err)
	}
	if priority < MinPriority || priority > MaxPriority {
		return ID{}, fmt.Errorf("malformed task id %q: priority class %d out of range [%d, %d]", trimmed, priority, MinPriority, MaxPriority)
	}

	sequence, err := strconv.Atoi(parts[1])
	if err != nil {
		return ID{}, fmt.Errorf("malformed task id %q: parse sequence: %w", trimmed, err)
	}
	if sequence < 0 {
		return ID{}, fmt.Errorf("malformed task id %q: sequence must not be negative", trimmed)
	}

	slug := strings.TrimSpace(parts[2])
	if slug == "" {
		return ID{}, fmt.Errorf("malformed task id %q: slug is required", trimmed)
	}

	return ID{Priority: priority, Sequence: sequence, Slug: slug}, nil
}

// NewID builds an ID from its components, validating each one.
func NewID(priority int, sequence int, slug string) (ID, error) {
	if priority < MinPriority || priority > MaxPriority {
		return ID{}, fmt.Errorf("priority class %d out of range [%d, %d]", priority, MinPriority, MaxPriority)
	}
	if sequence < 0 {
		return ID{}, fmt.Errorf("sequence must not be negative")
	}
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return ID{}, fmt.Errorf("slug is required")
	}
	return ID{Priority: priority, Sequence: sequence, Slug: slug}, nil
}

// String renders the canonical PPP-SSS-slug form of the ID.
func (id ID) String() string {
	return fmt.Sprintf("%03d-%03d-%s", id.Priority, id.Sequence, id.Slug)
}

// IsZero reports whether the ID carries no value.
func (id ID) IsZero() bool {
	return id.Priority == 0 && id.Sequence == 0 && id.Slug == ""
}

// Less orders IDs by priority class, then sequence, then slug.
func (id ID) Less(other ID) bool {
	if id.Priority != other.Priority {
		return id.Priority < other.Priority
	}
	if id.Sequence != other.Sequence {
		return id.Sequence < other.Sequence
	}
	return id.Slug < other.Slug
}

// WithPriority returns a copy of the ID carrying the new priority class.
func (id ID) WithPriority(priority int) (ID, error) {
	if priority < MinPriority || priority > MaxPriority {
		return ID{}, fmt.Errorf("priority class %d out of range [%d, %d]", priority, MinPriority, MaxPriority)
	}
	return ID{Priority: priority, Sequence: id.Sequence, Slug: id.Slug}, nil
}
