package task

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const frontmatterFence = "---"

// Meta holds the structured header fields of a task record.
type Meta struct {
	State      State      `yaml:"state"`
	Priority   int        `yaml:"priority"`
	CreatedAt  time.Time  `yaml:"created_at"`
	UpdatedAt  time.Time  `yaml:"updated_at"`
	Assignee   string     `yaml:"assignee,omitempty"`
	AssignedAt *time.Time `yaml:"assigned_at,omitempty"`
	BlockedBy  []string   `yaml:"blocked_by,omitempty"`
	Blocks     []string   `yaml:"blocks,omitempty"`
	Log        []string   `yaml:"log,omitempty"`
}

// Record is a durable work item: identifier, header fields, free-form body.
type Record struct {
	ID   ID
	Meta Meta
	Body string
}

// Assigned reports whether the record currently carries a worker assignment.
func (record Record) Assigned() bool {
	return strings.TrimSpace(record.Meta.Assignee) != ""
}

// Assign sets the assignment fields on the record.
func (record *Record) Assign(workerID string, at time.Time) {
	record.Meta.Assignee = workerID
	assignedAt := at.UTC()
	record.Meta.AssignedAt = &assignedAt
}

// ClearAssignment removes any worker assignment from the record.
func (record *Record) ClearAssignment() {
	record.Meta.Assignee = ""
	record.Meta.AssignedAt = nil
}

// AppendLog appends a timestamped entry to the record work log.
func (record *Record) AppendLog(at time.Time, message string) {
	entry := fmt.Sprintf("%s %s", at.UTC().Format(time.RFC3339), strings.TrimSpace(message))
	record.Meta.Log = append(record.Meta.Log, entry)
}

// EncodeRecord renders a record as YAML frontmatter followed by the body.
func EncodeRecord(record Record) ([]byte, error) {
	meta, err := yaml.Marshal(record.Meta)
	if err != nil {
		return nil, fmt.Errorf("encode task %s metadata: %w", record.ID, err)
	}

	var builder strings.Builder
	builder.WriteString(frontmatterFence + "\n")
	builder.Write(meta)
	builder.WriteString(frontmatterFence + "\n")
	body := record.Body
	if body != "" {
		builder.WriteString("\n")
		builder.WriteString(body)
		if !strings.HasSuffix(body, "\n") {
			builder.WriteString("\n")
		}
	}
	return []byte(builder.String()), nil
}

// DecodeRecord parses a record from frontmatter-plus-body file content.
func DecodeRecord(id ID, data []byte) (Record, error) {
	content := string(data)
	if !strings.HasPrefix(content, frontmatterFence+"\n") {
		return Record{}, fmt.Errorf("task %s: missing frontmatter open fence", id)
	}

	rest := content[len(frontmatterFence)+1:]
	fenceEnd := strings.Index(rest, "\n"+frontmatterFence+"\n")
	var header, body string
	switch {
	case fenceEnd >= 0:
		header = rest[:fenceEnd+1]
		body = rest[fenceEnd+len(frontmatterFence)+2:]
	case strings.HasSuffix(rest, "\n"+frontmatterFence):
		header = rest[:len(rest)-len(frontmatterFence)]
	default:
		return Record{}, fmt.Errorf("task %s: missing frontmatter close fence", id)
	}

	var meta Meta
	if err := yaml.Unmarshal([]byte(header), &meta); err != nil {
		return Record{}, fmt.Errorf("task %s: decode frontmatter: %w", id, err)
	}

	body = strings.TrimPrefix(body, "\n")
	return Record{ID: id, Meta: meta, Body: body}, nil
}
