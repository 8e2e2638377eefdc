// Package status provides task store status reporting.
package status

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mitchellfyi/doyaken-cli-sub002/internal/checkpoint"
	"github.com/mitchellfyi/doyaken-cli-sub002/internal/lock"
	"github.com/mitchellfyi/doyaken-cli-sub002/internal/phase"
	"github.com/mitchellfyi/doyaken-cli-sub002/internal/task"
)

const (
	idColumnWidth     = 20
	stateColumnWidth  = 8
	workerColumnWidth = 18
	phaseColumnWidth  = 10
	lockColumnWidth   = 8
	titleMaxWidth     = 40
)

// Summary represents task counts and the in-progress table.
type Summary struct {
	Total   int
	Blocked int
	Todo    int
	Doing   int
	Done    int
	Rows    []Row
}

// Row describes one in-progress task for the status table.
type Row struct {
	ID     string
	State  string
	Worker string
	Phase  string
	Lock   string
	Title  string
}

// String returns the formatted status output.
func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "tasks total=%d blocked=%d todo=%d doing=%d done=%d\n",
		s.Total, s.Blocked, s.Todo, s.Doing, s.Done)
	if len(s.Rows) == 0 {
		return strings.TrimSpace(b.String())
	}
	fmt.Fprintf(&b, "%-*s %-*s %-*s %-*s %-*s %s\n",
		idColumnWidth, "id",
		stateColumnWidth, "state",
		workerColumnWidth, "worker",
		phaseColumnWidth, "phase",
		lockColumnWidth, "lock",
		"title",
	)
	for _, row := range s.Rows {
		fmt.Fprintf(&b, "%-*s %-*s %-*s %-*s %-*s %s\n",
			idColumnWidth, row.ID,
			stateColumnWidth, row.State,
			workerColumnWidth, row.Worker,
			phaseColumnWidth, row.Phase,
			lockColumnWidth, row.Lock,
			row.Title,
		)
	}
	return strings.TrimSpace(b.String())
}

// GetSummary reads every state container and describes in-progress work.
func GetSummary(store task.Store, locks lock.Manager, checkpoints checkpoint.Store) (Summary, error) {
	summary := Summary{}
	now := time.Now()

	counts := map[task.State]*int{
		task.StateBlocked: &summary.Blocked,
		task.StateTodo:    &summary.Todo,
		task.StateDoing:   &summary.Doing,
		task.StateDone:    &summary.Done,
	}

	var rows []Row
	for _, state := range task.States() {
		records, err := store.List(state)
		if err != nil {
			return Summary{}, fmt.Errorf("list %s tasks: %w", state, err)
		}
		summary.Total += len(records)
		*counts[state] += len(records)

		if state != task.StateDoing {
			continue
		}
		for _, record := range records {
			row, err := describeRow(record, locks, checkpoints, now)
			if err != nil {
				return Summary{}, err
			}
			rows = append(rows, row)
		}
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	summary.Rows = rows
	return summary, nil
}

func describeRow(record task.Record, locks lock.Manager, checkpoints checkpoint.Store, now time.Time) (Row, error) {
	row := Row{
		ID:     record.ID.String(),
		State:  string(record.Meta.State),
		Worker: record.Meta.Assignee,
		Title:  truncateTitle(title(record), titleMaxWidth),
	}

	lockRecord, exists, err := locks.Read(record.ID.String())
	if err != nil {
		return Row{}, fmt.Errorf("read lock for %s: %w", record.ID, err)
	}
	switch {
	case !exists:
		row.Lock = "absent"
	case lock.IsStale(lockRecord, now, locks.StaleAfter()):
		row.Lock = "stale"
	default:
		row.Lock = "held"
	}
	if exists && row.Worker == "" {
		row.Worker = lockRecord.Worker
	}

	cp, found, err := checkpoints.Load(record.ID.String())
	if err != nil {
		return Row{}, fmt.Errorf("load checkpoint for %s: %w", record.ID, err)
	}
	if found && cp.NextPhase() < phase.Count() {
		row.Phase = phase.Phase(cp.NextPhase()).String()
	} else {
		row.Phase = "-"
	}
	return row, nil
}

// title returns the first markdown heading of the task body, or the id.
func title(record task.Record) string {
	for _, line := range strings.Split(record.Body, "\n") {
		trimmed := strings.TrimSpace(line)
		if heading, ok := strings.CutPrefix(trimmed, "# "); ok {
			return strings.TrimSpace(heading)
		}
	}
	return record.ID.String()
}

func truncateTitle(text string, max int) string {
	if len(text) <= max {
		return text
	}
	if max <= 3 {
		return text[:max]
	}
	return text[:max-3] + "..."
}
