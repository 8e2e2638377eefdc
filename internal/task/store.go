package task

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	// tasksDirName is the relative path for task state containers.
	tasksDirName = ".doyaken/tasks"
	// taskFileMode defines the permissions for task record files.
	taskFileMode = 0o644
	// taskDirMode defines the permissions for task directories.
	taskDirMode = 0o755
	// taskFileExt is the filename extension for task records.
	taskFileExt = ".md"
)

var (
	// ErrNotFound is returned when no record exists for a task id.
	ErrNotFound = errors.New("task not found")
	// ErrAlreadyExists is returned when a record already occupies the destination.
	ErrAlreadyExists = errors.New("task already exists")
	// ErrCorrupt is returned when the store violates its structural invariants.
	ErrCorrupt = errors.New("task store corrupt")
)

// Store provides access to task records held in state-scoped containers.
type Store struct {
	root string
	now  func() time.Time
}

// NewStore builds a Store rooted at the provided project root.
func NewStore(projectRoot string) (Store, error) {
	if strings.TrimSpace(projectRoot) == "" {
		return Store{}, errors.New("project root is required")
	}
	return Store{
		root: filepath.Join(projectRoot, tasksDirName),
		now:  time.Now,
	}, nil
}

// Init creates the state container directories when missing.
func (store Store) Init() error {
	for _, state := range States() {
		dir := store.containerPath(state)
		if err := os.MkdirAll(dir, taskDirMode); err != nil {
			return fmt.Errorf("create task container %s: %w", dir, err)
		}
	}
	return nil
}

// Create writes a new record into its state container.
func (store Store) Create(record Record) error {
	if record.ID.IsZero() {
		return errors.New("task id is required")
	}
	if record.Meta.State == "" {
		record.Meta.State = StateTodo
	}
	if _, err := ParseState(string(record.Meta.State)); err != nil {
		return err
	}
	if record.Meta.Priority == 0 {
		record.Meta.Priority = record.ID.Priority
	}
	if record.Meta.Priority != record.ID.Priority {
		return fmt.Errorf("task %s: priority metadata %d disagrees with id", record.ID, record.Meta.Priority)
	}

	if _, err := store.Locate(record.ID); err == nil {
		return fmt.Errorf("create task %s: %w", record.ID, ErrAlreadyExists)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	if err := store.Init(); err != nil {
		return err
	}

	path := store.recordPath(record.Meta.State, record.ID)
	// Claim the destination with an exclusive create so two workers cannot
	// both publish the same id, then atomically replace the claim with the
	// full record.
	claim, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, taskFileMode)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("create task %s: %w", record.ID, ErrAlreadyExists)
		}
		return fmt.Errorf("create task %s: %w", record.ID, err)
	}
	if err := claim.Close(); err != nil {
		return fmt.Errorf("create task %s: %w", record.ID, err)
	}

	if err := store.writeRecordFile(path, record); err != nil {
		return err
	}
	return nil
}

// Locate returns the state container currently holding the task id.
func (store Store) Locate(id ID) (State, error) {
	for _, state := range States() {
		path := store.recordPath(state, id)
		if _, err := os.Stat(path); err == nil {
			return state, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat task record %s: %w", path, err)
		}
	}
	return "", fmt.Errorf("locate task %s: %w", id, ErrNotFound)
}

// Read loads a record by id, searching every state container.
func (store Store) Read(id ID) (Record, error) {
	state, err := store.Locate(id)
	if err != nil {
		return Record{}, err
	}
	return store.ReadIn(state, id)
}

// ReadIn loads a record from a specific state container.
func (store Store) ReadIn(state State, id ID) (Record, error) {
	path := store.recordPath(state, id)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Record{}, fmt.Errorf("read task %s: %w", id, ErrNotFound)
		}
		return Record{}, fmt.Errorf("read task record %s: %w", path, err)
	}

	record, err := DecodeRecord(id, data)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	// The containing directory is authoritative for lifecycle state.
	record.Meta.State = state
	return record, nil
}

// Write persists field updates to an existing record in place.
func (store Store) Write(record Record) error {
	state, err := store.Locate(record.ID)
	if err != nil {
		return err
	}
	record.Meta.State = state
	record.Meta.UpdatedAt = store.now().UTC()
	return store.writeRecordFile(store.recordPath(state, record.ID), record)
}

// Move transitions a record between state containers with a single rename,
// so the record is never in two containers at once. The destination-exists
// check is advisory: the rename itself overwrites, but only the task's lock
// holder moves it, so two movers racing the same id would already be a lock
// protocol violation.
func (store Store) Move(id ID, from State, to State) error {
	if err := ValidateTransition(from, to); err != nil {
		return err
	}

	source := store.recordPath(from, id)
	destination := store.recordPath(to, id)

	record, err := store.ReadIn(from, id)
	if err != nil {
		return err
	}
	if _, err := os.Stat(destination); err == nil {
		return fmt.Errorf("move task %s to %s: %w", id, to, ErrAlreadyExists)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat task record %s: %w", destination, err)
	}

	// Update the stored state field before the rename so the filename and the
	// metadata never disagree once the record lands in the new container.
	record.Meta.State = to
	record.Meta.UpdatedAt = store.now().UTC()
	if err := store.writeRecordFile(source, record); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(destination), taskDirMode); err != nil {
		return fmt.Errorf("create task container %s: %w", filepath.Dir(destination), err)
	}
	if err := os.Rename(source, destination); err != nil {
		return fmt.Errorf("move task %s from %s to %s: %w", id, from, to, err)
	}
	return nil
}

// List returns the records in a state container in stable priority order.
func (store Store) List(state State) ([]Record, error) {
	dir := store.containerPath(state)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read task container %s: %w", dir, err)
	}

	records := make([]Record, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), taskFileExt) {
			continue
		}
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		id, err := ParseID(strings.TrimSuffix(entry.Name(), taskFileExt))
		if err != nil {
			return nil, fmt.Errorf("%w: container %s holds %s: %v", ErrCorrupt, state, entry.Name(), err)
		}
		record, err := store.ReadIn(state, id)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].ID.Less(records[j].ID)
	})
	return records, nil
}

// AppendLog appends a timestamped work-log entry to a record.
func (store Store) AppendLog(id ID, message string) error {
	record, err := store.Read(id)
	if err != nil {
		return err
	}
	record.AppendLog(store.now(), message)
	return store.Write(record)
}

// Reprioritize rewrites the priority class, updating metadata and filename together.
func (store Store) Reprioritize(id ID, priority int) (ID, error) {
	newID, err := id.WithPriority(priority)
	if err != nil {
		return ID{}, err
	}
	if newID == id {
		return id, nil
	}

	state, err := store.Locate(id)
	if err != nil {
		return ID{}, err
	}
	record, err := store.ReadIn(state, id)
	if err != nil {
		return ID{}, err
	}

	destination := store.recordPath(state, newID)
	if _, err := os.Stat(destination); err == nil {
		return ID{}, fmt.Errorf("reprioritize task %s: %w", newID, ErrAlreadyExists)
	} else if !errors.Is(err, os.ErrNotExist) {
		return ID{}, fmt.Errorf("stat task record %s: %w", destination, err)
	}

	record.Meta.Priority = priority
	record.AppendLog(store.now(), fmt.Sprintf("reprioritized %d -> %d", id.Priority, priority))
	record.Meta.UpdatedAt = store.now().UTC()
	source := store.recordPath(state, id)
	if err := store.writeRecordFile(source, record); err != nil {
		return ID{}, err
	}
	if err := os.Rename(source, destination); err != nil {
		return ID{}, fmt.Errorf("reprioritize task %s: %w", id, err)
	}
	return newID, nil
}

// NextID allocates the next id in a priority class by scanning every
// container for the highest sequence already taken.
func (store Store) NextID(priority int, slugText string) (ID, error) {
	highest := 0
	for _, state := range States() {
		dir := store.containerPath(state)
		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return ID{}, fmt.Errorf("read task container %s: %w", dir, err)
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), taskFileExt) {
				continue
			}
			id, err := ParseID(strings.TrimSuffix(entry.Name(), taskFileExt))
			if err != nil {
				continue
			}
			if id.Priority == priority && id.Sequence > highest {
				highest = id.Sequence
			}
		}
	}
	return NewID(priority, highest+1, slugText)
}

// Sanity verifies that no task id appears in more than one state container.
func (store Store) Sanity() error {
	seen := map[string]State{}
	for _, state := range States() {
		dir := store.containerPath(state)
		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("read task container %s: %w", dir, err)
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), taskFileExt) {
				continue
			}
			name := strings.TrimSuffix(entry.Name(), taskFileExt)
			if previous, ok := seen[name]; ok {
				return fmt.Errorf("%w: task %s present in both %s and %s", ErrCorrupt, name, previous, state)
			}
			seen[name] = state
		}
	}
	return nil
}

// containerPath resolves the directory for a state container.
func (store Store) containerPath(state State) string {
	return filepath.Join(store.root, string(state))
}

// recordPath resolves the file path for a record in a state container.
func (store Store) recordPath(state State, id ID) string {
	return filepath.Join(store.containerPath(state), id.String()+taskFileExt)
}

// writeRecordFile writes record content to a temp file then renames into place.
func (store Store) writeRecordFile(path string, record Record) error {
	encoded, err := EncodeRecord(record)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	temp, err := os.CreateTemp(dir, ".tmp-"+record.ID.String()+"-*")
	if err != nil {
		return fmt.Errorf("create temp record for task %s: %w", record.ID, err)
	}
	tempPath := temp.Name()
	if _, err := temp.Write(encoded); err != nil {
		_ = temp.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("write temp record %s: %w", tempPath, err)
	}
	if err := temp.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("close temp record %s: %w", tempPath, err)
	}
	if err := os.Chmod(tempPath, taskFileMode); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("chmod temp record %s: %w", tempPath, err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("publish task record %s: %w", path, err)
	}
	return nil
}
