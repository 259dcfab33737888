// Package state persists the single active ticket/stage record per workspace.
//
// The record lives at docs/.active.json and always reflects the last
// successfully gated transition. Updates use a compare-and-swap on a
// generation stamp and a write-temp-then-rename sequence, so a crash mid-write
// never leaves a torn record: readers observe either the prior record or the
// new one. An advisory lock file serializes in-flight applies; a second
// dispatch for the same workspace fails fast with [ErrBusy] instead of
// interleaving writes.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"aiddflow/internal/stage"
)

// FileName is the active-state record name inside the docs directory.
const FileName = ".active.json"

// lockFileName guards the apply critical section.
const lockFileName = ".active.lock"

// Sentinel errors.
var (
	// ErrBusy indicates another dispatch holds the workspace apply lock.
	ErrBusy = errors.New("workspace is busy: another dispatch is in flight")

	// ErrStaleGeneration indicates the record changed between read and
	// write. With the apply lock held this cannot happen; seeing it means a
	// writer bypassed the lock.
	ErrStaleGeneration = errors.New("active state changed concurrently")
)

// ActiveState is the persisted record of the current ticket and stage.
type ActiveState struct {
	Ticket     string      `json:"ticket"`
	Stage      stage.Stage `json:"stage"`
	UpdatedAt  string      `json:"updated_at"`
	Generation int64       `json:"generation"`
}

// Store reads and writes the active-state record for one workspace.
//
// Create with [NewStore]. The zero value is not usable.
type Store struct {
	docsDir string

	// Now is the clock used for UpdatedAt stamps. Tests may replace it.
	Now func() time.Time
}

// NewStore creates a [Store] rooted at the given docs directory.
func NewStore(docsDir string) *Store {
	return &Store{
		docsDir: docsDir,
		Now:     time.Now,
	}
}

// Path returns the full path of the active-state record.
func (s *Store) Path() string {
	return filepath.Join(s.docsDir, FileName)
}

// Get returns the current record, or nil when no dispatch has run yet in
// this workspace.
func (s *Store) Get() (*ActiveState, error) {
	data, err := os.ReadFile(s.Path())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read active state: %w", err)
	}
	var st ActiveState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to parse active state: %w", err)
	}
	return &st, nil
}

// Set updates the record to the given ticket and stage.
//
// The update is a compare-and-swap: the current generation is re-read and the
// new record written with generation+1 via a temp file and rename. A reader
// never observes a partial record. Returns [ErrStaleGeneration] when the
// on-disk generation moved between read and write.
func (s *Store) Set(ticket string, st stage.Stage) (*ActiveState, error) {
	if ticket == "" {
		return nil, errors.New("ticket is required")
	}
	if !st.IsValid() {
		return nil, fmt.Errorf("invalid stage: %s", st)
	}

	current, err := s.Get()
	if err != nil {
		return nil, err
	}
	var generation int64
	if current != nil {
		generation = current.Generation
	}

	next := &ActiveState{
		Ticket:     ticket,
		Stage:      st,
		UpdatedAt:  s.Now().UTC().Format(time.RFC3339),
		Generation: generation + 1,
	}
	if err := s.write(next, generation); err != nil {
		return nil, err
	}
	return next, nil
}

func (s *Store) write(next *ActiveState, expectGeneration int64) error {
	if err := os.MkdirAll(s.docsDir, 0755); err != nil {
		return fmt.Errorf("failed to create docs dir: %w", err)
	}

	// Re-check the generation just before the swap.
	onDisk, err := s.Get()
	if err != nil {
		return err
	}
	var diskGen int64
	if onDisk != nil {
		diskGen = onDisk.Generation
	}
	if diskGen != expectGeneration {
		return fmt.Errorf("%w: generation %d, expected %d", ErrStaleGeneration, diskGen, expectGeneration)
	}

	data, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal active state: %w", err)
	}
	data = append(data, '\n')

	fullPath := s.Path()
	tmpPath := fullPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write active state: %w", err)
	}
	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write active state: %w", err)
	}
	return nil
}

// Lock acquires the workspace apply lock. It returns a release function on
// success and [ErrBusy] when another dispatch holds the lock. Stale locks
// from crashed processes must be removed by the operator; the lock file
// records the holder's pid to make that call.
func (s *Store) Lock() (func(), error) {
	if err := os.MkdirAll(s.docsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create docs dir: %w", err)
	}
	lockPath := filepath.Join(s.docsDir, lockFileName)
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if errors.Is(err, os.ErrExist) {
		return nil, ErrBusy
	}
	if err != nil {
		return nil, fmt.Errorf("failed to acquire workspace lock: %w", err)
	}
	fmt.Fprintf(f, "%d\n", os.Getpid())
	f.Close()
	return func() { os.Remove(lockPath) }, nil
}
