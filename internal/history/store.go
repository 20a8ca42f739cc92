// Package history keeps a bounded record of past runs in a YAML file
// that concurrent invocations share through a file lock.
package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is the history file name used under the artifacts
// directory when no explicit path is configured.
const DefaultFileName = "lrc_run_history.yaml"

const (
	defaultLimit      = 50
	lockRetryInterval = 50 * time.Millisecond
)

// Entry is one remembered run.
type Entry struct {
	InvocationID string    `yaml:"invocationId"`
	RunID        int64     `yaml:"runId"`
	TestID       int       `yaml:"testId"`
	TestName     string    `yaml:"testName,omitempty"`
	Status       string    `yaml:"status"`
	Reason       string    `yaml:"reason,omitempty"`
	HasReport    bool      `yaml:"hasReport"`
	StartedAt    time.Time `yaml:"startedAt,omitempty"`
	EndedAt      time.Time `yaml:"endedAt,omitempty"`
}

type fileDoc struct {
	Runs []Entry `yaml:"runs"`
}

// Store appends run entries to a YAML history file, bounded to the most
// recent limit entries. A sibling .lock file serializes concurrent
// invocations writing to the same file.
type Store struct {
	path  string
	limit int
	lock  *flock.Flock
}

// NewStore opens a store on the given path. limit <= 0 keeps the
// default bound.
func NewStore(path string, limit int) *Store {
	if limit <= 0 {
		limit = defaultLimit
	}
	return &Store{
		path:  path,
		limit: limit,
		lock:  flock.New(path + ".lock"),
	}
}

// Append records one finished run, dropping the oldest entries beyond
// the bound.
func (s *Store) Append(ctx context.Context, e Entry) error {
	locked, err := s.lock.TryLockContext(ctx, lockRetryInterval)
	if err != nil {
		return fmt.Errorf("history lock: %w", err)
	}
	if !locked {
		return errors.New("history lock not acquired")
	}
	defer s.lock.Unlock()

	entries, err := s.read()
	if err != nil {
		return err
	}
	entries = append(entries, e)
	if len(entries) > s.limit {
		entries = entries[len(entries)-s.limit:]
	}
	return s.write(entries)
}

// Recent returns up to n entries, oldest first. n <= 0 returns all.
func (s *Store) Recent(ctx context.Context, n int) ([]Entry, error) {
	locked, err := s.lock.TryRLockContext(ctx, lockRetryInterval)
	if err != nil {
		return nil, fmt.Errorf("history lock: %w", err)
	}
	if !locked {
		return nil, errors.New("history lock not acquired")
	}
	defer s.lock.Unlock()

	entries, err := s.read()
	if err != nil {
		return nil, err
	}
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries, nil
}

func (s *Store) read() ([]Entry, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("history file: %w", err)
	}
	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("history file: %w", err)
	}
	return doc.Runs, nil
}

func (s *Store) write(entries []Entry) error {
	data, err := yaml.Marshal(fileDoc{Runs: entries})
	if err != nil {
		return fmt.Errorf("history file: %w", err)
	}
	return os.WriteFile(s.path, data, 0o644)
}
