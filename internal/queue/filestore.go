package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileStore persists the queue as a single JSON document on a shared
// filesystem. Writes go through a temp file plus rename, and mutation happens
// under a sidecar lock file so independent worker processes sharing the path
// serialize their read-check-write sections; the version check inside that
// section is what turns a concurrent commit into ErrConflict instead of a
// lost update.
type FileStore struct {
	path string

	mu sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Fetch(ctx context.Context) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.load()
}

func (s *FileStore) Commit(ctx context.Context, muts []Mutation, expectedVersion int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.acquireFileLock(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	doc, err := s.load()
	if err != nil {
		return 0, err
	}
	if doc.Version != expectedVersion {
		return 0, fmt.Errorf("stored version %d, expected %d: %w", doc.Version, expectedVersion, ErrConflict)
	}
	if err := applyAll(doc, muts); err != nil {
		return 0, fmt.Errorf("apply mutations: %w", err)
	}
	if err := s.write(doc); err != nil {
		return 0, err
	}
	return doc.Version, nil
}

func (s *FileStore) Seed(ctx context.Context, jobs []Job) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.acquireFileLock(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	doc, err := s.load()
	if errors.Is(err, ErrNotInitialized) {
		doc = &Document{Version: 0, Jobs: nil}
	} else if err != nil {
		return 0, err
	}

	existing := make(map[string]bool, len(doc.Jobs))
	for _, j := range doc.Jobs {
		existing[j.ID] = true
	}

	added := 0
	for _, j := range jobs {
		if existing[j.ID] {
			continue
		}
		existing[j.ID] = true
		doc.Jobs = append(doc.Jobs, j)
		added++
	}

	doc.Version++
	if err := s.write(doc); err != nil {
		return 0, err
	}
	return added, nil
}

func (s *FileStore) Stats(ctx context.Context) (Stats, error) {
	doc, err := s.Fetch(ctx)
	if err != nil {
		return Stats{}, err
	}
	return doc.Stats(), nil
}

func (s *FileStore) load() (*Document, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", s.path, ErrNotInitialized)
	}
	if err != nil {
		return nil, fmt.Errorf("read queue document: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse queue document: %w", err)
	}
	return &doc, nil
}

func (s *FileStore) write(doc *Document) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create queue directory: %w", err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode queue document: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write queue document: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace queue document: %w", err)
	}
	return nil
}

const (
	lockRetryInterval = 25 * time.Millisecond
	lockWaitTimeout   = 10 * time.Second
)

// acquireFileLock takes the sidecar lock via O_EXCL creation. A crashed
// holder leaves the lock behind; waiters give up after lockWaitTimeout so the
// operator sees the stale lock instead of a silent hang.
func (s *FileStore) acquireFileLock(ctx context.Context) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return nil, fmt.Errorf("create queue directory: %w", err)
	}
	lockPath := s.path + ".lock"
	deadline := time.Now().Add(lockWaitTimeout)
	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			f.Close()
			return func() { os.Remove(lockPath) }, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("acquire queue lock: %w", err)
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("queue lock %s held too long; remove it if the holder is dead", lockPath)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}
}
