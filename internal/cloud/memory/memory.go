// Package memory provides an in-memory cloud store for tests and offline use.
package memory

import (
	"context"
	"sync"
	"time"

	"pennywise/internal/cloud"
)

type backup struct {
	snap     cloud.Snapshot
	syncedAt time.Time
}

type Store struct {
	mu      sync.Mutex
	backups map[string]backup
	now     func() time.Time
}

var _ cloud.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		backups: make(map[string]backup),
		now:     time.Now,
	}
}

// SetClock overrides the server-timestamp source, for tests.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Push replaces the user's backup wholesale; the whole call is one batch.
func (s *Store) Push(_ context.Context, userID string, snap cloud.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backups[userID] = backup{snap: copySnapshot(snap), syncedAt: s.now()}
	return nil
}

func (s *Store) Pull(_ context.Context, userID string) (cloud.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.backups[userID]
	if !ok {
		return cloud.Snapshot{}, nil
	}
	return copySnapshot(b.snap), nil
}

func (s *Store) LastSyncTime(_ context.Context, userID string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.backups[userID]
	if !ok {
		return time.Time{}, nil
	}
	return b.syncedAt, nil
}

func (s *Store) HasBackup(_ context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.backups[userID]
	return ok, nil
}

func (s *Store) DeleteAll(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.backups, userID)
	return nil
}

func copySnapshot(in cloud.Snapshot) cloud.Snapshot {
	out := in
	out.Categories = append(in.Categories[:0:0], in.Categories...)
	out.Transactions = append(in.Transactions[:0:0], in.Transactions...)
	out.SavingsGoals = append(in.SavingsGoals[:0:0], in.SavingsGoals...)
	return out
}
