package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"pennywise/internal/cloud"
	"pennywise/internal/core"
	"pennywise/internal/storage"
)

// BackupRequester hands a backup request off to an out-of-process worker.
// The AMQP client implements this.
type BackupRequester interface {
	RequestBackup(ctx context.Context, userID string) error
}

// BuildSnapshot assembles the full local dataset for a cloud push.
func BuildSnapshot(ctx context.Context, repo *storage.Repository) (cloud.Snapshot, error) {
	var snap cloud.Snapshot

	categories, err := repo.ListCategories(ctx)
	if err != nil {
		return snap, fmt.Errorf("list categories: %w", err)
	}
	transactions, err := repo.ListTransactions(ctx)
	if err != nil {
		return snap, fmt.Errorf("list transactions: %w", err)
	}
	goals, err := repo.ListSavingsGoals(ctx)
	if err != nil {
		return snap, fmt.Errorf("list savings goals: %w", err)
	}
	raw, err := repo.AllSettings(ctx)
	if err != nil {
		return snap, fmt.Errorf("load settings: %w", err)
	}

	snap.Categories = categories
	snap.Transactions = transactions
	snap.SavingsGoals = goals
	snap.Settings = core.ParseSettings(raw)
	return snap, nil
}

// AutoSync performs best-effort cloud pushes after local mutations. A
// request while another push is in flight is dropped, not queued. Failures
// are logged and recorded, never returned to the mutation that triggered
// them.
type AutoSync struct {
	storage   *storage.Repository
	pusher    cloud.Pusher
	requester BackupRequester

	group singleflight.Group

	mu       sync.Mutex
	inFlight bool
	lastErr  error
	lastSync time.Time

	now func() time.Time
}

// NewAutoSync creates an auto-sync service. requester may be nil, in which
// case pushes run in-process through the pusher.
func NewAutoSync(storage *storage.Repository, pusher cloud.Pusher, requester BackupRequester) *AutoSync {
	return &AutoSync{
		storage:   storage,
		pusher:    pusher,
		requester: requester,
		now:       time.Now,
	}
}

// Trigger runs one best-effort backup pass. It never returns an error;
// callers fire it after a mutation and move on.
func (s *AutoSync) Trigger(ctx context.Context) {
	raw, err := s.storage.AllSettings(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Auto-sync settings load failed", "error", err)
		s.record(err)
		return
	}
	settings := core.ParseSettings(raw)

	if !settings.AutoSyncEnabled {
		slog.DebugContext(ctx, "Auto-sync disabled, skipping")
		return
	}
	userID := settings.DBOwnerUID
	if userID == "" {
		slog.DebugContext(ctx, "Auto-sync skipped, no signed-in user")
		return
	}

	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		slog.InfoContext(ctx, "Auto-sync already in progress, dropping request", "user_id", userID)
		return
	}
	s.inFlight = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.inFlight = false
		s.mu.Unlock()
	}()

	_, err, _ = s.group.Do(userID, func() (any, error) {
		return nil, s.push(ctx, userID)
	})
	if err != nil {
		slog.ErrorContext(ctx, "Auto-sync push failed", "user_id", userID, "error", err)
	} else {
		slog.InfoContext(ctx, "Auto-sync completed", "user_id", userID)
	}
	s.record(err)
}

func (s *AutoSync) push(ctx context.Context, userID string) error {
	if s.requester != nil {
		if err := s.requester.RequestBackup(ctx, userID); err != nil {
			return fmt.Errorf("publish backup request: %w", err)
		}
		return nil
	}

	snap, err := BuildSnapshot(ctx, s.storage)
	if err != nil {
		return err
	}
	if err := s.pusher.Push(ctx, userID, snap); err != nil {
		return fmt.Errorf("push snapshot: %w", err)
	}
	return nil
}

func (s *AutoSync) record(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
	if err == nil {
		s.lastSync = s.now()
	}
}

// LastError returns the error of the most recent pass, nil after success.
func (s *AutoSync) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// LastSync returns the local completion time of the last successful pass.
func (s *AutoSync) LastSync() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSync
}
