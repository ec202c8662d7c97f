// Package worker consumes backup requests and writes cloud backups out of
// process, so the interactive app never waits on the cloud.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"pennywise/internal/amqp"
	"pennywise/internal/cloud"
	"pennywise/internal/core"
	"pennywise/internal/services"
	"pennywise/internal/storage"
)

// BackupWorker turns queued backup requests into cloud pushes.
type BackupWorker struct {
	storage *storage.Repository
	pusher  cloud.Pusher
}

func NewBackupWorker(storage *storage.Repository, pusher cloud.Pusher) *BackupWorker {
	return &BackupWorker{
		storage: storage,
		pusher:  pusher,
	}
}

// HandleBackupRequest processes a single backup request from the queue. The
// snapshot is read from storage at processing time, so the push always
// reflects the latest local state rather than the state when the request
// was published.
func (w *BackupWorker) HandleBackupRequest(ctx context.Context, msg *amqp.BackupRequest) error {
	slog.InfoContext(ctx, "Processing backup request",
		"user_id", msg.UserID,
		"requested_at", msg.RequestedAt)

	snap, err := services.BuildSnapshot(ctx, w.storage)
	if err != nil {
		return fmt.Errorf("build snapshot: %w", err)
	}

	if err := w.pusher.Push(ctx, msg.UserID, snap); err != nil {
		return fmt.Errorf("push snapshot: %w", err)
	}

	slog.InfoContext(ctx, "Backup complete",
		"user_id", msg.UserID,
		"categories", len(snap.Categories),
		"transactions", len(snap.Transactions),
		"savings_goals", len(snap.SavingsGoals))

	return nil
}

// StartupCheck runs one immediate backup pass for the recorded owner, so a
// worker restart flushes anything missed while it was down. A database with
// no recorded owner is skipped.
func (w *BackupWorker) StartupCheck(ctx context.Context) error {
	owner, err := w.storage.GetSetting(ctx, core.KeyDBOwnerUID)
	if err != nil {
		return fmt.Errorf("read owner: %w", err)
	}
	if owner == "" {
		slog.InfoContext(ctx, "No recorded owner, skipping startup backup")
		return nil
	}

	req := amqp.NewBackupRequest(owner)
	if err := w.HandleBackupRequest(ctx, req); err != nil {
		return fmt.Errorf("startup backup: %w", err)
	}
	return nil
}
