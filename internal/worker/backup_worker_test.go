package worker

import (
	"context"
	"path/filepath"
	"testing"

	"pennywise/internal/amqp"
	"pennywise/internal/cloud/memory"
	"pennywise/internal/core"
	"pennywise/internal/storage"
)

func TestHandleBackupRequestPushesCurrentState(t *testing.T) {
	ctx := context.Background()
	repo, err := storage.NewRepository(filepath.Join(t.TempDir(), "budget.db"))
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	defer repo.Close()

	if _, err := repo.CreateCategory(ctx, core.Category{Name: "Food"}); err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}

	store := memory.NewStore()
	w := NewBackupWorker(repo, store)

	if err := w.HandleBackupRequest(ctx, amqp.NewBackupRequest("alice")); err != nil {
		t.Fatalf("HandleBackupRequest: %v", err)
	}

	snap, err := store.Pull(ctx, "alice")
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if len(snap.Categories) != 1 || snap.Categories[0].Name != "Food" {
		t.Fatalf("pushed categories = %+v", snap.Categories)
	}
}

func TestStartupCheckSkipsWithoutOwner(t *testing.T) {
	ctx := context.Background()
	repo, err := storage.NewRepository(filepath.Join(t.TempDir(), "budget.db"))
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	defer repo.Close()

	store := memory.NewStore()
	w := NewBackupWorker(repo, store)

	if err := w.StartupCheck(ctx); err != nil {
		t.Fatalf("StartupCheck: %v", err)
	}
	if has, _ := store.HasBackup(ctx, ""); has {
		t.Fatal("startup check pushed a backup with no owner")
	}
}
