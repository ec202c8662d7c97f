package memory

import (
	"context"
	"testing"
	"time"

	"pennywise/internal/cloud"
	"pennywise/internal/core"
)

func TestPushPullRoundTrip(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	catID := int64(1)
	snap := cloud.Snapshot{
		Categories: []core.Category{{ID: 1, Name: "Food", MonthlyBudget: core.Money{Cents: 10000}}},
		Transactions: []core.Transaction{{
			ID: 7, Type: core.Expense, CategoryID: &catID,
			Amount: core.Money{Cents: 2500}, Date: core.NewDate(2024, 5, 1),
		}},
		SavingsGoals: []core.SavingsGoal{{ID: 3, Name: "Trip", TargetAmount: core.Money{Cents: 50000}}},
		Settings:     core.Settings{Currency: "€", AutoSyncEnabled: true},
	}

	if err := store.Push(ctx, "uid-1", snap); err != nil {
		t.Fatalf("push: %v", err)
	}

	got, err := store.Pull(ctx, "uid-1")
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	if len(got.Categories) != 1 || got.Categories[0].Name != "Food" {
		t.Errorf("categories mismatch: %+v", got.Categories)
	}
	if len(got.Transactions) != 1 || got.Transactions[0].Amount.Cents != 2500 {
		t.Errorf("transactions mismatch: %+v", got.Transactions)
	}
	if got.Settings.Currency != "€" {
		t.Errorf("settings mismatch: %+v", got.Settings)
	}
}

func TestPullIsIsolatedPerUser(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	snap := cloud.Snapshot{Settings: core.Settings{Currency: "$"}}
	if err := store.Push(ctx, "uid-a", snap); err != nil {
		t.Fatalf("push: %v", err)
	}

	other, err := store.Pull(ctx, "uid-b")
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	if len(other.Categories) != 0 || other.Settings.Currency != "" {
		t.Errorf("uid-b should see no data, got %+v", other)
	}
}

func TestMetadataAndDelete(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	stamp := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return stamp })

	has, err := store.HasBackup(ctx, "uid-1")
	if err != nil || has {
		t.Fatalf("no backup expected before push, got %v, %v", has, err)
	}
	if ts, _ := store.LastSyncTime(ctx, "uid-1"); !ts.IsZero() {
		t.Errorf("last sync should be zero before push, got %v", ts)
	}

	if err := store.Push(ctx, "uid-1", cloud.Snapshot{}); err != nil {
		t.Fatalf("push: %v", err)
	}
	has, _ = store.HasBackup(ctx, "uid-1")
	if !has {
		t.Error("backup expected after push")
	}
	ts, _ := store.LastSyncTime(ctx, "uid-1")
	if !ts.Equal(stamp) {
		t.Errorf("last sync = %v, want %v", ts, stamp)
	}

	if err := store.DeleteAll(ctx, "uid-1"); err != nil {
		t.Fatalf("delete all: %v", err)
	}
	has, _ = store.HasBackup(ctx, "uid-1")
	if has {
		t.Error("backup should be gone after delete")
	}
}

func TestPushCopiesSnapshot(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	snap := cloud.Snapshot{
		Categories: []core.Category{{ID: 1, Name: "Food"}},
	}
	if err := store.Push(ctx, "uid-1", snap); err != nil {
		t.Fatalf("push: %v", err)
	}
	snap.Categories[0].Name = "Mutated"

	got, _ := store.Pull(ctx, "uid-1")
	if got.Categories[0].Name != "Food" {
		t.Error("store must not alias the caller's slices")
	}
}
