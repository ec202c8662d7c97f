package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pennywise/internal/cloud"
	"pennywise/internal/cloud/memory"
	"pennywise/internal/core"
)

func seedOwner(t *testing.T, repo interface {
	SetSetting(ctx context.Context, key, value string) error
}, uid string) {
	t.Helper()
	ctx := context.Background()
	if err := repo.SetSetting(ctx, core.KeyDBOwnerUID, uid); err != nil {
		t.Fatalf("SetSetting owner: %v", err)
	}
}

func TestTriggerPushesSnapshot(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	store := memory.NewStore()
	seedOwner(t, repo, "user-1")

	if _, err := repo.CreateCategory(ctx, core.Category{Name: "Food"}); err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}

	svc := NewAutoSync(repo, store, nil)
	svc.Trigger(ctx)

	if err := svc.LastError(); err != nil {
		t.Fatalf("LastError = %v", err)
	}
	if svc.LastSync().IsZero() {
		t.Fatal("LastSync not recorded")
	}

	has, err := store.HasBackup(ctx, "user-1")
	if err != nil || !has {
		t.Fatalf("HasBackup = (%v, %v), want backup present", has, err)
	}
	snap, err := store.Pull(ctx, "user-1")
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if len(snap.Categories) != 1 || snap.Categories[0].Name != "Food" {
		t.Fatalf("pushed categories = %+v", snap.Categories)
	}
}

func TestTriggerSkipsWhenDisabledOrSignedOut(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	store := memory.NewStore()
	svc := NewAutoSync(repo, store, nil)

	// No owner recorded.
	svc.Trigger(ctx)
	if has, _ := store.HasBackup(ctx, "user-1"); has {
		t.Fatal("push happened with no signed-in user")
	}

	seedOwner(t, repo, "user-1")
	if err := repo.SetSetting(ctx, core.KeyAutoSyncEnabled, "false"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	svc.Trigger(ctx)
	if has, _ := store.HasBackup(ctx, "user-1"); has {
		t.Fatal("push happened while auto-sync disabled")
	}
}

// blockingPusher holds every push until released.
type blockingPusher struct {
	started chan struct{}
	release chan struct{}

	mu     sync.Mutex
	pushes int
}

func (p *blockingPusher) Push(ctx context.Context, userID string, snap cloud.Snapshot) error {
	p.mu.Lock()
	p.pushes++
	p.mu.Unlock()
	p.started <- struct{}{}
	<-p.release
	return nil
}

func TestTriggerDropsConcurrentRequests(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	seedOwner(t, repo, "user-1")

	pusher := &blockingPusher{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	svc := NewAutoSync(repo, pusher, nil)

	done := make(chan struct{})
	go func() {
		svc.Trigger(ctx)
		close(done)
	}()
	<-pusher.started

	// A second trigger while the first is in flight is dropped.
	svc.Trigger(ctx)

	close(pusher.release)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("first trigger never completed")
	}

	pusher.mu.Lock()
	defer pusher.mu.Unlock()
	if pusher.pushes != 1 {
		t.Fatalf("pushes = %d, want concurrent request dropped", pusher.pushes)
	}
}

// failingPusher always errors.
type failingPusher struct{ err error }

func (p failingPusher) Push(context.Context, string, cloud.Snapshot) error { return p.err }

func TestTriggerRecordsFailure(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	seedOwner(t, repo, "user-1")

	wantErr := errors.New("cloud unavailable")
	svc := NewAutoSync(repo, failingPusher{err: wantErr}, nil)
	svc.Trigger(ctx)

	if err := svc.LastError(); !errors.Is(err, wantErr) {
		t.Fatalf("LastError = %v, want wrapped %v", err, wantErr)
	}
	if !svc.LastSync().IsZero() {
		t.Fatal("LastSync recorded despite failure")
	}
}

// recordingRequester captures queued backup requests.
type recordingRequester struct {
	mu   sync.Mutex
	uids []string
}

func (r *recordingRequester) RequestBackup(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uids = append(r.uids, userID)
	return nil
}

func TestTriggerPrefersQueueWhenConfigured(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	seedOwner(t, repo, "user-7")

	store := memory.NewStore()
	req := &recordingRequester{}
	svc := NewAutoSync(repo, store, req)
	svc.Trigger(ctx)

	req.mu.Lock()
	defer req.mu.Unlock()
	if len(req.uids) != 1 || req.uids[0] != "user-7" {
		t.Fatalf("queued requests = %v", req.uids)
	}
	if has, _ := store.HasBackup(ctx, "user-7"); has {
		t.Fatal("in-process push ran despite configured queue")
	}
}
