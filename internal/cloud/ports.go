package cloud

import (
	"context"
	"time"

	"pennywise/internal/core"
)

// Snapshot is the full per-user dataset exchanged with the cloud backend.
// Each entity becomes one remote document keyed by its local id.
type Snapshot struct {
	Categories   []core.Category
	Transactions []core.Transaction
	SavingsGoals []core.SavingsGoal
	Settings     core.Settings
}

// Ports for outbound cloud adapters.
type (
	Pusher interface {
		// Push upserts every entity in the snapshot under the user's
		// namespace as a single atomic batch.
		Push(ctx context.Context, userID string, snap Snapshot) error
	}

	Puller interface {
		// Pull reads back every document for the user, stripped of sync
		// metadata.
		Pull(ctx context.Context, userID string) (Snapshot, error)
	}

	// Metadata answers backup questions without transferring entity data.
	Metadata interface {
		LastSyncTime(ctx context.Context, userID string) (time.Time, error)
		HasBackup(ctx context.Context, userID string) (bool, error)
	}

	Wiper interface {
		// DeleteAll removes every document under the user's namespace.
		DeleteAll(ctx context.Context, userID string) error
	}

	// Store is the full reconciliation surface.
	Store interface {
		Pusher
		Puller
		Metadata
		Wiper
	}
)
