package dlq

import (
	"context"
	"time"

	"github.com/xraph/courier/id"
)

// Store is the persistence contract for dead letter entries. Replay does not
// delete: a replayed entry stays in the queue with ReplayedAt set, so the
// DLQ doubles as an audit trail of every terminal failure.
type Store interface {
	// Push records a permanently failed delivery.
	Push(ctx context.Context, entry *Entry) error

	// ListDLQ returns entries matching opts, newest failure first.
	ListDLQ(ctx context.Context, opts ListOpts) ([]*Entry, error)

	// GetDLQ returns one entry by ID.
	GetDLQ(ctx context.Context, dlqID id.ID) (*Entry, error)

	// Replay enqueues a fresh delivery built from the entry and marks the
	// entry replayed. Replaying an already-replayed entry enqueues again.
	Replay(ctx context.Context, dlqID id.ID) error

	// ReplayBulk replays every not-yet-replayed entry whose failure time
	// falls in [from, to] and returns how many it enqueued.
	ReplayBulk(ctx context.Context, from, to time.Time) (int64, error)

	// Purge deletes entries that failed before the cutoff and returns how
	// many were removed.
	Purge(ctx context.Context, before time.Time) (int64, error)

	// CountDLQ returns the total number of entries, replayed included.
	CountDLQ(ctx context.Context) (int64, error)
}
