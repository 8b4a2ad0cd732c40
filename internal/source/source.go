// Package source defines backy's pluggable source-adapter contract
// (spec.md §4.4) and its three reference implementations.
package source

import (
	"context"
	"errors"
	"time"

	"github.com/flyingcircusio/backy/internal/revision"
)

// Sentinel error kinds from spec.md §7. SourceUnavailable is transient
// (the scheduler backs off); SourceCorrupt aborts only the current
// revision without distrusting earlier ones.
var (
	ErrSourceUnavailable = errors.New("source: unavailable")
	ErrSourceCorrupt     = errors.New("source: corrupt block")
)

// ReadyTimeout bounds how long a Ready probe may take (spec.md §5).
const ReadyTimeout = 30 * time.Second

// Source is the capability set a volume backend must implement. It is
// represented as a plain interface rather than an inheritance chain
// (spec.md §9): each concrete adapter satisfies it directly.
type Source interface {
	// Size returns the logical size of the volume in bytes.
	Size(ctx context.Context) (int64, error)

	// Ready is a fast probe; a transient failure should be reported as
	// ErrSourceUnavailable so the scheduler can back off without treating
	// it as a hard failure.
	Ready(ctx context.Context) error

	// BlocksToExamine returns the block indices that must be read for
	// this backup. It may return every block of the volume (for
	// full-always sources, or when parent is nil) or only a superset of
	// the blocks changed since parent's timestamp.
	BlocksToExamine(ctx context.Context, parent *revision.Revision) ([]uint32, error)

	// ReadBlock reads up to chunkstore.ChunkSize bytes at block index i.
	// It returns fewer bytes only at end of volume.
	ReadBlock(ctx context.Context, i uint32) ([]byte, error)
}

// Snapshotting is implemented by sources that can scope a consistent
// view of the volume around a backup. SnapshotEnd is guaranteed to be
// called on every exit path once SnapshotBegin has succeeded.
type Snapshotting interface {
	SnapshotBegin(ctx context.Context) error
	SnapshotEnd(ctx context.Context, commit bool) error
}

// Verifier is implemented by sources capable of re-reading a block for
// post-backup sampling verification (spec.md §4.3 step 8).
type Verifier interface {
	VerifyBlock(ctx context.Context, i uint32, want []byte) (bool, error)
}
