package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/flyingcircusio/backy/internal/chunkstore"
	"github.com/flyingcircusio/backy/internal/revision"
	"github.com/flyingcircusio/backy/internal/source"
)

// Backup runs the reverse-incremental, content-addressed backup
// algorithm from spec.md §4.3 against src, tagging the resulting
// revision with tags. On any failure the partial revision is removed
// and the repository lock is released before returning.
func (r *Repository) Backup(ctx context.Context, src source.Source, tags []string) (*revision.Revision, error) {
	release, err := r.lock(true)
	if err != nil {
		return nil, err
	}
	defer release()

	readyCtx, cancelReady := context.WithTimeout(ctx, source.ReadyTimeout)
	err = src.Ready(readyCtx)
	cancelReady()
	if err != nil {
		return nil, err
	}

	history, err := r.History()
	if err != nil {
		return nil, err
	}
	r.syncParanoidMode(history)

	parent := history.Newest()
	rev := revision.New(r.dir, tags)

	size, err := src.Size(ctx)
	if err != nil {
		return nil, err
	}
	rev.Size = size

	forceFull := parent != nil && parent.Trust == revision.Distrusted

	if err := r.runBackup(ctx, src, rev, parent, forceFull); err != nil {
		_ = rev.Remove()
		return nil, err
	}

	start := rev.Timestamp
	if err := rev.Complete(start); err != nil {
		_ = rev.Remove()
		return nil, err
	}

	r.verifyAfterBackup(ctx, src, rev)

	return rev, nil
}

func (r *Repository) runBackup(ctx context.Context, src source.Source, rev, parent *revision.Revision, forceFull bool) (err error) {
	if snapper, ok := src.(source.Snapshotting); ok {
		if err := snapper.SnapshotBegin(ctx); err != nil {
			return err
		}
		// err is the named return value: by the time this runs, it holds
		// the function's final result, so the snapshot is committed iff
		// the backup actually succeeded.
		defer func() {
			_ = snapper.SnapshotEnd(ctx, err == nil)
		}()
	}

	var examineParent *revision.Revision
	if !forceFull {
		examineParent = parent
	}

	blocks, err := src.BlocksToExamine(ctx, examineParent)
	if err != nil {
		return err
	}

	examined := make(map[uint32]struct{}, len(blocks))
	for _, b := range blocks {
		examined[b] = struct{}{}
	}

	session := r.store.NewSession()

	for _, i := range blocks {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		data, err := src.ReadBlock(ctx, i)
		if err != nil {
			return fmt.Errorf("repository: reading block %d: %w", i, err)
		}
		rev.Stats.BytesRead += uint64(len(data))

		if isAllZero(data) {
			delete(rev.Chunks, i)
			continue
		}

		id, err := session.Put(data)
		if err != nil {
			return fmt.Errorf("repository: writing block %d: %w", i, err)
		}
		rev.Chunks[i] = id
	}

	if parent != nil {
		nBlocks := parent.NBlocks()
		if rev.NBlocks() > nBlocks {
			nBlocks = rev.NBlocks()
		}
		for i := uint32(0); i < nBlocks; i++ {
			if _, done := examined[i]; done {
				continue
			}
			if id, ok := parent.Chunks[i]; ok {
				rev.Chunks[i] = id
			}
		}
	}

	written, reused := r.store.Stats()
	rev.Stats.ChunksWritten = uint64(written)
	rev.Stats.ChunksReused = uint64(reused)

	return nil
}

func isAllZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// verifyAfterBackup performs the post-backup sampling verification from
// spec.md §4.3 step 8. Mismatches are quarantined and demote the
// revision's trust; they never fail the backup itself.
func (r *Repository) verifyAfterBackup(ctx context.Context, src source.Source, rev *revision.Revision) {
	verifier, ok := src.(source.Verifier)
	if !ok {
		return
	}

	total := len(rev.Chunks)
	if total == 0 {
		return
	}
	n := total
	if n > 1000 {
		n = 1000
	}

	sample := sampleOffsets(rev.Chunks, n)

	deadline := time.Now().Add(5 * time.Minute)
	mismatch := false
	for _, off := range sample {
		if time.Now().After(deadline) {
			r.log.Warning("%s: verification budget exceeded, stopping early", rev.UUID)
			break
		}
		id := rev.Chunks[off]
		chunk, err := r.store.Get(id)
		if err != nil {
			r.log.Error("%s: block %d: %v", rev.UUID, off, err)
			mismatch = true
			continue
		}
		ok, err := verifier.VerifyBlock(ctx, off, chunk)
		if err != nil {
			r.log.Warning("%s: verify block %d: %v", rev.UUID, off, err)
			continue
		}
		if !ok {
			_ = r.qtn.Store(id, chunk)
			mismatch = true
		}
	}

	if mismatch {
		_ = rev.SetTrust(revision.Distrusted)
	}
}

func sampleOffsets(chunks map[uint32]chunkstore.ID, n int) []uint32 {
	offs := make([]uint32, 0, len(chunks))
	for off := range chunks {
		offs = append(offs, off)
	}
	if len(offs) <= n {
		return offs
	}
	// Deterministic stride-based sample: no math/rand dependency needed
	// and no risk of biasing toward low offsets the way a naive prefix
	// would.
	stride := len(offs) / n
	if stride == 0 {
		stride = 1
	}
	out := make([]uint32, 0, n)
	for i := 0; i < len(offs) && len(out) < n; i += stride {
		out = append(out, offs[i])
	}
	return out
}
