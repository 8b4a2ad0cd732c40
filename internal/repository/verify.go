package repository

import (
	"context"
	"errors"

	"github.com/flyingcircusio/backy/internal/chunkstore"
	"github.com/flyingcircusio/backy/internal/revision"
	"github.com/flyingcircusio/backy/internal/source"
)

// Verify re-reads every chunk of rev through the chunk store (which
// hashes it) and, where src supports it, compares against a fresh read
// from the source. On full success rev is marked VERIFIED; on any
// mismatch rev is forgotten (spec.md §4.3).
func (r *Repository) Verify(ctx context.Context, rev *revision.Revision, src source.Source) error {
	release, err := r.lock(true)
	if err != nil {
		return err
	}
	defer release()

	verifier, _ := src.(source.Verifier)

	mismatch := false
	for offset, id := range rev.Chunks {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		chunk, err := r.store.Get(id)
		if err != nil {
			if errors.Is(err, chunkstore.ErrIntegrity) {
				if history, herr := r.History(); herr == nil {
					_ = r.distrustAll(history)
				}
			}
			mismatch = true
			continue
		}

		if verifier != nil {
			ok, verr := verifier.VerifyBlock(ctx, offset, chunk)
			if verr != nil {
				r.log.Warning("%s: verify block %d: %v", rev.UUID, offset, verr)
				continue
			}
			if !ok {
				_ = r.qtn.Store(id, chunk)
				mismatch = true
			}
		}
	}

	if mismatch {
		return r.forgetLocked(rev)
	}
	return rev.SetTrust(revision.Verified)
}
