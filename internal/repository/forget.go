package repository

import (
	"github.com/flyingcircusio/backy/internal/chunkstore"
	"github.com/flyingcircusio/backy/internal/revision"
	"github.com/flyingcircusio/backy/internal/schedule"
)

// Forget removes a revision's metadata files under lock (spec.md §4.3).
// It does not run garbage collection; call Purge afterwards to reclaim
// chunks that are now unreferenced.
func (r *Repository) Forget(rev *revision.Revision) error {
	release, err := r.lock(true)
	if err != nil {
		return err
	}
	defer release()
	return r.forgetLocked(rev)
}

// forgetLocked removes rev's metadata files; callers must already hold
// the repository's exclusive lock.
func (r *Repository) forgetLocked(rev *revision.Revision) error {
	return rev.Remove()
}

// Expire runs the retention engine against sched and then purges
// chunks orphaned by any revisions it removed (spec.md §4.3, §4.5).
func (r *Repository) Expire(sched *schedule.Schedule) error {
	release, err := r.lock(true)
	if err != nil {
		return err
	}
	defer release()

	history, err := r.History()
	if err != nil {
		return err
	}

	removed, err := sched.Expire(history)
	if err != nil {
		return err
	}
	for _, rev := range removed {
		if err := rev.Remove(); err != nil {
			r.log.Warning("%s: failed to remove expired revision: %v", rev.UUID, err)
		}
	}

	remaining, err := r.History()
	if err != nil {
		return err
	}
	live := liveChunks(remaining)
	_, err = r.store.Purge(live)
	return err
}

// Purge reclaims chunks unreferenced by any current revision (spec.md
// §4.1).
func (r *Repository) Purge() (int, error) {
	release, err := r.lock(true)
	if err != nil {
		return 0, err
	}
	defer release()

	history, err := r.History()
	if err != nil {
		return 0, err
	}
	return r.store.Purge(liveChunks(history))
}

func liveChunks(h revision.History) map[chunkstore.ID]struct{} {
	live := make(map[chunkstore.ID]struct{})
	for _, rev := range h {
		for _, id := range rev.Chunks {
			live[id] = struct{}{}
		}
	}
	return live
}
