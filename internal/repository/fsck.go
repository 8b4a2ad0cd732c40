package repository

import (
	"errors"
	"fmt"

	"github.com/flyingcircusio/backy/internal/chunkstore"
	"github.com/flyingcircusio/backy/internal/parity"
)

// FsckReport summarizes one pass of Fsck over a repository's chunk
// store.
type FsckReport struct {
	Checked  int
	Repaired []chunkstore.ID
	Failed   []chunkstore.ID
}

// Fsck walks every chunk known to the repository's store and confirms
// it still decodes and re-hashes to its own id. A chunk that fails
// this check is corrupt on local disk (spec.md §4.1's IntegrityError).
//
// With repair set, each corrupt chunk is handed to internal/parity,
// which reconstructs it from the Reed-Solomon sidecar Put wrote
// alongside it and re-verifies the result before accepting it. A chunk
// that repair cannot fix, or that Fsck finds corrupt with repair
// unset, is reported in FsckReport.Failed and the repository's
// revisions are distrusted exactly as a failed Get during Verify would
// (spec.md §4.1/§7).
func (r *Repository) Fsck(repair bool) (FsckReport, error) {
	release, err := r.lock(true)
	if err != nil {
		return FsckReport{}, err
	}
	defer release()

	var report FsckReport
	for _, id := range r.store.Ids() {
		report.Checked++

		if _, err := r.store.Get(id); err == nil {
			continue
		} else if !errors.Is(err, chunkstore.ErrIntegrity) {
			return report, fmt.Errorf("repository: fsck %s: %w", id, err)
		}

		if !repair {
			report.Failed = append(report.Failed, id)
			continue
		}

		if err := parity.Repair(r.store.Path(id)); err != nil {
			r.log.Warning("%s: parity repair: %v", id, err)
			report.Failed = append(report.Failed, id)
			continue
		}
		if _, err := r.store.Get(id); err != nil {
			r.log.Warning("%s: still failing integrity after repair: %v", id, err)
			report.Failed = append(report.Failed, id)
			continue
		}
		report.Repaired = append(report.Repaired, id)
	}

	if len(report.Failed) > 0 {
		if history, err := r.History(); err == nil {
			_ = r.distrustAll(history)
		}
	}
	return report, nil
}
