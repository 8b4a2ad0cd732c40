package repository

import (
	"time"
)

// Status summarizes a repository's current state for the admin-status
// hook and the backup-completion callback (spec.md §4.6, §9).
type Status struct {
	Name            string          `yaml:"name"`
	RevisionCount   int             `yaml:"revision_count"`
	Newest          *time.Time      `yaml:"newest,omitempty"`
	Oldest          *time.Time      `yaml:"oldest,omitempty"`
	DistrustFloor   bool            `yaml:"distrust_floor"`
	ChunksWritten   int64           `yaml:"chunks_written"`
	ChunksReused    int64           `yaml:"chunks_reused"`
	Tags            map[string]bool `yaml:"tags,omitempty"`
}

// Status builds a Status snapshot for the repository.
func (r *Repository) Status(name string) (Status, error) {
	history, err := r.History()
	if err != nil {
		return Status{}, err
	}
	completed := history.Completed()

	st := Status{
		Name:          name,
		RevisionCount: len(completed),
		DistrustFloor: hasDistrusted(history),
	}
	if len(completed) > 0 {
		oldest := completed[0].Timestamp
		newest := completed[len(completed)-1].Timestamp
		st.Oldest = &oldest
		st.Newest = &newest
	}

	tags := make(map[string]bool)
	for _, rev := range completed {
		for _, t := range rev.Tags {
			tags[t] = true
		}
	}
	st.Tags = tags

	written, reused := r.store.Stats()
	st.ChunksWritten = written
	st.ChunksReused = reused

	return st, nil
}
