// Package repository implements backy's per-repository storage engine:
// the ordered revision history, the backup/restore algorithms and the
// forget/expire/verify operations built on top of internal/chunkstore
// and internal/revision (spec.md §4.3).
package repository

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/flyingcircusio/backy/internal/blog"
	"github.com/flyingcircusio/backy/internal/chunkstore"
	"github.com/flyingcircusio/backy/internal/revision"
)

// Repository is a directory holding a chunk store and all of one
// source's revisions (spec.md §3).
type Repository struct {
	dir   string
	log   *blog.Logger
	store *chunkstore.Store
	qtn   *chunkstore.Quarantine
}

// Open opens (creating if necessary) the repository at dir.
func Open(dir string, log *blog.Logger) (*Repository, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, err
	}
	store, err := chunkstore.Open(filepath.Join(dir, "chunks"), log)
	if err != nil {
		return nil, err
	}
	qtn, err := chunkstore.OpenQuarantine(dir)
	if err != nil {
		return nil, err
	}
	return &Repository{dir: dir, log: log, store: store, qtn: qtn}, nil
}

// Dir returns the repository's root directory.
func (r *Repository) Dir() string { return r.dir }

// Store returns the repository's chunk store.
func (r *Repository) Store() *chunkstore.Store { return r.store }

// History loads every revision persisted in the repository, ascending by
// timestamp.
func (r *Repository) History() (revision.History, error) {
	uuids, err := revision.ListUUIDs(r.dir)
	if err != nil {
		return nil, err
	}
	h := make(revision.History, 0, len(uuids))
	for _, u := range uuids {
		rev, err := revision.Load(r.dir, u)
		if err != nil {
			r.log.Warning("%s: failed to load revision, skipping: %v", u, err)
			continue
		}
		h = append(h, rev)
	}
	return h.SortByTimestamp(), nil
}

// hasDistrusted reports whether any revision in the repository is
// currently DISTRUSTED (spec.md §3's "distrust floor").
func hasDistrusted(h revision.History) bool {
	for _, r := range h {
		if r.Trust == revision.Distrusted {
			return true
		}
	}
	return false
}

// distrustAll marks every revision of the repository DISTRUSTED, the
// promotion policy from spec.md §4.1/§7 that follows a single
// IntegrityError from the chunk store.
func (r *Repository) distrustAll(h revision.History) error {
	for _, rev := range h {
		if rev.Trust == revision.Distrusted {
			continue
		}
		if err := rev.SetTrust(revision.Distrusted); err != nil {
			return fmt.Errorf("repository: distrusting %s: %w", rev.UUID, err)
		}
	}
	return nil
}

// syncParanoidMode reflects the repository's current distrust floor into
// the chunk store's paranoid mode.
func (r *Repository) syncParanoidMode(h revision.History) {
	r.store.SetParanoid(hasDistrusted(h))
}
