package chunkstore

import (
	"os"
	"path/filepath"
)

// Quarantine is a per-repository directory preserving chunks that failed
// verification against freshly re-read source data (spec.md §3's
// "Quarantine"). It is never consulted by the read path; it exists only
// for forensics.
type Quarantine struct {
	dir string
}

// OpenQuarantine ensures the quarantine directory under repoDir exists.
func OpenQuarantine(repoDir string) (*Quarantine, error) {
	dir := filepath.Join(repoDir, "quarantine")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &Quarantine{dir: dir}, nil
}

// Store preserves the plaintext chunk that disagreed with the source
// under the given id, for forensic inspection.
func (q *Quarantine) Store(id ID, plaintext []byte) error {
	path := filepath.Join(q.dir, id.String())
	return os.WriteFile(path, plaintext, 0o440)
}

// Dir returns the quarantine directory path.
func (q *Quarantine) Dir() string { return q.dir }
