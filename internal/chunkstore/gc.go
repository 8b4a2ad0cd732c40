package chunkstore

import (
	"os"
	"path/filepath"
)

// unlinkBatchSize bounds how many removals are issued before the
// enclosing directory is fsynced, per spec.md §4.1 ("batches of at least
// 1024 to improve metadata locality").
const unlinkBatchSize = 1024

// UnlinkUnreferenced walks the chunk tree and removes every file whose id
// is not in live. Removals are batched and each batch is followed by a
// single fsync on the enclosing shard directory.
func (s *Store) UnlinkUnreferenced(live map[ID]struct{}) (removed int, err error) {
	s.mu.RLock()
	candidates := make([]ID, 0, len(s.index))
	for id := range s.index {
		if _, ok := live[id]; !ok {
			candidates = append(candidates, id)
		}
	}
	s.mu.RUnlock()

	touchedDirs := make(map[string]struct{})
	pending := 0

	flush := func() error {
		for dir := range touchedDirs {
			f, err := os.Open(dir)
			if err != nil {
				continue
			}
			_ = f.Sync()
			f.Close()
		}
		touchedDirs = make(map[string]struct{})
		pending = 0
		return nil
	}

	for _, id := range candidates {
		path := s.chunkPath(id)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return removed, err
		}
		s.mu.Lock()
		delete(s.index, id)
		s.mu.Unlock()

		removed++
		pending++
		touchedDirs[filepath.Dir(path)] = struct{}{}

		if pending >= unlinkBatchSize {
			if err := flush(); err != nil {
				return removed, err
			}
		}
	}
	if pending > 0 {
		if err := flush(); err != nil {
			return removed, err
		}
	}
	return removed, nil
}

// Purge rescans the store from disk and then removes everything not
// referenced by live. It is the composition named in spec.md §4.1.
func (s *Store) Purge(live map[ID]struct{}) (removed int, err error) {
	if err := s.Scan(); err != nil {
		return 0, err
	}
	return s.UnlinkUnreferenced(live)
}
