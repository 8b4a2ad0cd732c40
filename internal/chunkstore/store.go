package chunkstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/flyingcircusio/backy/internal/blog"
	"github.com/flyingcircusio/backy/internal/parity"
)

// parityDataShards and parityParityShards size the Reed-Solomon sidecar
// written alongside every chunk file. They are fixed rather than
// configurable: the sidecar is a forensic repair aid (internal/parity),
// not a tunable redundancy knob.
const (
	parityDataShards   = 4
	parityParityShards = 2
)

// FileSuffix names the on-disk extension new chunk files are written
// with. Existing repositories keep using ".chunk.lzo" (spec.md §6); the
// suffix does not change the decoder, only where new chunks land.
const FileSuffix = ".chunk.lzo"

// Store is a directory of content-addressed, compressed chunk files plus
// an in-memory index of known chunk ids (spec.md §3's ChunkStore).
type Store struct {
	dir  string
	log  *blog.Logger
	mu   sync.RWMutex
	index map[ID]struct{}

	// paranoid is set once any revision in the owning repository is
	// DISTRUSTED (spec.md §4.1); while set, Put always performs I/O and
	// verifies what it wrote by reading it back.
	paranoid bool

	chunksWritten int64
	chunksReused  int64
}

// Open opens (creating if necessary) the chunk store rooted at dir,
// scanning the on-disk tree to rebuild the id index.
func Open(dir string, log *blog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	s := &Store{dir: dir, log: log, index: make(map[ID]struct{})}
	if err := s.Scan(); err != nil {
		return nil, err
	}
	return s, nil
}

// SetParanoid enables or disables paranoid mode (spec.md §4.1).
func (s *Store) SetParanoid(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paranoid = v
}

// Paranoid reports whether the store is currently in paranoid mode.
func (s *Store) Paranoid() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paranoid
}

func (s *Store) chunkDir(id ID) string {
	return filepath.Join(s.dir, id.Shard())
}

func (s *Store) chunkPath(id ID) string {
	return filepath.Join(s.chunkDir(id), id.String()+FileSuffix)
}

// Scan rebuilds the in-memory index from the on-disk chunk tree. It is
// called at Open and may be called again to fix up a dropped or partial
// index (spec.md §4.1).
func (s *Store) Scan() error {
	shards, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}
	index := make(map[ID]struct{})
	for _, shard := range shards {
		if !shard.IsDir() {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(s.dir, shard.Name()))
		if err != nil {
			return err
		}
		for _, e := range entries {
			name := e.Name()
			const suffixLen = len(FileSuffix)
			if len(name) < suffixLen || name[len(name)-suffixLen:] != FileSuffix {
				continue
			}
			idStr := name[:len(name)-suffixLen]
			id, err := ParseID(idStr)
			if err != nil {
				s.log.Warning("%s: not a chunk id, skipping during scan", name)
				continue
			}
			index[id] = struct{}{}
		}
	}
	s.mu.Lock()
	s.index = index
	s.mu.Unlock()
	return nil
}

// Contains reports whether a chunk with the given id is known to exist.
func (s *Store) Contains(id ID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.index[id]
	return ok
}

// Put stores plaintext, returning its id. Put is idempotent: storing the
// same bytes twice yields the same id and leaves exactly one chunk file
// on disk (spec.md §8, law 1). Outside paranoid mode a cache hit on the
// index short-circuits all I/O.
func (s *Store) Put(plaintext []byte) (ID, error) {
	id := Hash(plaintext)

	if !s.Paranoid() && s.Contains(id) {
		s.mu.Lock()
		s.chunksReused++
		s.mu.Unlock()
		return id, nil
	}

	if err := s.writeChunk(id, plaintext); err != nil {
		return id, err
	}

	s.mu.Lock()
	s.index[id] = struct{}{}
	s.chunksWritten++
	s.mu.Unlock()

	return id, nil
}

func (s *Store) writeChunk(id ID, plaintext []byte) error {
	dir := s.chunkDir(id)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	target := s.chunkPath(id)

	tmp, err := os.CreateTemp(dir, ".tmp-"+id.String()+"-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	compressed := compress(plaintext)
	if _, err := tmp.Write(compressed); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o440); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return err
	}

	if s.Paranoid() {
		readBack, err := s.readChunkFile(target)
		if err != nil {
			return fmt.Errorf("chunkstore: paranoid verify of %s: %w", id, err)
		}
		if Hash(readBack) != id {
			return fmt.Errorf("%w: %s failed paranoid write verification", ErrIntegrity, id)
		}
	}

	if err := parity.Encode(target, parityDataShards, parityParityShards); err != nil {
		s.log.Warning("%s: writing parity sidecar: %v", id, err)
	}
	return nil
}

// Get reads and decompresses the chunk with the given id, always
// re-hashing the result and returning ErrIntegrity if the content does
// not match id (spec.md §4.1). A chunk file whose bytes no longer
// decompress at all is just as corrupt as one that decompresses to the
// wrong content, so both cases return ErrIntegrity.
func (s *Store) Get(id ID) ([]byte, error) {
	plaintext, err := s.readChunkFile(s.chunkPath(id))
	if err != nil {
		return nil, err
	}
	if Hash(plaintext) != id {
		return nil, fmt.Errorf("%w: %s", ErrIntegrity, id)
	}
	return plaintext, nil
}

func (s *Store) readChunkFile(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	plaintext, err := decompress(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrIntegrity, path, err)
	}
	return plaintext, nil
}

// Ids returns every chunk id currently known to the store, in no
// particular order.
func (s *Store) Ids() []ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]ID, 0, len(s.index))
	for id := range s.index {
		ids = append(ids, id)
	}
	return ids
}

// Path returns the on-disk path of the chunk file for id, for callers
// such as internal/parity that repair chunk files directly.
func (s *Store) Path(id ID) string {
	return s.chunkPath(id)
}

// Stats reports how many chunks Put has written or reused since Open.
func (s *Store) Stats() (written, reused int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chunksWritten, s.chunksReused
}

// Dir returns the store's root directory.
func (s *Store) Dir() string { return s.dir }
