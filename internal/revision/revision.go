// Package revision implements backy's revision metadata and
// chunk-index on-disk format (spec.md §3, §4.2).
package revision

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/flyingcircusio/backy/internal/chunkstore"
	"gopkg.in/yaml.v3"
)

// Stats records the byte/chunk counters from spec.md §6.
type Stats struct {
	BytesRead     uint64 `yaml:"bytes_read"`
	ChunksWritten uint64 `yaml:"chunks_written"`
	ChunksReused  uint64 `yaml:"chunks_reused"`
}

// Revision records one point-in-time image (spec.md §3).
type Revision struct {
	UUID        string          `yaml:"uuid"`
	Timestamp   time.Time       `yaml:"timestamp"`
	Duration    float64         `yaml:"duration"`
	Size        int64           `yaml:"size"`
	Tags        []string        `yaml:"tags"`
	Trust       Trust           `yaml:"trust"`
	Stats       Stats           `yaml:"stats"`
	BackendType string          `yaml:"backend_type"`

	// Chunks maps a block's offset index to the chunk storing it. A
	// missing entry means the block is a hole (zero bytes), per spec.md
	// §3: every revision's map is self-contained. Not serialized
	// directly; persisted via the packed chunk map format.
	Chunks map[uint32]chunkstore.ID `yaml:"-"`

	// dir is the owning repository directory, needed to resolve file
	// paths; not persisted.
	dir string
}

// New creates a fresh, in-progress revision with a new uuid.
func New(dir string, tags []string) *Revision {
	return &Revision{
		UUID:        NewUUID(),
		Timestamp:   time.Now().UTC(),
		Tags:        append([]string(nil), tags...),
		Trust:       Trusted,
		BackendType: "chunked",
		Chunks:      make(map[uint32]chunkstore.ID),
		dir:         dir,
	}
}

// MetadataPath returns the path of the revision's YAML metadata file.
func (r *Revision) MetadataPath() string {
	return filepath.Join(r.dir, r.UUID+".rev")
}

// ChunkMapPath returns the path of the revision's packed chunk map file.
func (r *Revision) ChunkMapPath() string {
	return filepath.Join(r.dir, r.UUID)
}

// HasTag reports whether the revision carries the given tag.
func (r *Revision) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// AddTag adds a tag if not already present.
func (r *Revision) AddTag(tag string) {
	if !r.HasTag(tag) {
		r.Tags = append(r.Tags, tag)
	}
}

// RemoveTag removes a tag, if present.
func (r *Revision) RemoveTag(tag string) {
	out := r.Tags[:0]
	for _, t := range r.Tags {
		if t != tag {
			out = append(out, t)
		}
	}
	r.Tags = out
}

// Complete renders duration, writes the metadata and packed chunk map
// files, renaming each atomically into place (spec.md §4.2).
func (r *Revision) Complete(start time.Time) error {
	r.Duration = time.Since(start).Seconds()
	if err := r.writeChunkMap(); err != nil {
		return err
	}
	return r.writeMetadata()
}

func (r *Revision) writeMetadata() error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return err
	}
	return writeAtomic(r.MetadataPath(), data)
}

func (r *Revision) writeChunkMap() error {
	offsets := make([]uint32, 0, len(r.Chunks))
	for off := range r.Chunks {
		offsets = append(offsets, off)
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })

	buf := make([]byte, 0, len(offsets)*(4+chunkstore.IDSize))
	for _, off := range offsets {
		id := r.Chunks[off]
		var off4 [4]byte
		off4[0] = byte(off)
		off4[1] = byte(off >> 8)
		off4[2] = byte(off >> 16)
		off4[3] = byte(off >> 24)
		buf = append(buf, off4[:]...)
		buf = append(buf, id[:]...)
	}
	return writeAtomic(r.ChunkMapPath(), buf)
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// SetTrust updates the revision's trust marker and persists the change.
// Trust transitions are the only mutation a completed revision undergoes
// besides tag edits (spec.md §4.2).
func (r *Revision) SetTrust(t Trust) error {
	r.Trust = t
	return r.writeMetadata()
}

// SaveTags persists the current tag set without touching anything else.
func (r *Revision) SaveTags() error {
	return r.writeMetadata()
}

// NBlocks returns the number of chunk-sized blocks spanned by Size.
func (r *Revision) NBlocks() uint32 {
	return uint32((r.Size + chunkstore.ChunkSize - 1) / chunkstore.ChunkSize)
}

// Remove deletes the revision's metadata and chunk-map files. Used both
// to roll back an incomplete revision and to forget a completed one
// (spec.md §4.3).
func (r *Revision) Remove() error {
	if err := os.Remove(r.MetadataPath()); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Remove(r.ChunkMapPath()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Load reads a revision's metadata and packed chunk map from dir.
func Load(dir, uuid string) (*Revision, error) {
	r := &Revision{dir: dir}
	metaPath := filepath.Join(dir, uuid+".rev")
	raw, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(raw, r); err != nil {
		return nil, err
	}

	chunks, err := os.ReadFile(filepath.Join(dir, uuid))
	if err != nil {
		return nil, err
	}
	r.Chunks, err = decodeChunkMap(chunks)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func decodeChunkMap(buf []byte) (map[uint32]chunkstore.ID, error) {
	const recSize = 4 + chunkstore.IDSize
	m := make(map[uint32]chunkstore.ID, len(buf)/recSize)
	for i := 0; i+recSize <= len(buf); i += recSize {
		off := uint32(buf[i]) | uint32(buf[i+1])<<8 | uint32(buf[i+2])<<16 | uint32(buf[i+3])<<24
		var id chunkstore.ID
		copy(id[:], buf[i+4:i+recSize])
		m[off] = id
	}
	return m, nil
}

// ListUUIDs returns the uuids of every revision persisted under dir,
// discovered from their .rev files.
func ListUUIDs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var uuids []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() && len(name) > 4 && name[len(name)-4:] == ".rev" {
			uuids = append(uuids, name[:len(name)-4])
		}
	}
	return uuids, nil
}
