// Package chunkstore implements backy's content-addressed, deduplicating
// chunk store (spec.md §3, §4.1): a directory of at-most-4MiB compressed
// blobs named by the MurmurHash3 x64-128 hash of their plaintext,
// sharded by the first two hex characters of their id to keep any one
// directory from growing too large.
package chunkstore

import (
	"encoding/hex"
	"errors"

	"github.com/spaolacci/murmur3"
)

// ChunkSize is the maximum size, in bytes, of a single chunk's plaintext.
const ChunkSize = 4 * 1024 * 1024

// IDSize is the width, in bytes, of a chunk id (128-bit MurmurHash3).
const IDSize = 16

var (
	// ErrNotFound is returned when a chunk id has no corresponding file.
	ErrNotFound = errors.New("chunkstore: chunk not found")
	// ErrIntegrity is returned by Get when a chunk's stored bytes decompress
	// to content whose hash does not match its id (spec.md §7).
	ErrIntegrity = errors.New("chunkstore: integrity error")
)

// ID identifies a chunk by the MurmurHash3 x64-128 hash of its plaintext.
type ID [IDSize]byte

// Hash computes the id of a chunk's plaintext.
func Hash(plaintext []byte) ID {
	var id ID
	hi, lo := murmur3.Sum128(plaintext)
	putUint64(id[:8], hi)
	putUint64(id[8:], lo)
	return id
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * (7 - i)))
	}
}

// String renders the id as 32 lowercase hex characters, matching the
// on-disk id format from spec.md §6.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// ParseID parses the 32-character hex representation of a chunk id.
func ParseID(s string) (ID, error) {
	var id ID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, err
	}
	if len(b) != IDSize {
		return id, errors.New("chunkstore: malformed chunk id")
	}
	copy(id[:], b)
	return id, nil
}

// Shard returns the two-character directory name a chunk's file lives
// under: chunks/<shard>/<id>.chunk.lzo.
func (id ID) Shard() string {
	return id.String()[:2]
}
