package repository

import (
	"fmt"
	"os"

	"github.com/flyingcircusio/backy/internal/chunkstore"
	"github.com/flyingcircusio/backy/internal/revision"
	"golang.org/x/sys/unix"
)

// Restore writes rev's contents to dst in block order, per the algorithm
// in spec.md §4.3. dst must already be open for writing; for a regular
// file it should be newly created or truncated so untouched regions
// (holes) read back as zero without this function ever reading dst.
func (r *Repository) Restore(rev *revision.Revision, dst *os.File) error {
	release, err := r.lock(false)
	if err != nil {
		return err
	}
	defer release()

	if fi, err := dst.Stat(); err == nil && fi.Mode().IsRegular() {
		preallocate(dst, rev.Size)
	}

	nBlocks := rev.NBlocks()
	for i := uint32(0); i < nBlocks; i++ {
		offset := int64(i) * chunkstore.ChunkSize
		length := int64(chunkstore.ChunkSize)
		if remaining := rev.Size - offset; remaining < length {
			length = remaining
		}

		id, ok := rev.Chunks[i]
		if !ok {
			punchHole(dst, offset, length)
			continue
		}

		plaintext, err := r.store.Get(id)
		if err != nil {
			if history, herr := r.History(); herr == nil {
				_ = r.distrustAll(history)
			}
			return fmt.Errorf("repository: restoring block %d: %w", i, err)
		}

		if _, err := dst.WriteAt(plaintext, offset); err != nil {
			return fmt.Errorf("repository: writing block %d: %w", i, err)
		}
	}

	return dst.Sync()
}

// preallocate best-effort reserves size bytes for dst; failure to
// allocate (e.g. unsupported filesystem) is tolerated, per spec.md §4.3.
func preallocate(dst *os.File, size int64) {
	if size <= 0 {
		return
	}
	_ = unix.Fallocate(int(dst.Fd()), 0, 0, size)
}

// punchHole best-effort deallocates the given byte range so it reads
// back as zero without writing actual zero bytes; falls back to writing
// zeros if the filesystem does not support hole punching.
func punchHole(dst *os.File, offset, length int64) {
	const flags = unix.FALLOC_FL_PUNCH_HOLE | unix.FALLOC_FL_KEEP_SIZE
	if err := unix.Fallocate(int(dst.Fd()), flags, offset, length); err == nil {
		return
	}
	zeros := make([]byte, length)
	_, _ = dst.WriteAt(zeros, offset)
}
