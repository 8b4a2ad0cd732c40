package source

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/flyingcircusio/backy/internal/blog"
	"github.com/flyingcircusio/backy/internal/chunkstore"
	"github.com/flyingcircusio/backy/internal/revision"
)

// RBD is the Ceph RBD reference adapter (spec.md §4.4). It is a thin
// wrapper around the external `rbd` CLI and the Ceph cluster it talks
// to, both of which are the out-of-scope collaborator named in spec.md
// §1 — this type is the documented interface point, not a reimplementation
// of librbd.
type RBD struct {
	// Pool/Image identify the RBD image, e.g. "rbd" / "vm-foo.root".
	Pool, Image string
	// RBDCmd overrides the `rbd` binary name, mainly for tests.
	RBDCmd string
	Log    *blog.Logger

	snapName string
}

func (s *RBD) cmd(args ...string) *exec.Cmd {
	bin := s.RBDCmd
	if bin == "" {
		bin = "rbd"
	}
	return exec.Command(bin, args...)
}

func (s *RBD) imageSpec() string {
	return fmt.Sprintf("%s/%s", s.Pool, s.Image)
}

func (s *RBD) Size(ctx context.Context) (int64, error) {
	out, err := s.cmd("info", s.imageSpec(), "--format", "json").Output()
	if err != nil {
		return 0, fmt.Errorf("%w: rbd info: %v", ErrSourceUnavailable, err)
	}
	// A hand-rolled scan avoids pulling in a JSON schema for one field;
	// "size" appears as a bare integer in `rbd info --format json`.
	idx := bytes.Index(out, []byte(`"size":`))
	if idx < 0 {
		return 0, fmt.Errorf("rbd: size field not found in info output")
	}
	rest := out[idx+len(`"size":`):]
	end := bytes.IndexAny(rest, ",}")
	if end < 0 {
		return 0, fmt.Errorf("rbd: malformed info output")
	}
	return strconv.ParseInt(strings.TrimSpace(string(rest[:end])), 10, 64)
}

func (s *RBD) Ready(ctx context.Context) error {
	if err := s.cmd("info", s.imageSpec()).Run(); err != nil {
		return fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	return nil
}

// SnapshotBegin creates a fresh, uniquely named RBD snapshot to back this
// revision against.
func (s *RBD) SnapshotBegin(ctx context.Context) error {
	s.snapName = "backy-" + revision.NewUUID()
	return s.cmd("snap", "create", s.imageSpec()+"@"+s.snapName).Run()
}

// SnapshotEnd removes the working snapshot. commit is accepted for
// symmetry with the Snapshotting contract; RBD has no staged-commit
// concept, so it is ignored.
func (s *RBD) SnapshotEnd(ctx context.Context, commit bool) error {
	if s.snapName == "" {
		return nil
	}
	err := s.cmd("snap", "rm", s.imageSpec()+"@"+s.snapName).Run()
	s.snapName = ""
	return err
}

// BlocksToExamine runs `rbd diff` on the current working snapshot and
// returns the blocks covered by the extents it reports. No --from-snap
// is passed and no parent snapshot is kept (SnapshotEnd removes each
// snapshot), so the result is not limited to blocks changed since the
// parent revision. Without a parent or a working snapshot, or if
// `rbd diff` fails, it returns every block (spec.md §4.3 step 3: the
// adapter may return any superset).
func (s *RBD) BlocksToExamine(ctx context.Context, parent *revision.Revision) ([]uint32, error) {
	size, err := s.Size(ctx)
	if err != nil {
		return nil, err
	}
	n := uint32((size + chunkstore.ChunkSize - 1) / chunkstore.ChunkSize)

	if parent == nil || s.snapName == "" {
		return allBlocks(n), nil
	}

	args := []string{"diff", "--format", "json", s.imageSpec() + "@" + s.snapName}
	out, err := s.cmd(args...).Output()
	if err != nil {
		s.Log.Warning("rbd diff failed, falling back to full scan: %v", err)
		return allBlocks(n), nil
	}
	return parseDiffOffsets(out, n), nil
}

func (s *RBD) ReadBlock(ctx context.Context, i uint32) ([]byte, error) {
	out, err := s.cmd("export", "--offset", strconv.FormatInt(int64(i)*chunkstore.ChunkSize, 10),
		"--length", strconv.Itoa(chunkstore.ChunkSize), s.imageSpec(), "-").Output()
	if err != nil {
		return nil, fmt.Errorf("%w: rbd export block %d: %v", ErrSourceCorrupt, i, err)
	}
	return out, nil
}

func allBlocks(n uint32) []uint32 {
	all := make([]uint32, n)
	for i := range all {
		all[i] = uint32(i)
	}
	return all
}

// parseDiffOffsets extracts the set of changed block indices from `rbd
// diff --format json` output, which is a list of {"offset":.,"length":.}
// records; this is a minimal line scanner, not a full JSON parser, since
// we only need two integer fields out of a stream that can be large.
func parseDiffOffsets(out []byte, nBlocks uint32) []uint32 {
	changed := make(map[uint32]struct{})
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		off := extractJSONInt(line, `"offset":`)
		length := extractJSONInt(line, `"length":`)
		if off < 0 || length < 0 {
			continue
		}
		start := uint32(off / chunkstore.ChunkSize)
		end := uint32((off + length + chunkstore.ChunkSize - 1) / chunkstore.ChunkSize)
		for b := start; b < end && b < nBlocks; b++ {
			changed[b] = struct{}{}
		}
	}
	out2 := make([]uint32, 0, len(changed))
	for b := range changed {
		out2 = append(out2, b)
	}
	return out2
}

func extractJSONInt(line, key string) int64 {
	idx := strings.Index(line, key)
	if idx < 0 {
		return -1
	}
	rest := line[idx+len(key):]
	end := strings.IndexAny(rest, ",}")
	if end < 0 {
		end = len(rest)
	}
	v, err := strconv.ParseInt(strings.TrimSpace(strings.Trim(rest[:end], `"`)), 10, 64)
	if err != nil {
		return -1
	}
	return v
}
