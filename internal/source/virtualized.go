package source

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/flyingcircusio/backy/internal/blog"
)

// Virtualized wraps another Source (typically RBD) and quiesces the
// guest filesystem via an external freeze command before scoping the
// snapshot, so the snapshot is filesystem-consistent rather than merely
// crash-consistent (spec.md §4.4).
type Virtualized struct {
	Source

	// FreezeCmd/ThawCmd are argv slices for the external commands, e.g.
	// []string{"qemu-guest-freeze", "vm-foo"}. Both are optional; if
	// FreezeCmd is empty, snapshotting proceeds unfrozen.
	FreezeCmd, ThawCmd []string
	Log                *blog.Logger

	frozen bool
}

var _ Snapshotting = (*Virtualized)(nil)

func (v *Virtualized) SnapshotBegin(ctx context.Context) error {
	if len(v.FreezeCmd) > 0 {
		if err := runQuiesce(ctx, v.FreezeCmd); err != nil {
			return fmt.Errorf("virtualized: freeze failed: %w", err)
		}
		v.frozen = true
	}

	snapper, ok := v.Source.(Snapshotting)
	if !ok {
		return nil
	}
	if err := snapper.SnapshotBegin(ctx); err != nil {
		v.thaw(ctx)
		return err
	}
	return nil
}

func (v *Virtualized) SnapshotEnd(ctx context.Context, commit bool) error {
	var snapErr error
	if snapper, ok := v.Source.(Snapshotting); ok {
		snapErr = snapper.SnapshotEnd(ctx, commit)
	}
	// Thaw unconditionally: the guaranteed-release contract in spec.md
	// §4.4 applies even if the snapshot step itself failed.
	v.thaw(ctx)
	return snapErr
}

func (v *Virtualized) thaw(ctx context.Context) {
	if !v.frozen {
		return
	}
	if err := runQuiesce(ctx, v.ThawCmd); err != nil {
		v.Log.Warning("virtualized: thaw failed: %v", err)
	}
	v.frozen = false
}

func runQuiesce(ctx context.Context, argv []string) error {
	if len(argv) == 0 {
		return nil
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", strings.Join(argv, " "), err, out)
	}
	return nil
}
