package repository

import (
	"context"
	"os"
	"testing"

	"github.com/flyingcircusio/backy/internal/chunkstore"
	"github.com/flyingcircusio/backy/internal/source"
)

func TestFsckCleanRepositoryReportsNoFailures(t *testing.T) {
	repo := openRepo(t)
	srcDir := t.TempDir()
	path := writeSourceFile(t, srcDir, 2*chunkstore.ChunkSize)
	src := &source.File{Path: path}

	if _, err := repo.Backup(context.Background(), src, []string{"daily"}); err != nil {
		t.Fatalf("Backup: %v", err)
	}

	report, err := repo.Fsck(false)
	if err != nil {
		t.Fatalf("Fsck: %v", err)
	}
	if report.Checked == 0 {
		t.Fatalf("Fsck checked 0 chunks")
	}
	if len(report.Failed) != 0 {
		t.Fatalf("Fsck reported failures on a clean repository: %v", report.Failed)
	}
}

func TestFsckRepairsCorruptChunk(t *testing.T) {
	repo := openRepo(t)
	srcDir := t.TempDir()
	path := writeSourceFile(t, srcDir, chunkstore.ChunkSize)
	src := &source.File{Path: path}

	if _, err := repo.Backup(context.Background(), src, []string{"daily"}); err != nil {
		t.Fatalf("Backup: %v", err)
	}

	ids := repo.store.Ids()
	if len(ids) == 0 {
		t.Fatalf("no chunks were written")
	}
	id := ids[0]
	chunkPath := repo.store.Path(id)

	original, err := os.ReadFile(chunkPath)
	if err != nil {
		t.Fatalf("reading chunk file: %v", err)
	}
	corrupt := make([]byte, len(original))
	copy(corrupt, original)
	corrupt[0] ^= 0xff
	if err := os.Chmod(chunkPath, 0o640); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	if err := os.WriteFile(chunkPath, corrupt, 0o640); err != nil {
		t.Fatalf("corrupting chunk: %v", err)
	}

	dryRun, err := repo.Fsck(false)
	if err != nil {
		t.Fatalf("Fsck(false): %v", err)
	}
	if len(dryRun.Failed) != 1 {
		t.Fatalf("Fsck(false) failed = %d, want 1", len(dryRun.Failed))
	}

	repaired, err := repo.Fsck(true)
	if err != nil {
		t.Fatalf("Fsck(true): %v", err)
	}
	if len(repaired.Repaired) != 1 {
		t.Fatalf("Fsck(true) repaired = %d, want 1", len(repaired.Repaired))
	}
	if len(repaired.Failed) != 0 {
		t.Fatalf("Fsck(true) still failing: %v", repaired.Failed)
	}

	if _, err := repo.store.Get(id); err != nil {
		t.Fatalf("Get after repair: %v", err)
	}
}
