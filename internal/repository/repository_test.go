package repository

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/flyingcircusio/backy/internal/chunkstore"
	"github.com/flyingcircusio/backy/internal/revision"
	"github.com/flyingcircusio/backy/internal/source"
)

func writeSourceFile(t *testing.T, dir string, size int) string {
	t.Helper()
	path := filepath.Join(dir, "volume.img")
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	if err := os.WriteFile(path, data, 0o640); err != nil {
		t.Fatalf("writing source file: %v", err)
	}
	return path
}

func openRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := Open(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return repo
}

func TestBackupRestoreRoundTrip(t *testing.T) {
	repo := openRepo(t)
	srcDir := t.TempDir()
	path := writeSourceFile(t, srcDir, 3*chunkstore.ChunkSize+1000)
	src := &source.File{Path: path}

	rev, err := repo.Backup(context.Background(), src, []string{"daily"})
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}

	want, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading source: %v", err)
	}

	dstPath := filepath.Join(t.TempDir(), "restored.img")
	dst, err := os.OpenFile(dstPath, os.O_RDWR|os.O_CREATE, 0o640)
	if err != nil {
		t.Fatalf("opening destination: %v", err)
	}
	defer dst.Close()

	if err := repo.Restore(rev, dst); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	got, err := os.ReadFile(dstPath)
	if err != nil {
		t.Fatalf("reading restored file: %v", err)
	}
	if !bytes.Equal(got[:len(want)], want) {
		t.Fatalf("restored content does not match original")
	}
}

func TestSecondBackupDedupsAgainstFirst(t *testing.T) {
	repo := openRepo(t)
	srcDir := t.TempDir()
	path := writeSourceFile(t, srcDir, 2*chunkstore.ChunkSize)
	src := &source.File{Path: path}

	if _, err := repo.Backup(context.Background(), src, []string{"daily"}); err != nil {
		t.Fatalf("first Backup: %v", err)
	}
	writtenAfterFirst, _ := repo.store.Stats()

	if _, err := repo.Backup(context.Background(), src, []string{"daily"}); err != nil {
		t.Fatalf("second Backup: %v", err)
	}
	writtenAfterSecond, reusedAfterSecond := repo.store.Stats()

	if writtenAfterSecond != writtenAfterFirst {
		t.Fatalf("second backup of identical content wrote new chunks: %d -> %d", writtenAfterFirst, writtenAfterSecond)
	}
	if reusedAfterSecond == 0 {
		t.Fatalf("second backup did not reuse any chunks")
	}
}

func TestPurgeRemovesUnreferencedChunks(t *testing.T) {
	repo := openRepo(t)
	srcDir := t.TempDir()
	path := writeSourceFile(t, srcDir, chunkstore.ChunkSize)
	src := &source.File{Path: path}

	rev, err := repo.Backup(context.Background(), src, []string{"daily"})
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if err := repo.Forget(rev); err != nil {
		t.Fatalf("Forget: %v", err)
	}

	removed, err := repo.Purge()
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if removed == 0 {
		t.Fatalf("Purge removed 0 chunks after forgetting the only revision")
	}
}

func TestVerifyMarksRevisionVerified(t *testing.T) {
	repo := openRepo(t)
	srcDir := t.TempDir()
	path := writeSourceFile(t, srcDir, chunkstore.ChunkSize)
	src := &source.File{Path: path}

	rev, err := repo.Backup(context.Background(), src, []string{"daily"})
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}

	if err := repo.Verify(context.Background(), rev, src); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	history, err := repo.History()
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	reloaded, err := history.Select(rev.UUID)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if reloaded.Trust != revision.Verified {
		t.Fatalf("Trust = %v, want %v", reloaded.Trust, revision.Verified)
	}
}
