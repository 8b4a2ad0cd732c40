package revision

import (
	"testing"
	"time"

	"github.com/flyingcircusio/backy/internal/chunkstore"
)

func TestNewUUIDLength(t *testing.T) {
	u := NewUUID()
	if len(u) != shortUUIDLength {
		t.Fatalf("NewUUID() length = %d, want %d", len(u), shortUUIDLength)
	}
}

func TestCompleteAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	r := New(dir, []string{"daily"})
	r.Size = int64(chunkstore.ChunkSize) + 100
	r.Chunks[0] = chunkstore.Hash([]byte("block zero"))
	r.Chunks[1] = chunkstore.Hash([]byte("block one"))

	start := time.Now()
	if err := r.Complete(start); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	loaded, err := Load(dir, r.UUID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.UUID != r.UUID {
		t.Fatalf("UUID mismatch: %s != %s", loaded.UUID, r.UUID)
	}
	if len(loaded.Chunks) != 2 {
		t.Fatalf("loaded %d chunks, want 2", len(loaded.Chunks))
	}
	if loaded.Chunks[0] != r.Chunks[0] || loaded.Chunks[1] != r.Chunks[1] {
		t.Fatalf("chunk map mismatch after round trip")
	}
	if !loaded.HasTag("daily") {
		t.Fatalf("loaded revision lost its tags")
	}
}

func TestHoleIsOmittedFromChunkMap(t *testing.T) {
	dir := t.TempDir()
	r := New(dir, nil)
	r.Size = int64(chunkstore.ChunkSize) * 3
	r.Chunks[0] = chunkstore.Hash([]byte("present"))
	// block 1 is intentionally left absent: a hole.
	r.Chunks[2] = chunkstore.Hash([]byte("also present"))

	if err := r.Complete(time.Now()); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	loaded, err := Load(dir, r.UUID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := loaded.Chunks[1]; ok {
		t.Fatalf("expected block 1 to be a hole, but it has a chunk id")
	}
	if len(loaded.Chunks) != 2 {
		t.Fatalf("loaded %d chunks, want 2", len(loaded.Chunks))
	}
}

func TestRemoveDeletesBothFiles(t *testing.T) {
	dir := t.TempDir()
	r := New(dir, nil)
	r.Size = 10
	if err := r.Complete(time.Now()); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if err := r.Remove(); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := Load(dir, r.UUID); err == nil {
		t.Fatalf("Load succeeded after Remove")
	}
}

func TestSetTrustPersists(t *testing.T) {
	dir := t.TempDir()
	r := New(dir, nil)
	r.Size = 10
	if err := r.Complete(time.Now()); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if err := r.SetTrust(Distrusted); err != nil {
		t.Fatalf("SetTrust: %v", err)
	}
	loaded, err := Load(dir, r.UUID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Trust != Distrusted {
		t.Fatalf("Trust = %v, want %v", loaded.Trust, Distrusted)
	}
}
