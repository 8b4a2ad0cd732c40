package parity

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestEncodeThenRepairFromMissingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chunk")
	original := bytes.Repeat([]byte("reed-solomon test payload "), 200)
	if err := os.WriteFile(path, original, 0o640); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	// Losing the whole file loses all 4 data shards, so rebuilding it
	// needs at least 4 parity shards.
	if err := Encode(path, 4, 4); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := os.Stat(path + Suffix); err != nil {
		t.Fatalf("sidecar not written: %v", err)
	}

	if err := os.Remove(path); err != nil {
		t.Fatalf("removing original: %v", err)
	}

	if err := Repair(path); err != nil {
		t.Fatalf("Repair: %v", err)
	}

	recovered, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading repaired file: %v", err)
	}
	if !bytes.Equal(recovered, original) {
		t.Fatalf("repaired content does not match original")
	}
}
