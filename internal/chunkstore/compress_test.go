package chunkstore

import (
	"bytes"
	"testing"
)

func TestCompressDecompressRoundTrip(t *testing.T) {
	plaintext := bytes.Repeat([]byte("compress me please"), 500)

	compressed := compress(plaintext)
	if len(compressed) == 0 {
		t.Fatalf("compress produced no output")
	}

	got, err := decompress(compressed)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round trip mismatch")
	}
}

func TestCompressReducesSizeForRepetitiveData(t *testing.T) {
	plaintext := bytes.Repeat([]byte{0}, ChunkSize)
	compressed := compress(plaintext)
	if len(compressed) >= len(plaintext) {
		t.Fatalf("compressed size %d not smaller than plaintext %d for all-zero input", len(compressed), len(plaintext))
	}
}
