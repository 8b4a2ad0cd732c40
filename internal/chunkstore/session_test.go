package chunkstore

import "testing"

func TestSessionSkipsRepeatedWritesEvenUnderParanoid(t *testing.T) {
	s := openStore(t)
	s.SetParanoid(true)
	sess := s.NewSession()

	data := []byte("written twice in one backup run")
	if _, err := sess.Put(data); err != nil {
		t.Fatalf("Put: %v", err)
	}
	writtenAfterFirst, _ := s.Stats()

	if _, err := sess.Put(data); err != nil {
		t.Fatalf("Put: %v", err)
	}
	writtenAfterSecond, _ := s.Stats()

	if writtenAfterSecond != writtenAfterFirst {
		t.Fatalf("session re-wrote an already-seen chunk: %d -> %d", writtenAfterFirst, writtenAfterSecond)
	}
}
