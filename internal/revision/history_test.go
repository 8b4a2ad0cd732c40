package revision

import (
	"testing"
	"time"
)

func makeCompleted(t *testing.T, dir string, ts time.Time, tags ...string) *Revision {
	t.Helper()
	r := New(dir, tags)
	r.Timestamp = ts
	r.Size = 10
	if err := r.Complete(ts); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	return r
}

func TestSelectLatestAndInteger(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	r0 := makeCompleted(t, dir, now.Add(-2*time.Hour))
	r1 := makeCompleted(t, dir, now.Add(-1*time.Hour))
	r2 := makeCompleted(t, dir, now)
	h := History{r0, r1, r2}

	latest, err := h.Select("latest")
	if err != nil || latest.UUID != r2.UUID {
		t.Fatalf("Select(latest) = %+v, %v; want %s", latest, err, r2.UUID)
	}

	byIndex, err := h.Select("0")
	if err != nil || byIndex.UUID != r2.UUID {
		t.Fatalf("Select(0) = %+v, %v; want newest %s", byIndex, err, r2.UUID)
	}

	byIndex1, err := h.Select("1")
	if err != nil || byIndex1.UUID != r1.UUID {
		t.Fatalf("Select(1) = %+v, %v; want %s", byIndex1, err, r1.UUID)
	}
}

func TestSelectByTagAndUUID(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	r0 := makeCompleted(t, dir, now.Add(-time.Hour), "daily")
	r1 := makeCompleted(t, dir, now, "weekly")
	h := History{r0, r1}

	byTag, err := h.Select("daily")
	if err != nil || byTag.UUID != r0.UUID {
		t.Fatalf("Select(daily) = %+v, %v; want %s", byTag, err, r0.UUID)
	}

	byUUID, err := h.Select(r1.UUID)
	if err != nil || byUUID.UUID != r1.UUID {
		t.Fatalf("Select(uuid) = %+v, %v; want %s", byUUID, err, r1.UUID)
	}
}

func TestSelectNoMatch(t *testing.T) {
	h := History{}
	if _, err := h.Select("latest"); err != ErrNoMatch {
		t.Fatalf("Select(latest) on empty history = %v, want ErrNoMatch", err)
	}
}

func TestSelectAllReturnsNewestFirst(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	r0 := makeCompleted(t, dir, now.Add(-2*time.Hour))
	r1 := makeCompleted(t, dir, now.Add(-time.Hour))
	h := History{r0, r1}

	all, err := h.SelectAll("all")
	if err != nil {
		t.Fatalf("SelectAll(all): %v", err)
	}
	if len(all) != 2 || all[0].UUID != r1.UUID || all[1].UUID != r0.UUID {
		t.Fatalf("SelectAll(all) = %+v, want newest-first [%s %s]", all, r1.UUID, r0.UUID)
	}
}

func TestParentIsPrecedingByTimestamp(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	r0 := makeCompleted(t, dir, now.Add(-2*time.Hour))
	r1 := makeCompleted(t, dir, now.Add(-time.Hour))
	r2 := makeCompleted(t, dir, now)
	h := History{r0, r1, r2}

	if p := h.Parent(r2); p == nil || p.UUID != r1.UUID {
		t.Fatalf("Parent(r2) = %+v, want %s", p, r1.UUID)
	}
	if p := h.Parent(r0); p != nil {
		t.Fatalf("Parent(r0) = %+v, want nil", p)
	}
}
