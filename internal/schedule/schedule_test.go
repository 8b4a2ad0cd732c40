package schedule

import (
	"testing"
	"time"

	"github.com/flyingcircusio/backy/internal/revision"
)

func rev(dir string, ts time.Time, tags ...string) *revision.Revision {
	r := revision.New(dir, tags)
	r.Timestamp = ts
	r.Size = 1
	_ = r.Complete(ts)
	return r
}

func TestOverdueUsesOnePointFiveMultiplier(t *testing.T) {
	dir := mustTempDir(t)
	sched := New([]string{"daily"}, map[string]TagPolicy{
		"daily": {Interval: time.Hour, Keep: 3},
	})

	now := time.Now()
	notOverdue := revision.History{rev(dir, now.Add(-90*time.Minute+time.Second), "daily")}
	if got := sched.Overdue(notOverdue, now); len(got) != 0 {
		t.Fatalf("Overdue() = %v, want none (89m59s < 1.5x interval)", got)
	}

	overdue := revision.History{rev(dir, now.Add(-2*time.Hour), "daily")}
	if got := sched.Overdue(overdue, now); len(got) != 1 {
		t.Fatalf("Overdue() = %v, want [daily]", got)
	}
}

func TestOverdueWithNoRevisionsAtAll(t *testing.T) {
	sched := New([]string{"daily"}, map[string]TagPolicy{
		"daily": {Interval: time.Hour, Keep: 3},
	})
	if got := sched.Overdue(nil, time.Now()); len(got) != 1 {
		t.Fatalf("Overdue() with no history = %v, want [daily]", got)
	}
}

func TestExpireRespectsKeepCount(t *testing.T) {
	dir := mustTempDir(t)
	sched := New([]string{"daily"}, map[string]TagPolicy{
		"daily": {Interval: time.Hour, Keep: 2},
	})

	now := time.Now()
	var h revision.History
	for i := 4; i >= 0; i-- {
		h = append(h, rev(dir, now.Add(-time.Duration(i)*time.Hour), "daily"))
	}

	removed, err := sched.Expire(h)
	if err != nil {
		t.Fatalf("Expire: %v", err)
	}
	if len(removed) != 3 {
		t.Fatalf("Expire removed %d revisions, want 3", len(removed))
	}
	for _, r := range h[3:] {
		if !r.HasTag("daily") {
			t.Fatalf("newest revisions should keep their tag")
		}
	}
	for _, r := range h[:3] {
		if r.HasTag("daily") {
			t.Fatalf("oldest revisions should have lost their tag")
		}
	}
}

func TestExpireNeverTouchesManualTags(t *testing.T) {
	dir := mustTempDir(t)
	sched := New([]string{"manual:snapshot"}, map[string]TagPolicy{
		"manual:snapshot": {Interval: time.Hour, Keep: 1},
	})

	now := time.Now()
	old := rev(dir, now.Add(-100*time.Hour), "manual:snapshot")
	newer := rev(dir, now, "manual:snapshot")
	h := revision.History{old, newer}

	removed, err := sched.Expire(h)
	if err != nil {
		t.Fatalf("Expire: %v", err)
	}
	if len(removed) != 0 {
		t.Fatalf("Expire removed manual-tagged revisions: %v", removed)
	}
	if !old.HasTag("manual:snapshot") {
		t.Fatalf("manual tag was stripped from old revision")
	}
}

func mustTempDir(t *testing.T) string {
	t.Helper()
	return t.TempDir()
}
