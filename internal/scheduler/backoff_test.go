package scheduler

import (
	"testing"
	"time"
)

func TestBackoffForGrowsExponentially(t *testing.T) {
	cases := []struct {
		failures int
		want     time.Duration
	}{
		{0, 0},
		{1, 2 * time.Minute},
		{2, 4 * time.Minute},
		{3, 8 * time.Minute},
	}
	for _, c := range cases {
		if got := backoffFor(c.failures); got != c.want {
			t.Errorf("backoffFor(%d) = %v, want %v", c.failures, got, c.want)
		}
	}
}

func TestBackoffForCapsAtMax(t *testing.T) {
	if got := backoffFor(20); got != maxBackoff {
		t.Errorf("backoffFor(20) = %v, want %v", got, maxBackoff)
	}
}

func TestBackoffMonotonic(t *testing.T) {
	prev := time.Duration(0)
	for k := 1; k <= 12; k++ {
		d := backoffFor(k)
		if d < prev {
			t.Fatalf("backoffFor(%d) = %v is less than backoffFor(%d) = %v", k, d, k-1, prev)
		}
		prev = d
	}
}
