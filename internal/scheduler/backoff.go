package scheduler

import "time"

// maxBackoff and backoffBase implement spec.md §4.6's "FAILED" backoff:
// min(6h, 2min * 2^(k-1)) after k consecutive failures.
const (
	maxBackoff   = 6 * time.Hour
	backoffBase  = 2 * time.Minute
)

func backoffFor(failures int) time.Duration {
	if failures <= 0 {
		return 0
	}
	d := backoffBase
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}
