package scheduler

import (
	"context"
	"testing"
	"time"
)

func TestPoolEnforcesCapacity(t *testing.T) {
	p := newPool(1)
	ctx := context.Background()

	if err := p.acquire(ctx); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	blocked := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		blocked <- p.acquire(ctx)
	}()

	if err := <-blocked; err == nil {
		t.Fatalf("second acquire on a full pool of size 1 should have blocked until timeout")
	}

	p.release()
	if err := p.acquire(ctx); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
}

func TestPoolAcquireCancellable(t *testing.T) {
	p := newPool(1)
	if err := p.acquire(context.Background()); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.acquire(ctx); err == nil {
		t.Fatalf("acquire on a cancelled context should fail")
	}
}
