package password

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type blockingAlgorithm struct {
	release chan struct{}
	active  atomic.Int32
	peak    atomic.Int32
}

func (b *blockingAlgorithm) Hash(password string) (string, error) {
	n := b.active.Add(1)
	for {
		peak := b.peak.Load()
		if n <= peak || b.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	<-b.release
	b.active.Add(-1)
	return "digest:" + password, nil
}

func (b *blockingAlgorithm) Verify(password, digest string) (bool, error) {
	return digest == "digest:"+password, nil
}

func TestPoolBoundsConcurrency(t *testing.T) {
	alg := &blockingAlgorithm{release: make(chan struct{})}
	pool := NewPool(alg, 2)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := pool.Hash(context.Background(), "pw"); err != nil {
				t.Errorf("Hash: %v", err)
			}
		}()
	}

	deadline := time.Now().Add(2 * time.Second)
	for alg.active.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	close(alg.release)
	wg.Wait()

	if peak := alg.peak.Load(); peak > 2 {
		t.Fatalf("peak concurrency = %d, want <= 2", peak)
	}
}

func TestPoolHonoursContextWhileWaiting(t *testing.T) {
	alg := &blockingAlgorithm{release: make(chan struct{})}
	pool := NewPool(alg, 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = pool.Hash(context.Background(), "holder")
	}()
	for alg.active.Load() < 1 {
		time.Sleep(time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := pool.Verify(ctx, "pw", "digest:pw"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}

	close(alg.release)
	<-done
}

func TestPoolNeedsUpgradeWithoutUpgrader(t *testing.T) {
	pool := NewPool(&blockingAlgorithm{}, 1)
	if up, err := pool.NeedsUpgrade("anything"); err != nil || up {
		t.Fatalf("NeedsUpgrade = %v, %v", up, err)
	}
}
