package password

import (
	"context"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// Algorithm is a synchronous password hashing scheme such as Bcrypt or Argon2.
type Algorithm interface {
	Hash(password string) (string, error)
	Verify(password string, digest string) (bool, error)
}

// Upgrader is implemented by algorithms that can detect digests produced with
// outdated parameters.
type Upgrader interface {
	NeedsUpgrade(digest string) (bool, error)
}

// Pool runs an Algorithm on a bounded number of concurrent slots so that
// CPU-bound hashing cannot monopolise the process. Callers waiting for a slot
// give up when their context is done.
type Pool struct {
	alg Algorithm
	sem *semaphore.Weighted
}

// NewPool wraps alg. A non-positive size defaults to GOMAXPROCS.
func NewPool(alg Algorithm, size int) *Pool {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}
	return &Pool{alg: alg, sem: semaphore.NewWeighted(int64(size))}
}

func (p *Pool) Hash(ctx context.Context, password string) (string, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer p.sem.Release(1)
	return p.alg.Hash(password)
}

func (p *Pool) Verify(ctx context.Context, password, digest string) (bool, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer p.sem.Release(1)
	return p.alg.Verify(password, digest)
}

// NeedsUpgrade delegates to the wrapped algorithm when it implements Upgrader
// and reports false otherwise.
func (p *Pool) NeedsUpgrade(digest string) (bool, error) {
	u, ok := p.alg.(Upgrader)
	if !ok {
		return false, nil
	}
	return u.NeedsUpgrade(digest)
}
