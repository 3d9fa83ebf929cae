package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/maxbolgarin/errm"
	"github.com/redis/go-redis/v9"
)

// Locker serializes transitions per pipeline id. Two concurrent transition
// attempts must never both proceed from the same stale state.
type Locker interface {
	Lock(ctx context.Context, pipelineID string) (unlock func(), err error)
}

const (
	lockKeyPrefix = "lock:pipeline:"
	lockExpiry    = 10 * time.Second
)

// RedsyncLocker is a distributed per-pipeline mutex, safe across instances.
type RedsyncLocker struct {
	rs *redsync.Redsync
}

// NewRedsyncLocker builds a locker over the shared redis client.
func NewRedsyncLocker(client *redis.Client) *RedsyncLocker {
	return &RedsyncLocker{rs: redsync.New(goredis.NewPool(client))}
}

func (l *RedsyncLocker) Lock(ctx context.Context, pipelineID string) (func(), error) {
	mutex := l.rs.NewMutex(lockKeyPrefix+pipelineID, redsync.WithExpiry(lockExpiry))
	if err := mutex.LockContext(ctx); err != nil {
		return nil, errm.Wrap(err, "acquire pipeline lock")
	}
	return func() {
		_, _ = mutex.UnlockContext(context.Background())
	}, nil
}

// MemoryLocker is the in-process equivalent used with the memory store.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewMemoryLocker creates an empty locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *MemoryLocker) Lock(ctx context.Context, pipelineID string) (func(), error) {
	l.mu.Lock()
	m, ok := l.locks[pipelineID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[pipelineID] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock, nil
}
