package indexsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
	"github.com/volunteermatching/volops/pkg/common"
)

const (
	entryLockTtlS    = 10
	entryLockRetries = 50
)

// Locker serializes index writes for one opportunity
type Locker interface {
	Lock(ctx context.Context, opportunityID uint) (unlock func(), err error)
}

// Generation is a counter advanced after every index write. Cached search
// results are only valid for the generation they were computed under.
type Generation interface {
	Current(ctx context.Context) (int64, error)
	Advance(ctx context.Context) error
}

// LocalLocker locks entries within one process
type LocalLocker struct {
	stripes [64]sync.Mutex
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{}
}

func (l *LocalLocker) Lock(ctx context.Context, opportunityID uint) (func(), error) {
	m := &l.stripes[opportunityID%uint(len(l.stripes))]
	m.Lock()
	return m.Unlock, nil
}

// RedisLocker locks entries across gateway replicas
type RedisLocker struct {
	local *LocalLocker
	lock  *common.RedisLock
}

func NewRedisLocker(lock *common.RedisLock) *RedisLocker {
	return &RedisLocker{local: NewLocalLocker(), lock: lock}
}

func (l *RedisLocker) Lock(ctx context.Context, opportunityID uint) (func(), error) {
	unlockLocal, _ := l.local.Lock(ctx, opportunityID)

	key := common.Keys.IndexEntryLock(opportunityID)
	err := l.lock.Acquire(ctx, key, common.RedisLockOptions{TtlS: entryLockTtlS, Retries: entryLockRetries})
	if err != nil {
		unlockLocal()
		return nil, fmt.Errorf("failed to lock index entry %d: %w", opportunityID, err)
	}

	return func() {
		l.lock.Release(key)
		unlockLocal()
	}, nil
}

// LocalGeneration is an in-process generation counter
type LocalGeneration struct {
	n atomic.Int64
}

func (g *LocalGeneration) Current(ctx context.Context) (int64, error) {
	return g.n.Load(), nil
}

func (g *LocalGeneration) Advance(ctx context.Context) error {
	g.n.Add(1)
	return nil
}

// RedisGeneration shares the generation between gateway replicas
type RedisGeneration struct {
	rdb *common.RedisClient
}

func NewRedisGeneration(rdb *common.RedisClient) *RedisGeneration {
	return &RedisGeneration{rdb: rdb}
}

func (g *RedisGeneration) Current(ctx context.Context) (int64, error) {
	n, err := g.rdb.Get(ctx, common.Keys.IndexGeneration()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

func (g *RedisGeneration) Advance(ctx context.Context) error {
	return g.rdb.Incr(ctx, common.Keys.IndexGeneration()).Err()
}
