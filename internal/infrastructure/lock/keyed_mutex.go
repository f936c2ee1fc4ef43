package lock

import (
	"context"
	"sync"
)

// KeyedMutex implements Locker with in-process mutexes, one per key.
// Suitable for single-node deployments and tests; multi-node deployments
// need RedisLocker.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*sync.Mutex)}
}

func (k *KeyedMutex) Acquire(ctx context.Context, key string) (Release, error) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return func(ctx context.Context) error {
		m.Unlock()
		return nil
	}, nil
}
