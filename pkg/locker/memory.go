package locker

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-process Locker.
type Memory struct {
	mu    sync.Mutex
	locks map[string]*memoryLock
}

type memoryLock struct {
	held chan struct{}
	refs int
}

func NewMemory() *Memory {
	return &Memory{locks: make(map[string]*memoryLock)}
}

func (m *Memory) Lock(ctx context.Context, key string) (Unlock, error) {
	m.mu.Lock()

	lock, ok := m.locks[key]
	if !ok {
		lock = &memoryLock{held: make(chan struct{}, 1)}
		m.locks[key] = lock
	}

	lock.refs++
	m.mu.Unlock()

	select {
	case lock.held <- struct{}{}:
	case <-ctx.Done():
		m.release(key, lock, false)

		return nil, fmt.Errorf("%w: %s: %w", ErrLockTimeout, key, ctx.Err())
	}

	var once sync.Once

	return func() {
		once.Do(func() { m.release(key, lock, true) })
	}, nil
}

func (m *Memory) release(key string, lock *memoryLock, held bool) {
	if held {
		<-lock.held
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	lock.refs--
	if lock.refs == 0 {
		delete(m.locks, key)
	}
}

func (m *Memory) Close() error {
	return nil
}
