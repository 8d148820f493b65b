package utils

import (
	"fmt"
	"sync"
)

// MutexMap hands out one mutex per key so that work on the same key is
// serialized while different keys proceed concurrently. Entries are dropped as
// soon as no goroutine holds or waits on them.
type MutexMap struct {
	edit         sync.Mutex
	queueLengths map[string]int
	mutexes      map[string]*sync.Mutex
	maxSize      int
}

func NewMutexMap(maxSize int) *MutexMap {
	return &MutexMap{
		queueLengths: make(map[string]int),
		mutexes:      make(map[string]*sync.Mutex),
		maxSize:      maxSize,
	}
}

func (m *MutexMap) Lock(key string) error {
	m.edit.Lock()

	mu := m.mutexes[key]
	if mu == nil {
		if len(m.mutexes) >= m.maxSize {
			m.edit.Unlock()
			return fmt.Errorf("cannot lock key '%s': max of %d concurrent keys reached", key, m.maxSize)
		}

		mu = &sync.Mutex{}
		m.mutexes[key] = mu
	}

	m.queueLengths[key]++
	m.edit.Unlock()

	mu.Lock()

	return nil
}

func (m *MutexMap) Unlock(key string) error {
	m.edit.Lock()
	defer m.edit.Unlock()

	mu := m.mutexes[key]
	if mu == nil {
		return fmt.Errorf("key %s not found", key)
	}

	mu.Unlock()
	m.queueLengths[key]--

	if m.queueLengths[key] == 0 {
		delete(m.mutexes, key)
		delete(m.queueLengths, key)
	}

	return nil
}

// WithLock runs fn while holding the lock for key.
func (m *MutexMap) WithLock(key string, fn func() error) error {
	if err := m.Lock(key); err != nil {
		return err
	}
	defer m.Unlock(key) //nolint:errcheck

	return fn()
}

func (m *MutexMap) Len() int {
	m.edit.Lock()
	defer m.edit.Unlock()

	return len(m.mutexes)
}
