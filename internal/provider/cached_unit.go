package provider

import (
	"errors"
	"sync"

	"vision-backend/internal/core"
	"vision-backend/internal/core/types"
)

var ErrModelUnloaded = errors.New("model was unloaded")

// cachedUnit counts the leases handed out by Resolve. An evicted unit is only
// released once its last lease is returned.
type cachedUnit struct {
	unit core.InferenceUnit

	mu       sync.RWMutex
	released bool

	refMu   sync.Mutex
	refs    int
	evicted bool
}

var (
	_ core.InferenceUnit = (*cachedUnit)(nil)
	_ core.Labeler       = (*cachedUnit)(nil)
)

// acquire must be called with the provider lock held, so that a unit cannot be
// evicted between being found in the cache and being leased.
func (u *cachedUnit) acquire() func() {
	u.refMu.Lock()
	u.refs++
	u.refMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(u.done)
	}
}

func (u *cachedUnit) done() {
	u.refMu.Lock()
	u.refs--
	free := u.evicted && u.refs == 0
	u.refMu.Unlock()

	if free {
		u.Release()
	}
}

func (u *cachedUnit) evict() {
	u.refMu.Lock()
	u.evicted = true
	free := u.refs == 0
	u.refMu.Unlock()

	if free {
		go u.Release()
	}
}

func (u *cachedUnit) leases() int {
	u.refMu.Lock()
	defer u.refMu.Unlock()
	return u.refs
}

func (u *cachedUnit) Apply(image *types.DecodedImage) (*types.RawInferenceOutput, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	if u.released {
		return nil, ErrModelUnloaded
	}
	return u.unit.Apply(image)
}

func (u *cachedUnit) Labels() []string {
	if labeler, ok := u.unit.(core.Labeler); ok {
		return labeler.Labels()
	}
	return nil
}

// Release frees the unit regardless of outstanding leases. It waits for
// running Apply calls to return.
func (u *cachedUnit) Release() {
	u.mu.Lock()
	defer u.mu.Unlock()

	if !u.released {
		u.released = true
		u.unit.Release()
	}
}
