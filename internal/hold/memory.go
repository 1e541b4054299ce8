package hold

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	holder  string
	expires time.Time
}

// Memory is a process-local hold store. Expired entries are swept on Acquire.
type Memory struct {
	mu    sync.Mutex
	now   func() time.Time
	holds map[string]entry
}

var _ Store = (*Memory)(nil)

func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{now: now, holds: make(map[string]entry)}
}

func (m *Memory) Acquire(ctx context.Context, key, holder string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for k, e := range m.holds {
		if !now.Before(e.expires) {
			delete(m.holds, k)
		}
	}
	if e, ok := m.holds[key]; ok && e.holder != holder {
		return false, nil
	}
	m.holds[key] = entry{holder: holder, expires: now.Add(ttl)}
	return true, nil
}

func (m *Memory) Holder(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.holds[key]
	if !ok {
		return "", nil
	}
	if !m.now().Before(e.expires) {
		delete(m.holds, key)
		return "", nil
	}
	return e.holder, nil
}

func (m *Memory) Release(ctx context.Context, key, holder string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.holds[key]; ok && e.holder == holder {
		delete(m.holds, key)
	}
	return nil
}
