package config

import (
	"sync"
	"sync/atomic"
)

// Holder publishes config snapshots. Readers take one snapshot per operation
// and never see a half-applied update.
type Holder struct {
	current atomic.Pointer[Config]
	mu      sync.Mutex // serializes Update
}

func NewHolder(cfg *Config) *Holder {
	h := &Holder{}
	h.current.Store(cfg)
	return h
}

// Get returns the current snapshot. Callers must not modify it.
func (h *Holder) Get() *Config {
	return h.current.Load()
}

// Update applies fn to a copy of the current snapshot, validates it and swaps
// it in. The current snapshot is kept if fn or validation fails.
func (h *Holder) Update(fn func(c *Config) error) (*Config, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	next := h.current.Load().Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if err := next.Validate(); err != nil {
		return nil, err
	}
	h.current.Store(next)
	return next, nil
}
