// Package permission tracks outstanding device-permission requests made by
// the embedded page until the host answers them.
package permission

import (
	"fmt"
	"log/slog"
	"sync"
)

// Token identifies one outstanding request. It is returned by Register and
// consumed by Resolve; the zero Token never matches a request.
type Token struct {
	index uint32
	gen   uint32
}

func (t Token) String() string { return fmt.Sprintf("perm-%d.%d", t.index, t.gen) }

// Valid reports whether t was issued by a registry.
func (t Token) Valid() bool { return t.gen != 0 }

type slot struct {
	gen      uint32
	callback func(granted bool)
	live     bool
}

// Registry maps tokens to one-shot completion callbacks. Slots are reused
// with a bumped generation, so a stale token can never fire a newer callback.
type Registry struct {
	mu     sync.Mutex
	slots  []slot
	free   []uint32
	live   int
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register stores callback and returns the token that resolves it.
func (r *Registry) Register(callback func(granted bool)) Token {
	r.mu.Lock()
	defer r.mu.Unlock()

	var idx uint32
	if n := len(r.free); n > 0 {
		idx = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		r.slots = append(r.slots, slot{})
		idx = uint32(len(r.slots) - 1)
	}

	s := &r.slots[idx]
	s.gen++
	s.callback = callback
	s.live = true
	r.live++
	return Token{index: idx, gen: s.gen}
}

// Resolve runs the callback for tok exactly once, outside the registry lock.
// It returns false for unknown, stale or already resolved tokens.
func (r *Registry) Resolve(tok Token, granted bool) bool {
	r.mu.Lock()
	if !tok.Valid() || int(tok.index) >= len(r.slots) {
		r.mu.Unlock()
		r.logger.Warn("permission result for unknown token", "token", tok.String())
		return false
	}
	s := &r.slots[tok.index]
	if !s.live || s.gen != tok.gen {
		r.mu.Unlock()
		r.logger.Warn("permission result for stale token", "token", tok.String())
		return false
	}
	cb := s.callback
	s.callback = nil
	s.live = false
	r.free = append(r.free, tok.index)
	r.live--
	r.mu.Unlock()

	if cb != nil {
		cb(granted)
	}
	return true
}

// Pending returns the number of unresolved requests.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live
}
