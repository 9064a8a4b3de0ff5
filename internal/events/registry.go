// Package events provides the time-bounded listener registry used to notify
// interested parties when a quest changes state.
package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/fentz26/questline/internal/models"
)

// DefaultTTL is how long a registered listener stays live when no TTL is
// given.
const DefaultTTL = 360 * time.Second

// Listener receives the updated quest after a state change.
type Listener func(q models.Quest)

type entry struct {
	expires  time.Time
	listener Listener
}

// Registry maps event keys to listeners. Every entry carries an absolute
// expiry; expired entries are evicted lazily when looked up. A Registry is
// safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock replaces time.Now as the registry's clock.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// NewRegistry creates an empty registry. A non-positive ttl falls back to
// DefaultTTL.
func NewRegistry(ttl time.Duration, opts ...Option) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	r := &Registry{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register stores listener under key unless a live listener already holds
// the key, in which case the call is a no-op and the original listener
// stays authoritative. A non-positive ttl uses the registry default.
// It reports whether the listener was stored.
func (r *Registry) Register(key string, listener Listener, ttl time.Duration) bool {
	if listener == nil {
		return false
	}
	if ttl <= 0 {
		ttl = r.ttl
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.liveLocked(key) {
		return false
	}
	r.entries[key] = entry{
		expires:  r.now().Add(ttl),
		listener: listener,
	}
	return true
}

// Consult returns the listener for key if it is still live. An expired
// entry is evicted.
func (r *Registry) Consult(key string) (Listener, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.liveLocked(key) {
		return nil, false
	}
	return r.entries[key].listener, true
}

// IsLive reports whether key holds an unexpired listener.
func (r *Registry) IsLive(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.liveLocked(key)
}

// Len returns the number of stored entries, expired ones included.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// liveLocked must be called with r.mu held.
func (r *Registry) liveLocked(key string) bool {
	e, ok := r.entries[key]
	if !ok {
		return false
	}
	if r.now().After(e.expires) {
		delete(r.entries, key)
		return false
	}
	return true
}

// Dispatch invokes the live listener of each key, in order, with q. Keys
// without a live listener are skipped silently. It returns the number of
// listeners invoked.
func (r *Registry) Dispatch(keys []string, q models.Quest) int {
	delivered := 0
	for _, key := range keys {
		listener, ok := r.Consult(key)
		if !ok {
			continue
		}
		if invoke(key, listener, q) {
			delivered++
		}
	}
	return delivered
}

// invoke runs the listener outside the registry lock so a listener may
// register further keys. A panicking listener is logged and skipped.
func invoke(key string, listener Listener, q models.Quest) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Warn("event listener panicked",
				slog.String("event", key),
				slog.String("quest_id", q.ID),
				slog.Any("panic", rec))
			ok = false
		}
	}()
	listener(q)
	return true
}
