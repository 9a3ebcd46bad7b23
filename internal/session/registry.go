package session

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sebas/rtprecv/internal/errs"
)

// MaxSessions is the hard cap on concurrently tracked sessions.
const MaxSessions = 16

// DeathTimeout is how long a session may go without SAP/RTP activity
// before the liveness reaper destroys it.
const DeathTimeout = 20 * time.Second

// Registry is the origin-keyed session table: a map for O(1) lookup by
// origin plus an ordered slice for the reaper's iteration, per the
// "intrusive list + hash map" design note.
type Registry struct {
	mu       sync.Mutex
	byOrigin map[string]*Session
	ordered  []*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byOrigin: make(map[string]*Session)}
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ordered)
}

// Get looks up a session by origin.
func (r *Registry) Get(origin string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byOrigin[origin]
	return s, ok
}

// Create inserts a new session for origin, rejecting it with
// errs.ErrCapacity if the registry is already at MaxSessions.
func (r *Registry) Create(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byOrigin[s.Origin]; exists {
		return fmt.Errorf("%w: origin %q already registered", errs.ErrCapacity, s.Origin)
	}
	if len(r.ordered) >= MaxSessions {
		slog.Warn("[Registry] session cap reached, refusing new session", "origin", s.Origin, "cap", MaxSessions)
		return fmt.Errorf("%w: %d sessions already tracked", errs.ErrCapacity, MaxSessions)
	}

	r.byOrigin[s.Origin] = s
	r.ordered = append(r.ordered, s)
	return nil
}

// Destroy removes origin's session from the registry, if present.
func (r *Registry) Destroy(origin string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.destroyLocked(origin)
}

func (r *Registry) destroyLocked(origin string) {
	s, ok := r.byOrigin[origin]
	if !ok {
		return
	}
	delete(r.byOrigin, origin)
	for i, existing := range r.ordered {
		if existing.Origin == origin {
			r.ordered = append(r.ordered[:i], r.ordered[i+1:]...)
			break
		}
	}
	s.Close()
}

// Snapshot returns a stable copy of the currently tracked sessions, in
// creation order, for the reaper and for read-only introspection.
func (r *Registry) Snapshot() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// ReapExpired destroys every session whose last_activity_sec is older
// than now - DeathTimeout, returning their origins.
func (r *Registry) ReapExpired(now time.Time) []string {
	cutoff := now.Add(-DeathTimeout).Unix()

	r.mu.Lock()
	var expired []*Session
	for _, s := range r.ordered {
		if s.LastActivitySec() < cutoff {
			expired = append(expired, s)
		}
	}
	r.mu.Unlock()

	origins := make([]string, 0, len(expired))
	for _, s := range expired {
		slog.Info("[Registry] liveness timeout, destroying session", "origin", s.Origin)
		r.Destroy(s.Origin)
		origins = append(origins, s.Origin)
	}
	return origins
}
