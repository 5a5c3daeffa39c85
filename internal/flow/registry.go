package flow

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	s        *Session
	lastSeen time.Time
}

// Registry keeps sessions between page load and submission so that a retry
// reuses the verdict and the tenant of the first load.
type Registry struct {
	ttl     time.Duration
	metrics *Metrics
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
	// byKey finds the latest session opened for the same client and page.
	byKey map[string]string
}

func NewRegistry(ttl time.Duration, m *Metrics) *Registry {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Registry{ttl: ttl, metrics: m, now: time.Now, sessions: map[string]*entry{}, byKey: map[string]string{}}
}

func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID()]; !ok {
		r.metrics.sessions(1)
	}
	r.sessions[s.ID()] = &entry{s: s, lastSeen: r.now()}
	r.byKey[s.params.Key()] = s.ID()
}

// Get returns a live session and refreshes its expiry.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getLocked(id)
}

// Find returns the live session last added for the same page parameters.
func (r *Registry) Find(p Params) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byKey[p.Key()]
	if !ok {
		return nil, false
	}
	return r.getLocked(id)
}

func (r *Registry) getLocked(id string) (*Session, bool) {
	e, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	if !e.s.Alive() || r.now().Sub(e.lastSeen) > r.ttl {
		r.evictLocked(id, e)
		return nil, false
	}
	e.lastSeen = r.now()
	return e.s, true
}

func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[id]; ok {
		r.evictLocked(id, e)
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep closes and drops expired sessions, returning how many went.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	now := r.now()
	for id, e := range r.sessions {
		if !e.s.Alive() || now.Sub(e.lastSeen) > r.ttl {
			r.evictLocked(id, e)
			n++
		}
	}
	return n
}

func (r *Registry) evictLocked(id string, e *entry) {
	e.s.Close()
	delete(r.sessions, id)
	if k := e.s.params.Key(); r.byKey[k] == id {
		delete(r.byKey, k)
	}
	r.metrics.sessions(-1)
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.Sweep()
		}
	}
}

// Close closes every session.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.sessions {
		r.evictLocked(id, e)
	}
}
