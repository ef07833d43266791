package session

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"cellar-service/internal/reconcile/model"
)

// ErrSessionNotFound is returned for unknown or expired session ids.
var ErrSessionNotFound = eris.New("session: not found")

// Registry keeps live sessions by id for the HTTP layer.
type Registry struct {
	mu       sync.Mutex
	deps     Deps
	ttl      time.Duration
	sessions map[string]*Session
}

// NewRegistry creates sessions with deps. Sessions untouched for ttl are
// dropped on the next Create; ttl <= 0 keeps them until Delete.
func NewRegistry(deps Deps, ttl time.Duration) *Registry {
	return &Registry{deps: deps, ttl: ttl, sessions: make(map[string]*Session)}
}

func (r *Registry) Create() *Session {
	return r.CreateWith(r.deps.Options)
}

// CreateWith starts a session with its own matching options.
func (r *Registry) CreateWith(opts model.Options) *Session {
	deps := r.deps
	deps.Options = opts
	s := New(deps)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictLocked(time.Now())
	r.sessions[s.ID()] = s
	return s
}

func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, eris.Wrapf(ErrSessionNotFound, "id %s", id)
	}
	return s, nil
}

func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	return ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// сессии в процессе записи не трогаем
func (r *Registry) evictLocked(now time.Time) {
	if r.ttl <= 0 {
		return
	}
	for id, s := range r.sessions {
		s.mu.Lock()
		stale := s.state != Committing && now.Sub(s.updatedAt) > r.ttl
		s.mu.Unlock()
		if stale {
			delete(r.sessions, id)
		}
	}
}

// Options returns the matching options new sessions get by default.
func (r *Registry) Options() model.Options {
	if r.deps.Options.Threshold <= 0 {
		return model.DefaultOptions()
	}
	return r.deps.Options
}
