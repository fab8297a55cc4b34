package game

import (
	"sync"
)

// Registry maps live session codes to their state. A code maps to at most
// one session and is freed exactly once, when the game ends.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*session
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*session),
	}
}

// put registers sess under its code. It reports false when the code is
// already taken, so callers can regenerate and retry.
func (r *Registry) put(sess *session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.sessions[sess.code]; taken {
		return false
	}

	r.sessions[sess.code] = sess
	return true
}

func (r *Registry) get(code string) (*session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[code]
	return sess, ok
}

// remove frees a code. It reports whether the code was still registered,
// which is false on a repeated removal.
func (r *Registry) remove(code string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[code]; !ok {
		return false
	}

	delete(r.sessions, code)
	return true
}
