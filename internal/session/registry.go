package session

import (
	"github.com/puzpuzpuz/xsync/v3"
)

// Registry tracks live sessions by uuid.
type Registry struct {
	sessions *xsync.MapOf[string, *Session]
}

func NewRegistry() *Registry {
	return &Registry{sessions: xsync.NewMapOf[string, *Session]()}
}

func (r *Registry) Add(s *Session) {
	r.sessions.Store(s.ID, s)
}

func (r *Registry) Get(id string) (*Session, bool) {
	return r.sessions.Load(id)
}

func (r *Registry) Remove(id string) {
	r.sessions.Delete(id)
}

func (r *Registry) Len() int {
	return r.sessions.Size()
}

// Range calls fn for every live session until it returns false.
func (r *Registry) Range(fn func(s *Session) bool) {
	r.sessions.Range(func(_ string, s *Session) bool {
		return fn(s)
	})
}
