package gateway

import (
	"sort"
	"sync"

	"github.com/vogiaan1904/realtime-gateway/internal/service"
)

// Registry indexes the authenticated sockets of this instance.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]*Conn
	byUser map[string]map[string]*Conn
}

func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[string]*Conn),
		byUser: make(map[string]map[string]*Conn),
	}
}

func (r *Registry) Add(c *Conn) {
	uID := c.UserID()
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[c.ID()] = c
	if r.byUser[uID] == nil {
		r.byUser[uID] = make(map[string]*Conn)
	}
	r.byUser[uID][c.ID()] = c
}

// Remove reports whether c was registered.
func (r *Registry) Remove(c *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[c.ID()]; !ok {
		return false
	}
	delete(r.conns, c.ID())
	uID := c.UserID()
	if set := r.byUser[uID]; set != nil {
		delete(set, c.ID())
		if len(set) == 0 {
			delete(r.byUser, uID)
		}
	}
	return true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *Registry) Conns() []service.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]service.Conn, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

func (r *Registry) UserConns(uID string) []service.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.byUser[uID]
	out := make([]service.Conn, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

func (r *Registry) HasUser(uID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[uID]) > 0
}

func (r *Registry) Users() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.byUser))
	for uID := range r.byUser {
		out = append(out, uID)
	}
	sort.Strings(out)
	return out
}

// all returns every registered socket, for shutdown.
func (r *Registry) all() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}
