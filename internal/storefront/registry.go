package storefront

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxSessions ограничивает число сессий, если лимит не задан явно.
const DefaultMaxSessions = 10000

// Registry хранит сессии покупателей и удаляет неактивные.
type Registry struct {
	deps Deps
	ttl  time.Duration

	mu          sync.Mutex
	sessions    map[string]*Session
	maxSessions int
}

// NewRegistry создаёт реестр сессий с указанным временем жизни без активности.
func NewRegistry(deps Deps, ttl time.Duration) *Registry {
	return &Registry{
		deps:        deps,
		ttl:         ttl,
		sessions:    make(map[string]*Session),
		maxSessions: DefaultMaxSessions,
	}
}

// SetMaxSessions задаёт предельное число сессий; n <= 0 снимает ограничение.
func (r *Registry) SetMaxSessions(n int) {
	r.mu.Lock()
	r.maxSessions = n
	r.mu.Unlock()
}

// Get возвращает сессию по идентификатору.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if ok {
		s.Touch()
	}
	return s, ok
}

// Create создаёт и сохраняет новую сессию. При достижении лимита вытесняется
// сессия, дольше всех не проявлявшая активности.
func (r *Registry) Create() *Session {
	s := NewSession(uuid.NewString(), r.deps)

	r.mu.Lock()
	var evicted *Session
	if r.maxSessions > 0 && len(r.sessions) >= r.maxSessions {
		evicted = r.oldestLocked()
		if evicted != nil {
			delete(r.sessions, evicted.ID())
		}
	}
	r.sessions[s.ID()] = s
	r.mu.Unlock()

	if evicted != nil {
		evicted.Close()
	}
	return s
}

func (r *Registry) oldestLocked() *Session {
	var oldest *Session
	for _, s := range r.sessions {
		if oldest == nil || s.LastSeen().Before(oldest.LastSeen()) {
			oldest = s
		}
	}
	return oldest
}

// Ephemeral создаёт сессию, которая не попадает в реестр. Вызывающий закрывает её сам.
func (r *Registry) Ephemeral() *Session {
	return NewSession("", r.deps)
}

// Len возвращает число активных сессий.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep удаляет сессии, неактивные дольше ttl на момент now, и возвращает их число.
func (r *Registry) Sweep(now time.Time) int {
	if r.ttl <= 0 {
		return 0
	}

	r.mu.Lock()
	var expired []*Session
	for id, s := range r.sessions {
		if now.Sub(s.LastSeen()) > r.ttl {
			expired = append(expired, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range expired {
		s.Close()
	}
	return len(expired)
}

// StartSweeper периодически удаляет неактивные сессии до отмены контекста.
func (r *Registry) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				r.Sweep(now)
			}
		}
	}()
}
