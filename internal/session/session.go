// Package session holds per-conversation state passed into every chat turn.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"marketrag/internal/domain"
)

// Form is the data-entry form a session currently shows.
type Form string

const (
	FormNone    Form = ""
	FormVendor  Form = "vendor"
	FormProduct Form = "product"
)

// Session is an append-only message log plus the open form flag.
type Session struct {
	ID string

	mu       sync.Mutex
	messages []domain.ChatMessage
	form     Form
}

func New() *Session {
	return &Session{ID: uuid.NewString()}
}

// Append adds a message to the end of the log.
func (s *Session) Append(role domain.Role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, domain.ChatMessage{Role: role, Content: content})
}

// Messages returns a copy of the log in order.
func (s *Session) Messages() []domain.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Session) OpenForm(f Form) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.form = f
}

func (s *Session) CloseForm() { s.OpenForm(FormNone) }

func (s *Session) Form() Form {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.form
}

// Registry keeps sessions by id for transports that span requests. A
// session idle for longer than the registry's ttl is dropped.
type Registry struct {
	sessions *cache.Cache
}

func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{sessions: cache.New(ttl, max(ttl/2, time.Second))}
}

// Get returns the session for id, creating a new one when id is empty,
// unknown or expired. Every Get restarts the session's idle timer. The
// boolean reports whether the session already existed.
func (r *Registry) Get(id string) (*Session, bool) {
	if id != "" {
		if v, ok := r.sessions.Get(id); ok {
			s := v.(*Session)
			r.sessions.SetDefault(id, s)
			return s, true
		}
	}
	s := New()
	r.sessions.SetDefault(s.ID, s)
	return s, false
}

// Len counts live sessions; expired ones may be included until the next
// cleanup pass.
func (r *Registry) Len() int {
	return r.sessions.ItemCount()
}
