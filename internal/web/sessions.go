package web

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/chalkboard/internal/conversation"
	"github.com/MrWong99/chalkboard/internal/observe"
)

// SessionCookie is the name of the cookie carrying the session id.
const SessionCookie = "chalkboard_session"

// EngineFactory creates the conversation engine of a new session.
type EngineFactory func() *conversation.Engine

type session struct {
	engine   *conversation.Engine
	lastSeen time.Time
}

// Sessions maps browser sessions to their own conversation engine. It is safe
// for concurrent use.
type Sessions struct {
	mu      sync.Mutex
	byID    map[string]*session
	factory EngineFactory
	metrics *observe.Metrics
	now     func() time.Time
}

// NewSessions returns an empty session store creating engines with factory.
// m may be nil.
func NewSessions(factory EngineFactory, m *observe.Metrics) *Sessions {
	return &Sessions{
		byID:    make(map[string]*session),
		factory: factory,
		metrics: m,
		now:     time.Now,
	}
}

// Get returns the engine of the request's session. A request without a
// valid session cookie gets a new session and the cookie is set on w.
func (s *Sessions) Get(w http.ResponseWriter, r *http.Request) (*conversation.Engine, string) {
	if c, err := r.Cookie(SessionCookie); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			if e, ok := s.touch(c.Value); ok {
				return e, c.Value
			}
		}
	}

	id := uuid.NewString()
	e := s.create(r.Context(), id)
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return e, id
}

// Lookup returns the engine of an existing session without creating one.
func (s *Sessions) Lookup(r *http.Request) (*conversation.Engine, bool) {
	c, err := r.Cookie(SessionCookie)
	if err != nil {
		return nil, false
	}
	return s.touch(c.Value)
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

// Expire drops sessions not seen for longer than idle and returns how many
// were removed.
func (s *Sessions) Expire(ctx context.Context, idle time.Duration) int {
	cutoff := s.now().Add(-idle)

	s.mu.Lock()
	var n int
	for id, sess := range s.byID {
		if sess.lastSeen.Before(cutoff) {
			delete(s.byID, id)
			n++
		}
	}
	s.mu.Unlock()

	if n > 0 && s.metrics != nil {
		s.metrics.ActiveSessions.Add(ctx, int64(-n))
	}
	return n
}

func (s *Sessions) touch(id string) (*conversation.Engine, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	sess.lastSeen = s.now()
	return sess.engine, true
}

func (s *Sessions) create(ctx context.Context, id string) *conversation.Engine {
	e := s.factory()
	s.mu.Lock()
	s.byID[id] = &session{engine: e, lastSeen: s.now()}
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.ActiveSessions.Add(ctx, 1)
	}
	observe.Logger(ctx).Debug("session created", "session", id)
	return e
}
