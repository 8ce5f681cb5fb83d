package chat

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/zhouzirui/agentlink/internal/model/chat"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrEmptyMessage    = errors.New("message is required")
)

// maxEventsPerSession bounds the recent-events buffer of each session.
const maxEventsPerSession = 100

type recordedEvent struct {
	event chat.EventPayload
	at    time.Time
	seq   uint64
}

// Service holds sessions, transcripts and recent events in memory.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]chat.Session
	messages map[string][]chat.Message
	events   map[string][]recordedEvent
	seq      uint64
	now      func() time.Time
}

// NewService bootstraps an empty in-memory store.
func NewService() *Service {
	return &Service{
		sessions: make(map[string]chat.Session),
		messages: make(map[string][]chat.Message),
		events:   make(map[string][]recordedEvent),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateSession provisions a new anonymous session.
func (s *Service) CreateSession(_ context.Context) chat.Session {
	session := chat.Session{
		ID:        uuid.NewString(),
		CreatedAt: s.now(),
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.messages[session.ID] = make([]chat.Message, 0, 16)
	s.mu.Unlock()

	return session
}

// ResolveSession returns the session for id, creating a fresh one when id is
// empty or unknown. The bool reports whether a session was created.
func (s *Service) ResolveSession(ctx context.Context, id string) (chat.Session, bool) {
	if id != "" {
		if session, err := s.GetSession(ctx, id); err == nil {
			return session, false
		}
	}
	return s.CreateSession(ctx), true
}

// SaveMessage appends a message to the session history.
func (s *Service) SaveMessage(_ context.Context, message chat.Message) (chat.Message, error) {
	if message.SessionID == "" {
		return chat.Message{}, ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[message.SessionID]; !ok {
		return chat.Message{}, ErrSessionNotFound
	}

	message.ID = uuid.NewString()
	if message.CreatedAt.IsZero() {
		message.CreatedAt = s.now()
	}

	s.messages[message.SessionID] = append(s.messages[message.SessionID], message)
	return message, nil
}

// GetSession retrieves a session by identifier.
func (s *Service) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	return session, nil
}

// LoadTranscript returns stored messages for the provided session.
func (s *Service) LoadTranscript(_ context.Context, sessionID string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages, ok := s.messages[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	copied := make([]chat.Message, len(messages))
	copy(copied, messages)
	return copied, nil
}

// RecordEvent keeps ev in the session's recent-events buffer.
func (s *Service) RecordEvent(_ context.Context, sessionID string, ev chat.EventPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	buf := append(s.events[sessionID], recordedEvent{event: ev, at: s.now(), seq: s.seq})
	if len(buf) > maxEventsPerSession {
		buf = buf[len(buf)-maxEventsPerSession:]
	}
	s.events[sessionID] = buf
}

// RecentEvents returns up to limit events, newest first. An empty sessionID
// merges every session. A non-positive limit returns everything retained.
func (s *Service) RecentEvents(_ context.Context, sessionID string, limit int) []chat.EventPayload {
	s.mu.RLock()
	var recorded []recordedEvent
	if sessionID != "" {
		recorded = append(recorded, s.events[sessionID]...)
	} else {
		for _, buf := range s.events {
			recorded = append(recorded, buf...)
		}
	}
	s.mu.RUnlock()

	sort.Slice(recorded, func(i, j int) bool {
		if !recorded[i].at.Equal(recorded[j].at) {
			return recorded[i].at.After(recorded[j].at)
		}
		return recorded[i].seq > recorded[j].seq
	})
	if limit > 0 && len(recorded) > limit {
		recorded = recorded[:limit]
	}

	out := make([]chat.EventPayload, len(recorded))
	for i, r := range recorded {
		out[i] = r.event
	}
	return out
}
