package session

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Rearmer is re-armed whenever the session id changes. It must not call back
// into the Coordinator synchronously.
type Rearmer interface {
	Start(sessionID string)
}

// Coordinator holds the only shared mutable state of a client: the current
// session id and the chat busy flag.
type Coordinator struct {
	mu        sync.Mutex
	sessionID string
	busy      bool

	events Rearmer
	logger zerolog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the coordinator logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithSessionID seeds the coordinator with a known session, without re-arming.
func WithSessionID(id string) Option {
	return func(c *Coordinator) {
		c.sessionID = id
	}
}

// New creates a coordinator bound to the event channel it re-arms. events may be nil.
func New(events Rearmer, opts ...Option) *Coordinator {
	c := &Coordinator{
		events: events,
		logger: log.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("component", "session").Logger()
	return c
}

// SessionID returns the current session id, empty before the first completed turn.
func (c *Coordinator) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// SetSessionID stores id and then re-arms the event channel with it. The new id
// is fully applied before the re-arm runs, and the re-arm runs outside the lock.
func (c *Coordinator) SetSessionID(id string) {
	c.mu.Lock()
	prev := c.sessionID
	c.sessionID = id
	c.mu.Unlock()

	if prev != id {
		c.logger.Info().Str("session_id", id).Str("previous", prev).Msg("session changed")
	}
	if c.events != nil {
		c.events.Start(id)
	}
}

// Busy reports whether a chat turn is in flight.
func (c *Coordinator) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// SetBusy sets the busy flag.
func (c *Coordinator) SetBusy(busy bool) {
	c.mu.Lock()
	c.busy = busy
	c.mu.Unlock()
}

// TryBeginTurn sets the busy flag if it was clear and reports whether it did.
func (c *Coordinator) TryBeginTurn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return false
	}
	c.busy = true
	return true
}
