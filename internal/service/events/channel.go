// Package events keeps a push subscription open for the current session and
// forwards its event records to the observer.
package events

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/agentlink/internal/decoder"
	"github.com/zhouzirui/agentlink/internal/metrics"
	"github.com/zhouzirui/agentlink/internal/model/chat"
)

// Channel owns at most one subscription at a time.
type Channel struct {
	source     Source
	obs        chat.Observer
	logger     zerolog.Logger
	metrics    *metrics.Collector
	newBackOff func() backoff.BackOff
	maxRetries uint64

	// lifecycle serializes Start, Stop and Restart.
	lifecycle sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}

	mu        sync.Mutex
	sessionID string
	state     chat.ChannelState
}

// Option configures a Channel.
type Option func(*Channel)

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Channel) {
		c.logger = logger
	}
}

func WithMetrics(m *metrics.Collector) Option {
	return func(c *Channel) {
		c.metrics = m
	}
}

// WithBackOff sets the reconnect policy factory. A policy returning
// backoff.Stop leaves the channel Closed.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(c *Channel) {
		c.newBackOff = fn
	}
}

// WithMaxRetries bounds consecutive failed attempts. Zero keeps retrying forever.
func WithMaxRetries(n uint64) Option {
	return func(c *Channel) {
		c.maxRetries = n
	}
}

// DefaultBackOff doubles from 1s up to 30s and never gives up.
func DefaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second
	b.Multiplier = 2
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// New creates an idle channel.
func New(source Source, obs chat.Observer, opts ...Option) *Channel {
	if obs == nil {
		obs = chat.ObserverFuncs{}
	}
	c := &Channel{
		source:     source,
		obs:        obs,
		logger:     log.Logger,
		newBackOff: DefaultBackOff,
		state:      chat.StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("component", "events").Logger()
	return c
}

// SessionID returns the session the channel is armed for.
func (c *Channel) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// State returns the current subscription state.
func (c *Channel) State() chat.ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start arms the channel for sessionID. An empty id is ignored. A live
// subscription for the same id is kept; anything else is fully closed before
// the new subscription opens.
func (c *Channel) Start(sessionID string) {
	if sessionID == "" {
		return
	}
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.Lock()
	live := c.cancel != nil && c.sessionID == sessionID &&
		(c.state == chat.StateOpen || c.state == chat.StateConnecting)
	c.mu.Unlock()
	if live {
		return
	}

	c.stopLocked()
	c.startLocked(sessionID)
}

// Restart reopens the subscription for the current session, whatever its state.
func (c *Channel) Restart() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	id := c.SessionID()
	if id == "" {
		return
	}
	c.stopLocked()
	c.startLocked(id)
}

// Stop closes the subscription and waits for its transport to be released.
// Calling Stop on a stopped channel does nothing. Start, Restart and Stop
// deadlock when called from the observer's OnEvent.
func (c *Channel) Stop() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	c.stopLocked()
}

func (c *Channel) startLocked(sessionID string) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	c.mu.Lock()
	c.sessionID = sessionID
	c.mu.Unlock()
	c.cancel = cancel
	c.done = done

	c.logger.Info().Str("session_id", sessionID).Msg("starting event subscription")
	go c.run(ctx, sessionID, done)
}

func (c *Channel) stopLocked() {
	if c.cancel == nil {
		return
	}
	c.transition(context.Background(), chat.StateClosing)
	c.cancel()
	<-c.done
	c.cancel = nil
	c.done = nil
	c.transition(context.Background(), chat.StateClosed)
}

func (c *Channel) run(ctx context.Context, sessionID string, done chan struct{}) {
	defer close(done)
	logger := c.logger.With().Str("session_id", sessionID).Logger()
	policy := c.newBackOff()
	if c.maxRetries > 0 {
		policy = backoff.WithMaxRetries(policy, c.maxRetries)
	}

	for {
		opened, err := c.subscribe(ctx, logger, sessionID)
		if ctx.Err() != nil {
			return
		}
		if opened {
			policy.Reset()
		}
		c.transition(ctx, chat.StateFailed)

		wait := policy.NextBackOff()
		if wait == backoff.Stop {
			logger.Error().Err(err).Msg("event subscription failed, giving up")
			c.transition(ctx, chat.StateClosed)
			return
		}
		logger.Warn().Err(err).Dur("retry_in", wait).Msg("event subscription failed")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		c.metrics.Reconnect(chat.ChannelEvents)
	}
}

// subscribe runs one subscription until it ends and reports whether it got
// past the open step.
func (c *Channel) subscribe(ctx context.Context, logger zerolog.Logger, sessionID string) (bool, error) {
	c.transition(ctx, chat.StateConnecting)
	body, err := c.source.Open(ctx, sessionID)
	if err != nil {
		return false, err
	}
	stop := context.AfterFunc(ctx, func() { body.Close() })
	defer func() {
		stop()
		body.Close()
	}()
	c.transition(ctx, chat.StateOpen)

	dec := decoder.New(
		decoder.WithLogger(logger),
		decoder.WithDropHook(func(reason string) {
			c.metrics.FrameDropped(chat.ChannelEvents, reason)
		}),
	)
	for frame, err := range dec.Frames(body) {
		if ctx.Err() != nil {
			return true, ctx.Err()
		}
		if err != nil {
			return true, err
		}
		c.metrics.FrameDecoded(chat.ChannelEvents, frame.Kind)
		if frame.Kind != chat.KindEvent || frame.Event == nil {
			logger.Debug().Str("kind", string(frame.Kind)).Msg("ignoring frame on event stream")
			continue
		}
		c.obs.OnEvent(*frame.Event)
	}
	return true, errors.Wrap(io.ErrUnexpectedEOF, "event stream ended")
}

// transition records a state change unless ctx, the owning subscription, has
// already been cancelled.
func (c *Channel) transition(ctx context.Context, state chat.ChannelState) {
	c.mu.Lock()
	if ctx.Err() != nil {
		c.mu.Unlock()
		return
	}
	c.state = state
	c.mu.Unlock()

	c.metrics.ChannelState(chat.ChannelEvents, state)
	c.obs.OnConnectionStateChange(chat.ChannelEvents, state)
}
