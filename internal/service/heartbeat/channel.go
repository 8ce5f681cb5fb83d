// Package heartbeat keeps a websocket keepalive open to the agent service and
// answers its pings.
package heartbeat

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/agentlink/internal/decoder"
	"github.com/zhouzirui/agentlink/internal/metrics"
	"github.com/zhouzirui/agentlink/internal/model/chat"
)

const (
	// DefaultDelay is the fixed wait between a close and the next dial.
	DefaultDelay = 5 * time.Second

	// DefaultReadTimeout closes a connection that has been silent for two
	// default server ping intervals plus slack.
	DefaultReadTimeout = 70 * time.Second

	// TimestampLayout formats pong timestamps as UTC with millisecond precision.
	TimestampLayout = "2006-01-02T15:04:05.000Z"

	handshakeTimeout = 10 * time.Second
	writeWait        = 10 * time.Second
)

// Channel reconnects forever with a fixed delay until its context ends.
type Channel struct {
	url     string
	obs     chat.Observer
	logger  zerolog.Logger
	metrics *metrics.Collector
	dialer  *websocket.Dialer
	delay   time.Duration
	timeout time.Duration
	after   func(time.Duration) <-chan time.Time
	now     func() time.Time

	mu    sync.Mutex
	state chat.ChannelState
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

// WithDelay overrides DefaultDelay.
func WithDelay(d time.Duration) Option {
	return func(c *Channel) {
		if d > 0 {
			c.delay = d
		}
	}
}

// WithReadTimeout overrides DefaultReadTimeout. Zero disables the deadline.
func WithReadTimeout(d time.Duration) Option {
	return func(c *Channel) {
		if d >= 0 {
			c.timeout = d
		}
	}
}

func WithDialer(d *websocket.Dialer) Option {
	return func(c *Channel) {
		c.dialer = d
	}
}

// WithClock replaces time.After and time.Now.
func WithClock(after func(time.Duration) <-chan time.Time, now func() time.Time) Option {
	return func(c *Channel) {
		if after != nil {
			c.after = after
		}
		if now != nil {
			c.now = now
		}
	}
}

// New creates a channel for a ws:// or wss:// URL.
func New(url string, obs chat.Observer, opts ...Option) *Channel {
	if obs == nil {
		obs = chat.ObserverFuncs{}
	}
	c := &Channel{
		url:    url,
		obs:    obs,
		logger: log.Logger,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
		delay:   DefaultDelay,
		timeout: DefaultReadTimeout,
		after:   time.After,
		now:     time.Now,
		state:   chat.StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("component", "heartbeat").Str("url", url).Logger()
	return c
}

// State returns the current connection state.
func (c *Channel) State() chat.ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// clockTimer drives backoff waits through the injectable after func.
type clockTimer struct {
	after func(time.Duration) <-chan time.Time
	c     <-chan time.Time
}

func (t *clockTimer) Start(d time.Duration) { t.c = t.after(d) }
func (t *clockTimer) Stop()                 {}
func (t *clockTimer) C() <-chan time.Time   { return t.c }

// Run blocks until ctx is cancelled. Each close or dial failure is followed by
// one wait of the fixed delay and exactly one new dial.
func (c *Channel) Run(ctx context.Context) error {
	policy := backoff.WithContext(backoff.NewConstantBackOff(c.delay), ctx)
	notify := func(err error, wait time.Duration) {
		c.logger.Debug().Err(err).Dur("retry_in", wait).Msg("heartbeat reconnect scheduled")
		c.metrics.Reconnect(chat.ChannelHeartbeat)
	}
	connect := func() error {
		err := c.connect(ctx)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}

	// Every attempt ends in an error, so this returns only once ctx is done.
	_ = backoff.RetryNotifyWithTimer(connect, policy, notify, &clockTimer{after: c.after})
	c.transition(chat.StateClosed)
	return nil
}

// connect holds one websocket connection until it closes and reports why.
func (c *Channel) connect(ctx context.Context) error {
	c.transition(chat.StateConnecting)
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Warn().Err(err).Msg("heartbeat dial failed")
		}
		c.transition(chat.StateFailed)
		return errors.Wrap(err, "dial heartbeat")
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer func() {
		stop()
		conn.Close()
	}()

	c.transition(chat.StateOpen)
	c.logger.Info().Msg("heartbeat connected")

	for {
		if c.timeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(c.timeout))
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Info().Err(err).Msg("heartbeat connection closed")
			}
			c.transition(chat.StateClosed)
			return errors.Wrap(err, "read heartbeat")
		}

		var msg chat.Envelope
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn().Err(err).Str("message", string(data)).Msg("ignoring unparsable heartbeat message")
			c.metrics.FrameDropped(chat.ChannelHeartbeat, decoder.DropJSON)
			continue
		}
		c.metrics.FrameDecoded(chat.ChannelHeartbeat, chat.Kind(msg.Type))
		if msg.Type != string(chat.KindPing) {
			continue
		}

		pong := chat.Envelope{
			Type:      string(chat.KindPong),
			Timestamp: c.now().UTC().Format(TimestampLayout),
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(pong); err != nil {
			c.logger.Warn().Err(err).Msg("failed to send pong")
			c.transition(chat.StateClosed)
			return errors.Wrap(err, "send pong")
		}
	}
}

func (c *Channel) transition(state chat.ChannelState) {
	c.mu.Lock()
	if c.state == state {
		c.mu.Unlock()
		return
	}
	c.state = state
	c.mu.Unlock()

	c.metrics.ChannelState(chat.ChannelHeartbeat, state)
	c.obs.OnConnectionStateChange(chat.ChannelHeartbeat, state)
}
