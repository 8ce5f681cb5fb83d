// Package client ties the chat, event and heartbeat channels of one
// conversational session together behind a single observer.
package client

import (
	"context"
	"net/http"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/agentlink/internal/config"
	"github.com/zhouzirui/agentlink/internal/metrics"
	"github.com/zhouzirui/agentlink/internal/model/chat"
	"github.com/zhouzirui/agentlink/internal/service/agents"
	"github.com/zhouzirui/agentlink/internal/service/events"
	"github.com/zhouzirui/agentlink/internal/service/heartbeat"
	"github.com/zhouzirui/agentlink/internal/service/session"
	"github.com/zhouzirui/agentlink/internal/service/turn"
)

// ErrNoSession is returned when a session id is required but empty.
var ErrNoSession = errors.New("session id is required")

// Client is one live session against an agent service.
type Client struct {
	cfg       config.ClientConfig
	logger    zerolog.Logger
	coord     *session.Coordinator
	turns     *turn.Stream
	events    *events.Channel
	heartbeat *heartbeat.Channel
	history   *events.History
	agents    *agents.Client
}

type options struct {
	logger        zerolog.Logger
	metrics       *metrics.Collector
	httpClient    *http.Client
	source        events.Source
	eventBackOff  func() backoff.BackOff
	heartbeatOpts []heartbeat.Option
	sessionID     string
}

// Option configures a Client.
type Option func(*options)

func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func WithMetrics(m *metrics.Collector) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithHTTPClient is used for chat turns, event streams and history. It must
// not set a timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithEventSource replaces the HTTP event stream source.
func WithEventSource(src events.Source) Option {
	return func(o *options) {
		o.source = src
	}
}

// WithEventBackOff replaces the event reconnect policy.
func WithEventBackOff(fn func() backoff.BackOff) Option {
	return func(o *options) {
		o.eventBackOff = fn
	}
}

// WithHeartbeatOptions passes extra options to the heartbeat channel.
func WithHeartbeatOptions(opts ...heartbeat.Option) Option {
	return func(o *options) {
		o.heartbeatOpts = append(o.heartbeatOpts, opts...)
	}
}

// WithSessionID resumes a known session. The event channel is armed on Run.
func WithSessionID(id string) Option {
	return func(o *options) {
		o.sessionID = id
	}
}

// New wires the coordinator and the three channels. Nothing connects until
// Run or Send is called.
func New(cfg config.ClientConfig, obs chat.Observer, opts ...Option) *Client {
	o := options{logger: log.Logger, httpClient: &http.Client{}}
	for _, opt := range opts {
		opt(&o)
	}
	if obs == nil {
		obs = chat.ObserverFuncs{}
	}
	if o.source == nil {
		o.source = &events.HTTPSource{BaseURL: cfg.BaseURL, Client: o.httpClient}
	}

	eventOpts := []events.Option{
		events.WithLogger(o.logger),
		events.WithMetrics(o.metrics),
		events.WithMaxRetries(cfg.EventsMaxRetries),
	}
	if o.eventBackOff != nil {
		eventOpts = append(eventOpts, events.WithBackOff(o.eventBackOff))
	}
	eventChannel := events.New(o.source, obs, eventOpts...)

	coord := session.New(eventChannel,
		session.WithLogger(o.logger),
		session.WithSessionID(o.sessionID),
	)

	turns := turn.New(cfg.BaseURL+"/api/chat", coord, obs,
		turn.WithHTTPClient(o.httpClient),
		turn.WithLogger(o.logger),
		turn.WithMetrics(o.metrics),
	)

	hbOpts := append([]heartbeat.Option{
		heartbeat.WithLogger(o.logger),
		heartbeat.WithMetrics(o.metrics),
		heartbeat.WithDelay(cfg.HeartbeatDelay),
		heartbeat.WithReadTimeout(cfg.HeartbeatTimeout),
	}, o.heartbeatOpts...)

	return &Client{
		cfg:       cfg,
		logger:    o.logger.With().Str("component", "client").Logger(),
		coord:     coord,
		turns:     turns,
		events:    eventChannel,
		heartbeat: heartbeat.New(cfg.HeartbeatURL, obs, hbOpts...),
		history:   events.NewHistory(cfg.BaseURL, o.httpClient),
		agents:    agents.New(cfg.BaseURL, o.httpClient),
	}
}

// Run keeps the heartbeat alive and, for a resumed session, the event
// subscription, until ctx is cancelled. The event subscription is closed
// before Run returns.
func (c *Client) Run(ctx context.Context) error {
	defer c.events.Stop()
	if id := c.coord.SessionID(); id != "" {
		c.events.Start(id)
	}
	c.logger.Info().Str("base_url", c.cfg.BaseURL).Msg("client running")
	return c.heartbeat.Run(ctx)
}

// Send runs one chat turn. It fails fast with turn.ErrBusy while another
// turn is in flight.
func (c *Client) Send(ctx context.Context, message string) (turn.Result, error) {
	return c.turns.Send(ctx, message)
}

// Watch switches the session, re-arming the event subscription for it.
// Watching the session already subscribed to reconnects it. Watch waits for
// the previous subscription to close, so an Observer must not call it from
// OnEvent directly.
func (c *Client) Watch(sessionID string) error {
	if sessionID == "" {
		return ErrNoSession
	}
	if sessionID == c.events.SessionID() {
		c.events.Restart()
		return nil
	}
	c.coord.SetSessionID(sessionID)
	return nil
}

// RecentEvents lists recorded events of the current session, or of every
// session before the first turn completes.
func (c *Client) RecentEvents(ctx context.Context, limit int) ([]chat.EventPayload, error) {
	if limit <= 0 {
		limit = c.cfg.HistoryLimit
	}
	return c.history.Recent(ctx, c.coord.SessionID(), limit)
}

// Agents manages the service's tools and background agents.
func (c *Client) Agents() *agents.Client {
	return c.agents
}

// SessionID returns the current session id.
func (c *Client) SessionID() string {
	return c.coord.SessionID()
}

// Busy reports whether a chat turn is in flight.
func (c *Client) Busy() bool {
	return c.coord.Busy()
}

// TurnState is the state of the most recent chat turn.
func (c *Client) TurnState() turn.State {
	return c.turns.State()
}

// EventState is the state of the event subscription.
func (c *Client) EventState() chat.ChannelState {
	return c.events.State()
}

// HeartbeatState is the state of the heartbeat connection.
func (c *Client) HeartbeatState() chat.ChannelState {
	return c.heartbeat.State()
}

// Close stops the event subscription. Cancel the Run context to stop the heartbeat.
func (c *Client) Close() {
	c.events.Stop()
}
