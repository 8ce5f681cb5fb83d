// Package turn drives a single chat request/response exchange over the chunked
// chat endpoint.
package turn

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/agentlink/internal/decoder"
	"github.com/zhouzirui/agentlink/internal/metrics"
	"github.com/zhouzirui/agentlink/internal/model/chat"
)

// Coordinator is the slice of session state a turn needs.
type Coordinator interface {
	SessionID() string
	SetSessionID(id string)
	SetBusy(busy bool)
	TryBeginTurn() bool
}

// State is the per-turn state machine. Completed and Failed behave as Idle for
// the next Send.
type State int

const (
	StateIdle State = iota
	StateStreaming
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the outcome of a completed turn.
type Result struct {
	SessionID string
	Text      string
}

type chatRequest struct {
	Message   string  `json:"message"`
	SessionID *string `json:"session_id"`
}

// Stream issues chat turns against one endpoint.
type Stream struct {
	endpoint string
	client   *http.Client
	coord    Coordinator
	obs      chat.Observer
	logger   zerolog.Logger
	metrics  *metrics.Collector

	mu    sync.Mutex
	state State
}

// Option configures a Stream.
type Option func(*Stream)

// WithHTTPClient replaces the default client. No timeout should be set on it:
// the response body is read open-ended.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Stream) {
		s.client = client
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Stream) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Collector) Option {
	return func(s *Stream) {
		s.metrics = m
	}
}

// New creates a Stream posting to endpoint (for example http://host/api/chat).
func New(endpoint string, coord Coordinator, obs chat.Observer, opts ...Option) *Stream {
	if obs == nil {
		obs = chat.ObserverFuncs{}
	}
	s := &Stream{
		endpoint: endpoint,
		client:   &http.Client{},
		coord:    coord,
		obs:      obs,
		logger:   log.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "chat_turn").Logger()
	return s
}

// State returns the state of the most recent turn.
func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Send runs one turn to its terminal frame. It returns ErrBusy without side
// effects when another turn is in flight. Observer callbacks fire as frames
// arrive; the same outcome is returned to the caller.
func (s *Stream) Send(ctx context.Context, message string) (Result, error) {
	if !s.coord.TryBeginTurn() {
		s.metrics.TurnFinished(metrics.OutcomeRejected)
		return Result{}, ErrBusy
	}
	s.setState(StateStreaming)

	requestID := uuid.NewString()
	logger := s.logger.With().Str("request_id", requestID).Logger()

	s.notify(chat.StateConnecting)
	body, err := s.open(ctx, requestID, message)
	if err != nil {
		return s.fail(logger, err)
	}
	defer body.Close()
	s.notify(chat.StateOpen)

	dec := decoder.New(
		decoder.WithLogger(logger),
		decoder.WithDropHook(func(reason string) {
			s.metrics.FrameDropped(chat.ChannelChat, reason)
		}),
	)

	var text strings.Builder
	for frame, err := range dec.Frames(body) {
		if err != nil {
			return s.fail(logger, &TransportError{Op: "read", Err: err})
		}
		s.metrics.FrameDecoded(chat.ChannelChat, frame.Kind)

		switch frame.Kind {
		case chat.KindChunk:
			text.WriteString(frame.Content)
			s.obs.OnChunk(text.String())
		case chat.KindComplete:
			return s.complete(logger, frame.SessionID, text.String())
		case chat.KindError:
			return s.fail(logger, &ServerError{Message: frame.Content})
		default:
			logger.Debug().Str("kind", string(frame.Kind)).Msg("ignoring frame on chat stream")
		}
	}

	return s.fail(logger, &TransportError{
		Op:  "read",
		Err: errors.Wrap(io.ErrUnexpectedEOF, "stream ended before completion"),
	})
}

func (s *Stream) open(ctx context.Context, requestID, message string) (io.ReadCloser, error) {
	payload := chatRequest{Message: message}
	if id := s.coord.SessionID(); id != "" {
		payload.SessionID = &id
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "marshal chat request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, &TransportError{Op: "request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("X-Request-ID", requestID)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "post", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, &TransportError{
			Op:         "post",
			StatusCode: resp.StatusCode,
			Err:        errors.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(detail))),
		}
	}
	return resp.Body, nil
}

func (s *Stream) complete(logger zerolog.Logger, sessionID, text string) (Result, error) {
	if sessionID != "" {
		s.coord.SetSessionID(sessionID)
	} else {
		logger.Warn().Msg("complete frame without session id, keeping current session")
		sessionID = s.coord.SessionID()
	}
	s.coord.SetBusy(false)
	s.setState(StateCompleted)
	s.notify(chat.StateClosed)
	s.metrics.TurnFinished(metrics.OutcomeCompleted)

	logger.Info().Str("session_id", sessionID).Int("length", len(text)).Msg("chat turn completed")
	s.obs.OnComplete(sessionID, text)
	return Result{SessionID: sessionID, Text: text}, nil
}

func (s *Stream) fail(logger zerolog.Logger, err error) (Result, error) {
	s.coord.SetBusy(false)
	s.setState(StateFailed)
	s.notify(chat.StateFailed)
	s.metrics.TurnFinished(metrics.OutcomeFailed)

	logger.Error().Err(err).Msg("chat turn failed")
	s.obs.OnError(err.Error())
	return Result{}, err
}

func (s *Stream) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Stream) notify(state chat.ChannelState) {
	s.metrics.ChannelState(chat.ChannelChat, state)
	s.obs.OnConnectionStateChange(chat.ChannelChat, state)
}
