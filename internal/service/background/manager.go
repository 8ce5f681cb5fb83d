// Package background schedules agents that answer a fixed query on an
// interval, each in its own session, publishing their progress as events.
package background

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/agentlink/internal/model/agent"
	"github.com/zhouzirui/agentlink/internal/model/chat"
)

var (
	ErrAgentNotFound   = errors.New("background agent not found")
	ErrAgentExists     = errors.New("background agent already exists")
	ErrInvalidAgent    = errors.New("agent_id and query are required")
	ErrInvalidSchedule = errors.New("invalid schedule")
	ErrNotRunning      = errors.New("background agent is not running")
	ErrNotPaused       = errors.New("background agent is not paused")
	ErrClosed          = errors.New("background manager is closed")
)

// Event types published into an agent's session.
const (
	EventTaskStarted   = "background_task_started"
	EventTaskCompleted = "background_task_completed"
	EventTaskFailed    = "background_task_error"
)

// DefaultInterval applies when an agent is created without a schedule.
const DefaultInterval = time.Minute

// Responder answers one query given the session transcript.
type Responder interface {
	GenerateResponse(ctx context.Context, history []chat.Message, userMessage string) (*schema.Message, error)
}

// Store keeps the sessions and transcripts of background runs.
type Store interface {
	CreateSession(ctx context.Context) chat.Session
	LoadTranscript(ctx context.Context, sessionID string) ([]chat.Message, error)
	SaveMessage(ctx context.Context, message chat.Message) (chat.Message, error)
}

// Publisher fans session events out to subscribers.
type Publisher interface {
	Publish(ctx context.Context, sessionID string, ev chat.EventPayload) error
}

type task struct {
	info     agent.Background
	interval time.Duration
	created  int
	cancel   context.CancelFunc
	done     chan struct{}
}

// Manager owns every background agent and its scheduling goroutine.
type Manager struct {
	store     Store
	responder Responder
	events    Publisher
	agentName string
	logger    zerolog.Logger
	after     func(time.Duration) <-chan time.Time
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	tasks     map[string]*task
	created   int
	totalRuns int
	closed    bool
}

// Option configures a Manager.
type Option func(*Manager)

func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithAgentName labels published events.
func WithAgentName(name string) Option {
	return func(m *Manager) {
		m.agentName = name
	}
}

// WithClock replaces time.After and time.Now.
func WithClock(after func(time.Duration) <-chan time.Time, now func() time.Time) Option {
	return func(m *Manager) {
		if after != nil {
			m.after = after
		}
		if now != nil {
			m.now = now
		}
	}
}

// New creates a manager with no agents.
func New(store Store, responder Responder, events Publisher, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		store:     store,
		responder: responder,
		events:    events,
		logger:    log.Logger,
		after:     time.After,
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
		tasks:     make(map[string]*task),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With().Str("component", "background").Logger()
	return m
}

// ParseSchedule reads a run interval. Bare integers are seconds, anything
// else is a Go duration such as "90s" or "5m". Empty means DefaultInterval.
func ParseSchedule(schedule string) (time.Duration, error) {
	schedule = strings.TrimSpace(schedule)
	if schedule == "" {
		return DefaultInterval, nil
	}
	var interval time.Duration
	if secs, err := strconv.Atoi(schedule); err == nil {
		interval = time.Duration(secs) * time.Second
	} else if interval, err = time.ParseDuration(schedule); err != nil {
		return 0, errors.Wrapf(ErrInvalidSchedule, "%q", schedule)
	}
	if interval <= 0 {
		return 0, errors.Wrapf(ErrInvalidSchedule, "%q must be positive", schedule)
	}
	return interval, nil
}

// Create registers an agent with a fresh session. It does not run until Start.
func (m *Manager) Create(ctx context.Context, req agent.CreateRequest) (agent.Background, error) {
	id := strings.TrimSpace(req.AgentID)
	query := strings.TrimSpace(req.Query)
	if id == "" || query == "" {
		return agent.Background{}, ErrInvalidAgent
	}
	interval, err := ParseSchedule(req.Schedule)
	if err != nil {
		return agent.Background{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return agent.Background{}, ErrClosed
	}
	if _, ok := m.tasks[id]; ok {
		return agent.Background{}, errors.Wrapf(ErrAgentExists, "%q", id)
	}

	session := m.store.CreateSession(ctx)
	m.created++
	t := &task{
		info: agent.Background{
			AgentID:   id,
			Query:     query,
			Schedule:  strings.TrimSpace(req.Schedule),
			Interval:  int64(interval / time.Second),
			SessionID: session.ID,
			State:     agent.StateCreated,
		},
		interval: interval,
		created:  m.created,
	}
	m.tasks[id] = t
	m.logger.Info().Str("agent_id", id).Str("session_id", session.ID).Dur("interval", interval).Msg("background agent created")
	return t.info, nil
}

// Get returns one agent.
func (m *Manager) Get(id string) (agent.Background, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return agent.Background{}, errors.Wrapf(ErrAgentNotFound, "%q", id)
	}
	return t.info, nil
}

// List returns every agent in creation order.
func (m *Manager) List() []agent.Background {
	m.mu.Lock()
	defer m.mu.Unlock()
	tasks := make([]*task, 0, len(m.tasks))
	for _, t := range m.tasks {
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].created < tasks[j].created })

	out := make([]agent.Background, len(tasks))
	for i, t := range tasks {
		out[i] = t.info
	}
	return out
}

// Status summarizes the scheduler.
func (m *Manager) Status() agent.ManagerStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := agent.ManagerStatus{
		ManagerRunning: !m.closed,
		TotalAgents:    len(m.tasks),
		TotalTasks:     m.totalRuns,
	}
	for _, t := range m.tasks {
		if t.info.State == agent.StateRunning {
			st.RunningAgents++
		}
		if t.cancel != nil {
			st.SchedulerRunning = true
		}
	}
	return st
}

// Start runs the agent now and then once per interval. Starting a paused
// agent resumes it; starting a running one does nothing.
func (m *Manager) Start(id string) (agent.Background, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return agent.Background{}, ErrClosed
	}
	t, ok := m.tasks[id]
	if !ok {
		return agent.Background{}, errors.Wrapf(ErrAgentNotFound, "%q", id)
	}
	t.info.State = agent.StateRunning
	if t.cancel != nil {
		return t.info, nil
	}

	ctx, cancel := context.WithCancel(m.ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	m.wg.Add(1)
	go m.loop(ctx, id, t.interval, t.done)
	m.logger.Info().Str("agent_id", id).Msg("background agent started")
	return t.info, nil
}

// Stop cancels the schedule and waits for an in-flight run to end.
func (m *Manager) Stop(id string) (agent.Background, error) {
	m.mu.Lock()
	t, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		return agent.Background{}, errors.Wrapf(ErrAgentNotFound, "%q", id)
	}
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.info.State = agent.StateStopped
	info := t.info
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
		m.logger.Info().Str("agent_id", id).Msg("background agent stopped")
	}
	return info, nil
}

// Pause skips scheduled runs until Resume. The schedule keeps ticking.
func (m *Manager) Pause(id string) (agent.Background, error) {
	return m.swapState(id, agent.StateRunning, agent.StatePaused, ErrNotRunning)
}

// Resume lets a paused agent run again from its next tick.
func (m *Manager) Resume(id string) (agent.Background, error) {
	return m.swapState(id, agent.StatePaused, agent.StateRunning, ErrNotPaused)
}

func (m *Manager) swapState(id string, from, to agent.State, errWrongState error) (agent.Background, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return agent.Background{}, errors.Wrapf(ErrAgentNotFound, "%q", id)
	}
	if t.info.State != from {
		return agent.Background{}, errors.Wrapf(errWrongState, "%q is %s", id, t.info.State)
	}
	t.info.State = to
	return t.info, nil
}

// UpdateTask replaces the query used from the next run on.
func (m *Manager) UpdateTask(id, query string) (agent.Background, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return agent.Background{}, ErrInvalidAgent
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return agent.Background{}, errors.Wrapf(ErrAgentNotFound, "%q", id)
	}
	t.info.Query = query
	return t.info, nil
}

// Remove stops the agent and forgets it. Its session and events remain.
func (m *Manager) Remove(id string) error {
	if _, err := m.Stop(id); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.tasks, id)
	m.mu.Unlock()
	m.logger.Info().Str("agent_id", id).Msg("background agent removed")
	return nil
}

// Close stops every agent. The manager rejects new work afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	for _, t := range m.tasks {
		t.cancel, t.done = nil, nil
		t.info.State = agent.StateStopped
	}
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
}

func (m *Manager) loop(ctx context.Context, id string, interval time.Duration, done chan struct{}) {
	defer m.wg.Done()
	defer close(done)
	for {
		if query, sessionID, ok := m.due(id); ok {
			m.runOnce(ctx, id, sessionID, query)
		}
		select {
		case <-ctx.Done():
			return
		case <-m.after(interval):
		}
	}
}

// due reports whether id should run now, with the query and session to use.
func (m *Manager) due(id string) (query, sessionID string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, found := m.tasks[id]
	if !found || t.info.State != agent.StateRunning {
		return "", "", false
	}
	return t.info.Query, t.info.SessionID, true
}

func (m *Manager) runOnce(ctx context.Context, id, sessionID, query string) {
	logger := m.logger.With().Str("agent_id", id).Str("session_id", sessionID).Logger()
	m.publish(ctx, logger, sessionID, chat.EventPayload{Type: EventTaskStarted, Message: query})

	reply, err := m.answer(ctx, sessionID, query)
	if ctx.Err() != nil {
		return
	}

	m.mu.Lock()
	m.totalRuns++
	runs := 0
	if t, ok := m.tasks[id]; ok {
		t.info.Runs++
		t.info.LastRun = m.now().UTC().Format(time.RFC3339)
		t.info.LastError = ""
		if err != nil {
			t.info.LastError = err.Error()
		}
		runs = t.info.Runs
	}
	m.mu.Unlock()

	if err != nil {
		logger.Warn().Err(err).Msg("background run failed")
		m.publish(ctx, logger, sessionID, chat.EventPayload{Type: EventTaskFailed, Message: err.Error()})
		return
	}
	detail, _ := json.Marshal(map[string]any{"message": reply, "run": runs})
	m.publish(ctx, logger, sessionID, chat.EventPayload{Type: EventTaskCompleted, Payload: detail})
	logger.Debug().Int("run", runs).Msg("background run completed")
}

func (m *Manager) answer(ctx context.Context, sessionID, query string) (string, error) {
	history, err := m.store.LoadTranscript(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if _, err := m.store.SaveMessage(ctx, chat.Message{
		SessionID: sessionID,
		Sender:    chat.SenderUser,
		Content:   query,
	}); err != nil {
		return "", err
	}

	msg, err := m.responder.GenerateResponse(ctx, history, query)
	if err != nil {
		return "", err
	}
	if _, err := m.store.SaveMessage(ctx, chat.Message{
		SessionID: sessionID,
		Sender:    chat.SenderAgent,
		Content:   msg.Content,
	}); err != nil {
		return "", err
	}
	return msg.Content, nil
}

func (m *Manager) publish(ctx context.Context, logger zerolog.Logger, sessionID string, ev chat.EventPayload) {
	if m.events == nil {
		return
	}
	ev.AgentName = m.agentName
	ev.Timestamp = m.now().UTC().Format(time.RFC3339Nano)
	if err := m.events.Publish(ctx, sessionID, ev); err != nil {
		logger.Warn().Err(err).Str("event", ev.Type).Msg("failed to publish event")
	}
}
