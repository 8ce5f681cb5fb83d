// Package server assembles the reference agent server.
package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/agentlink/internal/config"
	"github.com/zhouzirui/agentlink/internal/handler"
	"github.com/zhouzirui/agentlink/internal/metrics"
	"github.com/zhouzirui/agentlink/internal/model/agent"
	"github.com/zhouzirui/agentlink/internal/service/ai"
	"github.com/zhouzirui/agentlink/internal/service/background"
	"github.com/zhouzirui/agentlink/internal/service/bus"
	"github.com/zhouzirui/agentlink/internal/service/chat"
	"github.com/zhouzirui/agentlink/internal/service/tools"
)

const shutdownTimeout = 10 * time.Second

// Server owns the services behind the HTTP router.
type Server struct {
	cfg     config.ServerConfig
	chat    *chat.Service
	bus     *bus.Bus
	agents  *background.Manager
	metrics *metrics.Collector
	router  http.Handler
	logger  zerolog.Logger
}

// New builds the server. The Ark model is used when cfg.AI is complete,
// otherwise replies are echoed. Events go through Redis when RedisAddr is set.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	logger := log.Logger.With().Str("component", "agentd").Logger()
	m := metrics.NewCollector("agentd")

	info := agent.Info{
		AgentName:     cfg.Server.AgentName,
		Model:         "echo",
		MemoryBackend: "in_memory",
		EventBackend:  "memory",
	}

	var chatModel model.BaseChatModel = &ai.EchoModel{Prefix: "Echo: "}
	if cfg.AI.Enabled() {
		cm, err := cfg.AI.NewChatModel(ctx)
		if err != nil {
			return nil, err
		}
		chatModel = cm
		info.Model = cfg.AI.Model
		logger.Info().Str("model", cfg.AI.Model).Msg("using ark chat model")
	} else {
		logger.Info().Msg("ark credentials not configured, echoing replies")
	}

	aiSvc, err := ai.NewService(ctx, chatModel, cfg.AI.SystemPrompt)
	if err != nil {
		return nil, err
	}

	var eventBus *bus.Bus
	if cfg.Server.RedisAddr != "" {
		eventBus, err = bus.NewRedis(ctx, cfg.Server.RedisAddr, log.Logger, m)
		if err != nil {
			return nil, err
		}
		info.EventBackend = "redis"
	} else {
		eventBus = bus.NewInMemory(log.Logger, m)
	}

	registry, err := tools.NewRegistry(ctx, tools.Builtin(time.Now)...)
	if err != nil {
		return nil, err
	}

	chatSvc := chat.NewService()
	agents := background.New(chatSvc, aiSvc, eventBus, background.WithAgentName(cfg.Server.AgentName))
	router := handler.NewRouter(handler.Dependencies{
		Chat:         chatSvc,
		Responder:    aiSvc,
		Bus:          eventBus,
		Metrics:      m,
		Tools:        registry,
		Background:   agents,
		Info:         info,
		AgentName:    cfg.Server.AgentName,
		PingInterval: cfg.Server.PingInterval,
	})

	return &Server{
		cfg:     cfg.Server,
		chat:    chatSvc,
		bus:     eventBus,
		agents:  agents,
		metrics: m,
		router:  router,
		logger:  logger,
	}, nil
}

// Handler returns the HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Metrics returns the server collector.
func (s *Server) Metrics() *metrics.Collector {
	return s.metrics
}

// RecordEvents copies bus events into the recent-events store until ctx ends.
func (s *Server) RecordEvents(ctx context.Context) error {
	return s.bus.Record(ctx, s.chat)
}

// Close stops the background agents, then releases the event bus.
func (s *Server) Close() error {
	s.agents.Close()
	return s.bus.Close()
}

// Run listens on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	// Request contexts derive from gctx so open event streams end on shutdown.
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return gctx },
	}

	g.Go(func() error {
		return s.RecordEvents(gctx)
	})
	g.Go(func() error {
		s.logger.Info().Str("addr", s.cfg.Addr).Msg("agentd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "listen")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
