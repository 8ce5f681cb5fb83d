package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/agentlink/internal/handler/agent"
	"github.com/zhouzirui/agentlink/internal/handler/chat"
	"github.com/zhouzirui/agentlink/internal/handler/events"
	"github.com/zhouzirui/agentlink/internal/handler/heartbeat"
	"github.com/zhouzirui/agentlink/internal/metrics"
	agentModel "github.com/zhouzirui/agentlink/internal/model/agent"
	"github.com/zhouzirui/agentlink/internal/service/background"
	"github.com/zhouzirui/agentlink/internal/service/bus"
	chatService "github.com/zhouzirui/agentlink/internal/service/chat"
	"github.com/zhouzirui/agentlink/internal/service/tools"
	"github.com/zhouzirui/agentlink/pkg/utils"
)

// Dependencies are the services the router exposes.
type Dependencies struct {
	Chat         *chatService.Service
	Responder    chat.Responder
	Bus          *bus.Bus
	Metrics      *metrics.Collector
	Tools        *tools.Registry
	Background   *background.Manager
	Info         agentModel.Info
	AgentName    string
	PingInterval time.Duration
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(log.Logger))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(middleware.Recoverer)

	chatHandler := chat.New(deps.Chat, deps.Responder, deps.Bus, deps.AgentName)
	eventsHandler := events.New(deps.Bus, deps.Chat, deps.Metrics)
	heartbeatHandler := heartbeat.New(deps.PingInterval)
	agentHandler := agent.New(deps.Info, deps.Tools, deps.Background)

	r.Route("/api", func(api chi.Router) {
		chatHandler.RegisterRoutes(api)
		eventsHandler.RegisterRoutes(api)
		agentHandler.RegisterRoutes(api)
	})
	heartbeatHandler.RegisterRoutes(r)

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}
