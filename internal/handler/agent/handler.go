package agent

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/agentlink/internal/model/agent"
	"github.com/zhouzirui/agentlink/internal/service/background"
	"github.com/zhouzirui/agentlink/internal/service/tools"
	"github.com/zhouzirui/agentlink/pkg/utils"
)

// maxToolArguments caps the body of a tool call.
const maxToolArguments = 1 << 20

// Handler serves agent info, tools and background agent management.
type Handler struct {
	info   agent.Info
	tools  *tools.Registry
	agents *background.Manager
	logger zerolog.Logger
}

// New creates the handler. info carries the static fields; counts are filled
// per request.
func New(info agent.Info, registry *tools.Registry, manager *background.Manager) *Handler {
	return &Handler{
		info:   info,
		tools:  registry,
		agents: manager,
		logger: log.Logger.With().Str("component", "agent_handler").Logger(),
	}
}

// RegisterRoutes mounts the agent, tools, background and task routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/agent/info", h.handleInfo)

	r.Get("/tools", h.handleListTools)
	r.Post("/tools/{name}", h.handleInvokeTool)

	r.Route("/background", func(r chi.Router) {
		r.Post("/create", h.handleCreate)
		r.Get("/list", h.handleList)
		r.Get("/status", h.handleStatus)
		r.Post("/start", h.control(h.agents.Start))
		r.Post("/stop", h.control(h.agents.Stop))
		r.Post("/pause", h.control(h.agents.Pause))
		r.Post("/resume", h.control(h.agents.Resume))
	})
	r.Post("/task/update", h.handleUpdateTask)
	r.Delete("/task/remove/{agentID}", h.handleRemove)
}

func (h *Handler) handleInfo(w http.ResponseWriter, r *http.Request) {
	info := h.info
	info.BackgroundAgents = h.agents.Status().TotalAgents
	info.Tools = h.tools.Len()
	utils.RespondJSON(w, http.StatusOK, map[string]any{"status": "success", "info": info})
}

func (h *Handler) handleListTools(w http.ResponseWriter, r *http.Request) {
	list, err := h.tools.List(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list tools")
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"status": "success", "tools": list})
}

func (h *Handler) handleInvokeTool(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	args, err := io.ReadAll(io.LimitReader(r.Body, maxToolArguments))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := h.tools.Invoke(r.Context(), name, string(args))
	if err != nil {
		h.respondError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"status": "success", "result": result})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req agent.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	created, err := h.agents.Create(r.Context(), req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"status": "success", "agent": created})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{"status": "success", "agents": h.agents.List()})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{"status": "success", "manager": h.agents.Status()})
}

// control adapts a state change keyed by agent_id to a handler.
func (h *Handler) control(op func(id string) (agent.Background, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req agent.TaskRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		updated, err := op(req.AgentID)
		if err != nil {
			h.respondError(w, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, map[string]any{"status": "success", "agent": updated})
	}
}

func (h *Handler) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	var req agent.TaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	updated, err := h.agents.UpdateTask(req.AgentID, req.Query)
	if err != nil {
		h.respondError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"status": "success", "agent": updated})
}

func (h *Handler) handleRemove(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "agentID")
	if err := h.agents.Remove(id); err != nil {
		h.respondError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "agent " + id + " removed"})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, background.ErrAgentNotFound), errors.Is(err, tools.ErrToolNotFound):
		status = http.StatusNotFound
	case errors.Is(err, background.ErrAgentExists):
		status = http.StatusConflict
	case errors.Is(err, background.ErrClosed):
		status = http.StatusServiceUnavailable
	}
	utils.RespondError(w, status, err.Error())
}
