// Package agent holds the wire types of the agent management endpoints:
// server info, tools and scheduled background agents.
package agent

import "encoding/json"

// State is the lifecycle state of a background agent.
type State string

const (
	StateCreated State = "created"
	StateRunning State = "running"
	StatePaused  State = "paused"
	StateStopped State = "stopped"
)

// Info describes the serving agent and its backends.
type Info struct {
	AgentName        string `json:"agent_name"`
	Model            string `json:"model"`
	MemoryBackend    string `json:"memory_backend"`
	EventBackend     string `json:"event_backend"`
	BackgroundAgents int    `json:"background_agents"`
	Tools            int    `json:"tools"`
}

// Tool is a callable tool advertised by the server. Parameters is a JSON
// schema object, absent when the tool takes no arguments.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// Background is a background agent that runs Query on a fixed interval in
// its own session.
type Background struct {
	AgentID   string `json:"agent_id"`
	Query     string `json:"query"`
	Schedule  string `json:"schedule,omitempty"`
	Interval  int64  `json:"interval"` // seconds
	SessionID string `json:"session_id"`
	State     State  `json:"state"`
	Runs      int    `json:"runs"`
	LastRun   string `json:"last_run,omitempty"`
	LastError string `json:"last_error,omitempty"`
}

// ManagerStatus summarizes the background scheduler.
type ManagerStatus struct {
	ManagerRunning   bool `json:"manager_running"`
	TotalAgents      int  `json:"total_agents"`
	RunningAgents    int  `json:"running_agents"`
	TotalTasks       int  `json:"total_tasks"`
	SchedulerRunning bool `json:"scheduler_running"`
}

// CreateRequest is the body of POST /api/background/create.
type CreateRequest struct {
	AgentID  string `json:"agent_id"`
	Query    string `json:"query"`
	Schedule string `json:"schedule,omitempty"`
}

// TaskRequest names an agent, with a new query for task updates.
type TaskRequest struct {
	AgentID string `json:"agent_id"`
	Query   string `json:"query,omitempty"`
}
