// Package agents calls the agent info, tool and background agent endpoints
// of an agent service.
package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"github.com/zhouzirui/agentlink/internal/model/agent"
)

// envelope is the union of every response body the endpoints return.
type envelope struct {
	Status  string              `json:"status"`
	Message string              `json:"message,omitempty"`
	Info    agent.Info          `json:"info"`
	Tools   []agent.Tool        `json:"tools"`
	Result  string              `json:"result"`
	Agent   agent.Background    `json:"agent"`
	Agents  []agent.Background  `json:"agents"`
	Manager agent.ManagerStatus `json:"manager"`
}

// Client manages the agent service's tools and background agents.
type Client struct {
	baseURL string
	client  *http.Client
}

func New(baseURL string, client *http.Client) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// Info describes the agent service.
func (c *Client) Info(ctx context.Context) (agent.Info, error) {
	body, err := c.call(ctx, http.MethodGet, "/api/agent/info", nil, "agent info")
	return body.Info, err
}

// Tools lists the tools the service can run.
func (c *Client) Tools(ctx context.Context) ([]agent.Tool, error) {
	body, err := c.call(ctx, http.MethodGet, "/api/tools", nil, "list tools")
	return body.Tools, err
}

// CallTool runs a tool with JSON arguments and returns its JSON result.
func (c *Client) CallTool(ctx context.Context, name string, arguments json.RawMessage) (string, error) {
	var payload io.Reader
	if len(arguments) > 0 {
		payload = bytes.NewReader(arguments)
	}
	body, err := c.do(ctx, http.MethodPost, "/api/tools/"+url.PathEscape(name), payload, "call tool "+name)
	return body.Result, err
}

// List returns the background agents in creation order.
func (c *Client) List(ctx context.Context) ([]agent.Background, error) {
	body, err := c.call(ctx, http.MethodGet, "/api/background/list", nil, "list background agents")
	return body.Agents, err
}

// Status summarizes the background scheduler.
func (c *Client) Status(ctx context.Context) (agent.ManagerStatus, error) {
	body, err := c.call(ctx, http.MethodGet, "/api/background/status", nil, "background status")
	return body.Manager, err
}

// Create registers a background agent. It does not run until Start.
func (c *Client) Create(ctx context.Context, req agent.CreateRequest) (agent.Background, error) {
	body, err := c.call(ctx, http.MethodPost, "/api/background/create", req, "create background agent")
	return body.Agent, err
}

func (c *Client) Start(ctx context.Context, agentID string) (agent.Background, error) {
	return c.control(ctx, "start", agentID)
}

func (c *Client) Stop(ctx context.Context, agentID string) (agent.Background, error) {
	return c.control(ctx, "stop", agentID)
}

func (c *Client) Pause(ctx context.Context, agentID string) (agent.Background, error) {
	return c.control(ctx, "pause", agentID)
}

func (c *Client) Resume(ctx context.Context, agentID string) (agent.Background, error) {
	return c.control(ctx, "resume", agentID)
}

// UpdateTask replaces an agent's query from its next run on.
func (c *Client) UpdateTask(ctx context.Context, agentID, query string) (agent.Background, error) {
	body, err := c.call(ctx, http.MethodPost, "/api/task/update",
		agent.TaskRequest{AgentID: agentID, Query: query}, "update task")
	return body.Agent, err
}

// Remove stops and forgets an agent.
func (c *Client) Remove(ctx context.Context, agentID string) error {
	_, err := c.call(ctx, http.MethodDelete, "/api/task/remove/"+url.PathEscape(agentID), nil, "remove background agent")
	return err
}

func (c *Client) control(ctx context.Context, action, agentID string) (agent.Background, error) {
	body, err := c.call(ctx, http.MethodPost, "/api/background/"+action,
		agent.TaskRequest{AgentID: agentID}, action+" background agent")
	return body.Agent, err
}

// call sends reqBody as JSON, or no body when it is nil.
func (c *Client) call(ctx context.Context, method, path string, reqBody any, what string) (envelope, error) {
	var payload io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return envelope{}, errors.Wrapf(err, "encode %s request", what)
		}
		payload = bytes.NewReader(data)
	}
	return c.do(ctx, method, path, payload, what)
}

func (c *Client) do(ctx context.Context, method, path string, payload io.Reader, what string) (envelope, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return envelope{}, errors.Wrapf(err, "build %s request", what)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return envelope{}, errors.Wrap(err, what)
	}
	defer resp.Body.Close()

	var body envelope
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return envelope{}, errors.Wrapf(err, "decode %s response (status %d)", what, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK || body.Status != "success" {
		return envelope{}, errors.Errorf("%s: status %d: %s", what, resp.StatusCode, body.Message)
	}
	return body, nil
}
