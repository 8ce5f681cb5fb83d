package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/zhouzirui/agentlink/internal/client"
	"github.com/zhouzirui/agentlink/internal/model/agent"
)

const agentUsage = "usage: /agent create <id> <schedule> <query...> | " +
	"/agent start|stop|pause|resume|remove|watch <id> | /agent update <id> <query...>"

func showInfo(ctx context.Context, c *client.Client, out *printer) {
	info, err := c.Agents().Info(ctx)
	if err != nil {
		out.info("error: %v", err)
		return
	}
	out.info("agent: %s  model: %s", info.AgentName, info.Model)
	out.info("memory: %s  events: %s", info.MemoryBackend, info.EventBackend)
	out.info("tools: %d  background agents: %d", info.Tools, info.BackgroundAgents)
}

func showTools(ctx context.Context, c *client.Client, out *printer) {
	tools, err := c.Agents().Tools(ctx)
	if err != nil {
		out.info("error: %v", err)
		return
	}
	if len(tools) == 0 {
		out.info("no tools")
	}
	for _, t := range tools {
		out.info("%s: %s", t.Name, t.Description)
		if len(t.Parameters) > 0 {
			out.info("  parameters: %s", t.Parameters)
		}
	}
}

// callTool handles "/tool <name> [json]".
func callTool(ctx context.Context, c *client.Client, out *printer, arg string) {
	name, args, _ := strings.Cut(arg, " ")
	if name == "" {
		out.info("usage: /tool <name> [json arguments]")
		return
	}
	args = strings.TrimSpace(args)
	if args != "" && !json.Valid([]byte(args)) {
		out.info("error: arguments must be JSON")
		return
	}
	result, err := c.Agents().CallTool(ctx, name, json.RawMessage(args))
	if err != nil {
		out.info("error: %v", err)
		return
	}
	out.info("%s", result)
}

func showAgents(ctx context.Context, c *client.Client, out *printer) {
	status, err := c.Agents().Status(ctx)
	if err != nil {
		out.info("error: %v", err)
		return
	}
	list, err := c.Agents().List(ctx)
	if err != nil {
		out.info("error: %v", err)
		return
	}
	out.info("background agents: %d total, %d running, %d runs",
		status.TotalAgents, status.RunningAgents, status.TotalTasks)
	for _, a := range list {
		out.info("%s", formatAgent(a))
	}
}

// manageAgent handles the "/agent" subcommands.
func manageAgent(ctx context.Context, c *client.Client, out *printer, arg string) {
	fields := strings.Fields(arg)
	if len(fields) < 2 {
		out.info(agentUsage)
		return
	}
	action, id := fields[0], fields[1]
	agents := c.Agents()

	var (
		updated agent.Background
		err     error
	)
	switch action {
	case "create":
		if len(fields) < 4 {
			out.info(agentUsage)
			return
		}
		updated, err = agents.Create(ctx, agent.CreateRequest{
			AgentID:  id,
			Schedule: fields[2],
			Query:    strings.Join(fields[3:], " "),
		})
	case "start":
		updated, err = agents.Start(ctx, id)
	case "stop":
		updated, err = agents.Stop(ctx, id)
	case "pause":
		updated, err = agents.Pause(ctx, id)
	case "resume":
		updated, err = agents.Resume(ctx, id)
	case "update":
		if len(fields) < 3 {
			out.info(agentUsage)
			return
		}
		updated, err = agents.UpdateTask(ctx, id, strings.Join(fields[2:], " "))
	case "remove":
		if err := agents.Remove(ctx, id); err != nil {
			out.info("error: %v", err)
			return
		}
		out.info("removed %s", id)
		return
	case "watch":
		watchAgent(ctx, c, out, id)
		return
	default:
		out.info(agentUsage)
		return
	}
	if err != nil {
		out.info("error: %v", err)
		return
	}
	out.info("%s", formatAgent(updated))
}

// watchAgent points the event feed at the session a background agent writes to.
func watchAgent(ctx context.Context, c *client.Client, out *printer, id string) {
	list, err := c.Agents().List(ctx)
	if err != nil {
		out.info("error: %v", err)
		return
	}
	for _, a := range list {
		if a.AgentID != id {
			continue
		}
		if err := c.Watch(a.SessionID); err != nil {
			out.info("error: %v", err)
			return
		}
		out.info("watching events of %s (session %s)", id, a.SessionID)
		return
	}
	out.info("error: no background agent %q", id)
}

func formatAgent(a agent.Background) string {
	line := fmt.Sprintf("%s [%s] every %s, %d runs: %s",
		a.AgentID, a.State, time.Duration(a.Interval)*time.Second, a.Runs, a.Query)
	if a.LastError != "" {
		line += " (last error: " + a.LastError + ")"
	}
	return line
}
