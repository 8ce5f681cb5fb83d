// Package tools keeps the eino tools the agent server exposes over HTTP.
package tools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/pkg/errors"

	"github.com/zhouzirui/agentlink/internal/model/agent"
)

// ErrToolNotFound is returned for a name no tool is registered under.
var ErrToolNotFound = errors.New("tool not found")

// Registry looks tools up by name and lists them in registration order.
type Registry struct {
	tools map[string]tool.InvokableTool
	names []string
}

// NewRegistry indexes tools by the name in their ToolInfo.
func NewRegistry(ctx context.Context, tools ...tool.InvokableTool) (*Registry, error) {
	r := &Registry{tools: make(map[string]tool.InvokableTool, len(tools))}
	for _, t := range tools {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "read tool info")
		}
		if info == nil || info.Name == "" {
			return nil, errors.New("tool has no name")
		}
		if _, dup := r.tools[info.Name]; dup {
			return nil, errors.Errorf("duplicate tool %q", info.Name)
		}
		r.tools[info.Name] = t
		r.names = append(r.names, info.Name)
	}
	return r, nil
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.names)
}

// List describes every tool, parameters as JSON schema.
func (r *Registry) List(ctx context.Context) ([]agent.Tool, error) {
	out := make([]agent.Tool, 0, len(r.names))
	for _, name := range r.names {
		info, err := r.tools[name].Info(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "read tool info %s", name)
		}
		desc := agent.Tool{Name: info.Name, Description: info.Desc}

		schema, err := info.ParamsOneOf.ToJSONSchema()
		if err != nil {
			return nil, errors.Wrapf(err, "describe parameters of %s", name)
		}
		if schema != nil {
			if desc.Parameters, err = json.Marshal(schema); err != nil {
				return nil, errors.Wrapf(err, "marshal parameters of %s", name)
			}
		}
		out = append(out, desc)
	}
	return out, nil
}

// Invoke runs the named tool with JSON arguments. Empty arguments mean {}.
func (r *Registry) Invoke(ctx context.Context, name, arguments string) (string, error) {
	t, ok := r.tools[name]
	if !ok {
		return "", errors.Wrapf(ErrToolNotFound, "%q", name)
	}
	if strings.TrimSpace(arguments) == "" {
		arguments = "{}"
	}
	return t.InvokableRun(ctx, arguments)
}
