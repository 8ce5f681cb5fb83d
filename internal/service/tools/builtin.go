package tools

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
	"github.com/pkg/errors"
)

type clockInput struct {
	Timezone string `json:"timezone"`
}

type clockOutput struct {
	Time     string `json:"time"`
	Timezone string `json:"timezone"`
}

type countInput struct {
	Text string `json:"text"`
}

type countOutput struct {
	Words      int `json:"words"`
	Characters int `json:"characters"`
	Lines      int `json:"lines"`
}

// Builtin returns the tools every agentd instance serves.
func Builtin(now func() time.Time) []tool.InvokableTool {
	if now == nil {
		now = time.Now
	}
	return []tool.InvokableTool{
		utils.NewTool(&schema.ToolInfo{
			Name: "current_time",
			Desc: "Current time, optionally in an IANA timezone such as Asia/Shanghai.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"timezone": {Type: schema.String, Desc: "IANA timezone name, UTC when empty"},
			}),
		}, func(_ context.Context, in clockInput) (clockOutput, error) {
			zone := strings.TrimSpace(in.Timezone)
			if zone == "" {
				zone = "UTC"
			}
			loc, err := time.LoadLocation(zone)
			if err != nil {
				return clockOutput{}, errors.Wrapf(err, "unknown timezone %q", zone)
			}
			return clockOutput{Time: now().In(loc).Format(time.RFC3339), Timezone: zone}, nil
		}),
		utils.NewTool(&schema.ToolInfo{
			Name: "word_count",
			Desc: "Counts the words and characters in a text.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"text": {Type: schema.String, Desc: "text to count", Required: true},
			}),
		}, func(_ context.Context, in countInput) (countOutput, error) {
			out := countOutput{
				Words:      len(strings.Fields(in.Text)),
				Characters: utf8.RuneCountInString(in.Text),
			}
			if in.Text != "" {
				out.Lines = strings.Count(in.Text, "\n") + 1
			}
			return out, nil
		}),
	}
}
