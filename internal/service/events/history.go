package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"github.com/zhouzirui/agentlink/internal/model/chat"
)

// DefaultHistoryLimit is the number of records Recent returns when limit is not positive.
const DefaultHistoryLimit = 10

type historyResponse struct {
	Status  string              `json:"status"`
	Message string              `json:"message,omitempty"`
	Events  []chat.EventPayload `json:"events"`
}

// History fetches recently recorded events.
type History struct {
	baseURL string
	client  *http.Client
}

func NewHistory(baseURL string, client *http.Client) *History {
	if client == nil {
		client = http.DefaultClient
	}
	return &History{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// Recent returns up to limit records for sessionID, newest first. An empty
// sessionID lists every session.
func (h *History) Recent(ctx context.Context, sessionID string, limit int) ([]chat.EventPayload, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	endpoint := h.baseURL + "/api/events"
	if sessionID != "" {
		endpoint += "?" + url.Values{"session_id": {sessionID}}.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build events request")
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "list events")
	}
	defer resp.Body.Close()

	var body historyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.Wrapf(err, "decode events response (status %d)", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK || body.Status != "success" {
		return nil, errors.Errorf("list events: status %d: %s", resp.StatusCode, body.Message)
	}

	if len(body.Events) > limit {
		body.Events = body.Events[:limit]
	}
	return body.Events, nil
}
