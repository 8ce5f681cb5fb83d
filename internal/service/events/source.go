package events

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// Source opens a push subscription for one session. Closing the returned body
// must release the underlying transport.
type Source interface {
	Open(ctx context.Context, sessionID string) (io.ReadCloser, error)
}

// HTTPSource subscribes to {BaseURL}/api/events/stream/{sessionID}.
type HTTPSource struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPSource returns a source using a client without timeout.
func NewHTTPSource(baseURL string) *HTTPSource {
	return &HTTPSource{BaseURL: strings.TrimRight(baseURL, "/"), Client: &http.Client{}}
}

func (s *HTTPSource) Open(ctx context.Context, sessionID string) (io.ReadCloser, error) {
	endpoint := s.BaseURL + "/api/events/stream/" + url.PathEscape(sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build event stream request")
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "open event stream")
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, errors.Errorf("open event stream: unexpected status %s", resp.Status)
	}
	return resp.Body, nil
}
