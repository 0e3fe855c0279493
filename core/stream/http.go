package stream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// HTTPSource opens the server-push channel at
// GET {base}/sessions/{id}/events. The server emits one JSON envelope per
// line and never reconnects on its own.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

type HTTPSourceOptions struct {
	BaseURL string
	// Client, when nil, falls back to http.DefaultClient. Streaming reads
	// want a client without a global timeout; the caller decides.
	Client *http.Client
}

func NewHTTPSource(opts HTTPSourceOptions) (*HTTPSource, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("event source base url is required")
	}
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSource{baseURL: base, client: client}, nil
}

func (s *HTTPSource) Open(ctx context.Context, sessionID string) (io.ReadCloser, error) {
	endpoint := fmt.Sprintf("%s/sessions/%s/events", s.baseURL, url.PathEscape(sessionID))
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build event channel request: %w", err)
	}
	request.Header.Set("Accept", "application/x-ndjson")
	request.Header.Set("X-Request-ID", uuid.NewString())

	response, err := s.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("open event channel: %w", err)
	}
	if response.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(response.Body, 4*1024))
		_ = response.Body.Close()
		return nil, fmt.Errorf("event channel returned status %d: %s", response.StatusCode, strings.TrimSpace(string(body)))
	}
	return response.Body, nil
}
