package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	schemasession "github.com/Mvgnu/BioLabs-sub002/core/schema/v1/session"
)

const maxResponseBytes = 4 << 20

// RemoteError is a structured failure from the stage-execution service.
// Detail, when present, is the server's human-readable explanation.
type RemoteError struct {
	Op         string `json:"op"`
	StatusCode int    `json:"status_code"`
	Detail     string `json:"detail,omitempty"`
}

func (e *RemoteError) Error() string {
	if strings.TrimSpace(e.Detail) == "" {
		return fmt.Sprintf("%s returned status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Op, e.StatusCode, e.Detail)
}

// HTTPClient talks to the stage-execution service. No local timeout is
// enforced here; the injected http.Client's timeout, if any, is inherited.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

type HTTPClientOptions struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPClient(opts HTTPClientOptions) (*HTTPClient, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("stage service base url is required")
	}
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPClient{baseURL: base, client: client}, nil
}

func (c *HTTPClient) SubmitStage(ctx context.Context, sessionID, stage string, payload map[string]any) (schemasession.Session, error) {
	path := fmt.Sprintf("/sessions/%s/stages/%s", url.PathEscape(sessionID), url.PathEscape(stage))
	return c.post(ctx, OpSubmit, path, map[string]any{"payload": payload})
}

func (c *HTTPClient) Resume(ctx context.Context, sessionID string, overrides map[string]any) (schemasession.Session, error) {
	path := fmt.Sprintf("/sessions/%s/resume", url.PathEscape(sessionID))
	return c.post(ctx, OpResume, path, map[string]any{"overrides": overrides})
}

func (c *HTTPClient) Finalize(ctx context.Context, sessionID string, guardrailState map[string]schemasession.GuardrailSnapshot) (schemasession.Session, error) {
	path := fmt.Sprintf("/sessions/%s/finalize", url.PathEscape(sessionID))
	return c.post(ctx, OpFinalize, path, map[string]any{"guardrail_state": guardrailState})
}

func (c *HTTPClient) Cancel(ctx context.Context, sessionID, reason string) (schemasession.Session, error) {
	path := fmt.Sprintf("/sessions/%s/cancel", url.PathEscape(sessionID))
	return c.post(ctx, OpCancel, path, map[string]any{"reason": reason})
}

// FetchSession retrieves a fresh authoritative snapshot; used by the event
// consumer's re-synchronization step.
func (c *HTTPClient) FetchSession(ctx context.Context, sessionID string) (schemasession.Session, error) {
	path := fmt.Sprintf("/sessions/%s", url.PathEscape(sessionID))
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return schemasession.Session{}, fmt.Errorf("build session fetch request: %w", err)
	}
	request.Header.Set("Accept", "application/json")
	request.Header.Set("X-Request-ID", uuid.NewString())
	return c.execute("fetch", request)
}

func (c *HTTPClient) post(ctx context.Context, op, path string, body map[string]any) (schemasession.Session, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return schemasession.Session{}, fmt.Errorf("marshal %s request: %w", op, err)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return schemasession.Session{}, fmt.Errorf("build %s request: %w", op, err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")
	request.Header.Set("X-Request-ID", uuid.NewString())
	return c.execute(op, request)
}

func (c *HTTPClient) execute(op string, request *http.Request) (schemasession.Session, error) {
	response, err := c.client.Do(request)
	if err != nil {
		return schemasession.Session{}, fmt.Errorf("%s request: %w", op, err)
	}
	defer func() { _ = response.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
	if err != nil {
		return schemasession.Session{}, fmt.Errorf("read %s response: %w", op, err)
	}
	if response.StatusCode >= 400 {
		remote := &RemoteError{Op: op, StatusCode: response.StatusCode}
		var structured struct {
			Detail string `json:"detail"`
		}
		if unmarshalErr := json.Unmarshal(raw, &structured); unmarshalErr == nil {
			remote.Detail = strings.TrimSpace(structured.Detail)
		}
		return schemasession.Session{}, remote
	}
	var snapshot schemasession.Session
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return schemasession.Session{}, fmt.Errorf("decode %s response: %w", op, err)
	}
	return snapshot, nil
}
