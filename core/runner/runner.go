package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	plannererrors "github.com/Mvgnu/BioLabs-sub002/core/errors"
	"github.com/Mvgnu/BioLabs-sub002/core/guardrail"
	schemasession "github.com/Mvgnu/BioLabs-sub002/core/schema/v1/session"
	schemastream "github.com/Mvgnu/BioLabs-sub002/core/schema/v1/stream"
)

// Runner operations.
const (
	OpSubmit   = "submit"
	OpResume   = "resume"
	OpFinalize = "finalize"
	OpCancel   = "cancel"
)

// fallbackDetails are the per-operation messages used when a remote failure
// carries no structured detail.
var fallbackDetails = map[string]string{
	OpSubmit:   "stage submission failed",
	OpResume:   "session resume failed",
	OpFinalize: "session finalize failed",
	OpCancel:   "session cancel failed",
}

// Client is the stage-execution service seam. Implementations are opaque,
// possibly slow, and fallible; the runner never inspects transport specifics
// beyond the returned error.
type Client interface {
	SubmitStage(ctx context.Context, sessionID, stage string, payload map[string]any) (schemasession.Session, error)
	Resume(ctx context.Context, sessionID string, overrides map[string]any) (schemasession.Session, error)
	Finalize(ctx context.Context, sessionID string, guardrailState map[string]schemasession.GuardrailSnapshot) (schemasession.Session, error)
	Cancel(ctx context.Context, sessionID, reason string) (schemasession.Session, error)
}

// Store is the snapshot seam the runner reads the gate from and writes
// successful responses to.
type Store interface {
	Get() (schemasession.Session, bool)
	Replace(next schemasession.Session)
}

// TokenSource supplies the freshest resume token, if any; satisfied by the
// recovery coordinator.
type TokenSource interface {
	LatestResumeToken() (schemastream.ResumeToken, bool)
}

type Options struct {
	SessionID string
	Client    Client
	Store     Store
	Tokens    TokenSource
}

// Runner serializes mutating operations against the stage-execution service.
// At most one of submit, resume, finalize, cancel is in flight at a time; a
// second call while one is pending is rejected, not queued. Every operation
// checks the derived guardrail gate locally before any network request.
type Runner struct {
	sessionID string
	client    Client
	store     Store
	tokens    TokenSource

	mu        sync.Mutex
	pendingOp string
}

func New(opts Options) (*Runner, error) {
	sessionID := strings.TrimSpace(opts.SessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}
	if opts.Client == nil {
		return nil, fmt.Errorf("stage client is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	return &Runner{
		sessionID: sessionID,
		client:    opts.Client,
		store:     opts.Store,
		tokens:    opts.Tokens,
	}, nil
}

// Pending reports the operation currently in flight, or "" when idle. The
// presentation layer disables controls while this is non-empty.
func (r *Runner) Pending() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pendingOp
}

// Submit dispatches one pipeline stage with its payload.
func (r *Runner) Submit(ctx context.Context, stage string, payload map[string]any) (schemasession.Session, error) {
	trimmedStage := strings.TrimSpace(stage)
	if trimmedStage == "" {
		return schemasession.Session{}, plannererrors.Wrap(
			fmt.Errorf("stage is required"),
			plannererrors.CategoryInvalidInput, "runner_stage_missing",
			"a pipeline stage must be named", false,
		)
	}
	if err := r.begin(OpSubmit); err != nil {
		return schemasession.Session{}, err
	}
	defer r.finish()
	next, err := r.client.SubmitStage(ctx, r.sessionID, trimmedStage, payload)
	if err != nil {
		return schemasession.Session{}, r.classifyRemote(OpSubmit, err)
	}
	r.store.Replace(next)
	return next, nil
}

// Resume restarts a held or interrupted session. The freshest resume token,
// when one has been received, rides along with the caller's overrides;
// without a token the call is best-effort with overrides only.
func (r *Runner) Resume(ctx context.Context, overrides map[string]any) (schemasession.Session, error) {
	if err := r.begin(OpResume); err != nil {
		return schemasession.Session{}, err
	}
	defer r.finish()
	merged := make(map[string]any, len(overrides)+1)
	for key, value := range overrides {
		merged[key] = value
	}
	if r.tokens != nil {
		if token, ok := r.tokens.LatestResumeToken(); ok {
			merged["resume_token"] = token
		}
	}
	next, err := r.client.Resume(ctx, r.sessionID, merged)
	if err != nil {
		return schemasession.Session{}, r.classifyRemote(OpResume, err)
	}
	r.store.Replace(next)
	return next, nil
}

// Finalize closes out the session with the operator-confirmed guardrail
// state.
func (r *Runner) Finalize(ctx context.Context, guardrailState map[string]schemasession.GuardrailSnapshot) (schemasession.Session, error) {
	if err := r.begin(OpFinalize); err != nil {
		return schemasession.Session{}, err
	}
	defer r.finish()
	next, err := r.client.Finalize(ctx, r.sessionID, guardrailState)
	if err != nil {
		return schemasession.Session{}, r.classifyRemote(OpFinalize, err)
	}
	r.store.Replace(next)
	return next, nil
}

// Cancel terminates the session. This is a distinct terminal operation, not
// an abort of an in-flight mutation.
func (r *Runner) Cancel(ctx context.Context, reason string) (schemasession.Session, error) {
	if err := r.begin(OpCancel); err != nil {
		return schemasession.Session{}, err
	}
	defer r.finish()
	next, err := r.client.Cancel(ctx, r.sessionID, reason)
	if err != nil {
		return schemasession.Session{}, r.classifyRemote(OpCancel, err)
	}
	r.store.Replace(next)
	return next, nil
}

// begin enforces the busy and gate preconditions. Both fail locally before
// any network request is issued.
func (r *Runner) begin(op string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pendingOp != "" {
		return plannererrors.Wrap(
			fmt.Errorf("operation %s already pending", r.pendingOp),
			plannererrors.CategoryBusy, "runner_busy",
			"another planner operation is still in flight", true,
		)
	}
	if snapshot, ok := r.store.Get(); ok {
		decision := guardrail.Derive(snapshot)
		if decision.Active {
			return plannererrors.Wrap(
				fmt.Errorf("guardrail gate active: %s", strings.Join(decision.Reasons, "; ")),
				plannererrors.CategoryGateBlocked, "runner_gate_blocked",
				gateDetail(decision.Reasons), true,
			)
		}
	}
	r.pendingOp = op
	return nil
}

func (r *Runner) finish() {
	r.mu.Lock()
	r.pendingOp = ""
	r.mu.Unlock()
}

// classifyRemote surfaces the server's structured detail when present, else
// the per-operation fallback message. The prior snapshot stays untouched.
func (r *Runner) classifyRemote(op string, err error) error {
	detail := fallbackDetails[op]
	retryable := false
	var remote *RemoteError
	if errors.As(err, &remote) {
		if strings.TrimSpace(remote.Detail) != "" {
			detail = strings.TrimSpace(remote.Detail)
		}
		retryable = remote.StatusCode >= 500
	}
	return plannererrors.Wrap(
		fmt.Errorf("%s: %w", op, err),
		plannererrors.CategoryRemoteFailure, "runner_"+op+"_failed",
		detail, retryable,
	)
}

func gateDetail(reasons []string) string {
	if len(reasons) == 0 {
		return "execution is blocked by an active guardrail gate"
	}
	return "execution is blocked by an active guardrail gate: " + strings.Join(reasons, "; ")
}
