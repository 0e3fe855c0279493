package planner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/Mvgnu/BioLabs-sub002/core/guardrail"
	"github.com/Mvgnu/BioLabs-sub002/core/recovery"
	"github.com/Mvgnu/BioLabs-sub002/core/runner"
	schemasession "github.com/Mvgnu/BioLabs-sub002/core/schema/v1/session"
	schemastream "github.com/Mvgnu/BioLabs-sub002/core/schema/v1/stream"
	"github.com/Mvgnu/BioLabs-sub002/core/store"
	"github.com/Mvgnu/BioLabs-sub002/core/stream"
	"github.com/Mvgnu/BioLabs-sub002/core/timeline"
)

// Client is the full stage-execution seam the planner wires: the four
// mutating operations plus the snapshot read used for re-synchronization.
type Client interface {
	runner.Client
	stream.Refresher
}

type Options struct {
	SessionID    string
	Client       Client
	Source       stream.Source
	Logger       *slog.Logger
	RingCapacity int
}

// Planner binds the session store, event consumer, stage runner, guardrail
// gate, timeline manager, and recovery coordinator for one session. It is
// created on subscribe and torn down on Close; nothing survives across
// sessions.
type Planner struct {
	sessionID string
	logger    *slog.Logger

	store    *store.Store
	runner   *runner.Runner
	recovery *recovery.Coordinator
	consumer *stream.Consumer

	mu     sync.Mutex
	handle *stream.Handle
}

func New(opts Options) (*Planner, error) {
	sessionID := strings.TrimSpace(opts.SessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}
	if opts.Client == nil {
		return nil, fmt.Errorf("stage client is required")
	}
	if opts.Source == nil {
		return nil, fmt.Errorf("event source is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	sessionStore := store.New()
	recoveryCoordinator := recovery.NewCoordinator()
	stageRunner, err := runner.New(runner.Options{
		SessionID: sessionID,
		Client:    opts.Client,
		Store:     sessionStore,
		Tokens:    recoveryCoordinator,
	})
	if err != nil {
		return nil, err
	}
	consumer, err := stream.New(stream.Options{
		Source:    opts.Source,
		Folder:    sessionStore,
		Refresher: opts.Client,
		Observers: []stream.Observer{func(envelope schemastream.EventEnvelope) {
			if recoveryCoordinator.Observe(envelope) {
				logger.Debug("recovery bundle replaced", "session_id", sessionID, "event_type", envelope.Type)
			}
		}},
		Logger:       logger,
		RingCapacity: opts.RingCapacity,
	})
	if err != nil {
		return nil, err
	}
	return &Planner{
		sessionID: sessionID,
		logger:    logger,
		store:     sessionStore,
		runner:    stageRunner,
		recovery:  recoveryCoordinator,
		consumer:  consumer,
	}, nil
}

// Subscribe opens the event channel and loads the initial snapshot. Only one
// subscription is active at a time.
func (p *Planner) Subscribe(ctx context.Context) (*stream.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.handle != nil {
		select {
		case <-p.handle.Done():
			// The previous subscription already ended; replace it.
		default:
			return nil, fmt.Errorf("session %s already subscribed", p.sessionID)
		}
	}
	handle, err := p.consumer.Subscribe(ctx, p.sessionID)
	if err != nil {
		return nil, err
	}
	p.handle = handle
	p.logger.Debug("planner subscribed", "session_id", p.sessionID, "subscription", handle.ID)
	return handle, nil
}

// Close tears the planner down: the subscription is cancelled and all local
// state is discarded.
func (p *Planner) Close() {
	p.mu.Lock()
	handle := p.handle
	p.handle = nil
	p.mu.Unlock()
	if handle != nil {
		handle.Close()
	}
	p.store.Reset()
	p.recovery.Reset()
	p.logger.Debug("planner closed", "session_id", p.sessionID)
}

func (p *Planner) SessionID() string {
	return p.sessionID
}

// Session returns a copy of the current snapshot.
func (p *Planner) Session() (schemasession.Session, bool) {
	return p.store.Get()
}

// Gate derives the current execution gate.
func (p *Planner) Gate() guardrail.Decision {
	snapshot, ok := p.store.Get()
	if !ok {
		return guardrail.Decision{}
	}
	return guardrail.Derive(snapshot)
}

// Advisories derives the current soft guardrail warnings.
func (p *Planner) Advisories() []guardrail.Advisory {
	snapshot, ok := p.store.Get()
	if !ok {
		return nil
	}
	return guardrail.Advisories(snapshot)
}

// Timeline merges the buffered events with the snapshot's stage history.
func (p *Planner) Timeline() []timeline.Entry {
	snapshot, _ := p.store.Get()
	return timeline.Merge(p.consumer.Recent(), snapshot.StageHistory, snapshot.ActiveBranchID)
}

// Scrubber builds a scrubber over the current merged timeline, positioned on
// the newest entry.
func (p *Planner) Scrubber() *timeline.Scrubber {
	return timeline.NewScrubber(p.Timeline())
}

func (p *Planner) Store() *store.Store {
	return p.store
}

func (p *Planner) Runner() *runner.Runner {
	return p.runner
}

func (p *Planner) Recovery() *recovery.Coordinator {
	return p.recovery
}

// Recent exposes the bounded buffer of received envelopes, oldest first.
func (p *Planner) Recent() []schemastream.EventEnvelope {
	return p.consumer.Recent()
}

// NeedsResync reports whether a lifecycle event is still awaiting a snapshot
// refresh.
func (p *Planner) NeedsResync() bool {
	return p.consumer.NeedsResync()
}

// Submit dispatches a stage through the runner.
func (p *Planner) Submit(ctx context.Context, stage string, payload map[string]any) (schemasession.Session, error) {
	return p.runner.Submit(ctx, stage, payload)
}

// Resume restarts the session using the freshest recovery token.
func (p *Planner) Resume(ctx context.Context, overrides map[string]any) (schemasession.Session, error) {
	return p.runner.Resume(ctx, overrides)
}

// Finalize closes out the session.
func (p *Planner) Finalize(ctx context.Context, guardrailState map[string]schemasession.GuardrailSnapshot) (schemasession.Session, error) {
	return p.runner.Finalize(ctx, guardrailState)
}

// Cancel terminates the session.
func (p *Planner) Cancel(ctx context.Context, reason string) (schemasession.Session, error) {
	return p.runner.Cancel(ctx, reason)
}
