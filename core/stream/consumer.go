package stream

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	plannererrors "github.com/Mvgnu/BioLabs-sub002/core/errors"
	schemasession "github.com/Mvgnu/BioLabs-sub002/core/schema/v1/session"
	schemastream "github.com/Mvgnu/BioLabs-sub002/core/schema/v1/stream"
	"github.com/Mvgnu/BioLabs-sub002/core/schema/validate"
)

const DefaultRingCapacity = 50

// Source opens the server-push event channel for a session. Implementations
// return a stream of newline-delimited JSON envelopes. Injected so tests and
// alternative transports can substitute their own channel.
type Source interface {
	Open(ctx context.Context, sessionID string) (io.ReadCloser, error)
}

// Folder applies envelopes and replacement snapshots atomically; satisfied by
// the session store.
type Folder interface {
	Fold(envelope schemastream.EventEnvelope) schemasession.Session
	Replace(next schemasession.Session)
}

// Refresher fetches a fresh authoritative snapshot from the stage-execution
// service to reconcile fields a pushed event did not carry.
type Refresher interface {
	FetchSession(ctx context.Context, sessionID string) (schemasession.Session, error)
}

// Observer sees every accepted envelope after it has been folded.
type Observer func(envelope schemastream.EventEnvelope)

type Options struct {
	Source       Source
	Folder       Folder
	Refresher    Refresher
	Observers    []Observer
	Logger       *slog.Logger
	RingCapacity int
}

// Consumer owns the push-channel subscription for one session: it validates
// envelopes at the ingestion boundary, keeps a bounded buffer of recent
// events, folds accepted envelopes into the store, and triggers snapshot
// re-synchronization for lifecycle events. A transport error closes the
// subscription; there is no automatic reconnect. The caller observes the
// closure via the handle and resubscribes deliberately.
type Consumer struct {
	source    Source
	folder    Folder
	refresher Refresher
	observers []Observer
	logger    *slog.Logger

	mu          sync.Mutex
	ring        *ring
	needsResync bool
}

func New(opts Options) (*Consumer, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("event source is required")
	}
	if opts.Folder == nil {
		return nil, fmt.Errorf("session folder is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	capacity := opts.RingCapacity
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	return &Consumer{
		source:    opts.Source,
		folder:    opts.Folder,
		refresher: opts.Refresher,
		observers: append([]Observer(nil), opts.Observers...),
		logger:    logger,
		ring:      newRing(capacity),
	}, nil
}

// Handle represents one active subscription. Done is closed when the stream
// ends for any reason; Err reports the transport error, if any, afterwards.
type Handle struct {
	ID string

	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

func (h *Handle) Done() <-chan struct{} {
	return h.done
}

func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Close cancels the subscription and waits for the consume loop to stop.
func (h *Handle) Close() {
	h.cancel()
	<-h.done
}

func (h *Handle) setErr(err error) {
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
}

// Subscribe opens the event channel for sessionID and starts consuming.
func (c *Consumer) Subscribe(ctx context.Context, sessionID string) (*Handle, error) {
	trimmedID := strings.TrimSpace(sessionID)
	if trimmedID == "" {
		return nil, plannererrors.Wrap(
			fmt.Errorf("session id is required"),
			plannererrors.CategoryInvalidInput, "stream_session_missing",
			"a session id must be bound before subscribing", false,
		)
	}
	reader, err := c.source.Open(ctx, trimmedID)
	if err != nil {
		return nil, plannererrors.Wrap(
			fmt.Errorf("open event channel: %w", err),
			plannererrors.CategoryTransport, "stream_open_failed",
			"could not open the session event channel", true,
		)
	}
	streamCtx, cancel := context.WithCancel(ctx)
	handle := &Handle{
		ID:     uuid.NewString(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		// Closing the reader unblocks the scanner when the context ends.
		<-streamCtx.Done()
		_ = reader.Close()
	}()
	go c.consume(streamCtx, trimmedID, reader, handle)
	return handle, nil
}

func (c *Consumer) consume(ctx context.Context, sessionID string, reader io.ReadCloser, handle *Handle) {
	defer close(handle.done)
	defer handle.cancel()

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		envelope, err := validate.DecodeEnvelope([]byte(raw))
		if err != nil {
			c.logger.Warn("dropping malformed envelope", "session_id", sessionID, "error", err)
			continue
		}
		if envelope.SessionID != sessionID {
			c.logger.Warn("dropping envelope for foreign session",
				"session_id", sessionID, "envelope_session_id", envelope.SessionID)
			continue
		}
		c.accept(ctx, sessionID, envelope)
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		c.logger.Warn("event channel closed on transport error", "session_id", sessionID, "error", err)
		handle.setErr(plannererrors.Wrap(
			fmt.Errorf("read event channel: %w", err),
			plannererrors.CategoryTransport, "stream_read_failed",
			"the session event channel closed unexpectedly", true,
		))
	}
}

func (c *Consumer) accept(ctx context.Context, sessionID string, envelope schemastream.EventEnvelope) {
	c.mu.Lock()
	c.ring.append(envelope)
	c.mu.Unlock()

	c.folder.Fold(envelope)
	for _, observe := range c.observers {
		observe(envelope)
	}

	if _, ok := schemastream.ResyncTypes[envelope.Type]; !ok {
		return
	}
	c.setResync(true)
	if c.refresher == nil {
		return
	}
	fetched, err := c.refresher.FetchSession(ctx, sessionID)
	if err != nil {
		// The folded snapshot stays authoritative until a later refresh lands.
		c.logger.Warn("snapshot refresh failed", "session_id", sessionID, "event_type", envelope.Type, "error", err)
		return
	}
	c.folder.Replace(fetched)
	c.setResync(false)
}

// Recent returns the buffered envelopes, oldest first.
func (c *Consumer) Recent() []schemastream.EventEnvelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ring.snapshot()
}

// NeedsResync reports whether a lifecycle event has been folded without a
// successful snapshot refresh since.
func (c *Consumer) NeedsResync() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.needsResync
}

func (c *Consumer) setResync(value bool) {
	c.mu.Lock()
	c.needsResync = value
	c.mu.Unlock()
}
