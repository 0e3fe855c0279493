package recovery

import (
	"sync"

	schemastream "github.com/Mvgnu/BioLabs-sub002/core/schema/v1/stream"
)

// Coordinator tracks the recovery bundle attached to incoming events. The
// most recently received bundle is authoritative; an older bundle is replaced
// wholesale, never merged. Until a bundle arrives, recovery state is absent
// and resume runs best-effort without a token.
type Coordinator struct {
	mu     sync.Mutex
	bundle *schemastream.RecoveryBundle
}

func NewCoordinator() *Coordinator {
	return &Coordinator{}
}

// Observe inspects a folded envelope and replaces the stored bundle when one
// rides along. Returns true when the bundle changed.
func (c *Coordinator) Observe(envelope schemastream.EventEnvelope) bool {
	if envelope.RecoveryBundle == nil {
		return false
	}
	bundle := cloneBundle(*envelope.RecoveryBundle)
	c.mu.Lock()
	c.bundle = &bundle
	c.mu.Unlock()
	return true
}

// Latest returns a copy of the authoritative bundle, or false when none has
// been received.
func (c *Coordinator) Latest() (schemastream.RecoveryBundle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bundle == nil {
		return schemastream.RecoveryBundle{}, false
	}
	return cloneBundle(*c.bundle), true
}

// LatestResumeToken extracts the resume token from the authoritative bundle.
func (c *Coordinator) LatestResumeToken() (schemastream.ResumeToken, bool) {
	bundle, ok := c.Latest()
	if !ok {
		return schemastream.ResumeToken{}, false
	}
	return bundle.ResumeToken, true
}

// ResumeReady reports whether the service considers the session resumable.
// False either when no bundle exists or when open remediation drills block
// the resume.
func (c *Coordinator) ResumeReady() bool {
	bundle, ok := c.Latest()
	return ok && bundle.ResumeReady
}

// Drills exposes the remediation drills attached to the authoritative
// bundle, read-only.
func (c *Coordinator) Drills() []schemastream.DrillSummary {
	bundle, ok := c.Latest()
	if !ok {
		return nil
	}
	return bundle.DrillSummaries
}

// Reset discards recovery state; used on unsubscribe.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	c.bundle = nil
	c.mu.Unlock()
}

func cloneBundle(input schemastream.RecoveryBundle) schemastream.RecoveryBundle {
	output := input
	output.GuardrailReasons = append([]string(nil), input.GuardrailReasons...)
	output.DrillSummaries = append([]schemastream.DrillSummary(nil), input.DrillSummaries...)
	return output
}
