package store

import (
	"sync"

	"github.com/Mvgnu/BioLabs-sub002/core/jcs"
	schemasession "github.com/Mvgnu/BioLabs-sub002/core/schema/v1/session"
	schemastream "github.com/Mvgnu/BioLabs-sub002/core/schema/v1/stream"
)

// Store holds the single authoritative session snapshot. Replace is the only
// way a stage response becomes authoritative; Fold is the only way a pushed
// event updates state. Both apply atomically and the last writer wins.
type Store struct {
	mu       sync.RWMutex
	current  *schemasession.Session
	onChange []func(schemasession.Session)
}

func New() *Store {
	return &Store{}
}

// OnChange registers a callback invoked after every successful Replace or
// Fold with a copy of the new snapshot. Callbacks re-derive downstream state
// (gate, timeline); they must not call back into the store while running.
func (s *Store) OnChange(fn func(schemasession.Session)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.onChange = append(s.onChange, fn)
	s.mu.Unlock()
}

// Get returns a copy of the current snapshot, or false when no session has
// been loaded yet.
func (s *Store) Get() (schemasession.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return schemasession.Session{}, false
	}
	return CloneSession(*s.current), true
}

// Replace installs next as the authoritative snapshot.
func (s *Store) Replace(next schemasession.Session) {
	s.mu.Lock()
	cloned := CloneSession(next)
	s.current = &cloned
	callbacks := append(([]func(schemasession.Session))(nil), s.onChange...)
	s.mu.Unlock()
	for _, fn := range callbacks {
		fn(CloneSession(cloned))
	}
}

// Fold folds the envelope into the current snapshot (zero-valued when no
// session is loaded) and returns a copy of the result.
func (s *Store) Fold(envelope schemastream.EventEnvelope) schemasession.Session {
	s.mu.Lock()
	var current schemasession.Session
	if s.current != nil {
		current = *s.current
	}
	next := Fold(current, envelope)
	s.current = &next
	result := CloneSession(next)
	callbacks := append(([]func(schemasession.Session))(nil), s.onChange...)
	s.mu.Unlock()
	for _, fn := range callbacks {
		fn(CloneSession(result))
	}
	return result
}

// Reset discards the snapshot and callbacks; used on unsubscribe so nothing
// survives across sessions.
func (s *Store) Reset() {
	s.mu.Lock()
	s.current = nil
	s.onChange = nil
	s.mu.Unlock()
}

// Fingerprint returns the canonical (RFC 8785) sha256 digest of the snapshot's
// stage timings map. Two snapshots produced by folding the same events in the
// same order have the same fingerprint however the folds were chunked.
func Fingerprint(snapshot schemasession.Session) (string, error) {
	timings := snapshot.StageTimings
	if timings == nil {
		timings = map[string]schemasession.StageTiming{}
	}
	return jcs.DigestValue(timings)
}
