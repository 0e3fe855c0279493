package stream

import (
	"time"

	schemasession "github.com/Mvgnu/BioLabs-sub002/core/schema/v1/session"
)

// Event envelope types pushed by the stage-execution service.
const (
	TypeSessionCreated   = "session_created"
	TypeStageStarted     = "stage_started"
	TypeStageCompleted   = "stage_completed"
	TypeStageFailed      = "stage_failed"
	TypeGuardrailHold    = "guardrail_hold"
	TypeGuardrailCleared = "guardrail_cleared"
	TypeBranchSwitched   = "branch_switched"
	TypeSessionFinalized = "session_finalized"
	TypeSessionCancelled = "session_cancelled"
)

// ResyncTypes lists the envelope types that require a snapshot
// re-synchronization from the stage-execution service after folding.
var ResyncTypes = map[string]struct{}{
	TypeSessionCreated:   {},
	TypeStageStarted:     {},
	TypeStageCompleted:   {},
	TypeStageFailed:      {},
	TypeSessionFinalized: {},
}

// EventEnvelope is one pushed fact. Envelopes are immutable; the consumer
// folds them into the snapshot and never edits a received envelope.
type EventEnvelope struct {
	Type                string                                     `json:"type"`
	ID                  string                                     `json:"id,omitempty"`
	SessionID           string                                     `json:"session_id"`
	Status              string                                     `json:"status,omitempty"`
	CurrentStep         string                                     `json:"current_step,omitempty"`
	Stage               string                                     `json:"stage,omitempty"`
	Payload             map[string]any                             `json:"payload,omitempty"`
	GuardrailGate       *schemasession.GuardrailGate               `json:"guardrail_gate,omitempty"`
	GuardrailTransition *schemasession.GuardrailTransition         `json:"guardrail_transition,omitempty"`
	GuardrailState      map[string]schemasession.GuardrailSnapshot `json:"guardrail_state,omitempty"`
	Branch              *BranchRef                                 `json:"branch,omitempty"`
	Checkpoint          *Checkpoint                                `json:"checkpoint,omitempty"`
	TimelineCursor      string                                     `json:"timeline_cursor,omitempty"`
	Timestamp           time.Time                                  `json:"timestamp,omitempty"`
	Metrics             map[string]any                             `json:"metrics,omitempty"`
	Artifacts           []schemasession.Artifact                   `json:"artifacts,omitempty"`
	RecoveryBundle      *RecoveryBundle                            `json:"recovery_bundle,omitempty"`
	DrillSummaries      []DrillSummary                             `json:"drill_summaries,omitempty"`
	Error               string                                     `json:"error,omitempty"`
}

// Cursor resolves the envelope's timeline position, falling back to an
// id/timestamp composite when the server sent no cursor. The fallback is a
// correlation key, not a causal ordering guarantee.
func (e EventEnvelope) Cursor() string {
	if e.TimelineCursor != "" {
		return e.TimelineCursor
	}
	switch {
	case e.ID != "" && !e.Timestamp.IsZero():
		return e.Timestamp.UTC().Format(time.RFC3339Nano) + "/" + e.ID
	case e.ID != "":
		return e.ID
	case !e.Timestamp.IsZero():
		return e.Timestamp.UTC().Format(time.RFC3339Nano)
	default:
		return ""
	}
}

type BranchRef struct {
	Active   string                          `json:"active,omitempty"`
	Branches map[string]schemasession.Branch `json:"branches,omitempty"`
	Order    []string                        `json:"order,omitempty"`
}

type Checkpoint struct {
	Key     string         `json:"key,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

// RecoveryBundle describes how to resume a session after an interruption.
// The most recently received bundle is authoritative; older bundles are
// discarded, not merged.
type RecoveryBundle struct {
	Stage            string         `json:"stage,omitempty"`
	RecommendedStage string         `json:"recommended_stage,omitempty"`
	ResumeToken      ResumeToken    `json:"resume_token"`
	GuardrailReasons []string       `json:"guardrail_reasons,omitempty"`
	ResumeReady      bool           `json:"resume_ready"`
	DrillSummaries   []DrillSummary `json:"drill_summaries,omitempty"`
}

type ResumeToken struct {
	SessionID      string `json:"session_id"`
	Checkpoint     string `json:"checkpoint,omitempty"`
	BranchID       string `json:"branch_id,omitempty"`
	TimelineCursor string `json:"timeline_cursor,omitempty"`
}

// Drill summary statuses.
const (
	DrillOpen     = "open"
	DrillResolved = "resolved"
)

type DrillSummary struct {
	ID     string `json:"id,omitempty"`
	Kind   string `json:"kind,omitempty"`
	Status string `json:"status,omitempty"`
	Detail string `json:"detail,omitempty"`
}
