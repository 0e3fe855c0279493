package session

import "time"

// Pipeline stages in execution order.
const (
	StagePrimers     = "primers"
	StageRestriction = "restriction"
	StageAssembly    = "assembly"
	StageQC          = "qc"
	StageFinalize    = "finalize"
)

// StageOrder lists the pipeline stages in execution order.
var StageOrder = []string{StagePrimers, StageRestriction, StageAssembly, StageQC, StageFinalize}

// Stage timing statuses.
const (
	TimingPending  = "pending"
	TimingRunning  = "running"
	TimingComplete = "complete"
	TimingErrored  = "errored"
	TimingBlocked  = "blocked"
)

// Advisory guardrail states carried per stage. Only the explicit gate flag
// vetoes execution; these drive warning presentation.
const (
	GuardrailOK      = "ok"
	GuardrailReview  = "review"
	GuardrailBlocked = "blocked"
	GuardrailUnknown = "unknown"
)

// Session statuses.
const (
	StatusActive    = "active"
	StatusFinalized = "finalized"
	StatusCancelled = "cancelled"
)

type Session struct {
	ID               string                       `json:"id"`
	Status           string                       `json:"status,omitempty"`
	AssemblyStrategy string                       `json:"assembly_strategy,omitempty"`
	CurrentStep      string                       `json:"current_step,omitempty"`
	StageTimings     map[string]StageTiming       `json:"stage_timings,omitempty"`
	GuardrailState   map[string]GuardrailSnapshot `json:"guardrail_state,omitempty"`
	GuardrailGate    GuardrailGate                `json:"guardrail_gate"`
	BranchState      BranchState                  `json:"branch_state"`
	ActiveBranchID   string                       `json:"active_branch_id,omitempty"`
	TimelineCursor   string                       `json:"timeline_cursor,omitempty"`
	StageHistory     []StageRecord                `json:"stage_history,omitempty"`
	QCArtifacts      []Artifact                   `json:"qc_artifacts,omitempty"`
	CreatedAt        time.Time                    `json:"created_at,omitempty"`
	UpdatedAt        time.Time                    `json:"updated_at,omitempty"`
}

type StageTiming struct {
	Status     string    `json:"status"`
	Retries    int       `json:"retries,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// GuardrailSnapshot is the per-stage guardrail record. Known fields are
// modeled explicitly; Extra keeps forward-compatible fields delivered by newer
// backends without dropping them at the ingestion boundary.
type GuardrailSnapshot struct {
	State    string         `json:"state,omitempty"`
	Warnings []string       `json:"warnings,omitempty"`
	Tags     []string       `json:"tags,omitempty"`
	Extra    map[string]any `json:"extra,omitempty"`
}

// GuardrailGate is the explicit execution veto. Active true blocks all
// mutating operations regardless of individual stage states.
type GuardrailGate struct {
	Active  bool     `json:"active"`
	Reasons []string `json:"reasons,omitempty"`
}

type GuardrailTransition struct {
	Previous string `json:"previous,omitempty"`
	Current  string `json:"current,omitempty"`
}

type BranchState struct {
	Branches map[string]Branch `json:"branches,omitempty"`
	Order    []string          `json:"order,omitempty"`
}

type Branch struct {
	ID    string `json:"id"`
	Label string `json:"label,omitempty"`
}

// StageRecord is one append-only history entry. Records are immutable once
// created; newer entries supersede older ones at higher timeline positions.
type StageRecord struct {
	ID                  string               `json:"id,omitempty"`
	Stage               string               `json:"stage"`
	Attempt             int                  `json:"attempt,omitempty"`
	RetryCount          int                  `json:"retry_count,omitempty"`
	Status              string               `json:"status"`
	GuardrailSnapshot   *GuardrailSnapshot   `json:"guardrail_snapshot,omitempty"`
	Metrics             map[string]any       `json:"metrics,omitempty"`
	ReviewState         string               `json:"review_state,omitempty"`
	CheckpointKey       string               `json:"checkpoint_key,omitempty"`
	CheckpointPayload   map[string]any       `json:"checkpoint_payload,omitempty"`
	GuardrailTransition *GuardrailTransition `json:"guardrail_transition,omitempty"`
	TimelinePosition    string               `json:"timeline_position"`
	BranchID            string               `json:"branch_id,omitempty"`
	CreatedAt           time.Time            `json:"created_at,omitempty"`
	UpdatedAt           time.Time            `json:"updated_at,omitempty"`
	Error               string               `json:"error,omitempty"`
}

type Artifact struct {
	ID        string         `json:"id,omitempty"`
	Kind      string         `json:"kind,omitempty"`
	Label     string         `json:"label,omitempty"`
	URI       string         `json:"uri,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at,omitempty"`
}
