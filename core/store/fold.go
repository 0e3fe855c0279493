package store

import (
	schemasession "github.com/Mvgnu/BioLabs-sub002/core/schema/v1/session"
	schemastream "github.com/Mvgnu/BioLabs-sub002/core/schema/v1/stream"
)

// Fold is the pure transition function applied to every pushed envelope: it
// returns a new snapshot and never mutates its input. Replaying the same
// envelope sequence over the same snapshot always yields the same result,
// regardless of how the sequence is chunked across calls.
func Fold(current schemasession.Session, envelope schemastream.EventEnvelope) schemasession.Session {
	next := CloneSession(current)

	if next.ID == "" {
		next.ID = envelope.SessionID
	}
	if envelope.Status != "" {
		next.Status = envelope.Status
	}
	if envelope.CurrentStep != "" {
		next.CurrentStep = envelope.CurrentStep
	}
	if envelope.TimelineCursor != "" {
		next.TimelineCursor = envelope.TimelineCursor
	}
	if envelope.GuardrailGate != nil {
		next.GuardrailGate = schemasession.GuardrailGate{
			Active:  envelope.GuardrailGate.Active,
			Reasons: append([]string(nil), envelope.GuardrailGate.Reasons...),
		}
	}
	foldGuardrailState(&next, envelope.GuardrailState)
	foldBranch(&next, envelope.Branch)
	if !envelope.Timestamp.IsZero() {
		next.UpdatedAt = envelope.Timestamp.UTC()
	}

	switch envelope.Type {
	case schemastream.TypeSessionCreated:
		if next.Status == "" {
			next.Status = schemasession.StatusActive
		}
		if next.CreatedAt.IsZero() {
			next.CreatedAt = envelope.Timestamp.UTC()
		}
		ensureTimings(&next)
	case schemastream.TypeStageStarted:
		if envelope.Stage != "" {
			timing := next.StageTimings[envelope.Stage]
			if timing.Status == schemasession.TimingErrored {
				timing.Retries++
			}
			timing.Status = schemasession.TimingRunning
			timing.Error = ""
			if !envelope.Timestamp.IsZero() {
				timing.StartedAt = envelope.Timestamp.UTC()
			}
			setTiming(&next, envelope.Stage, timing)
		}
	case schemastream.TypeStageCompleted:
		if envelope.Stage != "" {
			timing := next.StageTimings[envelope.Stage]
			timing.Status = schemasession.TimingComplete
			timing.Error = ""
			if !envelope.Timestamp.IsZero() {
				timing.FinishedAt = envelope.Timestamp.UTC()
			}
			setTiming(&next, envelope.Stage, timing)
			appendHistory(&next, envelope, schemasession.TimingComplete)
		}
	case schemastream.TypeStageFailed:
		if envelope.Stage != "" {
			timing := next.StageTimings[envelope.Stage]
			timing.Status = schemasession.TimingErrored
			timing.Error = envelope.Error
			if !envelope.Timestamp.IsZero() {
				timing.FinishedAt = envelope.Timestamp.UTC()
			}
			setTiming(&next, envelope.Stage, timing)
			appendHistory(&next, envelope, schemasession.TimingErrored)
		}
	case schemastream.TypeGuardrailHold:
		for stage, timing := range next.StageTimings {
			if timing.Status == schemasession.TimingRunning {
				timing.Status = schemasession.TimingBlocked
				setTiming(&next, stage, timing)
			}
		}
	case schemastream.TypeGuardrailCleared:
		if envelope.GuardrailGate == nil {
			next.GuardrailGate = schemasession.GuardrailGate{Active: false}
		}
	case schemastream.TypeSessionFinalized:
		next.Status = schemasession.StatusFinalized
		timing := next.StageTimings[schemasession.StageFinalize]
		timing.Status = schemasession.TimingComplete
		if !envelope.Timestamp.IsZero() {
			timing.FinishedAt = envelope.Timestamp.UTC()
		}
		setTiming(&next, schemasession.StageFinalize, timing)
	case schemastream.TypeSessionCancelled:
		next.Status = schemasession.StatusCancelled
	}

	appendArtifacts(&next, envelope.Artifacts)
	return next
}

func foldGuardrailState(next *schemasession.Session, incoming map[string]schemasession.GuardrailSnapshot) {
	if len(incoming) == 0 {
		return
	}
	if next.GuardrailState == nil {
		next.GuardrailState = map[string]schemasession.GuardrailSnapshot{}
	}
	for key, snapshot := range incoming {
		next.GuardrailState[key] = cloneGuardrailSnapshot(snapshot)
	}
}

func foldBranch(next *schemasession.Session, ref *schemastream.BranchRef) {
	if ref == nil {
		return
	}
	if next.BranchState.Branches == nil {
		next.BranchState.Branches = map[string]schemasession.Branch{}
	}
	for id, branch := range ref.Branches {
		next.BranchState.Branches[id] = branch
	}
	for _, id := range ref.Order {
		if !containsString(next.BranchState.Order, id) {
			next.BranchState.Order = append(next.BranchState.Order, id)
		}
	}
	if ref.Active != "" {
		// active_branch_id must always resolve to a known branch.
		if _, ok := next.BranchState.Branches[ref.Active]; !ok {
			next.BranchState.Branches[ref.Active] = schemasession.Branch{ID: ref.Active}
		}
		if !containsString(next.BranchState.Order, ref.Active) {
			next.BranchState.Order = append(next.BranchState.Order, ref.Active)
		}
		next.ActiveBranchID = ref.Active
	}
}

func ensureTimings(next *schemasession.Session) {
	if next.StageTimings == nil {
		next.StageTimings = map[string]schemasession.StageTiming{}
	}
	for _, stage := range schemasession.StageOrder {
		if _, ok := next.StageTimings[stage]; !ok {
			next.StageTimings[stage] = schemasession.StageTiming{Status: schemasession.TimingPending}
		}
	}
}

func setTiming(next *schemasession.Session, stage string, timing schemasession.StageTiming) {
	if next.StageTimings == nil {
		next.StageTimings = map[string]schemasession.StageTiming{}
	}
	next.StageTimings[stage] = timing
}

// appendHistory appends a stage record derived from the envelope. History is
// append-only; an existing record at the same branch and timeline position is
// left untouched so replaying an envelope cannot duplicate entries.
func appendHistory(next *schemasession.Session, envelope schemastream.EventEnvelope, status string) {
	cursor := envelope.Cursor()
	branchID := next.ActiveBranchID
	if envelope.Branch != nil && envelope.Branch.Active != "" {
		branchID = envelope.Branch.Active
	}
	for _, record := range next.StageHistory {
		if record.TimelinePosition == cursor && record.BranchID == branchID {
			return
		}
	}
	record := schemasession.StageRecord{
		ID:                  envelope.ID,
		Stage:               envelope.Stage,
		Status:              status,
		Metrics:             envelope.Metrics,
		GuardrailTransition: envelope.GuardrailTransition,
		TimelinePosition:    cursor,
		BranchID:            branchID,
		Error:               envelope.Error,
	}
	if !envelope.Timestamp.IsZero() {
		record.CreatedAt = envelope.Timestamp.UTC()
		record.UpdatedAt = envelope.Timestamp.UTC()
	}
	if envelope.Checkpoint != nil {
		record.CheckpointKey = envelope.Checkpoint.Key
		record.CheckpointPayload = envelope.Checkpoint.Payload
	}
	if envelope.GuardrailState != nil {
		if snapshot, ok := envelope.GuardrailState[envelope.Stage]; ok {
			cloned := cloneGuardrailSnapshot(snapshot)
			record.GuardrailSnapshot = &cloned
		}
	}
	record.Attempt = 1 + next.StageTimings[envelope.Stage].Retries
	record.RetryCount = next.StageTimings[envelope.Stage].Retries
	next.StageHistory = append(next.StageHistory, record)
}

func appendArtifacts(next *schemasession.Session, artifacts []schemasession.Artifact) {
	for _, artifact := range artifacts {
		if artifact.ID != "" && hasArtifact(next.QCArtifacts, artifact.ID) {
			continue
		}
		next.QCArtifacts = append(next.QCArtifacts, artifact)
	}
}

func hasArtifact(artifacts []schemasession.Artifact, id string) bool {
	for _, artifact := range artifacts {
		if artifact.ID == id {
			return true
		}
	}
	return false
}

func containsString(values []string, want string) bool {
	for _, value := range values {
		if value == want {
			return true
		}
	}
	return false
}

// CloneSession returns a deep copy of the snapshot. Nested payload values are
// shared because folds never mutate them in place.
func CloneSession(input schemasession.Session) schemasession.Session {
	output := input
	if input.StageTimings != nil {
		output.StageTimings = make(map[string]schemasession.StageTiming, len(input.StageTimings))
		for stage, timing := range input.StageTimings {
			output.StageTimings[stage] = timing
		}
	}
	if input.GuardrailState != nil {
		output.GuardrailState = make(map[string]schemasession.GuardrailSnapshot, len(input.GuardrailState))
		for key, snapshot := range input.GuardrailState {
			output.GuardrailState[key] = cloneGuardrailSnapshot(snapshot)
		}
	}
	output.GuardrailGate.Reasons = append([]string(nil), input.GuardrailGate.Reasons...)
	if input.BranchState.Branches != nil {
		output.BranchState.Branches = make(map[string]schemasession.Branch, len(input.BranchState.Branches))
		for id, branch := range input.BranchState.Branches {
			output.BranchState.Branches[id] = branch
		}
	}
	output.BranchState.Order = append([]string(nil), input.BranchState.Order...)
	output.StageHistory = append([]schemasession.StageRecord(nil), input.StageHistory...)
	output.QCArtifacts = append([]schemasession.Artifact(nil), input.QCArtifacts...)
	return output
}

func cloneGuardrailSnapshot(input schemasession.GuardrailSnapshot) schemasession.GuardrailSnapshot {
	output := input
	output.Warnings = append([]string(nil), input.Warnings...)
	output.Tags = append([]string(nil), input.Tags...)
	if input.Extra != nil {
		output.Extra = make(map[string]any, len(input.Extra))
		for key, value := range input.Extra {
			output.Extra[key] = value
		}
	}
	return output
}
