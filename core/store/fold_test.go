package store

import (
	"reflect"
	"testing"
	"time"

	schemasession "github.com/Mvgnu/BioLabs-sub002/core/schema/v1/session"
	schemastream "github.com/Mvgnu/BioLabs-sub002/core/schema/v1/stream"
)

func fixedTime(minute int) time.Time {
	return time.Date(2026, time.March, 14, 9, minute, 0, 0, time.UTC)
}

func sampleEvents() []schemastream.EventEnvelope {
	return []schemastream.EventEnvelope{
		{
			Type:           schemastream.TypeSessionCreated,
			ID:             "evt-1",
			SessionID:      "planner-1",
			Status:         schemasession.StatusActive,
			CurrentStep:    schemasession.StagePrimers,
			TimelineCursor: "cursor-1",
			Timestamp:      fixedTime(1),
		},
		{
			Type:           schemastream.TypeStageStarted,
			ID:             "evt-2",
			SessionID:      "planner-1",
			Stage:          schemasession.StagePrimers,
			TimelineCursor: "cursor-2",
			Timestamp:      fixedTime(2),
		},
		{
			Type:           schemastream.TypeStageCompleted,
			ID:             "evt-3",
			SessionID:      "planner-1",
			Stage:          schemasession.StagePrimers,
			CurrentStep:    schemasession.StageRestriction,
			TimelineCursor: "cursor-3",
			Timestamp:      fixedTime(3),
			Checkpoint:     &schemastream.Checkpoint{Key: "primers"},
		},
		{
			Type:           schemastream.TypeStageStarted,
			ID:             "evt-4",
			SessionID:      "planner-1",
			Stage:          schemasession.StageRestriction,
			TimelineCursor: "cursor-4",
			Timestamp:      fixedTime(4),
		},
		{
			Type:           schemastream.TypeStageFailed,
			ID:             "evt-5",
			SessionID:      "planner-1",
			Stage:          schemasession.StageRestriction,
			TimelineCursor: "cursor-5",
			Timestamp:      fixedTime(5),
			Error:          "enzyme set unresolved",
		},
	}
}

func TestFoldStageLifecycle(t *testing.T) {
	var snapshot schemasession.Session
	for _, event := range sampleEvents() {
		snapshot = Fold(snapshot, event)
	}

	if snapshot.ID != "planner-1" {
		t.Fatalf("expected session id planner-1, got %q", snapshot.ID)
	}
	if snapshot.CurrentStep != schemasession.StageRestriction {
		t.Fatalf("expected current step restriction, got %q", snapshot.CurrentStep)
	}
	if got := snapshot.StageTimings[schemasession.StagePrimers].Status; got != schemasession.TimingComplete {
		t.Fatalf("expected primers complete, got %q", got)
	}
	restriction := snapshot.StageTimings[schemasession.StageRestriction]
	if restriction.Status != schemasession.TimingErrored {
		t.Fatalf("expected restriction errored, got %q", restriction.Status)
	}
	if restriction.Error != "enzyme set unresolved" {
		t.Fatalf("unexpected restriction error: %q", restriction.Error)
	}
	if got := snapshot.StageTimings[schemasession.StageAssembly].Status; got != schemasession.TimingPending {
		t.Fatalf("expected assembly pending, got %q", got)
	}
	if len(snapshot.StageHistory) != 2 {
		t.Fatalf("expected 2 history records, got %d", len(snapshot.StageHistory))
	}
	if snapshot.StageHistory[0].CheckpointKey != "primers" {
		t.Fatalf("expected checkpoint key on completion record, got %#v", snapshot.StageHistory[0])
	}
	if snapshot.TimelineCursor != "cursor-5" {
		t.Fatalf("expected cursor-5, got %q", snapshot.TimelineCursor)
	}
}

func TestFoldRetryAfterError(t *testing.T) {
	var snapshot schemasession.Session
	for _, event := range sampleEvents() {
		snapshot = Fold(snapshot, event)
	}
	snapshot = Fold(snapshot, schemastream.EventEnvelope{
		Type:      schemastream.TypeStageStarted,
		ID:        "evt-6",
		SessionID: "planner-1",
		Stage:     schemasession.StageRestriction,
		Timestamp: fixedTime(6),
	})

	restriction := snapshot.StageTimings[schemasession.StageRestriction]
	if restriction.Status != schemasession.TimingRunning {
		t.Fatalf("expected restriction running after retry, got %q", restriction.Status)
	}
	if restriction.Retries != 1 {
		t.Fatalf("expected one retry, got %d", restriction.Retries)
	}
	if restriction.Error != "" {
		t.Fatalf("expected error cleared on retry, got %q", restriction.Error)
	}
}

func TestFoldGuardrailHoldBlocksRunningStages(t *testing.T) {
	var snapshot schemasession.Session
	snapshot = Fold(snapshot, sampleEvents()[0])
	snapshot = Fold(snapshot, sampleEvents()[1])
	snapshot = Fold(snapshot, schemastream.EventEnvelope{
		Type:      schemastream.TypeGuardrailHold,
		ID:        "evt-hold",
		SessionID: "planner-1",
		Timestamp: fixedTime(7),
		GuardrailGate: &schemasession.GuardrailGate{
			Active:  true,
			Reasons: []string{"custody_status:halted"},
		},
	})

	if got := snapshot.StageTimings[schemasession.StagePrimers].Status; got != schemasession.TimingBlocked {
		t.Fatalf("expected running primers blocked by hold, got %q", got)
	}
	if !snapshot.GuardrailGate.Active {
		t.Fatalf("expected gate active after hold")
	}
	if !reflect.DeepEqual(snapshot.GuardrailGate.Reasons, []string{"custody_status:halted"}) {
		t.Fatalf("unexpected gate reasons: %#v", snapshot.GuardrailGate.Reasons)
	}

	snapshot = Fold(snapshot, schemastream.EventEnvelope{
		Type:      schemastream.TypeGuardrailCleared,
		ID:        "evt-clear",
		SessionID: "planner-1",
		Timestamp: fixedTime(8),
	})
	if snapshot.GuardrailGate.Active {
		t.Fatalf("expected gate cleared")
	}
	if got := snapshot.StageTimings[schemasession.StagePrimers].Status; got != schemasession.TimingBlocked {
		t.Fatalf("blocked stage stays blocked until resume, got %q", got)
	}
}

func TestFoldDeterministicAcrossChunking(t *testing.T) {
	events := sampleEvents()

	var all schemasession.Session
	for _, event := range events {
		all = Fold(all, event)
	}

	var chunked schemasession.Session
	for _, chunk := range [][]schemastream.EventEnvelope{events[:2], events[2:4], events[4:]} {
		for _, event := range chunk {
			chunked = Fold(chunked, event)
		}
	}

	if !reflect.DeepEqual(all.StageTimings, chunked.StageTimings) {
		t.Fatalf("stage timings diverged across chunkings:\n%#v\n%#v", all.StageTimings, chunked.StageTimings)
	}
	allDigest, err := Fingerprint(all)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	chunkedDigest, err := Fingerprint(chunked)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	if allDigest != chunkedDigest {
		t.Fatalf("fingerprint mismatch: %s vs %s", allDigest, chunkedDigest)
	}
}

func TestFoldHistoryAppendOnlyAndIdempotent(t *testing.T) {
	events := sampleEvents()
	var snapshot schemasession.Session
	for _, event := range events {
		snapshot = Fold(snapshot, event)
	}
	before := append([]schemasession.StageRecord(nil), snapshot.StageHistory...)

	// Replaying a completion at an already-recorded cursor must not duplicate.
	snapshot = Fold(snapshot, events[2])
	if !reflect.DeepEqual(before, snapshot.StageHistory) {
		t.Fatalf("replay mutated history:\n%#v\n%#v", before, snapshot.StageHistory)
	}
}

func TestFoldDoesNotMutateInput(t *testing.T) {
	base := schemasession.Session{
		ID: "planner-1",
		StageTimings: map[string]schemasession.StageTiming{
			schemasession.StagePrimers: {Status: schemasession.TimingPending},
		},
	}
	_ = Fold(base, schemastream.EventEnvelope{
		Type:      schemastream.TypeStageStarted,
		SessionID: "planner-1",
		Stage:     schemasession.StagePrimers,
		Timestamp: fixedTime(1),
	})
	if base.StageTimings[schemasession.StagePrimers].Status != schemasession.TimingPending {
		t.Fatalf("fold mutated its input snapshot")
	}
}

func TestFoldBranchResolution(t *testing.T) {
	var snapshot schemasession.Session
	snapshot = Fold(snapshot, schemastream.EventEnvelope{
		Type:      schemastream.TypeBranchSwitched,
		SessionID: "planner-1",
		Branch: &schemastream.BranchRef{
			Active: "branch-b",
			Branches: map[string]schemasession.Branch{
				"branch-a": {ID: "branch-a", Label: "Main"},
			},
			Order: []string{"branch-a"},
		},
	})

	if snapshot.ActiveBranchID != "branch-b" {
		t.Fatalf("expected active branch branch-b, got %q", snapshot.ActiveBranchID)
	}
	if _, ok := snapshot.BranchState.Branches["branch-b"]; !ok {
		t.Fatalf("active branch must resolve to a known branch: %#v", snapshot.BranchState)
	}
	if !reflect.DeepEqual(snapshot.BranchState.Order, []string{"branch-a", "branch-b"}) {
		t.Fatalf("unexpected branch order: %#v", snapshot.BranchState.Order)
	}
}

func TestFoldArtifactsAppendWithoutDuplicates(t *testing.T) {
	var snapshot schemasession.Session
	artifact := schemasession.Artifact{ID: "qc-1", Kind: "chromatogram"}
	snapshot = Fold(snapshot, schemastream.EventEnvelope{
		Type:      schemastream.TypeStageCompleted,
		SessionID: "planner-1",
		Stage:     schemasession.StageQC,
		Artifacts: []schemasession.Artifact{artifact},
		Timestamp: fixedTime(1),
	})
	snapshot = Fold(snapshot, schemastream.EventEnvelope{
		Type:      "qc_artifact_indexed",
		SessionID: "planner-1",
		Artifacts: []schemasession.Artifact{artifact},
	})
	if len(snapshot.QCArtifacts) != 1 {
		t.Fatalf("expected 1 artifact, got %d", len(snapshot.QCArtifacts))
	}
}
