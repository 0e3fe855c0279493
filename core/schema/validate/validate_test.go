package validate

import (
	"testing"
	"time"

	schemasession "github.com/Mvgnu/BioLabs-sub002/core/schema/v1/session"
)

func TestDecodeEnvelopeFull(t *testing.T) {
	raw := []byte(`{
		"type": "stage_completed",
		"id": "evt-1",
		"session_id": "planner-1",
		"stage": "primers",
		"current_step": "restriction",
		"guardrail_gate": {"active": true, "reasons": ["custody_status:halted"]},
		"guardrail_state": {"primers": {"state": "ok"}},
		"checkpoint": {"key": "primers", "payload": {"target_tm": 62}},
		"timeline_cursor": "cursor-3",
		"timestamp": "2026-03-14T09:03:00Z"
	}`)

	envelope, err := DecodeEnvelope(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Type != "stage_completed" || envelope.SessionID != "planner-1" {
		t.Fatalf("unexpected envelope: %#v", envelope)
	}
	if envelope.GuardrailGate == nil || !envelope.GuardrailGate.Active {
		t.Fatalf("expected active gate: %#v", envelope.GuardrailGate)
	}
	if envelope.GuardrailState["primers"].State != schemasession.GuardrailOK {
		t.Fatalf("unexpected guardrail state: %#v", envelope.GuardrailState)
	}
	if envelope.Checkpoint == nil || envelope.Checkpoint.Key != "primers" {
		t.Fatalf("unexpected checkpoint: %#v", envelope.Checkpoint)
	}
	want := time.Date(2026, time.March, 14, 9, 3, 0, 0, time.UTC)
	if !envelope.Timestamp.Equal(want) {
		t.Fatalf("unexpected timestamp: %v", envelope.Timestamp)
	}
}

func TestValidateEnvelopeRejections(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{name: "not json", raw: `{not json}`},
		{name: "missing type", raw: `{"session_id": "planner-1"}`},
		{name: "missing session id", raw: `{"type": "stage_started"}`},
		{name: "empty session id", raw: `{"type": "stage_started", "session_id": ""}`},
		{name: "gate without active flag", raw: `{"type": "guardrail_hold", "session_id": "planner-1", "guardrail_gate": {"reasons": []}}`},
		{name: "bundle without resume token", raw: `{"type": "stage_failed", "session_id": "planner-1", "recovery_bundle": {"stage": "assembly"}}`},
	}
	for _, testCase := range cases {
		t.Run(testCase.name, func(t *testing.T) {
			if err := ValidateEnvelope([]byte(testCase.raw)); err == nil {
				t.Fatalf("expected rejection for %s", testCase.name)
			}
		})
	}
}

func TestValidateEnvelopeAllowsUnknownTypes(t *testing.T) {
	raw := []byte(`{"type": "qc_artifact_indexed", "session_id": "planner-1", "extra_field": 1}`)
	if err := ValidateEnvelope(raw); err != nil {
		t.Fatalf("forward-compatible envelopes must pass: %v", err)
	}
}

func TestEnvelopeCursorFallback(t *testing.T) {
	raw := []byte(`{"type": "stage_completed", "id": "evt-9", "session_id": "planner-1", "timestamp": "2026-03-14T09:05:00Z"}`)
	envelope, err := DecodeEnvelope(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := envelope.Cursor(); got != "2026-03-14T09:05:00Z/evt-9" {
		t.Fatalf("unexpected composite cursor: %q", got)
	}

	raw = []byte(`{"type": "stage_completed", "id": "evt-9", "session_id": "planner-1", "timeline_cursor": "cursor-9"}`)
	envelope, err = DecodeEnvelope(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := envelope.Cursor(); got != "cursor-9" {
		t.Fatalf("explicit cursor must win, got %q", got)
	}
}
