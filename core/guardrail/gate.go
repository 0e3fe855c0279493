package guardrail

import (
	"sort"

	schemasession "github.com/Mvgnu/BioLabs-sub002/core/schema/v1/session"
)

// Decision is the derived execution gate. Active true is a hard veto over all
// mutating operations; Reasons are opaque strings surfaced verbatim to
// operators.
type Decision struct {
	Active  bool     `json:"active"`
	Reasons []string `json:"reasons,omitempty"`
}

// Advisory is a soft per-stage warning. Advisories drive escalation prompts
// in the presentation layer and never veto execution on their own.
type Advisory struct {
	Stage    string   `json:"stage"`
	State    string   `json:"state"`
	Warnings []string `json:"warnings,omitempty"`
}

// Derive computes the gate from the explicit guardrail_gate field on the
// snapshot. Per-stage advisory states deliberately do not feed the veto:
// soft warnings must not over-block execution.
func Derive(snapshot schemasession.Session) Decision {
	return Decision{
		Active:  snapshot.GuardrailGate.Active,
		Reasons: append([]string(nil), snapshot.GuardrailGate.Reasons...),
	}
}

// Advisories reports per-stage guardrail states that warrant operator
// attention (review, blocked, unknown), ordered by stage key.
func Advisories(snapshot schemasession.Session) []Advisory {
	if len(snapshot.GuardrailState) == 0 {
		return nil
	}
	keys := make([]string, 0, len(snapshot.GuardrailState))
	for key := range snapshot.GuardrailState {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	advisories := make([]Advisory, 0, len(keys))
	for _, key := range keys {
		entry := snapshot.GuardrailState[key]
		switch entry.State {
		case schemasession.GuardrailReview, schemasession.GuardrailBlocked, schemasession.GuardrailUnknown:
			advisories = append(advisories, Advisory{
				Stage:    key,
				State:    entry.State,
				Warnings: append([]string(nil), entry.Warnings...),
			})
		}
	}
	if len(advisories) == 0 {
		return nil
	}
	return advisories
}

// OpenEscalations counts stages whose guardrail state is under review, the
// signal presented alongside timeline entries as outstanding custody
// escalations.
func OpenEscalations(snapshot schemasession.Session) int {
	count := 0
	for _, entry := range snapshot.GuardrailState {
		if entry.State == schemasession.GuardrailReview {
			count++
		}
	}
	return count
}
