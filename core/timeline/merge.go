package timeline

import (
	"fmt"
	"sort"
	"strings"
	"time"

	schemasession "github.com/Mvgnu/BioLabs-sub002/core/schema/v1/session"
	schemastream "github.com/Mvgnu/BioLabs-sub002/core/schema/v1/stream"
)

// Entry is one merged, branch-tagged timeline position presented for
// scrubbing and replay.
type Entry struct {
	Cursor        string                      `json:"cursor"`
	Timestamp     time.Time                   `json:"timestamp,omitempty"`
	BranchID      string                      `json:"branch_id,omitempty"`
	Label         string                      `json:"label"`
	GuardrailHold bool                        `json:"guardrail_hold,omitempty"`
	Details       []string                    `json:"details,omitempty"`
	Event         *schemastream.EventEnvelope `json:"event,omitempty"`
	Record        *schemasession.StageRecord  `json:"record,omitempty"`
}

// Merge folds event-sourced entries and historical stage records into one
// chronologically ordered, de-duplicated sequence. Events and records sharing
// a timeline cursor collapse into a single entry; records never covered by an
// event (server-side completions from before the subscription) appear on
// their own. Ordering is by timestamp with a lexical cursor tie-break: a
// presentation ordering, not a causal guarantee.
func Merge(events []schemastream.EventEnvelope, history []schemasession.StageRecord, activeBranch string) []Entry {
	recordsByCursor := make(map[string]schemasession.StageRecord, len(history))
	for _, record := range history {
		if record.TimelinePosition == "" {
			continue
		}
		recordsByCursor[record.TimelinePosition] = record
	}

	entries := make([]Entry, 0, len(events)+len(history))
	covered := make(map[string]struct{}, len(events))
	for index := range events {
		event := events[index]
		cursor := event.Cursor()
		if cursor == "" {
			continue
		}
		if _, seen := covered[cursor]; seen {
			continue
		}
		covered[cursor] = struct{}{}
		entry := Entry{
			Cursor:    cursor,
			Timestamp: event.Timestamp.UTC(),
			BranchID:  branchOf(event, activeBranch),
			Event:     &event,
		}
		if record, ok := recordsByCursor[cursor]; ok {
			attached := record
			entry.Record = &attached
			if entry.Timestamp.IsZero() {
				entry.Timestamp = record.CreatedAt.UTC()
			}
		}
		entry.Label = deriveLabel(entry)
		entry.GuardrailHold = deriveHold(entry)
		entry.Details = deriveDetails(entry)
		entries = append(entries, entry)
	}

	for index := range history {
		record := history[index]
		if record.TimelinePosition == "" {
			continue
		}
		if _, seen := covered[record.TimelinePosition]; seen {
			continue
		}
		covered[record.TimelinePosition] = struct{}{}
		branchID := record.BranchID
		if branchID == "" {
			branchID = activeBranch
		}
		entry := Entry{
			Cursor:    record.TimelinePosition,
			Timestamp: record.CreatedAt.UTC(),
			BranchID:  branchID,
			Record:    &record,
		}
		entry.Label = deriveLabel(entry)
		entry.GuardrailHold = deriveHold(entry)
		entry.Details = deriveDetails(entry)
		entries = append(entries, entry)
	}

	sort.SliceStable(entries, func(left, right int) bool {
		if !entries[left].Timestamp.Equal(entries[right].Timestamp) {
			return entries[left].Timestamp.Before(entries[right].Timestamp)
		}
		return entries[left].Cursor < entries[right].Cursor
	})
	return entries
}

func branchOf(event schemastream.EventEnvelope, activeBranch string) string {
	if event.Branch != nil && event.Branch.Active != "" {
		return event.Branch.Active
	}
	return activeBranch
}

func deriveLabel(entry Entry) string {
	if entry.Event != nil {
		switch entry.Event.Type {
		case schemastream.TypeSessionCreated:
			return "Session created"
		case schemastream.TypeStageStarted:
			return fmt.Sprintf("Stage %s started", stageOf(entry))
		case schemastream.TypeStageCompleted:
			return fmt.Sprintf("Stage %s completed", stageOf(entry))
		case schemastream.TypeStageFailed:
			return fmt.Sprintf("Stage %s failed", stageOf(entry))
		case schemastream.TypeGuardrailHold:
			return "Guardrail hold"
		case schemastream.TypeGuardrailCleared:
			return "Guardrail cleared"
		case schemastream.TypeBranchSwitched:
			return "Branch switched"
		case schemastream.TypeSessionFinalized:
			return "Session finalized"
		case schemastream.TypeSessionCancelled:
			return "Session cancelled"
		default:
			return strings.ReplaceAll(entry.Event.Type, "_", " ")
		}
	}
	if entry.Record != nil {
		return fmt.Sprintf("Stage %s %s", entry.Record.Stage, entry.Record.Status)
	}
	return "Timeline entry"
}

func stageOf(entry Entry) string {
	if entry.Event != nil && entry.Event.Stage != "" {
		return entry.Event.Stage
	}
	if entry.Record != nil && entry.Record.Stage != "" {
		return entry.Record.Stage
	}
	return "unknown"
}

func deriveHold(entry Entry) bool {
	if entry.Event != nil {
		if entry.Event.Type == schemastream.TypeGuardrailHold {
			return true
		}
		if entry.Event.GuardrailGate != nil && entry.Event.GuardrailGate.Active {
			return true
		}
	}
	if entry.Record != nil {
		if entry.Record.Status == schemasession.TimingBlocked {
			return true
		}
		if entry.Record.GuardrailSnapshot != nil && entry.Record.GuardrailSnapshot.State == schemasession.GuardrailBlocked {
			return true
		}
	}
	return false
}

func deriveDetails(entry Entry) []string {
	details := make([]string, 0, 4)
	if entry.Event != nil && entry.Event.CurrentStep != "" {
		details = append(details, "current stage: "+entry.Event.CurrentStep)
	}
	if entry.Event != nil && entry.Event.GuardrailGate != nil {
		for _, reason := range entry.Event.GuardrailGate.Reasons {
			details = append(details, "guardrail: "+reason)
		}
	}
	switch {
	case entry.Event != nil && entry.Event.Checkpoint != nil && entry.Event.Checkpoint.Key != "":
		details = append(details, "checkpoint "+entry.Event.Checkpoint.Key+" captured")
	case entry.Record != nil && entry.Record.CheckpointKey != "":
		details = append(details, "checkpoint "+entry.Record.CheckpointKey+" captured")
	}
	if entry.Event != nil {
		if open := countOpenDrills(entry.Event.DrillSummaries); open > 0 {
			details = append(details, fmt.Sprintf("open custody escalations: %d", open))
		}
	}
	if len(details) == 0 {
		return nil
	}
	return details
}

func countOpenDrills(summaries []schemastream.DrillSummary) int {
	open := 0
	for _, summary := range summaries {
		if summary.Status == schemastream.DrillOpen {
			open++
		}
	}
	return open
}
