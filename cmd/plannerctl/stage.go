package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Mvgnu/BioLabs-sub002/core/runner"
	schemasession "github.com/Mvgnu/BioLabs-sub002/core/schema/v1/session"
	"github.com/Mvgnu/BioLabs-sub002/core/store"
)

type mutationFlags struct {
	configPath string
	serviceURL string
	sessionID  string
}

func (f *mutationFlags) register(flagSet *flag.FlagSet) {
	flagSet.StringVar(&f.configPath, "config", "", "planner config path")
	flagSet.StringVar(&f.serviceURL, "service", "", "stage service base url")
	flagSet.StringVar(&f.sessionID, "session", "", "session id")
}

// buildRunner constructs a gated runner around a freshly fetched snapshot so
// an active guardrail gate vetoes the call locally, matching the dashboard's
// behavior.
func buildRunner(ctx context.Context, flags mutationFlags) (*runner.Runner, error) {
	if strings.TrimSpace(flags.sessionID) == "" {
		return nil, fmt.Errorf("-session is required")
	}
	_, client, _, err := loadService(flags.configPath, flags.serviceURL)
	if err != nil {
		return nil, err
	}
	sessionStore := store.New()
	snapshot, err := client.FetchSession(ctx, flags.sessionID)
	if err != nil {
		return nil, fmt.Errorf("fetch session snapshot: %w", err)
	}
	sessionStore.Replace(snapshot)
	return runner.New(runner.Options{
		SessionID: flags.sessionID,
		Client:    client,
		Store:     sessionStore,
	})
}

func decodeJSONObject(inline, filePath, what string) (map[string]any, error) {
	raw := strings.TrimSpace(inline)
	if raw == "" && strings.TrimSpace(filePath) != "" {
		// #nosec G304 -- payload path is explicit local user input.
		content, err := os.ReadFile(strings.TrimSpace(filePath))
		if err != nil {
			return nil, fmt.Errorf("read %s file: %w", what, err)
		}
		raw = strings.TrimSpace(string(content))
	}
	if raw == "" {
		return nil, nil
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("parse %s JSON: %w", what, err)
	}
	return decoded, nil
}

func runSubmit(arguments []string) int {
	flagSet := flag.NewFlagSet("submit", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var flags mutationFlags
	var stage string
	var payloadInline string
	var payloadFile string
	flags.register(flagSet)
	flagSet.StringVar(&stage, "stage", "", "pipeline stage to dispatch")
	flagSet.StringVar(&payloadInline, "payload", "", "stage payload as inline JSON")
	flagSet.StringVar(&payloadFile, "payload-file", "", "stage payload JSON file")

	if err := flagSet.Parse(arguments); err != nil {
		return failOutput(err)
	}
	payload, err := decodeJSONObject(payloadInline, payloadFile, "payload")
	if err != nil {
		return failOutput(err)
	}
	ctx := context.Background()
	stageRunner, err := buildRunner(ctx, flags)
	if err != nil {
		return failOutput(err)
	}
	snapshot, err := stageRunner.Submit(ctx, stage, payload)
	if err != nil {
		return failOutput(err)
	}
	return writeOutput(commandOutput{OK: true, Value: snapshot}, exitOK)
}

func runResume(arguments []string) int {
	flagSet := flag.NewFlagSet("resume", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var flags mutationFlags
	var overridesInline string
	var overridesFile string
	flags.register(flagSet)
	flagSet.StringVar(&overridesInline, "overrides", "", "resume overrides as inline JSON")
	flagSet.StringVar(&overridesFile, "overrides-file", "", "resume overrides JSON file")

	if err := flagSet.Parse(arguments); err != nil {
		return failOutput(err)
	}
	overrides, err := decodeJSONObject(overridesInline, overridesFile, "overrides")
	if err != nil {
		return failOutput(err)
	}
	ctx := context.Background()
	stageRunner, err := buildRunner(ctx, flags)
	if err != nil {
		return failOutput(err)
	}
	snapshot, err := stageRunner.Resume(ctx, overrides)
	if err != nil {
		return failOutput(err)
	}
	return writeOutput(commandOutput{OK: true, Value: snapshot}, exitOK)
}

func runFinalize(arguments []string) int {
	flagSet := flag.NewFlagSet("finalize", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var flags mutationFlags
	var guardrailFile string
	flags.register(flagSet)
	flagSet.StringVar(&guardrailFile, "guardrail-file", "", "confirmed guardrail state JSON file")

	if err := flagSet.Parse(arguments); err != nil {
		return failOutput(err)
	}
	var guardrailState map[string]schemasession.GuardrailSnapshot
	if strings.TrimSpace(guardrailFile) != "" {
		// #nosec G304 -- guardrail state path is explicit local user input.
		content, err := os.ReadFile(strings.TrimSpace(guardrailFile))
		if err != nil {
			return failOutput(fmt.Errorf("read guardrail state file: %w", err))
		}
		if err := json.Unmarshal(content, &guardrailState); err != nil {
			return failOutput(fmt.Errorf("parse guardrail state JSON: %w", err))
		}
	}
	ctx := context.Background()
	stageRunner, err := buildRunner(ctx, flags)
	if err != nil {
		return failOutput(err)
	}
	snapshot, err := stageRunner.Finalize(ctx, guardrailState)
	if err != nil {
		return failOutput(err)
	}
	return writeOutput(commandOutput{OK: true, Value: snapshot}, exitOK)
}

func runCancel(arguments []string) int {
	flagSet := flag.NewFlagSet("cancel", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var flags mutationFlags
	var reason string
	flags.register(flagSet)
	flagSet.StringVar(&reason, "reason", "", "cancellation reason")

	if err := flagSet.Parse(arguments); err != nil {
		return failOutput(err)
	}
	ctx := context.Background()
	stageRunner, err := buildRunner(ctx, flags)
	if err != nil {
		return failOutput(err)
	}
	snapshot, err := stageRunner.Cancel(ctx, reason)
	if err != nil {
		return failOutput(err)
	}
	return writeOutput(commandOutput{OK: true, Value: snapshot}, exitOK)
}
