package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/Mvgnu/BioLabs-sub002/core/planner"
	schemasession "github.com/Mvgnu/BioLabs-sub002/core/schema/v1/session"
	"github.com/Mvgnu/BioLabs-sub002/core/stream"
)

func runWatch(arguments []string) int {
	flagSet := flag.NewFlagSet("watch", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var configPath string
	var serviceURL string
	var sessionID string
	var verbose bool

	flagSet.StringVar(&configPath, "config", "", "planner config path")
	flagSet.StringVar(&serviceURL, "service", "", "stage service base url")
	flagSet.StringVar(&sessionID, "session", "", "session id to watch")
	flagSet.BoolVar(&verbose, "verbose", false, "log stream diagnostics to stderr")

	if err := flagSet.Parse(arguments); err != nil {
		return failOutput(err)
	}
	if strings.TrimSpace(sessionID) == "" {
		return failOutput(fmt.Errorf("-session is required"))
	}

	configuration, client, baseURL, err := loadService(configPath, serviceURL)
	if err != nil {
		return failOutput(err)
	}
	source, err := stream.NewHTTPSource(stream.HTTPSourceOptions{
		BaseURL: baseURL,
		Client:  configuration.StreamHTTPClient(),
	})
	if err != nil {
		return failOutput(err)
	}

	logger := slog.New(slog.DiscardHandler)
	if verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	plannerClient, err := planner.New(planner.Options{
		SessionID:    sessionID,
		Client:       client,
		Source:       source,
		Logger:       logger,
		RingCapacity: configuration.RingCapacity(),
	})
	if err != nil {
		return failOutput(err)
	}
	defer plannerClient.Close()

	printed := 0
	plannerClient.Store().OnChange(func(_ schemasession.Session) {
		entries := plannerClient.Timeline()
		for ; printed < len(entries); printed++ {
			entry := entries[printed]
			line := entry.Label
			if entry.GuardrailHold {
				line += " [guardrail hold]"
			}
			if len(entry.Details) > 0 {
				line += " (" + strings.Join(entry.Details, "; ") + ")"
			}
			fmt.Printf("%s  %s  %s\n", entry.Timestamp.Format("15:04:05"), entry.Cursor, line)
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	handle, err := plannerClient.Subscribe(ctx)
	if err != nil {
		return failOutput(err)
	}

	<-handle.Done()
	if err := handle.Err(); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "event channel closed: %v\n", err)
		return exitError
	}
	return exitOK
}
