package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/Mvgnu/BioLabs-sub002/core/fsx"
)

func runStatus(arguments []string) int {
	flagSet := flag.NewFlagSet("status", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var flags mutationFlags
	flags.register(flagSet)

	if err := flagSet.Parse(arguments); err != nil {
		return failOutput(err)
	}
	if strings.TrimSpace(flags.sessionID) == "" {
		return failOutput(fmt.Errorf("-session is required"))
	}
	_, client, _, err := loadService(flags.configPath, flags.serviceURL)
	if err != nil {
		return failOutput(err)
	}
	snapshot, err := client.FetchSession(context.Background(), flags.sessionID)
	if err != nil {
		return failOutput(err)
	}
	return writeOutput(commandOutput{OK: true, Value: snapshot}, exitOK)
}

func runExport(arguments []string) int {
	flagSet := flag.NewFlagSet("export", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var flags mutationFlags
	var outPath string
	flags.register(flagSet)
	flagSet.StringVar(&outPath, "out", "", "destination path for the snapshot JSON")

	if err := flagSet.Parse(arguments); err != nil {
		return failOutput(err)
	}
	if strings.TrimSpace(flags.sessionID) == "" {
		return failOutput(fmt.Errorf("-session is required"))
	}
	configuration, client, _, err := loadService(flags.configPath, flags.serviceURL)
	if err != nil {
		return failOutput(err)
	}
	snapshot, err := client.FetchSession(context.Background(), flags.sessionID)
	if err != nil {
		return failOutput(err)
	}
	destination := strings.TrimSpace(outPath)
	if destination == "" {
		exportDir := configuration.Export.Dir
		if exportDir == "" {
			exportDir = "planner-out"
		}
		destination = filepath.Join(exportDir, fmt.Sprintf("session_%s.json", flags.sessionID))
	}
	if err := fsx.WriteJSONAtomic(destination, snapshot, 0o600); err != nil {
		return failOutput(err)
	}
	return writeOutput(commandOutput{OK: true, Value: map[string]string{"path": destination}}, exitOK)
}
