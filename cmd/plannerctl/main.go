package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/Mvgnu/BioLabs-sub002/core/projectconfig"
	"github.com/Mvgnu/BioLabs-sub002/core/runner"
)

// version is stamped at release time via ldflags; default stays dev for local builds.
var version = "0.0.0-dev"

const (
	exitOK           = 0
	exitError        = 1
	exitInvalidInput = 2
)

func main() {
	os.Exit(run(os.Args))
}

func run(arguments []string) int {
	if len(arguments) < 2 {
		fmt.Println("plannerctl", version)
		printUsage()
		return exitOK
	}
	switch arguments[1] {
	case "watch":
		return runWatch(arguments[2:])
	case "submit":
		return runSubmit(arguments[2:])
	case "resume":
		return runResume(arguments[2:])
	case "finalize":
		return runFinalize(arguments[2:])
	case "cancel":
		return runCancel(arguments[2:])
	case "status":
		return runStatus(arguments[2:])
	case "export":
		return runExport(arguments[2:])
	case "version", "--version":
		fmt.Println("plannerctl", version)
		return exitOK
	case "help", "--help", "-h":
		printUsage()
		return exitOK
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", arguments[1])
		printUsage()
		return exitInvalidInput
	}
}

func printUsage() {
	fmt.Println("usage: plannerctl <command> [flags]")
	fmt.Println()
	fmt.Println("commands:")
	fmt.Println("  watch     subscribe to a session's event channel and print timeline entries")
	fmt.Println("  submit    dispatch one pipeline stage")
	fmt.Println("  resume    resume a held or interrupted session")
	fmt.Println("  finalize  finalize a session with confirmed guardrail state")
	fmt.Println("  cancel    cancel a session")
	fmt.Println("  status    print the current session snapshot")
	fmt.Println("  export    write the current session snapshot to a file")
}

type commandOutput struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	Value any    `json:"value,omitempty"`
}

func writeOutput(output commandOutput, exitCode int) int {
	encoded, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode output: %v\n", err)
		return exitError
	}
	fmt.Println(string(encoded))
	return exitCode
}

func failOutput(err error) int {
	return writeOutput(commandOutput{OK: false, Error: err.Error()}, exitError)
}

// loadService resolves the planner config and builds the stage client. An
// explicit -service flag overrides the configured base URL.
func loadService(configPath, serviceURL string) (projectconfig.Config, *runner.HTTPClient, string, error) {
	path := strings.TrimSpace(configPath)
	allowMissing := false
	if path == "" {
		path = projectconfig.DefaultPath
		allowMissing = true
	}
	configuration, err := projectconfig.Load(path, allowMissing)
	if err != nil {
		return projectconfig.Config{}, nil, "", err
	}
	baseURL := strings.TrimSpace(serviceURL)
	if baseURL == "" {
		baseURL = configuration.Service.BaseURL
	}
	if baseURL == "" {
		return projectconfig.Config{}, nil, "", fmt.Errorf("stage service url is required: set -service or service.base_url in %s", path)
	}
	client, err := runner.NewHTTPClient(runner.HTTPClientOptions{
		BaseURL: baseURL,
		Client:  configuration.StageHTTPClient(),
	})
	if err != nil {
		return projectconfig.Config{}, nil, "", err
	}
	return configuration, client, baseURL, nil
}
