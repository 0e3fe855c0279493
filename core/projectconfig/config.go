package projectconfig

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

const DefaultPath = ".biolabs/planner.yaml"

const (
	defaultRequestTimeout = 2 * time.Minute
	defaultRingCapacity   = 50
)

type Config struct {
	Service ServiceDefaults `yaml:"service"`
	Stream  StreamDefaults  `yaml:"stream"`
	Export  ExportDefaults  `yaml:"export"`
}

type ServiceDefaults struct {
	BaseURL        string `yaml:"base_url"`
	RequestTimeout string `yaml:"request_timeout"`
}

type StreamDefaults struct {
	RingCapacity int `yaml:"ring_capacity"`
}

type ExportDefaults struct {
	Dir string `yaml:"dir"`
}

func Load(path string, allowMissing bool) (Config, error) {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return Config{}, fmt.Errorf("planner config path is required")
	}

	// #nosec G304 -- config path is explicit local user input.
	content, err := os.ReadFile(trimmedPath)
	if err != nil {
		if os.IsNotExist(err) && allowMissing {
			configuration := Config{}
			configuration.normalize()
			return configuration, nil
		}
		return Config{}, fmt.Errorf("read planner config: %w", err)
	}
	var configuration Config
	if len(strings.TrimSpace(string(content))) > 0 {
		if err := yaml.Unmarshal(content, &configuration); err != nil {
			return Config{}, fmt.Errorf("parse planner config: %w", err)
		}
	}
	configuration.normalize()
	if configuration.Service.RequestTimeout != "" {
		if _, err := time.ParseDuration(configuration.Service.RequestTimeout); err != nil {
			return Config{}, fmt.Errorf("invalid service request_timeout: %w", err)
		}
	}
	if configuration.Stream.RingCapacity < 0 {
		return Config{}, fmt.Errorf("stream ring_capacity must not be negative")
	}
	return configuration, nil
}

func (configuration *Config) normalize() {
	configuration.Service.BaseURL = strings.TrimRight(strings.TrimSpace(configuration.Service.BaseURL), "/")
	configuration.Service.RequestTimeout = strings.TrimSpace(configuration.Service.RequestTimeout)
	configuration.Export.Dir = strings.TrimSpace(configuration.Export.Dir)
}

// RequestTimeout returns the configured stage-call timeout, defaulting to two
// minutes. The planner core enforces no timeout itself; this is inherited by
// the HTTP client.
func (configuration Config) RequestTimeout() time.Duration {
	if configuration.Service.RequestTimeout == "" {
		return defaultRequestTimeout
	}
	parsed, err := time.ParseDuration(configuration.Service.RequestTimeout)
	if err != nil || parsed <= 0 {
		return defaultRequestTimeout
	}
	return parsed
}

// RingCapacity returns the event buffer capacity, defaulting to 50.
func (configuration Config) RingCapacity() int {
	if configuration.Stream.RingCapacity <= 0 {
		return defaultRingCapacity
	}
	return configuration.Stream.RingCapacity
}

// StageHTTPClient builds the request/response client for stage calls with
// the configured timeout.
func (configuration Config) StageHTTPClient() *http.Client {
	return &http.Client{Timeout: configuration.RequestTimeout()}
}

// StreamHTTPClient builds the client used for the long-lived event channel.
// It carries no global timeout; the stream idles between pushes.
func (configuration Config) StreamHTTPClient() *http.Client {
	return &http.Client{}
}
