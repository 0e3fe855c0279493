package stream

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTTPSourceOpensEventChannel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path != "/sessions/planner-1/events" {
			t.Errorf("unexpected path %q", request.URL.Path)
		}
		if request.Header.Get("Accept") != "application/x-ndjson" {
			t.Errorf("unexpected accept header %q", request.Header.Get("Accept"))
		}
		if request.Header.Get("X-Request-ID") == "" {
			t.Errorf("expected correlation id header")
		}
		writer.Header().Set("Content-Type", "application/x-ndjson")
		_, _ = writer.Write([]byte(`{"type":"session_created","session_id":"planner-1"}` + "\n"))
	}))
	t.Cleanup(server.Close)

	source, err := NewHTTPSource(HTTPSourceOptions{BaseURL: server.URL + "/"})
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	reader, err := source.Open(context.Background(), "planner-1")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = reader.Close() }()

	scanner := bufio.NewScanner(reader)
	if !scanner.Scan() {
		t.Fatalf("expected one line, got scan error %v", scanner.Err())
	}
	if !strings.Contains(scanner.Text(), "session_created") {
		t.Fatalf("unexpected line %q", scanner.Text())
	}
}

func TestHTTPSourceRejectsNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		http.Error(writer, "session not found", http.StatusNotFound)
	}))
	t.Cleanup(server.Close)

	source, err := NewHTTPSource(HTTPSourceOptions{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	if _, err := source.Open(context.Background(), "planner-404"); err == nil {
		t.Fatalf("expected error for non-200 status")
	} else if !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected status in error, got %v", err)
	}
}

func TestNewHTTPSourceRequiresBaseURL(t *testing.T) {
	if _, err := NewHTTPSource(HTTPSourceOptions{BaseURL: " "}); err == nil {
		t.Fatalf("expected error for blank base url")
	}
}
