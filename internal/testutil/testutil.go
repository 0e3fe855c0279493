package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func WriteFile(t *testing.T, path string, content []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("create parent directory for %s: %v", path, err)
	}
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// EnvelopeLines marshals values into one newline-delimited JSON document,
// the shape the event channel pushes.
func EnvelopeLines(t *testing.T, values ...any) []byte {
	t.Helper()
	var buffer bytes.Buffer
	for _, value := range values {
		encoded, err := json.Marshal(value)
		if err != nil {
			t.Fatalf("marshal envelope: %v", err)
		}
		buffer.Write(encoded)
		buffer.WriteByte('\n')
	}
	return buffer.Bytes()
}

// ScriptedSource replays fixed stream content for one session, optionally
// ending with a transport error instead of a clean EOF.
type ScriptedSource struct {
	Content  []byte
	ReadErr  error
	OpenErr  error
	OpenedID string
}

func (s *ScriptedSource) Open(_ context.Context, sessionID string) (io.ReadCloser, error) {
	if s.OpenErr != nil {
		return nil, s.OpenErr
	}
	s.OpenedID = sessionID
	return &scriptedReader{reader: bytes.NewReader(s.Content), readErr: s.ReadErr}, nil
}

type scriptedReader struct {
	reader  *bytes.Reader
	readErr error
}

func (r *scriptedReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if err == io.EOF && r.readErr != nil {
		return n, r.readErr
	}
	return n, err
}

func (r *scriptedReader) Close() error {
	return nil
}
