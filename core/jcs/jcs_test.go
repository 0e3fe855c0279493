package jcs

import (
	"testing"
)

func TestCanonicalizeJSONOrdersKeys(t *testing.T) {
	canonical, err := CanonicalizeJSON([]byte(`{"b": 2, "a": 1}`))
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if string(canonical) != `{"a":1,"b":2}` {
		t.Fatalf("unexpected canonical form: %s", canonical)
	}
}

func TestDigestJCSStableAcrossKeyOrder(t *testing.T) {
	left, err := DigestJCS([]byte(`{"stage": "primers", "status": "complete"}`))
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	right, err := DigestJCS([]byte(`{"status": "complete", "stage": "primers"}`))
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if left != right {
		t.Fatalf("digest must not depend on key order: %s vs %s", left, right)
	}
	if len(left) != 64 {
		t.Fatalf("expected sha256 hex digest, got %q", left)
	}
}

func TestDigestJCSRejectsInvalidJSON(t *testing.T) {
	if _, err := DigestJCS([]byte("{broken")); err == nil {
		t.Fatalf("expected error for invalid JSON")
	}
}

func TestDigestValue(t *testing.T) {
	left, err := DigestValue(map[string]any{"a": 1, "b": "two"})
	if err != nil {
		t.Fatalf("digest value: %v", err)
	}
	right, err := DigestValue(map[string]any{"b": "two", "a": 1})
	if err != nil {
		t.Fatalf("digest value: %v", err)
	}
	if left != right {
		t.Fatalf("equal values must digest equally: %s vs %s", left, right)
	}
}
