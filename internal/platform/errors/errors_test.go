package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(CodeStorageFailed, "save session", cause)

	if err.Error() != "save session" {
		t.Fatalf("message = %q, want %q", err.Error(), "save session")
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected wrapped cause to be reachable via errors.Is")
	}
}

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(CodeNotFound, "record not found"))

	if !errors.Is(err, New(CodeNotFound, "anything")) {
		t.Fatal("expected match by code")
	}
	if errors.Is(err, New(CodeStorageFailed, "anything")) {
		t.Fatal("expected different codes not to match")
	}
}
