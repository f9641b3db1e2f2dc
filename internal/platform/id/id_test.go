package id

import (
	"strings"
	"testing"
)

func TestNewIDFormat(t *testing.T) {
	got := NewID()
	if len(got) != 26 {
		t.Fatalf("len(NewID()) = %d, want 26", len(got))
	}
	if got != strings.ToLower(got) {
		t.Fatalf("NewID() = %q, want lowercase", got)
	}
	for _, c := range got {
		if !(c >= 'a' && c <= 'z' || c >= '2' && c <= '7') {
			t.Fatalf("NewID() = %q, character %q outside base32 alphabet", got, c)
		}
	}
}

func TestNewIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		got := NewID()
		if seen[got] {
			t.Fatalf("NewID() repeated %q", got)
		}
		seen[got] = true
	}
}
