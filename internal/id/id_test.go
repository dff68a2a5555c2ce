package id

import (
	"testing"

	"github.com/google/uuid"
)

func TestNewIsVersion7(t *testing.T) {
	t.Parallel()

	got := New()
	parsed, err := uuid.Parse(got)
	if err != nil {
		t.Fatalf("expected valid uuid, got %q: %v", got, err)
	}
	if parsed.Version() != 7 {
		t.Fatalf("expected version 7, got %d", parsed.Version())
	}
}

func TestNewIsUnique(t *testing.T) {
	t.Parallel()

	seen := make(map[string]struct{})
	for range 100 {
		v := New()
		if _, dup := seen[v]; dup {
			t.Fatalf("duplicate id %s", v)
		}
		seen[v] = struct{}{}
	}
}

func TestValid(t *testing.T) {
	t.Parallel()

	if !Valid(New()) {
		t.Fatal("expected generated id to be valid")
	}
	for _, in := range []string{"", "run-1", "0190b6c4-7e8f-7000-8000-00000000000"} {
		if Valid(in) {
			t.Fatalf("expected %q to be invalid", in)
		}
	}
}
