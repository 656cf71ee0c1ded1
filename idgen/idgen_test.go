package idgen

import (
	"strings"
	"testing"
)

func TestUUIDv7Unique(t *testing.T) {
	gen := UUIDv7()
	seen := make(map[string]bool)
	for range 100 {
		id := gen()
		if seen[id] {
			t.Fatalf("duplicate ID: %s", id)
		}
		seen[id] = true
		if _, err := Parse(id); err != nil {
			t.Fatalf("Parse(%s): %v", id, err)
		}
	}
}

func TestNanoIDLengthAndAlphabet(t *testing.T) {
	gen := NanoID(12)
	id := gen()
	if len(id) != 12 {
		t.Fatalf("length: got %d, want 12", len(id))
	}
	for _, r := range id {
		if !strings.ContainsRune("0123456789abcdefghijklmnopqrstuvwxyz", r) {
			t.Fatalf("unexpected rune %q in %s", r, id)
		}
	}
}

func TestPrefixed(t *testing.T) {
	gen := Prefixed("rpt_", NanoID(8))
	id := gen()
	if !strings.HasPrefix(id, "rpt_") {
		t.Fatalf("missing prefix: %s", id)
	}
	if len(id) != 12 {
		t.Fatalf("length: got %d, want 12", len(id))
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse("not-a-uuid"); err == nil {
		t.Fatal("expected error")
	}
}
