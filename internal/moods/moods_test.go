package moods

import (
	"strings"
	"testing"
)

func TestLookup_KnownAndDefault(t *testing.T) {
	m, err := Lookup("pirate")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Name != "pirate" || m.Prompt == "" {
		t.Fatalf("got %+v", m)
	}

	m, err = Lookup("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Name != "default" {
		t.Fatalf("empty name should resolve to default, got %q", m.Name)
	}

	if _, err := Lookup("PIRATE"); err != nil {
		t.Fatalf("lookup must be case-insensitive: %v", err)
	}
}

func TestLookup_UnknownListsAvailable(t *testing.T) {
	_, err := Lookup("grumpy")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "pirate") || !strings.Contains(err.Error(), "rubber-duck") {
		t.Fatalf("error should list moods: %v", err)
	}
}

func TestApply(t *testing.T) {
	base := "You are llamsh."
	m, _ := Lookup("default")
	if got := m.Apply(base); got != base {
		t.Fatalf("default mood must not change the prompt: %q", got)
	}
	m, _ = Lookup("concise")
	got := m.Apply(base)
	if !strings.HasPrefix(got, base) || !strings.Contains(got, "concise") {
		t.Fatalf("mood flavor not appended: %q", got)
	}
}

func TestNamesSorted(t *testing.T) {
	names := Names()
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Fatalf("names not sorted: %v", names)
		}
	}
	if len(names) != 7 {
		t.Fatalf("expected 7 moods, got %d", len(names))
	}
}
