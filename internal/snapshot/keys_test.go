package snapshot

import (
	"testing"
	"time"
)

func TestKeyRoundTrip(t *testing.T) {
	tests := []struct {
		key      string
		wantKind string
		wantVal  string
	}{
		{LogicalKey("abc-123"), KeyKindLogical, "abc-123"},
		{ExternalKey("HK-9"), KeyKindExternal, "HK-9"},
		{LegacyKey("deadbeef"), KeyKindLegacy, "deadbeef"},
	}
	for _, tt := range tests {
		kind, val, err := ParseKey(tt.key)
		if err != nil {
			t.Fatalf("ParseKey(%q): %v", tt.key, err)
		}
		if kind != tt.wantKind || val != tt.wantVal {
			t.Errorf("ParseKey(%q) = (%q, %q), want (%q, %q)", tt.key, kind, val, tt.wantKind, tt.wantVal)
		}
	}
}

func TestParseKeyRejectsMalformed(t *testing.T) {
	for _, key := range []string{"", "id", "id:", ":value", "bogus:value"} {
		if _, _, err := ParseKey(key); err == nil {
			t.Errorf("ParseKey(%q) succeeded, want error", key)
		}
	}
}

func TestFuzzyKeyRoundsToSecond(t *testing.T) {
	at := time.Date(2026, 8, 1, 9, 30, 15, 0, time.UTC)
	a := FuzzyKey("Walking", "minutes", 30, 3, 3, at)
	b := FuzzyKey("walking ", " Minutes", 30, 3, 3, at.Add(500*time.Millisecond))
	if a != b {
		t.Errorf("fuzzy keys differ across sub-second and case noise: %s vs %s", a, b)
	}

	c := FuzzyKey("walking", "minutes", 30, 3, 3, at.Add(time.Second))
	if a == c {
		t.Error("fuzzy keys should differ across whole seconds")
	}

	d := FuzzyKey("walking", "minutes", 30.0004, 3, 3, at)
	if a != d {
		t.Error("amounts equal at three decimals should share a fuzzy key")
	}

	e := FuzzyKey("walking", "minutes", 30.01, 3, 3, at)
	if a == e {
		t.Error("amounts differing at three decimals should not share a fuzzy key")
	}
}
