package openingbook

import (
	"strings"
	"testing"
)

func TestLookupUCIRecognisesRuyLopez(t *testing.T) {
	label, ok := LookupUCI([]string{"e2e4", "e7e5", "g1f3", "b8c6", "f1b5"})
	if !ok {
		t.Fatalf("expected an ECO match")
	}
	if !strings.HasPrefix(label.Code, "C") {
		t.Fatalf("unexpected ECO code %q", label.Code)
	}
	if !strings.Contains(strings.ToLower(label.Title), "ruy lopez") {
		t.Fatalf("unexpected title %q", label.Title)
	}
	if !strings.Contains(label.String(), label.Code) {
		t.Fatalf("String() should include the code: %q", label.String())
	}
}

func TestLookupEmptyHistory(t *testing.T) {
	if _, ok := LookupUCI(nil); ok {
		t.Fatalf("empty history must not be classified")
	}
	if _, ok := LookupUCI([]string{"zz"}); ok {
		t.Fatalf("garbage history must not be classified")
	}
}
