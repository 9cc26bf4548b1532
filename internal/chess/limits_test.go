package chess

import (
	"testing"
	"time"
)

func TestStrengthClamp(t *testing.T) {
	s := DefaultStrength()
	cases := map[int]int{
		100:  1350,
		1350: 1350,
		2000: 2000,
		2850: 2850,
		4000: 2850,
	}
	for in, want := range cases {
		if got := s.Clamp(in); got != want {
			t.Fatalf("Clamp(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestStrengthDefaultFollowsBounds(t *testing.T) {
	if got := DefaultStrength().Default(); got != 1500 {
		t.Fatalf("default rating = %d", got)
	}
	if got := (Strength{Min: 1600, Max: 2000}).Default(); got != 1600 {
		t.Fatalf("default rating should clamp up, got %d", got)
	}
	if got := (Strength{Min: 800, Max: 1200}).Default(); got != 1200 {
		t.Fatalf("default rating should clamp down, got %d", got)
	}
}

func TestStrengthValidate(t *testing.T) {
	if err := (Strength{Min: 0, Max: 10}).Validate(); err == nil {
		t.Fatalf("expected error for zero min")
	}
	if err := (Strength{Min: 2000, Max: 1000}).Validate(); err == nil {
		t.Fatalf("expected error for inverted bounds")
	}
	if err := DefaultStrength().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMoveTimeMillis(t *testing.T) {
	if got := moveTimeMillis(DefaultThinkTime); got != 500 {
		t.Fatalf("got %d", got)
	}
	if got := moveTimeMillis(0); got != 1 {
		t.Fatalf("zero think time should still search, got %d", got)
	}
	if got := moveTimeMillis(1500 * time.Millisecond * hintTimeFactor); got != 3000 {
		t.Fatalf("hint time got %d", got)
	}
}
