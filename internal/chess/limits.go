package chess

import (
	"fmt"
	"time"
)

const (
	DefaultMinRating = 1350
	DefaultMaxRating = 2850
	DefaultRating    = 1500
	DefaultThinkTime = 500 * time.Millisecond

	// hints search without a strength limit for twice the move think time
	hintTimeFactor = 2
	searchGrace    = 10 * time.Second
)

// Strength bounds the Elo the engine may be set to.
type Strength struct {
	Min int
	Max int
}

func DefaultStrength() Strength {
	return Strength{Min: DefaultMinRating, Max: DefaultMaxRating}
}

func (s Strength) Validate() error {
	if s.Min < 1 {
		return fmt.Errorf("min rating must be positive: %d", s.Min)
	}
	if s.Max < s.Min {
		return fmt.Errorf("max rating %d below min rating %d", s.Max, s.Min)
	}
	return nil
}

func (s Strength) Clamp(rating int) int {
	if rating < s.Min {
		return s.Min
	}
	if rating > s.Max {
		return s.Max
	}
	return rating
}

// Default is the standard rating pulled into range.
func (s Strength) Default() int {
	return s.Clamp(DefaultRating)
}

func (s Strength) Contains(rating int) bool {
	return rating >= s.Min && rating <= s.Max
}

func moveTimeMillis(d time.Duration) int {
	ms := int(d / time.Millisecond)
	if ms < 1 {
		return 1
	}
	return ms
}
