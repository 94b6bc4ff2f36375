package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrNotPlayable       = errors.New("pattern not playable")
)

// Durations are bounded so every segment survives the three-decimal file
// rounding and converts to a time.Duration without overflow.
const (
	MinDuration = 0.0005
	MaxDuration = 24 * 60 * 60.0
)

// Segment is a single timed intensity value within a pattern. An intensity
// of zero is a space, anything above drives the motor at that relative
// strength.
type Segment struct {
	Duration  float64 `json:"duration"`  // seconds
	Intensity float64 `json:"intensity"` // 0 to 1
}

// NewSegment validates and builds a segment. Duration must lie in
// [MinDuration, MaxDuration] and intensity in [0, 1].
func NewSegment(duration, intensity float64) (Segment, error) {
	if err := ValidateSegment(duration, intensity); err != nil {
		return Segment{}, err
	}
	return Segment{Duration: duration, Intensity: intensity}, nil
}

func ValidateSegment(duration, intensity float64) error {
	// NaN fails every comparison below, so test the accepted range directly.
	if !(duration > 0) {
		return fmt.Errorf("%w: duration must be greater than zero, got %v", ErrInvalidArgument, duration)
	}
	if !(duration >= MinDuration && duration <= MaxDuration) {
		return fmt.Errorf("%w: duration must lie in [%v, %v] seconds, got %v", ErrInvalidArgument, MinDuration, MaxDuration, duration)
	}
	if !(intensity >= 0 && intensity <= 1) {
		return fmt.Errorf("%w: intensity out of range, got %v", ErrInvalidArgument, intensity)
	}
	return nil
}

func (s Segment) IsSpace() bool {
	return s.Intensity == 0
}
