// Package haptic exposes the vibration motor as an opaque capability:
// trigger the motor for a duration at an intensity, play a waveform, or
// cancel. Backends range from a no-op (no hardware) to a serial motor
// controller.
package haptic

import (
	"errors"
	"fmt"
	"math"

	"github.com/hperssn/haptics/internal/domain"
)

var ErrActuatorFailure = errors.New("actuator failure")

// Actuator is the haptic motor capability. Durations are seconds and
// intensities are in [0, 1].
type Actuator interface {
	VibrateOnce(duration, intensity float64) error
	Vibrate(segments []domain.Segment, repeat bool) error
	Cancel() error
	CreateSpec(duration, intensity float64) (domain.Segment, error)
}

// VibrateDoubleClick plays two pulses separated by interClickTime seconds.
func VibrateDoubleClick(a Actuator, duration, intensity, interClickTime float64) error {
	segments := make([]domain.Segment, 0, 3)
	for _, v := range [][2]float64{
		{duration, intensity},
		{interClickTime, 0},
		{duration, intensity},
	} {
		seg, err := a.CreateSpec(v[0], v[1])
		if err != nil {
			return err
		}
		segments = append(segments, seg)
	}
	return a.Vibrate(segments, false)
}

// Waveform is a pattern in the form motor drivers expect: millisecond
// timings, 8-bit amplitudes and the index to loop back to (-1 for none).
// Every timing is at least one millisecond.
type Waveform struct {
	Timings     []int64
	Amplitudes  []int
	RepeatIndex int
}

func NewWaveform(segments []domain.Segment, repeat bool) Waveform {
	w := Waveform{
		Timings:     make([]int64, len(segments)),
		Amplitudes:  make([]int, len(segments)),
		RepeatIndex: -1,
	}
	for i, s := range segments {
		w.Timings[i] = max(int64(math.Round(s.Duration*1000)), 1)
		w.Amplitudes[i] = Amplitude(s.Intensity)
	}
	if repeat {
		w.RepeatIndex = 0
	}
	return w
}

// Amplitude maps an intensity in [0, 1] onto the 0-255 motor range.
func Amplitude(intensity float64) int {
	a := int(math.Round(intensity * 255))
	if a < 0 {
		return 0
	}
	if a > 255 {
		return 255
	}
	return a
}

func validateSegments(segments []domain.Segment) error {
	for i, s := range segments {
		if err := domain.ValidateSegment(s.Duration, s.Intensity); err != nil {
			return fmt.Errorf("segment %d: %w", i, err)
		}
	}
	return nil
}
