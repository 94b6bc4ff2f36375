package domain

import "fmt"

// Defaults for the canned patterns offered next to the pattern editor.
const (
	DefaultClickDuration  = 0.01
	DefaultClickIntensity = 1.0
	DefaultInterClickTime = 0.1
	DefaultBuzzDuration   = 0.4
)

func SingleClick(duration, intensity float64) (*Pattern, error) {
	return Clicks(1, duration, intensity, DefaultInterClickTime)
}

func DoubleClick(duration, intensity, interClickTime float64) (*Pattern, error) {
	return Clicks(2, duration, intensity, interClickTime)
}

// Clicks builds n pulses separated by silent gaps of interClickTime seconds.
func Clicks(n int, duration, intensity, interClickTime float64) (*Pattern, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: click count must be at least 1, got %d", ErrInvalidArgument, n)
	}
	if intensity == 0 {
		return nil, fmt.Errorf("%w: click intensity must be greater than zero", ErrInvalidArgument)
	}
	p := NewPattern(false)
	for i := 0; i < n; i++ {
		if i > 0 {
			if err := p.AddSpace(interClickTime); err != nil {
				return nil, err
			}
		}
		if err := p.AddVibration(duration, intensity); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func Buzz(duration, intensity float64) (*Pattern, error) {
	if intensity == 0 {
		return nil, fmt.Errorf("%w: buzz intensity must be greater than zero", ErrInvalidArgument)
	}
	p := NewPattern(false)
	if err := p.AddVibration(duration, intensity); err != nil {
		return nil, err
	}
	return p, nil
}
