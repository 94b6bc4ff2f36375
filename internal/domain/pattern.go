package domain

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// FormatVersion is the only pattern file version LoadJSON accepts.
const FormatVersion = 1

const roundPlaces = 3

// Pattern is an ordered sequence of segments plus a repeat flag. Adjacent
// segments never share an intensity; appends of an equal intensity extend
// the last segment instead. A Pattern is not safe for concurrent use.
type Pattern struct {
	segments []Segment
	repeat   bool
}

func NewPattern(repeat bool) *Pattern {
	return &Pattern{
		segments: []Segment{},
		repeat:   repeat,
	}
}

func (p *Pattern) Len() int {
	return len(p.segments)
}

// Segments returns a copy of the stored segments in playback order.
func (p *Pattern) Segments() []Segment {
	out := make([]Segment, len(p.segments))
	copy(out, p.segments)
	return out
}

func (p *Pattern) Repeat() bool {
	return p.repeat
}

func (p *Pattern) SetRepeat(repeat bool) {
	p.repeat = repeat
}

// AddVibration appends a vibration, merging it into the last segment when
// the intensities match.
func (p *Pattern) AddVibration(duration, intensity float64) error {
	seg, err := NewSegment(duration, intensity)
	if err != nil {
		return err
	}
	segments, err := appendOrMerge(p.segments, seg)
	if err != nil {
		return err
	}
	p.segments = segments
	return nil
}

func (p *Pattern) AddSpace(duration float64) error {
	return p.AddVibration(duration, 0)
}

func (p *Pattern) Clear() {
	p.segments = p.segments[:0]
	p.repeat = false
}

// TotalDuration is the sum of all segment durations in seconds.
func (p *Pattern) TotalDuration() float64 {
	total := 0.0
	for _, s := range p.segments {
		total += s.Duration
	}
	return total
}

// Playable reports whether the pattern has a nonzero duration and at least
// one segment that actually vibrates. A pattern made only of silence is not
// playable.
func (p *Pattern) Playable() bool {
	if p.TotalDuration() <= 0 {
		return false
	}
	for _, s := range p.segments {
		if !s.IsSpace() {
			return true
		}
	}
	return false
}

// Clone returns an independent copy, used to hand a stable snapshot to the
// playback scheduler.
func (p *Pattern) Clone() *Pattern {
	return &Pattern{
		segments: p.Segments(),
		repeat:   p.repeat,
	}
}

type envelope struct {
	FormatVersion int       `json:"formatVersion"`
	Repeat        bool      `json:"repeat"`
	Elements      []Segment `json:"elements"`
}

// MarshalJSON writes the versioned file envelope with every number rounded
// to three decimal places.
func (p *Pattern) MarshalJSON() ([]byte, error) {
	env := envelope{
		FormatVersion: FormatVersion,
		Repeat:        p.repeat,
		Elements:      make([]Segment, len(p.segments)),
	}
	for i, s := range p.segments {
		env.Elements[i] = Segment{
			Duration:  round(s.Duration),
			Intensity: round(s.Intensity),
		}
	}
	return json.Marshal(env)
}

func (p *Pattern) ToJSON() (string, error) {
	data, err := p.MarshalJSON()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// LoadJSON replaces the pattern with the contents of a file envelope. On any
// error the pattern is left untouched.
func (p *Pattern) LoadJSON(text string) error {
	return p.UnmarshalJSON([]byte(text))
}

func (p *Pattern) UnmarshalJSON(data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("decode pattern: %w", err)
	}
	if env.FormatVersion != FormatVersion {
		return fmt.Errorf("%w: formatVersion %d", ErrUnsupportedFormat, env.FormatVersion)
	}

	segments := make([]Segment, 0, len(env.Elements))
	for i, el := range env.Elements {
		seg, err := NewSegment(el.Duration, el.Intensity)
		if err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
		if segments, err = appendOrMerge(segments, seg); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}

	p.segments = segments
	p.repeat = env.Repeat
	return nil
}

// appendOrMerge leaves segments unchanged when the merged duration would
// exceed MaxDuration.
func appendOrMerge(segments []Segment, seg Segment) ([]Segment, error) {
	if n := len(segments); n > 0 && segments[n-1].Intensity == seg.Intensity {
		merged := segments[n-1].Duration + seg.Duration
		if merged > MaxDuration {
			return segments, fmt.Errorf("%w: merged duration %v exceeds %v seconds", ErrInvalidArgument, merged, MaxDuration)
		}
		segments[n-1].Duration = merged
		return segments, nil
	}
	return append(segments, seg), nil
}

func round(v float64) float64 {
	return decimal.NewFromFloat(v).Round(roundPlaces).InexactFloat64()
}
