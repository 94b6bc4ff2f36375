package domain_test

import (
	"errors"
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/hperssn/haptics/internal/domain"
)

func mustAdd(t *testing.T, p *domain.Pattern, duration, intensity float64) {
	t.Helper()
	if err := p.AddVibration(duration, intensity); err != nil {
		t.Fatalf("AddVibration(%v, %v): %v", duration, intensity, err)
	}
}

func TestAddVibrationMergesEqualIntensity(t *testing.T) {
	p := domain.NewPattern(false)
	mustAdd(t, p, 0.1, 1)
	mustAdd(t, p, 0.1, 1)

	segs := p.Segments()
	if len(segs) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segs))
	}
	if segs[0].Duration != 0.2 || segs[0].Intensity != 1 {
		t.Fatalf("unexpected segment %+v", segs[0])
	}
}

func TestAddVibrationKeepsDistinctNeighbours(t *testing.T) {
	p := domain.NewPattern(false)
	mustAdd(t, p, 0.1, 1)
	if err := p.AddSpace(0.05); err != nil {
		t.Fatalf("AddSpace: %v", err)
	}
	mustAdd(t, p, 0.1, 1)

	want := []domain.Segment{
		{Duration: 0.1, Intensity: 1},
		{Duration: 0.05, Intensity: 0},
		{Duration: 0.1, Intensity: 1},
	}
	got := p.Segments()
	if len(got) != len(want) {
		t.Fatalf("expected %d segments, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("segment %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestAddVibrationRejectsInvalidArguments(t *testing.T) {
	tests := []struct {
		name      string
		duration  float64
		intensity float64
	}{
		{"zero duration", 0, 0.5},
		{"negative duration", -1, 0.5},
		{"NaN duration", math.NaN(), 0.5},
		{"infinite duration", math.Inf(1), 0.5},
		{"duration below minimum", 0.0004, 0.5},
		{"duration above maximum", domain.MaxDuration * 2, 0.5},
		{"intensity above one", 0.1, 1.5},
		{"negative intensity", 0.1, -0.1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := domain.NewPattern(false)
			mustAdd(t, p, 0.2, 0.3)

			err := p.AddVibration(tt.duration, tt.intensity)
			if !errors.Is(err, domain.ErrInvalidArgument) {
				t.Fatalf("expected ErrInvalidArgument, got %v", err)
			}
			if p.Len() != 1 || p.TotalDuration() != 0.2 {
				t.Fatalf("pattern mutated by rejected call: %+v", p.Segments())
			}
		})
	}
}

func TestAddVibrationRejectsOverlongMerge(t *testing.T) {
	tests := []struct {
		name  string
		first float64
		next  float64
	}{
		{"just over maximum", domain.MaxDuration, 0.001},
		{"two maximal segments", domain.MaxDuration, domain.MaxDuration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := domain.NewPattern(false)
			mustAdd(t, p, tt.first, 1)

			err := p.AddVibration(tt.next, 1)
			if !errors.Is(err, domain.ErrInvalidArgument) {
				t.Fatalf("expected ErrInvalidArgument, got %v", err)
			}
			if p.Len() != 1 || p.TotalDuration() != tt.first {
				t.Fatalf("pattern mutated by rejected merge: %+v", p.Segments())
			}
			if _, err := p.ToJSON(); err != nil {
				t.Fatalf("ToJSON: %v", err)
			}
		})
	}
}

func TestMergeInvariantHoldsForRandomEdits(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	levels := []float64{0, 0.25, 0.5, 1}

	p := domain.NewPattern(false)
	sum := 0.0
	for i := 0; i < 500; i++ {
		d := float64(r.Intn(100)+1) / 1000
		sum += d
		if r.Intn(4) == 0 {
			if err := p.AddSpace(d); err != nil {
				t.Fatalf("AddSpace: %v", err)
			}
		} else {
			mustAdd(t, p, d, levels[r.Intn(len(levels))])
		}

		segs := p.Segments()
		for j := 1; j < len(segs); j++ {
			if segs[j-1].Intensity == segs[j].Intensity {
				t.Fatalf("step %d: adjacent segments %d and %d share intensity %v", i, j-1, j, segs[j].Intensity)
			}
		}
	}

	if math.Abs(p.TotalDuration()-sum) > 1e-9 {
		t.Fatalf("TotalDuration = %v, want %v", p.TotalDuration(), sum)
	}
}

func TestTotalDurationEmpty(t *testing.T) {
	p := domain.NewPattern(false)
	if p.TotalDuration() != 0 {
		t.Fatalf("expected 0, got %v", p.TotalDuration())
	}
	if p.Segments() == nil {
		t.Fatalf("segments must never be nil")
	}
	var zero domain.Pattern
	if zero.Segments() == nil || zero.TotalDuration() != 0 {
		t.Fatalf("zero value pattern should behave as empty")
	}
}

func TestClearIsIdempotent(t *testing.T) {
	p := domain.NewPattern(true)
	mustAdd(t, p, 0.1, 1)
	mustAdd(t, p, 0.1, 0.5)

	p.Clear()
	if p.Len() != 0 || p.Repeat() || p.TotalDuration() != 0 {
		t.Fatalf("unexpected state after Clear: len=%d repeat=%v", p.Len(), p.Repeat())
	}
	p.Clear()
	if p.Len() != 0 || p.Repeat() || p.TotalDuration() != 0 {
		t.Fatalf("unexpected state after second Clear: len=%d repeat=%v", p.Len(), p.Repeat())
	}
}

func TestPlayable(t *testing.T) {
	empty := domain.NewPattern(false)
	if empty.Playable() {
		t.Errorf("empty pattern should not be playable")
	}

	silent := domain.NewPattern(false)
	if err := silent.AddSpace(1); err != nil {
		t.Fatalf("AddSpace: %v", err)
	}
	if silent.TotalDuration() <= 0 {
		t.Fatalf("silent pattern should have a duration")
	}
	if silent.Playable() {
		t.Errorf("silent pattern should not be playable")
	}

	mustAdd(t, silent, 0.1, 0.2)
	if !silent.Playable() {
		t.Errorf("pattern with a vibration should be playable")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	p := domain.NewPattern(true)
	mustAdd(t, p, 0.1234567, 0.333333)
	if err := p.AddSpace(0.05); err != nil {
		t.Fatalf("AddSpace: %v", err)
	}
	mustAdd(t, p, 0.3, 1)

	text, err := p.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	if !strings.Contains(text, `"formatVersion":1`) {
		t.Fatalf("missing formatVersion in %s", text)
	}
	if !strings.Contains(text, `"duration":0.123`) || !strings.Contains(text, `"intensity":0.333`) {
		t.Fatalf("numbers not rounded to 3 places: %s", text)
	}

	loaded := domain.NewPattern(false)
	if err := loaded.LoadJSON(text); err != nil {
		t.Fatalf("LoadJSON: %v", err)
	}
	if !loaded.Repeat() {
		t.Errorf("repeat flag lost")
	}

	orig := p.Segments()
	got := loaded.Segments()
	if len(got) != len(orig) {
		t.Fatalf("expected %d segments, got %d", len(orig), len(got))
	}
	for i := range orig {
		if math.Abs(got[i].Duration-orig[i].Duration) > 0.0005 ||
			math.Abs(got[i].Intensity-orig[i].Intensity) > 0.0005 {
			t.Errorf("segment %d = %+v, want about %+v", i, got[i], orig[i])
		}
	}
}

func TestJSONRoundTripAtDurationBounds(t *testing.T) {
	p := domain.NewPattern(false)
	mustAdd(t, p, domain.MinDuration, 1)
	if err := p.AddSpace(domain.MaxDuration); err != nil {
		t.Fatalf("AddSpace: %v", err)
	}

	text, err := p.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	if !strings.Contains(text, `"duration":0.001`) {
		t.Fatalf("shortest duration should round up to 0.001: %s", text)
	}

	loaded := domain.NewPattern(false)
	if err := loaded.LoadJSON(text); err != nil {
		t.Fatalf("LoadJSON of saved pattern: %v", err)
	}
	if loaded.Len() != 2 {
		t.Fatalf("expected 2 segments, got %+v", loaded.Segments())
	}
}

func TestLoadJSONRejectsOverlongMerge(t *testing.T) {
	p := domain.NewPattern(false)
	mustAdd(t, p, 0.1, 1)

	err := p.LoadJSON(`{"formatVersion":1,"repeat":false,"elements":[{"duration":86400,"intensity":1},{"duration":86400,"intensity":1}]}`)
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if p.Len() != 1 || p.TotalDuration() != 0.1 {
		t.Fatalf("pattern changed after rejected load: %+v", p.Segments())
	}
}

func TestLoadJSONUnsupportedVersionLeavesPattern(t *testing.T) {
	p := domain.NewPattern(true)
	mustAdd(t, p, 0.1, 1)

	err := p.LoadJSON(`{"formatVersion":2,"repeat":false,"elements":[]}`)
	if !errors.Is(err, domain.ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	if p.Len() != 1 || !p.Repeat() {
		t.Fatalf("pattern changed after rejected load")
	}
}

func TestLoadJSONRejectsBadElements(t *testing.T) {
	p := domain.NewPattern(false)
	mustAdd(t, p, 0.1, 1)

	err := p.LoadJSON(`{"formatVersion":1,"repeat":true,"elements":[{"duration":0.1,"intensity":2}]}`)
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if p.Len() != 1 || p.Repeat() {
		t.Fatalf("pattern changed after rejected load")
	}

	if err := p.LoadJSON(`not json`); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestLoadJSONNormalizesAdjacentEqualElements(t *testing.T) {
	p := domain.NewPattern(false)
	err := p.LoadJSON(`{"formatVersion":1,"repeat":false,"elements":[{"duration":0.1,"intensity":1},{"duration":0.1,"intensity":1}]}`)
	if err != nil {
		t.Fatalf("LoadJSON: %v", err)
	}
	if p.Len() != 1 || p.TotalDuration() != 0.2 {
		t.Fatalf("expected merged segment, got %+v", p.Segments())
	}
}

func TestCloneIsIndependent(t *testing.T) {
	p := domain.NewPattern(false)
	mustAdd(t, p, 0.1, 1)

	c := p.Clone()
	mustAdd(t, p, 0.1, 0.5)

	if c.Len() != 1 {
		t.Fatalf("clone changed with original: %+v", c.Segments())
	}
}
