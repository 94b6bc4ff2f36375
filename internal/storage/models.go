package storage

import (
	"time"

	"github.com/google/uuid"

	"github.com/hperssn/haptics/internal/runner"
)

type PlaybackRecord struct {
	ID          string          `json:"id"`
	UserID      string          `json:"userId"`
	Outcome     runner.Outcome  `json:"outcome"`
	Repeat      bool            `json:"repeat"`
	Activations int             `json:"activations"`
	Loops       int             `json:"loops"`
	PlayedMS    int64           `json:"playedMs"`
	StartedAt   time.Time       `json:"startedAt"`
	EndedAt     time.Time       `json:"endedAt"`
	Segments    []SegmentRecord `json:"segments"`
}

type SegmentRecord struct {
	Index     int     `json:"index"`
	Duration  float64 `json:"duration"`
	Intensity float64 `json:"intensity"`
}

// FromSummary converts a finished scheduler session to a PlaybackRecord
func FromSummary(s runner.Summary) *PlaybackRecord {
	segments := make([]SegmentRecord, len(s.Segments))
	for i, seg := range s.Segments {
		segments[i] = SegmentRecord{
			Index:     i,
			Duration:  seg.Duration,
			Intensity: seg.Intensity,
		}
	}

	id := s.ID
	if id == "" {
		id = uuid.NewString()
	}

	return &PlaybackRecord{
		ID:          id,
		UserID:      s.Owner,
		Outcome:     s.Outcome,
		Repeat:      s.Repeat,
		Activations: s.Activations,
		Loops:       s.Loops,
		PlayedMS:    s.EndedAt.Sub(s.StartedAt).Milliseconds(),
		StartedAt:   s.StartedAt,
		EndedAt:     s.EndedAt,
		Segments:    segments,
	}
}
