package storage

import (
	"time"

	"go.uber.org/zap"

	"github.com/hperssn/haptics/internal/runner"
)

type Repository interface {
	SavePlayback(record *PlaybackRecord) error

	GetPlaybacksByUser(userID string) ([]PlaybackRecord, error)

	GetRecentPlaybacks(userID string, since time.Time) ([]PlaybackRecord, error)

	GetPlaybackStats(userID string) (*PlaybackStats, error)

	Close() error
}

type PlaybackStats struct {
	TotalPlaybacks int     `json:"totalPlaybacks"`
	CompletedCount int     `json:"completedCount"`
	CancelledCount int     `json:"cancelledCount"`
	TotalPlayedSec float64 `json:"totalPlayedSec"`
	CompletionRate float64 `json:"completionRate"`
}

// Recorder stores every finished playback in a Repository. Write failures
// are logged and otherwise ignored.
type Recorder struct {
	repo   Repository
	logger *zap.Logger
}

func NewRecorder(repo Repository, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{repo: repo, logger: logger}
}

func (r *Recorder) RecordPlayback(s runner.Summary) {
	if err := r.repo.SavePlayback(FromSummary(s)); err != nil {
		r.logger.Warn("failed to record playback",
			zap.String("session", s.ID),
			zap.Error(err),
		)
	}
}
