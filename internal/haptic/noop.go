package haptic

import (
	"go.uber.org/zap"

	"github.com/hperssn/haptics/internal/domain"
)

// Noop accepts every valid request and reports success without driving any
// hardware. It stands in for platforms without a vibration motor.
type Noop struct {
	logger *zap.Logger
}

func NewNoop(logger *zap.Logger) *Noop {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Noop{logger: logger}
}

func (n *Noop) VibrateOnce(duration, intensity float64) error {
	if err := domain.ValidateSegment(duration, intensity); err != nil {
		return err
	}
	n.logger.Debug("vibrate once", zap.Float64("duration", duration), zap.Float64("intensity", intensity))
	return nil
}

func (n *Noop) Vibrate(segments []domain.Segment, repeat bool) error {
	if err := validateSegments(segments); err != nil {
		return err
	}
	n.logger.Debug("vibrate", zap.Int("segments", len(segments)), zap.Bool("repeat", repeat))
	return nil
}

func (n *Noop) Cancel() error {
	return nil
}

func (n *Noop) CreateSpec(duration, intensity float64) (domain.Segment, error) {
	return domain.NewSegment(duration, intensity)
}
