package haptic

import (
	"context"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"go.bug.st/serial.v1"
	"go.uber.org/zap"

	"github.com/hperssn/haptics/internal/domain"
)

const DefaultBaudRate = 9600

// Serial drives a motor controller that accepts line commands over a serial
// port: "manual" to take control and "set N" with N in 0-255 for the PWM
// level.
type Serial struct {
	mu     sync.Mutex
	port   io.WriteCloser
	logger *zap.Logger

	gen    uint64
	timer  *time.Timer
	cancel context.CancelFunc
}

func OpenSerial(name string, baudRate int, logger *zap.Logger) (*Serial, error) {
	if baudRate <= 0 {
		baudRate = DefaultBaudRate
	}
	port, err := serial.Open(name, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, fmt.Errorf("%w: open serial port %s: %v", ErrActuatorFailure, name, err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("%w: reset serial port %s: %v", ErrActuatorFailure, name, err)
	}

	s, err := NewSerial(port, logger)
	if err != nil {
		port.Close()
		return nil, err
	}
	s.logger.Info("serial motor controller ready", zap.String("port", name), zap.Int("baud", baudRate))
	return s, nil
}

// NewSerial takes control of an already open port and switches the motor off.
func NewSerial(port io.WriteCloser, logger *zap.Logger) (*Serial, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Serial{port: port, logger: logger}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.send("manual"); err != nil {
		return nil, err
	}
	if err := s.setLevel(0); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Serial) VibrateOnce(duration, intensity float64) error {
	if err := domain.ValidateSegment(duration, intensity); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	gen := s.stopLocked()
	if err := s.setLevel(intensity); err != nil {
		return err
	}
	s.timer = time.AfterFunc(seconds(duration), func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.gen != gen {
			return
		}
		if err := s.setLevel(0); err != nil {
			s.logger.Warn("motor off failed", zap.Error(err))
		}
	})
	return nil
}

func (s *Serial) Vibrate(segments []domain.Segment, repeat bool) error {
	if err := validateSegments(segments); err != nil {
		return err
	}
	w := NewWaveform(segments, repeat)

	s.mu.Lock()
	defer s.mu.Unlock()

	gen := s.stopLocked()
	if len(w.Timings) == 0 {
		return s.setLevel(0)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.play(ctx, gen, w)
	return nil
}

func (s *Serial) play(ctx context.Context, gen uint64, w Waveform) {
	i := 0
	for {
		if !s.apply(gen, w.Amplitudes[i]) {
			return
		}

		select {
		case <-time.After(time.Duration(w.Timings[i]) * time.Millisecond):
		case <-ctx.Done():
			return
		}

		i++
		if i == len(w.Timings) {
			if w.RepeatIndex < 0 {
				s.apply(gen, 0)
				return
			}
			i = w.RepeatIndex
		}
	}
}

func (s *Serial) apply(gen uint64, amplitude int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return false
	}
	if err := s.send(fmt.Sprintf("set %d", amplitude)); err != nil {
		s.logger.Warn("waveform step failed", zap.Error(err))
		return false
	}
	return true
}

func (s *Serial) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	return s.setLevel(0)
}

func (s *Serial) CreateSpec(duration, intensity float64) (domain.Segment, error) {
	return domain.NewSegment(duration, intensity)
}

func (s *Serial) Close() error {
	if err := s.Cancel(); err != nil {
		s.logger.Warn("motor off on close failed", zap.Error(err))
	}
	return s.port.Close()
}

// stopLocked invalidates any pending off timer or running waveform and
// returns the new generation.
func (s *Serial) stopLocked() uint64 {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	return s.gen
}

func (s *Serial) setLevel(intensity float64) error {
	return s.send(fmt.Sprintf("set %d", Amplitude(intensity)))
}

func (s *Serial) send(cmd string) error {
	if _, err := s.port.Write([]byte(cmd + "\n")); err != nil {
		return fmt.Errorf("%w: write %q: %v", ErrActuatorFailure, cmd, err)
	}
	return nil
}

// seconds saturates instead of overflowing.
func seconds(v float64) time.Duration {
	ns := math.Round(v * float64(time.Second))
	if ns >= math.MaxInt64 {
		return math.MaxInt64
	}
	if !(ns > 0) {
		return 0
	}
	return time.Duration(ns)
}
