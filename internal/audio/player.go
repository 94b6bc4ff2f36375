package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"go.uber.org/zap"
)

const (
	DefaultSmoothing = 15 * time.Millisecond
	DefaultToneHz    = 180.0
	bufferDuration   = 50 * time.Millisecond
)

type Options struct {
	// AssetPath is a WAV file to loop. When empty a sine tone is used.
	AssetPath string
	ToneHz    float64
	Smoothing time.Duration
}

// Accompaniment plays the looping accompaniment sound through the system
// audio device. Only one may exist per process.
type Accompaniment struct {
	mu      sync.Mutex
	ctx     *oto.Context
	player  *oto.Player
	loop    *Loop
	logger  *zap.Logger
	started bool
}

func NewAccompaniment(opts Options, logger *zap.Logger) (*Accompaniment, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Smoothing <= 0 {
		opts.Smoothing = DefaultSmoothing
	}
	if opts.ToneHz <= 0 {
		opts.ToneHz = DefaultToneHz
	}

	var samples []float32
	if opts.AssetPath != "" {
		s, err := LoadAsset(SampleRate, opts.AssetPath)
		if err != nil {
			return nil, fmt.Errorf("load accompaniment asset: %w", err)
		}
		samples = s
	} else {
		samples = Tone(SampleRate, opts.ToneHz)
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   SampleRate,
		ChannelCount: 2,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   bufferDuration,
	})
	if err != nil {
		return nil, fmt.Errorf("open audio device: %w", err)
	}
	<-ready

	loop := NewLoop(samples, SampleRate, opts.Smoothing)
	logger.Info("accompaniment ready",
		zap.String("asset", opts.AssetPath),
		zap.Int("samples", len(samples)),
		zap.Duration("smoothing", opts.Smoothing),
	)

	return &Accompaniment{
		ctx:    ctx,
		player: ctx.NewPlayer(loop),
		loop:   loop,
		logger: logger,
	}, nil
}

// Start begins the looping source at zero gain. Further calls are no-ops.
func (a *Accompaniment) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return nil
	}
	if err := a.ctx.Err(); err != nil {
		return fmt.Errorf("audio device: %w", err)
	}
	a.player.Play()
	a.started = true
	return nil
}

// RampTo retargets the gain; the loop approaches it exponentially.
func (a *Accompaniment) RampTo(gain float64) {
	a.loop.SetTarget(gain)
}

func (a *Accompaniment) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.loop.SetTarget(0)
	a.started = false
	return a.player.Close()
}
