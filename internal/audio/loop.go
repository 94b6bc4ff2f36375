package audio

import (
	"math"
	"sync"
	"time"
)

const (
	SampleRate    = 48000
	bytesPerFrame = 4 // stereo, signed 16-bit little endian
)

// Loop is an endless PCM stream over a sample buffer. Its gain approaches
// the current target exponentially, one step per frame, so retargeting
// never produces an audible click.
type Loop struct {
	mu      sync.Mutex
	samples []float32
	pos     int
	gain    float64
	target  float64
	alpha   float64
}

// NewLoop builds a loop whose gain settles with time constant smoothing.
func NewLoop(samples []float32, sampleRate int, smoothing time.Duration) *Loop {
	return &Loop{
		samples: samples,
		alpha:   smoothingAlpha(sampleRate, smoothing),
	}
}

func smoothingAlpha(sampleRate int, smoothing time.Duration) float64 {
	if smoothing <= 0 || sampleRate <= 0 {
		return 1
	}
	return 1 - math.Exp(-1/(smoothing.Seconds()*float64(sampleRate)))
}

func (l *Loop) SetTarget(gain float64) {
	if gain < 0 {
		gain = 0
	} else if gain > 1 {
		gain = 1
	}
	l.mu.Lock()
	l.target = gain
	l.mu.Unlock()
}

func (l *Loop) Target() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.target
}

func (l *Loop) Gain() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.gain
}

func (l *Loop) Read(p []byte) (int, error) {
	frameBytes := len(p) - len(p)%bytesPerFrame
	if frameBytes == 0 {
		return 0, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for i := 0; i < frameBytes; i += bytesPerFrame {
		l.gain += l.alpha * (l.target - l.gain)

		var sample float32
		if len(l.samples) > 0 {
			sample = l.samples[l.pos]
			l.pos++
			if l.pos >= len(l.samples) {
				l.pos = 0
			}
		}

		v := int16(clamp(float64(sample)*l.gain) * 32767)
		p[i] = byte(v)
		p[i+1] = byte(v >> 8)
		p[i+2] = p[i]
		p[i+3] = p[i+1]
	}
	return frameBytes, nil
}

func clamp(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
