package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/hajimehoshi/ebiten/v2/audio/wav"
)

// LoadAsset decodes the WAV at path, resampled to sampleRate, and mixes it
// down to mono samples in [-1, 1).
func LoadAsset(sampleRate int, path string) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open asset: %w", err)
	}
	defer f.Close()

	stream, err := wav.DecodeWithSampleRate(sampleRate, f)
	if err != nil {
		return nil, fmt.Errorf("decode asset %s: %w", path, err)
	}
	pcm, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("read asset %s: %w", path, err)
	}

	samples := mixDown(pcm)
	if len(samples) == 0 {
		return nil, fmt.Errorf("asset %s is empty", path)
	}
	return samples, nil
}

// mixDown averages the channels of 16-bit little endian stereo frames.
// A trailing partial frame is dropped.
func mixDown(pcm []byte) []float32 {
	samples := make([]float32, 0, len(pcm)/bytesPerFrame)
	for len(pcm) >= bytesPerFrame {
		l := int16(binary.LittleEndian.Uint16(pcm))
		r := int16(binary.LittleEndian.Uint16(pcm[2:]))
		samples = append(samples, float32(int32(l)+int32(r))/65536)
		pcm = pcm[bytesPerFrame:]
	}
	return samples
}

// Tone synthesizes a whole number of sine cycles close to hz so the buffer
// loops without a seam.
func Tone(sampleRate int, hz float64) []float32 {
	if hz <= 0 || sampleRate <= 0 {
		return nil
	}
	cycles := math.Max(1, math.Round(hz))
	n := sampleRate
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(0.8 * math.Sin(2*math.Pi*cycles*float64(i)/float64(n)))
	}
	return samples
}
