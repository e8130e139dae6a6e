package model

import (
	"fmt"
	"time"
)

// CanonicalSampleRate is the rate every buffer is converted to on ingestion.
const CanonicalSampleRate = 44100

// Output bit depths
const (
	DefaultBitDepth = 16
	FinalBitDepth   = 24
)

// Buffer is a mono block of float samples in [-1, 1].
// Stages never mutate a buffer they did not allocate; they return a new one.
type Buffer struct {
	Samples    []float64
	SampleRate int
	Channels   int
}

// NewBuffer wraps samples in a mono buffer at sampleRate
func NewBuffer(samples []float64, sampleRate int) *Buffer {
	return &Buffer{Samples: samples, SampleRate: sampleRate, Channels: 1}
}

// Len returns the number of samples
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Samples)
}

// Duration returns the playback length of the buffer
func (b *Buffer) Duration() time.Duration {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(b.Samples)) / float64(b.SampleRate) * float64(time.Second))
}

// Clone returns a deep copy
func (b *Buffer) Clone() *Buffer {
	out := make([]float64, len(b.Samples))
	copy(out, b.Samples)
	return &Buffer{Samples: out, SampleRate: b.SampleRate, Channels: b.Channels}
}

// Validate checks the structural invariants of the buffer
func (b *Buffer) Validate() error {
	if b == nil {
		return fmt.Errorf("buffer is nil")
	}
	if b.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", b.SampleRate)
	}
	if b.Channels != 1 {
		return fmt.Errorf("buffer must be mono, got %d channels", b.Channels)
	}
	return nil
}

// SamplesFor converts a duration to a sample count at rate
func SamplesFor(d time.Duration, rate int) int {
	return int(d.Seconds() * float64(rate))
}

// AudioMetadata holds metadata of an audio file
type AudioMetadata struct {
	Duration   time.Duration
	SampleRate int
	Channels   int
	Bitrate    int
	Codec      string
	Format     string
	Size       int64
}
