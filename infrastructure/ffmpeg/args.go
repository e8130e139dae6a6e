package ffmpeg

import (
	"fmt"
	"strings"
)

// FilterChainBuilder constructs an ffmpeg audio filter string
type FilterChainBuilder struct {
	filters []string
}

func NewFilterChainBuilder() *FilterChainBuilder {
	return &FilterChainBuilder{}
}

func (b *FilterChainBuilder) AddResample(hz int) *FilterChainBuilder {
	b.filters = append(b.filters, fmt.Sprintf("aresample=%d", hz))
	return b
}

func (b *FilterChainBuilder) AddChannelLayout(layout string) *FilterChainBuilder {
	b.filters = append(b.filters, "aformat=channel_layouts="+layout)
	return b
}

func (b *FilterChainBuilder) Build() string {
	return strings.Join(b.filters, ",")
}

func (b *FilterChainBuilder) IsEmpty() bool {
	return len(b.filters) == 0
}

// PCMCodec returns the little-endian signed PCM codec name for bitDepth
func PCMCodec(bitDepth int) (string, error) {
	switch bitDepth {
	case 16, 24, 32:
		return fmt.Sprintf("pcm_s%dle", bitDepth), nil
	default:
		return "", fmt.Errorf("unsupported PCM bit depth: %d", bitDepth)
	}
}

// TranscodeArgs builds the arguments that convert any input into a mono
// PCM WAV at sampleRate.
func TranscodeArgs(input, output string, sampleRate, bitDepth int) ([]string, error) {
	codec, err := PCMCodec(bitDepth)
	if err != nil {
		return nil, err
	}

	fb := NewFilterChainBuilder().
		AddResample(sampleRate).
		AddChannelLayout("mono")

	return []string{
		"-y",
		"-i", input,
		"-vn",
		"-af", fb.Build(),
		"-ac", "1",
		"-ar", fmt.Sprintf("%d", sampleRate),
		"-c:a", codec,
		output,
	}, nil
}
