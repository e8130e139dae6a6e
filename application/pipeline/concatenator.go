package pipeline

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Skryldev/stem-lab/domain/dsp"
	"github.com/Skryldev/stem-lab/domain/model"
	pkgerrors "github.com/Skryldev/stem-lab/pkg/errors"
	"github.com/Skryldev/stem-lab/pkg/logger"
)

// ConcatOptions controls silence detection during concatenation
type ConcatOptions struct {
	// SilenceThresholdDBFS is the level below which audio counts as silent
	SilenceThresholdDBFS float64
	// MinSilence is the shortest run of silence that is removed
	MinSilence time.Duration
	// KeepSilence is the padding kept on each side of a non-silent chunk
	KeepSilence time.Duration
}

// DefaultConcatOptions returns -40 dBFS, 1 s minimum silence and 100 ms padding
func DefaultConcatOptions() ConcatOptions {
	return ConcatOptions{
		SilenceThresholdDBFS: -40,
		MinSilence:           time.Second,
		KeepSilence:          100 * time.Millisecond,
	}
}

// Concatenator joins stem buffers end to end and removes long silences
type Concatenator struct {
	opts ConcatOptions
	log  *logger.Logger
}

// NewConcatenator creates a concatenator
func NewConcatenator(opts ConcatOptions, log *logger.Logger) *Concatenator {
	if log == nil {
		log = logger.Nop()
	}
	return &Concatenator{opts: opts, log: log}
}

// Concatenate appends buffers in order, splits the result on silence and
// joins the non-silent chunks back together. Inputs are not modified.
func (c *Concatenator) Concatenate(buffers []*model.Buffer) (*model.Buffer, error) {
	if len(buffers) < 2 {
		return nil, pkgerrors.NewInsufficientInputError(len(buffers), 2)
	}

	rate := 0
	total := 0
	for i, b := range buffers {
		if err := b.Validate(); err != nil {
			return nil, pkgerrors.NewIncompatibleBufferError(fmt.Sprintf("buffer %d: %v", i, err))
		}
		if rate == 0 {
			rate = b.SampleRate
		} else if b.SampleRate != rate {
			return nil, pkgerrors.NewIncompatibleBufferError(
				fmt.Sprintf("buffer %d has sample rate %d, expected %d", i, b.SampleRate, rate))
		}
		total += b.Len()
	}

	joined := make([]float64, 0, total)
	for _, b := range buffers {
		joined = append(joined, b.Samples...)
	}

	threshold := dsp.AmplitudeFromDBFS(c.opts.SilenceThresholdDBFS)
	minSilence := model.SamplesFor(c.opts.MinSilence, rate)
	keep := model.SamplesFor(c.opts.KeepSilence, rate)

	chunks := dsp.SplitOnSilence(joined, threshold, minSilence, keep)
	if len(chunks) == 0 {
		return nil, pkgerrors.NewNoAudioContentError(
			fmt.Sprintf("all %d buffers are below %.0f dBFS", len(buffers), c.opts.SilenceThresholdDBFS))
	}

	out := make([]float64, 0, total)
	for _, chunk := range chunks {
		out = append(out, chunk...)
	}

	c.log.Debug("concatenated buffers",
		zap.Int("inputs", len(buffers)),
		zap.Int("chunks", len(chunks)),
		zap.Int("removed_samples", total-len(out)),
	)

	return model.NewBuffer(out, rate), nil
}
