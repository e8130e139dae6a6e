package pipeline

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Skryldev/stem-lab/domain/dsp"
	"github.com/Skryldev/stem-lab/domain/model"
	pkgerrors "github.com/Skryldev/stem-lab/pkg/errors"
	"github.com/Skryldev/stem-lab/pkg/logger"
)

// Filter layout of the enhancement chain
const (
	bodyLowCutoff  = 200.0
	bodyHighCutoff = 8000.0
	presenceCutoff = 4000.0
	filterOrder    = 2

	presenceGain = 0.2
	outputCeil   = 0.95
)

// Enhancer runs noise gating, band shaping and normalization over a buffer
type Enhancer struct {
	log *logger.Logger
}

// NewEnhancer creates an enhancer
func NewEnhancer(log *logger.Logger) *Enhancer {
	if log == nil {
		log = logger.Nop()
	}
	return &Enhancer{log: log}
}

// Enhance returns a new buffer of the same length as buf. Parameters are
// used as given; range clamping happens where options are built.
func (e *Enhancer) Enhance(buf *model.Buffer, params model.EnhancementParameters) (*model.Buffer, error) {
	if buf.Len() == 0 {
		return nil, pkgerrors.NewEnhancementError("input buffer is empty", nil)
	}
	if err := buf.Validate(); err != nil {
		return nil, pkgerrors.NewEnhancementError("invalid input buffer", err)
	}

	rate := float64(buf.SampleRate)
	body, err := dsp.Butterworth(filterOrder, dsp.BandPass, rate, bodyLowCutoff, bodyHighCutoff)
	if err != nil {
		return nil, pkgerrors.NewEnhancementError(fmt.Sprintf("body filter at %d Hz", buf.SampleRate), err)
	}
	presence, err := dsp.Butterworth(filterOrder, dsp.HighPass, rate, presenceCutoff)
	if err != nil {
		return nil, pkgerrors.NewEnhancementError(fmt.Sprintf("presence filter at %d Hz", buf.SampleRate), err)
	}

	denoised, err := dsp.SpectralGate(buf.Samples, buf.SampleRate, dsp.DefaultGateConfig(params.EchoReduction))
	if err != nil {
		return nil, pkgerrors.NewEnhancementError("noise reduction", err)
	}

	shaped := dsp.FiltFilt(body, denoised)
	air := dsp.Scale(dsp.FiltFilt(presence, denoised), presenceGain*params.Presence)
	mixed := dsp.Add(shaped, air)

	peak := dsp.Peak(mixed)
	if peak == 0 {
		e.log.Warn("enhanced signal is silent, skipping normalization",
			zap.Int("samples", len(mixed)),
		)
		return model.NewBuffer(mixed, buf.SampleRate), nil
	}

	e.log.Debug("enhanced buffer",
		zap.Float64("echo_reduction", params.EchoReduction),
		zap.Float64("presence", params.Presence),
		zap.Float64("pre_normalize_peak", peak),
	)

	return model.NewBuffer(dsp.Normalize(mixed, outputCeil), buf.SampleRate), nil
}
