package dsp

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// GateConfig tunes the non-stationary spectral gate
type GateConfig struct {
	// WindowSize is the STFT frame length in samples
	WindowSize int
	// HopSize is the distance between frame starts
	HopSize int
	// ThresholdStd is how many standard deviations above the running mean a
	// bin must sit to count as signal
	ThresholdStd float64
	// TimeConstant is the memory of the running estimate, in seconds
	TimeConstant float64
	// Reduction is the fraction of amplitude removed from gated bins
	Reduction float64
	// SmoothBins and SmoothFrames are the mask smoothing radius
	SmoothBins   int
	SmoothFrames int
}

// DefaultGateConfig returns the gate used by the enhancement stage with the
// given reduction.
func DefaultGateConfig(reduction float64) GateConfig {
	return GateConfig{
		WindowSize:   2048,
		HopSize:      512,
		ThresholdStd: 1.2,
		TimeConstant: 2.0,
		Reduction:    reduction,
		SmoothBins:   1,
		SmoothFrames: 1,
	}
}

func (c GateConfig) validate() error {
	switch {
	case c.WindowSize < 4 || c.WindowSize%2 != 0:
		return fmt.Errorf("window size must be even and >= 4, got %d", c.WindowSize)
	case c.HopSize < 1 || c.HopSize > c.WindowSize/2:
		return fmt.Errorf("hop size must be in [1, %d], got %d", c.WindowSize/2, c.HopSize)
	case c.TimeConstant <= 0:
		return fmt.Errorf("time constant must be positive, got %g", c.TimeConstant)
	case c.Reduction < 0 || c.Reduction > 1:
		return fmt.Errorf("reduction must be in [0, 1], got %g", c.Reduction)
	case c.SmoothBins < 0 || c.SmoothFrames < 0:
		return fmt.Errorf("smoothing radius must not be negative")
	}
	return nil
}

// SpectralGate attenuates time-frequency bins that do not rise above a
// trailing per-bin estimate of the noise floor. Gated bins keep
// (1 - Reduction) of their amplitude. The result has the length of x.
func SpectralGate(x []float64, sampleRate int, cfg GateConfig) ([]float64, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	if len(x) == 0 {
		return []float64{}, nil
	}
	return newGate(x, sampleRate, cfg).run(), nil
}

// amplitude floor for the dB conversion, about -200 dB
const magnitudeFloor = 1e-10

type gateFrame struct {
	index  int
	coeffs []complex128
	mask   []float64
}

type gate struct {
	cfg        GateConfig
	sampleRate int
	length     int
	n          int
	hop        int
	frames     int
	padded     []float64
	window     []float64
	fft        *fourier.FFT
	frame      []float64

	alpha    float64
	mean     []float64
	variance []float64

	out  []float64
	norm []float64
}

func newGate(x []float64, sampleRate int, cfg GateConfig) *gate {
	n, hop := cfg.WindowSize, cfg.HopSize
	frames := 1 + (len(x)+hop-1)/hop
	padded := make([]float64, (frames-1)*hop+n)
	copy(padded[n/2:], x)

	window := make([]float64, n)
	for i := range window {
		window[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}

	bins := n/2 + 1
	return &gate{
		cfg:        cfg,
		sampleRate: sampleRate,
		length:     len(x),
		n:          n,
		hop:        hop,
		frames:     frames,
		padded:     padded,
		window:     window,
		fft:        fourier.NewFFT(n),
		frame:      make([]float64, n),
		alpha:      math.Exp(-float64(hop) / (cfg.TimeConstant * float64(sampleRate))),
		mean:       make([]float64, bins),
		variance:   make([]float64, bins),
		out:        make([]float64, len(padded)),
		norm:       make([]float64, len(padded)),
	}
}

func (g *gate) spectrum(t int) []complex128 {
	start := t * g.hop
	for k := range g.frame {
		g.frame[k] = g.padded[start+k] * g.window[k]
	}
	return g.fft.Coefficients(nil, g.frame)
}

func decibels(c complex128) float64 {
	return 20 * math.Log10(cmplx.Abs(c)+magnitudeFloor)
}

// prime seeds the running statistics from the opening frames so the first
// frames are judged against something other than silence.
func (g *gate) prime() {
	count := int(math.Ceil(g.cfg.TimeConstant * float64(g.sampleRate) / float64(g.hop)))
	if count > g.frames {
		count = g.frames
	}
	if count < 1 {
		count = 1
	}
	sq := make([]float64, len(g.mean))
	for t := 0; t < count; t++ {
		for b, c := range g.spectrum(t) {
			db := decibels(c)
			g.mean[b] += db
			sq[b] += db * db
		}
	}
	for b := range g.mean {
		g.mean[b] /= float64(count)
		v := sq[b]/float64(count) - g.mean[b]*g.mean[b]
		if v < 0 {
			v = 0
		}
		g.variance[b] = v
	}
}

// analyze transforms frame t and marks which bins stand out from the
// running estimate, then folds the frame into the estimate.
func (g *gate) analyze(t int) *gateFrame {
	coeffs := g.spectrum(t)
	mask := make([]float64, len(coeffs))
	for b, c := range coeffs {
		db := decibels(c)
		if db > g.mean[b]+g.cfg.ThresholdStd*math.Sqrt(g.variance[b]) {
			mask[b] = 1
		}
		diff := db - g.mean[b]
		g.mean[b] += (1 - g.alpha) * diff
		g.variance[b] = g.alpha * (g.variance[b] + (1-g.alpha)*diff*diff)
	}
	return &gateFrame{index: t, coeffs: coeffs, mask: mask}
}

// synthesize applies the smoothed mask to the centre frame of neighbours
// and overlap-adds it into the output.
func (g *gate) synthesize(centre *gateFrame, neighbours []*gateFrame) {
	r := g.cfg.Reduction
	bins := len(centre.coeffs)
	for b := range centre.coeffs {
		var sum float64
		var count int
		for _, f := range neighbours {
			for k := b - g.cfg.SmoothBins; k <= b+g.cfg.SmoothBins; k++ {
				if k < 0 || k >= bins {
					continue
				}
				sum += f.mask[k]
				count++
			}
		}
		gain := (1 - r) + r*sum/float64(count)
		centre.coeffs[b] *= complex(gain, 0)
	}

	seq := g.fft.Sequence(g.frame, centre.coeffs)
	start := centre.index * g.hop
	scale := 1 / float64(g.n)
	for k, v := range seq {
		w := g.window[k]
		g.out[start+k] += v * scale * w
		g.norm[start+k] += w * w
	}
}

func (g *gate) run() []float64 {
	g.prime()
	look := g.cfg.SmoothFrames
	var pending []*gateFrame
	emit := func(c int) {
		var neighbours []*gateFrame
		var centre *gateFrame
		for _, f := range pending {
			if f.index >= c-look && f.index <= c+look {
				neighbours = append(neighbours, f)
			}
			if f.index == c {
				centre = f
			}
		}
		g.synthesize(centre, neighbours)
	}

	for t := 0; t < g.frames; t++ {
		pending = append(pending, g.analyze(t))
		if c := t - look; c >= 0 {
			emit(c)
			for len(pending) > 0 && pending[0].index < c+1-look {
				pending = pending[1:]
			}
		}
	}
	for c := g.frames - look; c < g.frames; c++ {
		if c >= 0 {
			emit(c)
		}
	}

	half := g.n / 2
	result := make([]float64, g.length)
	for i := range result {
		if g.norm[half+i] > 1e-12 {
			result[i] = g.out[half+i] / g.norm[half+i]
		}
	}
	return result
}
