// Package dsp holds the whole-buffer signal processing used by the
// pipeline: IIR filter design and application, spectral gating, silence
// scanning and level helpers. Nothing here touches the filesystem.
package dsp

import (
	"fmt"
	"math"
	"math/cmplx"
	"sort"
)

// FilterKind selects the response shape of a Butterworth design
type FilterKind int

const (
	LowPass FilterKind = iota
	HighPass
	BandPass
)

func (k FilterKind) String() string {
	switch k {
	case LowPass:
		return "lowpass"
	case HighPass:
		return "highpass"
	case BandPass:
		return "bandpass"
	default:
		return "unknown"
	}
}

// Butterworth designs a digital Butterworth filter as second-order sections.
// Cutoffs are in Hz and are pre-warped against sampleRate, so the -3 dB
// points land on the requested frequencies at any rate. BandPass takes two
// cutoffs and doubles the order, like the analog band transform does.
func Butterworth(order int, kind FilterKind, sampleRate float64, cutoffs ...float64) (SOS, error) {
	if order < 1 {
		return nil, fmt.Errorf("filter order must be >= 1, got %d", order)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %g", sampleRate)
	}
	nyquist := sampleRate / 2
	want := 1
	if kind == BandPass {
		want = 2
	}
	if len(cutoffs) != want {
		return nil, fmt.Errorf("%s needs %d cutoff(s), got %d", kind, want, len(cutoffs))
	}
	for _, fc := range cutoffs {
		if fc <= 0 || fc >= nyquist {
			return nil, fmt.Errorf("cutoff %g Hz outside (0, %g) for rate %g", fc, nyquist, sampleRate)
		}
	}
	if kind == BandPass && cutoffs[0] >= cutoffs[1] {
		return nil, fmt.Errorf("band edges must be increasing, got %g..%g", cutoffs[0], cutoffs[1])
	}

	warp := func(f float64) float64 { return 2 * sampleRate * math.Tan(math.Pi*f/sampleRate) }

	poles := analogPrototype(order)
	var zeros []complex128
	gain := 1.0

	switch kind {
	case LowPass:
		wo := warp(cutoffs[0])
		for i := range poles {
			poles[i] *= complex(wo, 0)
		}
		gain = math.Pow(wo, float64(order))
	case HighPass:
		wo := warp(cutoffs[0])
		prod := complex(1, 0)
		for _, p := range poles {
			prod *= -p
		}
		gain = 1 / real(prod)
		for i := range poles {
			poles[i] = complex(wo, 0) / poles[i]
		}
		zeros = make([]complex128, order)
	case BandPass:
		lo, hi := warp(cutoffs[0]), warp(cutoffs[1])
		wo := math.Sqrt(lo * hi)
		bw := hi - lo
		shifted := make([]complex128, 0, 2*order)
		var mirrored []complex128
		for _, p := range poles {
			lp := p * complex(bw/2, 0)
			root := cmplx.Sqrt(lp*lp - complex(wo*wo, 0))
			shifted = append(shifted, lp+root)
			mirrored = append(mirrored, lp-root)
		}
		poles = append(shifted, mirrored...)
		zeros = make([]complex128, order)
		gain = math.Pow(bw, float64(order))
	default:
		return nil, fmt.Errorf("unsupported filter kind %d", kind)
	}

	dz, dp, dk := bilinear(zeros, poles, gain, sampleRate)
	return zpkToSOS(dz, dp, dk), nil
}

// analogPrototype returns the poles of the unit-cutoff analog Butterworth
// lowpass of the given order.
func analogPrototype(order int) []complex128 {
	poles := make([]complex128, 0, order)
	for m := -order + 1; m < order; m += 2 {
		theta := math.Pi * float64(m) / float64(2*order)
		poles = append(poles, -cmplx.Exp(complex(0, theta)))
	}
	return poles
}

func bilinear(zeros, poles []complex128, gain, sampleRate float64) ([]complex128, []complex128, float64) {
	fs2 := complex(2*sampleRate, 0)
	num, den := complex(1, 0), complex(1, 0)
	dz := make([]complex128, 0, len(poles))
	for _, z := range zeros {
		num *= fs2 - z
		dz = append(dz, (fs2+z)/(fs2-z))
	}
	dp := make([]complex128, 0, len(poles))
	for _, p := range poles {
		den *= fs2 - p
		dp = append(dp, (fs2+p)/(fs2-p))
	}
	// zeros at analog infinity map to Nyquist
	for len(dz) < len(dp) {
		dz = append(dz, complex(-1, 0))
	}
	return dz, dp, gain * real(num/den)
}

const pairTolerance = 1e-12

// zpkToSOS groups conjugate pole pairs into biquads. Butterworth zeros are
// always real, so they are paired in sorted order.
func zpkToSOS(zeros, poles []complex128, gain float64) SOS {
	var pairs [][2]complex128
	var reals []complex128
	for _, p := range poles {
		switch {
		case imag(p) > pairTolerance:
			pairs = append(pairs, [2]complex128{p, cmplx.Conj(p)})
		case math.Abs(imag(p)) <= pairTolerance:
			reals = append(reals, complex(real(p), 0))
		}
	}
	for i := 0; i < len(reals); i += 2 {
		if i+1 < len(reals) {
			pairs = append(pairs, [2]complex128{reals[i], reals[i+1]})
		} else {
			pairs = append(pairs, [2]complex128{reals[i], 0})
		}
	}

	zr := make([]float64, len(zeros))
	for i, z := range zeros {
		zr[i] = real(z)
	}
	sort.Float64s(zr)

	sos := make(SOS, len(pairs))
	for i, pair := range pairs {
		a := quadratic(pair[0], pair[1])
		var b [3]float64
		switch {
		case 2*i+1 < len(zr):
			b = quadratic(complex(zr[2*i], 0), complex(zr[2*i+1], 0))
		case 2*i < len(zr):
			b = [3]float64{1, -zr[2*i], 0}
		default:
			b = [3]float64{1, 0, 0}
		}
		sos[i] = Section{B: b, A: a}
	}
	if len(sos) > 0 {
		for j := range sos[0].B {
			sos[0].B[j] *= gain
		}
	}
	return sos
}

// quadratic expands (x - r1)(x - r2) into real coefficients
func quadratic(r1, r2 complex128) [3]float64 {
	return [3]float64{1, -real(r1 + r2), real(r1 * r2)}
}
