package dsp

import (
	"math"
	"math/cmplx"
)

// Section is one biquad with a[0] normalized to 1
type Section struct {
	B [3]float64
	A [3]float64
}

// SOS is a cascade of second-order sections
type SOS []Section

// Response returns the magnitude response at freq Hz for sampleRate
func (s SOS) Response(freq, sampleRate float64) float64 {
	w := 2 * math.Pi * freq / sampleRate
	z1 := cmplx.Exp(complex(0, -w))
	z2 := z1 * z1
	h := complex(1, 0)
	for _, sec := range s {
		num := complex(sec.B[0], 0) + complex(sec.B[1], 0)*z1 + complex(sec.B[2], 0)*z2
		den := complex(sec.A[0], 0) + complex(sec.A[1], 0)*z1 + complex(sec.A[2], 0)*z2
		h *= num / den
	}
	return cmplx.Abs(h)
}

// steadyState returns the per-section delay line for a unit step input,
// scaled through the cascade's DC gain.
func (s SOS) steadyState() [][2]float64 {
	zi := make([][2]float64, len(s))
	scale := 1.0
	for i, sec := range s {
		sumB := sec.B[0] + sec.B[1] + sec.B[2]
		sumA := sec.A[0] + sec.A[1] + sec.A[2]
		dc := sumB / sumA
		zi[i] = [2]float64{(dc - sec.B[0]) * scale, (sec.B[2] - sec.A[2]*dc) * scale}
		scale *= dc
	}
	return zi
}

// Cascade applies an SOS causally and keeps its delay line between calls,
// so feeding a signal block by block gives the same output as one call.
type Cascade struct {
	sos   SOS
	state [][2]float64
}

// NewCascade returns a filter with a zeroed delay line
func NewCascade(sos SOS) *Cascade {
	return &Cascade{sos: sos, state: make([][2]float64, len(sos))}
}

// Reset zeroes the delay line
func (c *Cascade) Reset() {
	for i := range c.state {
		c.state[i] = [2]float64{}
	}
}

// Prime loads the steady-state delay line for a constant input of value x0
func (c *Cascade) Prime(x0 float64) {
	zi := c.sos.steadyState()
	for i := range c.state {
		c.state[i] = [2]float64{zi[i][0] * x0, zi[i][1] * x0}
	}
}

// Process filters block and returns a new slice of the same length
func (c *Cascade) Process(block []float64) []float64 {
	out := make([]float64, len(block))
	copy(out, block)
	for i, sec := range c.sos {
		z := c.state[i]
		for n, x := range out {
			y := sec.B[0]*x + z[0]
			z[0] = sec.B[1]*x - sec.A[1]*y + z[1]
			z[1] = sec.B[2]*x - sec.A[2]*y
			out[n] = y
		}
		c.state[i] = z
	}
	return out
}

// Filter applies sos causally from a zero state
func Filter(sos SOS, x []float64) []float64 {
	return NewCascade(sos).Process(x)
}

// FiltFilt applies sos forward and then backward so the phase response
// cancels. The signal is extended by odd reflection at both ends and each
// pass starts from the steady state of its first sample, which keeps the
// edges free of start-up transients. Output length equals input length.
func FiltFilt(sos SOS, x []float64) []float64 {
	n := len(x)
	if n == 0 || len(sos) == 0 {
		out := make([]float64, n)
		copy(out, x)
		return out
	}

	padlen := 3 * (2*len(sos) + 1)
	if padlen > n-1 {
		padlen = n - 1
	}

	ext := make([]float64, 0, n+2*padlen)
	for i := padlen; i >= 1; i-- {
		ext = append(ext, 2*x[0]-x[i])
	}
	ext = append(ext, x...)
	for i := n - 2; i >= n-1-padlen; i-- {
		ext = append(ext, 2*x[n-1]-x[i])
	}

	c := NewCascade(sos)
	c.Prime(ext[0])
	y := c.Process(ext)

	reverse(y)
	c.Prime(y[0])
	y = c.Process(y)
	reverse(y)

	out := make([]float64, n)
	copy(out, y[padlen:padlen+n])
	return out
}

func reverse(x []float64) {
	for i, j := 0, len(x)-1; i < j; i, j = i+1, j-1 {
		x[i], x[j] = x[j], x[i]
	}
}
