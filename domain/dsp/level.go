package dsp

import "math"

// AmplitudeFromDBFS converts a dBFS level to a linear amplitude
func AmplitudeFromDBFS(db float64) float64 {
	return math.Pow(10, db/20)
}

// DBFS converts a linear amplitude to dBFS; zero maps to -Inf
func DBFS(amplitude float64) float64 {
	if amplitude <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(amplitude)
}

// Peak returns the largest absolute sample value
func Peak(x []float64) float64 {
	var peak float64
	for _, v := range x {
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	return peak
}

// Energy returns the sum of squared samples
func Energy(x []float64) float64 {
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return sum
}

// RMS returns the root mean square level
func RMS(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return math.Sqrt(Energy(x) / float64(len(x)))
}

// Normalize scales x so its peak equals ceiling. A silent signal is
// returned unchanged since it has no peak to scale.
func Normalize(x []float64, ceiling float64) []float64 {
	out := make([]float64, len(x))
	peak := Peak(x)
	if peak == 0 {
		copy(out, x)
		return out
	}
	gain := ceiling / peak
	for i, v := range x {
		out[i] = v * gain
	}
	return out
}

// Scale returns x multiplied by gain
func Scale(x []float64, gain float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = v * gain
	}
	return out
}

// Add returns the element-wise sum of equal-length signals
func Add(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] + b[i]
	}
	return out
}
