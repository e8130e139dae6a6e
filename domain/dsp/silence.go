package dsp

import "math"

// Range is a half-open sample interval
type Range struct {
	Start int
	End   int
}

// Len returns the number of samples in the range
func (r Range) Len() int { return r.End - r.Start }

// SilentRanges finds runs of at least minSilence samples whose absolute
// value stays below threshold.
func SilentRanges(x []float64, threshold float64, minSilence int) []Range {
	if minSilence < 1 {
		minSilence = 1
	}
	var out []Range
	start := -1
	for i, v := range x {
		if math.Abs(v) < threshold {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 && i-start >= minSilence {
			out = append(out, Range{Start: start, End: i})
		}
		start = -1
	}
	if start >= 0 && len(x)-start >= minSilence {
		out = append(out, Range{Start: start, End: len(x)})
	}
	return out
}

// NonSilentRanges returns the complement of SilentRanges. A signal whose
// every sample is below threshold has no non-silent range, whatever its
// length.
func NonSilentRanges(x []float64, threshold float64, minSilence int) []Range {
	if len(x) == 0 || Peak(x) < threshold {
		return nil
	}
	var out []Range
	cursor := 0
	for _, s := range SilentRanges(x, threshold, minSilence) {
		if s.Start > cursor {
			out = append(out, Range{Start: cursor, End: s.Start})
		}
		cursor = s.End
	}
	if cursor < len(x) {
		out = append(out, Range{Start: cursor, End: len(x)})
	}
	return out
}

// PadRanges widens each range by keep samples on both sides, clamped to
// [0, length). When two padded ranges would overlap the gap between them
// is split at its midpoint, so no sample is emitted twice.
func PadRanges(ranges []Range, keep, length int) []Range {
	out := make([]Range, len(ranges))
	for i, r := range ranges {
		start := r.Start - keep
		if i == 0 {
			if start < 0 {
				start = 0
			}
		} else if prev := ranges[i-1]; start < prev.End+keep {
			if gap := r.Start - prev.End; gap < 2*keep {
				start = prev.End + gap/2
			}
		}
		end := r.End + keep
		if i == len(ranges)-1 {
			if end > length {
				end = length
			}
		} else if next := ranges[i+1]; end > next.Start-keep {
			if gap := next.Start - r.End; gap < 2*keep {
				end = r.End + gap/2
			}
		}
		out[i] = Range{Start: start, End: end}
	}
	return out
}

// SplitOnSilence returns the non-silent chunks of x, each padded with up
// to keep samples of the surrounding signal. Chunks are copies.
func SplitOnSilence(x []float64, threshold float64, minSilence, keep int) [][]float64 {
	ranges := PadRanges(NonSilentRanges(x, threshold, minSilence), keep, len(x))
	chunks := make([][]float64, 0, len(ranges))
	for _, r := range ranges {
		chunk := make([]float64, r.Len())
		copy(chunk, x[r.Start:r.End])
		chunks = append(chunks, chunk)
	}
	return chunks
}
