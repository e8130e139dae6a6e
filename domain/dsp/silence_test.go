package dsp_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/Skryldev/stem-lab/domain/dsp"
)

var _ = Describe("Silence scanning", func() {
	const threshold = 0.01

	build := func(parts ...[]float64) []float64 {
		var out []float64
		for _, p := range parts {
			out = append(out, p...)
		}
		return out
	}
	tone := func(n int) []float64 { return sine(440, 0.5, n) }
	quiet := func(n int) []float64 { return make([]float64, n) }

	It("finds no silence in a continuous tone", func() {
		Expect(dsp.NonSilentRanges(tone(1000), threshold, 100)).To(Equal([]dsp.Range{{Start: 0, End: 1000}}))
	})

	It("ignores gaps shorter than the minimum", func() {
		x := build(tone(1000), quiet(50), tone(1000))
		Expect(dsp.NonSilentRanges(x, threshold, 100)).To(HaveLen(1))
	})

	It("splits around a long gap", func() {
		x := build(tone(1000), quiet(500), tone(1000))
		ranges := dsp.NonSilentRanges(x, threshold, 100)
		Expect(ranges).To(HaveLen(2))
		Expect(ranges[0].Start).To(Equal(0))
		Expect(ranges[1].End).To(Equal(2500))
		Expect(ranges[1].Start - ranges[0].End).To(BeNumerically(">=", 500))
	})

	It("reports nothing for an all-quiet signal of any length", func() {
		Expect(dsp.NonSilentRanges(quiet(10), threshold, 100)).To(BeEmpty())
		Expect(dsp.NonSilentRanges(quiet(1000), threshold, 100)).To(BeEmpty())
		Expect(dsp.NonSilentRanges(nil, threshold, 100)).To(BeEmpty())
	})

	Describe("PadRanges", func() {
		It("clamps to the signal bounds", func() {
			padded := dsp.PadRanges([]dsp.Range{{Start: 5, End: 95}}, 10, 100)
			Expect(padded).To(Equal([]dsp.Range{{Start: 0, End: 100}}))
		})

		It("splits a short gap between neighbours", func() {
			padded := dsp.PadRanges([]dsp.Range{{Start: 0, End: 100}, {Start: 110, End: 200}}, 10, 200)
			Expect(padded[0].End).To(Equal(105))
			Expect(padded[1].Start).To(Equal(105))
		})

		It("pads fully when the gap allows", func() {
			padded := dsp.PadRanges([]dsp.Range{{Start: 0, End: 100}, {Start: 200, End: 300}}, 10, 400)
			Expect(padded).To(Equal([]dsp.Range{{Start: 0, End: 110}, {Start: 190, End: 310}}))
		})
	})

	It("keeps padding of the surrounding signal in each chunk", func() {
		x := build(quiet(300), tone(1000), quiet(500), tone(1000), quiet(300))
		chunks := dsp.SplitOnSilence(x, threshold, 100, 50)
		Expect(chunks).To(HaveLen(2))
		for _, c := range chunks {
			Expect(len(c)).To(BeNumerically("~", 1100, 2))
		}
	})
})
