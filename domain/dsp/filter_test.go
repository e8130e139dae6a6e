package dsp_test

import (
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/Skryldev/stem-lab/domain/dsp"
)

var _ = Describe("Filtering", func() {
	var (
		sos    dsp.SOS
		signal []float64
	)

	BeforeEach(func() {
		var err error
		sos, err = dsp.Butterworth(2, dsp.BandPass, rate, 200, 8000)
		Expect(err).NotTo(HaveOccurred())

		rng := rand.New(rand.NewSource(7))
		signal = make([]float64, 10000)
		for i := range signal {
			signal[i] = rng.Float64()*2 - 1
		}
	})

	Describe("Cascade", func() {
		It("produces the same output block by block as in one pass", func() {
			whole := dsp.Filter(sos, signal)

			cascade := dsp.NewCascade(sos)
			var blocks []float64
			for start := 0; start < len(signal); start += 333 {
				end := min(start+333, len(signal))
				blocks = append(blocks, cascade.Process(signal[start:end])...)
			}

			Expect(blocks).To(HaveLen(len(whole)))
			for i := range whole {
				Expect(blocks[i]).To(BeNumerically("~", whole[i], 1e-12))
			}
		})

		It("starts over after Reset", func() {
			cascade := dsp.NewCascade(sos)
			first := cascade.Process(signal[:512])
			cascade.Reset()
			second := cascade.Process(signal[:512])
			Expect(second).To(Equal(first))
		})

		It("does not modify its input", func() {
			original := append([]float64(nil), signal...)
			dsp.NewCascade(sos).Process(signal)
			Expect(signal).To(Equal(original))
		})
	})

	Describe("FiltFilt", func() {
		It("keeps the input length", func() {
			Expect(dsp.FiltFilt(sos, signal)).To(HaveLen(len(signal)))
			Expect(dsp.FiltFilt(sos, signal[:5])).To(HaveLen(5))
			Expect(dsp.FiltFilt(sos, nil)).To(BeEmpty())
		})

		It("passes an in-band sine without phase shift", func() {
			in := sine(1000, 0.5, int(rate))
			out := dsp.FiltFilt(sos, in)
			for i := len(in) / 4; i < 3*len(in)/4; i++ {
				Expect(out[i]).To(BeNumerically("~", in[i], 0.01))
			}
		})

		It("settles immediately on a constant signal through a high-pass", func() {
			hp, err := dsp.Butterworth(2, dsp.HighPass, rate, 4000)
			Expect(err).NotTo(HaveOccurred())
			dc := make([]float64, 2048)
			for i := range dc {
				dc[i] = 0.3
			}
			for _, v := range dsp.FiltFilt(hp, dc) {
				Expect(v).To(BeNumerically("~", 0, 1e-9))
			}
		})
	})
})
