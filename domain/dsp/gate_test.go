package dsp_test

import (
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/Skryldev/stem-lab/domain/dsp"
)

var _ = Describe("SpectralGate", func() {
	var noise []float64

	BeforeEach(func() {
		rng := rand.New(rand.NewSource(42))
		noise = make([]float64, int(rate))
		for i := range noise {
			noise[i] = 0.1 * rng.NormFloat64()
		}
	})

	It("reconstructs the input when nothing is removed", func() {
		out, err := dsp.SpectralGate(noise, int(rate), dsp.DefaultGateConfig(0))
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(HaveLen(len(noise)))
		for i := range noise {
			Expect(out[i]).To(BeNumerically("~", noise[i], 1e-9))
		}
	})

	It("keeps the length of short inputs", func() {
		out, err := dsp.SpectralGate(noise[:300], int(rate), dsp.DefaultGateConfig(0.9))
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(HaveLen(300))

		out, err = dsp.SpectralGate(nil, int(rate), dsp.DefaultGateConfig(0.9))
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(BeEmpty())
	})

	It("attenuates stationary noise", func() {
		out, err := dsp.SpectralGate(noise, int(rate), dsp.DefaultGateConfig(0.9))
		Expect(err).NotTo(HaveOccurred())
		Expect(dsp.RMS(out)).To(BeNumerically("<", 0.5*dsp.RMS(noise)))
	})

	It("removes more with a stronger reduction", func() {
		weak, err := dsp.SpectralGate(noise, int(rate), dsp.DefaultGateConfig(0.7))
		Expect(err).NotTo(HaveOccurred())
		strong, err := dsp.SpectralGate(noise, int(rate), dsp.DefaultGateConfig(0.95))
		Expect(err).NotTo(HaveOccurred())
		Expect(dsp.Energy(strong)).To(BeNumerically("<", dsp.Energy(weak)))
	})

	It("follows a noise floor that steps up", func() {
		rng := rand.New(rand.NewSource(7))
		sr := int(rate)
		stepped := make([]float64, 12*sr)
		for i := range stepped {
			sigma := 0.005
			if i >= 4*sr {
				sigma = 0.05
			}
			stepped[i] = sigma * rng.NormFloat64()
		}

		out, err := dsp.SpectralGate(stepped, sr, dsp.DefaultGateConfig(0.9))
		Expect(err).NotTo(HaveOccurred())

		gain := func(from, to float64) float64 {
			a, b := int(from*rate), int(to*rate)
			return dsp.RMS(out[a:b]) / dsp.RMS(stepped[a:b])
		}
		Expect(gain(2, 4)).To(BeNumerically("<", 0.4))
		Expect(gain(10, 12)).To(BeNumerically("<", 0.4))
		Expect(gain(4, 4.25)).To(BeNumerically(">", gain(10, 12)))
	})

	It("does not modify its input", func() {
		original := append([]float64(nil), noise...)
		_, err := dsp.SpectralGate(noise, int(rate), dsp.DefaultGateConfig(0.9))
		Expect(err).NotTo(HaveOccurred())
		Expect(noise).To(Equal(original))
	})

	DescribeTable("rejects invalid configuration",
		func(mutate func(*dsp.GateConfig)) {
			cfg := dsp.DefaultGateConfig(0.8)
			mutate(&cfg)
			_, err := dsp.SpectralGate(noise, int(rate), cfg)
			Expect(err).To(HaveOccurred())
		},
		Entry("odd window", func(c *dsp.GateConfig) { c.WindowSize = 2047 }),
		Entry("hop larger than half window", func(c *dsp.GateConfig) { c.HopSize = 4096 }),
		Entry("reduction above one", func(c *dsp.GateConfig) { c.Reduction = 1.5 }),
		Entry("zero time constant", func(c *dsp.GateConfig) { c.TimeConstant = 0 }),
	)
})
