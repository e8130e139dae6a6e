package dsp_test

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/Skryldev/stem-lab/domain/dsp"
)

var _ = Describe("Butterworth", func() {
	Context("second-order high-pass", func() {
		It("matches the closed-form biquad", func() {
			sos, err := dsp.Butterworth(2, dsp.HighPass, rate, 4000)
			Expect(err).NotTo(HaveOccurred())
			Expect(sos).To(HaveLen(1))

			k := math.Tan(math.Pi * 4000 / rate)
			norm := 1 / (1 + math.Sqrt2*k + k*k)
			s := sos[0]
			Expect(s.B[0]).To(BeNumerically("~", norm, 1e-9))
			Expect(s.B[1]).To(BeNumerically("~", -2*norm, 1e-9))
			Expect(s.B[2]).To(BeNumerically("~", norm, 1e-9))
			Expect(s.A[0]).To(Equal(1.0))
			Expect(s.A[1]).To(BeNumerically("~", 2*(k*k-1)*norm, 1e-9))
			Expect(s.A[2]).To(BeNumerically("~", (1-math.Sqrt2*k+k*k)*norm, 1e-9))
		})

		It("is 3 dB down at the cutoff", func() {
			sos, err := dsp.Butterworth(2, dsp.HighPass, rate, 4000)
			Expect(err).NotTo(HaveOccurred())
			Expect(sos.Response(4000, rate)).To(BeNumerically("~", 1/math.Sqrt2, 1e-6))
			Expect(sos.Response(20000, rate)).To(BeNumerically("~", 1, 0.01))
			Expect(sos.Response(100, rate)).To(BeNumerically("<", 0.001))
		})
	})

	Context("second-order band-pass", func() {
		var sos dsp.SOS

		BeforeEach(func() {
			var err error
			sos, err = dsp.Butterworth(2, dsp.BandPass, rate, 200, 8000)
			Expect(err).NotTo(HaveOccurred())
		})

		It("has two sections", func() {
			Expect(sos).To(HaveLen(2))
		})

		It("is 3 dB down at both edges", func() {
			Expect(sos.Response(200, rate)).To(BeNumerically("~", 1/math.Sqrt2, 1e-6))
			Expect(sos.Response(8000, rate)).To(BeNumerically("~", 1/math.Sqrt2, 1e-6))
		})

		It("passes the geometric centre at unity", func() {
			Expect(sos.Response(1265, rate)).To(BeNumerically("~", 1, 1e-3))
		})

		It("rejects far out of band", func() {
			Expect(sos.Response(10, rate)).To(BeNumerically("<", 0.01))
			Expect(sos.Response(21000, rate)).To(BeNumerically("<", 0.1))
		})
	})

	It("keeps its shape at other sample rates", func() {
		sos, err := dsp.Butterworth(2, dsp.HighPass, 22050, 4000)
		Expect(err).NotTo(HaveOccurred())
		Expect(sos.Response(4000, 22050)).To(BeNumerically("~", 1/math.Sqrt2, 1e-6))
	})

	It("designs odd orders with a first-order section", func() {
		sos, err := dsp.Butterworth(3, dsp.LowPass, rate, 1000)
		Expect(err).NotTo(HaveOccurred())
		Expect(sos).To(HaveLen(2))
		Expect(sos.Response(1000, rate)).To(BeNumerically("~", 1/math.Sqrt2, 1e-6))
		Expect(sos.Response(10, rate)).To(BeNumerically("~", 1, 1e-6))
	})

	DescribeTable("rejects invalid designs",
		func(order int, kind dsp.FilterKind, sampleRate float64, cutoffs ...float64) {
			_, err := dsp.Butterworth(order, kind, sampleRate, cutoffs...)
			Expect(err).To(HaveOccurred())
		},
		Entry("zero order", 0, dsp.HighPass, rate, 4000.0),
		Entry("cutoff at nyquist", 2, dsp.HighPass, 8000.0, 4000.0),
		Entry("cutoff above nyquist", 2, dsp.BandPass, 11025.0, 200.0, 8000.0),
		Entry("missing band edge", 2, dsp.BandPass, rate, 200.0),
		Entry("reversed band", 2, dsp.BandPass, rate, 8000.0, 200.0),
		Entry("negative rate", 2, dsp.LowPass, -1.0, 100.0),
	)
})
