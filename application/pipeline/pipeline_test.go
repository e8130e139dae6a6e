package pipeline_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/Skryldev/stem-lab/application/pipeline"
	"github.com/Skryldev/stem-lab/domain/dsp"
	"github.com/Skryldev/stem-lab/domain/model"
	"github.com/Skryldev/stem-lab/domain/ports"
	pkgerrors "github.com/Skryldev/stem-lab/pkg/errors"
)

var _ = Describe("Pipeline", func() {
	var (
		ctx context.Context
		h   *harness
	)

	BeforeEach(func() {
		ctx = context.Background()
		h = newHarness()
	})

	It("runs three uploads to an enhanced vocal track", func() {
		sources := []model.Source{
			h.source("first", sine(440, 0.5, 2)),
			h.source("second", join(sine(440, 0.5, 2), silence(1.2))),
			h.source("third", sine(440, 0.5, 2)),
		}
		sess := h.session(ports.WithEchoReduction(0.8), ports.WithPresence(0.2))

		res, err := h.p.Run(ctx, sess, sources...)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.SessionID).To(Equal(sess.ID()))
		Expect(sess.State()).To(Equal(model.StateEnhanced))

		combined, err := h.codec.Load(ctx, res.CombinedPath)
		Expect(err).NotTo(HaveOccurred())
		// 6 s of tone plus 100 ms of padding either side of the removed gap
		Expect(combined.Duration()).To(BeNumerically("~", 6200*time.Millisecond, 5*time.Millisecond))

		enhanced, err := h.codec.Load(ctx, res.EnhancedPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(enhanced.Len()).To(Equal(combined.Len()))
		Expect(dsp.Peak(enhanced.Samples)).To(BeNumerically("<=", 0.95+1e-6))

		Expect(h.observer.Stages).To(Equal([]string{"acquire", "separate", "combine", "enhance"}))
		Expect(h.observer.Started).To(Equal(1))
		Expect(h.observer.Finished).To(Equal(1))
	})

	It("asks for a two-stem split when only vocals are combined", func() {
		sess := h.session(ports.WithModel(model.ModelHTDemucsFT))
		_, err := h.p.Run(ctx, sess,
			h.source("a", sine(440, 0.5, 1)),
			h.source("b", sine(440, 0.5, 1)),
		)
		Expect(err).NotTo(HaveOccurred())

		Expect(h.sep.Models).NotTo(BeEmpty())
		Expect(h.sep.Models[0].Identifier).To(Equal("htdemucs_ft"))
		Expect(h.sep.Models[0].TwoStem()).To(BeTrue())
	})

	It("rejects an unknown model", func() {
		sess := h.session(ports.WithModel("spleeter"))
		_, err := h.p.Run(ctx, sess, h.source("a", sine(440, 0.5, 1)))
		Expect(pkgerrors.KindOf(err)).To(Equal(pkgerrors.ErrCodeValidation))
		Expect(sess.State()).To(Equal(model.StateFailed))
		Expect(h.observer.Finished).To(Equal(1))
	})

	It("stops at the first failing stage", func() {
		sess := h.session()
		_, err := h.p.Run(ctx, sess, h.source("only", sine(440, 0.5, 1)))
		Expect(pkgerrors.KindOf(err)).To(Equal(pkgerrors.ErrCodeInsufficientInput))
		Expect(h.observer.Stages).To(Equal([]string{"acquire", "separate", "combine"}))
	})
})

var _ = Describe("WorkerPool", func() {
	It("runs every job in its own session", func() {
		h := newHarness()
		jobs := make([]model.BatchJob, 3)
		for i := range jobs {
			jobs[i] = model.BatchJob{
				ID: string(rune('a' + i)),
				Sources: []model.Source{
					h.source(string(rune('a'+i))+"1", sine(440, 0.5, 1)),
					h.source(string(rune('a'+i))+"2", sine(660, 0.5, 1)),
				},
				Options: model.DefaultRunOptions(),
			}
		}
		jobs = append(jobs, model.BatchJob{ID: "bad", Options: model.DefaultRunOptions()})

		pool := pipeline.NewWorkerPool(h.p, 2, nil)
		results := map[string]model.BatchResult{}
		for r := range pool.Run(context.Background(), jobs, nil) {
			results[r.JobID] = r
		}

		Expect(results).To(HaveLen(4))
		sessions := map[string]bool{}
		for _, id := range []string{"a", "b", "c"} {
			Expect(results[id].Err).NotTo(HaveOccurred())
			sessions[results[id].Result.SessionID] = true
		}
		Expect(sessions).To(HaveLen(3))
		Expect(pkgerrors.KindOf(results["bad"].Err)).To(Equal(pkgerrors.ErrCodeAcquisition))
	})

	It("reports cancelled jobs", func() {
		h := newHarness()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		pool := pipeline.NewWorkerPool(h.p, 1, nil)
		var errs []error
		for r := range pool.Run(ctx, []model.BatchJob{{ID: "x"}, {ID: "y"}}, nil) {
			errs = append(errs, r.Err)
		}
		Expect(errs).To(HaveLen(2))
		for _, err := range errs {
			Expect(err).To(HaveOccurred())
		}
	})
})
