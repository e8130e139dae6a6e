package retry_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/Skryldev/stem-lab/pkg/retry"
)

var _ = Describe("Do", func() {
	fast := retry.Config{MaxAttempts: 3, Delay: time.Millisecond, Multiplier: 2, MaxDelay: 5 * time.Millisecond}
	errFlaky := errors.New("flaky")

	It("stops at the first success", func() {
		calls := 0
		err := retry.Do(context.Background(), fast, func() error {
			calls++
			if calls < 2 {
				return errFlaky
			}
			return nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(calls).To(Equal(2))
	})

	It("returns the last error after all attempts", func() {
		calls := 0
		err := retry.Do(context.Background(), fast, func() error {
			calls++
			return errFlaky
		})
		Expect(err).To(MatchError(errFlaky))
		Expect(calls).To(Equal(3))
	})

	It("does not retry permanent errors", func() {
		calls := 0
		err := retry.Do(context.Background(), fast, func() error {
			calls++
			return retry.Permanent(errFlaky)
		})
		Expect(err).To(Equal(errFlaky))
		Expect(calls).To(Equal(1))
	})

	It("runs once when attempts are not configured", func() {
		calls := 0
		_ = retry.Do(context.Background(), retry.Config{}, func() error {
			calls++
			return errFlaky
		})
		Expect(calls).To(Equal(1))
	})

	It("gives up when the context ends during backoff", func() {
		ctx, cancel := context.WithCancel(context.Background())
		slow := retry.Config{MaxAttempts: 5, Delay: time.Hour}
		calls := 0
		err := retry.Do(ctx, slow, func() error {
			calls++
			cancel()
			return errFlaky
		})
		Expect(err).To(MatchError(context.Canceled))
		Expect(calls).To(Equal(1))
	})
})
