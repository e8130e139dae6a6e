package download_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/Skryldev/stem-lab/infrastructure/download"
	"github.com/Skryldev/stem-lab/infrastructure/storage"
	"github.com/Skryldev/stem-lab/pkg/retry"
)

var _ = Describe("Fetcher", func() {
	var (
		hits     atomic.Int32
		failures int32
		status   int
		server   *httptest.Server
		fetcher  *download.Fetcher
		dest     string
	)

	BeforeEach(func() {
		hits.Store(0)
		failures = 0
		status = http.StatusServiceUnavailable
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if hits.Add(1) <= failures {
				w.WriteHeader(status)
				return
			}
			_, _ = w.Write([]byte("payload"))
		}))
		DeferCleanup(server.Close)

		cfg := retry.Config{MaxAttempts: 3, Delay: time.Millisecond, Multiplier: 2}
		fetcher = download.NewFetcher(server.Client(), storage.NewLocalStorage(), cfg, nil)
		dest = filepath.Join(GinkgoT().TempDir(), "out", "file.bin")
	})

	It("writes the body to dest", func() {
		n, err := fetcher.Fetch(context.Background(), server.URL, dest)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(BeEquivalentTo(7))

		b, err := os.ReadFile(dest)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(b)).To(Equal("payload"))
	})

	It("retries transient failures", func() {
		failures = 2

		_, err := fetcher.Fetch(context.Background(), server.URL, dest)
		Expect(err).NotTo(HaveOccurred())
		Expect(hits.Load()).To(BeEquivalentTo(3))
	})

	It("gives up on client errors immediately", func() {
		failures = 10
		status = http.StatusNotFound

		_, err := fetcher.Fetch(context.Background(), server.URL, dest)
		Expect(err).To(HaveOccurred())
		Expect(hits.Load()).To(BeEquivalentTo(1))
		Expect(dest).NotTo(BeAnExistingFile())

		var se *download.StatusError
		Expect(errors.As(err, &se)).To(BeTrue())
		Expect(se.StatusCode).To(Equal(http.StatusNotFound))
	})
})

var _ = DescribeTable("CheckStatus",
	func(code int, wantErr, retryable bool) {
		err := download.CheckStatus("http://x", &http.Response{StatusCode: code})
		if !wantErr {
			Expect(err).NotTo(HaveOccurred())
			return
		}
		Expect(err).To(HaveOccurred())

		attempts := 0
		_ = retry.Do(context.Background(), retry.Config{MaxAttempts: 2}, func() error {
			attempts++
			return err
		})
		if retryable {
			Expect(attempts).To(Equal(2))
		} else {
			Expect(attempts).To(Equal(1))
		}
	},
	Entry("ok", http.StatusOK, false, false),
	Entry("no content", http.StatusNoContent, false, false),
	Entry("not found", http.StatusNotFound, true, false),
	Entry("forbidden", http.StatusForbidden, true, false),
	Entry("request timeout", http.StatusRequestTimeout, true, true),
	Entry("rate limited", http.StatusTooManyRequests, true, true),
	Entry("bad gateway", http.StatusBadGateway, true, true),
)
