// Package download fetches remote files over HTTP into the artifact store.
package download

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/Skryldev/stem-lab/domain/ports"
	"github.com/Skryldev/stem-lab/pkg/logger"
	"github.com/Skryldev/stem-lab/pkg/retry"
)

// Fetcher downloads URLs to local paths with retry. Client errors (4xx)
// are not retried.
type Fetcher struct {
	client  *http.Client
	storage ports.StorageProvider
	retry   retry.Config
	log     *logger.Logger
}

// NewFetcher creates a fetcher. A nil client gets a 30 minute timeout.
func NewFetcher(client *http.Client, storage ports.StorageProvider, cfg retry.Config, log *logger.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Minute}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Fetcher{client: client, storage: storage, retry: cfg, log: log.Named("download")}
}

// StatusError is returned for non-2xx responses
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return "GET " + e.URL + ": " + http.StatusText(e.StatusCode)
}

// Fetch downloads url into dest atomically and returns the byte count
func (f *Fetcher) Fetch(ctx context.Context, url, dest string) (int64, error) {
	var written int64
	attempt := 0
	err := retry.Do(ctx, f.retry, func() error {
		attempt++
		n, err := f.fetchOnce(ctx, url, dest)
		if err != nil {
			f.log.Warn("download attempt failed",
				zap.String("url", url),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return err
		}
		written = n
		return nil
	})
	if err != nil {
		return 0, errors.Wrapf(err, "download %s", url)
	}
	f.log.Info("downloaded file",
		zap.String("url", url),
		zap.String("path", dest),
		zap.Int64("bytes", written),
	)
	return written, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, url, dest string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, retry.Permanent(errors.Wrap(err, "build request"))
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return 0, errors.Wrap(err, "send request")
	}
	defer resp.Body.Close()

	if err := CheckStatus(url, resp); err != nil {
		return 0, err
	}

	var n int64
	err = f.storage.WriteAtomic(ctx, dest, func(w io.WriteSeeker) error {
		var err error
		n, err = io.Copy(w, resp.Body)
		return err
	})
	return n, err
}

// CheckStatus converts a non-2xx response into a StatusError, marked
// permanent for client errors other than 408 and 429.
func CheckStatus(url string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	err := &StatusError{URL: url, StatusCode: resp.StatusCode}
	switch {
	case resp.StatusCode == http.StatusRequestTimeout, resp.StatusCode == http.StatusTooManyRequests:
		return err
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return retry.Permanent(err)
	default:
		return err
	}
}
