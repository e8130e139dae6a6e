package acquisition

import (
	"context"
	"net/url"
	"path"
	"path/filepath"

	"github.com/Skryldev/stem-lab/domain/model"
	"github.com/Skryldev/stem-lab/domain/ports"
	pkgerrors "github.com/Skryldev/stem-lab/pkg/errors"
)

// Fetcher downloads a URL to a local path
type Fetcher interface {
	Fetch(ctx context.Context, url, dest string) (int64, error)
}

// HTTPAcquirer downloads direct links to audio files
type HTTPAcquirer struct {
	fetcher Fetcher
	storage ports.StorageProvider
}

// NewHTTPAcquirer creates an HTTP acquirer
func NewHTTPAcquirer(fetcher Fetcher, storage ports.StorageProvider) *HTTPAcquirer {
	return &HTTPAcquirer{fetcher: fetcher, storage: storage}
}

// Acquire implements ports.Acquirer
func (a *HTTPAcquirer) Acquire(ctx context.Context, src model.Source, destDir string) ([]model.AcquiredInput, error) {
	if src.Kind != model.SourceURL {
		return nil, pkgerrors.NewAcquisitionError("http acquirer cannot handle "+string(src.Kind)+" sources", nil)
	}
	u, err := url.Parse(src.Locator)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, pkgerrors.NewAcquisitionError("not an http(s) url: "+src.Locator, err)
	}

	file := path.Base(u.Path)
	if file == "" || file == "/" || file == "." {
		file = "download"
	}
	if filepath.Ext(file) == "" {
		file += ".audio"
	}
	dest, err := freePath(ctx, a.storage, destDir, file)
	if err != nil {
		return nil, pkgerrors.NewAcquisitionError("cannot place download", err)
	}

	if _, err := a.fetcher.Fetch(ctx, src.Locator, dest); err != nil {
		return nil, pkgerrors.NewAcquisitionError("download failed", err)
	}

	return []model.AcquiredInput{{
		Name:   InputName(dest),
		Path:   dest,
		Source: src,
	}}, nil
}
