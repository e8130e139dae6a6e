// Package modelstore provisions separation model checkpoints that are not
// bundled with the separator and must be downloaded on first use.
package modelstore

import (
	"context"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/Skryldev/stem-lab/domain/model"
	"github.com/Skryldev/stem-lab/domain/ports"
	pkgerrors "github.com/Skryldev/stem-lab/pkg/errors"
	"github.com/Skryldev/stem-lab/pkg/logger"
)

// Fetcher downloads a URL to a local path
type Fetcher interface {
	Fetch(ctx context.Context, url, dest string) (int64, error)
}

// Store implements ports.ModelProvisioner
type Store struct {
	fetcher Fetcher
	storage ports.StorageProvider
	log     *logger.Logger
}

// New creates a model store
func New(fetcher Fetcher, storage ports.StorageProvider, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	return &Store{fetcher: fetcher, storage: storage, log: log.Named("models")}
}

// Ensure returns the local checkpoint path for m, downloading it into dir
// when it is missing or empty. Built-in models return "".
func (s *Store) Ensure(ctx context.Context, m model.SeparationModel, dir string) (string, error) {
	if m.DownloadURL == "" {
		return "", nil
	}
	name := m.FileName
	if name == "" {
		name = filepath.Base(m.DownloadURL)
	}
	path := filepath.Join(dir, name)

	ok, err := s.storage.Exists(ctx, path)
	if err != nil {
		return "", pkgerrors.NewSeparationError(m.Identifier, "cannot check model checkpoint", err)
	}
	if ok {
		size, err := s.storage.Size(ctx, path)
		if err == nil && size > 0 {
			return path, nil
		}
		s.log.Warn("discarding empty checkpoint", zap.String("path", path))
	}

	s.log.Info("downloading model checkpoint",
		zap.String("model", m.Identifier),
		zap.String("url", m.DownloadURL),
	)
	n, err := s.fetcher.Fetch(ctx, m.DownloadURL, path)
	if err != nil {
		return "", pkgerrors.NewSeparationError(m.Identifier, "cannot download model checkpoint", err)
	}
	if n == 0 {
		_ = s.storage.Remove(context.WithoutCancel(ctx), path)
		return "", pkgerrors.NewSeparationError(m.Identifier, "downloaded model checkpoint is empty", nil)
	}
	s.log.Info("model checkpoint ready", zap.String("path", path), zap.Int64("bytes", n))
	return path, nil
}
