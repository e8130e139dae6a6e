// Package acquisition brings raw inputs into a session's acquisition area,
// from uploaded files, media sites (through yt-dlp) or plain HTTP.
package acquisition

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/Skryldev/stem-lab/domain/model"
	"github.com/Skryldev/stem-lab/domain/ports"
	pkgerrors "github.com/Skryldev/stem-lab/pkg/errors"
	"github.com/Skryldev/stem-lab/pkg/logger"
)

// FileAcquirer copies local files into the acquisition area. The original
// files are left in place.
type FileAcquirer struct {
	storage ports.StorageProvider
	log     *logger.Logger
}

// NewFileAcquirer creates a file acquirer
func NewFileAcquirer(storage ports.StorageProvider, log *logger.Logger) *FileAcquirer {
	if log == nil {
		log = logger.Nop()
	}
	return &FileAcquirer{storage: storage, log: log.Named("acquire.file")}
}

// Acquire implements ports.Acquirer
func (a *FileAcquirer) Acquire(ctx context.Context, src model.Source, destDir string) ([]model.AcquiredInput, error) {
	if src.Kind != model.SourceFile {
		return nil, pkgerrors.NewAcquisitionError("file acquirer cannot handle "+string(src.Kind)+" sources", nil)
	}

	info, err := os.Stat(src.Locator)
	if err != nil {
		return nil, pkgerrors.NewAcquisitionError("cannot read upload", errors.Wrapf(err, "stat %s", src.Locator))
	}
	if info.IsDir() {
		return nil, pkgerrors.NewAcquisitionError("upload is a directory", errors.Newf("%s is a directory", src.Locator))
	}

	dest, err := freePath(ctx, a.storage, destDir, filepath.Base(src.Locator))
	if err != nil {
		return nil, pkgerrors.NewAcquisitionError("cannot place upload", err)
	}
	if err := a.copy(ctx, src.Locator, dest); err != nil {
		return nil, pkgerrors.NewAcquisitionError("cannot copy upload", err)
	}

	a.log.Info("acquired upload",
		zap.String("source", src.Locator),
		zap.String("path", dest),
		zap.Int64("bytes", info.Size()),
	)

	return []model.AcquiredInput{{
		Name:   InputName(dest),
		Path:   dest,
		Source: src,
	}}, nil
}

func (a *FileAcquirer) copy(ctx context.Context, from, to string) error {
	in, err := os.Open(from)
	if err != nil {
		return errors.Wrapf(err, "open %s", from)
	}
	defer in.Close()

	return a.storage.WriteAtomic(ctx, to, func(w io.WriteSeeker) error {
		_, err := io.Copy(w, in)
		return err
	})
}

// InputName derives a directory-safe input name from a file path
func InputName(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	name := strings.Trim(b.String(), ".")
	if name == "" {
		return "input"
	}
	return name
}
