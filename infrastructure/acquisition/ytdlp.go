package acquisition

import (
	"context"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/Skryldev/stem-lab/domain/model"
	"github.com/Skryldev/stem-lab/domain/ports"
	pkgerrors "github.com/Skryldev/stem-lab/pkg/errors"
	"github.com/Skryldev/stem-lab/pkg/logger"
)

// YTDLPAcquirer extracts the audio of a media page with yt-dlp. Playlists
// yield one input per entry.
type YTDLPAcquirer struct {
	bin     string
	runner  ports.CommandRunner
	storage ports.StorageProvider
	log     *logger.Logger
}

// NewYTDLPAcquirer creates a yt-dlp acquirer; an empty bin means "yt-dlp"
func NewYTDLPAcquirer(bin string, runner ports.CommandRunner, storage ports.StorageProvider, log *logger.Logger) *YTDLPAcquirer {
	if bin == "" {
		bin = "yt-dlp"
	}
	if log == nil {
		log = logger.Nop()
	}
	return &YTDLPAcquirer{bin: bin, runner: runner, storage: storage, log: log.Named("acquire.ytdlp")}
}

// Acquire implements ports.Acquirer
func (a *YTDLPAcquirer) Acquire(ctx context.Context, src model.Source, destDir string) ([]model.AcquiredInput, error) {
	if src.Kind != model.SourceURL {
		return nil, pkgerrors.NewAcquisitionError("yt-dlp acquirer cannot handle "+string(src.Kind)+" sources", nil)
	}

	before, err := a.existing(ctx, destDir)
	if err != nil {
		return nil, pkgerrors.NewAcquisitionError("cannot list acquisition area", err)
	}

	if err := a.download(ctx, src.Locator, destDir); err != nil {
		// a stale cache is a common cause of extraction failures
		a.clearCache(ctx, destDir)
		if err := a.download(ctx, src.Locator, destDir); err != nil {
			return nil, pkgerrors.NewAcquisitionError("yt-dlp failed for "+src.Locator, err)
		}
	}

	files, err := a.storage.List(ctx, destDir)
	if err != nil {
		return nil, pkgerrors.NewAcquisitionError("cannot list acquisition area", err)
	}

	var inputs []model.AcquiredInput
	for _, f := range files {
		if before[f] || filepath.Ext(f) != ".wav" {
			continue
		}
		inputs = append(inputs, model.AcquiredInput{
			Name:   InputName(f),
			Path:   f,
			Source: src,
		})
	}
	if len(inputs) == 0 {
		return nil, pkgerrors.NewAcquisitionError("yt-dlp produced no audio for "+src.Locator, nil)
	}

	a.log.Info("acquired remote audio",
		zap.String("url", src.Locator),
		zap.Int("files", len(inputs)),
	)
	return inputs, nil
}

func (a *YTDLPAcquirer) download(ctx context.Context, url, destDir string) error {
	_, err := a.runner.Run(ctx, destDir, a.bin,
		"-x",
		"--audio-format", "wav",
		"--audio-quality", "0",
		"-o", filepath.Join(destDir, "%(id)s.%(ext)s"),
		url,
	)
	return err
}

func (a *YTDLPAcquirer) clearCache(ctx context.Context, dir string) {
	if _, err := a.runner.Run(ctx, dir, a.bin, "--rm-cache-dir"); err != nil {
		a.log.Warn("failed to clear yt-dlp cache", zap.Error(err))
	}
}

func (a *YTDLPAcquirer) existing(ctx context.Context, dir string) (map[string]bool, error) {
	files, err := a.storage.List(ctx, dir)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(files))
	for _, f := range files {
		seen[f] = true
	}
	return seen, nil
}
