package separation

import (
	"context"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/Skryldev/stem-lab/domain/model"
	"github.com/Skryldev/stem-lab/domain/ports"
	pkgerrors "github.com/Skryldev/stem-lab/pkg/errors"
	"github.com/Skryldev/stem-lab/pkg/logger"
)

// LocalConfig configures a LocalSeparator
type LocalConfig struct {
	// DemucsPath is the demucs executable, "demucs" when empty
	DemucsPath string
	// Device is passed to demucs -d when set, e.g. "cpu" or "cuda"
	Device string
	// WorkingDir is where demucs runs
	WorkingDir string
}

// LocalSeparator runs demucs as a child process
type LocalSeparator struct {
	cfg     LocalConfig
	runner  ports.CommandRunner
	storage ports.StorageProvider
	log     *logger.Logger
}

// NewLocalSeparator creates a demucs separator
func NewLocalSeparator(cfg LocalConfig, runner ports.CommandRunner, storage ports.StorageProvider, log *logger.Logger) *LocalSeparator {
	if cfg.DemucsPath == "" {
		cfg.DemucsPath = "demucs"
	}
	if log == nil {
		log = logger.Nop()
	}
	return &LocalSeparator{cfg: cfg, runner: runner, storage: storage, log: log.Named("separate.local")}
}

// Separate implements ports.Separator
func (l *LocalSeparator) Separate(ctx context.Context, input model.AcquiredInput, m model.SeparationModel, outDir string) (model.StemSet, error) {
	absInput, err := filepath.Abs(input.Path)
	if err != nil {
		return model.StemSet{}, pkgerrors.NewSeparationError(input.Name, "cannot resolve input path", err)
	}
	absOut, err := filepath.Abs(outDir)
	if err != nil {
		return model.StemSet{}, pkgerrors.NewSeparationError(input.Name, "cannot resolve output path", err)
	}

	// separation is lengthy, this is the last cheap point to stop
	if err := ctx.Err(); err != nil {
		return model.StemSet{}, pkgerrors.NewSeparationError(input.Name, "cancelled before separation", err)
	}

	args := DemucsArgs(absInput, absOut, m, l.cfg.Device)
	log := l.log.With(
		zap.String("input", input.Name),
		zap.String("model", m.Identifier),
		zap.String("output_dir", absOut),
	)
	log.Info("running demucs")

	if _, err := l.runner.Run(ctx, l.cfg.WorkingDir, l.cfg.DemucsPath, args...); err != nil {
		return model.StemSet{}, pkgerrors.NewSeparationError(input.Name, "demucs failed", err)
	}

	set, err := collectStems(ctx, l.storage, filepath.Join(absOut, m.Identifier), input.Name, m)
	if err != nil {
		return model.StemSet{}, pkgerrors.NewSeparationError(input.Name, "cannot collect stems", err)
	}
	if missing := missingRoles(set, m); len(missing) > 0 {
		log.Warn("demucs did not produce every stem", zap.Any("missing", missing))
	}

	log.Info("finished demucs", zap.Int("stems", len(set.Stems)))
	return set, nil
}

// DemucsArgs builds the demucs command line. Stems land in
// <outDir>/<model identifier>/<stem>.wav.
func DemucsArgs(input, outDir string, m model.SeparationModel, device string) []string {
	args := []string{"-n", m.Identifier}
	if m.Checkpoint != "" {
		args = append(args, "--repo", filepath.Dir(m.Checkpoint))
	}
	if m.TwoStem() {
		args = append(args, "--two-stems", string(model.RoleVocals))
	}
	if device != "" {
		args = append(args, "-d", device)
	}
	args = append(args,
		"-o", outDir,
		"--filename", "{stem}.{ext}",
		input,
	)
	return args
}
