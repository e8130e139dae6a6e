package ports

import (
	"context"
	"io"
	"time"

	"github.com/Skryldev/stem-lab/domain/model"
)

// FFmpegExecutor is the abstraction for FFmpeg command execution
type FFmpegExecutor interface {
	// Execute runs an ffmpeg command with the given arguments
	Execute(ctx context.Context, args []string) error

	// Probe runs ffprobe and returns JSON output
	Probe(ctx context.Context, inputPath string) ([]byte, error)
}

// CommandRunner runs external tools such as demucs or yt-dlp
type CommandRunner interface {
	// Run executes name with args in dir and returns combined output
	Run(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// StorageProvider abstracts the artifact store
type StorageProvider interface {
	// Exists checks if a file exists
	Exists(ctx context.Context, path string) (bool, error)

	// Size returns file size in bytes
	Size(ctx context.Context, path string) (int64, error)

	// Remove deletes a file; a missing file is not an error
	Remove(ctx context.Context, path string) error

	// RemoveAll deletes a directory tree
	RemoveAll(ctx context.Context, path string) error

	// TempFile creates a temporary file and returns its path
	TempFile(ctx context.Context, dir, pattern string) (string, error)

	// WriteAtomic streams content into path through a temp file and rename,
	// so readers never observe a partial file
	WriteAtomic(ctx context.Context, path string, write func(w io.WriteSeeker) error) error

	// List returns the regular files directly under dir, sorted by name
	List(ctx context.Context, dir string) ([]string, error)
}

// BufferCodec decodes and encodes audio buffers
type BufferCodec interface {
	// Load decodes path into a mono buffer at the canonical rate
	Load(ctx context.Context, path string) (*model.Buffer, error)

	// Save encodes buf to path at bitDepth, replacing path atomically
	Save(ctx context.Context, buf *model.Buffer, path string, bitDepth int) error
}

// Acquirer fetches raw inputs into destDir
type Acquirer interface {
	Acquire(ctx context.Context, src model.Source, destDir string) ([]model.AcquiredInput, error)
}

// Separator splits one input into labeled stems written under outDir
type Separator interface {
	Separate(ctx context.Context, input model.AcquiredInput, m model.SeparationModel, outDir string) (model.StemSet, error)
}

// ModelProvisioner makes a model's checkpoint available locally
type ModelProvisioner interface {
	// Ensure returns the local checkpoint path, or "" for built-in models
	Ensure(ctx context.Context, m model.SeparationModel, dir string) (string, error)
}

// StageObserver receives stage timings and failures
type StageObserver interface {
	ObserveStage(stage string, elapsed time.Duration, err error)
	SessionStarted()
	SessionFinished()
}

// Option is the functional option type
type Option func(*model.RunOptions)

// WithModel selects the separation model
func WithModel(m model.ModelSelector) Option {
	return func(o *model.RunOptions) {
		o.Model = m
	}
}

// WithStemRoles selects which stems are combined
func WithStemRoles(roles ...model.StemRole) Option {
	return func(o *model.RunOptions) {
		if len(roles) > 0 {
			o.Roles = roles
		}
	}
}

// WithEchoReduction sets the fraction of noise energy removed, clamped to
// its valid range
func WithEchoReduction(v float64) Option {
	return func(o *model.RunOptions) {
		o.Enhancement.EchoReduction = v
		o.Enhancement = o.Enhancement.Clamp()
	}
}

// WithPresence sets the presence scaling, clamped to its valid range
func WithPresence(v float64) Option {
	return func(o *model.RunOptions) {
		o.Enhancement.Presence = v
		o.Enhancement = o.Enhancement.Clamp()
	}
}

// WithEnhancement sets both enhancement parameters at once
func WithEnhancement(p model.EnhancementParameters) Option {
	return func(o *model.RunOptions) {
		o.Enhancement = p.Clamp()
	}
}

// WithStageTimeout bounds each stage's wall time
func WithStageTimeout(d time.Duration) Option {
	return func(o *model.RunOptions) {
		if d > 0 {
			o.StageTimeout = d
		}
	}
}

// WithCombinedBitDepth sets the bit depth of the combined artifact
func WithCombinedBitDepth(bits int) Option {
	return func(o *model.RunOptions) {
		o.CombinedBitDepth = bits
	}
}

// Apply builds RunOptions from defaults plus opts
func Apply(opts ...Option) *model.RunOptions {
	o := model.DefaultRunOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}
