package stemlab

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Skryldev/stem-lab/application/pipeline"
	"github.com/Skryldev/stem-lab/application/usecase"
	"github.com/Skryldev/stem-lab/domain/model"
	"github.com/Skryldev/stem-lab/domain/ports"
	"github.com/Skryldev/stem-lab/infrastructure/acquisition"
	"github.com/Skryldev/stem-lab/infrastructure/audiofile"
	"github.com/Skryldev/stem-lab/infrastructure/download"
	"github.com/Skryldev/stem-lab/infrastructure/ffmpeg"
	"github.com/Skryldev/stem-lab/infrastructure/modelstore"
	"github.com/Skryldev/stem-lab/infrastructure/process"
	"github.com/Skryldev/stem-lab/infrastructure/separation"
	"github.com/Skryldev/stem-lab/infrastructure/storage"
	"github.com/Skryldev/stem-lab/internal/metrics"
	"github.com/Skryldev/stem-lab/pkg/logger"
	"github.com/Skryldev/stem-lab/pkg/progress"
	"github.com/Skryldev/stem-lab/pkg/retry"
)

// Re-export types for convenient use by callers
type (
	Source                = model.Source
	SessionResult         = model.SessionResult
	SessionSnapshot       = model.SessionSnapshot
	SessionState          = model.SessionState
	EnhancementParameters = model.EnhancementParameters
	StemRole              = model.StemRole
	ModelSelector         = model.ModelSelector
	AudioMetadata         = model.AudioMetadata
	BatchJob              = model.BatchJob
	BatchResult           = model.BatchResult
	Session               = pipeline.Session
	ConcatOptions         = pipeline.ConcatOptions
	Option                = ports.Option
	ProgressUpdate        = progress.Update
	ProgressStage         = progress.Stage
)

// Re-export constants
const (
	RoleVocals   = model.RoleVocals
	RoleDrums    = model.RoleDrums
	RoleBass     = model.RoleBass
	RoleOther    = model.RoleOther
	RoleNoVocals = model.RoleNoVocals

	ModelHTDemucs   = model.ModelHTDemucs
	ModelHTDemucsFT = model.ModelHTDemucsFT
	ModelMDXExtra   = model.ModelMDXExtra
	ModelDrumSep    = model.ModelDrumSep

	StageAcquire  = progress.StageAcquire
	StageSeparate = progress.StageSeparate
	StageCombine  = progress.StageCombine
	StageEnhance  = progress.StageEnhance
	StageDone     = progress.StageDone
	StageFailed   = progress.StageFailed
)

// Re-export constructors and option functions
var (
	FileSource = model.FileSource
	URLSource  = model.URLSource

	WithModel            = ports.WithModel
	WithStemRoles        = ports.WithStemRoles
	WithEchoReduction    = ports.WithEchoReduction
	WithPresence         = ports.WithPresence
	WithEnhancement      = ports.WithEnhancement
	WithStageTimeout     = ports.WithStageTimeout
	WithCombinedBitDepth = ports.WithCombinedBitDepth

	DefaultConcatOptions = pipeline.DefaultConcatOptions
)

// Config holds top-level configuration for the processor
type Config struct {
	// WorkspaceRoot holds one directory per session plus shared models
	WorkspaceRoot string

	// FFmpegPath is the path to ffmpeg binary (auto-detected if empty)
	FFmpegPath string

	// FFprobePath is the path to ffprobe binary (auto-detected if empty)
	FFprobePath string

	// DemucsPath is the demucs executable for local separation
	DemucsPath string

	// Device is passed to demucs, e.g. "cpu" or "cuda"
	Device string

	// YTDLPPath is the yt-dlp executable for media site URLs
	YTDLPPath string

	// MediaHosts overrides the hosts routed to yt-dlp
	MediaHosts []string

	// SeparationEndpoint switches to a remote separation service when set
	SeparationEndpoint string

	// Separator replaces the built-in separators entirely
	Separator ports.Separator

	// HTTPClient is used for downloads and the separation service
	HTTPClient *http.Client

	// Concat tunes silence removal (defaults when zero)
	Concat ConcatOptions

	// Logger is an optional custom logger. Uses production zap if nil.
	Logger *logger.Logger

	// ZapLogger allows passing a *zap.Logger directly
	ZapLogger *zap.Logger

	// ProgressCh is an optional channel for receiving progress updates
	ProgressCh chan<- ProgressUpdate

	// Reporter receives progress updates alongside ProgressCh
	Reporter progress.Reporter

	// Metrics registers stage metrics on the given registerer when set
	Metrics prometheus.Registerer

	// Workers sets the number of parallel batch sessions (default: 2)
	Workers int

	// RetryConfig overrides default retry behavior for downloads
	RetryConfig *retry.Config
}

// Processor is the main entry point
type Processor struct {
	service *usecase.StemService
	log     *logger.Logger
}

// New wires the pipeline from cfg
func New(cfg Config) (*Processor, error) {
	log := cfg.Logger
	if log == nil && cfg.ZapLogger != nil {
		log = logger.FromZap(cfg.ZapLogger)
	}
	if log == nil {
		var err error
		log, err = logger.New(false)
		if err != nil {
			return nil, err
		}
	}

	exec, err := ffmpeg.NewExecutor(ffmpeg.ExecutorConfig{
		FFmpegPath:  cfg.FFmpegPath,
		FFprobePath: cfg.FFprobePath,
		Logger:      log,
	})
	if err != nil {
		return nil, err
	}

	store := storage.NewLocalStorage()
	runner := process.NewRunner(log)

	retryCfg := retry.DefaultConfig()
	if cfg.RetryConfig != nil {
		retryCfg = *cfg.RetryConfig
	}
	fetcher := download.NewFetcher(cfg.HTTPClient, store, retryCfg, log)

	codec := audiofile.NewCodec(audiofile.Config{
		Executor: exec,
		Storage:  store,
		Logger:   log,
	})

	acquirer := acquisition.NewSelector(
		acquisition.NewFileAcquirer(store, log),
		acquisition.NewYTDLPAcquirer(cfg.YTDLPPath, runner, store, log),
		acquisition.NewHTTPAcquirer(fetcher, store),
		cfg.MediaHosts,
	)

	separator := cfg.Separator
	switch {
	case separator != nil:
	case cfg.SeparationEndpoint != "":
		separator, err = separation.NewRemoteSeparator(separation.RemoteConfig{
			Endpoint: cfg.SeparationEndpoint,
			Retry:    retryCfg,
		}, cfg.HTTPClient, fetcher, store, log)
		if err != nil {
			return nil, err
		}
	default:
		separator = separation.NewLocalSeparator(separation.LocalConfig{
			DemucsPath: cfg.DemucsPath,
			Device:     cfg.Device,
		}, runner, store, log)
	}

	var observer ports.StageObserver
	if cfg.Metrics != nil {
		observer = metrics.NewMetrics(cfg.Metrics)
	}

	reporters := progress.NewMultiReporter()
	if cfg.ProgressCh != nil {
		reporters.Add(progress.NewChannelReporter(cfg.ProgressCh))
	}
	if cfg.Reporter != nil {
		reporters.Add(cfg.Reporter)
	}

	root := cfg.WorkspaceRoot
	if root == "" {
		root = "./sessions"
	}

	svc, err := usecase.NewStemService(usecase.Config{
		Deps: pipeline.Deps{
			Acquirer:  acquirer,
			Separator: separator,
			Codec:     codec,
			Storage:   store,
			Executor:  exec,
			Models:    modelstore.New(fetcher, store, log),
			Observer:  observer,
		},
		WorkspaceRoot: root,
		Concat:        cfg.Concat,
		Reporter:      reporters,
		Logger:        log,
		Workers:       cfg.Workers,
	})
	if err != nil {
		return nil, err
	}

	return &Processor{
		service: svc,
		log:     log,
	}, nil
}

// Process runs sources through acquisition, separation, combination and
// enhancement in a fresh session
func (p *Processor) Process(ctx context.Context, sources []Source, opts ...Option) (*SessionResult, error) {
	return p.service.Process(ctx, sources, opts...)
}

// NewSession opens a session to drive stage by stage
func (p *Processor) NewSession(opts ...Option) (*Session, error) {
	return p.service.NewSession(opts...)
}

// Session returns a session created by this processor
func (p *Processor) Session(id string) (*Session, bool) {
	return p.service.Session(id)
}

// Enhance re-runs enhancement of a session with new parameters
func (p *Processor) Enhance(ctx context.Context, sessionID string, params EnhancementParameters) (string, error) {
	return p.service.Enhance(ctx, sessionID, params)
}

// Discard deletes a session's workspace
func (p *Processor) Discard(ctx context.Context, sessionID string) error {
	return p.service.Discard(ctx, sessionID)
}

// ProcessBatch processes multiple jobs concurrently
func (p *Processor) ProcessBatch(ctx context.Context, jobs []BatchJob) (<-chan BatchResult, error) {
	return p.service.ProcessBatch(ctx, jobs)
}

// ProbeAudio returns metadata about an audio file without processing
func (p *Processor) ProbeAudio(ctx context.Context, inputPath string) (*AudioMetadata, error) {
	return p.service.ProbeAudio(ctx, inputPath)
}

// Close flushes the logger and releases resources
func (p *Processor) Close() {
	_ = p.log.Sync()
}
