package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Skryldev/stem-lab/domain/model"
	"github.com/Skryldev/stem-lab/domain/ports"
	"github.com/Skryldev/stem-lab/infrastructure/ffmpeg"
	pkgerrors "github.com/Skryldev/stem-lab/pkg/errors"
	"github.com/Skryldev/stem-lab/pkg/logger"
	"github.com/Skryldev/stem-lab/pkg/progress"
)

// Deps are the collaborators a Pipeline drives. Executor, Models and
// Observer are optional.
type Deps struct {
	Acquirer  ports.Acquirer
	Separator ports.Separator
	Codec     ports.BufferCodec
	Storage   ports.StorageProvider
	Executor  ports.FFmpegExecutor
	Models    ports.ModelProvisioner
	Observer  ports.StageObserver
}

// Pipeline creates sessions and runs them through every stage
type Pipeline struct {
	deps     Deps
	root     string
	concat   *Concatenator
	enhancer *Enhancer
	log      *logger.Logger
}

// NewPipeline creates a pipeline whose sessions live under root
func NewPipeline(deps Deps, root string, concat ConcatOptions, log *logger.Logger) (*Pipeline, error) {
	if log == nil {
		log = logger.Nop()
	}
	switch {
	case deps.Acquirer == nil:
		return nil, pkgerrors.NewValidationError("acquirer", nil, "acquirer is required")
	case deps.Separator == nil:
		return nil, pkgerrors.NewValidationError("separator", nil, "separator is required")
	case deps.Codec == nil:
		return nil, pkgerrors.NewValidationError("codec", nil, "buffer codec is required")
	case deps.Storage == nil:
		return nil, pkgerrors.NewValidationError("storage", nil, "storage provider is required")
	case root == "":
		return nil, pkgerrors.NewValidationError("workspaceRoot", root, "workspace root must not be empty")
	}
	if deps.Observer == nil {
		deps.Observer = noopObserver{}
	}
	return &Pipeline{
		deps:     deps,
		root:     root,
		concat:   NewConcatenator(concat, log),
		enhancer: NewEnhancer(log),
		log:      log,
	}, nil
}

// NewSession allocates a fresh session with its own workspace
func (p *Pipeline) NewSession(opts *model.RunOptions, reporter progress.Reporter) (*Session, error) {
	if opts == nil {
		opts = model.DefaultRunOptions()
	}
	if reporter == nil {
		reporter = progress.NoopReporter{}
	}
	id := uuid.NewString()
	ws := model.NewWorkspace(p.root, id)
	if err := ws.Prepare(); err != nil {
		return nil, pkgerrors.NewValidationError("workspaceRoot", p.root,
			fmt.Sprintf("cannot prepare workspace: %v", err))
	}
	return &Session{
		id:        id,
		ws:        ws,
		opts:      *opts,
		p:         p,
		reporter:  reporter,
		log:       p.log.With(zap.String("session_id", id)),
		artifacts: make(map[model.ArtifactName]string),
	}, nil
}

// Run drives a session from acquisition to the enhanced artifact
func (p *Pipeline) Run(ctx context.Context, sess *Session, sources ...model.Source) (*model.SessionResult, error) {
	start := time.Now()
	p.deps.Observer.SessionStarted()
	defer p.deps.Observer.SessionFinished()

	sepModel, err := model.LookupModel(string(sess.opts.Model))
	if err != nil {
		verr := pkgerrors.NewValidationError("model", sess.opts.Model, err.Error())
		sess.fail(verr)
		return nil, verr
	}
	sepModel = sepModel.ForRoles(sess.opts.Roles)

	if _, err := sess.Acquire(ctx, sources...); err != nil {
		return nil, err
	}
	if _, err := sess.Separate(ctx, sepModel); err != nil {
		return nil, err
	}

	combineStart := time.Now()
	combined, err := sess.Combine(ctx, sess.opts.Roles...)
	if err != nil {
		return nil, err
	}
	combineTook := time.Since(combineStart)

	enhanceStart := time.Now()
	enhanced, err := sess.Enhance(ctx, sess.opts.Enhancement)
	if err != nil {
		return nil, err
	}

	sess.report(progress.StageDone, 100, "done")

	return &model.SessionResult{
		SessionID:    sess.ID(),
		CombinedPath: combined,
		EnhancedPath: enhanced,
		Combined:     combineTook,
		Enhanced:     time.Since(enhanceStart),
		Elapsed:      time.Since(start),
		FinishedAt:   time.Now(),
	}, nil
}

// ProbeFile probes audio metadata for a path.
func (p *Pipeline) ProbeFile(ctx context.Context, path string) (*model.AudioMetadata, error) {
	if p.deps.Executor == nil {
		return nil, pkgerrors.NewValidationError("executor", nil, "no ffprobe executor configured")
	}
	data, err := p.deps.Executor.Probe(ctx, path)
	if err != nil {
		return nil, err
	}
	return ffmpeg.ParseProbe(data)
}

type noopObserver struct{}

func (noopObserver) ObserveStage(string, time.Duration, error) {}
func (noopObserver) SessionStarted()                            {}
func (noopObserver) SessionFinished()                           {}
