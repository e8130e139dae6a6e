package usecase

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Skryldev/stem-lab/application/pipeline"
	"github.com/Skryldev/stem-lab/domain/model"
	"github.com/Skryldev/stem-lab/domain/ports"
	pkgerrors "github.com/Skryldev/stem-lab/pkg/errors"
	"github.com/Skryldev/stem-lab/pkg/logger"
	"github.com/Skryldev/stem-lab/pkg/progress"
)

// StemService is the application service in front of the pipeline. It keeps
// the sessions it created so later calls, such as re-running enhancement
// with new parameters, can find them by ID.
type StemService struct {
	pipeline   *pipeline.Pipeline
	workerPool *pipeline.WorkerPool
	storage    ports.StorageProvider
	reporter   progress.Reporter
	log        *logger.Logger

	mu       sync.RWMutex
	sessions map[string]*pipeline.Session
}

// Config holds StemService configuration
type Config struct {
	Deps          pipeline.Deps
	WorkspaceRoot string
	Concat        pipeline.ConcatOptions
	Reporter      progress.Reporter
	Logger        *logger.Logger
	Workers       int
}

// NewStemService creates a new StemService
func NewStemService(cfg Config) (*StemService, error) {
	log := cfg.Logger
	if log == nil {
		var err error
		log, err = logger.New(false)
		if err != nil {
			return nil, err
		}
	}

	reporter := cfg.Reporter
	if reporter == nil {
		reporter = progress.NoopReporter{}
	}

	concat := cfg.Concat
	if concat == (pipeline.ConcatOptions{}) {
		concat = pipeline.DefaultConcatOptions()
	}

	p, err := pipeline.NewPipeline(cfg.Deps, cfg.WorkspaceRoot, concat, log)
	if err != nil {
		return nil, err
	}

	return &StemService{
		pipeline:   p,
		workerPool: pipeline.NewWorkerPool(p, cfg.Workers, log),
		storage:    cfg.Deps.Storage,
		reporter:   reporter,
		log:        log,
		sessions:   make(map[string]*pipeline.Session),
	}, nil
}

// NewSession opens a session for stage-by-stage driving
func (s *StemService) NewSession(opts ...ports.Option) (*pipeline.Session, error) {
	sess, err := s.pipeline.NewSession(ports.Apply(opts...), s.reporter)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.sessions[sess.ID()] = sess
	s.mu.Unlock()
	return sess, nil
}

// Session looks up a session created by this service
func (s *StemService) Session(id string) (*pipeline.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Len returns the number of sessions the service is holding.
func (s *StemService) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Process runs sources through every stage in a new session. Failed runs
// are not retried and their session is forgotten along with its workspace.
// Completed sessions stay registered until Discard.
func (s *StemService) Process(ctx context.Context, sources []model.Source, opts ...ports.Option) (*model.SessionResult, error) {
	sess, err := s.NewSession(opts...)
	if err != nil {
		return nil, err
	}

	s.log.Info("starting session",
		zap.String("session_id", sess.ID()),
		zap.Int("sources", len(sources)),
	)

	result, err := s.pipeline.Run(ctx, sess, sources...)
	if err != nil {
		s.log.Error("session failed",
			zap.String("session_id", sess.ID()),
			zap.String("kind", string(pkgerrors.KindOf(err))),
			zap.Error(err),
		)
		if derr := s.Discard(context.WithoutCancel(ctx), sess.ID()); derr != nil {
			s.log.Warn("failed to remove session workspace",
				zap.String("session_id", sess.ID()),
				zap.Error(derr),
			)
		}
		return nil, err
	}

	s.log.Info("session completed",
		zap.String("session_id", sess.ID()),
		zap.String("enhanced", result.EnhancedPath),
		zap.Duration("duration", result.Elapsed),
	)
	return result, nil
}

// Enhance re-runs enhancement on an existing session with new parameters
func (s *StemService) Enhance(ctx context.Context, sessionID string, params model.EnhancementParameters) (string, error) {
	sess, ok := s.Session(sessionID)
	if !ok {
		return "", pkgerrors.NewValidationError("sessionID", sessionID, "unknown session")
	}
	return sess.Enhance(ctx, params.Clamp())
}

// Discard removes a session's workspace and forgets it
func (s *StemService) Discard(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	if !ok {
		return pkgerrors.NewValidationError("sessionID", sessionID, "unknown session")
	}
	return s.storage.RemoveAll(ctx, sess.Workspace().Root)
}

// ProcessBatch runs jobs as independent sessions. Jobs without an ID get one.
func (s *StemService) ProcessBatch(ctx context.Context, jobs []model.BatchJob) (<-chan model.BatchResult, error) {
	if len(jobs) == 0 {
		ch := make(chan model.BatchResult)
		close(ch)
		return ch, nil
	}
	for i := range jobs {
		if jobs[i].ID == "" {
			jobs[i].ID = uuid.NewString()
		}
	}

	s.log.Info("starting batch processing",
		zap.Int("job_count", len(jobs)),
	)

	return s.workerPool.Run(ctx, jobs, s.reporter), nil
}

// ProbeAudio returns metadata about an audio file without processing it
func (s *StemService) ProbeAudio(ctx context.Context, inputPath string) (*model.AudioMetadata, error) {
	exists, err := s.storage.Exists(ctx, inputPath)
	if err != nil {
		return nil, pkgerrors.NewDecodeError(inputPath, "failed to check file", err)
	}
	if !exists {
		return nil, pkgerrors.NewValidationError("inputPath", inputPath, "file does not exist")
	}
	return s.pipeline.ProbeFile(ctx, inputPath)
}
