package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Skryldev/stem-lab/domain/model"
	pkgerrors "github.com/Skryldev/stem-lab/pkg/errors"
	"github.com/Skryldev/stem-lab/pkg/logger"
	"github.com/Skryldev/stem-lab/pkg/progress"
)

// Session walks one request through acquire, separate, combine and
// enhance. Stages run one at a time; a call made while another stage is
// running is rejected. Any stage error leaves the session Failed.
type Session struct {
	id       string
	ws       model.Workspace
	opts     model.RunOptions
	p        *Pipeline
	reporter progress.Reporter
	log      *logger.Logger

	flight sync.Mutex

	mu             sync.RWMutex
	state          model.SessionState
	failureKind    pkgerrors.ErrorCode
	failureMessage string
	inputs         []model.AcquiredInput
	stemSets       []model.StemSet
	artifacts      map[model.ArtifactName]string
}

// ID returns the session identity
func (s *Session) ID() string { return s.id }

// Workspace returns the session's paths
func (s *Session) Workspace() model.Workspace { return s.ws }

// State returns the current state
func (s *Session) State() model.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Snapshot returns a copy of the session's observable state
func (s *Session) Snapshot() model.SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	artifacts := make(map[model.ArtifactName]string, len(s.artifacts))
	for k, v := range s.artifacts {
		artifacts[k] = v
	}
	return model.SessionSnapshot{
		ID:             s.id,
		State:          s.state,
		FailureKind:    string(s.failureKind),
		FailureMessage: s.failureMessage,
		Inputs:         append([]model.AcquiredInput(nil), s.inputs...),
		StemSets:       append([]model.StemSet(nil), s.stemSets...),
		Artifacts:      artifacts,
	}
}

// Acquire fetches sources into the acquisition area
func (s *Session) Acquire(ctx context.Context, sources ...model.Source) ([]model.AcquiredInput, error) {
	var acquired []model.AcquiredInput
	err := s.run(ctx, progress.StageAcquire, func(ctx context.Context) (func(), error) {
		if err := s.require(model.StateIdle); err != nil {
			return nil, err
		}
		if len(sources) == 0 {
			return nil, pkgerrors.NewAcquisitionError("no sources given", nil)
		}

		var inputs []model.AcquiredInput
		for i, src := range sources {
			err := ctx.Err()
			if err == nil {
				var got []model.AcquiredInput
				got, err = s.p.deps.Acquirer.Acquire(ctx, src, s.ws.AcquisitionDir)
				inputs = append(inputs, got...)
			}
			if err != nil {
				err = classify(err, pkgerrors.ErrCodeAcquisition, func(e error) error {
					return pkgerrors.NewAcquisitionError(fmt.Sprintf("acquire %s", src.Locator), e)
				})
				return nil, multierr.Append(err, s.cleanupInputs(context.WithoutCancel(ctx), inputs))
			}
			s.step(ctx, progress.StageAcquire, percent(i+1, len(sources)), "acquired "+src.Locator)
		}
		if len(inputs) == 0 {
			return nil, pkgerrors.NewAcquisitionError("acquisition produced no inputs", nil)
		}
		inputs = uniqueNames(inputs)

		if s.p.deps.Executor != nil {
			for i := range inputs {
				meta, err := s.p.ProbeFile(ctx, inputs[i].Path)
				if err != nil {
					// non-fatal: decoding later is the authority on whether the input is usable
					s.log.Warn("failed to probe input", zap.String("input", inputs[i].Name), zap.Error(err))
					continue
				}
				inputs[i].Meta = meta
			}
		}

		acquired = inputs
		return func() {
			s.inputs = inputs
			s.state = model.StateAcquired
		}, nil
	})
	return acquired, err
}

// Separate runs the separator over every acquired input, then removes the
// acquired files whether or not separation succeeded.
func (s *Session) Separate(ctx context.Context, m model.SeparationModel) ([]model.StemSet, error) {
	var sets []model.StemSet
	err := s.run(ctx, progress.StageSeparate, func(ctx context.Context) (func(), error) {
		if err := s.require(model.StateAcquired); err != nil {
			return nil, err
		}
		s.mu.RLock()
		inputs := append([]model.AcquiredInput(nil), s.inputs...)
		s.mu.RUnlock()

		out, err := s.separateAll(ctx, inputs, m)
		err = multierr.Append(err, s.cleanupInputs(context.WithoutCancel(ctx), inputs))
		if err != nil {
			return nil, err
		}

		sets = out
		return func() {
			s.stemSets = out
			s.state = model.StateSeparated
		}, nil
	})
	return sets, err
}

func (s *Session) separateAll(ctx context.Context, inputs []model.AcquiredInput, m model.SeparationModel) ([]model.StemSet, error) {
	if m.DownloadURL != "" && s.p.deps.Models != nil {
		path, err := s.p.deps.Models.Ensure(ctx, m, s.ws.ModelDir)
		if err != nil {
			return nil, classify(err, pkgerrors.ErrCodeSeparation, func(e error) error {
				return pkgerrors.NewSeparationError("", fmt.Sprintf("provision model %s", m.Selector), e)
			})
		}
		m.Checkpoint = path
	}

	sets := make([]model.StemSet, 0, len(inputs))
	for i, in := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.log.Info("separating input",
			zap.String("stage", string(progress.StageSeparate)),
			zap.String("input", in.Name),
			zap.String("model", string(m.Selector)),
		)
		set, err := s.p.deps.Separator.Separate(ctx, in, m, s.ws.StemDirFor(in.Name))
		if err != nil {
			return nil, classify(err, pkgerrors.ErrCodeSeparation, func(e error) error {
				return pkgerrors.NewSeparationError(in.Name, "separation failed", e)
			})
		}
		if len(set.Stems) == 0 {
			return nil, pkgerrors.NewSeparationError(in.Name, "separator produced no stems", nil)
		}
		if set.Input == "" {
			set.Input = in.Name
		}
		sets = append(sets, set)
		s.step(ctx, progress.StageSeparate, percent(i+1, len(inputs)), "separated "+in.Name)
	}
	return sets, nil
}

func (s *Session) cleanupInputs(ctx context.Context, inputs []model.AcquiredInput) error {
	var errs error
	for _, in := range inputs {
		errs = multierr.Append(errs, s.p.deps.Storage.Remove(ctx, in.Path))
	}
	if errs != nil {
		s.log.Warn("failed to remove acquired inputs", zap.Error(errs))
	}
	return errs
}

// Combine loads the selected stems of every input, in input order and then
// role order, concatenates them and writes the combined artifact.
func (s *Session) Combine(ctx context.Context, roles ...model.StemRole) (string, error) {
	if len(roles) == 0 {
		roles = []model.StemRole{model.RoleVocals}
	}
	path := s.ws.ArtifactPath(model.ArtifactCombined)
	err := s.run(ctx, progress.StageCombine, func(ctx context.Context) (func(), error) {
		s.mu.RLock()
		state := s.state
		sets := append([]model.StemSet(nil), s.stemSets...)
		s.mu.RUnlock()
		if state != model.StateSeparated {
			return nil, pkgerrors.NewMissingArtifactError("stems", s.ws.StemDir).
				WithField("state", state.String())
		}

		var stems []model.Stem
		for _, set := range sets {
			for _, role := range roles {
				selected := set.Select(role)
				if len(selected) == 0 {
					return nil, pkgerrors.NewMissingArtifactError(
						fmt.Sprintf("%s/%s", set.Input, role), s.ws.StemDirFor(set.Input))
				}
				stems = append(stems, selected...)
			}
		}

		buffers := make([]*model.Buffer, 0, len(stems))
		for i, stem := range stems {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			ok, err := s.p.deps.Storage.Exists(ctx, stem.Path)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, pkgerrors.NewMissingArtifactError(string(stem.Role), stem.Path)
			}
			buf, err := s.p.deps.Codec.Load(ctx, stem.Path)
			if err != nil {
				return nil, err
			}
			buffers = append(buffers, buf)
			s.step(ctx, progress.StageCombine, percent(i+1, len(stems))*0.8, "loaded "+stem.Path)
		}

		combined, err := s.p.concat.Concatenate(buffers)
		if err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := s.p.deps.Codec.Save(ctx, combined, path, s.opts.CombinedBitDepth); err != nil {
			return nil, err
		}

		s.log.Info("combined stems",
			zap.String("stage", string(progress.StageCombine)),
			zap.Int("stems", len(stems)),
			zap.Duration("duration", combined.Duration()),
			zap.String("path", path),
		)

		return func() {
			s.artifacts[model.ArtifactCombined] = path
			s.state = model.StateCombined
		}, nil
	})
	if err != nil {
		return "", err
	}
	return path, nil
}

// Enhance reads the combined artifact, enhances it and writes the enhanced
// artifact at the final bit depth. It may be called again with other
// parameters once the combined artifact exists.
func (s *Session) Enhance(ctx context.Context, params model.EnhancementParameters) (string, error) {
	src := s.ws.ArtifactPath(model.ArtifactCombined)
	dst := s.ws.ArtifactPath(model.ArtifactEnhanced)
	err := s.run(ctx, progress.StageEnhance, func(ctx context.Context) (func(), error) {
		ok, err := s.p.deps.Storage.Exists(ctx, src)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, pkgerrors.NewMissingArtifactError(string(model.ArtifactCombined), src)
		}
		if err := s.require(model.StateCombined, model.StateEnhanced); err != nil {
			return nil, err
		}

		buf, err := s.p.deps.Codec.Load(ctx, src)
		if err != nil {
			return nil, err
		}
		s.step(ctx, progress.StageEnhance, 20, "loaded combined artifact")

		enhanced, err := s.p.enhancer.Enhance(buf, params)
		if err != nil {
			return nil, err
		}
		s.step(ctx, progress.StageEnhance, 80, "enhanced")
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := s.p.deps.Codec.Save(ctx, enhanced, dst, model.FinalBitDepth); err != nil {
			return nil, err
		}

		return func() {
			s.artifacts[model.ArtifactEnhanced] = dst
			s.state = model.StateEnhanced
		}, nil
	})
	if err != nil {
		return "", err
	}
	return dst, nil
}

// stageFunc does a stage's work and returns a commit that applies its
// result to the session. Commits run under the state lock.
type stageFunc func(ctx context.Context) (func(), error)

func (s *Session) run(ctx context.Context, stage progress.Stage, fn stageFunc) error {
	if !s.flight.TryLock() {
		return pkgerrors.NewValidationError("session", s.id, "another stage is already running")
	}
	defer s.flight.Unlock()

	if s.State() == model.StateFailed {
		return pkgerrors.NewValidationError("session", s.id,
			fmt.Sprintf("session failed earlier, %s is not allowed", stage))
	}

	log := s.log.With(zap.String("stage", string(stage)))
	log.Info("stage started")
	s.report(stage, 0, "started")

	gate := &stageGate{}
	stageCtx := context.WithValue(logger.WithContext(ctx, log), stageGateKey{}, gate)

	start := time.Now()
	commit, err := s.withTimeout(stageCtx, stage, fn)
	elapsed := time.Since(start)
	gate.close()
	s.p.deps.Observer.ObserveStage(string(stage), elapsed, err)

	if err != nil {
		s.fail(err)
		log.Error("stage failed",
			zap.String("kind", string(pkgerrors.KindOf(err))),
			zap.Duration("duration", elapsed),
			zap.Error(err),
		)
		s.report(progress.StageFailed, 100, err.Error())
		return err
	}

	s.mu.Lock()
	commit()
	s.mu.Unlock()

	log.Info("stage finished", zap.Duration("duration", elapsed))
	s.report(stage, 100, "finished")
	return nil
}

// withTimeout runs fn under the session's stage timeout. On expiry the
// stage result is discarded; DSP work is not interrupted, but loops stop
// at their next context check. Cancellation of the caller's context is
// returned as is rather than as a timeout.
func (s *Session) withTimeout(parent context.Context, stage progress.Stage, fn stageFunc) (func(), error) {
	if s.opts.StageTimeout <= 0 {
		return fn(parent)
	}
	ctx, cancel := context.WithTimeout(parent, s.opts.StageTimeout)
	defer cancel()

	type outcome struct {
		commit func()
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		commit, err := fn(ctx)
		done <- outcome{commit: commit, err: err}
	}()

	select {
	case o := <-done:
		return o.commit, o.err
	case <-ctx.Done():
		if err := parent.Err(); err != nil {
			return nil, errors.Wrapf(err, "stage %s interrupted", stage)
		}
		return nil, pkgerrors.NewTimeoutError(string(stage), ctx.Err())
	}
}

func (s *Session) require(allowed ...model.SessionState) error {
	state := s.State()
	for _, a := range allowed {
		if state == a {
			return nil
		}
	}
	return pkgerrors.NewValidationError("state", state.String(),
		fmt.Sprintf("expected one of %v", allowed))
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = model.StateFailed
	s.failureKind = pkgerrors.KindOf(err)
	s.failureMessage = err.Error()
}

// stageGate stops progress from a stage once the stage has returned, so
// work that outlives a timeout cannot report after the failure.
type stageGate struct {
	mu     sync.Mutex
	closed bool
}

type stageGateKey struct{}

func (g *stageGate) close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}

// step reports progress from inside a running stage
func (s *Session) step(ctx context.Context, stage progress.Stage, pct float64, msg string) {
	g, ok := ctx.Value(stageGateKey{}).(*stageGate)
	if !ok {
		s.report(stage, pct, msg)
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed || ctx.Err() != nil {
		return
	}
	s.report(stage, pct, msg)
}

func (s *Session) report(stage progress.Stage, pct float64, msg string) {
	s.reporter.Report(progress.Update{
		SessionID: s.id,
		Stage:     stage,
		Percent:   pct,
		Message:   msg,
	})
}

// classify returns err unchanged when it already carries code and wraps
// it otherwise, so collaborator failures surface under the stage's kind.
func classify(err error, code pkgerrors.ErrorCode, wrap func(error) error) error {
	if pkgerrors.HasCode(err, code) {
		return err
	}
	return wrap(err)
}

func percent(done, total int) float64 {
	if total == 0 {
		return 100
	}
	return float64(done) / float64(total) * 100
}

// uniqueNames suffixes repeated input names so their stem directories
// do not collide. A suffixed name is never one already in use.
func uniqueNames(inputs []model.AcquiredInput) []model.AcquiredInput {
	used := make(map[string]bool, len(inputs))
	for i := range inputs {
		name := inputs[i].Name
		for n := 2; used[name]; n++ {
			name = fmt.Sprintf("%s-%d", inputs[i].Name, n)
		}
		used[name] = true
		inputs[i].Name = name
	}
	return inputs
}
