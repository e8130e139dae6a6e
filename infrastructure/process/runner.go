// Package process runs the external command-line tools the pipeline
// delegates to, such as demucs and yt-dlp.
package process

import (
	"context"
	"os/exec"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	pkgerrors "github.com/Skryldev/stem-lab/pkg/errors"
	"github.com/Skryldev/stem-lab/pkg/logger"
)

// Runner implements ports.CommandRunner on top of os/exec
type Runner struct {
	log *logger.Logger
}

// NewRunner creates a runner
func NewRunner(log *logger.Logger) *Runner {
	if log == nil {
		log = logger.Nop()
	}
	return &Runner{log: log.Named("process")}
}

// Run executes name with args in dir and returns its combined output. The
// process is killed when ctx ends. A logger carried by ctx, such as the
// one a session stage attaches, takes precedence over the runner's own.
func (r *Runner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	log := logger.FromContext(ctx, r.log)
	start := time.Now()
	log.Info("running command",
		zap.String("name", name),
		zap.Strings("args", args),
		zap.String("dir", dir),
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		if ctx.Err() != nil {
			// the exit status of a killed process says nothing useful
			err = errors.WithSecondaryError(ctx.Err(), err)
		}
		return output, pkgerrors.NewFFmpegError(name+" failed", args, code, string(output), err)
	}

	log.Debug("command finished",
		zap.String("name", name),
		zap.Duration("duration", time.Since(start)),
		zap.ByteString("output", tail(output, 2048)),
	)
	return output, nil
}

func tail(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[len(b)-n:]
}
