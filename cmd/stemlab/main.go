package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"go.uber.org/zap"

	stemlab "github.com/Skryldev/stem-lab"
	"github.com/Skryldev/stem-lab/internal/config"
	"github.com/Skryldev/stem-lab/pkg/logger"
	"github.com/Skryldev/stem-lab/pkg/retry"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to YAML config file")
		envFile    = flag.String("env", ".env", "dotenv file loaded before the environment is read")
		modelName  = flag.String("model", "", "separation model (htdemucs, htdemucs_ft, mdx_extra, drumsep)")
		roles      = flag.String("roles", "", "comma separated stem roles to combine")
		echo       = flag.Float64("echo", 0, "echo reduction 0.7..0.95")
		presence   = flag.Float64("presence", 0, "presence 0.1..0.3")
		root       = flag.String("root", "", "workspace root")
		discard    = flag.Bool("discard", false, "remove the session workspace after printing the result")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] <file-or-url>...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	if *root != "" {
		cfg.Workspace.Root = *root
	}

	log, err := logger.NewWithLevel(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, flag.Args(), *modelName, *roles, *echo, *presence, *discard); err != nil {
		log.Error("run failed", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
	_ = log.Sync()
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger, args []string,
	modelName, roles string, echo, presence float64, discard bool) error {

	reg := prometheus.NewRegistry()
	if cfg.Metrics.Address != "" {
		srv := serveMetrics(cfg.Metrics.Address, reg, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	progressCh := make(chan stemlab.ProgressUpdate, 32)
	bars := mpb.NewWithContext(ctx, mpb.WithWidth(48))
	done := make(chan struct{})
	go func() {
		defer close(done)
		renderProgress(bars, progressCh)
	}()

	processor, err := stemlab.New(processorConfig(cfg, log, progressCh, reg))
	if err != nil {
		close(progressCh)
		<-done
		return err
	}
	defer processor.Close()

	opts := runOptions(cfg, modelName, roles, echo, presence)
	sources := make([]stemlab.Source, 0, len(args))
	for _, a := range args {
		if strings.Contains(a, "://") {
			sources = append(sources, stemlab.URLSource(a))
		} else {
			sources = append(sources, stemlab.FileSource(a))
		}
	}

	result, err := processor.Process(ctx, sources, opts...)
	close(progressCh)
	<-done
	bars.Wait()
	if err != nil {
		return err
	}

	fmt.Printf("session:  %s\n", result.SessionID)
	fmt.Printf("combined: %s (%s)\n", result.CombinedPath, result.Combined.Round(time.Millisecond))
	if result.EnhancedPath != "" {
		fmt.Printf("enhanced: %s (%s)\n", result.EnhancedPath, result.Enhanced.Round(time.Millisecond))
	}
	fmt.Printf("took:     %s\n", result.Elapsed.Round(time.Millisecond))

	if discard {
		return processor.Discard(ctx, result.SessionID)
	}
	return nil
}

func processorConfig(cfg *config.Config, log *logger.Logger, ch chan<- stemlab.ProgressUpdate, reg prometheus.Registerer) stemlab.Config {
	rc := retry.DefaultConfig()
	rc.MaxAttempts = cfg.Download.MaxAttempts

	out := stemlab.Config{
		WorkspaceRoot: cfg.Workspace.Root,
		FFmpegPath:    cfg.Tools.FFmpeg,
		FFprobePath:   cfg.Tools.FFprobe,
		DemucsPath:    cfg.Tools.Demucs,
		Device:        cfg.Tools.Device,
		YTDLPPath:     cfg.Tools.YTDLP,
		MediaHosts:    cfg.Download.MediaHosts,
		HTTPClient:    &http.Client{Timeout: cfg.Download.TimeoutDuration()},
		Concat: stemlab.ConcatOptions{
			SilenceThresholdDBFS: cfg.Concat.ThresholdDBFS,
			MinSilence:           cfg.Concat.MinSilence(),
			KeepSilence:          cfg.Concat.KeepSilence(),
		},
		Logger:      log,
		ProgressCh:  ch,
		Metrics:     reg,
		Workers:     cfg.Pipeline.Workers,
		RetryConfig: &rc,
	}
	if cfg.Separation.Mode == "remote" {
		out.SeparationEndpoint = cfg.Separation.Endpoint
	}
	return out
}

func runOptions(cfg *config.Config, modelName, roles string, echo, presence float64) []stemlab.Option {
	m := cfg.Pipeline.Model
	if modelName != "" {
		m = modelName
	}
	stemRoles := cfg.Pipeline.StemRoles()
	if roles != "" {
		stemRoles = stemRoles[:0]
		for _, r := range strings.Split(roles, ",") {
			if r = strings.TrimSpace(r); r != "" {
				stemRoles = append(stemRoles, stemlab.StemRole(r))
			}
		}
	}

	enh := stemlab.EnhancementParameters{
		EchoReduction: cfg.Pipeline.EchoReduction,
		Presence:      cfg.Pipeline.Presence,
	}
	if echo != 0 {
		enh.EchoReduction = echo
	}
	if presence != 0 {
		enh.Presence = presence
	}

	return []stemlab.Option{
		stemlab.WithModel(stemlab.ModelSelector(m)),
		stemlab.WithStemRoles(stemRoles...),
		stemlab.WithEnhancement(enh),
		stemlab.WithStageTimeout(cfg.Pipeline.StageTimeoutDuration()),
		stemlab.WithCombinedBitDepth(cfg.Pipeline.CombinedBitDepth),
	}
}

// renderProgress draws one bar per session until ch is closed
func renderProgress(p *mpb.Progress, ch <-chan stemlab.ProgressUpdate) {
	type sessionBar struct {
		bar   *mpb.Bar
		stage *atomic.Value
	}
	bars := make(map[string]sessionBar)

	for upd := range ch {
		sb, ok := bars[upd.SessionID]
		if !ok {
			stage := &atomic.Value{}
			stage.Store(string(upd.Stage))
			name := upd.SessionID
			if len(name) > 8 {
				name = name[:8]
			}
			sb = sessionBar{
				stage: stage,
				bar: p.AddBar(100,
					mpb.PrependDecorators(
						decor.Name(name+" "),
						decor.Any(func(decor.Statistics) string {
							return fmt.Sprintf("%-9s", stage.Load().(string))
						}),
					),
					mpb.AppendDecorators(decor.Percentage()),
				),
			}
			bars[upd.SessionID] = sb
		}

		sb.stage.Store(string(upd.Stage))
		switch upd.Stage {
		case stemlab.StageDone:
			sb.bar.SetTotal(-1, true)
		case stemlab.StageFailed:
			sb.bar.Abort(false)
		default:
			sb.bar.SetCurrent(int64(upd.Percent))
		}
	}

	for _, sb := range bars {
		if !sb.bar.Completed() {
			sb.bar.Abort(false)
		}
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, log *logger.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server stopped", zap.Error(err))
		}
	}()
	log.Info("serving metrics", zap.String("addr", addr))
	return srv
}
