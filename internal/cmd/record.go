package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/livecap/internal/capture"
	"github.com/Iron-Ham/livecap/internal/config"
	"github.com/Iron-Ham/livecap/internal/keystop"
	"github.com/Iron-Ham/livecap/internal/logging"
	"github.com/Iron-Ham/livecap/internal/metrics"
	"github.com/Iron-Ham/livecap/internal/postprocess"
	"github.com/Iron-Ham/livecap/internal/probe"
	"github.com/Iron-Ham/livecap/internal/recorder"
	"github.com/Iron-Ham/livecap/internal/resolution"
	"github.com/Iron-Ham/livecap/internal/resolver"
	"github.com/Iron-Ham/livecap/internal/segment"
	"github.com/Iron-Ham/livecap/internal/supervisor"
	"github.com/Iron-Ham/livecap/internal/thumbnail"
)

var recordCmd = &cobra.Command{
	Use:   "record [subject...]",
	Short: "Record live broadcasts",
	Long: `Record the live broadcasts of one or more subjects.

Subjects come from the arguments or from recorder.subjects in the config
file. In manual mode each subject is checked once; in automatic mode each
subject is checked every recorder.check_interval_minutes and every
broadcast is recorded until interrupted.

Use --url to record a stream URL directly; the single subject argument then
only names the output files.

Press Ctrl+C (or q then Enter on a terminal) to stop. The file being
written is always finalized.`,
	RunE: runRecord,
}

func init() {
	rootCmd.AddCommand(recordCmd)
	recordCmd.Flags().String("url", "", "record this stream URL instead of resolving subjects")
	recordCmd.Flags().StringP("mode", "m", "", "manual or automatic (default from config)")
	recordCmd.Flags().StringP("output-dir", "o", "", "directory for recordings (default from config)")
	recordCmd.Flags().Int("interval", 0, "minutes between live checks in automatic mode")
	recordCmd.Flags().Bool("no-thumbnails", false, "disable periodic thumbnails")
	recordCmd.Flags().Bool("metrics", false, "serve Prometheus metrics on metrics.addr")
}

func runRecord(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := applyRecordFlags(cmd, cfg); err != nil {
		return err
	}
	url, _ := cmd.Flags().GetString("url")

	subjects := args
	if len(subjects) == 0 {
		subjects = cfg.Recorder.Subjects
	}
	subjects = normalizeSubjects(subjects)
	res, subjects, err := buildResolver(cfg, url, subjects)
	if err != nil {
		return err
	}

	logger, err := newRecordLogger(cfg, subjects)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	if keystop.Start(ctx, stop) {
		fmt.Fprintln(out, keystop.Hint)
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		router := metrics.NewRouter(m, metrics.StatusSource{Fs: afero.NewOsFs(), Dir: cfg.Status.Dir}, logger)
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, router, logger); err != nil {
				logger.Error("metrics server failed", "error", err.Error())
				fmt.Fprintf(cmd.ErrOrStderr(), "[!] %v\n", err)
			}
		}()
	}

	rec := buildRecorder(cfg, res, logger, m, out)
	return rec.Run(ctx, subjects)
}

func applyRecordFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("mode") {
		mode, _ := flags.GetString("mode")
		if mode != config.ModeManual && mode != config.ModeAutomatic {
			return fmt.Errorf("invalid mode %q: valid options are %s", mode, strings.Join(config.ValidModes(), ", "))
		}
		cfg.Recorder.Mode = mode
	}
	if flags.Changed("output-dir") {
		cfg.Recorder.OutputDir, _ = flags.GetString("output-dir")
	}
	if flags.Changed("interval") {
		minutes, _ := flags.GetInt("interval")
		if minutes <= 0 {
			return fmt.Errorf("invalid interval %d: must be positive", minutes)
		}
		cfg.Recorder.CheckIntervalMinutes = minutes
	}
	if off, _ := flags.GetBool("no-thumbnails"); off {
		cfg.Thumbnail.Enabled = false
	}
	if on, _ := flags.GetBool("metrics"); on {
		cfg.Metrics.Enabled = true
	}
	return nil
}

// normalizeSubjects trims a leading '@' and drops blanks and duplicates.
func normalizeSubjects(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimPrefix(strings.TrimSpace(s), "@")
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func buildResolver(cfg *config.Config, url string, subjects []string) (resolver.Resolver, []string, error) {
	if url != "" {
		switch len(subjects) {
		case 0:
			subjects = []string{"stream"}
		case 1:
		default:
			return nil, nil, errors.New("--url records a single stream; pass at most one subject")
		}
		return resolver.Static{URL: url}, subjects, nil
	}

	if len(subjects) == 0 {
		return nil, nil, errors.New("no subjects: pass them as arguments or set recorder.subjects")
	}
	switch cfg.Recorder.Platform {
	case config.PlatformTikTok:
		return resolver.NewTikTok(resolver.WithTimeout(cfg.Resolution.ProbeTimeout())), subjects, nil
	case config.PlatformURL:
		return nil, nil, errors.New("recorder.platform is url: pass the stream with --url")
	default:
		return nil, nil, fmt.Errorf("unsupported platform %q", cfg.Recorder.Platform)
	}
}

// newRecordLogger logs to <status_dir>/logs/<name>.log, named after the
// subject when there is only one.
func newRecordLogger(cfg *config.Config, subjects []string) (*logging.Logger, error) {
	if !cfg.Logging.Enabled {
		return logging.NopLogger(), nil
	}
	name := "livecap"
	if len(subjects) == 1 {
		name = segment.SafeName(subjects[0])
	}
	return logging.NewLoggerWithRotation(
		filepath.Join(cfg.Status.Dir, "logs"),
		name,
		cfg.Logging.Level,
		logging.RotationConfig{
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			Compress:   true,
		},
	)
}

// probePath returns the configured ffprobe, or the one that sits next to
// the configured ffmpeg.
func probePath(cfg *config.Config) string {
	if cfg.FFmpeg.ProbePath != "" {
		return cfg.FFmpeg.ProbePath
	}
	return probe.DerivePath(cfg.FFmpeg.Path)
}

func buildRecorder(cfg *config.Config, res resolver.Resolver, logger *logging.Logger, m *metrics.Metrics, out io.Writer) *recorder.Recorder {
	launcher := supervisor.FFmpegLauncher{Config: capture.Config{
		FFmpegPath:      cfg.FFmpeg.Path,
		RWTimeout:       cfg.FFmpeg.RWTimeout(),
		GracefulTimeout: cfg.FFmpeg.GracefulTimeout(),
	}}

	prober := probe.NewFFprobe(probePath(cfg))
	prober.Timeout = cfg.Resolution.ProbeTimeout()
	monitors := supervisor.ProbeMonitors{
		Prober: prober,
		Config: resolution.Config{
			PollInterval:         cfg.Resolution.PollInterval(),
			StabilityThreshold:   cfg.Resolution.StabilityThreshold,
			StableReportInterval: cfg.Resolution.StableReportInterval(),
		},
		Logger: logger,
	}
	if m != nil {
		monitors.OnProbeError = m.ProbeFailed
	}

	opts := []recorder.Option{
		recorder.WithLogger(logger),
		recorder.WithConsole(out),
		recorder.WithRemuxer(&postprocess.Remuxer{
			FFmpegPath: cfg.FFmpeg.Path,
			KeepSource: cfg.FFmpeg.KeepSource,
			Timeout:    cfg.FFmpeg.RemuxTimeout(),
		}),
	}
	if m != nil {
		opts = append(opts, recorder.WithMetrics(m))
	}
	if cfg.Thumbnail.Enabled {
		opts = append(opts, recorder.WithThumbnails(&thumbnail.Capturer{
			FFmpegPath: cfg.FFmpeg.Path,
			Dir:        cfg.Status.Dir,
			Height:     cfg.Thumbnail.Height,
			Interval:   cfg.Thumbnail.Interval(),
			Logger:     logger,
		}))
	}

	return recorder.New(recorder.Config{
		Mode:              recorder.Mode(cfg.Recorder.Mode),
		CheckInterval:     cfg.Recorder.CheckInterval(),
		OutputDir:         cfg.Recorder.OutputDir,
		StatusDir:         cfg.Status.Dir,
		HeartbeatInterval: cfg.Status.HeartbeatInterval(),
		ProgressInterval:  cfg.Status.ProgressInterval(),
		Supervisor: supervisor.Config{
			GracefulTimeout: cfg.FFmpeg.GracefulTimeout(),
		},
	}, res, launcher, monitors, opts...)
}
