// Package recorder schedules broadcasts for one or more subjects: it asks a
// resolver whether a subject is live, hands live broadcasts to a
// supervisor, and keeps each subject's status record current in between.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/spf13/afero"

	"github.com/Iron-Ham/livecap/internal/capture"
	"github.com/Iron-Ham/livecap/internal/logging"
	"github.com/Iron-Ham/livecap/internal/metrics"
	"github.com/Iron-Ham/livecap/internal/postprocess"
	"github.com/Iron-Ham/livecap/internal/resolver"
	"github.com/Iron-Ham/livecap/internal/segment"
	"github.com/Iron-Ham/livecap/internal/status"
	"github.com/Iron-Ham/livecap/internal/supervisor"
	"github.com/Iron-Ham/livecap/internal/thumbnail"
	"github.com/Iron-Ham/livecap/internal/util"
)

// Mode selects how often a subject is checked.
type Mode string

const (
	// ModeManual checks once and records the broadcast if there is one.
	ModeManual Mode = "manual"
	// ModeAutomatic keeps checking and records every broadcast.
	ModeAutomatic Mode = "automatic"
)

// Defaults for Config fields left zero.
const (
	DefaultCheckInterval = 5 * time.Minute
	DefaultErrorBackoff  = 10 * time.Second
)

// Config holds the scheduling settings.
type Config struct {
	Mode Mode
	// CheckInterval is the wait between live checks in automatic mode.
	CheckInterval time.Duration
	// ErrorBackoff is the wait after a failed lookup in automatic mode.
	ErrorBackoff time.Duration
	// OutputDir receives the segment files.
	OutputDir string
	// StatusDir receives one status record per subject.
	StatusDir         string
	HeartbeatInterval time.Duration
	ProgressInterval  time.Duration
	Supervisor        supervisor.Config
}

func (c Config) withDefaults() Config {
	if c.Mode == "" {
		c.Mode = ModeManual
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = DefaultCheckInterval
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = DefaultErrorBackoff
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = status.DefaultHeartbeatInterval
	}
	if c.ProgressInterval <= 0 {
		c.ProgressInterval = status.DefaultProgressInterval
	}
	return c
}

// Recorder records subjects according to its Config.
type Recorder struct {
	config    Config
	resolver  resolver.Resolver
	launcher  supervisor.Launcher
	monitors  supervisor.MonitorFactory
	remuxer   *postprocess.Remuxer
	thumbs    *thumbnail.Capturer
	metrics   *metrics.Metrics
	fs        afero.Fs
	logger    *logging.Logger
	console   io.Writer
	namer     *segment.Namer
	observer  supervisor.Observer
	queue     *postprocess.Queue
	queueOnce sync.Once
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithLogger sets the structured logger.
func WithLogger(logger *logging.Logger) Option {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithConsole sets the writer for human-readable progress.
func WithConsole(w io.Writer) Option {
	return func(r *Recorder) {
		if w != nil {
			r.console = w
		}
	}
}

// WithMetrics records activity in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Recorder) {
		r.metrics = m
	}
}

// WithThumbnails enables periodic thumbnails while recording.
func WithThumbnails(c *thumbnail.Capturer) Option {
	return func(r *Recorder) {
		r.thumbs = c
	}
}

// WithRemuxer sets the post-processor; without one, segments stay as .flv.
func WithRemuxer(rm *postprocess.Remuxer) Option {
	return func(r *Recorder) {
		r.remuxer = rm
	}
}

// WithFs sets the filesystem used for the output directory, status records,
// segment naming and post-processing.
func WithFs(fs afero.Fs) Option {
	return func(r *Recorder) {
		if fs != nil {
			r.fs = fs
		}
	}
}

// New creates a Recorder. launcher starts capture processes and monitors
// creates the resolution monitor of each segment.
func New(config Config, res resolver.Resolver, launcher supervisor.Launcher, monitors supervisor.MonitorFactory, opts ...Option) *Recorder {
	r := &Recorder{
		config:   config.withDefaults(),
		resolver: res,
		launcher: launcher,
		monitors: monitors,
		fs:       afero.NewOsFs(),
		logger:   logging.NopLogger(),
		console:  io.Discard,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.console = util.NewSyncWriter(r.console)
	r.namer = &segment.Namer{Fs: r.fs, Dir: r.config.OutputDir}
	if r.remuxer != nil && r.remuxer.Fs == nil {
		rm := *r.remuxer
		rm.Fs = r.fs
		r.remuxer = &rm
	}
	if r.metrics != nil {
		r.observer = r.metrics
	}
	return r
}

// Run records every subject concurrently until each one is done: after one
// check in manual mode, or when ctx is done in automatic mode. Outstanding
// post-processing is waited for before returning. The returned error joins
// the per-subject errors.
func (r *Recorder) Run(ctx context.Context, subjects []string) error {
	if len(subjects) == 0 {
		return errors.New("no subjects to record")
	}
	r.startQueue(ctx)
	defer r.waitQueue()

	errs := make([]error, len(subjects))
	var wg conc.WaitGroup
	for i, subject := range subjects {
		wg.Go(func() {
			if err := r.RecordSubject(ctx, subject); err != nil {
				errs[i] = fmt.Errorf("%s: %w", subject, err)
			}
		})
	}
	if p := wg.WaitAndRecover(); p != nil {
		r.logger.Error("recorder panicked", "panic", p.String())
		return p.AsError()
	}
	return errors.Join(errs...)
}

// RecordSubject runs the check/record loop for one subject. In manual mode
// an offline subject returns resolver.ErrNotLive. The subject's status
// record exists for the duration of the call.
func (r *Recorder) RecordSubject(ctx context.Context, subject string) error {
	r.startQueue(ctx)
	log := r.logger.WithSubject(subject)

	if r.config.OutputDir != "" {
		if err := r.fs.MkdirAll(r.config.OutputDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	pub, err := status.NewPublisher(r.fs, r.config.StatusDir, subject, status.Options{
		ProgressInterval: r.config.ProgressInterval,
		Logger:           r.logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := pub.Close(); err != nil {
			log.Warn("failed to remove status record", "error", err.Error())
		}
	}()
	log = log.WithInstance(pub.InstanceID())

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go pub.RunHeartbeat(hbCtx, r.config.HeartbeatInterval)

	r.announce("[*] Target user: %s", subject)
	r.announce("[*] Mode: %s", r.config.Mode)
	log.Info("recorder started", "mode", string(r.config.Mode), "status", pub.Path())

	for {
		url, err := r.resolver.Resolve(ctx, subject)
		wait := r.config.CheckInterval
		switch {
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, resolver.ErrNotLive):
			log.Debug("subject offline", "reason", err.Error())
			r.announce("[*] %s is offline", subject)
			pub.MarkWaiting()
			if r.config.Mode == ModeManual {
				return err
			}
		case err != nil:
			log.Warn("live check failed", "error", err.Error())
			r.announce("[!] Live check for %s failed: %v", subject, err)
			pub.MarkWaiting()
			if r.config.Mode == ModeManual {
				return err
			}
			wait = r.config.ErrorBackoff
		default:
			r.announce("[*] %s is LIVE", subject)
			outcome := r.recordBroadcast(ctx, subject, url, pub, log)
			switch {
			case outcome == supervisor.ManualStop:
				return nil
			case r.config.Mode == ModeManual && outcome == supervisor.Error:
				return fmt.Errorf("%w for %s", capture.ErrLaunch, subject)
			case r.config.Mode == ModeManual:
				return nil
			}
			pub.MarkWaiting()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

func (r *Recorder) recordBroadcast(ctx context.Context, subject, url string, pub *status.Publisher, log *logging.Logger) supervisor.Outcome {
	if r.thumbs != nil {
		thumbCtx, stopThumbs := context.WithCancel(ctx)
		defer stopThumbs()
		go r.thumbs.Run(thumbCtx, subject, url)
	}

	sup := supervisor.New(supervisor.Deps{
		Launcher: r.launcher,
		Monitors: r.monitors,
		Namer:    r.namer,
		Post:     r.post(),
		Status:   pub,
		Observer: r.observer,
		Logger:   log,
		Console:  r.console,
	}, r.config.Supervisor)
	outcome := sup.RecordBroadcast(ctx, subject, url)
	log.Info("broadcast ended", "outcome", outcome.String())
	return outcome
}

func (r *Recorder) post() supervisor.PostProcessor {
	if r.queue == nil {
		return nil
	}
	return r.queue
}

// startQueue creates the post-processing queue on first use. The queue
// outlives ctx so a stop still finalizes the last segment.
func (r *Recorder) startQueue(ctx context.Context) {
	if r.remuxer == nil {
		return
	}
	r.queueOnce.Do(func() {
		r.queue = postprocess.NewQueue(context.WithoutCancel(ctx), r.remuxer, r.logger)
		r.queue.OnResult(func(res postprocess.Result, err error) {
			if err == nil {
				r.announce("[*] Saved %s", res.Path)
				return
			}
			if r.metrics != nil && !errors.Is(err, postprocess.ErrEmptyInput) {
				r.metrics.PostProcessFailed()
			}
		})
	})
}

// Wait blocks until queued post-processing has finished.
func (r *Recorder) Wait() {
	r.waitQueue()
}

func (r *Recorder) waitQueue() {
	if r.queue != nil {
		r.queue.Wait()
	}
}

func (r *Recorder) announce(format string, args ...any) {
	fmt.Fprintf(r.console, format+"\n", args...)
}
