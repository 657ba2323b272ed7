// Package supervisor records one broadcast as a sequence of segments.
//
// For each segment the Supervisor launches a capture process, starts a
// resolution monitor and then watches three conditions in a fixed order:
// the capture exiting on its own, a confirmed resolution change, and an
// operator stop (context cancellation). A change restarts capture into a
// new segment; everything else ends the broadcast.
package supervisor

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/Iron-Ham/livecap/internal/capture"
	"github.com/Iron-Ham/livecap/internal/logging"
	"github.com/Iron-Ham/livecap/internal/resolution"
	"github.com/Iron-Ham/livecap/internal/segment"
	"github.com/Iron-Ham/livecap/internal/util"
)

// Outcome is the result of recording a segment or a broadcast.
type Outcome int

const (
	// Finished means the capture process ended on its own, usually because
	// the broadcast ended.
	Finished Outcome = iota
	// Restarted means a resolution change closed the segment and a new one
	// follows. It is never returned by RecordBroadcast.
	Restarted
	// ManualStop means the operator asked to stop.
	ManualStop
	// Error means the capture process could not be launched.
	Error
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case Finished:
		return "finished"
	case Restarted:
		return "restarted"
	case ManualStop:
		return "manual_stop"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Capture is a running capture process.
type Capture interface {
	capture.Terminable
	Pid() int
	Exited() bool
	ExitCode() int
	Tail() []string
}

// Launcher starts a capture of url into outputPath.
type Launcher interface {
	Launch(ctx context.Context, url, outputPath string, handler capture.Handler) (Capture, error)
}

// Monitor watches a stream for a confirmed resolution change.
type Monitor interface {
	Start(ctx context.Context)
	Stop()
	Changed() <-chan struct{}
	Transition() resolution.Transition
}

// MonitorFactory creates a Monitor for one segment.
type MonitorFactory interface {
	NewMonitor(url string) Monitor
}

// PostProcessor receives every closed segment. Submit must not block.
type PostProcessor interface {
	Submit(seg segment.Segment)
}

// StatusSink is the status side channel of the recording loop.
type StatusSink interface {
	MarkRecording(file string)
	UpdateProgress(sizeMB float64)
	MarkStopped()
}

// Namer derives segment paths.
type Namer interface {
	First(subject string, start time.Time) segment.Segment
	Next(prev segment.Segment, restartAt time.Time) segment.Segment
}

// Clock supplies wall-clock time for segment names.
type Clock interface {
	Now() time.Time
}

// Observer is notified of recording events, typically for metrics.
type Observer interface {
	SegmentStarted(subject string)
	SegmentEnded(subject string, outcome Outcome)
	CaptureTerminated(subject string, stage capture.Stage)
	ResolutionChanged(subject string, t resolution.Transition)
}

// Defaults for Config fields left zero.
const (
	DefaultTickInterval = 500 * time.Millisecond
	DefaultRestartDelay = time.Second
)

// Config holds the loop timings.
type Config struct {
	// TickInterval is the longest the loop sleeps between checks.
	TickInterval time.Duration
	// RestartDelay is the pause between two segments, letting the previous
	// capture release its file.
	RestartDelay time.Duration
	// GracefulTimeout is the per-stage wait of the termination protocol.
	GracefulTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.RestartDelay <= 0 {
		c.RestartDelay = DefaultRestartDelay
	}
	if c.GracefulTimeout <= 0 {
		c.GracefulTimeout = capture.DefaultGracefulTimeout
	}
	return c
}

// Deps are the collaborators of a Supervisor. Launcher, Monitors and Namer
// are required; the rest default to no-ops.
type Deps struct {
	Launcher Launcher
	Monitors MonitorFactory
	Namer    Namer
	Post     PostProcessor
	Status   StatusSink
	Clock    Clock
	Observer Observer
	Logger   *logging.Logger
	// Console receives human-readable progress and announcements.
	Console io.Writer
}

// Supervisor runs the per-segment recording loop for one subject at a time.
// It is not safe for concurrent use; create one per recording.
type Supervisor struct {
	config   Config
	launcher Launcher
	monitors MonitorFactory
	namer    Namer
	post     PostProcessor
	status   StatusSink
	clock    Clock
	observer Observer
	logger   *logging.Logger
	console  io.Writer
}

// New creates a Supervisor.
func New(deps Deps, config Config) *Supervisor {
	s := &Supervisor{
		config:   config.withDefaults(),
		launcher: deps.Launcher,
		monitors: deps.Monitors,
		namer:    deps.Namer,
		post:     deps.Post,
		status:   deps.Status,
		clock:    deps.Clock,
		observer: deps.Observer,
		logger:   deps.Logger,
		console:  deps.Console,
	}
	if s.post == nil {
		s.post = nopPost{}
	}
	if s.status == nil {
		s.status = nopStatus{}
	}
	if s.clock == nil {
		s.clock = systemClock{}
	}
	if s.observer == nil {
		s.observer = nopObserver{}
	}
	if s.logger == nil {
		s.logger = logging.NopLogger()
	}
	if s.console == nil {
		s.console = io.Discard
	}
	s.console = util.NewSyncWriter(s.console)
	return s
}

// RecordBroadcast records subject from url until the broadcast ends, the
// operator stops it, or a capture fails to launch. It never returns
// Restarted. A ManualStop also marks the status record stopped.
func (s *Supervisor) RecordBroadcast(ctx context.Context, subject, url string) Outcome {
	seg := s.namer.First(subject, s.clock.Now())
	for {
		outcome := s.RecordSegment(ctx, url, seg)
		if outcome != Restarted {
			if outcome == ManualStop {
				s.status.MarkStopped()
			}
			s.announce("[*] Broadcast outcome for %s: %s", subject, outcome)
			return outcome
		}

		select {
		case <-ctx.Done():
			s.status.MarkStopped()
			s.announce("[*] Broadcast outcome for %s: %s", subject, ManualStop)
			return ManualStop
		case <-time.After(s.config.RestartDelay):
		}
		seg = s.namer.Next(seg, s.clock.Now())
	}
}

// RecordSegment records one segment and reports how it ended. A launch
// failure returns Error before any monitor is started; a context that is
// already done returns ManualStop without launching. Otherwise the
// monitor is always stopped and the segment handed to the post-processor
// before returning.
func (s *Supervisor) RecordSegment(ctx context.Context, url string, seg segment.Segment) Outcome {
	log := s.logger.WithSubject(seg.Subject).WithSegment(seg.Index)
	file := filepath.Base(seg.PartPath)

	if ctx.Err() != nil {
		log.Info("stop requested before launch")
		return ManualStop
	}

	// Progress may arrive before the record says RECORDING; hold it until then.
	ready := make(chan struct{})
	proc, err := s.launcher.Launch(ctx, url, seg.PartPath, s.eventHandler(ready))
	if err != nil {
		close(ready)
		log.Error("capture launch failed", "path", seg.PartPath, "error", err.Error())
		s.announce("[!] Capture launch failed: %v", err)
		s.observer.SegmentEnded(seg.Subject, Error)
		return Error
	}

	log.Info("segment started", "path", seg.PartPath, "pid", proc.Pid(), "restart", seg.IsRestart())
	s.announce("[*] Recording %s", file)
	s.status.MarkRecording(file)
	close(ready)
	s.observer.SegmentStarted(seg.Subject)

	mon := s.monitors.NewMonitor(url)
	mon.Start(ctx)

	outcome := s.watch(ctx, proc, mon, seg, log)

	mon.Stop()
	s.post.Submit(seg)
	s.observer.SegmentEnded(seg.Subject, outcome)
	log.Info("segment ended", "outcome", outcome.String())
	return outcome
}

// watch runs the per-tick checks in priority order: exit, change, stop.
// It wakes on the tick or on any of the three signals, then re-evaluates
// all of them, so a process that exits in the same instant as a confirmed
// change is reported as Finished.
func (s *Supervisor) watch(ctx context.Context, proc Capture, mon Monitor, seg segment.Segment, log *logging.Logger) Outcome {
	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	for {
		if proc.Exited() {
			log.Info("capture exited", "exit_code", proc.ExitCode())
			if code := proc.ExitCode(); code != 0 {
				for _, line := range proc.Tail() {
					log.Debug("capture output", "line", line)
				}
			}
			s.announce("[*] Stream ended (exit code %d)", proc.ExitCode())
			return Finished
		}

		select {
		case <-mon.Changed():
			t := mon.Transition()
			log.Info("resolution changed, restarting",
				"from", t.From.String(),
				"to", t.To.String())
			s.announce("[!] Resolution change: %s -> %s, restarting", t.From, t.To)
			s.observer.ResolutionChanged(seg.Subject, t)
			s.terminate(proc, seg, log)
			return Restarted
		default:
		}

		if ctx.Err() != nil {
			log.Info("stop requested")
			s.announce("[*] Stopping recording gracefully...")
			s.terminate(proc, seg, log)
			return ManualStop
		}

		select {
		case <-ticker.C:
		case <-proc.Done():
		case <-mon.Changed():
		case <-ctx.Done():
		}
	}
}

func (s *Supervisor) terminate(proc Capture, seg segment.Segment, log *logging.Logger) {
	start := time.Now()
	stage := capture.Terminate(proc, s.config.GracefulTimeout)
	log.Info("capture terminated", "stage", stage.String(), "elapsed", time.Since(start).String())
	s.observer.CaptureTerminated(seg.Subject, stage)
}

func (s *Supervisor) eventHandler(ready <-chan struct{}) capture.Handler {
	return func(ev capture.Event) {
		if p, ok := ev.(capture.Progress); ok && p.HasSize {
			<-ready
			s.status.UpdateProgress(p.SizeMB)
		}
		if line := capture.FormatEvent(ev); line != "" {
			fmt.Fprintln(s.console, line)
		}
	}
}

func (s *Supervisor) announce(format string, args ...any) {
	fmt.Fprintf(s.console, format+"\n", args...)
}

type nopPost struct{}

func (nopPost) Submit(segment.Segment) {}

type nopStatus struct{}

func (nopStatus) MarkRecording(string)   {}
func (nopStatus) UpdateProgress(float64) {}
func (nopStatus) MarkStopped()           {}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type nopObserver struct{}

func (nopObserver) SegmentStarted(string)                           {}
func (nopObserver) SegmentEnded(string, Outcome)                    {}
func (nopObserver) CaptureTerminated(string, capture.Stage)         {}
func (nopObserver) ResolutionChanged(string, resolution.Transition) {}
