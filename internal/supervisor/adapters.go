package supervisor

import (
	"context"

	"github.com/Iron-Ham/livecap/internal/capture"
	"github.com/Iron-Ham/livecap/internal/logging"
	"github.com/Iron-Ham/livecap/internal/probe"
	"github.com/Iron-Ham/livecap/internal/resolution"
)

// FFmpegLauncher launches capture.Process instances from a template config.
type FFmpegLauncher struct {
	Config capture.Config
}

// Launch starts ffmpeg recording url into outputPath.
func (l FFmpegLauncher) Launch(ctx context.Context, url, outputPath string, handler capture.Handler) (Capture, error) {
	cfg := l.Config
	cfg.URL = url
	cfg.OutputPath = outputPath
	proc, err := capture.Start(ctx, cfg, handler)
	if err != nil {
		return nil, err
	}
	return proc, nil
}

// ProbeMonitors creates resolution monitors backed by a Prober.
type ProbeMonitors struct {
	Prober       probe.Prober
	Config       resolution.Config
	Logger       *logging.Logger
	OnProbeError func(error)
}

// NewMonitor returns an unstarted resolution.Monitor for url.
func (f ProbeMonitors) NewMonitor(url string) Monitor {
	opts := []resolution.Option{resolution.WithLogger(f.Logger)}
	if f.OnProbeError != nil {
		opts = append(opts, resolution.WithProbeErrorHook(f.OnProbeError))
	}
	return resolution.NewMonitor(f.Prober, url, f.Config, opts...)
}
