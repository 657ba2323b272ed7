// Package thumbnail periodically grabs a still frame from a live stream so
// dashboards can show what is being recorded.
package thumbnail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/Iron-Ham/livecap/internal/logging"
	"github.com/Iron-Ham/livecap/internal/segment"
	"github.com/Iron-Ham/livecap/internal/util"
)

// Ext is the thumbnail file extension.
const Ext = ".jpg"

// Defaults for Capturer fields left zero.
const (
	DefaultHeight   = 400
	DefaultInterval = 60 * time.Second
	DefaultTimeout  = 15 * time.Second
	DefaultMinBytes = 100
)

// ErrTooSmall is returned when ffmpeg produced a file too small to be an image.
var ErrTooSmall = errors.New("thumbnail too small")

// Capturer writes <Dir>/<subject>.jpg from a stream URL.
type Capturer struct {
	FFmpegPath string
	Dir        string
	// Height is the output height in pixels; width keeps the aspect ratio.
	Height   int
	Interval time.Duration
	// Timeout bounds one ffmpeg run.
	Timeout time.Duration
	// MinBytes rejects truncated output.
	MinBytes int64
	Logger   *logging.Logger
}

func (c Capturer) withDefaults() Capturer {
	if c.FFmpegPath == "" {
		c.FFmpegPath = "ffmpeg"
	}
	if c.Height <= 0 {
		c.Height = DefaultHeight
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MinBytes <= 0 {
		c.MinBytes = DefaultMinBytes
	}
	if c.Logger == nil {
		c.Logger = logging.NopLogger()
	}
	return c
}

// Path returns the thumbnail path for subject.
func (c Capturer) Path(subject string) string {
	return filepath.Join(c.Dir, segment.SafeName(subject)+Ext)
}

// Args returns the ffmpeg arguments that write one frame of url to out.
func (c Capturer) Args(url, out string) []string {
	c = c.withDefaults()
	return []string{
		"-y",
		"-loglevel", "warning",
		"-rw_timeout", "5000000",
		"-i", url,
		"-vframes", "1",
		"-q:v", "2",
		"-vf", "scale=-1:" + strconv.Itoa(c.Height),
		"-f", "image2",
		out,
	}
}

// CaptureOnce grabs one frame. The image is written to a temporary name and
// renamed into place, so readers never see a partial file.
func (c Capturer) CaptureOnce(ctx context.Context, subject, url string) error {
	c = c.withDefaults()
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create thumbnail directory: %w", err)
	}
	final := c.Path(subject)
	tmp := final + ".tmp"
	defer func() { _ = os.Remove(tmp) }()

	runCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, c.FFmpegPath, c.Args(url, tmp)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg thumbnail failed: %w: %s", err, util.TruncateRunes(stderr.String(), 300))
	}

	info, err := os.Stat(tmp)
	if err != nil {
		return fmt.Errorf("thumbnail not written: %w", err)
	}
	if info.Size() <= c.MinBytes {
		return fmt.Errorf("%w: %d bytes", ErrTooSmall, info.Size())
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("failed to move thumbnail into place: %w", err)
	}
	c.Logger.Debug("thumbnail captured", "subject", subject, "path", final, "bytes", info.Size())
	return nil
}

// Run captures immediately and then every Interval until ctx is done.
// Failures are logged and retried on the next tick.
func (c Capturer) Run(ctx context.Context, subject, url string) {
	c = c.withDefaults()
	log := c.Logger.WithSubject(subject)

	ticker := time.NewTicker(c.Interval)
	defer ticker.Stop()
	for {
		if err := c.CaptureOnce(ctx, subject, url); err != nil && ctx.Err() == nil {
			log.Warn("thumbnail capture failed", "error", err.Error())
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Remove deletes the thumbnail of subject, if any.
func (c Capturer) Remove(subject string) error {
	if err := os.Remove(c.Path(subject)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove thumbnail: %w", err)
	}
	return nil
}
