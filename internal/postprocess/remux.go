// Package postprocess converts finished segments to their final container.
//
// Capture writes FLV because it survives an abrupt stop; once a segment is
// closed it is remuxed (stream copy, no re-encode) into MP4 under a
// temporary name and then renamed into place.
package postprocess

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/livecap/internal/segment"
	"github.com/Iron-Ham/livecap/internal/util"
)

// ErrEmptyInput is returned when the segment's in-progress file is missing
// or has no content. It is reported but never fatal.
var ErrEmptyInput = errors.New("segment output empty or missing")

// DefaultTimeout bounds one remux.
const DefaultTimeout = 30 * time.Minute

// tempSuffix marks a final file that is still being written.
const tempSuffix = ".part"

// Result describes a completed remux.
type Result struct {
	Segment  segment.Segment
	Path     string
	SizeMB   float64
	Duration time.Duration
	// SourceKept is true when the in-progress file was left on disk.
	SourceKept bool
}

// Remuxer runs ffmpeg to convert one segment.
type Remuxer struct {
	FFmpegPath string
	// KeepSource leaves the .flv next to the .mp4.
	KeepSource bool
	Timeout    time.Duration
	// Fs holds the segment files. Defaults to the OS filesystem.
	Fs afero.Fs
}

func (r *Remuxer) fs() afero.Fs {
	if r.Fs == nil {
		return afero.NewOsFs()
	}
	return r.Fs
}

// Args returns the ffmpeg arguments that remux in to out.
func (r *Remuxer) Args(in, out string) []string {
	return []string{"-y", "-loglevel", "error", "-i", in, "-c", "copy", "-f", "mp4", out}
}

// Remux converts seg.PartPath into seg.FinalPath.
func (r *Remuxer) Remux(ctx context.Context, seg segment.Segment) (Result, error) {
	res := Result{Segment: seg, Path: seg.FinalPath, SourceKept: true}

	fs := r.fs()
	info, err := fs.Stat(seg.PartPath)
	if err != nil || info.Size() == 0 {
		return res, fmt.Errorf("%w: %s", ErrEmptyInput, seg.PartPath)
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	path := r.FFmpegPath
	if path == "" {
		path = "ffmpeg"
	}
	tmp := seg.FinalPath + tempSuffix
	start := time.Now()

	cmd := exec.CommandContext(ctx, path, r.Args(seg.PartPath, tmp)...)
	if out, err := cmd.CombinedOutput(); err != nil {
		_ = fs.Remove(tmp)
		return res, fmt.Errorf("remux %s failed: %w: %s", seg.PartPath, err, util.TruncateRunes(string(out), 500))
	}

	if err := fs.Rename(tmp, seg.FinalPath); err != nil {
		_ = fs.Remove(tmp)
		return res, fmt.Errorf("failed to move remuxed file into place: %w", err)
	}
	res.Duration = time.Since(start)

	if fi, err := fs.Stat(seg.FinalPath); err == nil {
		res.SizeMB = float64(fi.Size()) / (1 << 20)
	}

	if !r.KeepSource {
		if err := fs.Remove(seg.PartPath); err == nil {
			res.SourceKept = false
		}
	}
	return res, nil
}
