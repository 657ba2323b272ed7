// Package probe reads the encoded resolution of a live media URL with
// ffprobe. Every transient failure collapses to ErrNoReading; only a
// missing probe binary is reported as ErrToolMissing.
package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrNoReading is returned when the probe produced no usable resolution
	// (timeout, non-zero exit, unparseable output).
	ErrNoReading = errors.New("no resolution reading")

	// ErrToolMissing is returned when the probe binary cannot be executed at all.
	ErrToolMissing = errors.New("probe tool not found")
)

// Default timeouts for a single probe invocation.
const (
	DefaultTimeout   = 10 * time.Second
	DefaultIOTimeout = 5 * time.Second
)

// Resolution is an encoded frame size. The zero value means "unknown".
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Valid reports whether both dimensions are positive.
func (r Resolution) Valid() bool {
	return r.Width > 0 && r.Height > 0
}

// String renders the resolution as WIDTHxHEIGHT.
func (r Resolution) String() string {
	if !r.Valid() {
		return "unknown"
	}
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// Prober returns the current resolution of a media URL.
type Prober interface {
	Probe(ctx context.Context, url string) (Resolution, error)
}

// FFprobe is a Prober backed by the ffprobe binary.
type FFprobe struct {
	// Path is the ffprobe executable (default "ffprobe").
	Path string
	// Timeout bounds the wall-clock time of one invocation.
	Timeout time.Duration
	// IOTimeout is passed to ffprobe as its network read timeout.
	IOTimeout time.Duration
}

// NewFFprobe returns an FFprobe with default timeouts.
func NewFFprobe(path string) *FFprobe {
	if path == "" {
		path = "ffprobe"
	}
	return &FFprobe{Path: path, Timeout: DefaultTimeout, IOTimeout: DefaultIOTimeout}
}

// Args returns the ffprobe arguments used to probe url.
func (f *FFprobe) Args(url string) []string {
	ioTimeout := f.IOTimeout
	if ioTimeout <= 0 {
		ioTimeout = DefaultIOTimeout
	}
	return []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "json",
		"-timeout", strconv.FormatInt(ioTimeout.Microseconds(), 10),
		url,
	}
}

// Probe runs ffprobe once against url.
func (f *FFprobe) Probe(ctx context.Context, url string) (Resolution, error) {
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, f.Path, f.Args(url)...)
	// Don't let a grandchild holding stdout keep us past the deadline.
	cmd.WaitDelay = time.Second
	out, err := cmd.Output()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return Resolution{}, fmt.Errorf("%w: %s", ErrToolMissing, f.Path)
		}
		var pathErr *exec.Error
		if errors.As(err, &pathErr) {
			return Resolution{}, fmt.Errorf("%w: %v", ErrToolMissing, pathErr)
		}
		return Resolution{}, fmt.Errorf("%w: %v", ErrNoReading, err)
	}

	res, ok := ParseOutput(out)
	if !ok {
		return Resolution{}, ErrNoReading
	}
	return res, nil
}

type ffprobeReport struct {
	Streams []Resolution `json:"streams"`
}

var resolutionPattern = regexp.MustCompile(`(?s)"width"\s*:\s*(\d+).*?"height"\s*:\s*(\d+)`)

// ParseOutput extracts the first video stream's resolution from an ffprobe
// JSON report. Truncated or otherwise malformed JSON falls back to a
// pattern match on the width/height keys.
func ParseOutput(out []byte) (Resolution, bool) {
	var report ffprobeReport
	if err := json.Unmarshal(out, &report); err == nil {
		for _, s := range report.Streams {
			if s.Valid() {
				return s, true
			}
		}
		return Resolution{}, false
	}

	m := resolutionPattern.FindSubmatch(out)
	if m == nil {
		return Resolution{}, false
	}
	w, _ := strconv.Atoi(string(m[1]))
	h, _ := strconv.Atoi(string(m[2]))
	res := Resolution{Width: w, Height: h}
	return res, res.Valid()
}

// DerivePath returns the ffprobe binary that sits next to ffmpegPath, or
// plain "ffprobe" when the ffmpeg path does not name ffmpeg.
func DerivePath(ffmpegPath string) string {
	dir, base := filepath.Split(ffmpegPath)
	switch strings.ToLower(base) {
	case "ffmpeg":
		return dir + "ffprobe"
	case "ffmpeg.exe":
		return dir + "ffprobe.exe"
	default:
		return "ffprobe"
	}
}
