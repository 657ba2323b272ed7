package postprocess

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/livecap/internal/segment"
	"github.com/Iron-Ham/livecap/internal/testutil"
)

// copyFFmpeg stands in for ffmpeg by copying the input to the output.
const copyFFmpeg = `cp "$5" "${10}"`

func newSegment(t *testing.T, content string) segment.Segment {
	t.Helper()
	dir := t.TempDir()
	seg := segment.Segment{
		Subject:   "alice",
		PartPath:  filepath.Join(dir, "alice.flv"),
		FinalPath: filepath.Join(dir, "alice.mp4"),
	}
	if content != "" {
		testutil.WriteFile(t, dir, "alice.flv", []byte(content))
	}
	return seg
}

func TestRemux(t *testing.T) {
	seg := newSegment(t, "flv-bytes")
	r := &Remuxer{FFmpegPath: testutil.WriteScript(t, "ffmpeg", copyFFmpeg)}

	res, err := r.Remux(context.Background(), seg)
	if err != nil {
		t.Fatalf("Remux failed: %v", err)
	}
	data, err := os.ReadFile(seg.FinalPath)
	if err != nil || string(data) != "flv-bytes" {
		t.Errorf("final file = %q, %v", data, err)
	}
	if _, err := os.Stat(seg.PartPath); !os.IsNotExist(err) {
		t.Error("source should be removed")
	}
	if _, err := os.Stat(seg.FinalPath + tempSuffix); !os.IsNotExist(err) {
		t.Error("temporary file should not remain")
	}
	if res.SourceKept {
		t.Error("SourceKept should be false")
	}
}

func TestRemux_KeepSource(t *testing.T) {
	seg := newSegment(t, "flv-bytes")
	r := &Remuxer{FFmpegPath: testutil.WriteScript(t, "ffmpeg", copyFFmpeg), KeepSource: true}

	res, err := r.Remux(context.Background(), seg)
	if err != nil {
		t.Fatalf("Remux failed: %v", err)
	}
	if !res.SourceKept {
		t.Error("SourceKept should be true")
	}
	if _, err := os.Stat(seg.PartPath); err != nil {
		t.Errorf("source should be kept: %v", err)
	}
}

func TestRemux_EmptyOrMissingInput(t *testing.T) {
	r := &Remuxer{FFmpegPath: "/nonexistent/ffmpeg"}

	missing := newSegment(t, "")
	if _, err := r.Remux(context.Background(), missing); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("missing input error = %v, want ErrEmptyInput", err)
	}

	empty := newSegment(t, "")
	testutil.WriteFile(t, filepath.Dir(empty.PartPath), filepath.Base(empty.PartPath), nil)
	if _, err := r.Remux(context.Background(), empty); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("empty input error = %v, want ErrEmptyInput", err)
	}
}

func TestRemux_ChecksInputOnFs(t *testing.T) {
	seg := newSegment(t, "flv-bytes")
	fs := afero.NewMemMapFs()
	r := &Remuxer{FFmpegPath: "/nonexistent/ffmpeg", Fs: fs}

	if _, err := r.Remux(context.Background(), seg); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("input only on disk: error = %v, want ErrEmptyInput", err)
	}

	r.Fs = afero.NewOsFs()
	r.FFmpegPath = testutil.WriteScript(t, "ffmpeg", copyFFmpeg)
	if _, err := r.Remux(context.Background(), seg); err != nil {
		t.Errorf("Remux on the OS filesystem failed: %v", err)
	}
}

func TestRemux_FailureKeepsSource(t *testing.T) {
	seg := newSegment(t, "flv-bytes")
	r := &Remuxer{FFmpegPath: testutil.WriteScript(t, "ffmpeg", `echo "Invalid data" >&2; touch "${10}"; exit 1`)}

	if _, err := r.Remux(context.Background(), seg); err == nil {
		t.Fatal("Remux should fail")
	}
	if _, err := os.Stat(seg.PartPath); err != nil {
		t.Errorf("source must survive a failed remux: %v", err)
	}
	if _, err := os.Stat(seg.FinalPath); !os.IsNotExist(err) {
		t.Error("final file must not exist after a failed remux")
	}
	if _, err := os.Stat(seg.FinalPath + tempSuffix); !os.IsNotExist(err) {
		t.Error("temporary file should be cleaned up")
	}
}

func TestQueue(t *testing.T) {
	r := &Remuxer{FFmpegPath: testutil.WriteScript(t, "ffmpeg", copyFFmpeg)}
	q := NewQueue(context.Background(), r, nil)

	var mu sync.Mutex
	var ok, empty int
	q.OnResult(func(_ Result, err error) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrEmptyInput):
			empty++
		}
	})

	q.Submit(newSegment(t, "a"))
	q.Submit(newSegment(t, "b"))
	q.Submit(newSegment(t, ""))
	q.Wait()

	mu.Lock()
	defer mu.Unlock()
	if ok != 2 || empty != 1 {
		t.Errorf("ok=%d empty=%d, want 2 and 1", ok, empty)
	}
}
