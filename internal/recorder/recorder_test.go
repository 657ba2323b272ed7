package recorder

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/livecap/internal/capture"
	"github.com/Iron-Ham/livecap/internal/metrics"
	"github.com/Iron-Ham/livecap/internal/postprocess"
	"github.com/Iron-Ham/livecap/internal/resolution"
	"github.com/Iron-Ham/livecap/internal/resolver"
	"github.com/Iron-Ham/livecap/internal/status"
	"github.com/Iron-Ham/livecap/internal/supervisor"
	"github.com/Iron-Ham/livecap/internal/testutil"
)

// scriptedResolver answers from a per-subject list, repeating the last entry.
type scriptedResolver struct {
	mu      sync.Mutex
	answers map[string][]error
	calls   map[string]int
}

func newScriptedResolver(answers map[string][]error) *scriptedResolver {
	return &scriptedResolver{answers: answers, calls: make(map[string]int)}
}

func (r *scriptedResolver) Resolve(ctx context.Context, subject string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.answers[subject]
	n := r.calls[subject]
	r.calls[subject]++
	if len(list) == 0 {
		return "", resolver.ErrNotLive
	}
	if n >= len(list) {
		n = len(list) - 1
	}
	if err := list[n]; err != nil {
		return "", err
	}
	return "https://example.com/" + subject + ".flv", nil
}

func (r *scriptedResolver) Calls(subject string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[subject]
}

// exitedCapture has already finished with code 0.
type exitedCapture struct{ done chan struct{} }

func newExitedCapture() *exitedCapture {
	c := &exitedCapture{done: make(chan struct{})}
	close(c.done)
	return c
}

func (c *exitedCapture) RequestQuit() error    { return nil }
func (c *exitedCapture) Terminate() error      { return nil }
func (c *exitedCapture) Kill() error           { return nil }
func (c *exitedCapture) Done() <-chan struct{} { return c.done }
func (c *exitedCapture) Pid() int              { return 4321 }
func (c *exitedCapture) Exited() bool          { return true }
func (c *exitedCapture) ExitCode() int         { return 0 }
func (c *exitedCapture) Tail() []string        { return nil }

type countingLauncher struct {
	mu    sync.Mutex
	err   error
	paths []string
}

func (l *countingLauncher) Launch(ctx context.Context, url, outputPath string, handler capture.Handler) (supervisor.Capture, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	l.paths = append(l.paths, outputPath)
	return newExitedCapture(), nil
}

func (l *countingLauncher) Launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.paths)
}

type quietMonitor struct{ changed chan struct{} }

func (m quietMonitor) Start(context.Context)             {}
func (m quietMonitor) Stop()                             {}
func (m quietMonitor) Changed() <-chan struct{}          { return m.changed }
func (m quietMonitor) Transition() resolution.Transition { return resolution.Transition{} }

type quietMonitors struct{}

func (quietMonitors) NewMonitor(string) supervisor.Monitor {
	return quietMonitor{changed: make(chan struct{})}
}

func testConfig(mode Mode) Config {
	return Config{
		Mode:              mode,
		CheckInterval:     10 * time.Millisecond,
		ErrorBackoff:      10 * time.Millisecond,
		OutputDir:         "/rec",
		StatusDir:         "/status",
		HeartbeatInterval: time.Hour,
		Supervisor: supervisor.Config{
			TickInterval:    5 * time.Millisecond,
			RestartDelay:    time.Millisecond,
			GracefulTimeout: 50 * time.Millisecond,
		},
	}
}

func TestRecordSubject_ManualOffline(t *testing.T) {
	fs := afero.NewMemMapFs()
	res := newScriptedResolver(nil)
	launcher := &countingLauncher{}
	console := &bytes.Buffer{}
	r := New(testConfig(ModeManual), res, launcher, quietMonitors{}, WithFs(fs), WithConsole(console))

	err := r.RecordSubject(context.Background(), "alice")
	if !errors.Is(err, resolver.ErrNotLive) {
		t.Fatalf("RecordSubject() error = %v, want ErrNotLive", err)
	}
	if launcher.Launches() != 0 {
		t.Errorf("offline subject launched %d captures", launcher.Launches())
	}
	if exists, _ := afero.Exists(fs, status.RecordPath("/status", "alice")); exists {
		t.Error("status record should be removed when the subject is done")
	}
	if !strings.Contains(console.String(), "alice is offline") {
		t.Errorf("console = %q", console.String())
	}
}

func TestRecordSubject_ManualLookupError(t *testing.T) {
	lookupErr := errors.New("rate limited")
	res := newScriptedResolver(map[string][]error{"alice": {lookupErr}})
	r := New(testConfig(ModeManual), res, &countingLauncher{}, quietMonitors{}, WithFs(afero.NewMemMapFs()))

	if err := r.RecordSubject(context.Background(), "alice"); !errors.Is(err, lookupErr) {
		t.Errorf("RecordSubject() error = %v, want %v", err, lookupErr)
	}
	if res.Calls("alice") != 1 {
		t.Errorf("manual mode resolved %d times, want 1", res.Calls("alice"))
	}
}

func TestRecordSubject_ManualLiveFinishes(t *testing.T) {
	fs := afero.NewMemMapFs()
	res := newScriptedResolver(map[string][]error{"alice": {nil}})
	launcher := &countingLauncher{}
	console := &bytes.Buffer{}
	r := New(testConfig(ModeManual), res, launcher, quietMonitors{}, WithFs(fs), WithConsole(console))

	if err := r.RecordSubject(context.Background(), "alice"); err != nil {
		t.Fatalf("RecordSubject() error = %v", err)
	}
	if launcher.Launches() != 1 {
		t.Errorf("launches = %d, want 1", launcher.Launches())
	}
	if !strings.Contains(console.String(), "alice is LIVE") {
		t.Errorf("console = %q", console.String())
	}
	if exists, _ := afero.Exists(fs, status.RecordPath("/status", "alice")); exists {
		t.Error("status record should be removed after the broadcast")
	}
}

// The scripted ffmpeg writes to its last argument, so it fails like the
// real one when the output directory is missing.
func TestRecordSubject_CreatesOutputDir(t *testing.T) {
	script := testutil.WriteScript(t, "ffmpeg", `for out; do :; done; echo flv > "$out"`)
	cfg := testConfig(ModeManual)
	cfg.OutputDir = filepath.Join(t.TempDir(), "downloads")
	cfg.StatusDir = filepath.Join(t.TempDir(), "status")
	res := newScriptedResolver(map[string][]error{"alice": {nil}})
	launcher := supervisor.FFmpegLauncher{Config: capture.Config{FFmpegPath: script}}
	r := New(cfg, res, launcher, quietMonitors{})

	if err := r.RecordSubject(context.Background(), "alice"); err != nil {
		t.Fatalf("RecordSubject() error = %v", err)
	}
	entries, err := os.ReadDir(cfg.OutputDir)
	if err != nil {
		t.Fatalf("output directory not created: %v", err)
	}
	if len(entries) != 1 || filepath.Ext(entries[0].Name()) != ".flv" {
		t.Errorf("output directory holds %v, want one .flv segment", entries)
	}
}

func TestRecordSubject_OutputDirFailure(t *testing.T) {
	fs := afero.NewReadOnlyFs(afero.NewMemMapFs())
	res := newScriptedResolver(map[string][]error{"alice": {nil}})
	launcher := &countingLauncher{}
	r := New(testConfig(ModeAutomatic), res, launcher, quietMonitors{}, WithFs(fs))

	err := r.RecordSubject(context.Background(), "alice")
	if err == nil || !strings.Contains(err.Error(), "output directory") {
		t.Fatalf("RecordSubject() error = %v, want output directory failure", err)
	}
	if launcher.Launches() != 0 || res.Calls("alice") != 0 {
		t.Error("nothing should be checked or launched without an output directory")
	}
}

func TestWithFsReachesRemuxer(t *testing.T) {
	fs := afero.NewMemMapFs()
	rm := &postprocess.Remuxer{FFmpegPath: "ffmpeg"}
	r := New(testConfig(ModeManual), newScriptedResolver(nil), &countingLauncher{}, quietMonitors{},
		WithFs(fs), WithRemuxer(rm))

	if r.remuxer.Fs != fs {
		t.Error("remuxer should use the recorder's filesystem")
	}
	if rm.Fs != nil {
		t.Error("the caller's remuxer must not be modified")
	}
}

func TestRecordSubject_ManualLaunchFailure(t *testing.T) {
	res := newScriptedResolver(map[string][]error{"alice": {nil}})
	launcher := &countingLauncher{err: capture.ErrLaunch}
	r := New(testConfig(ModeManual), res, launcher, quietMonitors{}, WithFs(afero.NewMemMapFs()))

	err := r.RecordSubject(context.Background(), "alice")
	if !errors.Is(err, capture.ErrLaunch) {
		t.Errorf("RecordSubject() error = %v, want ErrLaunch", err)
	}
}

func TestRecordSubject_AutomaticWaitsAndStops(t *testing.T) {
	fs := afero.NewMemMapFs()
	// Offline, live once, then offline for good.
	res := newScriptedResolver(map[string][]error{"alice": {resolver.ErrNotLive, nil, resolver.ErrNotLive}})
	launcher := &countingLauncher{}
	r := New(testConfig(ModeAutomatic), res, launcher, quietMonitors{}, WithFs(fs))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- r.RecordSubject(ctx, "alice") }()

	testutil.WaitFor(t, 5*time.Second, "a recording and a later check", func() bool {
		return launcher.Launches() == 1 && res.Calls("alice") >= 4
	})

	data, err := afero.ReadFile(fs, status.RecordPath("/status", "alice"))
	if err != nil {
		t.Fatalf("status record missing while running: %v", err)
	}
	if !strings.Contains(string(data), `"state": "WAITING"`) {
		t.Errorf("record = %s, want WAITING between broadcasts", data)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("RecordSubject() error = %v, want nil on cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("RecordSubject did not return after cancel")
	}
	if exists, _ := afero.Exists(fs, status.RecordPath("/status", "alice")); exists {
		t.Error("status record should be removed on shutdown")
	}
}

func TestRecordSubject_AutomaticBacksOffOnErrors(t *testing.T) {
	res := newScriptedResolver(map[string][]error{"alice": {errors.New("boom")}})
	r := New(testConfig(ModeAutomatic), res, &countingLauncher{}, quietMonitors{}, WithFs(afero.NewMemMapFs()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.RecordSubject(ctx, "alice") }()

	testutil.WaitFor(t, 5*time.Second, "repeated checks", func() bool {
		return res.Calls("alice") >= 3
	})
	cancel()
	if err := <-done; err != nil {
		t.Errorf("automatic mode should swallow lookup errors, got %v", err)
	}
}

func TestRun_MultipleSubjects(t *testing.T) {
	fs := afero.NewMemMapFs()
	res := newScriptedResolver(map[string][]error{"alice": {nil}, "bob": {nil}})
	launcher := &countingLauncher{}
	m := metrics.New()
	r := New(testConfig(ModeManual), res, launcher, quietMonitors{}, WithFs(fs), WithMetrics(m))

	if err := r.Run(context.Background(), []string{"alice", "bob", "carol"}); err == nil {
		t.Fatal("Run() should report the offline subject")
	} else {
		if !errors.Is(err, resolver.ErrNotLive) {
			t.Errorf("Run() error = %v, want ErrNotLive", err)
		}
		if !strings.Contains(err.Error(), "carol") {
			t.Errorf("Run() error %q should name the subject", err)
		}
	}
	if launcher.Launches() != 2 {
		t.Errorf("launches = %d, want 2", launcher.Launches())
	}
	entries, err := status.Scan(fs, "/status", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("records left after Run: %v", entries)
	}
}

func TestRun_NoSubjects(t *testing.T) {
	r := New(testConfig(ModeManual), newScriptedResolver(nil), &countingLauncher{}, quietMonitors{})
	if err := r.Run(context.Background(), nil); err == nil {
		t.Error("Run() with no subjects should fail")
	}
}

func TestConfigDefaults(t *testing.T) {
	c := Config{}.withDefaults()
	if c.Mode != ModeManual {
		t.Errorf("Mode = %q, want manual", c.Mode)
	}
	if c.CheckInterval != DefaultCheckInterval {
		t.Errorf("CheckInterval = %v", c.CheckInterval)
	}
	if c.ErrorBackoff != DefaultErrorBackoff {
		t.Errorf("ErrorBackoff = %v", c.ErrorBackoff)
	}
	if c.HeartbeatInterval != status.DefaultHeartbeatInterval {
		t.Errorf("HeartbeatInterval = %v", c.HeartbeatInterval)
	}
}
