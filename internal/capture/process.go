// Package capture runs the ffmpeg process that records one segment.
//
// A Process copies a media URL into an output file without re-encoding,
// drains ffmpeg's diagnostic stream on a dedicated goroutine and exposes a
// control channel (stdin) used by Terminate for the graceful quit command.
package capture

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/Iron-Ham/livecap/internal/procutil"
)

// ErrLaunch wraps every failure to start the capture tool.
var ErrLaunch = errors.New("capture launch failed")

// Defaults for Config fields left zero.
const (
	DefaultRWTimeout       = 10 * time.Second
	DefaultGracefulTimeout = 5 * time.Second
	DefaultTailLines       = 20
)

// Config describes one capture invocation.
type Config struct {
	FFmpegPath string
	URL        string
	OutputPath string
	// RWTimeout is ffmpeg's network read/write timeout, so a stalled source
	// ends the process instead of hanging it.
	RWTimeout time.Duration
	// GracefulTimeout bounds each wait of the termination protocol.
	GracefulTimeout time.Duration
	// ErrorLineLimit caps the runes kept from an error line.
	ErrorLineLimit int
	// TailLines is the number of raw diagnostic lines kept for Tail.
	TailLines int
}

func (c Config) withDefaults() Config {
	if c.FFmpegPath == "" {
		c.FFmpegPath = "ffmpeg"
	}
	if c.RWTimeout <= 0 {
		c.RWTimeout = DefaultRWTimeout
	}
	if c.GracefulTimeout <= 0 {
		c.GracefulTimeout = DefaultGracefulTimeout
	}
	if c.ErrorLineLimit <= 0 {
		c.ErrorLineLimit = DefaultErrorLineLimit
	}
	if c.TailLines <= 0 {
		c.TailLines = DefaultTailLines
	}
	return c
}

// Args returns the ffmpeg arguments for this capture.
func (c Config) Args() []string {
	c = c.withDefaults()
	return []string{
		"-y",
		"-loglevel", "info",
		"-rw_timeout", strconv.FormatInt(c.RWTimeout.Microseconds(), 10),
		"-i", c.URL,
		"-c", "copy",
		"-f", "flv",
		c.OutputPath,
	}
}

// Handler receives every classified diagnostic line. It is called from the
// drain goroutine, one event at a time.
type Handler func(Event)

// Process is a running capture.
type Process struct {
	config Config
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	tail   *lineTail

	done     chan struct{}
	drained  chan struct{}
	exitCode atomic.Int64
	waitErr  error

	// stdinMu keeps quit requests from interleaving.
	stdinMu sync.Mutex
}

// Start launches ffmpeg. ctx only gates the launch: cancelling it later
// does not touch the process, which must be stopped through Terminate so
// the output container is finalized.
func Start(ctx context.Context, cfg Config, handler Handler) (*Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLaunch, err)
	}
	cfg = cfg.withDefaults()

	cmd := exec.Command(cfg.FFmpegPath, cfg.Args()...)
	// Own process group: a terminal Ctrl-C reaches the supervisor, which
	// then runs the graceful protocol, instead of killing ffmpeg directly.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.WaitDelay = 2 * time.Second

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdin pipe: %w", ErrLaunch, err)
	}
	pr, pw := io.Pipe()
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrLaunch, cfg.FFmpegPath, err)
	}

	p := &Process{
		config:  cfg,
		cmd:     cmd,
		stdin:   stdin,
		tail:    newLineTail(cfg.TailLines),
		done:    make(chan struct{}),
		drained: make(chan struct{}),
	}
	p.exitCode.Store(-1)

	go p.drain(pr, handler)
	go func() {
		err := cmd.Wait()
		_ = pw.Close()
		p.waitErr = err
		if cmd.ProcessState != nil {
			p.exitCode.Store(int64(cmd.ProcessState.ExitCode()))
		}
		close(p.done)
	}()

	return p, nil
}

func (p *Process) drain(r io.ReadCloser, handler Handler) {
	defer close(p.drained)
	defer r.Close()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	scanner.Split(scanLinesCR)
	for scanner.Scan() {
		line := string(bytes.TrimSpace(scanner.Bytes()))
		if line == "" {
			continue
		}
		p.tail.Add(line)
		if handler != nil {
			handler(ParseLine(line, p.config.ErrorLineLimit))
		}
	}
	// Keep the pipe empty after a scan error so ffmpeg never blocks on stderr.
	_, _ = io.Copy(io.Discard, r)
}

// scanLinesCR splits on '\n' or '\r'; ffmpeg rewrites its progress line in
// place with carriage returns.
func scanLinesCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// Pid returns the ffmpeg process ID.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Done is closed once the process has exited and been reaped.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Drained is closed once every diagnostic line has been handled.
func (p *Process) Drained() <-chan struct{} {
	return p.drained
}

// Exited reports whether the process has exited.
func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// ExitCode returns the exit status, or -1 while running or when the
// process was ended by a signal.
func (p *Process) ExitCode() int {
	return int(p.exitCode.Load())
}

// Err returns the error reported by Wait, if any. Valid after Done.
func (p *Process) Err() error {
	select {
	case <-p.done:
		return p.waitErr
	default:
		return nil
	}
}

// Tail returns the most recent raw diagnostic lines, oldest first.
func (p *Process) Tail() []string {
	return p.tail.Lines()
}

// OutputPath returns the file being written.
func (p *Process) OutputPath() string {
	return p.config.OutputPath
}

// GracefulTimeout is the per-stage wait used by Terminate for this process.
func (p *Process) GracefulTimeout() time.Duration {
	return p.config.GracefulTimeout
}

// RequestQuit sends ffmpeg's quit command on stdin.
func (p *Process) RequestQuit() error {
	p.stdinMu.Lock()
	defer p.stdinMu.Unlock()
	if _, err := io.WriteString(p.stdin, "q"); err != nil {
		return fmt.Errorf("failed to send quit: %w", err)
	}
	return nil
}

// Terminate sends SIGTERM.
func (p *Process) Terminate() error {
	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to send SIGTERM: %w", err)
	}
	return nil
}

// Kill sends SIGKILL to ffmpeg and any children it spawned.
func (p *Process) Kill() error {
	procutil.KillProcessTree(p.Pid())
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to kill: %w", err)
	}
	return nil
}

// lineTail keeps the last n lines written to it.
type lineTail struct {
	mu    sync.Mutex
	lines []string
	next  int
	full  bool
}

func newLineTail(n int) *lineTail {
	return &lineTail{lines: make([]string, n)}
}

func (t *lineTail) Add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines[t.next] = line
	t.next = (t.next + 1) % len(t.lines)
	if t.next == 0 {
		t.full = true
	}
}

// Lines returns the kept lines, oldest first.
func (t *lineTail) Lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.full {
		return append([]string(nil), t.lines[:t.next]...)
	}
	out := make([]string, 0, len(t.lines))
	out = append(out, t.lines[t.next:]...)
	return append(out, t.lines[:t.next]...)
}
