package dashboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/Iron-Ham/livecap/internal/logging"
)

// Options configures Run.
type Options struct {
	Source  Source
	Refresh time.Duration
	// Plain prints text snapshots instead of running the terminal UI.
	Plain bool
	// Once prints a single plain snapshot and returns.
	Once   bool
	Out    io.Writer
	Logger *logging.Logger
}

// Run shows the dashboard until ctx is done or the user quits.
func Run(ctx context.Context, opts Options) error {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Logger == nil {
		opts.Logger = logging.NopLogger()
	}
	if opts.Refresh <= 0 {
		opts.Refresh = 2 * time.Second
	}
	if opts.Plain || opts.Once {
		return runPlain(ctx, opts)
	}

	var changes <-chan struct{}
	if w, err := NewWatcher(opts.Source.Dir, opts.Logger); err != nil {
		opts.Logger.Debug("status watcher unavailable, refreshing on ticks only", "error", err.Error())
	} else {
		defer func() { _ = w.Close() }()
		changes = w.Changes()
	}

	p := tea.NewProgram(
		NewModel(opts.Source, opts.Refresh, changes),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
		tea.WithOutput(opts.Out),
	)
	_, err := p.Run()
	if err != nil && ctx.Err() != nil && errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}

func runPlain(ctx context.Context, opts Options) error {
	width := DefaultFileWidth
	if f, ok := opts.Out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 72 {
			width = w - 60
		}
	}

	for {
		entries, err := opts.Source.Load()
		if err != nil {
			return err
		}
		if !opts.Once {
			if _, err := fmt.Fprintf(opts.Out, "--- %s ---\n", time.Now().Format("15:04:05")); err != nil {
				return err
			}
		}
		if err := RenderPlain(opts.Out, BuildRows(entries, width)); err != nil {
			return err
		}
		if opts.Once {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(opts.Refresh):
		}
	}
}
