// Package keystop lets an operator stop a recording by typing q on the
// terminal.
package keystop

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Hint is printed when key stop is active.
const Hint = "[*] Press 'q' then Enter to stop recording"

// IsInteractive reports whether f is a terminal.
func IsInteractive(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd()))
}

// Watch reads lines from r and calls stop when a line is "q" (any case).
// It returns after calling stop, when r is exhausted, or once ctx is done
// and the next line arrives; a blocked read on r is never interrupted.
func Watch(ctx context.Context, r io.Reader, stop func()) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		if strings.EqualFold(strings.TrimSpace(scanner.Text()), "q") {
			stop()
			return
		}
	}
}

// Start watches stdin in the background when it is a terminal and returns
// whether it did.
func Start(ctx context.Context, stop func()) bool {
	if !IsInteractive(os.Stdin) {
		return false
	}
	go Watch(ctx, os.Stdin, stop)
	return true
}
