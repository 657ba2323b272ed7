// Package util holds small formatting helpers shared by the recorder console
// output, the dashboard and the status command.
package util

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// TruncateRunes cuts s to at most n runes without adding an ellipsis.
// Used to bound diagnostic lines copied from external tools.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// TruncateANSI truncates a string to maxWidth visual columns, adding "..." if truncated.
// Escape codes and wide characters are measured by their rendered width.
func TruncateANSI(s string, maxWidth int) string {
	if maxWidth <= 3 {
		return "..."
	}
	if lipgloss.Width(s) <= maxWidth {
		return s
	}
	return ansi.Truncate(s, maxWidth, "...")
}

// FormatDuration renders an age the way the dashboard shows heartbeats:
// "45s", "3m 12s", "1h 5m". Negative durations render as "0s".
func FormatDuration(d time.Duration) string {
	secs := int64(d / time.Second)
	if secs < 0 {
		secs = 0
	}
	switch {
	case secs < 60:
		return fmt.Sprintf("%ds", secs)
	case secs < 3600:
		return fmt.Sprintf("%dm %ds", secs/60, secs%60)
	default:
		return fmt.Sprintf("%dh %dm", secs/3600, (secs%3600)/60)
	}
}

// FormatSizeMB renders a size in megabytes with two decimals, switching to
// gigabytes at 1024 MB.
func FormatSizeMB(mb float64) string {
	if mb >= 1024 {
		return fmt.Sprintf("%.2f GB", mb/1024)
	}
	return fmt.Sprintf("%.2f MB", mb)
}
