// Package dashboard renders the status records of running recorders, either
// as a live terminal table or as plain text.
package dashboard

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/spf13/afero"

	"github.com/Iron-Ham/livecap/internal/status"
	"github.com/Iron-Ham/livecap/internal/util"
)

// StaleLabel replaces the recorded state of a record whose heartbeat is old.
const StaleLabel = "STALE"

// DefaultFileWidth bounds the file column.
const DefaultFileWidth = 48

// Columns are the table headers, in order.
var Columns = []string{"SUBJECT", "STATE", "HEARTBEAT", "PID", "FILE", "SIZE"}

// Row is one record formatted for display.
type Row struct {
	Subject   string
	State     string
	Heartbeat string
	PID       string
	File      string
	Size      string
}

// Cells returns the row in column order.
func (r Row) Cells() []string {
	return []string{r.Subject, r.State, r.Heartbeat, r.PID, r.File, r.Size}
}

// BuildRows formats entries. Hidden entries are dropped; stale entries show
// StaleLabel instead of their recorded state. File names are cut to
// fileWidth columns.
func BuildRows(entries []status.Entry, fileWidth int) []Row {
	if fileWidth <= 0 {
		fileWidth = DefaultFileWidth
	}
	rows := make([]Row, 0, len(entries))
	for _, e := range entries {
		if e.Class == status.Hidden {
			continue
		}
		row := Row{
			Subject:   e.Subject,
			State:     string(e.State),
			Heartbeat: util.FormatDuration(e.Age) + " ago",
			PID:       strconv.Itoa(e.PID),
			File:      "-",
			Size:      "-",
		}
		if e.Class == status.Stale {
			row.State = StaleLabel
		}
		if f := e.File(); f != "" {
			row.File = util.TruncateANSI(filepath.Base(f), fileWidth)
		}
		if e.State == status.StateRecording || e.FileSizeMB > 0 {
			row.Size = util.FormatSizeMB(e.FileSizeMB)
		}
		rows = append(rows, row)
	}
	return rows
}

// Filter selects subjects by glob pattern. A nil or empty Filter matches
// everything.
type Filter struct {
	patterns []string
	globs    []glob.Glob
}

// NewFilter compiles patterns such as "alice*" or "{alice,bob}".
func NewFilter(patterns ...string) (*Filter, error) {
	f := &Filter{}
	for _, p := range patterns {
		if p == "" {
			continue
		}
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid filter %q: %w", p, err)
		}
		f.patterns = append(f.patterns, p)
		f.globs = append(f.globs, g)
	}
	return f, nil
}

// Match reports whether subject passes the filter.
func (f *Filter) Match(subject string) bool {
	if f == nil || len(f.globs) == 0 {
		return true
	}
	for _, g := range f.globs {
		if g.Match(subject) {
			return true
		}
	}
	return false
}

// String returns the patterns joined for display.
func (f *Filter) String() string {
	if f == nil || len(f.patterns) == 0 {
		return ""
	}
	return strings.Join(f.patterns, ", ")
}

// Source loads the records a dashboard shows.
type Source struct {
	Fs     afero.Fs
	Dir    string
	Filter *Filter
	// Now defaults to time.Now.
	Now func() time.Time
}

// Load scans the status directory, dropping hidden and filtered records.
func (s Source) Load() ([]status.Entry, error) {
	fs := s.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	entries, err := status.Scan(fs, s.Dir, now())
	if err != nil {
		return nil, err
	}
	visible := status.Visible(entries)
	out := visible[:0]
	for _, e := range visible {
		if s.Filter.Match(e.Subject) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Summary counts rows by displayed state.
type Summary struct {
	Total     int
	Recording int
	Waiting   int
	Stale     int
}

// Summarize counts rows.
func Summarize(rows []Row) Summary {
	s := Summary{Total: len(rows)}
	for _, r := range rows {
		switch r.State {
		case string(status.StateRecording):
			s.Recording++
		case string(status.StateWaiting):
			s.Waiting++
		case StaleLabel:
			s.Stale++
		}
	}
	return s
}

func (s Summary) String() string {
	return fmt.Sprintf("%d recorders: %d recording, %d waiting, %d stale", s.Total, s.Recording, s.Waiting, s.Stale)
}
