package status

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// Entry is a record as seen by a reader at a given instant.
type Entry struct {
	Record
	Path  string        `json:"-"`
	Age   time.Duration `json:"-"`
	Class Class         `json:"-"`

	// Reader-side fields included in JSON output.
	AgeSeconds int64 `json:"age_seconds"`
	Stale      bool  `json:"is_stale"`
}

// Scan reads every record in dir and classifies it at now. Files still in
// temporary form and files that fail to parse are skipped. A missing
// directory yields no entries. Entries are sorted by subject.
func Scan(fs afero.Fs, dir string, now time.Time) ([]Entry, error) {
	infos, err := afero.ReadDir(fs, dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read status directory: %w", err)
	}

	var entries []Entry
	for _, info := range infos {
		name := info.Name()
		if info.IsDir() || !strings.HasSuffix(name, RecordExt) {
			continue
		}
		path := filepath.Join(dir, name)
		data, err := afero.ReadFile(fs, path)
		if err != nil {
			continue
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil || rec.LastHeartbeat.IsZero() {
			continue
		}
		if rec.Subject == "" {
			rec.Subject = strings.TrimSuffix(name, RecordExt)
		}
		class := Classify(now, rec)
		age := Age(now, rec)
		entries = append(entries, Entry{
			Record:     rec,
			Path:       path,
			Age:        age,
			Class:      class,
			AgeSeconds: int64(age.Round(time.Second) / time.Second),
			Stale:      class != Fresh,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Subject < entries[j].Subject
	})
	return entries, nil
}

// Visible drops hidden entries.
func Visible(entries []Entry) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Class != Hidden {
			out = append(out, e)
		}
	}
	return out
}

// Prune removes records that are hidden and whose owning process is no
// longer alive, returning the removed paths. alive is consulted with the
// record's PID.
func Prune(fs afero.Fs, dir string, now time.Time, alive func(pid int) bool) ([]string, error) {
	entries, err := Scan(fs, dir, now)
	if err != nil {
		return nil, err
	}
	var removed []string
	for _, e := range entries {
		if e.Class != Hidden || (alive != nil && alive(e.PID)) {
			continue
		}
		if err := fs.Remove(e.Path); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("failed to remove %s: %w", e.Path, err)
		}
		removed = append(removed, e.Path)
	}
	return removed, nil
}
