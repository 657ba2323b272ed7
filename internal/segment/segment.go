// Package segment names the files written for one broadcast.
//
// A broadcast that is restarted after a resolution change produces several
// segments. Each segment is written under an in-progress name (.flv) and
// renamed to its final name (.mp4) by the post-processor, so readers never
// see a half-written file under the final name.
package segment

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// Name layouts for the broadcast start and the restart disambiguator.
const (
	StartLayout   = "2006.01.02_15-04-05"
	RestartLayout = "15-04-05"
)

// File extensions for the in-progress and final files.
const (
	PartExt  = ".flv"
	FinalExt = ".mp4"
)

// maxCollisions bounds the counter appended to a name already on disk.
const maxCollisions = 1000

// Segment is one capture invocation within a broadcast.
type Segment struct {
	Subject        string
	BroadcastStart time.Time
	// RestartAt is zero for the first segment of a broadcast.
	RestartAt time.Time
	// Index counts segments within the broadcast, starting at 0.
	Index     int
	PartPath  string
	FinalPath string
}

// IsRestart reports whether the segment follows a restart.
func (s Segment) IsRestart() bool {
	return !s.RestartAt.IsZero()
}

// Namer derives collision-free segment paths inside Dir.
type Namer struct {
	Fs  afero.Fs
	Dir string
}

// NewNamer returns a Namer over the OS filesystem.
func NewNamer(dir string) *Namer {
	return &Namer{Fs: afero.NewOsFs(), Dir: dir}
}

// First returns the first segment of a broadcast that started at start.
func (n *Namer) First(subject string, start time.Time) Segment {
	return n.build(Segment{Subject: subject, BroadcastStart: start})
}

// Next returns the segment that follows prev after a restart at restartAt.
func (n *Namer) Next(prev Segment, restartAt time.Time) Segment {
	return n.build(Segment{
		Subject:        prev.Subject,
		BroadcastStart: prev.BroadcastStart,
		RestartAt:      restartAt,
		Index:          prev.Index + 1,
	})
}

func (n *Namer) build(seg Segment) Segment {
	stem := Stem(seg.Subject, seg.BroadcastStart, seg.RestartAt)
	candidate := stem
	for i := 1; i <= maxCollisions && n.taken(candidate); i++ {
		candidate = fmt.Sprintf("%s-%d", stem, i)
	}
	seg.PartPath = filepath.Join(n.Dir, candidate+PartExt)
	seg.FinalPath = filepath.Join(n.Dir, candidate+FinalExt)
	return seg
}

func (n *Namer) taken(stem string) bool {
	for _, ext := range []string{PartExt, FinalExt} {
		if ok, _ := afero.Exists(n.fs(), filepath.Join(n.Dir, stem+ext)); ok {
			return true
		}
	}
	return false
}

func (n *Namer) fs() afero.Fs {
	if n.Fs == nil {
		return afero.NewOsFs()
	}
	return n.Fs
}

// Stem returns the file name without extension:
// {subject}_{start}[_{restart}], in local time.
func Stem(subject string, start, restartAt time.Time) string {
	stem := SafeName(subject) + "_" + start.Format(StartLayout)
	if !restartAt.IsZero() {
		stem += "_" + restartAt.Format(RestartLayout)
	}
	return stem
}

// SafeName makes subject usable as a single path element.
func SafeName(subject string) string {
	subject = strings.TrimSpace(subject)
	subject = strings.TrimPrefix(subject, "@")
	if subject == "" {
		return "unknown"
	}
	return strings.NewReplacer("/", "_", "\\", "_", "..", "_", ":", "_").Replace(subject)
}
