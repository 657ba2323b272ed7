package capture

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Iron-Ham/livecap/internal/util"
)

// DefaultErrorLineLimit is the maximum number of runes kept from an error line.
const DefaultErrorLineLimit = 150

// Event is one classified line of ffmpeg diagnostic output.
type Event interface {
	event()
}

// Field is a single key=value pair from a progress line.
type Field struct {
	Key   string
	Value string
}

// Progress is an ffmpeg status line such as
//
//	frame=  123 fps= 21 q=-1.0 size=    4352kB time=00:00:28.12 bitrate=1267.9kbits/s speed=1.42x
//
// Fields holds every pair in order, with size already normalized to MB.
type Progress struct {
	Fields []Field
	// SizeMB is the output size so far; HasSize is false when ffmpeg
	// reported N/A or omitted it.
	SizeMB  float64
	HasSize bool
	Time    string
	Speed   string
}

// ErrorLine is a diagnostic line containing an error marker, truncated.
type ErrorLine struct {
	Text string
}

// Unrecognized is any other non-empty diagnostic line.
type Unrecognized struct {
	Text string
}

func (Progress) event()     {}
func (ErrorLine) event()    {}
func (Unrecognized) event() {}

var (
	fieldPattern = regexp.MustCompile(`(\w+)=\s*(\S+)`)
	sizePattern  = regexp.MustCompile(`^(\d+(?:\.\d+)?)(kB|KiB)$`)
)

// ParseLine classifies one line of ffmpeg stderr. Lines carrying "time=" are
// progress; lines mentioning "error" (any case) are errors, truncated to limit
// runes (DefaultErrorLineLimit when limit <= 0).
func ParseLine(line string, limit int) Event {
	line = strings.TrimSpace(line)
	switch {
	case strings.Contains(line, "time="):
		return parseProgress(line)
	case strings.Contains(strings.ToLower(line), "error"):
		if limit <= 0 {
			limit = DefaultErrorLineLimit
		}
		return ErrorLine{Text: util.TruncateRunes(line, limit)}
	default:
		return Unrecognized{Text: line}
	}
}

func parseProgress(line string) Progress {
	var p Progress
	for _, m := range fieldPattern.FindAllStringSubmatch(line, -1) {
		f := Field{Key: m[1], Value: m[2]}
		switch f.Key {
		case "size", "Lsize":
			if sm := sizePattern.FindStringSubmatch(f.Value); sm != nil {
				kb, err := strconv.ParseFloat(sm[1], 64)
				if err == nil {
					p.SizeMB = roundMB(kb / 1024)
					p.HasSize = true
					f.Value = fmt.Sprintf("%.2fMB", p.SizeMB)
				}
			}
		case "time":
			p.Time = f.Value
		case "speed":
			p.Speed = f.Value
		}
		p.Fields = append(p.Fields, f)
	}
	return p
}

func roundMB(mb float64) float64 {
	v, _ := strconv.ParseFloat(strconv.FormatFloat(mb, 'f', 2, 64), 64)
	return v
}

var emphasis = lipgloss.NewStyle().Bold(true)

// FormatProgress renders a progress event for a terminal, alternating bold
// and plain key=value pairs.
func FormatProgress(p Progress) string {
	parts := make([]string, len(p.Fields))
	for i, f := range p.Fields {
		kv := f.Key + "=" + f.Value
		if i%2 == 0 {
			kv = emphasis.Render(kv)
		}
		parts[i] = kv
	}
	return "[ffmpeg] " + strings.Join(parts, "  ")
}

// FormatEvent renders any event for a terminal. Unrecognized lines render
// as the empty string.
func FormatEvent(ev Event) string {
	switch e := ev.(type) {
	case Progress:
		return FormatProgress(e)
	case ErrorLine:
		return "[ffmpeg] " + e.Text
	default:
		return ""
	}
}
