package capture

import (
	"strings"
	"testing"

	"github.com/charmbracelet/x/ansi"
)

func TestParseLine_Progress(t *testing.T) {
	line := "frame=  123 fps= 21 q=-1.0 size=    4352kB time=00:00:28.12 bitrate=1267.9kbits/s speed=1.42x"
	ev := ParseLine(line, 0)

	p, ok := ev.(Progress)
	if !ok {
		t.Fatalf("ParseLine returned %T, want Progress", ev)
	}
	if !p.HasSize || p.SizeMB != 4.25 {
		t.Errorf("SizeMB = %v (HasSize %v), want 4.25", p.SizeMB, p.HasSize)
	}
	if p.Time != "00:00:28.12" {
		t.Errorf("Time = %q", p.Time)
	}
	if p.Speed != "1.42x" {
		t.Errorf("Speed = %q", p.Speed)
	}

	wantKeys := []string{"frame", "fps", "q", "size", "time", "bitrate", "speed"}
	if len(p.Fields) != len(wantKeys) {
		t.Fatalf("got %d fields, want %d: %+v", len(p.Fields), len(wantKeys), p.Fields)
	}
	for i, k := range wantKeys {
		if p.Fields[i].Key != k {
			t.Errorf("field %d key = %q, want %q", i, p.Fields[i].Key, k)
		}
	}
	if p.Fields[3].Value != "4.25MB" {
		t.Errorf("size field = %q, want 4.25MB", p.Fields[3].Value)
	}
}

func TestParseLine_ProgressVariants(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		hasSize bool
		sizeMB  float64
	}{
		{"KiB units", "size=    1024KiB time=00:00:01.00 bitrate=N/A speed=1x", true, 1},
		{"size not available", "size=N/A time=00:00:01.00 bitrate=N/A speed=1x", false, 0},
		{"final summary", "frame= 10 fps=0.0 q=-1.0 Lsize=  512kB time=00:00:05.00 bitrate= 838.9kbits/s", true, 0.5},
		{"no size at all", "frame= 10 time=00:00:05.00", false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := ParseLine(tt.line, 0).(Progress)
			if !ok {
				t.Fatalf("expected Progress for %q", tt.line)
			}
			if p.HasSize != tt.hasSize || p.SizeMB != tt.sizeMB {
				t.Errorf("size = %v/%v, want %v/%v", p.SizeMB, p.HasSize, tt.sizeMB, tt.hasSize)
			}
		})
	}
}

func TestParseLine_ErrorLine(t *testing.T) {
	ev := ParseLine("  [flv @ 0x7f] Error reading packet  ", 0)
	e, ok := ev.(ErrorLine)
	if !ok {
		t.Fatalf("ParseLine returned %T, want ErrorLine", ev)
	}
	if e.Text != "[flv @ 0x7f] Error reading packet" {
		t.Errorf("Text = %q", e.Text)
	}

	long := "ERROR " + strings.Repeat("x", 500)
	e = ParseLine(long, 0).(ErrorLine)
	if n := len([]rune(e.Text)); n != DefaultErrorLineLimit {
		t.Errorf("truncated length = %d, want %d", n, DefaultErrorLineLimit)
	}

	e = ParseLine(long, 10).(ErrorLine)
	if e.Text != "ERROR xxxx" {
		t.Errorf("custom limit Text = %q", e.Text)
	}
}

func TestParseLine_Unrecognized(t *testing.T) {
	for _, line := range []string{
		"Input #0, flv, from 'https://example.com/live.flv':",
		"  Stream #0:0: Video: h264 (High), yuv420p, 720x1280",
		"",
	} {
		if _, ok := ParseLine(line, 0).(Unrecognized); !ok {
			t.Errorf("ParseLine(%q) should be Unrecognized", line)
		}
	}
}

func TestFormatProgress(t *testing.T) {
	p := ParseLine("frame=1 fps=2 size=2048kB time=00:00:01.00", 0).(Progress)
	got := ansi.Strip(FormatProgress(p))
	want := "[ffmpeg] frame=1  fps=2  size=2.00MB  time=00:00:01.00"
	if got != want {
		t.Errorf("FormatProgress = %q, want %q", got, want)
	}
}

func TestFormatEvent(t *testing.T) {
	if got := FormatEvent(Unrecognized{Text: "banner"}); got != "" {
		t.Errorf("Unrecognized should render empty, got %q", got)
	}
	if got := FormatEvent(ErrorLine{Text: "Error x"}); got != "[ffmpeg] Error x" {
		t.Errorf("ErrorLine rendered %q", got)
	}
}

func TestScanLinesCR(t *testing.T) {
	data := []byte("a\rb\nc")
	var tokens []string
	for len(data) > 0 {
		adv, tok, err := scanLinesCR(data, true)
		if err != nil {
			t.Fatal(err)
		}
		tokens = append(tokens, string(tok))
		data = data[adv:]
	}
	if strings.Join(tokens, ",") != "a,b,c" {
		t.Errorf("tokens = %v", tokens)
	}
}
