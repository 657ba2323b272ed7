package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func decodeLines(t *testing.T, data []byte) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid JSON log line %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestNewLogger(t *testing.T) {
	t.Run("creates log file named after subject", func(t *testing.T) {
		dir := t.TempDir()

		logger, err := NewLogger(dir, "alice", LevelDebug)
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		defer logger.Close()

		if _, err := os.Stat(filepath.Join(dir, "alice.log")); err != nil {
			t.Errorf("log file was not created: %v", err)
		}
	})

	t.Run("writes to stderr when dir is empty", func(t *testing.T) {
		logger, err := NewLogger("", "alice", LevelInfo)
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		if logger.closer != nil {
			t.Error("expected no closer when dir is empty")
		}
		if err := logger.Close(); err != nil {
			t.Errorf("Close() = %v, want nil", err)
		}
	})
}

func TestLogPath(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"alice", "alice.log"},
		{"", "livecap.log"},
		{"../escape", "__escape.log"},
		{"a/b", "a_b.log"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LogPath("/logs", tt.name)
			if filepath.Base(got) != tt.want || filepath.Dir(got) != "/logs" {
				t.Errorf("LogPath(%q) = %q, want /logs/%s", tt.name, got, tt.want)
			}
		})
	}
}

func TestLogLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, LevelWarn)

	logger.Debug("debug")
	logger.Info("info")
	logger.Warn("warn")
	logger.Error("error")

	entries := decodeLines(t, buf.Bytes())
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries at WARN level, got %d", len(entries))
	}
	if entries[0]["msg"] != "warn" || entries[1]["msg"] != "error" {
		t.Errorf("unexpected messages: %v", entries)
	}
}

func TestContextPropagation(t *testing.T) {
	var buf bytes.Buffer
	root := NewWriterLogger(&buf, LevelDebug)

	root.WithSubject("alice").WithInstance("run-1").WithSegment(2).Info("segment started", "file", "a.flv")

	entries := decodeLines(t, buf.Bytes())
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e["subject"] != "alice" {
		t.Errorf("subject = %v, want alice", e["subject"])
	}
	if e["instance_id"] != "run-1" {
		t.Errorf("instance_id = %v, want run-1", e["instance_id"])
	}
	if e["segment"] != float64(2) {
		t.Errorf("segment = %v, want 2", e["segment"])
	}
	if e["file"] != "a.flv" {
		t.Errorf("file = %v, want a.flv", e["file"])
	}
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	root := NewWriterLogger(&buf, LevelInfo)

	if root.With() != root {
		t.Error("With() without args should return the same logger")
	}

	child := root.With("a", 1, 42, "ignored", "b", "two")
	child.Info("hello")
	root.Info("plain")

	entries := decodeLines(t, buf.Bytes())
	if entries[0]["a"] != float64(1) || entries[0]["b"] != "two" {
		t.Errorf("child attrs missing: %v", entries[0])
	}
	if _, ok := entries[1]["a"]; ok {
		t.Error("root logger should not inherit child attributes")
	}
}

func TestNopLogger(t *testing.T) {
	logger := NopLogger()
	logger.Error("dropped")
	if err := logger.Close(); err != nil {
		t.Errorf("Close() = %v, want nil", err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"Warn", LevelWarn},
		{"error", LevelError},
		{"verbose", LevelInfo},
		{"", LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if len(ValidLevels()) != 4 {
		t.Errorf("ValidLevels() = %v", ValidLevels())
	}
}

func TestConcurrentWrites(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir, "alice", LevelInfo)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				logger.WithSegment(n).Info("tick", "j", j)
			}
		}(i)
	}
	wg.Wait()
	logger.Close()

	data, err := os.ReadFile(filepath.Join(dir, "alice.log"))
	if err != nil {
		t.Fatalf("failed to read log: %v", err)
	}
	if got := len(decodeLines(t, data)); got != 200 {
		t.Errorf("got %d log lines, want 200", got)
	}
}
