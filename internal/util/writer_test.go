package util

import (
	"bytes"
	"strings"
	"sync"
	"testing"
)

func TestSyncWriterConcurrentLines(t *testing.T) {
	var buf bytes.Buffer
	w := NewSyncWriter(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = w.Write([]byte("line\n"))
			}
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 800 {
		t.Fatalf("got %d lines, want 800", len(lines))
	}
	for _, l := range lines {
		if l != "line" {
			t.Fatalf("interleaved write: %q", l)
		}
	}
}

func TestNewSyncWriterIdempotent(t *testing.T) {
	w := NewSyncWriter(&bytes.Buffer{})
	if NewSyncWriter(w) != w {
		t.Error("wrapping a SyncWriter should return it unchanged")
	}
}
