package status

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/Iron-Ham/livecap/internal/logging"
	"github.com/Iron-Ham/livecap/internal/segment"
)

// Publisher defaults.
const (
	DefaultProgressInterval  = 5 * time.Second
	DefaultHeartbeatInterval = 15 * time.Second
)

// Options configures a Publisher. Zero values select defaults.
type Options struct {
	// ProgressInterval is the minimum time between two progress writes.
	ProgressInterval time.Duration
	// InstanceID identifies this recorder run; a new UUID when empty.
	InstanceID string
	// PID is recorded as the owning process; os.Getpid() when zero.
	PID    int
	Logger *logging.Logger
	// Now is the clock used for timestamps.
	Now func() time.Time
}

// Publisher owns the status record of one subject. All methods are safe
// for concurrent use; write failures are logged and the next update
// retries with the full record.
type Publisher struct {
	fs     afero.Fs
	dir    string
	path   string
	opts   Options
	logger *logging.Logger

	mu        sync.Mutex
	rec       Record
	lastWrite time.Time
	closed    bool
}

// NewPublisher creates the status directory and writes the initial
// STARTING record for subject.
func NewPublisher(fs afero.Fs, dir, subject string, opts Options) (*Publisher, error) {
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = DefaultProgressInterval
	}
	if opts.InstanceID == "" {
		opts.InstanceID = uuid.NewString()
	}
	if opts.PID == 0 {
		opts.PID = os.Getpid()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logging.NopLogger()
	}

	if err := fs.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create status directory: %w", err)
	}

	now := opts.Now()
	p := &Publisher{
		fs:     fs,
		dir:    dir,
		path:   RecordPath(dir, subject),
		opts:   opts,
		logger: opts.Logger.WithSubject(subject),
		rec: Record{
			Subject:       subject,
			InstanceID:    opts.InstanceID,
			State:         StateStarting,
			PID:           opts.PID,
			StartedAt:     now,
			LastHeartbeat: now,
		},
	}

	p.mu.Lock()
	p.writeLocked(now)
	p.mu.Unlock()
	return p, nil
}

// RecordPath returns the record file for subject inside dir.
func RecordPath(dir, subject string) string {
	return filepath.Join(dir, segment.SafeName(subject)+RecordExt)
}

// Path returns the record file written by this publisher.
func (p *Publisher) Path() string {
	return p.path
}

// InstanceID returns the run identifier stored in the record.
func (p *Publisher) InstanceID() string {
	return p.opts.InstanceID
}

// Snapshot returns a copy of the current in-memory record.
func (p *Publisher) Snapshot() Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec := p.rec
	if rec.CurrentFile != nil {
		f := *rec.CurrentFile
		rec.CurrentFile = &f
	}
	return rec
}

// MarkWaiting records that the subject is offline.
func (p *Publisher) MarkWaiting() {
	p.update(func(r *Record) {
		r.State = StateWaiting
		r.CurrentFile = nil
		r.FileSizeMB = 0
	})
}

// MarkRecording records that file is being written.
func (p *Publisher) MarkRecording(file string) {
	p.update(func(r *Record) {
		r.State = StateRecording
		r.CurrentFile = &file
		r.FileSizeMB = 0
	})
}

// UpdateProgress records the current file size. Writes are throttled to
// one per ProgressInterval; the latest size is always kept in memory and
// goes out with the next write.
func (p *Publisher) UpdateProgress(sizeMB float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.rec.FileSizeMB = roundMB(sizeMB)
	now := p.opts.Now()
	if now.Sub(p.lastWrite) < p.opts.ProgressInterval {
		return
	}
	p.writeLocked(now)
}

// Heartbeat refreshes last_heartbeat only.
func (p *Publisher) Heartbeat() {
	p.update(func(*Record) {})
}

// MarkStopped records a clean stop.
func (p *Publisher) MarkStopped() {
	p.update(func(r *Record) {
		r.State = StateStopped
		r.CurrentFile = nil
	})
}

// RunHeartbeat calls Heartbeat every interval until ctx is done.
func (p *Publisher) RunHeartbeat(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Heartbeat()
		}
	}
}

// Close removes the record file. Later updates are ignored. A process that
// dies without calling Close leaves its record for readers to classify.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	_ = p.fs.Remove(p.path + TempExt)
	if err := p.fs.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove status record: %w", err)
	}
	return nil
}

func (p *Publisher) update(mutate func(*Record)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	mutate(&p.rec)
	p.writeLocked(p.opts.Now())
}

// writeLocked must be called with mu held.
func (p *Publisher) writeLocked(now time.Time) {
	p.rec.LastHeartbeat = now
	p.lastWrite = now

	data, err := json.MarshalIndent(p.rec, "", "  ")
	if err != nil {
		p.logger.Warn("failed to encode status record", "error", err.Error())
		return
	}
	if err := atomicWriteFile(p.fs, p.path, data); err != nil {
		p.logger.Warn("failed to write status record", "path", p.path, "error", err.Error())
	}
}

// atomicWriteFile writes data to path+".tmp", syncs it and renames it over
// path, so the record is never observed partially written.
func atomicWriteFile(fs afero.Fs, path string, data []byte) error {
	tmpPath := path + TempExt
	f, err := fs.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	success := false
	defer func() {
		if !success {
			_ = fs.Remove(tmpPath)
		}
	}()

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := fs.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}
