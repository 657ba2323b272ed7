// Package resolution watches a live stream for encoding changes.
//
// A Monitor polls a probe.Prober on a fixed interval and confirms a
// resolution change only after the new value has recurred StabilityThreshold
// times in a row. Confirmation is a one-way latch: Changed() is closed once
// and the polling loop exits.
package resolution

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Iron-Ham/livecap/internal/logging"
	"github.com/Iron-Ham/livecap/internal/probe"
	"github.com/Iron-Ham/livecap/internal/procutil"
)

// Default polling parameters.
const (
	DefaultPollInterval         = 3 * time.Second
	DefaultStabilityThreshold   = 2
	DefaultStableReportInterval = 60 * time.Second
	DefaultJoinTimeout          = 2 * time.Second
)

// Config controls the polling loop.
type Config struct {
	// PollInterval is the wait between two probes.
	PollInterval time.Duration
	// StabilityThreshold is the number of times an off-baseline reading must
	// recur, back to back, to confirm a change. With 2, a change is confirmed
	// on the third consecutive matching reading.
	StabilityThreshold int
	// StableReportInterval is how often an unchanged resolution is logged.
	StableReportInterval time.Duration
	// JoinTimeout bounds how long Stop waits for the loop to exit.
	JoinTimeout time.Duration
}

// DefaultConfig returns the standard monitor configuration.
func DefaultConfig() Config {
	return Config{
		PollInterval:         DefaultPollInterval,
		StabilityThreshold:   DefaultStabilityThreshold,
		StableReportInterval: DefaultStableReportInterval,
		JoinTimeout:          DefaultJoinTimeout,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.StabilityThreshold < 1 {
		c.StabilityThreshold = d.StabilityThreshold
	}
	if c.StableReportInterval <= 0 {
		c.StableReportInterval = d.StableReportInterval
	}
	if c.JoinTimeout <= 0 {
		c.JoinTimeout = d.JoinTimeout
	}
	return c
}

// Transition is a confirmed resolution change.
type Transition struct {
	From probe.Resolution
	To   probe.Resolution
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the logger used for resolution observations.
func WithLogger(logger *logging.Logger) Option {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithProbeErrorHook registers a callback invoked for every failed probe.
// It runs on the polling goroutine and must not block.
func WithProbeErrorHook(fn func(error)) Option {
	return func(m *Monitor) {
		m.onProbeError = fn
	}
}

// Monitor polls the resolution of one media URL.
type Monitor struct {
	prober probe.Prober
	url    string
	config Config
	logger *logging.Logger

	onProbeError func(error)

	// Debounce state. Only the polling goroutine writes it; mu guards the
	// fields read through Current and Transition.
	mu          sync.Mutex
	current     probe.Resolution
	pending     probe.Resolution
	count       int
	transition  Transition
	lastReport  time.Time
	toolWarning bool

	changed     chan struct{}
	changedOnce sync.Once
	hasChanged  atomic.Bool

	started  atomic.Bool
	stopOnce sync.Once
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewMonitor creates a Monitor for url. The loop does not run until Start.
func NewMonitor(prober probe.Prober, url string, config Config, opts ...Option) *Monitor {
	m := &Monitor{
		prober:  prober,
		url:     url,
		config:  config.withDefaults(),
		logger:  logging.NopLogger(),
		changed: make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches the polling loop. Calling Start more than once has no effect.
func (m *Monitor) Start(ctx context.Context) {
	if !m.started.CompareAndSwap(false, true) {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()

	go m.loop(ctx)
}

// Stop halts the polling loop and waits up to JoinTimeout for it to exit.
// It is safe to call from any goroutine, more than once, and before Start.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		if !m.started.Load() {
			return
		}
		m.mu.Lock()
		cancel := m.cancel
		m.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		if !procutil.WaitForExit(m.done, m.config.JoinTimeout) {
			m.logger.Warn("resolution monitor did not stop in time",
				"join_timeout", m.config.JoinTimeout.String())
		}
	})
}

// Changed returns a channel that is closed once a change is confirmed.
func (m *Monitor) Changed() <-chan struct{} {
	return m.changed
}

// HasChanged reports whether a change has been confirmed.
func (m *Monitor) HasChanged() bool {
	return m.hasChanged.Load()
}

// Transition returns the confirmed change. It is the zero value until
// HasChanged reports true.
func (m *Monitor) Transition() Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transition
}

// Current returns the baseline resolution, or the zero value before the
// first successful probe. It is not updated by a confirmed change.
func (m *Monitor) Current() probe.Resolution {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Done is closed when the polling loop has exited.
func (m *Monitor) Done() <-chan struct{} {
	return m.done
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.done)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		res, err := m.prober.Probe(ctx, m.url)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			m.probeFailed(err)
		} else if m.Observe(res) {
			return
		}

		timer.Reset(m.config.PollInterval)
	}
}

func (m *Monitor) probeFailed(err error) {
	if m.onProbeError != nil {
		m.onProbeError(err)
	}
	if errors.Is(err, probe.ErrToolMissing) {
		m.mu.Lock()
		first := !m.toolWarning
		m.toolWarning = true
		m.mu.Unlock()
		if first {
			m.logger.Warn("resolution probe unavailable", "error", err.Error())
		}
		return
	}
	m.logger.Debug("no resolution reading", "error", err.Error())
}

// Observe applies one successful reading to the debounce state and reports
// whether it confirmed a change. The polling loop calls it for every
// reading; it is exported so callers with their own probe schedule can
// drive a Monitor without Start.
func (m *Monitor) Observe(res probe.Resolution) bool {
	if !res.Valid() || m.hasChanged.Load() {
		return m.hasChanged.Load()
	}

	m.mu.Lock()
	now := time.Now()
	switch {
	case !m.current.Valid():
		m.current = res
		m.lastReport = now
		m.mu.Unlock()
		m.logger.Info("recording resolution", "resolution", res.String())
		return false

	case res == m.current:
		m.pending = probe.Resolution{}
		m.count = 0
		report := now.Sub(m.lastReport) >= m.config.StableReportInterval
		if report {
			m.lastReport = now
		}
		m.mu.Unlock()
		if report {
			m.logger.Info("resolution stable", "resolution", res.String())
		}
		return false
	}

	// count is the number of times pending recurred after its first sighting.
	if res == m.pending {
		m.count++
	} else {
		m.pending = res
		m.count = 0
	}
	if m.count < m.config.StabilityThreshold {
		count := m.count
		m.mu.Unlock()
		m.logger.Debug("resolution candidate",
			"resolution", res.String(),
			"count", count,
			"threshold", m.config.StabilityThreshold)
		return false
	}

	m.transition = Transition{From: m.current, To: res}
	t := m.transition
	m.mu.Unlock()

	m.changedOnce.Do(func() {
		m.hasChanged.Store(true)
		close(m.changed)
	})
	m.logger.Info("resolution change confirmed",
		"from", t.From.String(),
		"to", t.To.String())
	return true
}
