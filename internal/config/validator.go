package config

import (
	"fmt"
	"net"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "resolution.stability_threshold")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate Recorder config
	errors = append(errors, c.validateRecorder()...)

	// Validate FFmpeg config
	errors = append(errors, c.validateFFmpeg()...)

	// Validate Resolution config
	errors = append(errors, c.validateResolution()...)

	// Validate Status config
	errors = append(errors, c.validateStatus()...)

	// Validate Thumbnail config
	errors = append(errors, c.validateThumbnail()...)

	// Validate Monitor config
	errors = append(errors, c.validateMonitor()...)

	// Validate Logging config
	errors = append(errors, c.validateLogging()...)

	// Validate Metrics config
	errors = append(errors, c.validateMetrics()...)

	return errors
}

// positive reports a field that must be greater than zero
func positive(field string, value int) []ValidationError {
	if value > 0 {
		return nil
	}
	return []ValidationError{{
		Field:   field,
		Value:   value,
		Message: "must be positive",
	}}
}

// notBlank reports a string field that must be set
func notBlank(field, value string) []ValidationError {
	if strings.TrimSpace(value) != "" {
		return nil
	}
	return []ValidationError{{
		Field:   field,
		Value:   value,
		Message: "must not be empty",
	}}
}

// validateRecorder validates the RecorderConfig
func (c *Config) validateRecorder() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidModes(), c.Recorder.Mode) {
		errors = append(errors, ValidationError{
			Field:   "recorder.mode",
			Value:   c.Recorder.Mode,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidModes(), ", ")),
		})
	}

	if !slices.Contains(ValidPlatforms(), c.Recorder.Platform) {
		errors = append(errors, ValidationError{
			Field:   "recorder.platform",
			Value:   c.Recorder.Platform,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidPlatforms(), ", ")),
		})
	}

	errors = append(errors, notBlank("recorder.output_dir", c.Recorder.OutputDir)...)
	errors = append(errors, positive("recorder.check_interval_minutes", c.Recorder.CheckIntervalMinutes)...)

	for i, subject := range c.Recorder.Subjects {
		if strings.TrimSpace(strings.TrimPrefix(subject, "@")) == "" {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("recorder.subjects[%d]", i),
				Value:   subject,
				Message: "must not be empty",
			})
		}
	}

	return errors
}

// validateFFmpeg validates the FFmpegConfig
func (c *Config) validateFFmpeg() []ValidationError {
	var errors []ValidationError

	errors = append(errors, notBlank("ffmpeg.path", c.FFmpeg.Path)...)
	errors = append(errors, positive("ffmpeg.rw_timeout_seconds", c.FFmpeg.RWTimeoutSeconds)...)
	errors = append(errors, positive("ffmpeg.graceful_timeout_seconds", c.FFmpeg.GracefulTimeoutSeconds)...)
	errors = append(errors, positive("ffmpeg.remux_timeout_minutes", c.FFmpeg.RemuxTimeoutMinutes)...)

	return errors
}

// validateResolution validates the ResolutionConfig
func (c *Config) validateResolution() []ValidationError {
	var errors []ValidationError

	errors = append(errors, positive("resolution.poll_interval_seconds", c.Resolution.PollIntervalSeconds)...)
	errors = append(errors, positive("resolution.probe_timeout_seconds", c.Resolution.ProbeTimeoutSeconds)...)
	errors = append(errors, positive("resolution.stable_report_seconds", c.Resolution.StableReportSeconds)...)

	// Zero would restart on the first differing reading
	if c.Resolution.StabilityThreshold < 1 {
		errors = append(errors, ValidationError{
			Field:   "resolution.stability_threshold",
			Value:   c.Resolution.StabilityThreshold,
			Message: "must be at least 1",
		})
	}

	return errors
}

// validateStatus validates the StatusConfig
func (c *Config) validateStatus() []ValidationError {
	var errors []ValidationError

	errors = append(errors, notBlank("status.dir", c.Status.Dir)...)
	errors = append(errors, positive("status.progress_interval_seconds", c.Status.ProgressIntervalSeconds)...)
	errors = append(errors, positive("status.heartbeat_interval_seconds", c.Status.HeartbeatIntervalSeconds)...)

	// Readers mark a record stale after 60s without a heartbeat
	const maxHeartbeatSeconds = 30
	if c.Status.HeartbeatIntervalSeconds > maxHeartbeatSeconds {
		errors = append(errors, ValidationError{
			Field:   "status.heartbeat_interval_seconds",
			Value:   c.Status.HeartbeatIntervalSeconds,
			Message: fmt.Sprintf("exceeds maximum of %d", maxHeartbeatSeconds),
		})
	}

	return errors
}

// validateThumbnail validates the ThumbnailConfig
func (c *Config) validateThumbnail() []ValidationError {
	if !c.Thumbnail.Enabled {
		return nil
	}
	var errors []ValidationError
	errors = append(errors, positive("thumbnail.interval_seconds", c.Thumbnail.IntervalSeconds)...)
	errors = append(errors, positive("thumbnail.height", c.Thumbnail.Height)...)
	return errors
}

// validateMonitor validates the MonitorConfig
func (c *Config) validateMonitor() []ValidationError {
	return positive("monitor.refresh_seconds", c.Monitor.RefreshSeconds)
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	// Validate log level
	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	// Max size must be positive
	if c.Logging.MaxSizeMB <= 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be positive",
		})
	}

	// Reasonable upper bound for log file size
	const maxLogSizeMB = 1000 // 1GB
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	// Max backups must be non-negative
	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateMetrics validates the MetricsConfig
func (c *Config) validateMetrics() []ValidationError {
	if !c.Metrics.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.Metrics.Addr); err != nil {
		return []ValidationError{{
			Field:   "metrics.addr",
			Value:   c.Metrics.Addr,
			Message: "must be host:port",
		}}
	}
	return nil
}
