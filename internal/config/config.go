package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete livecap configuration
type Config struct {
	Recorder   RecorderConfig   `mapstructure:"recorder" yaml:"recorder"`
	FFmpeg     FFmpegConfig     `mapstructure:"ffmpeg" yaml:"ffmpeg"`
	Resolution ResolutionConfig `mapstructure:"resolution" yaml:"resolution"`
	Status     StatusConfig     `mapstructure:"status" yaml:"status"`
	Thumbnail  ThumbnailConfig  `mapstructure:"thumbnail" yaml:"thumbnail"`
	Monitor    MonitorConfig    `mapstructure:"monitor" yaml:"monitor"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
}

// RecorderConfig controls when and where broadcasts are recorded
type RecorderConfig struct {
	// Mode is "manual" (check once, record if live) or "automatic" (keep
	// checking and record every broadcast) (default: "manual")
	Mode string `mapstructure:"mode" yaml:"mode"`
	// OutputDir is where segment files are written (default: "./downloads")
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir"`
	// CheckIntervalMinutes is the wait between live checks in automatic mode (default: 5)
	CheckIntervalMinutes int `mapstructure:"check_interval_minutes" yaml:"check_interval_minutes"`
	// Platform selects the stream resolver: "tiktok" or "url" (default: "tiktok")
	Platform string `mapstructure:"platform" yaml:"platform"`
	// Subjects are recorded when none are given on the command line
	Subjects []string `mapstructure:"subjects" yaml:"subjects"`
}

// FFmpegConfig controls the external media tools
type FFmpegConfig struct {
	// Path is the ffmpeg executable (default: "ffmpeg")
	Path string `mapstructure:"path" yaml:"path"`
	// ProbePath is the ffprobe executable. Empty means the ffprobe next to
	// Path, or "ffprobe" on PATH.
	ProbePath string `mapstructure:"probe_path" yaml:"probe_path"`
	// RWTimeoutSeconds is ffmpeg's network read/write timeout (default: 10)
	RWTimeoutSeconds int `mapstructure:"rw_timeout_seconds" yaml:"rw_timeout_seconds"`
	// GracefulTimeoutSeconds bounds each step of the stop protocol (default: 5)
	GracefulTimeoutSeconds int `mapstructure:"graceful_timeout_seconds" yaml:"graceful_timeout_seconds"`
	// KeepSource keeps the .flv file after a successful remux (default: false)
	KeepSource bool `mapstructure:"keep_source" yaml:"keep_source"`
	// RemuxTimeoutMinutes bounds one remux (default: 30)
	RemuxTimeoutMinutes int `mapstructure:"remux_timeout_minutes" yaml:"remux_timeout_minutes"`
}

// ResolutionConfig controls mid-broadcast resolution change detection
type ResolutionConfig struct {
	// PollIntervalSeconds is the wait between probes (default: 3)
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds" yaml:"poll_interval_seconds"`
	// StabilityThreshold is how many times a new resolution must recur before
	// capture restarts (default: 2)
	StabilityThreshold int `mapstructure:"stability_threshold" yaml:"stability_threshold"`
	// ProbeTimeoutSeconds bounds one ffprobe run (default: 10)
	ProbeTimeoutSeconds int `mapstructure:"probe_timeout_seconds" yaml:"probe_timeout_seconds"`
	// StableReportSeconds is how often an unchanged resolution is logged (default: 60)
	StableReportSeconds int `mapstructure:"stable_report_seconds" yaml:"stable_report_seconds"`
}

// StatusConfig controls the status records read by dashboards
type StatusConfig struct {
	// Dir holds one JSON record per subject (default: ".livecap_status")
	Dir string `mapstructure:"dir" yaml:"dir"`
	// ProgressIntervalSeconds throttles size updates (default: 5)
	ProgressIntervalSeconds int `mapstructure:"progress_interval_seconds" yaml:"progress_interval_seconds"`
	// HeartbeatIntervalSeconds is how often an idle record is refreshed (default: 15)
	HeartbeatIntervalSeconds int `mapstructure:"heartbeat_interval_seconds" yaml:"heartbeat_interval_seconds"`
}

// ThumbnailConfig controls periodic still frames of live recordings
type ThumbnailConfig struct {
	// Enabled turns thumbnails on (default: true)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// IntervalSeconds is the wait between captures (default: 60)
	IntervalSeconds int `mapstructure:"interval_seconds" yaml:"interval_seconds"`
	// Height is the image height in pixels (default: 400)
	Height int `mapstructure:"height" yaml:"height"`
}

// MonitorConfig controls the live dashboard
type MonitorConfig struct {
	// RefreshSeconds is the dashboard refresh interval (default: 2)
	RefreshSeconds int `mapstructure:"refresh_seconds" yaml:"refresh_seconds"`
	// Plain prints a text table instead of the interactive view (default: false)
	Plain bool `mapstructure:"plain" yaml:"plain"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether file logging is enabled (default: true)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level" yaml:"level"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	// MaxBackups is the number of backup log files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	// Enabled serves /metrics and /status while recording (default: false)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Addr is the listen address (default: "127.0.0.1:9464")
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Recorder: RecorderConfig{
			Mode:                 ModeManual,
			OutputDir:            "./downloads",
			CheckIntervalMinutes: 5,
			Platform:             PlatformTikTok,
			Subjects:             []string{},
		},
		FFmpeg: FFmpegConfig{
			Path:                   "ffmpeg",
			ProbePath:              "",
			RWTimeoutSeconds:       10,
			GracefulTimeoutSeconds: 5,
			KeepSource:             false,
			RemuxTimeoutMinutes:    30,
		},
		Resolution: ResolutionConfig{
			PollIntervalSeconds: 3,
			StabilityThreshold:  2,
			ProbeTimeoutSeconds: 10,
			StableReportSeconds: 60,
		},
		Status: StatusConfig{
			Dir:                      ".livecap_status",
			ProgressIntervalSeconds:  5,
			HeartbeatIntervalSeconds: 15,
		},
		Thumbnail: ThumbnailConfig{
			Enabled:         true,
			IntervalSeconds: 60,
			Height:          400,
		},
		Monitor: MonitorConfig{
			RefreshSeconds: 2,
			Plain:          false,
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9464",
		},
	}
}

// CheckInterval returns the automatic-mode check interval as a time.Duration
func (c *RecorderConfig) CheckInterval() time.Duration {
	return time.Duration(c.CheckIntervalMinutes) * time.Minute
}

// RWTimeout returns ffmpeg's network timeout as a time.Duration
func (c *FFmpegConfig) RWTimeout() time.Duration {
	return time.Duration(c.RWTimeoutSeconds) * time.Second
}

// GracefulTimeout returns the per-step stop timeout as a time.Duration
func (c *FFmpegConfig) GracefulTimeout() time.Duration {
	return time.Duration(c.GracefulTimeoutSeconds) * time.Second
}

// RemuxTimeout returns the remux timeout as a time.Duration
func (c *FFmpegConfig) RemuxTimeout() time.Duration {
	return time.Duration(c.RemuxTimeoutMinutes) * time.Minute
}

// PollInterval returns the probe interval as a time.Duration
func (c *ResolutionConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// ProbeTimeout returns the ffprobe timeout as a time.Duration
func (c *ResolutionConfig) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutSeconds) * time.Second
}

// StableReportInterval returns the stable-resolution log interval as a time.Duration
func (c *ResolutionConfig) StableReportInterval() time.Duration {
	return time.Duration(c.StableReportSeconds) * time.Second
}

// ProgressInterval returns the status write throttle as a time.Duration
func (c *StatusConfig) ProgressInterval() time.Duration {
	return time.Duration(c.ProgressIntervalSeconds) * time.Second
}

// HeartbeatInterval returns the heartbeat interval as a time.Duration
func (c *StatusConfig) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalSeconds) * time.Second
}

// Interval returns the thumbnail interval as a time.Duration
func (c *ThumbnailConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// Refresh returns the dashboard refresh interval as a time.Duration
func (c *MonitorConfig) Refresh() time.Duration {
	return time.Duration(c.RefreshSeconds) * time.Second
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Recorder defaults
	viper.SetDefault("recorder.mode", defaults.Recorder.Mode)
	viper.SetDefault("recorder.output_dir", defaults.Recorder.OutputDir)
	viper.SetDefault("recorder.check_interval_minutes", defaults.Recorder.CheckIntervalMinutes)
	viper.SetDefault("recorder.platform", defaults.Recorder.Platform)
	viper.SetDefault("recorder.subjects", defaults.Recorder.Subjects)

	// FFmpeg defaults
	viper.SetDefault("ffmpeg.path", defaults.FFmpeg.Path)
	viper.SetDefault("ffmpeg.probe_path", defaults.FFmpeg.ProbePath)
	viper.SetDefault("ffmpeg.rw_timeout_seconds", defaults.FFmpeg.RWTimeoutSeconds)
	viper.SetDefault("ffmpeg.graceful_timeout_seconds", defaults.FFmpeg.GracefulTimeoutSeconds)
	viper.SetDefault("ffmpeg.keep_source", defaults.FFmpeg.KeepSource)
	viper.SetDefault("ffmpeg.remux_timeout_minutes", defaults.FFmpeg.RemuxTimeoutMinutes)

	// Resolution defaults
	viper.SetDefault("resolution.poll_interval_seconds", defaults.Resolution.PollIntervalSeconds)
	viper.SetDefault("resolution.stability_threshold", defaults.Resolution.StabilityThreshold)
	viper.SetDefault("resolution.probe_timeout_seconds", defaults.Resolution.ProbeTimeoutSeconds)
	viper.SetDefault("resolution.stable_report_seconds", defaults.Resolution.StableReportSeconds)

	// Status defaults
	viper.SetDefault("status.dir", defaults.Status.Dir)
	viper.SetDefault("status.progress_interval_seconds", defaults.Status.ProgressIntervalSeconds)
	viper.SetDefault("status.heartbeat_interval_seconds", defaults.Status.HeartbeatIntervalSeconds)

	// Thumbnail defaults
	viper.SetDefault("thumbnail.enabled", defaults.Thumbnail.Enabled)
	viper.SetDefault("thumbnail.interval_seconds", defaults.Thumbnail.IntervalSeconds)
	viper.SetDefault("thumbnail.height", defaults.Thumbnail.Height)

	// Monitor defaults
	viper.SetDefault("monitor.refresh_seconds", defaults.Monitor.RefreshSeconds)
	viper.SetDefault("monitor.plain", defaults.Monitor.Plain)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)

	// Metrics defaults
	viper.SetDefault("metrics.enabled", defaults.Metrics.Enabled)
	viper.SetDefault("metrics.addr", defaults.Metrics.Addr)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate the configuration
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "livecap")
	}
	// Fall back to ~/.config/livecap
	home, err := os.UserHomeDir()
	if err != nil {
		return ".livecap"
	}
	return filepath.Join(home, ".config", "livecap")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// Recorder modes
const (
	ModeManual    = "manual"
	ModeAutomatic = "automatic"
)

// Stream platforms
const (
	PlatformTikTok = "tiktok"
	PlatformURL    = "url"
)

// ValidModes returns the list of valid recorder modes
func ValidModes() []string {
	return []string{ModeManual, ModeAutomatic}
}

// ValidPlatforms returns the list of valid resolver platforms
func ValidPlatforms() []string {
	return []string{PlatformTikTok, PlatformURL}
}
