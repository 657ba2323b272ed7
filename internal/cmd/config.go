package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/Iron-Ham/livecap/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify livecap configuration",
	Long: `View or modify livecap configuration.

Without arguments, displays the current configuration.
Use subcommands to modify settings or create a config file.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the user's config file.

Keys use dot notation, e.g.:
  livecap config set recorder.mode automatic
  livecap config set resolution.stability_threshold 3
  livecap config set metrics.enabled true

Valid keys:
  recorder.mode                       - manual or automatic
  recorder.output_dir                 - Directory for recordings
  recorder.check_interval_minutes     - Minutes between live checks
  recorder.platform                   - tiktok or url
  ffmpeg.path                         - ffmpeg binary
  ffmpeg.probe_path                   - ffprobe binary (empty: next to ffmpeg.path)
  ffmpeg.keep_source                  - Keep .flv files after remuxing (true/false)
  ffmpeg.graceful_timeout_seconds     - Wait per termination step
  resolution.poll_interval_seconds    - Seconds between resolution probes
  resolution.stability_threshold      - Recurrences needed to confirm a change
  status.dir                          - Directory for status records
  status.heartbeat_interval_seconds   - Seconds between heartbeats
  thumbnail.enabled                   - Capture thumbnails (true/false)
  thumbnail.interval_seconds          - Seconds between thumbnails
  monitor.refresh_seconds             - Dashboard refresh interval
  monitor.plain                       - Plain dashboard output (true/false)
  logging.enabled                     - Write log files (true/false)
  logging.level                       - debug, info, warn or error
  metrics.enabled                     - Serve metrics (true/false)
  metrics.addr                        - host:port for the metrics server`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/livecap/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

// settableKeys maps each key accepted by 'config set' to its value type.
var settableKeys = map[string]string{
	"recorder.mode":                     "string",
	"recorder.output_dir":               "string",
	"recorder.check_interval_minutes":   "int",
	"recorder.platform":                 "string",
	"ffmpeg.path":                       "string",
	"ffmpeg.probe_path":                 "string",
	"ffmpeg.keep_source":                "bool",
	"ffmpeg.graceful_timeout_seconds":   "int",
	"resolution.poll_interval_seconds":  "int",
	"resolution.stability_threshold":    "int",
	"status.dir":                        "string",
	"status.heartbeat_interval_seconds": "int",
	"thumbnail.enabled":                 "bool",
	"thumbnail.interval_seconds":        "int",
	"monitor.refresh_seconds":           "int",
	"monitor.plain":                     "bool",
	"logging.enabled":                   "bool",
	"logging.level":                     "string",
	"metrics.enabled":                   "bool",
	"metrics.addr":                      "string",
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(out, "Configuration is invalid, showing defaults:\n%v\n\n", err)
		cfg = config.Default()
	}

	// Show where config is being read from
	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Config file: %s\n\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Config file: (none - using defaults)\n\n")
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	_, err = out.Write(data)
	return err
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	value := args[1]

	keyType, ok := settableKeys[key]
	if !ok {
		return fmt.Errorf("unknown configuration key: %s\nRun 'livecap config set --help' to see valid keys", key)
	}

	// Validate the value based on type
	var typedValue any
	switch keyType {
	case "string":
		typedValue = value
	case "bool":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid value for %s: expected true or false", key)
		}
		typedValue = b
	case "int":
		intVal, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for %s: expected integer", key)
		}
		typedValue = intVal
	}

	// Check the result against the full validator before writing it
	viper.Set(key, typedValue)
	if _, err := config.Load(); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}

	// Ensure config directory exists
	configFile := config.ConfigFile()
	if err := os.MkdirAll(filepath.Dir(configFile), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Set %s = %v\n", key, typedValue)
	fmt.Fprintf(out, "Config saved to %s\n", configFile)
	return nil
}

const configHeader = `# livecap configuration
#
# recorder.mode: manual checks each subject once; automatic keeps checking.
# resolution.stability_threshold: back-to-back readings of a new resolution
#   needed before the recording is split.
# status.dir: one JSON record per subject, read by 'livecap monitor'.
# Environment variables override any key: LIVECAP_RECORDER_MODE=automatic

`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configFile := config.ConfigFile()

	// Check if config file already exists
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s\nUse 'livecap config set' to modify values", configFile)
	}

	if err := os.MkdirAll(filepath.Dir(configFile), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config.Default())
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	if err := os.WriteFile(configFile, append([]byte(configHeader), data...), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created config file at %s\n", configFile)
	fmt.Fprintln(out, "Edit this file to customize livecap's behavior.")
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	configFile := config.ConfigFile()

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", configFile)
	}

	// Also show config search paths
	fmt.Fprintln(out, "\nSearch paths:")
	fmt.Fprintf(out, "  1. %s\n", configFile)
	fmt.Fprintf(out, "  2. $HOME/.config/livecap/config.yaml\n")
	fmt.Fprintf(out, "  3. ./config.yaml (current directory)\n")
	fmt.Fprintln(out, "\nEnvironment variables: LIVECAP_* (e.g., LIVECAP_RECORDER_MODE)")
	fmt.Fprintln(out, "A .env file in the working directory is loaded first.")
	return nil
}
