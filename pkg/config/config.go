// Package config holds HLSgrab settings: defaults, an optional JSON file and
// HLSGRAB_* environment overrides. Command-line flags are applied last by the CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/heyjunin/HLSgrab/pkg/downloader"
	"github.com/heyjunin/HLSgrab/pkg/errors"
	"github.com/heyjunin/HLSgrab/pkg/metrics"
	"github.com/heyjunin/HLSgrab/pkg/segments"
)

// Duration is a time.Duration that reads "30s" style strings or plain seconds from JSON.
type Duration time.Duration

// MarshalJSON writes the duration as a Go duration string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts either a duration string or a number of seconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	var secs float64
	if err := json.Unmarshal(data, &secs); err != nil {
		return fmt.Errorf("invalid duration %s", string(data))
	}
	*d = Duration(secs * float64(time.Second))
	return nil
}

// Config holds all configuration options.
type Config struct {
	// Output
	OutputDir string `json:"output_dir"`
	WorkDir   string `json:"work_dir"`
	Overwrite bool   `json:"overwrite"`

	// Network
	BatchSize         int      `json:"batch_size"`
	PlaylistTimeout   Duration `json:"playlist_timeout"`
	SegmentTimeout    Duration `json:"segment_timeout"`
	RequestsPerSecond float64  `json:"requests_per_second"`
	UserAgent         string   `json:"user_agent"`

	// Remux
	FFmpegPath  string `json:"ffmpeg_path"`
	FFprobePath string `json:"ffprobe_path"`
	SkipRemux   bool   `json:"skip_remux"`

	// Progress
	ProgressFile       string `json:"progress_file"`
	ProgressFileFormat string `json:"progress_file_format"` // text, json

	// Logging and observability
	LogLevel    string `json:"log_level"`
	LogFormat   string `json:"log_format"` // json, console
	MetricsAddr string `json:"metrics_addr"`

	// History
	HistoryDB string `json:"history_db"`
	NoHistory bool   `json:"no_history"`
}

// Default returns a Config with default values.
func Default() *Config {
	outputDir := "."
	if home, err := os.UserHomeDir(); err == nil {
		outputDir = filepath.Join(home, "Downloads")
	}
	historyDB := "hlsgrab-history.db"
	if dir, err := os.UserConfigDir(); err == nil {
		historyDB = filepath.Join(dir, "hlsgrab", "history.db")
	}

	return &Config{
		OutputDir: outputDir,
		WorkDir:   filepath.Join(os.TempDir(), "hlsgrab"),

		BatchSize:       segments.DefaultBatchSize,
		PlaylistTimeout: Duration(downloader.DefaultPlaylistTimeout),
		SegmentTimeout:  Duration(downloader.DefaultSegmentTimeout),
		UserAgent:       downloader.DefaultUserAgent,

		FFmpegPath:  "ffmpeg",
		FFprobePath: "ffprobe",

		ProgressFileFormat: "text",

		LogLevel:  "info",
		LogFormat: "json",

		HistoryDB: historyDB,
	}
}

// DefaultPath returns the config file location used when --config is not given.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "hlsgrab", "config.json")
}

// Load reads a Config from a JSON file on top of the defaults.
// A missing file (or an empty path) yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, errors.Wrap(err, errors.ValidationError, errors.GetErrorMessage(errors.ErrConfigUnreadable), errors.ErrConfigUnreadable)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, errors.ValidationError, errors.GetErrorMessage(errors.ErrConfigUnreadable), errors.ErrConfigUnreadable)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from HLSGRAB_* environment variables.
func (c *Config) ApplyEnv() {
	c.OutputDir = getEnv("HLSGRAB_OUTPUT_DIR", c.OutputDir)
	c.WorkDir = getEnv("HLSGRAB_WORK_DIR", c.WorkDir)
	c.Overwrite = getEnvBool("HLSGRAB_OVERWRITE", c.Overwrite)

	c.BatchSize = getEnvInt("HLSGRAB_BATCH_SIZE", c.BatchSize)
	c.PlaylistTimeout = Duration(getEnvDuration("HLSGRAB_PLAYLIST_TIMEOUT", time.Duration(c.PlaylistTimeout)))
	c.SegmentTimeout = Duration(getEnvDuration("HLSGRAB_SEGMENT_TIMEOUT", time.Duration(c.SegmentTimeout)))
	c.RequestsPerSecond = getEnvFloat("HLSGRAB_RPS", c.RequestsPerSecond)
	c.UserAgent = getEnv("HLSGRAB_USER_AGENT", c.UserAgent)

	c.FFmpegPath = getEnv("HLSGRAB_FFMPEG", c.FFmpegPath)
	c.FFprobePath = getEnv("HLSGRAB_FFPROBE", c.FFprobePath)
	c.SkipRemux = getEnvBool("HLSGRAB_SKIP_REMUX", c.SkipRemux)

	c.ProgressFile = getEnv("HLSGRAB_PROGRESS_FILE", c.ProgressFile)
	c.ProgressFileFormat = getEnv("HLSGRAB_PROGRESS_FILE_FORMAT", c.ProgressFileFormat)

	c.LogLevel = getEnv("HLSGRAB_LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("HLSGRAB_LOG_FORMAT", c.LogFormat)
	c.MetricsAddr = getEnv("HLSGRAB_METRICS_ADDR", c.MetricsAddr)

	c.HistoryDB = getEnv("HLSGRAB_HISTORY_DB", c.HistoryDB)
	c.NoHistory = getEnvBool("HLSGRAB_NO_HISTORY", c.NoHistory)
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	var problems []string

	if c.OutputDir == "" {
		problems = append(problems, "output directory not specified")
	}
	if c.WorkDir == "" {
		problems = append(problems, "work directory not specified")
	}
	if c.BatchSize < 1 {
		problems = append(problems, fmt.Sprintf("batch size must be at least 1, got %d", c.BatchSize))
	}
	if c.PlaylistTimeout <= 0 {
		problems = append(problems, "playlist timeout must be positive")
	}
	if c.SegmentTimeout <= 0 {
		problems = append(problems, "segment timeout must be positive")
	}
	if c.RequestsPerSecond < 0 {
		problems = append(problems, "requests per second cannot be negative")
	}
	switch c.ProgressFileFormat {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("invalid progress file format %q (expected text or json)", c.ProgressFileFormat))
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		problems = append(problems, fmt.Sprintf("invalid log format %q (expected json or console)", c.LogFormat))
	}
	if !c.NoHistory && c.HistoryDB == "" {
		problems = append(problems, "history database path not specified")
	}

	if len(problems) > 0 {
		return errors.New(errors.ValidationError, errors.GetErrorMessage(errors.ErrConfigInvalid),
			strings.Join(problems, "; "), errors.ErrConfigInvalid)
	}
	return nil
}

// DownloaderOptions converts the network settings to downloader.Options.
func (c *Config) DownloaderOptions(m *metrics.Metrics) downloader.Options {
	return downloader.Options{
		PlaylistTimeout:   time.Duration(c.PlaylistTimeout),
		SegmentTimeout:    time.Duration(c.SegmentTimeout),
		UserAgent:         c.UserAgent,
		RequestsPerSecond: c.RequestsPerSecond,
		Metrics:           m,
	}
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes")
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
