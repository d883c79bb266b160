// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-envconfig"
)

// ErrInvalidConfig is returned by Validate when a setting is out of range.
var ErrInvalidConfig = errors.New("config: invalid configuration")

var validate = validator.New()

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port" validate:"min=1,max=65535"`
	// Directory HTTP sources and destinations must live under. Empty trusts
	// every path the caller names.
	MediaRoot string `env:"MEDIA_ROOT" json:"media_root,omitempty"`

	// Tool settings
	FFmpegPath  string `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path" validate:"required"`
	FFprobePath string `env:"FFPROBE_PATH, default=ffprobe" json:"ffprobe_path" validate:"required"`
	CRF         int    `env:"RENDER_CRF, default=15" json:"render_crf" validate:"min=0,max=51"`

	// Storage settings
	TempDir  string `env:"TEMP_DIR, default=/tmp/clipkit" json:"temp_dir" validate:"required"`
	TrashDir string `env:"TRASH_DIR" json:"trash_dir,omitempty"` // Empty means the user recycle bin
	// How long workspaces stay in <TEMP_DIR>/.trash, used when the recycle
	// bin is on another filesystem. 0 keeps them.
	TrashRetention time.Duration `env:"TRASH_RETENTION, default=24h" json:"trash_retention" validate:"min=0"`

	// Processing settings
	MaxConcurrentRenders int `env:"MAX_CONCURRENT_RENDERS, default=2" json:"max_concurrent_renders" validate:"min=1"`
	RenderHistory        int `env:"RENDER_HISTORY, default=1000" json:"render_history" validate:"min=0"` // 0 keeps every finished render

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty" validate:"required_with=S3Bucket"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty" validate:"omitempty,url"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format" validate:"oneof=text json TEXT JSON"`
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"` // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Load reads configuration from environment variables using go-envconfig
// and validates it.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks ranges and cross-field requirements.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// NewLogger creates a structured logger writing to stdout.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	return c.NewLoggerTo(os.Stdout)
}

// NewLoggerTo is NewLogger with an explicit destination.
func (c *Config) NewLoggerTo(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(c.LogLevel)}

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, FFmpegPath: %s, FFprobePath: %s, CRF: %d, TempDir: %s, TrashDir: %s, TrashRetention: %s, MediaRoot: %s, MaxConcurrentRenders: %d, RenderHistory: %d, S3Bucket: %s, S3Region: %s, S3Endpoint: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.FFmpegPath,
		c.FFprobePath,
		c.CRF,
		c.TempDir,
		c.TrashDir,
		c.TrashRetention,
		c.MediaRoot,
		c.MaxConcurrentRenders,
		c.RenderHistory,
		c.S3Bucket,
		c.S3Region,
		c.S3Endpoint,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
