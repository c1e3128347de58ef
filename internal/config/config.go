package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"vidfetch/pkg/models"
)

// EnvPrefix is prepended to every configuration variable name
const EnvPrefix = "VIDFETCH_"

// DefaultEnvFile is loaded when present and no other env file is given
const DefaultEnvFile = ".env"

var (
	ErrInvalidPort          = errors.New("invalid port: must be between 0 and 65535")
	ErrInvalidContentLength = errors.New("invalid max content length: must be positive")
	ErrInvalidConcurrency   = errors.New("invalid max concurrent downloads: must be at least 1")
	ErrInvalidTimeout       = errors.New("invalid timeout: must be non-negative")
	ErrInvalidRateLimit     = errors.New("invalid rate limit: must be non-negative")
	ErrInvalidLogLevel      = errors.New("invalid log level")
	ErrNoDownloadDir        = errors.New("download directory is not set")
)

// LookupFunc reads a single variable, like os.LookupEnv
type LookupFunc func(key string) (string, bool)

// Load reads .env files into the process environment and builds the
// configuration from it. Variables already set in the environment win.
func Load(envFiles ...string) (*models.Config, error) {
	if len(envFiles) == 0 {
		if _, err := os.Stat(DefaultEnvFile); err == nil {
			envFiles = []string{DefaultEnvFile}
		}
	}

	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	return FromLookup(os.LookupEnv)
}

// FromLookup builds a validated configuration from the given variable source
func FromLookup(lookup LookupFunc) (*models.Config, error) {
	cfg := models.DefaultConfig()
	p := &parser{lookup: lookup}

	p.str("HOST", &cfg.Host)
	p.integer("PORT", &cfg.Port)
	p.str("DOWNLOAD_DIR", &cfg.DownloadDir)
	p.int64("MAX_CONTENT_LENGTH", &cfg.MaxContentLength)
	p.str("COOKIES_FILE", &cfg.CookiesFile)
	p.str("USER_AGENT", &cfg.UserAgent)
	p.str("YTDLP_PATH", &cfg.YtdlPath)
	p.str("FFMPEG_PATH", &cfg.FFmpegPath)
	p.duration("SOCKET_TIMEOUT", &cfg.SocketTimeout)
	p.duration("DOWNLOAD_TIMEOUT", &cfg.DownloadTimeout)
	p.integer("MAX_CONCURRENT_DOWNLOADS", &cfg.MaxConcurrentDownloads)
	p.float("RATE_LIMIT", &cfg.RateLimit)
	p.integer("RATE_BURST", &cfg.RateBurst)
	p.str("IMAGES_DIR", &cfg.ImagesDir)
	p.duration("TEMP_MAX_AGE", &cfg.TempMaxAge)
	p.str("LOG_LEVEL", &cfg.LogLevel)

	if p.err != nil {
		return nil, p.err
	}

	cfg = mergeWithDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// mergeWithDefaults fills in values that cannot be expressed as constants
func mergeWithDefaults(cfg *models.Config) *models.Config {
	if cfg.DownloadDir == "" {
		cfg.DownloadDir = DefaultDownloadDir()
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	return cfg
}

// Validate checks if the configuration is valid
func Validate(cfg *models.Config) error {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return ErrInvalidPort
	}

	if cfg.DownloadDir == "" {
		return ErrNoDownloadDir
	}

	if cfg.MaxContentLength <= 0 {
		return ErrInvalidContentLength
	}

	if cfg.MaxConcurrentDownloads < 1 {
		return ErrInvalidConcurrency
	}

	if cfg.SocketTimeout < 0 || cfg.DownloadTimeout < 0 || cfg.TempMaxAge < 0 {
		return ErrInvalidTimeout
	}

	if cfg.RateLimit < 0 || cfg.RateBurst < 0 {
		return ErrInvalidRateLimit
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "off":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, cfg.LogLevel)
	}

	return nil
}

// DefaultDownloadDir returns ~/Downloads/YouTube_Downloads, falling back to
// the working directory when the home directory is unknown
func DefaultDownloadDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, "Downloads", "YouTube_Downloads")
	}
	return "downloads"
}

// parser collects the first conversion error and skips the rest
type parser struct {
	lookup LookupFunc
	err    error
}

func (p *parser) get(name string) (string, bool) {
	if p.err != nil {
		return "", false
	}
	v, ok := p.lookup(EnvPrefix + name)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (p *parser) fail(name string, err error) {
	p.err = fmt.Errorf("failed to parse %s%s: %w", EnvPrefix, name, err)
}

func (p *parser) str(name string, dst *string) {
	if v, ok := p.get(name); ok {
		*dst = v
	}
}

func (p *parser) integer(name string, dst *int) {
	if v, ok := p.get(name); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			p.fail(name, err)
			return
		}
		*dst = n
	}
}

func (p *parser) int64(name string, dst *int64) {
	if v, ok := p.get(name); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			p.fail(name, err)
			return
		}
		*dst = n
	}
}

func (p *parser) float(name string, dst *float64) {
	if v, ok := p.get(name); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			p.fail(name, err)
			return
		}
		*dst = f
	}
}

func (p *parser) duration(name string, dst *time.Duration) {
	if v, ok := p.get(name); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			p.fail(name, err)
			return
		}
		*dst = d
	}
}
