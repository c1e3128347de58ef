package models

import (
	"path/filepath"
	"time"
)

// Config represents the application configuration
type Config struct {
	Host                   string        `json:"host"`
	Port                   int           `json:"port"`
	DownloadDir            string        `json:"downloadDir"`
	MaxContentLength       int64         `json:"maxContentLength"`
	CookiesFile            string        `json:"cookiesFile"`
	UserAgent              string        `json:"userAgent"`
	YtdlPath               string        `json:"ytdlPath"`
	FFmpegPath             string        `json:"ffmpegPath"`
	SocketTimeout          time.Duration `json:"socketTimeout"`
	DownloadTimeout        time.Duration `json:"downloadTimeout"`
	MaxConcurrentDownloads int           `json:"maxConcurrentDownloads"`
	RateLimit              float64       `json:"rateLimit"`
	RateBurst              int           `json:"rateBurst"`
	ImagesDir              string        `json:"imagesDir"`
	TempMaxAge             time.Duration `json:"tempMaxAge"`
	LogLevel               string        `json:"logLevel"`
}

// DefaultConfig returns a configuration with default values.
// DownloadDir is left empty and filled in by the config package.
func DefaultConfig() *Config {
	return &Config{
		Host:                   "0.0.0.0",
		Port:                   5000,
		DownloadDir:            "",
		MaxContentLength:       5000 * 1024 * 1024,
		CookiesFile:            "cookies.txt",
		UserAgent:              "",
		YtdlPath:               "",
		FFmpegPath:             "",
		SocketTimeout:          30 * time.Second,
		DownloadTimeout:        30 * time.Minute,
		MaxConcurrentDownloads: 2,
		RateLimit:              5,
		RateBurst:              10,
		ImagesDir:              "images",
		TempMaxAge:             time.Hour,
		LogLevel:               "info",
	}
}

// TempDir returns the directory holding in-flight downloads
func (c *Config) TempDir() string {
	return filepath.Join(c.DownloadDir, "temp")
}
