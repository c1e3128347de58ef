// Package cli defines the vidfetch command line with urfave/cli.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/gommon/log"
	"github.com/urfave/cli/v2"

	"vidfetch/internal/config"
	"vidfetch/internal/logging"
	"vidfetch/pkg/models"
)

const appName = "vidfetch"

var ErrNoHandler = errors.New("command has no handler")

// ServeFunc runs the server until ctx is cancelled
type ServeFunc func(ctx context.Context, cfg *models.Config, logger *log.Logger) error

// CheckFunc reports on the external tools, writing to w
type CheckFunc func(ctx context.Context, cfg *models.Config, w io.Writer) error

// Handlers are the actions behind the commands
type Handlers struct {
	Serve ServeFunc
	Check CheckFunc
}

// NewApp builds the command line application
func NewApp(version string, h Handlers) *cli.App {
	return &cli.App{
		Name:    appName,
		Usage:   "download videos and audio through yt-dlp over HTTP",
		Version: version,
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "start the HTTP server",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "host", Usage: "listen address (overrides VIDFETCH_HOST)"},
					&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "listen port (overrides VIDFETCH_PORT)"},
					&cli.StringFlag{Name: "download-dir", Usage: "download `DIR` (overrides VIDFETCH_DOWNLOAD_DIR)"},
					envFileFlag(),
				},
				Action: func(c *cli.Context) error {
					if h.Serve == nil {
						return ErrNoHandler
					}

					cfg, err := loadConfig(c)
					if err != nil {
						return err
					}

					logger, err := logging.New(appName, cfg.LogLevel, c.App.ErrWriter)
					if err != nil {
						return err
					}

					ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
					defer stop()

					return h.Serve(ctx, cfg, logger)
				},
			},
			{
				Name:  "check",
				Usage: "locate yt-dlp and ffmpeg and print their versions",
				Flags: []cli.Flag{envFileFlag()},
				Action: func(c *cli.Context) error {
					if h.Check == nil {
						return ErrNoHandler
					}

					cfg, err := loadConfig(c)
					if err != nil {
						return err
					}

					return h.Check(c.Context, cfg, c.App.Writer)
				},
			},
			{
				Name:  "version",
				Usage: "print version information",
				Action: func(c *cli.Context) error {
					fmt.Fprintf(c.App.Writer, "%s version %s\n", appName, version)
					return nil
				},
			},
		},
	}
}

func envFileFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "env-file",
		Usage: "load variables from `FILE` before reading the environment (default: .env if present)",
	}
}

// loadConfig reads the environment and applies command line overrides
func loadConfig(c *cli.Context) (*models.Config, error) {
	var files []string
	if f := c.String("env-file"); f != "" {
		files = append(files, f)
	}

	cfg, err := config.Load(files...)
	if err != nil {
		return nil, err
	}

	if c.IsSet("host") {
		cfg.Host = c.String("host")
	}
	if c.IsSet("port") {
		cfg.Port = c.Int("port")
	}
	if c.IsSet("download-dir") {
		cfg.DownloadDir = c.String("download-dir")
	}

	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
