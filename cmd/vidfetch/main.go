package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/labstack/gommon/log"

	"vidfetch/internal/api"
	"vidfetch/internal/cli"
	"vidfetch/internal/downloader"
	"vidfetch/internal/extractor"
	"vidfetch/internal/storage"
	"vidfetch/internal/updater"
	"vidfetch/internal/ytdl"
	"vidfetch/pkg/models"
)

const releaseCheckTimeout = 10 * time.Second

// Version is overridden at build time with -ldflags "-X main.Version=..."
var Version = "0.1.0"

func main() {
	app := cli.NewApp(Version, cli.Handlers{
		Serve: runServer,
		Check: runCheck,
	})

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServer(ctx context.Context, cfg *models.Config, logger *log.Logger) error {
	logger.Infof("Starting vidfetch %s", Version)

	// Locate external tools
	bins, err := ytdl.NewManager(cfg.YtdlPath, cfg.FFmpegPath).Resolve(ctx)
	switch {
	case errors.Is(err, ytdl.ErrFFmpegNotFound):
		logger.Warnf("%v; audio downloads will fail", err)
	case err != nil:
		return err
	}
	logger.Infof("Using yt-dlp %s at %s", bins.YtdlpVersion, bins.Ytdlp)

	// Prepare temp storage and clear leftovers from earlier runs
	store, err := storage.NewManager(cfg.TempDir())
	if err != nil {
		return err
	}
	if removed, err := store.Sweep(cfg.TempMaxAge); err != nil {
		logger.Warnf("Temp sweep failed: %v", err)
	} else if removed > 0 {
		logger.Infof("Removed %d stale work directories", removed)
	}

	client := extractor.NewYtdlpClient(bins.Ytdlp, bins.FFmpeg, logger)
	dl := downloader.NewDownloader(cfg, client, store, logger)
	server := api.NewServer(cfg, dl, store, logger)

	if err := server.Start(); err != nil {
		return err
	}
	logger.Infof("Downloads are stored under %s", cfg.DownloadDir)

	<-ctx.Done()
	logger.Info("Shutting down")

	return server.Stop()
}

func runCheck(ctx context.Context, cfg *models.Config, w io.Writer) error {
	bins, err := ytdl.NewManager(cfg.YtdlPath, cfg.FFmpegPath).Resolve(ctx)
	if bins != nil {
		fmt.Fprintf(w, "yt-dlp: %s (%s)\n", bins.Ytdlp, bins.YtdlpVersion)
		printReleaseStatus(ctx, w, bins.YtdlpVersion)
	}

	switch {
	case errors.Is(err, ytdl.ErrFFmpegNotFound):
		fmt.Fprintf(w, "ffmpeg: not found\n")
		return err
	case err != nil:
		return err
	}

	fmt.Fprintf(w, "ffmpeg: %s\n", bins.FFmpeg)
	return nil
}

// printReleaseStatus reports whether a newer yt-dlp has been published.
// Lookup failures are printed, not returned.
func printReleaseStatus(ctx context.Context, w io.Writer, current string) {
	ctx, cancel := context.WithTimeout(ctx, releaseCheckTimeout)
	defer cancel()

	status, err := updater.NewChecker(updater.DefaultRepo).Check(ctx, current)
	switch {
	case err != nil:
		fmt.Fprintf(w, "yt-dlp latest release: unknown (%v)\n", err)
	case status.Outdated:
		fmt.Fprintf(w, "yt-dlp latest release: %s, update recommended (%s)\n", status.Latest, status.URL)
	default:
		fmt.Fprintf(w, "yt-dlp latest release: %s, up to date\n", status.Latest)
	}
}
