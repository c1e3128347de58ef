package downloader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/labstack/gommon/log"

	"vidfetch/internal/extractor"
	"vidfetch/internal/storage"
	"vidfetch/pkg/models"
)

const (
	// AudioCodec and AudioQuality configure the ffmpeg audio extract
	AudioCodec   = "mp3"
	AudioQuality = "192"

	timestampLayout = "20060102_150405"
	defaultTitle    = "Video"
)

// Result is a finished download waiting to be streamed
type Result struct {
	Path      string
	WorkDirID string
	Kind      models.DownloadKind
}

// Downloader resolves formats and downloads media through an extraction
// client. Downloads share a fixed number of slots.
type Downloader struct {
	mu      sync.RWMutex
	config  *models.Config
	client  extractor.Client
	store   *storage.Manager
	logger  *log.Logger
	slots   chan struct{}
	active  sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	now     func() time.Time
}

// NewDownloader creates a downloader with cfg.MaxConcurrentDownloads slots
func NewDownloader(config *models.Config, client extractor.Client, store *storage.Manager, logger *log.Logger) *Downloader {
	maxWorkers := config.MaxConcurrentDownloads
	if maxWorkers <= 0 {
		maxWorkers = 2
	}

	return &Downloader{
		config: config,
		client: client,
		store:  store,
		logger: logger,
		slots:  make(chan struct{}, maxWorkers),
		now:    time.Now,
	}
}

// Start allows downloads to run
func (d *Downloader) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return nil
	}

	d.ctx, d.cancel = context.WithCancel(context.Background())
	d.running = true

	return nil
}

// Stop cancels running downloads and waits for them to return
func (d *Downloader) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}

	d.cancel()
	d.running = false
	d.mu.Unlock()

	d.active.Wait()

	return nil
}

// IsRunning reports whether Start has been called without Stop
func (d *Downloader) IsRunning() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.running
}

// GetActiveDownloads returns the number of downloads holding a slot
func (d *Downloader) GetActiveDownloads() int {
	return len(d.slots)
}

// Resolutions lists the resolutions a URL is available in
func (d *Downloader) Resolutions(ctx context.Context, rawURL string) (*models.DiscoveryResult, error) {
	url, err := checkURL(rawURL, "URL is required")
	if err != nil {
		return nil, err
	}

	info, err := d.client.Probe(ctx, url, d.baseOptions())
	if err != nil {
		d.logger.Errorf("Search error for %s: %v", url, err)
		return nil, &ExtractionError{Err: err}
	}

	title := info.Title
	if title == "" {
		title = defaultTitle
	}

	labels := resolutionLabels(info.Formats)

	return &models.DiscoveryResult{
		Resolutions: labels,
		Title:       title,
		Duration:    info.Duration,
		Thumbnail:   info.Thumbnail,
		Count:       len(labels),
	}, nil
}

// Download validates the request, downloads the media into a fresh work
// directory and returns the finished file. The caller owns the file and
// must remove it through the storage manager.
func (d *Downloader) Download(ctx context.Context, req models.DownloadRequest) (*Result, error) {
	kind, err := models.ParseDownloadKind(req.Type)
	if err != nil {
		return nil, invalid("Invalid download type")
	}

	url, err := checkURL(req.URL, "URL required")
	if err != nil {
		return nil, err
	}

	opts := d.baseOptions()
	opts.Quiet = false

	switch kind {
	case models.DownloadKindVideo:
		height, err := ParseResolution(req.Resolution)
		if err != nil {
			return nil, invalid("Resolution required for video")
		}
		opts.Format = extractor.HeightExactly(height)
	case models.DownloadKindAudio:
		opts.Format = extractor.BestAudio
		opts.PostProcessors = []extractor.PostProcessor{
			extractor.ExtractAudio(AudioCodec, AudioQuality),
		}
	}

	release, err := d.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	ctx, cancel := d.downloadContext(ctx)
	defer cancel()

	wd, err := d.store.Create()
	if err != nil {
		return nil, err
	}

	stamp := d.now().Format(timestampLayout)
	opts.OutputTemplate = filepath.Join(wd.Path, "%(title)s_"+stamp+".%(ext)s")
	opts.Progress = d.progressLogger(url)

	d.logger.Infof("Downloading %s (%s, format %s)", url, kind, opts.Format)

	info, err := d.client.Download(ctx, url, opts)
	if err != nil {
		d.discard(wd.ID)
		d.logger.Errorf("Download error for %s: %v", url, err)
		return nil, &DownloadError{Err: err}
	}

	path, err := d.resolveOutput(info, wd, opts.FinalExt())
	if err != nil {
		d.discard(wd.ID)
		d.logger.Errorf("Download of %s left no file: %v", url, err)
		return nil, &DownloadError{Err: ErrFileNotFound, Missing: true}
	}

	d.logger.Infof("Download completed for %s: %s", url, filepath.Base(path))

	return &Result{
		Path:      path,
		WorkDirID: wd.ID,
		Kind:      kind,
	}, nil
}

// acquire waits for a free slot. The returned func gives it back.
func (d *Downloader) acquire(ctx context.Context) (func(), error) {
	d.mu.RLock()
	if !d.running {
		d.mu.RUnlock()
		return nil, ErrDownloaderStopped
	}
	d.active.Add(1)
	stopped := d.ctx.Done()
	d.mu.RUnlock()

	select {
	case d.slots <- struct{}{}:
		return func() {
			<-d.slots
			d.active.Done()
		}, nil
	case <-ctx.Done():
		d.active.Done()
		return nil, ctx.Err()
	case <-stopped:
		d.active.Done()
		return nil, ErrDownloaderStopped
	}
}

// downloadContext derives the context a single download runs under: it
// ends with the request, when the downloader stops, or at the deadline.
func (d *Downloader) downloadContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	d.mu.RLock()
	stop := context.AfterFunc(d.ctx, cancel)
	d.mu.RUnlock()

	if d.config.DownloadTimeout <= 0 {
		return ctx, func() {
			stop()
			cancel()
		}
	}

	ctx, cancelTimeout := context.WithTimeout(ctx, d.config.DownloadTimeout)
	return ctx, func() {
		stop()
		cancelTimeout()
		cancel()
	}
}

// baseOptions returns the options shared by probes and downloads
func (d *Downloader) baseOptions() extractor.Options {
	opts := extractor.Options{
		SocketTimeout: d.config.SocketTimeout,
		UserAgent:     d.config.UserAgent,
		Quiet:         true,
	}

	if d.config.CookiesFile != "" {
		if _, err := os.Stat(d.config.CookiesFile); err == nil {
			opts.CookiesFile = d.config.CookiesFile
		}
	}

	return opts
}

// resolveOutput finds the file a download produced. When a post-processor
// changed the extension, the reported name is remapped first.
func (d *Downloader) resolveOutput(info *extractor.Info, wd *models.WorkDir, finalExt string) (string, error) {
	if info != nil && info.Filename != "" {
		path := info.Filename
		if finalExt != "" && !strings.EqualFold(filepath.Ext(path), finalExt) {
			remapped := strings.TrimSuffix(path, filepath.Ext(path)) + finalExt
			if fileExists(remapped) {
				path = remapped
			}
		}
		if fileExists(path) {
			return path, nil
		}
		return "", fmt.Errorf("%w: %s", ErrFileNotFound, filepath.Base(path))
	}

	return d.store.Locate(wd.Path, finalExt)
}

func (d *Downloader) discard(workDirID string) {
	if err := d.store.Release(workDirID); err != nil {
		d.logger.Warnf("Failed to remove work directory %s: %v", workDirID, err)
	}
}

// progressLogger writes download progress to the log only
func (d *Downloader) progressLogger(url string) extractor.ProgressFunc {
	last := -1
	return func(p extractor.Progress) {
		percent := p.Percent()
		if percent < 0 || percent == last {
			return
		}
		last = percent
		d.logger.Debugf("Download progress for %s: %d%% (%d/%d)", url, percent, p.Downloaded, p.Total)
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
