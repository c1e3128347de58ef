// Package extractor drives yt-dlp through github.com/lrstanley/go-ytdlp.
// Options are assembled from a typed struct instead of an open-ended map so a
// malformed request fails before a process is started.
package extractor

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alessio/shellescape"
	"github.com/labstack/gommon/log"
	"github.com/lrstanley/go-ytdlp"
)

const progressInterval = 500 * time.Millisecond

var (
	ErrExtractionFailed = errors.New("extraction failed")
	ErrNoInfo           = errors.New("no media information in yt-dlp output")
)

// Format is one stream offered by the site
type Format struct {
	ID     string
	Ext    string
	Height int
}

// Info is the metadata yt-dlp reports for a URL
type Info struct {
	Title     string
	Duration  float64
	Thumbnail string
	Formats   []Format
	// Filename is the final path on disk after a download, if reported
	Filename string
}

// Client resolves media URLs. Probe only reads metadata; Download also
// writes the selected format to opts.OutputTemplate.
type Client interface {
	Probe(ctx context.Context, url string, opts Options) (*Info, error)
	Download(ctx context.Context, url string, opts Options) (*Info, error)
}

// YtdlpClient implements Client with the yt-dlp executable
type YtdlpClient struct {
	executable string
	ffmpeg     string
	logger     *log.Logger
}

// NewYtdlpClient creates a client. Empty paths let go-ytdlp and yt-dlp
// resolve the binaries themselves.
func NewYtdlpClient(executable, ffmpeg string, logger *log.Logger) *YtdlpClient {
	return &YtdlpClient{
		executable: executable,
		ffmpeg:     ffmpeg,
		logger:     logger,
	}
}

// Probe fetches metadata without downloading anything
func (c *YtdlpClient) Probe(ctx context.Context, url string, opts Options) (*Info, error) {
	if err := opts.Validate(false); err != nil {
		return nil, err
	}

	cmd := c.command(opts).
		SkipDownload().
		PrintJSON()

	return c.run(ctx, cmd, url)
}

// Download fetches the selected format and runs the post-processors
func (c *YtdlpClient) Download(ctx context.Context, url string, opts Options) (*Info, error) {
	if err := opts.Validate(true); err != nil {
		return nil, err
	}

	cmd := c.command(opts).
		Format(opts.Format.String()).
		Output(opts.OutputTemplate).
		RestrictFilenames().
		NoSimulate().
		PrintJSON()

	for _, pp := range opts.PostProcessors {
		switch pp.Kind {
		case PostProcessorExtractAudio:
			cmd = cmd.ExtractAudio().AudioFormat(pp.Codec)
			if pp.Quality != "" {
				cmd = cmd.AudioQuality(pp.Quality)
			}
		}
	}

	if opts.Progress != nil {
		report := opts.Progress
		cmd = cmd.ProgressFunc(progressInterval, func(update ytdlp.ProgressUpdate) {
			p := Progress{
				Downloaded: update.DownloadedBytes,
				Total:      update.TotalBytes,
			}
			if update.Info != nil && update.Info.Title != nil {
				p.Title = *update.Info.Title
			}
			report(p)
		})
	}

	return c.run(ctx, cmd, url)
}

// command applies the settings shared by probes and downloads
func (c *YtdlpClient) command(opts Options) *ytdlp.Command {
	cmd := ytdlp.New().
		NoPlaylist().
		NoWarnings()

	if c.executable != "" {
		cmd = cmd.SetExecutable(c.executable)
	}
	if c.ffmpeg != "" {
		cmd = cmd.FFmpegLocation(c.ffmpeg)
	}
	if opts.Quiet {
		cmd = cmd.Quiet()
	}
	if opts.SocketTimeout > 0 {
		cmd = cmd.SocketTimeout(opts.SocketTimeout.Seconds())
	}
	if opts.CookiesFile != "" {
		cmd = cmd.Cookies(opts.CookiesFile)
	}
	if opts.UserAgent != "" {
		cmd = cmd.UserAgent(opts.UserAgent)
	}

	return cmd
}

func (c *YtdlpClient) run(ctx context.Context, cmd *ytdlp.Command, url string) (*Info, error) {
	res, err := cmd.Run(ctx, url)
	if res != nil && c.logger != nil {
		argv := append([]string{res.Executable}, res.Args...)
		c.logger.Debugf("yt-dlp exited with %d: %s", res.ExitCode, shellescape.QuoteCommand(argv))
	}

	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrExtractionFailed, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %s", ErrExtractionFailed, failureDetail(res, err))
	}

	return ParseInfo(res.Stdout)
}

// failureDetail picks the most useful line yt-dlp wrote on failure
func failureDetail(res *ytdlp.Result, err error) string {
	if res != nil {
		for _, line := range strings.Split(res.Stderr, "\n") {
			line = strings.TrimSpace(line)
			if strings.HasPrefix(line, "ERROR:") {
				return strings.TrimSpace(strings.TrimPrefix(line, "ERROR:"))
			}
		}
	}
	return err.Error()
}

type rawFormat struct {
	FormatID string   `json:"format_id"`
	Ext      string   `json:"ext"`
	Height   *float64 `json:"height"`
}

type rawDownload struct {
	Filepath string `json:"filepath"`
}

type rawInfo struct {
	Title              string        `json:"title"`
	Duration           *float64      `json:"duration"`
	Thumbnail          string        `json:"thumbnail"`
	Formats            []rawFormat   `json:"formats"`
	Height             *float64      `json:"height"`
	Filename           string        `json:"_filename"`
	RequestedDownloads []rawDownload `json:"requested_downloads"`
}

// ParseInfo reads the first JSON info object in yt-dlp output. Lines that
// are not JSON (progress, notices) are skipped.
func ParseInfo(output string) (*Info, error) {
	scanner := bufio.NewScanner(strings.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "{") {
			continue
		}

		var raw rawInfo
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			continue
		}

		return raw.toInfo(), nil
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read yt-dlp output: %w", err)
	}

	return nil, ErrNoInfo
}

func (r *rawInfo) toInfo() *Info {
	info := &Info{
		Title:     r.Title,
		Thumbnail: r.Thumbnail,
		Filename:  r.Filename,
		Formats:   make([]Format, 0, len(r.Formats)),
	}

	if r.Duration != nil {
		info.Duration = *r.Duration
	}

	// requested_downloads carries the path after post-processing
	for _, d := range r.RequestedDownloads {
		if d.Filepath != "" {
			info.Filename = d.Filepath
		}
	}

	for _, f := range r.Formats {
		format := Format{ID: f.FormatID, Ext: f.Ext}
		if f.Height != nil {
			format.Height = int(*f.Height)
		}
		info.Formats = append(info.Formats, format)
	}

	// single-format sites report the height at the top level only
	if len(info.Formats) == 0 && r.Height != nil {
		info.Formats = append(info.Formats, Format{Height: int(*r.Height)})
	}

	return info
}
