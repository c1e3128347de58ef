package ytdl

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/lrstanley/go-ytdlp"
)

var (
	ErrNotFound       = errors.New("yt-dlp executable not found")
	ErrFFmpegNotFound = errors.New("ffmpeg executable not found")
)

// Binaries are the resolved external tools
type Binaries struct {
	Ytdlp        string
	YtdlpVersion string
	// FFmpeg is empty when ffmpeg could not be found; audio extraction
	// will fail in that case but video downloads still work
	FFmpeg string
}

type installFunc func(ctx context.Context) (path, version string, err error)

// Manager locates yt-dlp and ffmpeg, installing yt-dlp through go-ytdlp
// when no path is configured
type Manager struct {
	ytdlpPath  string
	ffmpegPath string
	install    installFunc
	lookPath   func(file string) (string, error)
	version    func(ctx context.Context, path string) (string, error)
}

// NewManager creates a manager. Empty paths mean auto-detect.
func NewManager(ytdlpPath, ffmpegPath string) *Manager {
	return &Manager{
		ytdlpPath:  ytdlpPath,
		ffmpegPath: ffmpegPath,
		install:    installYtdlp,
		lookPath:   exec.LookPath,
		version:    executableVersion,
	}
}

// Resolve finds both binaries. A missing yt-dlp is an error; a missing
// ffmpeg is reported through ErrFFmpegNotFound alongside usable Binaries.
func (m *Manager) Resolve(ctx context.Context) (*Binaries, error) {
	bins := &Binaries{}

	if m.ytdlpPath != "" {
		path, err := m.lookPath(m.ytdlpPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, m.ytdlpPath)
		}
		bins.Ytdlp = path

		version, err := m.version(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("failed to run %s: %w", path, err)
		}
		bins.YtdlpVersion = version
	} else {
		path, version, err := m.install(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		bins.Ytdlp = path
		bins.YtdlpVersion = version
	}

	ffmpeg := m.ffmpegPath
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	path, err := m.lookPath(ffmpeg)
	if err != nil {
		return bins, fmt.Errorf("%w: %s", ErrFFmpegNotFound, ffmpeg)
	}
	bins.FFmpeg = path

	return bins, nil
}

// installYtdlp uses a yt-dlp already on PATH or in the go-ytdlp cache,
// downloading it otherwise
func installYtdlp(ctx context.Context) (string, string, error) {
	res, err := ytdlp.Install(ctx, &ytdlp.InstallOptions{
		AllowVersionMismatch: true,
	})
	if err != nil {
		return "", "", err
	}
	return res.Executable, res.Version, nil
}

func executableVersion(ctx context.Context, path string) (string, error) {
	out, err := exec.CommandContext(ctx, path, "--version").Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
