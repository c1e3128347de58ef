package extractor

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNoFormat          = errors.New("format selector is empty")
	ErrNoOutputTemplate  = errors.New("output template is required for downloads")
	ErrBadOutputTemplate = errors.New("output template must contain %(ext)s")
	ErrBadPostProcessor  = errors.New("invalid post-processor")
	ErrNegativeTimeout   = errors.New("socket timeout must not be negative")
	ErrUnsupportedCodec  = errors.New("unsupported audio codec")
)

// FormatSelector is a yt-dlp format expression. Build it with the
// constructors below rather than by hand.
type FormatSelector string

// BestAudio picks the best audio-only stream, or the best combined stream
// when the site offers no separate audio.
const BestAudio FormatSelector = "bestaudio/best"

// HeightExactly picks the best stream whose height equals h
func HeightExactly(h int) FormatSelector {
	return FormatSelector(fmt.Sprintf("best[height=%d]", h))
}

func (f FormatSelector) String() string {
	return string(f)
}

// PostProcessorKind identifies a yt-dlp post-processing step
type PostProcessorKind int

const (
	PostProcessorExtractAudio PostProcessorKind = iota + 1
)

func (k PostProcessorKind) String() string {
	switch k {
	case PostProcessorExtractAudio:
		return "FFmpegExtractAudio"
	default:
		return "unknown"
	}
}

// PostProcessor describes a step yt-dlp runs through ffmpeg after downloading
type PostProcessor struct {
	Kind    PostProcessorKind
	Codec   string
	Quality string
}

// ExtractAudio converts the downloaded stream to an audio-only file
func ExtractAudio(codec, quality string) PostProcessor {
	return PostProcessor{
		Kind:    PostProcessorExtractAudio,
		Codec:   codec,
		Quality: quality,
	}
}

// Ext returns the extension of files produced by the step, with the dot
func (p PostProcessor) Ext() string {
	if p.Kind == PostProcessorExtractAudio && p.Codec != "" {
		return "." + p.Codec
	}
	return ""
}

var audioCodecs = map[string]bool{
	"aac": true, "alac": true, "flac": true, "m4a": true,
	"mp3": true, "opus": true, "vorbis": true, "wav": true,
}

func (p PostProcessor) validate() error {
	switch p.Kind {
	case PostProcessorExtractAudio:
		if !audioCodecs[p.Codec] {
			return fmt.Errorf("%w: %q", ErrUnsupportedCodec, p.Codec)
		}
		return nil
	default:
		return fmt.Errorf("%w: kind %d", ErrBadPostProcessor, p.Kind)
	}
}

// ProgressFunc receives download progress. It is called from the
// goroutine reading yt-dlp output.
type ProgressFunc func(Progress)

// Progress is a snapshot of a running download
type Progress struct {
	Title      string
	Downloaded int
	Total      int
}

// Percent returns the rounded completion percentage, or -1 if unknown
func (p Progress) Percent() int {
	if p.Total <= 0 {
		return -1
	}
	return int(float64(p.Downloaded)/float64(p.Total)*100 + 0.5)
}

// Options configures one extraction or download
type Options struct {
	Format         FormatSelector
	OutputTemplate string
	UserAgent      string
	CookiesFile    string
	PostProcessors []PostProcessor
	SocketTimeout  time.Duration
	Quiet          bool
	Progress       ProgressFunc
}

// Validate checks the options. Downloads need a format and an output
// template; probes need neither.
func (o *Options) Validate(download bool) error {
	if o.SocketTimeout < 0 {
		return ErrNegativeTimeout
	}

	for _, pp := range o.PostProcessors {
		if err := pp.validate(); err != nil {
			return err
		}
	}

	if !download {
		return nil
	}

	if strings.TrimSpace(string(o.Format)) == "" {
		return ErrNoFormat
	}
	if o.OutputTemplate == "" {
		return ErrNoOutputTemplate
	}
	if !strings.Contains(o.OutputTemplate, "%(ext)s") {
		return ErrBadOutputTemplate
	}

	return nil
}

// FinalExt returns the extension the last post-processor produces, or ""
// when the downloaded file keeps its own extension
func (o *Options) FinalExt() string {
	ext := ""
	for _, pp := range o.PostProcessors {
		if e := pp.Ext(); e != "" {
			ext = e
		}
	}
	return ext
}
