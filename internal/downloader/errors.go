package downloader

import (
	"errors"
	"fmt"
)

var (
	ErrDownloaderStopped = errors.New("downloader is stopped")
	ErrFileNotFound      = errors.New("download file not found after download")
)

// ValidationError reports bad input. It is raised before any external call.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(msg string) error {
	return &ValidationError{Message: msg}
}

// ExtractionError wraps a failed metadata lookup
type ExtractionError struct {
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("failed to fetch video info: %v", e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// DownloadError wraps a failed download. Missing is set when yt-dlp
// returned successfully but left no output file behind.
type DownloadError struct {
	Err     error
	Missing bool
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download failed: %v", e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}
