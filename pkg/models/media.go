package models

import (
	"fmt"
	"strings"
	"time"
)

// DownloadKind selects between a video download and an audio extract
type DownloadKind int

const (
	DownloadKindVideo DownloadKind = iota
	DownloadKindAudio
)

func (k DownloadKind) String() string {
	switch k {
	case DownloadKindVideo:
		return "Video"
	case DownloadKindAudio:
		return "Audio"
	default:
		return "unknown"
	}
}

// ParseDownloadKind parses the "type" field of a download request.
// An empty value means Video.
func ParseDownloadKind(s string) (DownloadKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "video":
		return DownloadKindVideo, nil
	case "audio":
		return DownloadKindAudio, nil
	default:
		return 0, fmt.Errorf("unknown download type %q", s)
	}
}

// DownloadRequest is the body of POST /api/download
type DownloadRequest struct {
	URL        string `json:"url"`
	Type       string `json:"type"`
	Resolution string `json:"resolution"`
}

// SearchRequest is the body of POST /api/search-resolutions
type SearchRequest struct {
	URL string `json:"url"`
}

// DiscoveryResult describes the resolutions offered for a URL
type DiscoveryResult struct {
	Resolutions []string `json:"resolutions"`
	Title       string   `json:"title"`
	Duration    float64  `json:"duration"`
	Thumbnail   string   `json:"thumbnail"`
	Count       int      `json:"count"`
}

// WorkDir is a per-request directory holding one in-flight download
type WorkDir struct {
	ID      string    `json:"id"`
	Path    string    `json:"path"`
	Created time.Time `json:"created"`
}
