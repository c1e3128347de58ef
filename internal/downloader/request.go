package downloader

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/goware/urlx"

	"vidfetch/internal/extractor"
)

const resolutionSuffix = "p"

var errBadResolution = errors.New("resolution must look like 720p")

// checkURL trims a user supplied URL and checks that it parses as an
// http(s) URL. The trimmed input is returned as sent; yt-dlp gets the
// exact path and query the user asked for. emptyMsg is the validation
// message for a blank value.
func checkURL(raw, emptyMsg string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", invalid(emptyMsg)
	}

	u, err := urlx.Parse(raw)
	if err != nil || u.Host == "" {
		return "", invalid("Invalid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", invalid("Invalid URL")
	}

	return raw, nil
}

// ParseResolution turns a label such as "720p" into its height
func ParseResolution(label string) (int, error) {
	label = strings.TrimSpace(label)
	if !strings.HasSuffix(label, resolutionSuffix) {
		return 0, errBadResolution
	}

	height, err := strconv.Atoi(strings.TrimSuffix(label, resolutionSuffix))
	if err != nil || height <= 0 {
		return 0, errBadResolution
	}

	return height, nil
}

// ResolutionLabel formats a height as a resolution label
func ResolutionLabel(height int) string {
	return fmt.Sprintf("%d%s", height, resolutionSuffix)
}

// resolutionLabels returns the distinct positive heights, highest first
func resolutionLabels(formats []extractor.Format) []string {
	seen := make(map[int]bool)
	heights := make([]int, 0, len(formats))

	for _, f := range formats {
		if f.Height <= 0 || seen[f.Height] {
			continue
		}
		seen[f.Height] = true
		heights = append(heights, f.Height)
	}

	sort.Sort(sort.Reverse(sort.IntSlice(heights)))

	labels := make([]string, 0, len(heights))
	for _, h := range heights {
		labels = append(labels, ResolutionLabel(h))
	}

	return labels
}
