// Package updater tells whether the yt-dlp in use lags behind the latest
// published release.
package updater

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultRepo is the GitHub repository yt-dlp is released from
	DefaultRepo = "yt-dlp/yt-dlp"

	defaultAPIBase = "https://api.github.com"
	checkTimeout   = 30 * time.Second
)

var ErrNoRelease = errors.New("release has no tag")

// HTTPClient interface for mocking
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Checker looks up the latest release of a GitHub repository
type Checker struct {
	repo       string
	apiBase    string
	httpClient HTTPClient
}

// GitHubRelease represents a GitHub release
type GitHubRelease struct {
	TagName     string    `json:"tag_name"`
	Name        string    `json:"name"`
	HTMLURL     string    `json:"html_url"`
	PublishedAt time.Time `json:"published_at"`
}

// Status compares an installed version with the latest release
type Status struct {
	Current  string
	Latest   string
	URL      string
	Outdated bool
}

// NewChecker creates a checker for repo against api.github.com
func NewChecker(repo string) *Checker {
	return &Checker{
		repo:       repo,
		apiBase:    defaultAPIBase,
		httpClient: &http.Client{Timeout: checkTimeout},
	}
}

// NewCheckerWithClient creates a checker with a custom API base and HTTP client
func NewCheckerWithClient(repo, apiBase string, client HTTPClient) *Checker {
	return &Checker{
		repo:       repo,
		apiBase:    strings.TrimRight(apiBase, "/"),
		httpClient: client,
	}
}

// LatestRelease fetches the newest published release
func (c *Checker) LatestRelease(ctx context.Context) (*GitHubRelease, error) {
	apiURL := fmt.Sprintf("%s/repos/%s/releases/latest", c.apiBase, c.repo)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to check for updates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GitHub API returned status %d", resp.StatusCode)
	}

	var release GitHubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, fmt.Errorf("failed to parse release info: %w", err)
	}
	if release.TagName == "" {
		return nil, ErrNoRelease
	}

	return &release, nil
}

// Check compares current with the latest release
func (c *Checker) Check(ctx context.Context, current string) (*Status, error) {
	release, err := c.LatestRelease(ctx)
	if err != nil {
		return nil, err
	}

	return &Status{
		Current:  current,
		Latest:   release.TagName,
		URL:      release.HTMLURL,
		Outdated: compareVersions(current, release.TagName),
	}, nil
}

// compareVersions returns true if latest > current. yt-dlp uses calendar
// versions (2024.08.06), nightlies add a fourth part.
func compareVersions(current, latest string) bool {
	currentParts := parseVersion(current)
	latestParts := parseVersion(latest)

	for i := range latestParts {
		if latestParts[i] > currentParts[i] {
			return true
		}
		if latestParts[i] < currentParts[i] {
			return false
		}
	}

	return false
}

// parseVersion parses a version string into up to four numeric parts
func parseVersion(version string) [4]int {
	version = strings.TrimSpace(version)
	version = strings.TrimPrefix(version, "v")

	// "stable@2024.08.06" and similar channel prefixes
	if i := strings.LastIndex(version, "@"); i >= 0 {
		version = version[i+1:]
	}

	parts := strings.Split(version, ".")
	result := [4]int{}

	for i := 0; i < len(parts) && i < len(result); i++ {
		if num, err := strconv.Atoi(parts[i]); err == nil {
			result[i] = num
		}
	}

	return result
}
