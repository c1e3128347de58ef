package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"vidfetch/pkg/models"
)

var (
	ErrWorkDirNotFound = errors.New("work directory not found")
	ErrNoOutputFile    = errors.New("no output file in work directory")
	ErrOutsideRoot     = errors.New("path is outside the temp directory")
)

// partial download leftovers written by yt-dlp
var partialSuffixes = []string{".part", ".ytdl", ".temp"}

// Manager owns the temp directory. Every download gets its own work
// directory so concurrent requests never share a file.
type Manager struct {
	mu     sync.RWMutex
	root   string
	active map[string]*models.WorkDir
}

// NewManager creates the temp directory if needed
func NewManager(root string) (*Manager, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	return &Manager{
		root:   root,
		active: make(map[string]*models.WorkDir),
	}, nil
}

// Root returns the temp directory path
func (m *Manager) Root() string {
	return m.root
}

// Create allocates a fresh work directory
func (m *Manager) Create() (*models.WorkDir, error) {
	id := uuid.NewString()
	path := filepath.Join(m.root, id)

	if err := os.Mkdir(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}

	wd := &models.WorkDir{
		ID:      id,
		Path:    path,
		Created: time.Now(),
	}

	m.mu.Lock()
	m.active[id] = wd
	m.mu.Unlock()

	return wd, nil
}

// Release removes a work directory and everything in it
func (m *Manager) Release(id string) error {
	m.mu.Lock()
	wd, ok := m.active[id]
	delete(m.active, id)
	m.mu.Unlock()

	if !ok {
		return ErrWorkDirNotFound
	}

	if err := os.RemoveAll(wd.Path); err != nil {
		return fmt.Errorf("failed to remove work directory: %w", err)
	}

	return nil
}

// RemoveFile deletes a downloaded file. If the file sits in a tracked work
// directory, the directory is released as well.
func (m *Manager) RemoveFile(path string) error {
	rel, err := filepath.Rel(m.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return ErrOutsideRoot
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	id := strings.SplitN(filepath.ToSlash(rel), "/", 2)[0]

	m.mu.RLock()
	_, tracked := m.active[id]
	m.mu.RUnlock()

	if tracked {
		return m.Release(id)
	}

	return nil
}

// Locate finds the finished output file in a work directory. Files with
// preferExt win, partial downloads are ignored.
func (m *Manager) Locate(dir, preferExt string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read work directory: %w", err)
	}

	candidates := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || isPartial(entry.Name()) {
			continue
		}
		candidates = append(candidates, entry.Name())
	}

	if len(candidates) == 0 {
		return "", ErrNoOutputFile
	}

	sort.Strings(candidates)

	if preferExt != "" {
		for _, name := range candidates {
			if strings.EqualFold(filepath.Ext(name), preferExt) {
				return filepath.Join(dir, name), nil
			}
		}
	}

	return filepath.Join(dir, candidates[0]), nil
}

// ActiveCount returns the number of work directories in use
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}

// Sweep removes untracked entries older than maxAge, e.g. leftovers from a
// process that was killed mid-download. It returns the number removed.
func (m *Manager) Sweep(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		return 0, fmt.Errorf("failed to read temp directory: %w", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0

	for _, entry := range entries {
		if _, ok := m.active[entry.Name()]; ok {
			continue
		}

		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}

		if err := os.RemoveAll(filepath.Join(m.root, entry.Name())); err != nil {
			continue
		}
		removed++
	}

	return removed, nil
}

func isPartial(name string) bool {
	lower := strings.ToLower(name)
	for _, suffix := range partialSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return strings.Contains(lower, ".part-frag")
}
