package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidfetch/internal/downloader"
	"vidfetch/internal/extractor"
	"vidfetch/internal/logging"
	"vidfetch/internal/storage"
	"vidfetch/pkg/models"
)

// stubClient is a scripted extraction client
type stubClient struct {
	info     *extractor.Info
	err      error
	content  []byte
	noFile   bool
	block    chan struct{}
	started  chan struct{}
	calls    int
	lastOpts extractor.Options
}

func (c *stubClient) Probe(ctx context.Context, url string, opts extractor.Options) (*extractor.Info, error) {
	c.calls++
	c.lastOpts = opts
	if c.err != nil {
		return nil, c.err
	}
	return c.info, nil
}

func (c *stubClient) Download(ctx context.Context, url string, opts extractor.Options) (*extractor.Info, error) {
	c.calls++
	c.lastOpts = opts
	if c.block != nil {
		if c.started != nil {
			close(c.started)
		}
		select {
		case <-c.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if c.err != nil {
		return nil, c.err
	}

	ext := "mp4"
	if opts.FinalExt() != "" {
		ext = strings.TrimPrefix(opts.FinalExt(), ".")
	}
	path := strings.ReplaceAll(opts.OutputTemplate, "%(title)s", "Clip")
	path = strings.ReplaceAll(path, "%(ext)s", ext)

	if !c.noFile {
		if err := os.WriteFile(path, c.content, 0644); err != nil {
			return nil, err
		}
	}

	return &extractor.Info{Title: "Clip", Filename: path}, nil
}

func newTestServer(t *testing.T, client extractor.Client) (*Server, *models.Config) {
	t.Helper()

	cfg := models.DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.DownloadDir = t.TempDir()
	cfg.ImagesDir = t.TempDir()
	cfg.CookiesFile = ""
	cfg.RateLimit = 0

	store, err := storage.NewManager(cfg.TempDir())
	require.NoError(t, err)

	logger := logging.Discard()
	dl := downloader.NewDownloader(cfg, client, store, logger)

	return NewServer(cfg, dl, store, logger), cfg
}

func TestNewServer(t *testing.T) {
	server, cfg := newTestServer(t, &stubClient{})
	require.NotNil(t, server)
	assert.Equal(t, cfg, server.config)
	assert.Nil(t, server.limiter)
}

func TestServerStart(t *testing.T) {
	server, cfg := newTestServer(t, &stubClient{})
	cfg.Port = 0 // Use random available port

	err := server.Start()
	require.NoError(t, err)
	assert.True(t, server.IsRunning())
	assert.True(t, server.downloader.IsRunning())

	resp, err := http.Get("http://" + server.GetActualAddr() + "/ping")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	err = server.Stop()
	require.NoError(t, err)
	assert.False(t, server.IsRunning())
	assert.False(t, server.downloader.IsRunning())
}

func TestServerStartAlreadyRunning(t *testing.T) {
	server, cfg := newTestServer(t, &stubClient{})
	cfg.Port = 0

	err := server.Start()
	require.NoError(t, err)
	defer server.Stop()

	err = server.Start()
	assert.ErrorIs(t, err, ErrServerAlreadyRunning)
}

func TestServerStopNotRunning(t *testing.T) {
	server, _ := newTestServer(t, &stubClient{})

	err := server.Stop()
	assert.ErrorIs(t, err, ErrServerNotRunning)
}

func TestGetAddr(t *testing.T) {
	server, cfg := newTestServer(t, &stubClient{})
	cfg.Port = 8080

	assert.Equal(t, "127.0.0.1:8080", server.GetAddr())
	assert.Equal(t, "127.0.0.1:8080", server.GetActualAddr())
}

func TestServerGracefulShutdown(t *testing.T) {
	server, cfg := newTestServer(t, &stubClient{})
	cfg.Port = 0

	err := server.Start()
	require.NoError(t, err)

	done := make(chan bool)
	go func() {
		err := server.Stop()
		assert.NoError(t, err)
		done <- true
	}()

	select {
	case <-done:
		// Success
	case <-time.After(5 * time.Second):
		t.Fatal("Server shutdown timeout")
	}
}

func TestIndexPage(t *testing.T) {
	server, _ := newTestServer(t, &stubClient{})

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "/api/search-resolutions")
}

func TestPingEndpoint(t *testing.T) {
	server, _ := newTestServer(t, &stubClient{})

	req := httptest.NewRequest("GET", "/ping", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestImageServing(t *testing.T) {
	server, cfg := newTestServer(t, &stubClient{})

	content := []byte("\x89PNG fake image")
	require.NoError(t, os.WriteFile(filepath.Join(cfg.ImagesDir, "logo.png"), content, 0644))
	require.NoError(t, os.Mkdir(filepath.Join(cfg.ImagesDir, "icons"), 0755))

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{name: "existing file", path: "/images/logo.png", wantStatus: http.StatusOK},
		{name: "missing file", path: "/images/nope.png", wantStatus: http.StatusNotFound},
		{name: "directory", path: "/images/icons", wantStatus: http.StatusNotFound},
		{name: "traversal", path: "/images/../../etc/passwd", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.path, nil)
			w := httptest.NewRecorder()
			server.router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, content, w.Body.Bytes())
			}
		})
	}
}

func TestNotFoundAndMethodNotAllowed(t *testing.T) {
	server, _ := newTestServer(t, &stubClient{})

	req := httptest.NewRequest("GET", "/does-not-exist", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"Page not found"}`, w.Body.String())

	req = httptest.NewRequest("GET", "/api/download", nil)
	w = httptest.NewRecorder()
	server.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.JSONEq(t, `{"error":"Method not allowed"}`, w.Body.String())
}

func TestRecovererWritesJSON(t *testing.T) {
	server, _ := newTestServer(t, &stubClient{})
	server.router.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
		panic("kaboom")
	})

	req := httptest.NewRequest("GET", "/boom", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body, _ := io.ReadAll(w.Body)
	assert.JSONEq(t, `{"error":"Server error occurred"}`, string(body))
	assert.NotContains(t, string(body), "kaboom")
}

func TestRateLimit(t *testing.T) {
	server, cfg := newTestServer(t, &stubClient{info: &extractor.Info{}})
	cfg.RateLimit = 1
	cfg.RateBurst = 2
	server = NewServer(cfg, server.downloader, server.store, server.logger)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("POST", "/api/search-resolutions", strings.NewReader(`{"url":"https://example.com/v"}`))
		w := httptest.NewRecorder()
		server.router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// another client has its own bucket
	req := httptest.NewRequest("POST", "/api/search-resolutions", strings.NewReader(`{"url":"https://example.com/v"}`))
	req.RemoteAddr = "198.51.100.7:40000"
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// forwarded addresses are keyed after RealIP rewrites RemoteAddr
	req = httptest.NewRequest("POST", "/api/search-resolutions", strings.NewReader(`{"url":"https://example.com/v"}`))
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	w = httptest.NewRecorder()
	server.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// ping is outside the limited group
	req = httptest.NewRequest("GET", "/ping", nil)
	w = httptest.NewRecorder()
	server.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
