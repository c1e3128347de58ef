package api

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkSequence(t *testing.T) {
	tests := []struct {
		name      string
		size      int
		chunkSize int
		want      []int
	}{
		{name: "empty", size: 0, chunkSize: 4, want: nil},
		{name: "exact multiple", size: 8, chunkSize: 4, want: []int{4, 4}},
		{name: "short tail", size: 10, chunkSize: 4, want: []int{4, 4, 2}},
		{name: "smaller than chunk", size: 3, chunkSize: 4, want: []int{3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := bytes.Repeat([]byte("x"), tt.size)
			seq := newChunkSequence(bytes.NewReader(data), int64(tt.size), tt.chunkSize)

			var got []int
			for {
				chunk, err := seq.Next()
				if err == io.EOF {
					break
				}
				require.NoError(t, err)
				got = append(got, len(chunk))
			}

			assert.Equal(t, tt.want, got)

			// exhausted sequences stay exhausted
			_, err := seq.Next()
			assert.Equal(t, io.EOF, err)
		})
	}
}

func TestChunkSequenceStopsAtOpenSize(t *testing.T) {
	// bytes appended after open are not sent
	seq := newChunkSequence(bytes.NewReader([]byte("abcdefgh")), 5, 4)

	var out []byte
	for {
		chunk, err := seq.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		out = append(out, chunk...)
	}

	assert.Equal(t, "abcde", string(out))
}

func TestChunkSequenceTruncatedFile(t *testing.T) {
	seq := newChunkSequence(bytes.NewReader([]byte("abc")), 10, 4)

	_, err := seq.Next()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, err = seq.Next()
	assert.Equal(t, io.EOF, err)
}

func TestStreamFileLargerThanChunk(t *testing.T) {
	server, _ := newTestServer(t, &stubClient{})

	wd, err := server.store.Create()
	require.NoError(t, err)

	content := bytes.Repeat([]byte{0xAB}, streamChunkSize*2+17)
	path := filepath.Join(wd.Path, "Big_20260101_000000.mp4")
	require.NoError(t, os.WriteFile(path, content, 0644))

	req := httptest.NewRequest("POST", "/api/download", nil)
	w := httptest.NewRecorder()
	server.streamFile(w, req, path)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, len(content), w.Body.Len())
	assert.True(t, w.Flushed)

	_, err = os.Stat(wd.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestStreamFileNonASCIIName(t *testing.T) {
	server, _ := newTestServer(t, &stubClient{})

	wd, err := server.store.Create()
	require.NoError(t, err)

	path := filepath.Join(wd.Path, "café_20260101_000000.mp3")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	req := httptest.NewRequest("POST", "/api/download", nil)
	w := httptest.NewRecorder()
	server.streamFile(w, req, path)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "filename*=utf-8''caf%C3%A9_20260101_000000.mp3")
}

func TestStreamFileMissing(t *testing.T) {
	server, _ := newTestServer(t, &stubClient{})

	req := httptest.NewRequest("POST", "/api/download", nil)
	w := httptest.NewRecorder()
	server.streamFile(w, req, filepath.Join(server.store.Root(), "gone", "x.mp4"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Download file not found after download"}`, w.Body.String())
}

// brokenWriter accepts limit bytes, then fails every write
type brokenWriter struct {
	header  http.Header
	status  int
	written int
	limit   int
}

func (w *brokenWriter) Header() http.Header {
	if w.header == nil {
		w.header = make(http.Header)
	}
	return w.header
}

func (w *brokenWriter) WriteHeader(status int) {
	w.status = status
}

func (w *brokenWriter) Write(p []byte) (int, error) {
	if w.written+len(p) > w.limit {
		return 0, errors.New("connection reset by peer")
	}
	w.written += len(p)
	return len(p), nil
}

func TestStreamFileClientGoneRemovesFile(t *testing.T) {
	server, _ := newTestServer(t, &stubClient{})

	wd, err := server.store.Create()
	require.NoError(t, err)

	path := filepath.Join(wd.Path, "Clip_20260101_000000.mp4")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte{1}, streamChunkSize*3), 0644))

	w := &brokenWriter{limit: streamChunkSize}
	req := httptest.NewRequest("POST", "/api/download", nil)
	server.streamFile(w, req, path)

	assert.Equal(t, http.StatusOK, w.status)
	assert.Equal(t, streamChunkSize, w.written)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(wd.Path)
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, 0, server.store.ActiveCount())
}
