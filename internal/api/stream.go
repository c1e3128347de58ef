package api

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
)

// streamChunkSize is the size of each body write
const streamChunkSize = 1024 * 1024

// chunkSequence yields a file in fixed-size chunks. It stops after the
// number of bytes the file had when it was opened and cannot be restarted.
type chunkSequence struct {
	r         io.Reader
	remaining int64
	buf       []byte
	done      bool
}

func newChunkSequence(r io.Reader, size int64, chunkSize int) *chunkSequence {
	return &chunkSequence{
		r:         r,
		remaining: size,
		buf:       make([]byte, chunkSize),
	}
}

// Next returns the next chunk, or io.EOF once the sequence is exhausted.
// The returned slice is only valid until the following call.
func (c *chunkSequence) Next() ([]byte, error) {
	if c.done || c.remaining <= 0 {
		c.done = true
		return nil, io.EOF
	}

	want := int64(len(c.buf))
	if c.remaining < want {
		want = c.remaining
	}

	n, err := io.ReadFull(c.r, c.buf[:want])
	c.remaining -= int64(n)

	if err != nil {
		c.done = true
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}

	return c.buf[:n], nil
}

// streamFile sends a finished download as an attachment and deletes it
// afterwards, whether or not the client received everything
func (s *Server) streamFile(w http.ResponseWriter, r *http.Request, path string) {
	f, err := os.Open(path)
	if err != nil {
		s.removeDownload(path)
		writeError(w, http.StatusInternalServerError, msgFileMissing)
		return
	}
	defer func() {
		f.Close()
		s.removeDownload(path)
	}()

	info, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, msgFileMissing)
		return
	}
	size := info.Size()

	disposition := mime.FormatMediaType("attachment", map[string]string{
		"filename": filepath.Base(path),
	})
	if disposition == "" {
		disposition = "attachment"
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", disposition)
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	chunks := newChunkSequence(f, size, streamChunkSize)
	var sent int64

	for {
		chunk, err := chunks.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.logger.Warnf("Streaming %s stopped after %d bytes: %v", filepath.Base(path), sent, err)
			return
		}

		if _, err := w.Write(chunk); err != nil {
			s.logger.Warnf("Client went away while streaming %s: %v", filepath.Base(path), err)
			return
		}
		sent += int64(len(chunk))
		rc.Flush()
	}

	s.logger.Debugf("Streamed %s (%d bytes)", filepath.Base(path), sent)
}

// removeDownload deletes a streamed file and its work directory. Failures
// are logged only.
func (s *Server) removeDownload(path string) {
	if err := s.store.RemoveFile(path); err != nil {
		s.logger.Warnf("Failed to remove %s: %v", path, err)
	}
}
