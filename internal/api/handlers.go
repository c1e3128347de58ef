package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"vidfetch/internal/web"
	"vidfetch/pkg/models"
)

// handleIndex serves the single page UI
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(web.Index)
}

// handlePing handles the liveness endpoint
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleImages serves files from the images directory. Directories are
// never listed.
func (s *Server) handleImages(w http.ResponseWriter, r *http.Request) {
	name := path.Clean("/" + chi.URLParam(r, "*"))
	full := filepath.Join(s.config.ImagesDir, filepath.FromSlash(name))

	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		s.handleNotFound(w, r)
		return
	}

	http.ServeFile(w, r, full)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, msgNotFound)
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, msgMethodNotAllowed)
}

// handleSearchResolutions handles POST /api/search-resolutions
func (s *Server) handleSearchResolutions(w http.ResponseWriter, r *http.Request) {
	var req models.SearchRequest
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.downloader.Resolutions(r.Context(), req.URL)
	if err != nil {
		status, msg := searchFailure(err)
		writeError(w, status, msg)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleDownload handles POST /api/download
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	var req models.DownloadRequest
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.downloader.Download(r.Context(), req)
	if err != nil && errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		// the client is gone, nobody reads a response
		s.logger.Infof("Download request for %s cancelled by client", req.URL)
		return
	}
	if err != nil {
		status, msg := downloadFailure(err)
		if status >= http.StatusInternalServerError {
			s.logger.Errorf("Download request failed: %v", err)
		}
		writeError(w, status, msg)
		return
	}

	s.streamFile(w, r, result.Path)
}

// decode reads a JSON body into dst, writing the error response itself
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, msgBodyTooLarge)
		return false
	}

	writeError(w, http.StatusBadRequest, msgInvalidBody)
	return false
}
