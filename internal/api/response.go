package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"vidfetch/internal/downloader"
)

const (
	maxErrorDetail = 100

	msgNotFound         = "Page not found"
	msgMethodNotAllowed = "Method not allowed"
	msgServerError      = "Server error occurred"
	msgUnexpected       = "An unexpected error occurred"
	msgInvalidBody      = "Invalid request body"
	msgBodyTooLarge     = "Request body too large"
	msgFileMissing      = "Download file not found after download"
	msgSlotTimeout      = "Download timed out waiting for a free slot"
)

// errorResponse is the envelope for every failure
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// truncate cuts a message to n runes
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// searchFailure maps a resolution lookup error onto a status and message
func searchFailure(err error) (int, string) {
	var verr *downloader.ValidationError
	var eerr *downloader.ExtractionError

	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, verr.Message
	case errors.As(err, &eerr):
		return http.StatusBadRequest, "Failed to fetch video info: " + truncate(eerr.Err.Error(), maxErrorDetail)
	default:
		return http.StatusInternalServerError, msgUnexpected
	}
}

// downloadFailure maps a download error onto a status and message
func downloadFailure(err error) (int, string) {
	var verr *downloader.ValidationError
	var derr *downloader.DownloadError

	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, verr.Message
	case errors.As(err, &derr) && derr.Missing:
		return http.StatusInternalServerError, msgFileMissing
	case errors.As(err, &derr):
		return http.StatusBadRequest, "Download failed: " + truncate(derr.Err.Error(), maxErrorDetail)
	case errors.Is(err, downloader.ErrDownloaderStopped):
		return http.StatusServiceUnavailable, "Server is shutting down"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, msgSlotTimeout
	default:
		return http.StatusInternalServerError, "Download error: " + truncate(err.Error(), maxErrorDetail)
	}
}
