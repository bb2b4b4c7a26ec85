package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/torrnarr/internal/models"
)

// StatusHandler handles status requests
type StatusHandler struct {
	db     *models.Database
	logger *logrus.Logger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(db *models.Database, logger *logrus.Logger) *StatusHandler {
	return &StatusHandler{
		db:     db,
		logger: logger,
	}
}

// StatusResponse represents the status response
type StatusResponse struct {
	TotalDownloads int            `json:"total_downloads"`
	ByState        map[string]int `json:"by_state"`
	TotalSize      string         `json:"total_size"`
}

// ServeHTTP handles the status endpoint
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	records, err := h.db.GetAllDownloads()
	if err != nil {
		h.logger.WithError(err).Error("Failed to get downloads")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	response := StatusResponse{
		TotalDownloads: len(records),
		ByState:        make(map[string]int),
	}

	var totalSize int64
	for _, record := range records {
		response.ByState[string(record.DownloadState)]++
		totalSize += record.Size
	}
	response.TotalSize = humanize.Bytes(uint64(totalSize))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
