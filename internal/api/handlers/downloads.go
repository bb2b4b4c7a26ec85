package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/torrnarr/internal/controllers"
	"github.com/amaumene/torrnarr/internal/models"
)

// DownloadsHandler handles download collection requests
type DownloadsHandler struct {
	db      *models.Database
	manager *controllers.Manager
	logger  *logrus.Logger
}

// NewDownloadsHandler creates a new downloads handler
func NewDownloadsHandler(db *models.Database, manager *controllers.Manager, logger *logrus.Logger) *DownloadsHandler {
	return &DownloadsHandler{
		db:      db,
		manager: manager,
		logger:  logger,
	}
}

// AddRequest represents a download acquisition request
type AddRequest struct {
	Link     string `json:"link"`
	Mimetype string `json:"mimetype,omitempty"`
	Name     string `json:"name,omitempty"`
	Force    bool   `json:"force,omitempty"`
}

// DownloadResponse represents one download record with its file rows
type DownloadResponse struct {
	*models.DownloadRecord
	Files []*models.TorrentFile `json:"files,omitempty"`
}

// ServeHTTP handles the downloads collection endpoint
func (h *DownloadsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleGet(w, r)
	case http.MethodPost:
		h.handleAdd(w, r)
	case http.MethodDelete:
		h.handleDelete(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *DownloadsHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	link := r.URL.Query().Get("link")
	requestID := r.URL.Query().Get("request_id")
	if link != "" || requestID != "" {
		var (
			record *models.DownloadRecord
			err    error
		)
		if link != "" {
			record, err = h.db.GetDownload(link)
		} else {
			record, err = h.db.GetDownloadByRequestID(requestID)
		}
		if err != nil {
			h.logger.WithError(err).Error("Failed to get download")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		if record == nil {
			http.Error(w, "Download not found", http.StatusNotFound)
			return
		}

		files, err := h.db.GetTorrentFiles(record.Link)
		if err != nil {
			h.logger.WithError(err).Error("Failed to get torrent files")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(DownloadResponse{DownloadRecord: record, Files: files})
		return
	}

	var (
		records []*models.DownloadRecord
		err     error
	)
	if state := r.URL.Query().Get("state"); state != "" {
		records, err = h.db.GetDownloadsByState(models.DownloadState(state))
	} else {
		records, err = h.db.GetAllDownloads()
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to list downloads")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(records)
}

func (h *DownloadsHandler) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req AddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WithError(err).Error("Failed to decode add request")
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return
	}
	if req.Link == "" {
		http.Error(w, "Missing link", http.StatusBadRequest)
		return
	}

	record, err := h.manager.Add(r.Context(), req.Link, req.Mimetype, req.Name, req.Force)
	if err != nil {
		if errors.Is(err, controllers.ErrUnsupportedLink) {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		h.logger.WithError(err).Error("Failed to add download")
		http.Error(w, "Failed to add download", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(record)
}

func (h *DownloadsHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	link := r.URL.Query().Get("link")
	if link == "" {
		http.Error(w, "Missing link", http.StatusBadRequest)
		return
	}
	deleteFiles := r.URL.Query().Get("delete_files") == "true"

	if err := h.manager.Remove(link, deleteFiles); err != nil {
		h.logger.WithError(err).Error("Failed to remove download")
		http.Error(w, "Failed to remove download", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "removed"})
}

// CommandHandler handles pause and resume commands for one download
type CommandHandler struct {
	manager *controllers.Manager
	resume  bool
	logger  *logrus.Logger
}

// NewPauseHandler creates a handler that pauses downloads
func NewPauseHandler(manager *controllers.Manager, logger *logrus.Logger) *CommandHandler {
	return &CommandHandler{manager: manager, logger: logger}
}

// NewResumeHandler creates a handler that resumes downloads
func NewResumeHandler(manager *controllers.Manager, logger *logrus.Logger) *CommandHandler {
	return &CommandHandler{manager: manager, resume: true, logger: logger}
}

// ServeHTTP handles a pause or resume command
func (h *CommandHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	link := r.URL.Query().Get("link")
	if link == "" {
		http.Error(w, "Missing link", http.StatusBadRequest)
		return
	}

	var err error
	action := "paused"
	if h.resume {
		action = "resumed"
		err = h.manager.Resume(r.Context(), link)
	} else {
		err = h.manager.Pause(link)
	}
	if err != nil {
		h.logger.WithError(err).WithField("link", link).Error("Download command failed")
		http.Error(w, "Command failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": action})
}
