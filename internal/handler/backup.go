package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/mathom/internal/backup"
	"github.com/dukerupert/mathom/internal/model"
)

type BackupHandler struct {
	manager *backup.Manager
	health  *backup.HealthReporter
	logger  *slog.Logger
}

func NewBackupHandler(m *backup.Manager, h *backup.HealthReporter, logger *slog.Logger) *BackupHandler {
	return &BackupHandler{manager: m, health: h, logger: logger}
}

var validBackupTypes = map[model.BackupType]bool{
	model.BackupTypeFull:        true,
	model.BackupTypeIncremental: true,
}

type createBackupRequest struct {
	Type          model.BackupType `json:"type"`
	Database      string           `json:"database"`
	RetentionDays int              `json:"retention_days"`
	Compression   bool             `json:"compression"`
	CrossRegion   bool             `json:"cross_region"`
}

// Create runs a backup synchronously and returns the resulting record. A
// failed dump still answers 201: the attempt is recorded, with the failure
// detail in error_message.
func (h *BackupHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createBackupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Database = strings.TrimSpace(req.Database)
	if req.Database == "" {
		writeError(w, http.StatusBadRequest, "database is required")
		return
	}
	if req.Type == "" {
		req.Type = model.BackupTypeFull
	}
	if !validBackupTypes[req.Type] {
		writeError(w, http.StatusBadRequest, "type must be full or incremental")
		return
	}
	if req.RetentionDays < 0 {
		writeError(w, http.StatusBadRequest, "retention_days must be positive")
		return
	}

	b, err := h.manager.CreateBackup(r.Context(), backup.CreateRequest{
		Type:          req.Type,
		Database:      req.Database,
		RetentionDays: req.RetentionDays,
		Compress:      req.Compression,
		CrossRegion:   req.CrossRegion,
	})
	if err != nil {
		h.logger.Error("create backup", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create backup")
		return
	}

	writeJSON(w, http.StatusCreated, b)
}

type restoreBackupRequest struct {
	BackupID       string `json:"backup_id"`
	TargetDatabase string `json:"target_database"`
}

func (h *BackupHandler) Restore(w http.ResponseWriter, r *http.Request) {
	var req restoreBackupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.BackupID) == "" {
		writeError(w, http.StatusBadRequest, "backup_id is required")
		return
	}

	err := h.manager.RestoreBackup(r.Context(), req.BackupID, req.TargetDatabase)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"message": "restore completed"})
	case errors.Is(err, backup.ErrNotFound):
		writeError(w, http.StatusNotFound, "backup not found")
	case errors.Is(err, backup.ErrNotRestorable), errors.Is(err, backup.ErrChecksumMismatch):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("restore backup", "id", req.BackupID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *BackupHandler) List(w http.ResponseWriter, r *http.Request) {
	page, limit := parsePagination(r)

	backups, total, err := h.manager.List(limit, (page-1)*limit)
	if err != nil {
		h.logger.Error("list backups", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list backups")
		return
	}
	if backups == nil {
		backups = []model.Backup{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"backups": backups,
		"total":   total,
		"page":    page,
		"limit":   limit,
	})
}

func (h *BackupHandler) Health(w http.ResponseWriter, r *http.Request) {
	report, err := h.health.Report()
	if err != nil {
		h.logger.Error("backup health", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute backup health")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *BackupHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	err := h.manager.DeleteBackup(r.Context(), id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"message": "backup deleted"})
	case errors.Is(err, backup.ErrNotFound):
		writeError(w, http.StatusNotFound, "backup not found")
	default:
		h.logger.Error("delete backup", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete backup")
	}
}
