package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dukerupert/mathom/internal/backup"
	"github.com/dukerupert/mathom/internal/handler"
	"github.com/dukerupert/mathom/internal/logging"
	"github.com/dukerupert/mathom/internal/middleware"
	"github.com/dukerupert/mathom/internal/model"
	"github.com/dukerupert/mathom/internal/objectstore"
	"github.com/dukerupert/mathom/internal/store"
	ws "github.com/dukerupert/mathom/internal/websocket"
)

type Server struct {
	db        *sql.DB
	hub       *ws.Hub
	backupH   *handler.BackupHandler
	manager   *backup.Manager
	scheduler *backup.Scheduler
	logger    *slog.Logger
}

func New(db *sql.DB, backupCfg backup.Config, s3Cfg objectstore.Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logging.Component(logger, "websocket"))

	backupStore := store.NewBackupStore(db)
	remote := remoteStore(objectstore.New(s3Cfg))

	backupLogger := logging.Component(logger, "backup")
	manager := backup.NewManager(backupCfg, backupStore, remote, nil, func(b model.Backup) {
		hub.Broadcast(ws.Message{
			Type:   "backup_" + string(b.Status),
			Entity: "backup",
			Action: string(b.Status),
			ID:     b.ID,
			Extra: map[string]any{
				"database": b.Database,
				"error":    b.ErrorMessage,
			},
		})
	}, backupLogger)

	reporter := backup.NewHealthReporter(backupStore)
	scheduler := backup.NewScheduler(manager, reporter, logging.Component(logger, "scheduler"))

	return &Server{
		db:        db,
		hub:       hub,
		backupH:   handler.NewBackupHandler(manager, reporter, logging.Component(logger, "backup_handler")),
		manager:   manager,
		scheduler: scheduler,
		logger:    logger,
	}
}

// remoteStore converts a possibly-nil *objectstore.Client into the
// interface the manager takes. A plain assignment would produce a non-nil
// interface wrapping a nil pointer.
func remoteStore(c *objectstore.Client) backup.RemoteStore {
	if c == nil {
		return nil
	}
	return c
}

// Scheduler returns the cron scheduler so main can start and stop it.
func (s *Server) Scheduler() *backup.Scheduler {
	return s.scheduler
}

// Manager returns the backup orchestrator.
func (s *Server) Manager() *backup.Manager {
	return s.manager
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/backups", s.backupH.Create)
	mux.HandleFunc("GET /api/backups", s.backupH.List)
	mux.HandleFunc("POST /api/backups/restore", s.backupH.Restore)
	mux.HandleFunc("GET /api/backups/health", s.backupH.Health)
	mux.HandleFunc("DELETE /api/backups/{id}", s.backupH.Delete)

	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, logging.Component(s.logger, "websocket")))
	mux.HandleFunc("GET /health", s.healthHandler)

	return middleware.RequestLogger(logging.Component(s.logger, "http"))(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
