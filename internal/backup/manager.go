package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/dukerupert/mathom/internal/checksum"
	"github.com/dukerupert/mathom/internal/model"
	"github.com/dukerupert/mathom/internal/pgcmd"
	"github.com/dukerupert/mathom/internal/store"
)

var (
	// ErrNotFound means no backup record exists for the given id.
	ErrNotFound = errors.New("backup not found")
	// ErrNotRestorable means the record exists but is not in a state a
	// restore may proceed from.
	ErrNotRestorable = errors.New("backup is not restorable")
	// ErrChecksumMismatch means the artifact on disk no longer matches the
	// checksum recorded when the backup completed.
	ErrChecksumMismatch = errors.New("backup checksum mismatch")
)

const defaultRetentionDays = 30

// RemoteStore moves a single artifact to or from remote object storage.
type RemoteStore interface {
	Upload(ctx context.Context, localPath string) (string, error)
	Download(ctx context.Context, key, destPath string) error
	Delete(ctx context.Context, key string) error
}

// StatusCallback is invoked with a record snapshot after every persisted
// state transition.
type StatusCallback func(model.Backup)

// Config holds orchestrator configuration.
type Config struct {
	Conn      pgcmd.ConnConfig
	BackupDir string
	// RetentionDays is the default stamped onto records created without an
	// explicit retention; cleanup itself honors each record's own value.
	RetentionDays int
}

// Manager orchestrates backup creation, restore, deletion, and retention
// cleanup. All state transitions are persisted through the record store.
type Manager struct {
	cfg      Config
	store    *store.BackupStore
	remote   RemoteStore // nil when replication is not configured
	runner   CommandRunner
	callback StatusCallback
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	dbLocks map[string]*sync.Mutex
}

// NewManager creates a backup orchestrator. A nil runner means real shell
// execution; a nil remote disables cross-region replication.
func NewManager(cfg Config, st *store.BackupStore, remote RemoteStore, runner CommandRunner, callback StatusCallback, logger *slog.Logger) *Manager {
	if cfg.BackupDir == "" {
		cfg.BackupDir = "./backups"
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = defaultRetentionDays
	}
	if runner == nil {
		runner = ShellRunner{}
	}
	return &Manager{
		cfg:      cfg,
		store:    st,
		remote:   remote,
		runner:   runner,
		callback: callback,
		logger:   logger,
		now:      time.Now,
		dbLocks:  make(map[string]*sync.Mutex),
	}
}

// CreateRequest describes one backup attempt.
type CreateRequest struct {
	Type          model.BackupType
	Database      string
	RetentionDays int
	Compress      bool
	CrossRegion   bool
}

// CreateBackup runs a full dump of the requested database. The returned
// record captures the outcome: a failed dump yields status=failed with
// error_message set rather than an error return, so every attempt stays
// auditable. The error return is reserved for failures to persist the
// record itself.
func (m *Manager) CreateBackup(ctx context.Context, req CreateRequest) (*model.Backup, error) {
	database := req.Database
	if database == "" {
		database = m.cfg.Conn.Database
	}
	if database == "" {
		return nil, fmt.Errorf("no database specified")
	}
	if req.Type == "" {
		req.Type = model.BackupTypeFull
	}
	retention := req.RetentionDays
	if retention <= 0 {
		retention = m.cfg.RetentionDays
	}

	b := &model.Backup{
		ID:            uuid.NewString(),
		Type:          req.Type,
		Database:      database,
		Status:        model.BackupStatusPending,
		Compressed:    req.Compress,
		CrossRegion:   req.CrossRegion,
		RetentionDays: retention,
	}

	// Persist before anything external runs, so a crash mid-dump still
	// leaves a trace.
	if err := m.store.Create(b); err != nil {
		return nil, err
	}
	m.notify(*b)

	artifactPath := filepath.Join(m.cfg.BackupDir, artifactName(database, req.Compress, time.Now().UTC()))

	unlock := m.lockDatabase(database)
	err := m.runDump(ctx, b, artifactPath)
	unlock()

	if err != nil {
		// Partial dump output is useless; remove it best-effort.
		os.Remove(artifactPath)
		b.Status = model.BackupStatusFailed
		b.ErrorMessage = err.Error()
		if serr := m.store.MarkFailed(b.ID, err.Error()); serr != nil {
			return nil, serr
		}
		m.notify(*b)
		m.logger.Error("backup failed", "id", b.ID, "database", database, "error", err)
		return b, nil
	}

	m.replicate(ctx, b, artifactPath)
	m.notify(*b)
	return b, nil
}

func (m *Manager) runDump(ctx context.Context, b *model.Backup, artifactPath string) error {
	if err := os.MkdirAll(m.cfg.BackupDir, 0o755); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}

	if err := m.store.MarkInProgress(b.ID); err != nil {
		return err
	}
	b.Status = model.BackupStatusInProgress
	m.notify(*b)

	conn := m.cfg.Conn
	conn.Database = b.Database
	cmd, env := pgcmd.DumpCommand(conn, artifactPath, b.Compressed)

	if err := m.runner.Run(ctx, cmd, env); err != nil {
		return fmt.Errorf("pg_dump: %w", err)
	}

	stat, err := os.Stat(artifactPath)
	if err != nil {
		return fmt.Errorf("stat artifact: %w", err)
	}
	sum, err := checksum.FileSHA256(artifactPath)
	if err != nil {
		return fmt.Errorf("checksum artifact: %w", err)
	}

	completedAt := time.Now().UTC()
	if err := m.store.MarkCompleted(b.ID, artifactPath, stat.Size(), sum, completedAt); err != nil {
		return err
	}
	b.Status = model.BackupStatusCompleted
	b.FilePath = artifactPath
	b.SizeBytes = stat.Size()
	b.Checksum = sum
	b.CompletedAt = &completedAt

	m.logger.Info("backup completed",
		"id", b.ID,
		"database", b.Database,
		"size", humanize.Bytes(uint64(stat.Size())),
		"path", artifactPath,
	)
	return nil
}

// replicate uploads the artifact when cross-region was requested. An upload
// failure leaves the backup completed: the local artifact is still valid and
// restorable, so only error_message records what went wrong.
func (m *Manager) replicate(ctx context.Context, b *model.Backup, artifactPath string) {
	if !b.CrossRegion {
		return
	}
	if m.remote == nil {
		m.logger.Info("cross-region replication skipped: not configured", "id", b.ID)
		return
	}

	key, err := m.remote.Upload(ctx, artifactPath)
	if err != nil {
		msg := "replication failed: " + err.Error()
		b.ErrorMessage = msg
		if serr := m.store.SetError(b.ID, msg); serr != nil {
			m.logger.Error("record replication error", "id", b.ID, "error", serr)
		}
		m.logger.Warn("replication failed, backup remains local-only", "id", b.ID, "error", err)
		return
	}

	b.S3Key = key
	if serr := m.store.SetRemoteKey(b.ID, key); serr != nil {
		m.logger.Error("record remote key", "id", b.ID, "error", serr)
		return
	}
	m.logger.Info("backup replicated", "id", b.ID, "key", key)
}

// RestoreBackup restores the named backup into targetDatabase, or into the
// originally recorded database if targetDatabase is empty. The artifact is
// fetched from remote storage when missing locally, and its checksum must
// match the stored trust anchor before psql runs.
func (m *Manager) RestoreBackup(ctx context.Context, backupID, targetDatabase string) error {
	b, err := m.store.GetByID(backupID)
	if err != nil {
		return err
	}
	if b == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, backupID)
	}
	if b.Status != model.BackupStatusCompleted {
		return fmt.Errorf("%w: status is %s", ErrNotRestorable, b.Status)
	}

	if _, err := os.Stat(b.FilePath); os.IsNotExist(err) {
		if b.S3Key != "" && m.remote != nil {
			m.logger.Info("artifact missing locally, fetching from remote", "id", b.ID, "key", b.S3Key)
			if err := m.remote.Download(ctx, b.S3Key, b.FilePath); err != nil {
				return fmt.Errorf("fetch artifact: %w", err)
			}
		}
	}
	if _, err := os.Stat(b.FilePath); err != nil {
		return fmt.Errorf("artifact %s is not available: %w", b.FilePath, err)
	}

	sum, err := checksum.FileSHA256(b.FilePath)
	if err != nil {
		return fmt.Errorf("verify artifact: %w", err)
	}
	if sum != b.Checksum {
		return fmt.Errorf("%w: artifact %s has checksum %s, expected %s",
			ErrChecksumMismatch, b.FilePath, sum, b.Checksum)
	}

	target := targetDatabase
	if target == "" {
		target = b.Database
	}

	unlock := m.lockDatabase(target)
	defer unlock()

	cmd, env := pgcmd.RestoreCommand(m.cfg.Conn, b.FilePath, target)
	if err := m.runner.Run(ctx, cmd, env); err != nil {
		return fmt.Errorf("psql restore: %w", err)
	}

	m.logger.Info("restore completed", "id", b.ID, "database", target)
	return nil
}

// DeleteBackup removes the record after best-effort deletion of its local
// and remote artifacts. Artifact deletion failures are logged, never fatal.
func (m *Manager) DeleteBackup(ctx context.Context, backupID string) error {
	b, err := m.store.GetByID(backupID)
	if err != nil {
		return err
	}
	if b == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, backupID)
	}

	if b.FilePath != "" {
		if err := os.Remove(b.FilePath); err != nil && !os.IsNotExist(err) {
			m.logger.Warn("delete local artifact", "id", b.ID, "path", b.FilePath, "error", err)
		}
	}

	if b.S3Key != "" && m.remote != nil {
		if err := m.remote.Delete(ctx, b.S3Key); err != nil {
			m.logger.Warn("delete remote artifact", "id", b.ID, "key", b.S3Key, "error", err)
		}
	}

	if _, err := m.store.Delete(backupID); err != nil {
		return err
	}
	m.logger.Info("backup deleted", "id", b.ID, "database", b.Database)
	return nil
}

// CleanupExpired deletes every backup strictly older than its own retention
// period. Failures are isolated per record: one bad delete never stops the
// rest of the pass.
func (m *Manager) CleanupExpired(ctx context.Context) (int, error) {
	expired, err := m.store.ListExpired(m.now().UTC())
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, b := range expired {
		if err := m.DeleteBackup(ctx, b.ID); err != nil {
			m.logger.Error("cleanup: delete expired backup", "id", b.ID, "error", err)
			continue
		}
		deleted++
	}
	if deleted > 0 {
		m.logger.Info("cleanup pass finished", "deleted", deleted, "expired", len(expired))
	}
	return deleted, nil
}

// List returns one page of backups ordered by created_at descending, plus
// the total record count.
func (m *Manager) List(limit, offset int) ([]model.Backup, int64, error) {
	backups, err := m.store.List(limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := m.store.Count()
	if err != nil {
		return nil, 0, err
	}
	return backups, total, nil
}

// Get returns a single backup record.
func (m *Manager) Get(backupID string) (*model.Backup, error) {
	b, err := m.store.GetByID(backupID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, backupID)
	}
	return b, nil
}

// lockDatabase serializes dump/restore operations per database name, so a
// manual backup overlapping a scheduled one never runs two pg_dump processes
// against the same database.
func (m *Manager) lockDatabase(name string) func() {
	m.mu.Lock()
	l, ok := m.dbLocks[name]
	if !ok {
		l = &sync.Mutex{}
		m.dbLocks[name] = l
	}
	m.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (m *Manager) notify(b model.Backup) {
	if m.callback != nil {
		m.callback(b)
	}
}

// artifactName builds {database}_{timestamp}.sql[.gz], with the timestamp's
// colons and dots replaced by dashes so the name is filesystem-safe.
// Nanosecond resolution keeps rapid back-to-back dumps of the same database
// from colliding on one path.
func artifactName(database string, compressed bool, now time.Time) string {
	ts := strings.NewReplacer(":", "-", ".", "-").Replace(now.Format(time.RFC3339Nano))
	name := fmt.Sprintf("%s_%s.sql", database, ts)
	if compressed {
		name += pgcmd.CompressedSuffix
	}
	return name
}
