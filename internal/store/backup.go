package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/mathom/internal/model"
)

type BackupStore struct {
	db *sql.DB
}

func NewBackupStore(db *sql.DB) *BackupStore {
	return &BackupStore{db: db}
}

const backupColumns = `id, type, database_name, status, file_path, s3_key, size_bytes,
	compressed, cross_region, checksum, error_message, retention_days,
	created_at, updated_at, completed_at`

func (s *BackupStore) Create(b *model.Backup) error {
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now
	_, err := s.db.Exec(
		`INSERT INTO backups (id, type, database_name, status, file_path, s3_key, size_bytes,
		 compressed, cross_region, checksum, error_message, retention_days, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Type, b.Database, b.Status, b.FilePath, b.S3Key, b.SizeBytes,
		b.Compressed, b.CrossRegion, b.Checksum, nullString(b.ErrorMessage),
		b.RetentionDays, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create backup: %w", err)
	}
	return nil
}

// GetByID returns the backup with the given id, or nil if it does not exist.
func (s *BackupStore) GetByID(id string) (*model.Backup, error) {
	row := s.db.QueryRow(`SELECT `+backupColumns+` FROM backups WHERE id = ?`, id)
	b, err := scanBackup(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get backup %s: %w", id, err)
	}
	return b, nil
}

// List returns backups ordered by created_at descending.
func (s *BackupStore) List(limit, offset int) ([]model.Backup, error) {
	rows, err := s.db.Query(
		`SELECT `+backupColumns+` FROM backups ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	defer rows.Close()

	var backups []model.Backup
	for rows.Next() {
		b, err := scanBackup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan backup: %w", err)
		}
		backups = append(backups, *b)
	}
	return backups, rows.Err()
}

func (s *BackupStore) Count() (int64, error) {
	var count int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM backups`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count backups: %w", err)
	}
	return count, nil
}

func (s *BackupStore) CountByStatus(status model.BackupStatus) (int64, error) {
	var count int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM backups WHERE status = ?`, status).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count backups by status: %w", err)
	}
	return count, nil
}

func (s *BackupStore) MarkInProgress(id string) error {
	return s.update(id,
		`UPDATE backups SET status = ?, updated_at = ? WHERE id = ?`,
		model.BackupStatusInProgress, time.Now().UTC(), id,
	)
}

// MarkCompleted records the artifact location, size, and checksum together.
// Size and checksum are only meaningful once the dump file is fully written.
func (s *BackupStore) MarkCompleted(id, filePath string, sizeBytes int64, checksum string, completedAt time.Time) error {
	return s.update(id,
		`UPDATE backups SET status = ?, file_path = ?, size_bytes = ?, checksum = ?,
		 completed_at = ?, updated_at = ? WHERE id = ?`,
		model.BackupStatusCompleted, filePath, sizeBytes, checksum,
		completedAt, time.Now().UTC(), id,
	)
}

func (s *BackupStore) MarkFailed(id, errMsg string) error {
	return s.update(id,
		`UPDATE backups SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		model.BackupStatusFailed, nullString(errMsg), time.Now().UTC(), id,
	)
}

// SetRemoteKey records a successful replication to remote storage.
func (s *BackupStore) SetRemoteKey(id, key string) error {
	return s.update(id,
		`UPDATE backups SET s3_key = ?, updated_at = ? WHERE id = ?`,
		key, time.Now().UTC(), id,
	)
}

// SetError records failure detail without changing the status. Used for the
// partial-success case where the local backup completed but replication failed.
func (s *BackupStore) SetError(id, errMsg string) error {
	return s.update(id,
		`UPDATE backups SET error_message = ?, updated_at = ? WHERE id = ?`,
		nullString(errMsg), time.Now().UTC(), id,
	)
}

// Delete removes the record and reports whether a row existed.
func (s *BackupStore) Delete(id string) (bool, error) {
	result, err := s.db.Exec(`DELETE FROM backups WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete backup: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete backup: %w", err)
	}
	return n > 0, nil
}

// ListExpired returns backups strictly older than their own retention period
// as of the given time. A record exactly at the boundary is not returned.
func (s *BackupStore) ListExpired(now time.Time) ([]model.Backup, error) {
	rows, err := s.db.Query(
		`SELECT `+backupColumns+` FROM backups
		 WHERE julianday(?) - julianday(created_at) > retention_days
		 ORDER BY created_at`,
		now.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list expired backups: %w", err)
	}
	defer rows.Close()

	var backups []model.Backup
	for rows.Next() {
		b, err := scanBackup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expired backup: %w", err)
		}
		backups = append(backups, *b)
	}
	return backups, rows.Err()
}

// LatestCompleted returns the most recently completed backup, or nil if none.
func (s *BackupStore) LatestCompleted() (*model.Backup, error) {
	row := s.db.QueryRow(
		`SELECT `+backupColumns+` FROM backups WHERE status = ?
		 ORDER BY completed_at DESC LIMIT 1`,
		model.BackupStatusCompleted,
	)
	b, err := scanBackup(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest completed backup: %w", err)
	}
	return b, nil
}

func (s *BackupStore) update(id, query string, args ...any) error {
	result, err := s.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("update backup %s: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("update backup %s: no such record", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBackup(row rowScanner) (*model.Backup, error) {
	b := &model.Backup{}
	var errMsg sql.NullString
	var completedAt sql.NullTime
	err := row.Scan(
		&b.ID, &b.Type, &b.Database, &b.Status, &b.FilePath, &b.S3Key, &b.SizeBytes,
		&b.Compressed, &b.CrossRegion, &b.Checksum, &errMsg, &b.RetentionDays,
		&b.CreatedAt, &b.UpdatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	b.ErrorMessage = errMsg.String
	if completedAt.Valid {
		b.CompletedAt = &completedAt.Time
	}
	return b, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
