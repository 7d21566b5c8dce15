package model

import "time"

type BackupType string

const (
	BackupTypeFull        BackupType = "full"
	BackupTypeIncremental BackupType = "incremental"
)

type BackupStatus string

const (
	BackupStatusPending    BackupStatus = "pending"
	BackupStatusInProgress BackupStatus = "in_progress"
	BackupStatusCompleted  BackupStatus = "completed"
	BackupStatusFailed     BackupStatus = "failed"
)

// Backup is one record per backup attempt. The row is created before the
// dump process runs, so every attempt leaves an auditable trace even if the
// host process dies mid-dump.
type Backup struct {
	ID            string       `json:"id"`
	Type          BackupType   `json:"type"`
	Database      string       `json:"database"`
	Status        BackupStatus `json:"status"`
	FilePath      string       `json:"file_path,omitempty"`
	S3Key         string       `json:"s3_key,omitempty"`
	SizeBytes     int64        `json:"size_bytes"`
	Compressed    bool         `json:"compressed"`
	CrossRegion   bool         `json:"cross_region"`
	Checksum      string       `json:"checksum,omitempty"`
	ErrorMessage  string       `json:"error_message,omitempty"`
	RetentionDays int          `json:"retention_days"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
	CompletedAt   *time.Time   `json:"completed_at,omitempty"`
}

// BackupHealth is the coarse verdict derived from backup history.
// Status is "healthy" iff no backup has failed and at least one has
// completed; otherwise "warning".
type BackupHealth struct {
	Status        string     `json:"status"`
	LastBackup    *time.Time `json:"last_backup,omitempty"`
	TotalBackups  int64      `json:"total_backups"`
	FailedBackups int64      `json:"failed_backups"`
}
