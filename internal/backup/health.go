package backup

import (
	"fmt"

	"github.com/dukerupert/mathom/internal/model"
	"github.com/dukerupert/mathom/internal/store"
)

const (
	HealthStatusHealthy = "healthy"
	HealthStatusWarning = "warning"
)

// HealthReporter derives a coarse health verdict from backup history. It
// reads only from the record store.
type HealthReporter struct {
	store *store.BackupStore
}

func NewHealthReporter(st *store.BackupStore) *HealthReporter {
	return &HealthReporter{store: st}
}

// Report is "healthy" iff no backup has ever failed and at least one has
// completed; anything else is "warning".
func (r *HealthReporter) Report() (model.BackupHealth, error) {
	var h model.BackupHealth

	total, err := r.store.Count()
	if err != nil {
		return h, fmt.Errorf("count backups: %w", err)
	}

	failed, err := r.store.CountByStatus(model.BackupStatusFailed)
	if err != nil {
		return h, fmt.Errorf("count failed backups: %w", err)
	}

	latest, err := r.store.LatestCompleted()
	if err != nil {
		return h, fmt.Errorf("latest completed backup: %w", err)
	}

	h.TotalBackups = total
	h.FailedBackups = failed
	h.Status = HealthStatusWarning
	if failed == 0 && latest != nil {
		h.Status = HealthStatusHealthy
	}
	if latest != nil {
		h.LastBackup = latest.CompletedAt
	}
	return h, nil
}
