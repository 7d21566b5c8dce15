package backup

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/dukerupert/mathom/internal/database"
	"github.com/dukerupert/mathom/internal/store"
)

func setupScheduler(t *testing.T) *Scheduler {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "meta.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	st := store.NewBackupStore(db)
	m := NewManager(Config{BackupDir: t.TempDir()}, st, nil, dumpToFile("-- dump"), nil, testLogger())
	return NewScheduler(m, NewHealthReporter(st), testLogger())
}

func TestSchedulerRegistersAllJobs(t *testing.T) {
	s := setupScheduler(t)

	if err := s.Start(); err != nil {
		t.Fatalf("start scheduler: %v", err)
	}
	defer s.Stop()

	if got := len(s.cron.Entries()); got != 4 {
		t.Errorf("registered jobs = %d, want 4", got)
	}
}

// The cron specs must fire at the documented UTC wall-clock times.
func TestSchedulerNextRuns(t *testing.T) {
	s := setupScheduler(t)

	if err := s.Start(); err != nil {
		t.Fatalf("start scheduler: %v", err)
	}
	defer s.Stop()

	// A Monday, just after midnight UTC.
	from := time.Date(2025, 9, 1, 0, 30, 0, 0, time.UTC)

	var nexts []time.Time
	for _, e := range s.cron.Entries() {
		nexts = append(nexts, e.Schedule.Next(from))
	}

	want := map[time.Time]bool{
		time.Date(2025, 9, 1, 3, 0, 0, 0, time.UTC): true, // daily backup
		time.Date(2025, 9, 7, 4, 0, 0, 0, time.UTC): true, // weekly backup (Sunday)
		time.Date(2025, 9, 1, 5, 0, 0, 0, time.UTC): true, // cleanup
		time.Date(2025, 9, 1, 1, 0, 0, 0, time.UTC): true, // hourly health check
	}
	for _, next := range nexts {
		if !want[next] {
			t.Errorf("unexpected next run time %v", next)
		}
	}
}

// A failing job must not keep other jobs (or later runs) from executing:
// jobs log their own errors instead of panicking.
func TestSchedulerJobsSwallowFailures(t *testing.T) {
	s := setupScheduler(t)

	// No database configured for the manager, so scheduled backups fail.
	s.runScheduledBackup("daily", dailyRetentionDays)
	s.runCleanup()
	s.runHealthCheck()
}
