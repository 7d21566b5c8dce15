package pgcmd

import (
	"strings"
	"testing"
)

func TestQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "'plain'"},
		{"with space", "'with space'"},
		{"it's", `'it'"'"'s'`},
		{"a;b", "'a;b'"},
		{"", "''"},
	}
	for _, tt := range tests {
		if got := Quote(tt.in); got != tt.want {
			t.Errorf("Quote(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestDumpCommandDefaults(t *testing.T) {
	cmd, env := DumpCommand(ConnConfig{Database: "app"}, "/backups/app.sql", false)

	want := "pg_dump -h 'localhost' -p '5432' -U 'postgres' -d 'app' > '/backups/app.sql'"
	if cmd != want {
		t.Errorf("cmd = %s, want %s", cmd, want)
	}
	if env != nil {
		t.Errorf("env = %v, want nil (no password)", env)
	}
}

func TestDumpCommandPasswordInEnvOnly(t *testing.T) {
	cfg := ConnConfig{
		Host:     "db.internal",
		Port:     5433,
		User:     "backup",
		Password: "s3cret",
		Database: "app",
	}
	cmd, env := DumpCommand(cfg, "/backups/app.sql", false)

	if strings.Contains(cmd, "s3cret") {
		t.Errorf("password leaked into command: %s", cmd)
	}
	if len(env) != 1 || env[0] != "PGPASSWORD=s3cret" {
		t.Errorf("env = %v, want [PGPASSWORD=s3cret]", env)
	}
	if !strings.Contains(cmd, "-h 'db.internal' -p '5433' -U 'backup'") {
		t.Errorf("connection args missing: %s", cmd)
	}
}

func TestDumpCommandCompression(t *testing.T) {
	cmd, _ := DumpCommand(ConnConfig{Database: "app"}, "/backups/app.sql.gz", true)

	if !strings.Contains(cmd, "| gzip > '/backups/app.sql.gz'") {
		t.Errorf("expected gzip pipe, got: %s", cmd)
	}
}

// A database name carrying shell metacharacters must stay inside a single
// quoted argument and never change the command structure.
func TestDumpCommandHostileDatabaseName(t *testing.T) {
	hostile := `app'; rm -rf / #`
	cmd, _ := DumpCommand(ConnConfig{Database: hostile}, "/backups/out.sql", false)

	want := `pg_dump -h 'localhost' -p '5432' -U 'postgres' -d 'app'"'"'; rm -rf / #' > '/backups/out.sql'`
	if cmd != want {
		t.Errorf("cmd = %s\nwant  %s", cmd, want)
	}
	// The raw value must never appear unquoted.
	if strings.Contains(cmd, " "+hostile+" ") {
		t.Errorf("hostile value escaped quoting: %s", cmd)
	}
}

func TestRestoreCommandPlain(t *testing.T) {
	cmd, _ := RestoreCommand(ConnConfig{Database: "app"}, "/backups/app.sql", "app")

	want := "psql -h 'localhost' -p '5432' -U 'postgres' -d 'app' < '/backups/app.sql'"
	if cmd != want {
		t.Errorf("cmd = %s, want %s", cmd, want)
	}
}

func TestRestoreCommandCompressed(t *testing.T) {
	cmd, _ := RestoreCommand(ConnConfig{}, "/backups/app.sql.gz", "staging")

	if !strings.HasPrefix(cmd, "gunzip -c '/backups/app.sql.gz' | psql") {
		t.Errorf("expected gunzip pipe, got: %s", cmd)
	}
	if !strings.Contains(cmd, "-d 'staging'") {
		t.Errorf("target database missing: %s", cmd)
	}
}

func TestIsCompressed(t *testing.T) {
	if !IsCompressed("app_2025.sql.gz") {
		t.Error("expected .gz path to be compressed")
	}
	if IsCompressed("app_2025.sql") {
		t.Error("expected plain path to be uncompressed")
	}
}
