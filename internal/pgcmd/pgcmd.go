// Package pgcmd builds the shell command lines used to dump and restore
// PostgreSQL databases. Every interpolated value is shell-quoted, and the
// password travels only through the process environment (PGPASSWORD), never
// on the command line.
package pgcmd

import (
	"fmt"
	"strconv"
	"strings"
)

// CompressedSuffix marks gzip-compressed artifacts. Compression is detected
// from the artifact path alone, so the suffix is load-bearing.
const CompressedSuffix = ".gz"

const (
	defaultHost = "localhost"
	defaultPort = 5432
	defaultUser = "postgres"
)

// ConnConfig describes how to reach the primary database. The zero value is
// usable: missing host/port/user fall back to localhost/5432/postgres. Only
// the password may legitimately stay empty (trust auth deployments).
type ConnConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

func (c ConnConfig) withDefaults() ConnConfig {
	if c.Host == "" {
		c.Host = defaultHost
	}
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.User == "" {
		c.User = defaultUser
	}
	return c
}

// Quote wraps s in single quotes, escaping embedded single quotes so the
// value cannot break out of its argument position.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// DumpCommand returns the shell command that dumps the configured database
// to artifactPath, plus the environment overlay carrying the password.
// With compress set, pg_dump's stdout is piped through gzip; artifactPath is
// expected to already carry the compressed suffix in that case.
func DumpCommand(cfg ConnConfig, artifactPath string, compress bool) (string, []string) {
	cfg = cfg.withDefaults()

	base := fmt.Sprintf("pg_dump -h %s -p %s -U %s -d %s",
		Quote(cfg.Host),
		Quote(strconv.Itoa(cfg.Port)),
		Quote(cfg.User),
		Quote(cfg.Database),
	)

	var cmd string
	if compress {
		cmd = fmt.Sprintf("%s | gzip > %s", base, Quote(artifactPath))
	} else {
		cmd = fmt.Sprintf("%s > %s", base, Quote(artifactPath))
	}
	return cmd, passwordEnv(cfg)
}

// RestoreCommand returns the shell command that restores artifactPath into
// the given target database. Artifacts ending in the compressed suffix are
// decompressed through a pipe into psql's stdin; plain artifacts are
// redirected directly.
func RestoreCommand(cfg ConnConfig, artifactPath, targetDatabase string) (string, []string) {
	cfg = cfg.withDefaults()

	base := fmt.Sprintf("psql -h %s -p %s -U %s -d %s",
		Quote(cfg.Host),
		Quote(strconv.Itoa(cfg.Port)),
		Quote(cfg.User),
		Quote(targetDatabase),
	)

	var cmd string
	if IsCompressed(artifactPath) {
		cmd = fmt.Sprintf("gunzip -c %s | %s", Quote(artifactPath), base)
	} else {
		cmd = fmt.Sprintf("%s < %s", base, Quote(artifactPath))
	}
	return cmd, passwordEnv(cfg)
}

// IsCompressed reports whether the artifact at path is gzip-compressed.
func IsCompressed(path string) bool {
	return strings.HasSuffix(path, CompressedSuffix)
}

func passwordEnv(cfg ConnConfig) []string {
	if cfg.Password == "" {
		return nil
	}
	return []string{"PGPASSWORD=" + cfg.Password}
}
