package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dukerupert/mathom/internal/backup"
	"github.com/dukerupert/mathom/internal/database"
	"github.com/dukerupert/mathom/internal/logging"
	"github.com/dukerupert/mathom/internal/objectstore"
	"github.com/dukerupert/mathom/internal/pgcmd"
	"github.com/dukerupert/mathom/internal/server"
)

func main() {
	logger := logging.Setup(os.Getenv("LOG_LEVEL"))

	port := getenv("MATHOM_PORT", "8080")
	metaPath := getenv("MATHOM_DB_PATH", "mathom.db")

	db, err := database.Open(metaPath)
	if err != nil {
		logger.Error("open metadata database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	backupCfg := backup.Config{
		Conn: pgcmd.ConnConfig{
			Host:     os.Getenv("DB_HOST"),
			Port:     getenvInt("DB_PORT", 0),
			User:     os.Getenv("DB_USERNAME"),
			Password: os.Getenv("DB_PASSWORD"),
			Database: os.Getenv("DB_NAME"),
		},
		BackupDir:     getenv("BACKUP_DIR", "./backups"),
		RetentionDays: getenvInt("BACKUP_RETENTION_DAYS", 30),
	}

	s3Cfg := objectstore.Config{
		Endpoint:  os.Getenv("AWS_ENDPOINT"),
		Bucket:    os.Getenv("AWS_BACKUP_BUCKET"),
		Region:    os.Getenv("AWS_REGION"),
		AccessKey: os.Getenv("AWS_ACCESS_KEY_ID"),
		SecretKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
	}
	if !s3Cfg.Enabled() {
		logger.Info("cross-region replication disabled: AWS credentials not configured")
	}

	srv := server.New(db, backupCfg, s3Cfg, logger)

	if err := srv.Scheduler().Start(); err != nil {
		logger.Error("start scheduler", "error", err)
		os.Exit(1)
	}

	// No WriteTimeout: backup and restore requests block for as long as
	// pg_dump/psql runs, which is data-size-dependent.
	httpServer := &http.Server{
		Addr:        ":" + port,
		Handler:     srv.Router(),
		ReadTimeout: 5 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		logger.Info("mathom listening", "port", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	srv.Scheduler().Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
