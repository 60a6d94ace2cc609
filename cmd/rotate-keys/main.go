// Command rotate-keys re-encrypts all encrypted columns under a new key.
// It is an operator tool, not part of the request path; run it with write
// traffic drained or accept transient decrypt failures during the window.
package main

import (
	"context"
	"encoding/base64"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/abalakin/clinicguard/internal/config"
	"github.com/abalakin/clinicguard/internal/migrate"
	"github.com/abalakin/clinicguard/internal/repository/postgres"
	"github.com/abalakin/clinicguard/internal/rotation"
)

func main() {
	dsn := flag.String("dsn", os.Getenv(config.EnvDatabaseDSN), "PostgreSQL DSN")
	oldKeyB64 := flag.String("old-key", "", "current encryption key (base64, required)")
	newKeyB64 := flag.String("new-key", "", "new encryption key (base64, required)")
	dryRun := flag.Bool("dry-run", false, "perform the full rotation and roll back")
	migrateUp := flag.Bool("migrate", false, "apply pending schema migrations first")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	oldKey := mustKey(logger, "old-key", *oldKeyB64)
	newKey := mustKey(logger, "new-key", *newKeyB64)
	if *dsn == "" {
		logger.Fatal("missing DSN (--dsn or " + config.EnvDatabaseDSN + ")")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *migrateUp {
		if err := migrate.Up(ctx, *dsn); err != nil {
			logger.Fatal("migrate up", zap.Error(err))
		}
	}

	db, err := postgres.New(ctx, *dsn)
	if err != nil {
		logger.Fatal("connect database", zap.Error(err))
	}
	defer db.Close()

	if *dryRun {
		logger.Info("dry run: all changes will be rolled back")
	}

	report, err := rotation.Run(ctx, db.Pool, oldKey, newKey, *dryRun, logger)
	if err != nil {
		logger.Fatal("key rotation failed, all changes rolled back", zap.Error(err))
	}

	for table, stats := range report {
		logger.Info("rotation summary",
			zap.String("table", table),
			zap.Int("processed", stats.Processed),
			zap.Int("updated", stats.Updated),
			zap.Int("errors", stats.Errors),
		)
	}
	if n := report.TotalErrors(); n > 0 {
		logger.Warn("some rows could not be decrypted; verify the old key", zap.Int("errors", n))
		os.Exit(1)
	}
	if !*dryRun {
		logger.Info("key rotation complete; update " + config.EnvEncryptionKey + " to the new key")
	}
}

func mustKey(logger *zap.Logger, name, b64 string) []byte {
	if b64 == "" {
		logger.Fatal("missing required flag --" + name)
	}
	key, err := base64.StdEncoding.DecodeString(b64)
	if err != nil || len(key) != config.KeySize {
		logger.Fatal("invalid key", zap.String("flag", name), zap.Error(err))
	}
	return key
}
