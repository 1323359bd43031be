package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"qrattend/internal/config"
	"qrattend/internal/logger"
	"qrattend/internal/store"
)

// Applies pending schema migrations and prints the resulting version.
func main() {
	statusOnly := flag.Bool("status", false, "print the current schema version without migrating")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	zl := logger.New(cfg.IsProduction()).Named("migrate")
	defer zl.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	handle := store.NewHandle(cfg.DBDriver, cfg.DatabaseURL)
	defer handle.Close()
	db, err := handle.Get(ctx)
	if err != nil {
		zl.Fatal("connect database", zap.Error(err))
	}

	if !*statusOnly {
		if err := db.Migrate(ctx, zl); err != nil {
			zl.Fatal("migrate", zap.Error(err))
		}
	}
	version, err := db.SchemaVersion(ctx)
	if err != nil {
		zl.Fatal("schema version", zap.Error(err))
	}
	zl.Info("schema version", zap.Int64("version", version), zap.String("driver", cfg.DBDriver))
}
