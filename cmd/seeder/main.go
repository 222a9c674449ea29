// cmd/seeder/main.go
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/payout-settlement/internal/config"
	"github.com/unclebandit/payout-settlement/internal/db"
	"github.com/unclebandit/payout-settlement/internal/logger"
)

// Applies the embedded migrations, then any SQL seed files given as arguments.
func main() {
	timeout := flag.Duration("timeout", 2*time.Minute, "overall deadline")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logg, err := logger.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logg.Sync()

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		logg.Fatal("connect database", zap.Error(err))
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := db.Migrate(ctx, conn, logg); err != nil {
		logg.Fatal("migrate", zap.Error(err))
	}

	for _, file := range flag.Args() {
		content, err := os.ReadFile(file)
		if err != nil {
			logg.Fatal("read seed file", zap.String("file", file), zap.Error(err))
		}
		if _, err := conn.ExecContext(ctx, string(content)); err != nil {
			logg.Fatal("execute seed file", zap.String("file", file), zap.Error(err))
		}
		logg.Info("seeded", zap.String("file", file))
	}

	logg.Info("database ready")
}
