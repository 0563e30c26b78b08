package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/odyssey-erp/freightdesk/internal/app"
	"github.com/odyssey-erp/freightdesk/internal/platform/db"
	"github.com/odyssey-erp/freightdesk/migrations"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping migrations")
		return
	}

	cmd := flag.String("cmd", "up", "migration command: up, down, status or version")
	dsn := flag.String("dsn", "", "postgres DSN (defaults to PG_DSN)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if *dsn == "" {
		*dsn = os.Getenv("PG_DSN")
	}
	if *dsn == "" {
		logger.Error("no database: set PG_DSN or pass -dsn")
		os.Exit(2)
	}

	if err := run(ctx, db.NewMigrator(*dsn, migrations.FS, "."), *cmd); err != nil {
		logger.Error("migrate", slog.String("cmd", *cmd), slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, m *db.Migrator, cmd string) error {
	switch cmd {
	case "up":
		return m.Up(ctx)
	case "down":
		return m.Down(ctx)
	case "status":
		return m.Status(ctx)
	case "version":
		v, err := m.Version(ctx)
		if err != nil {
			return err
		}
		fmt.Println(v)
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}
