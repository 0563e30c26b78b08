package db

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// Migrator applies embedded goose migrations.
type Migrator struct {
	dsn string
	fs  fs.FS
	dir string
}

// NewMigrator prepares a migrator reading SQL files from dir inside fsys.
func NewMigrator(dsn string, fsys fs.FS, dir string) *Migrator {
	if dir == "" {
		dir = "."
	}
	return &Migrator{dsn: dsn, fs: fsys, dir: dir}
}

func (m *Migrator) open() (*sql.DB, error) {
	conn, err := sql.Open("pgx", m.dsn)
	if err != nil {
		return nil, fmt.Errorf("platform/db: open: %w", err)
	}
	goose.SetBaseFS(m.fs)
	if err := goose.SetDialect("postgres"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("platform/db: dialect: %w", err)
	}
	return conn, nil
}

// Up runs all pending migrations.
func (m *Migrator) Up(ctx context.Context) error {
	conn, err := m.open()
	if err != nil {
		return err
	}
	defer conn.Close()
	return goose.UpContext(ctx, conn, m.dir)
}

// Down rolls back the most recent migration.
func (m *Migrator) Down(ctx context.Context) error {
	conn, err := m.open()
	if err != nil {
		return err
	}
	defer conn.Close()
	return goose.DownContext(ctx, conn, m.dir)
}

// Status logs the applied state of every migration.
func (m *Migrator) Status(ctx context.Context) error {
	conn, err := m.open()
	if err != nil {
		return err
	}
	defer conn.Close()
	return goose.StatusContext(ctx, conn, m.dir)
}

// Version returns the current schema version.
func (m *Migrator) Version(ctx context.Context) (int64, error) {
	conn, err := m.open()
	if err != nil {
		return 0, err
	}
	defer conn.Close()
	return goose.GetDBVersionContext(ctx, conn)
}
