// Command migrate applies the SQL files of a migrations directory in name
// order. Applied files are recorded in crm_schema_migrations and skipped on
// later runs.
//
//	migrate [dir]     apply pending migrations (default dir: migrations)
//	migrate --list    list CRM tables
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ignite/prospect-crm/internal/pkg/distlock"
	"github.com/ignite/prospect-crm/internal/pkg/logger"
	"github.com/joho/godotenv"

	_ "github.com/lib/pq"
)

const lockKey = "crm:migrate"

var errLocked = errors.New("another migration run holds the lock")

func main() {
	_ = godotenv.Load()
	logger.SetLevel(logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		fatal("DATABASE_URL is required", nil)
	}

	dir := "migrations"
	listOnly := false
	for _, a := range os.Args[1:] {
		if a == "--list" {
			listOnly = true
		} else {
			dir = a
		}
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		fatal("open database", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		fatal("ping database", err)
	}

	if listOnly {
		err = list(ctx, db, os.Stdout)
	} else {
		err = migrate(ctx, db, dir)
	}
	if err != nil {
		db.Close()
		fatal("migrate failed", err)
	}
}

func fatal(msg string, err error) {
	if err != nil {
		logger.Error(msg, "error", err)
	} else {
		logger.Error(msg)
	}
	os.Exit(1)
}

// migrate applies every pending file of dir under the migration lock. It
// stops at the first failing file; later files may depend on it.
func migrate(ctx context.Context, db *sql.DB, dir string) error {
	files, err := migrationFiles(dir)
	if err != nil {
		return err
	}

	lock := distlock.NewPGAdvisoryLock(db, lockKey)
	ok, err := lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock migrations: %w", err)
	}
	if !ok {
		return errLocked
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("release migration lock failed", "error", err)
		}
	}()

	if err := ensureTable(ctx, db); err != nil {
		return err
	}
	done, err := applied(ctx, db)
	if err != nil {
		return err
	}

	var n int
	for _, f := range files {
		if done[f] {
			logger.Debug("migration already applied", "version", f)
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, f))
		if err != nil {
			return fmt.Errorf("read %s: %w", f, err)
		}
		if strings.TrimSpace(string(data)) == "" {
			logger.Warn("skipping empty migration", "version", f)
			continue
		}
		start := time.Now()
		if err := apply(ctx, db, f, string(data)); err != nil {
			return err
		}
		logger.Info("migration applied", "version", f, "duration", time.Since(start).String())
		n++
	}
	logger.Info("migrations complete", "applied", n, "total", len(files))
	return nil
}

func migrationFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

func ensureTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS crm_schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("create crm_schema_migrations: %w", err)
	}
	return nil
}

func applied(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM crm_schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("load applied migrations: %w", err)
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		done[v] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load applied migrations: %w", err)
	}
	return done, nil
}

// apply runs one file and records its version in the same transaction.
func apply(ctx context.Context, db *sql.DB, version, content string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s: %w", version, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, content); err != nil {
		return fmt.Errorf("apply %s: %w", version, err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO crm_schema_migrations (version) VALUES ($1)", version); err != nil {
		return fmt.Errorf("record %s: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", version, err)
	}
	return nil
}

// list prints the CRM tables of the public schema.
func list(ctx context.Context, db *sql.DB, w io.Writer) error {
	rows, err := db.QueryContext(ctx, `
		SELECT tablename FROM pg_tables
		WHERE schemaname = 'public' AND tablename LIKE 'crm\_%'
		ORDER BY tablename
	`)
	if err != nil {
		return fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var n int
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return fmt.Errorf("scan table name: %w", err)
		}
		fmt.Fprintln(w, " ", t)
		n++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("list tables: %w", err)
	}
	fmt.Fprintf(w, "Total: %d tables\n", n)
	return nil
}
