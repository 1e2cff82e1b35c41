package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// RunMigrations applies pending SQL migrations from dir in version
// order. Files follow the {version}_{name}.up.sql convention; applied
// versions are tracked in schema_migrations so reruns are no-ops.
func RunMigrations(ctx context.Context, db *sql.DB, dir string, logger zerolog.Logger) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version BIGINT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read migrations dir %s: %w", dir, err)
	}

	type migration struct {
		version int64
		name    string
		path    string
	}
	var migrations []migration
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		idx := strings.Index(name, "_")
		if idx < 1 {
			return fmt.Errorf("malformed migration filename %q", name)
		}
		version, err := strconv.ParseInt(name[:idx], 10, 64)
		if err != nil {
			return fmt.Errorf("malformed migration version in %q: %w", name, err)
		}
		migrations = append(migrations, migration{
			version: version,
			name:    strings.TrimSuffix(name[idx+1:], ".up.sql"),
			path:    filepath.Join(dir, name),
		})
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].version < migrations[j].version })

	for _, mig := range migrations {
		var applied bool
		if err := db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`,
			mig.version).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %d: %w", mig.version, err)
		}
		if applied {
			continue
		}

		script, err := os.ReadFile(mig.path)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", mig.path, err)
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", mig.version, err)
		}
		if _, err := tx.ExecContext(ctx, string(script)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %d (%s): %w", mig.version, mig.name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_migrations (version) VALUES ($1)`, mig.version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", mig.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", mig.version, err)
		}

		logger.Info().Int64("version", mig.version).Str("name", mig.name).Msg("migration applied")
	}
	return nil
}
