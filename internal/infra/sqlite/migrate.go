package sqlite

import (
	"context"
	"crypto/sha256"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/dvloznov/finance-sync/internal/logger"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// ErrMigrationChanged is returned when an applied migration file was edited.
var ErrMigrationChanged = errors.New("applied migration changed")

// appliedBy is recorded with every migration this binary applies.
const appliedBy = "finance-sync"

// Migration is one numbered schema change, read from a file named
// NNNN_name.sql.
type Migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	Checksum string
}

// AppliedMigration is a migration recorded in schema_migrations.
type AppliedMigration struct {
	Version   int       `json:"version"`
	Name      string    `json:"name"`
	AppliedAt time.Time `json:"applied_at"`
	Checksum  string    `json:"checksum"`
	AppliedBy string    `json:"applied_by"`
}

var migrationPattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

// Migrate applies every embedded migration not yet recorded, each in its
// own transaction, and returns the ones it applied.
func (s *Store) Migrate(ctx context.Context) ([]Migration, error) {
	sub, err := fs.Sub(embeddedMigrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("Migrate: %w", err)
	}
	return s.migrate(ctx, sub)
}

func (s *Store) migrate(ctx context.Context, fsys fs.FS) ([]Migration, error) {
	log := logger.FromContext(ctx)

	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TEXT NOT NULL,
			checksum   TEXT NOT NULL,
			applied_by TEXT NOT NULL DEFAULT ''
		)`); err != nil {
		return nil, fmt.Errorf("Migrate: ensure schema_migrations: %w", err)
	}

	migrations, err := readMigrations(fsys)
	if err != nil {
		return nil, fmt.Errorf("Migrate: %w", err)
	}

	applied, err := s.AppliedMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("Migrate: %w", err)
	}
	checksums := make(map[int]string, len(applied))
	for _, am := range applied {
		checksums[am.Version] = am.Checksum
	}

	var ran []Migration
	for _, m := range migrations {
		if sum, ok := checksums[m.Version]; ok {
			if sum != m.Checksum {
				return ran, fmt.Errorf("Migrate: %s: %w", m.Filename, ErrMigrationChanged)
			}
			continue
		}

		if err := s.applyMigration(ctx, m); err != nil {
			return ran, fmt.Errorf("Migrate: %s: %w", m.Filename, err)
		}
		log.Info().Int("version", m.Version).Str("name", m.Name).Msg("Applied migration")
		ran = append(ran, m)
	}

	return ran, nil
}

func (s *Store) applyMigration(ctx context.Context, m Migration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return fmt.Errorf("execute: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO schema_migrations (version, name, applied_at, checksum, applied_by)
		VALUES (?, ?, ?, ?, ?)`,
		m.Version, m.Name, formatTime(s.now()), m.Checksum, appliedBy,
	); err != nil {
		return fmt.Errorf("record: %w", err)
	}

	return tx.Commit()
}

// AppliedMigrations lists the recorded migrations by version.
func (s *Store) AppliedMigrations(ctx context.Context) ([]AppliedMigration, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT version, name, applied_at, checksum, applied_by
		FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("AppliedMigrations: %w", err)
	}
	defer rows.Close()

	var applied []AppliedMigration
	for rows.Next() {
		var (
			am        AppliedMigration
			appliedAt string
		)
		if err := rows.Scan(&am.Version, &am.Name, &appliedAt, &am.Checksum, &am.AppliedBy); err != nil {
			return nil, fmt.Errorf("AppliedMigrations: %w", err)
		}
		if am.AppliedAt, err = parseTime(appliedAt); err != nil {
			return nil, fmt.Errorf("AppliedMigrations: parse applied_at: %w", err)
		}
		applied = append(applied, am)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("AppliedMigrations: %w", err)
	}
	return applied, nil
}

// readMigrations reads the migration files at the root of fsys, sorted by
// version. Files not named NNNN_name.sql are skipped.
func readMigrations(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	var migrations []Migration
	seen := make(map[int]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		matches := migrationPattern.FindStringSubmatch(entry.Name())
		if matches == nil {
			continue
		}
		version, _ := strconv.Atoi(matches[1])
		if other, ok := seen[version]; ok {
			return nil, fmt.Errorf("duplicate migration version %04d: %s and %s", version, other, entry.Name())
		}
		seen[version] = entry.Name()

		content, err := fs.ReadFile(fsys, path.Clean(entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", entry.Name(), err)
		}

		migrations = append(migrations, Migration{
			Version:  version,
			Name:     matches[2],
			Filename: entry.Name(),
			SQL:      string(content),
			Checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}
