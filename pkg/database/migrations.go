package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Migration is one versioned schema change.
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// MigrationManager applies schema migrations to the chat database.
type MigrationManager struct {
	db      *sql.DB
	sources []fs.FS
}

// NewMigrationManager applies the embedded migrations, followed by any
// *.sql files found in migrationsPath when it is not empty.
func NewMigrationManager(db *sql.DB, migrationsPath string) *MigrationManager {
	sub, err := fs.Sub(embeddedMigrations, "migrations")
	if err != nil {
		// embed guarantees the directory exists
		panic(err)
	}
	sources := []fs.FS{sub}
	if migrationsPath != "" {
		sources = append(sources, os.DirFS(migrationsPath))
	}
	return &MigrationManager{
		db:      db,
		sources: sources,
	}
}

// ApplyMigrations applies every migration not yet recorded in
// schema_migrations, each in its own transaction.
func (m *MigrationManager) ApplyMigrations() error {
	if err := m.createMigrationTable(); err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}

	migrations, err := m.loadMigrations()
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	applied, err := m.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	for _, migration := range migrations {
		if applied[migration.Version] {
			continue
		}
		if err := m.applyMigration(migration); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", migration.Version, err)
		}
		applied[migration.Version] = true
	}

	return nil
}

// ValidateSchema ensures the database holds the tables the store needs.
func (m *MigrationManager) ValidateSchema() error {
	return NewSchemaValidator(m.db).ValidateTablesExist()
}

func (m *MigrationManager) createMigrationTable() error {
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

// loadMigrations reads *.sql files from all sources, ordered by version.
// File names follow "<version>_<description>.sql".
func (m *MigrationManager) loadMigrations() ([]Migration, error) {
	var migrations []Migration
	for _, src := range m.sources {
		entries, err := fs.ReadDir(src, ".")
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		for _, entry := range entries {
			if entry.IsDir() || path.Ext(entry.Name()) != ".sql" {
				continue
			}
			content, err := fs.ReadFile(src, entry.Name())
			if err != nil {
				return nil, err
			}
			migrations = append(migrations, parseMigration(entry.Name(), string(content)))
		}
	}

	sort.SliceStable(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

func parseMigration(fileName, content string) Migration {
	base := strings.TrimSuffix(fileName, ".sql")
	version, description, _ := strings.Cut(base, "_")
	return Migration{
		Version:     version,
		Description: description,
		SQL:         content,
	}
}

func (m *MigrationManager) getAppliedMigrations() (map[string]bool, error) {
	rows, err := m.db.Query("SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (m *MigrationManager) applyMigration(migration Migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(migration.SQL); err != nil {
		return err
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", migration.Version); err != nil {
		return err
	}
	return tx.Commit()
}
