package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// migration is one versioned schema change, parsed from a
// NNN_name.sql file in the migrations directory.
type migration struct {
	version int
	name    string
	sql     string
}

// Migrator applies pending schema migrations
type Migrator struct {
	db     *DB
	logger *zap.Logger
}

// NewMigrator creates a new migrator
func NewMigrator(db *DB, logger *zap.Logger) *Migrator {
	return &Migrator{db: db, logger: logger}
}

// RunMigrations applies every .sql file in dir that has not been
// applied yet, in version order, each in its own transaction.
func (m *Migrator) RunMigrations(dir string) error {
	if _, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := m.appliedVersions()
	if err != nil {
		return err
	}

	migrations, err := readMigrationDir(dir)
	if err != nil {
		return err
	}

	for _, mg := range migrations {
		if applied[mg.version] {
			continue
		}
		m.logger.Info("Applying migration",
			zap.Int("version", mg.version),
			zap.String("name", mg.name))
		if err := m.apply(mg); err != nil {
			return fmt.Errorf("migration %d (%s): %w", mg.version, mg.name, err)
		}
	}

	m.logger.Info("Schema up to date", zap.Int("migrations", len(migrations)))
	return nil
}

func (m *Migrator) appliedVersions() (map[int]bool, error) {
	rows, err := m.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

func (m *Migrator) apply(mg migration) error {
	return m.db.WithTransaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(mg.sql); err != nil {
			return err
		}
		_, err := tx.Exec("INSERT INTO schema_migrations (version, name) VALUES (?, ?)",
			mg.version, mg.name)
		return err
	})
}

func readMigrationDir(dir string) ([]migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations dir %s: %w", dir, err)
	}

	var migrations []migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		mg, err := parseMigrationName(entry.Name())
		if err != nil {
			return nil, err
		}
		content, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", entry.Name(), err)
		}
		mg.sql = string(content)
		migrations = append(migrations, mg)
	}

	sort.Slice(migrations, func(i, j int) bool { return migrations[i].version < migrations[j].version })
	return migrations, nil
}

// parseMigrationName splits "001_initial_schema.sql" into version 1
// and name "initial_schema".
func parseMigrationName(filename string) (migration, error) {
	base := strings.TrimSuffix(filename, ".sql")
	parts := strings.SplitN(base, "_", 2)
	version, err := strconv.Atoi(parts[0])
	if err != nil || len(parts) != 2 {
		return migration{}, fmt.Errorf("invalid migration filename %q, want NNN_name.sql", filename)
	}
	return migration{version: version, name: parts[1]}, nil
}
