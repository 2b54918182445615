package storage

import "fmt"

// Current schema version
const schemaVersion = 4

// migrations defines all schema migrations.
// Each migration should be idempotent (safe to run multiple times): when
// existing names a column that already exists, the migration is only recorded.
var migrations = []struct {
	version     int
	description string
	existing    [2]string // table, column
	up          string
}{
	{
		version:     1,
		description: "Initial schema",
		up:          "", // Handled by base schema creation
	},
	{
		version:     2,
		description: "Add file_hash column for exact matching",
		existing:    [2]string{"images", "file_hash"},
		up: `
			ALTER TABLE images ADD COLUMN file_hash TEXT DEFAULT '';
			CREATE INDEX IF NOT EXISTS idx_images_file_hash ON images(file_hash);
		`,
	},
	{
		version:     3,
		description: "Add capture time, group order and decisions",
		existing:    [2]string{"images", "decision"},
		up: `
			ALTER TABLE images ADD COLUMN capture_time INTEGER DEFAULT 0;
			ALTER TABLE images ADD COLUMN group_pos INTEGER DEFAULT 0;
			ALTER TABLE images ADD COLUMN decision TEXT DEFAULT '';
			ALTER TABLE images ADD COLUMN category TEXT DEFAULT '';
			CREATE INDEX IF NOT EXISTS idx_images_decision ON images(decision);
		`,
	},
	{
		version:     4,
		description: "Add run history",
		up: `
			CREATE TABLE IF NOT EXISTS runs (
				id TEXT PRIMARY KEY,
				folder TEXT NOT NULL,
				mode TEXT NOT NULL,
				strategy TEXT DEFAULT '',
				threshold INTEGER NOT NULL,
				started_at INTEGER NOT NULL,
				files_total INTEGER NOT NULL,
				files_validated INTEGER NOT NULL,
				files_invalid INTEGER NOT NULL,
				cache_hits INTEGER DEFAULT 0,
				groups_found INTEGER NOT NULL,
				grouped_files INTEGER NOT NULL,
				marked_for_removal INTEGER NOT NULL,
				scan_ns INTEGER DEFAULT 0,
				hash_ns INTEGER DEFAULT 0,
				group_ns INTEGER DEFAULT 0,
				select_ns INTEGER DEFAULT 0,
				total_ns INTEGER DEFAULT 0,
				sort_into_folders INTEGER DEFAULT 0,
				remains_action TEXT DEFAULT ''
			);
			CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
		`,
	},
}

// init creates the database schema
func (s *Storage) init() error {
	// Create schema_version table first
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	// Create base schema
	schema := `
	CREATE TABLE IF NOT EXISTS images (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT UNIQUE NOT NULL,
		hash INTEGER NOT NULL,
		width INTEGER NOT NULL,
		height INTEGER NOT NULL,
		format TEXT NOT NULL,
		file_size INTEGER NOT NULL,
		mod_time INTEGER NOT NULL,
		has_exif INTEGER DEFAULT 0,
		group_id INTEGER DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_images_hash ON images(hash);
	CREATE INDEX IF NOT EXISTS idx_images_group_id ON images(group_id);
	CREATE INDEX IF NOT EXISTS idx_images_path ON images(path);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	// Run migrations
	if err := s.migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// migrate runs pending schema migrations
func (s *Storage) migrate() error {
	currentVersion := s.getSchemaVersion()

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if m.up == "" || (m.existing[0] != "" && s.columnExists(m.existing[0], m.existing[1])) {
			if err := s.setSchemaVersion(m.version); err != nil {
				return err
			}
			continue
		}

		if _, err := s.db.Exec(m.up); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.description, err)
		}

		if err := s.setSchemaVersion(m.version); err != nil {
			return err
		}
	}

	return nil
}

// getSchemaVersion returns the current schema version
func (s *Storage) getSchemaVersion() int {
	var version int
	err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)
	if err != nil {
		return 0
	}
	return version
}

// setSchemaVersion records a migration as applied
func (s *Storage) setSchemaVersion(version int) error {
	if _, err := s.db.Exec(`INSERT OR REPLACE INTO schema_version (version) VALUES (?)`, version); err != nil {
		return fmt.Errorf("failed to record schema version %d: %w", version, err)
	}
	return nil
}

// columnExists checks if a column exists in a table
func (s *Storage) columnExists(table, column string) bool {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?
	`, table, column).Scan(&count)
	if err != nil {
		return false
	}
	return count > 0
}
