package data

import (
	"database/sql"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const dbName = "odbcref.db"

// DefaultPath places the history database next to the executable, or in the
// working directory when running under "go run".
func DefaultPath() string {
	exePath, err := os.Executable()
	if err == nil {
		dir := filepath.Dir(exePath)
		if base := filepath.Base(dir); base == "odbcref" || base == "build" {
			return filepath.Join(dir, dbName)
		}
	}
	wd, _ := os.Getwd()
	return filepath.Join(wd, dbName)
}

// InitDB opens the SQLite history database at dbPath and runs migrations
func InitDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func runMigrations(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS profiles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		driver TEXT NOT NULL,
		connection_string_enc TEXT NOT NULL,
		is_active INTEGER DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS api_keys (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		key_prefix TEXT NOT NULL,
		key_hash TEXT NOT NULL UNIQUE,
		description TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		last_used_at DATETIME,
		is_active INTEGER DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS scripts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		slug TEXT NOT NULL UNIQUE,
		description TEXT,
		body TEXT NOT NULL,
		updated_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at DATETIME NOT NULL,
		profile_id INTEGER,
		driver TEXT NOT NULL,
		data_source TEXT NOT NULL,
		duration_ms INTEGER,
		status TEXT,
		error_message TEXT,
		api_key_id INTEGER
	);

	CREATE TABLE IF NOT EXISTS run_statements (
		run_id INTEGER NOT NULL,
		position INTEGER NOT NULL,
		sql_text TEXT NOT NULL,
		rows_affected INTEGER,
		duration_ms INTEGER,
		status TEXT,
		error_message TEXT,
		PRIMARY KEY (run_id, position),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);
	`
	_, err := db.Exec(schema)
	return err
}
