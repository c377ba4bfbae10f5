package storage

import (
	"database/sql"
	"fmt"
	"strings"

	// Import sqlite driver
	_ "modernc.org/sqlite"
)

// SQLiteStorage is a single-file alternative to MySQL, useful for local runs
// and small deployments. It shares the queries with the MySQL backend.
type SQLiteStorage struct {
	sqlStore
}

// NewSQLiteStorage opens (or creates) the database file and runs migrations.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %v", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("sqlite database unreachable: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %v", err)
	}

	s := &SQLiteStorage{sqlStore{
		db:          db,
		isDuplicate: isSQLiteDuplicate,
	}}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %v", err)
	}
	return s, nil
}

func (s *SQLiteStorage) GetStorageType() string {
	return "sqlite"
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func isSQLiteDuplicate(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (s *SQLiteStorage) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			first_name TEXT NOT NULL,
			last_name TEXT NOT NULL,
			login TEXT NOT NULL UNIQUE,
			hashed_password TEXT NOT NULL,
			is_verified INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			verified_at DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS budgets (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			period TEXT NOT NULL,
			limit_total REAL NOT NULL,
			categories TEXT NOT NULL,
			start_date DATETIME,
			end_date DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			UNIQUE (user_id, period)
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			amount REAL NOT NULL,
			type TEXT NOT NULL,
			category TEXT NOT NULL,
			description TEXT,
			payment_method TEXT NOT NULL,
			period TEXT NOT NULL,
			date DATETIME NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS email_verification (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			token TEXT NOT NULL UNIQUE,
			expire_at DATETIME NOT NULL,
			used INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			used_at DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS password_reset (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			token TEXT NOT NULL UNIQUE,
			expire_at DATETIME NOT NULL,
			used INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			used_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_user_date ON transactions (user_id, date)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_user_category ON transactions (user_id, category)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}
