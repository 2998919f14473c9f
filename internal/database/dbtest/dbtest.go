// Package dbtest opens migrated in-memory databases for tests.
package dbtest

import (
	"testing"

	"gameshelf/backend/internal/database"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// New returns a migrated in-memory SQLite database seeded with the default
// consoles. The pool is pinned to one connection so every query sees the same
// in-memory database; code under test must not use the global handle inside a
// transaction.
func New(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := database.Open(sqlite.Open("file::memory:?_pragma=foreign_keys(1)"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := database.SeedConsoles(t.Context(), db, database.DefaultConsoles); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return db
}

// Use installs a fresh database as database.DB for the duration of the test.
func Use(t testing.TB) *gorm.DB {
	t.Helper()
	db := New(t)
	prev := database.DB
	database.DB = db
	t.Cleanup(func() { database.DB = prev })
	return db
}
