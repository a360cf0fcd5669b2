package database

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestConfig_DefaultConfig(t *testing.T) {
	config := DefaultConfig()
	if config == nil {
		t.Fatal("DefaultConfig should not return nil")
	}

	if config.DatabasePath != "./data/livechat.db" {
		t.Errorf("Expected DatabasePath './data/livechat.db', got %s", config.DatabasePath)
	}
	if config.MaxConnections != 10 {
		t.Errorf("Expected MaxConnections 10, got %d", config.MaxConnections)
	}
	if config.ConnMaxLifetime != time.Hour {
		t.Errorf("Expected ConnMaxLifetime 1 hour, got %v", config.ConnMaxLifetime)
	}
	if config.MigrationsPath != "" {
		t.Errorf("Expected no extra migrations path, got %s", config.MigrationsPath)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("Default config should be valid, got %v", err)
	}
}

func TestConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}, wantErr: false},
		{name: "empty path", mutate: func(c *Config) { c.DatabasePath = "" }, wantErr: true},
		{name: "zero connections", mutate: func(c *Config) { c.MaxConnections = 0 }, wantErr: true},
		{name: "zero lifetime", mutate: func(c *Config) { c.ConnMaxLifetime = 0 }, wantErr: true},
		{name: "negative idle", mutate: func(c *Config) { c.ConnMaxIdleTime = -time.Second }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMigrationManager_ApplyMigrations(t *testing.T) {
	db := openTestDB(t)
	manager := NewMigrationManager(db, "")

	if err := manager.ApplyMigrations(); err != nil {
		t.Fatalf("ApplyMigrations failed: %v", err)
	}
	if err := manager.ValidateSchema(); err != nil {
		t.Errorf("Schema should be valid after migrations: %v", err)
	}

	// Second run is a no-op
	if err := manager.ApplyMigrations(); err != nil {
		t.Fatalf("Re-applying migrations failed: %v", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatalf("Failed to count migrations: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 recorded migration, got %d", count)
	}
}

func TestMigrationManager_ExtraDirectory(t *testing.T) {
	dir := t.TempDir()
	extra := "CREATE TABLE IF NOT EXISTS message_reactions (message_id INTEGER NOT NULL, emoji TEXT NOT NULL);"
	if err := os.WriteFile(filepath.Join(dir, "002_add_reactions.sql"), []byte(extra), 0o644); err != nil {
		t.Fatalf("Failed to write migration: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "README.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatalf("Failed to write readme: %v", err)
	}

	db := openTestDB(t)
	manager := NewMigrationManager(db, dir)
	if err := manager.ApplyMigrations(); err != nil {
		t.Fatalf("ApplyMigrations failed: %v", err)
	}

	validator := NewSchemaValidator(db)
	exists, err := validator.tableExists("message_reactions")
	if err != nil {
		t.Fatalf("tableExists failed: %v", err)
	}
	if !exists {
		t.Error("Expected migration from extra directory to be applied")
	}
}

func TestMigrationManager_MissingDirectoryIgnored(t *testing.T) {
	db := openTestDB(t)
	manager := NewMigrationManager(db, filepath.Join(t.TempDir(), "does-not-exist"))
	if err := manager.ApplyMigrations(); err != nil {
		t.Errorf("Missing extra directory should be ignored, got %v", err)
	}
}

func TestParseMigration(t *testing.T) {
	m := parseMigration("001_create_messages.sql", "SELECT 1")
	if m.Version != "001" {
		t.Errorf("Expected version 001, got %s", m.Version)
	}
	if m.Description != "create_messages" {
		t.Errorf("Expected description create_messages, got %s", m.Description)
	}
}

func TestDatabase_SQLiteOptimizations(t *testing.T) {
	db := openTestDB(t)
	if err := ApplySQLiteOptimizations(db); err != nil {
		t.Fatalf("ApplySQLiteOptimizations failed: %v", err)
	}

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("Failed to read journal mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("Expected WAL journal mode, got %s", mode)
	}
}
