package database

import (
	"database/sql"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Failed to close test database: %v", err)
		}
	})
	return db
}

// Functional Validation Tests - Config

func TestConfig_DefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config == nil {
		t.Fatal("DefaultConfig should not return nil")
	}
	if config.DatabasePath != "./data/carebridge.db" {
		t.Errorf("Expected DatabasePath './data/carebridge.db', got %s", config.DatabasePath)
	}
	if config.MaxConnections != 10 {
		t.Errorf("Expected MaxConnections 10, got %d", config.MaxConnections)
	}
	if config.ConnMaxLifetime != time.Hour {
		t.Errorf("Expected ConnMaxLifetime 1 hour, got %v", config.ConnMaxLifetime)
	}
	if config.ConnMaxIdleTime != time.Minute*10 {
		t.Errorf("Expected ConnMaxIdleTime 10 minutes, got %v", config.ConnMaxIdleTime)
	}
	if config.MigrationsPath != "" {
		t.Errorf("Expected embedded migrations by default, got %s", config.MigrationsPath)
	}
}

func TestConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(c *Config) {}, wantErr: false},
		{name: "empty database path", mutate: func(c *Config) { c.DatabasePath = "" }, wantErr: true},
		{name: "zero max connections", mutate: func(c *Config) { c.MaxConnections = 0 }, wantErr: true},
		{name: "zero max lifetime", mutate: func(c *Config) { c.ConnMaxLifetime = 0 }, wantErr: true},
		{name: "negative idle time", mutate: func(c *Config) { c.ConnMaxIdleTime = -time.Second }, wantErr: true},
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

// Functional Validation Tests - Migration System

func TestMigrationManager_ApplyMigrations(t *testing.T) {
	db := openTestDB(t)

	migrations := fstest.MapFS{
		"002_second.sql": {Data: []byte(`ALTER TABLE test_table ADD COLUMN name TEXT;`)},
		"001_test.sql":   {Data: []byte(`CREATE TABLE test_table (id TEXT PRIMARY KEY);`)},
		"README.md":      {Data: []byte(`not a migration`)},
	}

	mgr := NewMigrationManager(db, migrations)
	if err := mgr.ApplyMigrations(); err != nil {
		t.Fatalf("ApplyMigrations should not fail: %v", err)
	}

	// Version order matters: 002 alters the table 001 creates
	if _, err := db.Exec(`INSERT INTO test_table (id, name) VALUES ('a', 'b')`); err != nil {
		t.Errorf("Expected migrated table with name column: %v", err)
	}

	versions, err := mgr.AppliedVersions()
	if err != nil {
		t.Fatalf("AppliedVersions failed: %v", err)
	}
	if len(versions) != 2 || versions[0] != "001" || versions[1] != "002" {
		t.Errorf("Expected versions [001 002], got %v", versions)
	}
}

func TestMigrationManager_ApplyMigrationsIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	migrations := fstest.MapFS{
		"001_test.sql": {Data: []byte(`CREATE TABLE test_table (id TEXT PRIMARY KEY);`)},
	}

	mgr := NewMigrationManager(db, migrations)
	for i := 0; i < 2; i++ {
		if err := mgr.ApplyMigrations(); err != nil {
			t.Fatalf("ApplyMigrations run %d failed: %v", i+1, err)
		}
	}
}

func TestMigrationManager_FailedMigrationIsNotRecorded(t *testing.T) {
	db := openTestDB(t)
	migrations := fstest.MapFS{
		"001_broken.sql": {Data: []byte(`CREATE TABLE oops (`)},
	}

	mgr := NewMigrationManager(db, migrations)
	if err := mgr.ApplyMigrations(); err == nil {
		t.Fatal("Expected broken migration to fail")
	}

	versions, err := mgr.AppliedVersions()
	if err != nil {
		t.Fatalf("AppliedVersions failed: %v", err)
	}
	if len(versions) != 0 {
		t.Errorf("Expected no applied versions, got %v", versions)
	}
}

func TestMigrationManager_ValidateSchema(t *testing.T) {
	db := openTestDB(t)

	source, err := MigrationsFS(DefaultConfig())
	if err != nil {
		t.Fatalf("MigrationsFS failed: %v", err)
	}
	mgr := NewMigrationManager(db, source)

	if err := mgr.ValidateSchema(); err == nil {
		t.Error("ValidateSchema should fail on empty database")
	}

	if err := mgr.ApplyMigrations(); err != nil {
		t.Fatalf("Embedded migrations failed: %v", err)
	}
	if err := mgr.ValidateSchema(); err != nil {
		t.Errorf("ValidateSchema should pass after migrations: %v", err)
	}
}

func TestSchema_UniqueUserEmail(t *testing.T) {
	db := openTestDB(t)
	source, _ := MigrationsFS(nil)
	if err := NewMigrationManager(db, source).ApplyMigrations(); err != nil {
		t.Fatalf("Embedded migrations failed: %v", err)
	}

	insert := `INSERT INTO documents (id, collection, user_id, data, created_at) VALUES (?, ?, ?, ?, 0)`
	if _, err := db.Exec(insert, "1", "users", "1", `{"email":"a@example.com"}`); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}
	if _, err := db.Exec(insert, "2", "users", "2", `{"email":"a@example.com"}`); err == nil {
		t.Error("Expected duplicate user email to be rejected")
	}
	// Same field in another collection is unconstrained
	if _, err := db.Exec(insert, "3", "notifications", "1", `{"email":"a@example.com"}`); err != nil {
		t.Errorf("Expected non-user collection to accept duplicate email: %v", err)
	}
	if _, err := db.Exec(insert, "4", "users", "4", `not json`); err == nil {
		t.Error("Expected invalid JSON body to be rejected")
	}
}

// Performance Validation Tests

func TestDatabase_SQLiteOptimizations(t *testing.T) {
	db := openTestDB(t)

	if err := ApplySQLiteOptimizations(db); err != nil {
		t.Errorf("Failed to apply SQLite optimizations: %v", err)
	}

	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("Failed to check journal mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("Expected WAL journal mode, got %s", journalMode)
	}
}
