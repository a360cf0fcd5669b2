package database

import "testing"

func migratedDB(t *testing.T) *SchemaValidator {
	t.Helper()
	db := openTestDB(t)
	if err := NewMigrationManager(db, "").ApplyMigrations(); err != nil {
		t.Fatalf("ApplyMigrations failed: %v", err)
	}
	return NewSchemaValidator(db)
}

func TestSchemaValidator_ValidateTablesExist(t *testing.T) {
	empty := NewSchemaValidator(openTestDB(t))
	if err := empty.ValidateTablesExist(); err == nil {
		t.Error("Expected error on empty database")
	}

	if err := migratedDB(t).ValidateTablesExist(); err != nil {
		t.Errorf("Expected tables to exist, got %v", err)
	}
}

func TestSchemaValidator_ValidateTableStructure(t *testing.T) {
	if err := migratedDB(t).ValidateTableStructure(); err != nil {
		t.Errorf("Expected valid structure, got %v", err)
	}
}

func TestSchemaValidator_ValidateIndexes(t *testing.T) {
	if err := migratedDB(t).ValidateIndexes(); err != nil {
		t.Errorf("Expected indexes to exist, got %v", err)
	}
}

func TestSchemaValidator_ValidateConstraints(t *testing.T) {
	v := migratedDB(t)
	if err := v.ValidateConstraints(); err != nil {
		t.Errorf("Expected blank pseudo to be rejected, got %v", err)
	}

	var count int
	if err := v.db.QueryRow("SELECT COUNT(*) FROM messages").Scan(&count); err != nil {
		t.Fatalf("Failed to count messages: %v", err)
	}
	if count != 0 {
		t.Errorf("Constraint probe must not leave rows behind, found %d", count)
	}
}

func TestSchemaValidator_MissingColumn(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.Exec("CREATE TABLE messages (id INTEGER PRIMARY KEY, pseudo TEXT)"); err != nil {
		t.Fatalf("Failed to create table: %v", err)
	}
	if err := NewSchemaValidator(db).ValidateTableStructure(); err == nil {
		t.Error("Expected missing column error")
	}
}
