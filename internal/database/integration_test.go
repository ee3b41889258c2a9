package database

import (
	"context"
	"path/filepath"
	"testing"
)

// openTestDB initializes a SQLite database in a temp directory and applies
// the migrations from the repository root.
func openTestDB(t *testing.T) *DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := Initialize(dbPath)
	if err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.RunMigrations(filepath.Join("..", "..", "migrations")); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	return db
}

// TestDatabaseIntegration tests the complete database lifecycle
func TestDatabaseIntegration(t *testing.T) {
	// Skip if not in integration test mode
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := openTestDB(t)

	// Test connection
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("Failed to ping database: %v", err)
	}

	// Test that tables were created by migrations
	tables := []string{"users", "sessions", "verification_tokens", "family_members", "documents"}

	for _, table := range tables {
		query := "SELECT name FROM sqlite_master WHERE type='table' AND name=?"
		var name string
		err := db.QueryRowContext(ctx, query, table).Scan(&name)
		if err != nil {
			t.Errorf("Table %s not found: %v", table, err)
		}
	}
}

// TestDatabaseTransactions tests transaction support
func TestDatabaseTransactions(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := openTestDB(t)
	ctx := context.Background()

	// Test successful transaction
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("Failed to begin transaction: %v", err)
	}

	// Insert test data
	_, err = tx.ExecContext(ctx, "INSERT INTO users (username, email, password_hash, full_name) VALUES (?, ?, ?, ?)",
		"budi", "budi@example.com", "hashedpass", "Budi Santoso")
	if err != nil {
		tx.Rollback()
		t.Fatalf("Failed to insert in transaction: %v", err)
	}

	// Commit
	if err := tx.Commit(); err != nil {
		t.Fatalf("Failed to commit transaction: %v", err)
	}

	// Verify data was inserted
	var count int
	err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE username = ?", "budi").Scan(&count)
	if err != nil {
		t.Fatalf("Failed to query after commit: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 user, got %d", count)
	}

	// Test rollback
	tx2, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("Failed to begin second transaction: %v", err)
	}

	_, err = tx2.ExecContext(ctx, "INSERT INTO users (username, email, password_hash, full_name) VALUES (?, ?, ?, ?)",
		"siti", "siti@example.com", "hashedpass", "Siti Rahma")
	if err != nil {
		tx2.Rollback()
		t.Fatalf("Failed to insert in second transaction: %v", err)
	}

	// Rollback
	if err := tx2.Rollback(); err != nil {
		t.Fatalf("Failed to rollback transaction: %v", err)
	}

	// Verify data was not inserted
	err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE username = ?", "siti").Scan(&count)
	if err != nil {
		t.Fatalf("Failed to query after rollback: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected 0 users after rollback, got %d", count)
	}
}

// TestDocumentMemberCascade verifies that deleting a member's documents and
// the member itself leaves other members' records untouched.
func TestDocumentMemberCascade(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := openTestDB(t)
	ctx := context.Background()

	res, err := db.ExecContext(ctx, "INSERT INTO users (username, password_hash, full_name) VALUES (?, ?, ?)",
		"budi", "hashedpass", "Budi Santoso")
	if err != nil {
		t.Fatalf("Failed to insert user: %v", err)
	}
	userID, _ := res.LastInsertId()

	members := []string{"m1", "m2"}
	for _, id := range members {
		_, err := db.ExecContext(ctx, "INSERT INTO family_members (id, user_id, name, relation) VALUES (?, ?, ?, ?)",
			id, userID, "Member "+id, "ayah")
		if err != nil {
			t.Fatalf("Failed to insert member %s: %v", id, err)
		}
	}

	docs := map[string]string{"d1": "m1", "d2": "m1", "d3": "m2"}
	for docID, memberID := range docs {
		_, err := db.ExecContext(ctx,
			"INSERT INTO documents (id, user_id, member_id, name, category, original_name) VALUES (?, ?, ?, ?, ?, ?)",
			docID, userID, memberID, "Doc "+docID, "lainnya", docID+".pdf")
		if err != nil {
			t.Fatalf("Failed to insert document %s: %v", docID, err)
		}
	}

	if _, err := db.ExecContext(ctx, "DELETE FROM documents WHERE user_id = ? AND member_id = ?", userID, "m1"); err != nil {
		t.Fatalf("Failed to delete documents: %v", err)
	}
	if _, err := db.ExecContext(ctx, "DELETE FROM family_members WHERE user_id = ? AND id = ?", userID, "m1"); err != nil {
		t.Fatalf("Failed to delete member: %v", err)
	}

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents WHERE user_id = ?", userID).Scan(&count); err != nil {
		t.Fatalf("Failed to count documents: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 remaining document, got %d", count)
	}
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM family_members WHERE user_id = ?", userID).Scan(&count); err != nil {
		t.Fatalf("Failed to count members: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 remaining member, got %d", count)
	}
}
