package database

import (
	"testing"
)

func TestDialectProperties(t *testing.T) {
	tests := []struct {
		name                 string
		dialect              Dialect
		driverName           string
		migrationsSubdir     string
		supportsLastInsertId bool
	}{
		{
			name:                 "sqlite",
			dialect:              NewSQLiteDialect(),
			driverName:           "sqlite3",
			migrationsSubdir:     "sqlite",
			supportsLastInsertId: true,
		},
		{
			name:                 "postgres",
			dialect:              NewPostgresDialect(),
			driverName:           "postgres",
			migrationsSubdir:     "postgres",
			supportsLastInsertId: false,
		},
		{
			name:                 "mysql",
			dialect:              NewMySQLDialect(),
			driverName:           "mysql",
			migrationsSubdir:     "mysql",
			supportsLastInsertId: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.dialect.DriverName(); got != tt.driverName {
				t.Errorf("DriverName() = %v, want %v", got, tt.driverName)
			}
			if got := tt.dialect.MigrationsSubdir(); got != tt.migrationsSubdir {
				t.Errorf("MigrationsSubdir() = %v, want %v", got, tt.migrationsSubdir)
			}
			if got := tt.dialect.SupportsLastInsertId(); got != tt.supportsLastInsertId {
				t.Errorf("SupportsLastInsertId() = %v, want %v", got, tt.supportsLastInsertId)
			}
		})
	}
}

func TestRewriteQuery(t *testing.T) {
	tests := []struct {
		name         string
		query        string
		wantSQLite   string
		wantPostgres string
	}{
		{
			name:         "no placeholders",
			query:        "SELECT COUNT(*) FROM documents",
			wantSQLite:   "SELECT COUNT(*) FROM documents",
			wantPostgres: "SELECT COUNT(*) FROM documents",
		},
		{
			name:         "single placeholder",
			query:        "SELECT id FROM family_members WHERE user_id = ?",
			wantSQLite:   "SELECT id FROM family_members WHERE user_id = ?",
			wantPostgres: "SELECT id FROM family_members WHERE user_id = $1",
		},
		{
			name:         "multiple placeholders",
			query:        "DELETE FROM documents WHERE member_id = ? AND user_id = ?",
			wantSQLite:   "DELETE FROM documents WHERE member_id = ? AND user_id = ?",
			wantPostgres: "DELETE FROM documents WHERE member_id = $1 AND user_id = $2",
		},
	}

	sqlite := NewSQLiteDialect()
	postgres := NewPostgresDialect()
	mysql := NewMySQLDialect()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sqlite.RewriteQuery(tt.query); got != tt.wantSQLite {
				t.Errorf("sqlite RewriteQuery() = %q, want %q", got, tt.wantSQLite)
			}
			if got := mysql.RewriteQuery(tt.query); got != tt.wantSQLite {
				t.Errorf("mysql RewriteQuery() = %q, want %q", got, tt.wantSQLite)
			}
			if got := postgres.RewriteQuery(tt.query); got != tt.wantPostgres {
				t.Errorf("postgres RewriteQuery() = %q, want %q", got, tt.wantPostgres)
			}
		})
	}
}
