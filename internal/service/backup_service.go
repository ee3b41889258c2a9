package service

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"familydocs/internal/database"
)

// BackupData is the portable backup format: a single JSON document holding
// every account with its family members and document metadata. Blob payloads
// are not included; storage paths are preserved so a restore against the same
// bucket keeps documents downloadable.
type BackupData struct {
	Version    string         `json:"version"`
	ExportedAt time.Time      `json:"exported_at"`
	Users      []UserBackup   `json:"users"`
	Members    []MemberBackup `json:"members"`
	Documents  []DocBackup    `json:"documents"`
}

// UserBackup represents a user record for backup
type UserBackup struct {
	ID            int64     `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	PasswordHash  string    `json:"password_hash"`
	FullName      string    `json:"full_name"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// MemberBackup represents a family member record for backup
type MemberBackup struct {
	ID        string     `json:"id"`
	UserID    int64      `json:"user_id"`
	Name      string     `json:"name"`
	Relation  string     `json:"relation"`
	BirthDate *time.Time `json:"birth_date,omitempty"`
	Notes     string     `json:"notes"`
	CreatedAt time.Time  `json:"created_at"`
}

// DocBackup represents a document metadata record for backup
type DocBackup struct {
	ID           string    `json:"id"`
	UserID       int64     `json:"user_id"`
	MemberID     string    `json:"member_id"`
	Name         string    `json:"name"`
	Category     string    `json:"category"`
	Description  string    `json:"description"`
	OriginalName string    `json:"original_name"`
	FileType     string    `json:"file_type"`
	FileSize     int64     `json:"file_size"`
	DownloadURL  string    `json:"download_url"`
	StoragePath  string    `json:"storage_path"`
	UploadedAt   time.Time `json:"uploaded_at"`
}

// BackupService handles database backup and restore operations
type BackupService struct {
	db *database.DB
}

// NewBackupService creates a new backup service
func NewBackupService(db *database.DB) *BackupService {
	return &BackupService{db: db}
}

// Export creates a complete backup of the database to a file
func (s *BackupService) Export(outputPath string) error {
	log.Println("Starting database export...")

	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	if err := s.ExportToWriter(file); err != nil {
		return err
	}

	log.Printf("Database exported successfully to %s", outputPath)
	return nil
}

// ExportToWriter exports the database as indented JSON to a writer
func (s *BackupService) ExportToWriter(w io.Writer) error {
	backup := &BackupData{
		Version:    "1.0",
		ExportedAt: time.Now(),
	}

	if err := s.exportUsers(backup); err != nil {
		return fmt.Errorf("failed to export users: %w", err)
	}
	if err := s.exportMembers(backup); err != nil {
		return fmt.Errorf("failed to export family members: %w", err)
	}
	if err := s.exportDocuments(backup); err != nil {
		return fmt.Errorf("failed to export documents: %w", err)
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(backup); err != nil {
		return fmt.Errorf("failed to encode backup: %w", err)
	}

	log.Printf("Exported: %d users, %d members, %d documents",
		len(backup.Users), len(backup.Members), len(backup.Documents))
	return nil
}

// Import restores a database from a backup file
func (s *BackupService) Import(inputPath string) error {
	log.Printf("Starting database import from %s...", inputPath)

	file, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	defer file.Close()

	return s.ImportFromReader(file)
}

// ImportFromReader restores a database from a backup stream
func (s *BackupService) ImportFromReader(reader io.Reader) error {
	var backup BackupData
	if err := json.NewDecoder(reader).Decode(&backup); err != nil {
		return fmt.Errorf("failed to decode backup: %w", err)
	}

	log.Printf("Backup version: %s, exported at: %s", backup.Version, backup.ExportedAt)

	// Import in dependency order
	if err := s.importUsers(backup.Users); err != nil {
		return fmt.Errorf("failed to import users: %w", err)
	}
	if err := s.importMembers(backup.Members); err != nil {
		return fmt.Errorf("failed to import family members: %w", err)
	}
	if err := s.importDocuments(backup.Documents); err != nil {
		return fmt.Errorf("failed to import documents: %w", err)
	}

	log.Println("Database import completed successfully")
	return nil
}

func (s *BackupService) exportUsers(backup *BackupData) error {
	query := "SELECT id, username, COALESCE(email, ''), password_hash, full_name, email_verified, created_at, updated_at FROM users ORDER BY id"
	rows, err := s.db.Query(query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var u UserBackup
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FullName, &u.EmailVerified, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return err
		}
		backup.Users = append(backup.Users, u)
	}
	return rows.Err()
}

func (s *BackupService) exportMembers(backup *BackupData) error {
	query := "SELECT id, user_id, name, relation, birth_date, notes, created_at FROM family_members ORDER BY user_id, created_at"
	rows, err := s.db.Query(query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var m MemberBackup
		var birthDate sql.NullTime
		if err := rows.Scan(&m.ID, &m.UserID, &m.Name, &m.Relation, &birthDate, &m.Notes, &m.CreatedAt); err != nil {
			return err
		}
		if birthDate.Valid {
			m.BirthDate = &birthDate.Time
		}
		backup.Members = append(backup.Members, m)
	}
	return rows.Err()
}

func (s *BackupService) exportDocuments(backup *BackupData) error {
	query := "SELECT id, user_id, member_id, name, category, description, original_name, file_type, file_size, download_url, storage_path, uploaded_at FROM documents ORDER BY user_id, uploaded_at"
	rows, err := s.db.Query(query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var d DocBackup
		if err := rows.Scan(&d.ID, &d.UserID, &d.MemberID, &d.Name, &d.Category, &d.Description, &d.OriginalName, &d.FileType, &d.FileSize, &d.DownloadURL, &d.StoragePath, &d.UploadedAt); err != nil {
			return err
		}
		backup.Documents = append(backup.Documents, d)
	}
	return rows.Err()
}

func (s *BackupService) importUsers(users []UserBackup) error {
	log.Printf("Importing %d users...", len(users))
	for _, u := range users {
		query := "INSERT INTO users (id, username, email, password_hash, full_name, email_verified, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)"
		if _, err := s.db.Exec(query, u.ID, u.Username, u.Email, u.PasswordHash, u.FullName, u.EmailVerified, u.CreatedAt, u.UpdatedAt); err != nil {
			return fmt.Errorf("failed to import user %d: %w", u.ID, err)
		}
	}
	return nil
}

func (s *BackupService) importMembers(members []MemberBackup) error {
	log.Printf("Importing %d family members...", len(members))
	for _, m := range members {
		query := "INSERT INTO family_members (id, user_id, name, relation, birth_date, notes, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)"
		if _, err := s.db.Exec(query, m.ID, m.UserID, m.Name, m.Relation, m.BirthDate, m.Notes, m.CreatedAt); err != nil {
			return fmt.Errorf("failed to import family member %s: %w", m.ID, err)
		}
	}
	return nil
}

func (s *BackupService) importDocuments(documents []DocBackup) error {
	log.Printf("Importing %d documents...", len(documents))
	for _, d := range documents {
		query := "INSERT INTO documents (id, user_id, member_id, name, category, description, original_name, file_type, file_size, download_url, storage_path, uploaded_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
		if _, err := s.db.Exec(query, d.ID, d.UserID, d.MemberID, d.Name, d.Category, d.Description, d.OriginalName, d.FileType, d.FileSize, d.DownloadURL, d.StoragePath, d.UploadedAt); err != nil {
			return fmt.Errorf("failed to import document %s: %w", d.ID, err)
		}
	}
	return nil
}
