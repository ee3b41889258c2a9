package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"familydocs/internal/database"
	"familydocs/internal/models"

	"github.com/google/uuid"
)

// DocumentRepository handles database operations for document metadata.
// File payloads live in blob storage; only storage_path and download_url
// are recorded here.
type DocumentRepository struct {
	db *database.DB
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *database.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

const documentColumns = "id, user_id, member_id, name, category, description, original_name, file_type, file_size, download_url, storage_path, uploaded_at"

func scanDocument(scanner interface {
	Scan(dest ...interface{}) error
}) (*models.Document, error) {
	var doc models.Document
	err := scanner.Scan(&doc.ID, &doc.UserID, &doc.MemberID, &doc.Name, &doc.Category, &doc.Description, &doc.OriginalName, &doc.FileType, &doc.FileSize, &doc.DownloadURL, &doc.StoragePath, &doc.UploadedAt)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListByUser retrieves all documents owned by a user, most recently uploaded first
func (r *DocumentRepository) ListByUser(ctx context.Context, userID int64) ([]models.Document, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM documents
		WHERE user_id = ?
		ORDER BY uploaded_at DESC
	`, documentColumns)
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// GetByID retrieves a single document owned by userID. Returns nil when not found.
func (r *DocumentRepository) GetByID(ctx context.Context, userID int64, id string) (*models.Document, error) {
	query := fmt.Sprintf("SELECT %s FROM documents WHERE id = ? AND user_id = ?", documentColumns)
	doc, err := scanDocument(r.db.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// Save creates the document when its ID is empty, assigning a store key, and
// replaces the existing row otherwise. Returns the saved record.
func (r *DocumentRepository) Save(ctx context.Context, doc *models.Document) (*models.Document, bool, error) {
	saved := *doc

	if saved.ID == "" {
		saved.ID = uuid.New().String()
		if saved.UploadedAt.IsZero() {
			saved.UploadedAt = time.Now()
		}
		query := `
			INSERT INTO documents (id, user_id, member_id, name, category, description, original_name, file_type, file_size, download_url, storage_path, uploaded_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		if _, err := r.db.ExecContext(ctx, query, saved.ID, saved.UserID, saved.MemberID, saved.Name, saved.Category, saved.Description, saved.OriginalName, saved.FileType, saved.FileSize, saved.DownloadURL, saved.StoragePath, saved.UploadedAt); err != nil {
			return nil, false, fmt.Errorf("failed to create document: %w", err)
		}
		return &saved, true, nil
	}

	query := `
		UPDATE documents
		SET member_id = ?, name = ?, category = ?, description = ?, original_name = ?, file_type = ?, file_size = ?, download_url = ?, storage_path = ?
		WHERE id = ? AND user_id = ?
	`
	result, err := r.db.ExecContext(ctx, query, saved.MemberID, saved.Name, saved.Category, saved.Description, saved.OriginalName, saved.FileType, saved.FileSize, saved.DownloadURL, saved.StoragePath, saved.ID, saved.UserID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to update document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to check update result: %w", err)
	}
	return &saved, affected > 0, nil
}

// Delete removes a document owned by userID. Reports whether a row was removed.
func (r *DocumentRepository) Delete(ctx context.Context, userID int64, id string) (bool, error) {
	query := "DELETE FROM documents WHERE id = ? AND user_id = ?"
	result, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check delete result: %w", err)
	}
	return affected > 0, nil
}

// DeleteMemberCascade removes a family member and all of its documents in a
// single transaction. Returns the number of documents removed.
func (r *DocumentRepository) DeleteMemberCascade(ctx context.Context, userID int64, memberID string) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	docResult, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE member_id = ? AND user_id = ?", memberID, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete member documents: %w", err)
	}
	removed, err := docResult.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check delete result: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM family_members WHERE id = ? AND user_id = ?", memberID, userID); err != nil {
		return 0, fmt.Errorf("failed to delete family member: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit cascade delete: %w", err)
	}
	return int(removed), nil
}
