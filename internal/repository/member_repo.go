package repository

import (
	"context"
	"fmt"
	"time"

	"familydocs/internal/database"
	"familydocs/internal/models"

	"github.com/google/uuid"
)

// MemberRepository handles database operations for family members
type MemberRepository struct {
	db *database.DB
}

// NewMemberRepository creates a new family member repository
func NewMemberRepository(db *database.DB) *MemberRepository {
	return &MemberRepository{db: db}
}

// ListByUser retrieves all family members owned by a user, most recent first
func (r *MemberRepository) ListByUser(ctx context.Context, userID int64) ([]models.FamilyMember, error) {
	query := `
		SELECT id, user_id, name, relation, birth_date, notes, created_at
		FROM family_members
		WHERE user_id = ?
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query family members: %w", err)
	}
	defer rows.Close()

	var members []models.FamilyMember
	for rows.Next() {
		var member models.FamilyMember
		if err := rows.Scan(&member.ID, &member.UserID, &member.Name, &member.Relation, &member.BirthDate, &member.Notes, &member.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan family member: %w", err)
		}
		members = append(members, member)
	}
	return members, rows.Err()
}

// Save creates the member when its ID is empty, assigning a store key, and
// replaces the existing row otherwise. Returns the saved record.
func (r *MemberRepository) Save(ctx context.Context, member *models.FamilyMember) (*models.FamilyMember, bool, error) {
	saved := *member

	if saved.ID == "" {
		saved.ID = uuid.New().String()
		if saved.CreatedAt.IsZero() {
			saved.CreatedAt = time.Now()
		}
		query := `
			INSERT INTO family_members (id, user_id, name, relation, birth_date, notes, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`
		if _, err := r.db.ExecContext(ctx, query, saved.ID, saved.UserID, saved.Name, saved.Relation, saved.BirthDate, saved.Notes, saved.CreatedAt); err != nil {
			return nil, false, fmt.Errorf("failed to create family member: %w", err)
		}
		return &saved, true, nil
	}

	query := `
		UPDATE family_members
		SET name = ?, relation = ?, birth_date = ?, notes = ?
		WHERE id = ? AND user_id = ?
	`
	result, err := r.db.ExecContext(ctx, query, saved.Name, saved.Relation, saved.BirthDate, saved.Notes, saved.ID, saved.UserID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to update family member: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to check update result: %w", err)
	}
	return &saved, affected > 0, nil
}

// Delete removes a family member owned by userID. Reports whether a row was removed.
func (r *MemberRepository) Delete(ctx context.Context, userID int64, id string) (bool, error) {
	query := "DELETE FROM family_members WHERE id = ? AND user_id = ?"
	result, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete family member: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check delete result: %w", err)
	}
	return affected > 0, nil
}
