package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"familydocs/internal/database"
	"familydocs/internal/models"
)

// UserRepository handles database operations for users and verification tokens
type UserRepository struct {
	db *database.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

// CreateUser inserts a new user into the database
func (r *UserRepository) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	query := `
		INSERT INTO users (username, email, password_hash, full_name, email_verified)
		VALUES (?, ?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningID(query, user.Username, user.Email, user.PasswordHash, user.FullName, user.EmailVerified)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	created := *user
	created.ID = id
	created.CreatedAt = time.Now()
	created.UpdatedAt = created.CreatedAt
	return &created, nil
}

// GetUserByUsername retrieves a user by username
func (r *UserRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `
		SELECT id, username, COALESCE(email, ''), password_hash, full_name, email_verified, created_at, updated_at
		FROM users
		WHERE username = ?
	`
	return r.scanUser(r.db.QueryRowContext(ctx, query, username))
}

// GetUserByID retrieves a user by ID
func (r *UserRepository) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	query := `
		SELECT id, username, COALESCE(email, ''), password_hash, full_name, email_verified, created_at, updated_at
		FROM users
		WHERE id = ?
	`
	return r.scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *UserRepository) scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.FullName,
		&user.EmailVerified,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// CreateVerificationToken stores an email verification token
func (r *UserRepository) CreateVerificationToken(ctx context.Context, token *models.VerificationToken) error {
	query := `
		INSERT INTO verification_tokens (token, user_id, expires_at, used)
		VALUES (?, ?, ?, ?)
	`
	if _, err := r.db.ExecContext(ctx, query, token.Token, token.UserID, token.ExpiresAt, token.Used); err != nil {
		return fmt.Errorf("failed to create verification token: %w", err)
	}
	return nil
}

// ConsumeVerificationToken marks a token as used and flips the owning user's
// email_verified flag in one transaction. Returns nil if the token is
// unknown, already used, or expired.
func (r *UserRepository) ConsumeVerificationToken(ctx context.Context, tokenString string) (*models.VerificationToken, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	token := &models.VerificationToken{}
	query := `
		SELECT token, user_id, expires_at, created_at, used
		FROM verification_tokens
		WHERE token = ?
	`
	err = tx.QueryRowContext(ctx, query, tokenString).Scan(&token.Token, &token.UserID, &token.ExpiresAt, &token.CreatedAt, &token.Used)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get verification token: %w", err)
	}
	if token.Used || token.IsExpired() {
		return nil, nil
	}

	if _, err := tx.ExecContext(ctx, "UPDATE verification_tokens SET used = ? WHERE token = ?", true, tokenString); err != nil {
		return nil, fmt.Errorf("failed to mark token used: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "UPDATE users SET email_verified = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?", true, token.UserID); err != nil {
		return nil, fmt.Errorf("failed to mark email verified: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	token.Used = true
	return token, nil
}
