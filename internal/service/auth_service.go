package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"familydocs/internal/models"
	"familydocs/internal/security"
	"familydocs/internal/store"
	"familydocs/internal/validation"
)

var ErrUsernameTaken = store.ErrUsernameTaken

// AuthService handles account registration, login and session validation
type AuthService struct {
	store           store.Store
	email           *EmailService
	sessionDuration time.Duration
}

// NewAuthService creates a new auth service. email may be nil when outbound
// email is not configured.
func NewAuthService(st store.Store, email *EmailService, sessionDuration time.Duration) *AuthService {
	if sessionDuration <= 0 {
		sessionDuration = store.SessionTTL
	}
	return &AuthService{
		store:           st,
		email:           email,
		sessionDuration: sessionDuration,
	}
}

// Register creates a new account. The username must be unique and at least
// three characters, the password at least six, and a full name is required.
// When the store tracks verification tokens and an email address was given, a
// verification email is sent.
func (s *AuthService) Register(ctx context.Context, username, password, fullName, email string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if err := validation.ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := validation.ValidatePassword(password); err != nil {
		return nil, err
	}
	if err := validation.ValidateFullName(fullName); err != nil {
		return nil, err
	}
	if email != "" {
		if err := validation.ValidateEmail(email); err != nil {
			return nil, err
		}
	}

	passwordHash, err := security.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.store.CreateUser(ctx, &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		FullName:     strings.TrimSpace(fullName),
	})
	if err != nil {
		if errors.Is(err, store.ErrUsernameTaken) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	if email != "" {
		if err := s.RequestEmailVerification(ctx, user); err != nil {
			// Registration stands; the user can request another email later
			log.Printf("Warning: failed to send verification email to %s: %v", email, err)
		}
	}

	return user, nil
}

// Login authenticates a user and creates a session valid for 24 hours
func (s *AuthService) Login(ctx context.Context, username, password string) (*models.Session, *models.User, error) {
	user, err := s.store.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, nil, ErrInvalidCredentials
	}
	if !security.CheckPassword(password, user.PasswordHash) {
		return nil, nil, ErrInvalidCredentials
	}

	// Backends with a verification flow require the address to be
	// confirmed before sign-in. Accounts without an email are exempt.
	if _, ok := s.store.(store.VerificationStore); ok && user.Email != "" && !user.EmailVerified {
		return nil, nil, ErrEmailNotVerified
	}

	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return session, user, nil
}

// OAuthLogin signs a user in through an external identity provider, creating
// the account on first sign-in. Provider accounts are keyed by a synthetic
// username so they never collide with password accounts. Provider-asserted
// email addresses count as verified.
func (s *AuthService) OAuthLogin(ctx context.Context, provider, subject, email, name string) (*models.Session, *models.User, error) {
	if provider == "" || subject == "" {
		return nil, nil, errors.New("missing oauth provider information")
	}

	username := provider + ":" + subject
	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to lookup oauth user: %w", err)
	}

	if user == nil {
		if name == "" {
			if email != "" {
				name = strings.Split(email, "@")[0]
			} else {
				name = provider + " user"
			}
		}
		// Provider accounts never log in with a password, but the column is
		// required, so store a hash of random bytes.
		randomSecret, err := security.GenerateToken()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to generate oauth secret: %w", err)
		}
		randomHash, err := security.HashPassword(randomSecret)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to generate oauth password hash: %w", err)
		}
		user, err = s.store.CreateUser(ctx, &models.User{
			Username:      username,
			Email:         email,
			PasswordHash:  randomHash,
			FullName:      name,
			EmailVerified: email != "",
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create oauth user: %w", err)
		}
	}

	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return session, user, nil
}

// ValidateSession checks a session and returns the associated user. Expired
// sessions are deleted as they are seen.
func (s *AuthService) ValidateSession(ctx context.Context, sessionID string) (*models.User, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if session.IsExpired() {
		_ = s.store.DeleteSession(ctx, sessionID)
		return nil, ErrSessionExpired
	}

	user, err := s.store.GetUserByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, ErrSessionNotFound
	}
	return user, nil
}

// Logout invalidates a session
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if err := s.store.DeleteSession(ctx, sessionID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to logout: %w", err)
	}
	return nil
}

// CleanupExpiredSessions removes expired sessions from the store
func (s *AuthService) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	removed, err := s.store.DeleteExpiredSessions(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup sessions: %w", err)
	}
	return removed, nil
}

// RequestEmailVerification issues a verification token for the user and
// emails them the confirmation link. A no-op when the store does not track
// verification tokens.
func (s *AuthService) RequestEmailVerification(ctx context.Context, user *models.User) error {
	verifier, ok := s.store.(store.VerificationStore)
	if !ok || user.Email == "" || user.EmailVerified {
		return nil
	}

	tokenValue, err := security.GenerateToken()
	if err != nil {
		return fmt.Errorf("failed to generate verification token: %w", err)
	}
	token := &models.VerificationToken{
		Token:     tokenValue,
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}
	if err := verifier.CreateVerificationToken(ctx, token); err != nil {
		return fmt.Errorf("failed to create verification token: %w", err)
	}

	if s.email != nil && s.email.IsEnabled() {
		if err := s.email.SendVerificationEmail(ctx, user.Email, user.FullName, token.Token); err != nil {
			return fmt.Errorf("failed to send verification email: %w", err)
		}
	}
	return nil
}

// VerifyEmail consumes a verification token and marks the account verified
func (s *AuthService) VerifyEmail(ctx context.Context, token string) error {
	verifier, ok := s.store.(store.VerificationStore)
	if !ok {
		return errors.New("email verification is not supported by this store")
	}

	consumed, err := verifier.ConsumeVerificationToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errors.New("invalid or expired verification link")
		}
		return fmt.Errorf("failed to verify email: %w", err)
	}
	if consumed == nil {
		return errors.New("invalid or expired verification link")
	}
	return nil
}

func (s *AuthService) createSession(ctx context.Context, userID int64) (*models.Session, error) {
	session := &models.Session{
		ID:        security.GenerateSessionID(),
		UserID:    userID,
		ExpiresAt: time.Now().Add(s.sessionDuration),
		CreatedAt: time.Now(),
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}
