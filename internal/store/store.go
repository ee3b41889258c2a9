// Package store defines the persistence capabilities the domain layer is
// written against. Two implementations exist: a file-backed store that keeps
// whole per-user records on disk (localstore) and a SQL-backed store with
// external blob storage (sqlstore + blob).
package store

import (
	"context"
	"errors"
	"io"
	"time"

	"familydocs/internal/models"
)

var (
	// ErrStoreUnavailable indicates the backing store could not be reached.
	// Callers keep their prior in-memory state when they see this.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrNotFound indicates a referenced record does not exist
	ErrNotFound = errors.New("record not found")

	// ErrUsernameTaken indicates a registration conflict
	ErrUsernameTaken = errors.New("username already taken")
)

// UserStore persists registered accounts
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

// SessionStore persists the active session pointer
type SessionStore interface {
	CreateSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	DeleteSession(ctx context.Context, id string) error
	DeleteExpiredSessions(ctx context.Context) (int64, error)
}

// DocumentStore persists family members and document metadata, scoped to an
// owning user on every operation
type DocumentStore interface {
	LoadFamilyMembers(ctx context.Context, userID int64) ([]models.FamilyMember, error)
	LoadDocuments(ctx context.Context, userID int64) ([]models.Document, error)

	// SaveFamilyMember creates the record when its ID is empty (the store
	// assigns the key) and replaces it otherwise.
	SaveFamilyMember(ctx context.Context, member *models.FamilyMember) (*models.FamilyMember, error)
	DeleteFamilyMember(ctx context.Context, userID int64, id string) error

	SaveDocumentMetadata(ctx context.Context, doc *models.Document) (*models.Document, error)
	DeleteDocumentMetadata(ctx context.Context, userID int64, id string) error
}

// Store combines the capabilities every backend must provide
type Store interface {
	UserStore
	SessionStore
	DocumentStore
}

// BlobStore persists document payload bytes outside the metadata record.
// The file-backed store embeds payloads inline and needs no BlobStore.
type BlobStore interface {
	// Put stores the content at path and returns a URL it can be fetched from
	Put(ctx context.Context, path string, r io.Reader, size int64) (string, error)
	Delete(ctx context.Context, path string) error
}

// Snapshot is a full view of one user's records, delivered by a Watcher
type Snapshot struct {
	Members   []models.FamilyMember
	Documents []models.Document
}

// Watcher is implemented by stores that can push live updates. Subscribe
// delivers snapshots until the returned teardown function is called; callers
// must tear the subscription down on logout.
type Watcher interface {
	Subscribe(ctx context.Context, userID int64, fn func(Snapshot)) (func(), error)
}

// CascadeDeleter is implemented by stores that can delete a family member and
// all its documents atomically. This is the strict alternative to the
// baseline document-by-document cascade; the baseline remains the default.
type CascadeDeleter interface {
	// DeleteFamilyMemberCascade removes the member and every document
	// referencing it in one transaction, returning the document count.
	DeleteFamilyMemberCascade(ctx context.Context, userID int64, memberID string) (int, error)
}

// DocumentGetter is implemented by stores that can fetch one document record
// directly, without loading the user's whole collection. Download tokens can
// outlive the in-memory state, so lookups for them fall back to this.
type DocumentGetter interface {
	GetDocument(ctx context.Context, userID int64, id string) (*models.Document, error)
}

// VerificationStore persists email verification tokens. Only the SQL backend
// implements it; the file-backed store has no verification flow.
type VerificationStore interface {
	CreateVerificationToken(ctx context.Context, token *models.VerificationToken) error
	ConsumeVerificationToken(ctx context.Context, token string) (*models.VerificationToken, error)
}

// SessionTTL is the lifetime of a session: 24 hours from login
const SessionTTL = 24 * time.Hour
