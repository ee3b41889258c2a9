// Package sqlstore backs the store interfaces with a relational database.
// Document payloads are not stored here; callers pair it with a BlobStore
// and only metadata rows are written.
package sqlstore

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"familydocs/internal/database"
	"familydocs/internal/models"
	"familydocs/internal/repository"
	"familydocs/internal/store"
)

// PollInterval is how often subscriptions re-read the database to detect
// changes made by other sessions.
const PollInterval = 5 * time.Second

// SQLStore implements store.Store over the database dialect layer. It also
// provides transactional cascade deletes, verification tokens and
// polling-based live subscriptions.
type SQLStore struct {
	users     *repository.UserRepository
	sessions  *repository.SessionRepository
	members   *repository.MemberRepository
	documents *repository.DocumentRepository
}

// New creates a SQLStore over an initialized database
func New(db *database.DB) *SQLStore {
	return &SQLStore{
		users:     repository.NewUserRepository(db),
		sessions:  repository.NewSessionRepository(db),
		members:   repository.NewMemberRepository(db),
		documents: repository.NewDocumentRepository(db),
	}
}

// CreateUser registers a new account, rejecting duplicate usernames
func (s *SQLStore) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	existing, err := s.users.GetUserByUsername(ctx, user.Username)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrStoreUnavailable, err)
	}
	if existing != nil {
		return nil, store.ErrUsernameTaken
	}
	created, err := s.users.CreateUser(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrStoreUnavailable, err)
	}
	return created, nil
}

func (s *SQLStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrStoreUnavailable, err)
	}
	return user, nil
}

func (s *SQLStore) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrStoreUnavailable, err)
	}
	return user, nil
}

func (s *SQLStore) CreateSession(ctx context.Context, session *models.Session) error {
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return fmt.Errorf("%w: %v", store.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *SQLStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	session, err := s.sessions.GetSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrStoreUnavailable, err)
	}
	return session, nil
}

func (s *SQLStore) DeleteSession(ctx context.Context, id string) error {
	if err := s.sessions.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("%w: %v", store.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *SQLStore) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	removed, err := s.sessions.DeleteExpiredSessions(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", store.ErrStoreUnavailable, err)
	}
	return removed, nil
}

func (s *SQLStore) LoadFamilyMembers(ctx context.Context, userID int64) ([]models.FamilyMember, error) {
	members, err := s.members.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrStoreUnavailable, err)
	}
	return members, nil
}

func (s *SQLStore) LoadDocuments(ctx context.Context, userID int64) ([]models.Document, error) {
	docs, err := s.documents.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrStoreUnavailable, err)
	}
	return docs, nil
}

func (s *SQLStore) SaveFamilyMember(ctx context.Context, member *models.FamilyMember) (*models.FamilyMember, error) {
	editing := member.ID != ""
	saved, affected, err := s.members.Save(ctx, member)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrStoreUnavailable, err)
	}
	if editing && !affected {
		return nil, store.ErrNotFound
	}
	return saved, nil
}

func (s *SQLStore) DeleteFamilyMember(ctx context.Context, userID int64, id string) error {
	removed, err := s.members.Delete(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrStoreUnavailable, err)
	}
	if !removed {
		return store.ErrNotFound
	}
	return nil
}

func (s *SQLStore) SaveDocumentMetadata(ctx context.Context, doc *models.Document) (*models.Document, error) {
	editing := doc.ID != ""
	saved, affected, err := s.documents.Save(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrStoreUnavailable, err)
	}
	if editing && !affected {
		return nil, store.ErrNotFound
	}
	return saved, nil
}

func (s *SQLStore) DeleteDocumentMetadata(ctx context.Context, userID int64, id string) error {
	removed, err := s.documents.Delete(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrStoreUnavailable, err)
	}
	if !removed {
		return store.ErrNotFound
	}
	return nil
}

// GetDocument retrieves one document's metadata, used to resolve download
// requests without loading the whole collection. Implements
// store.DocumentGetter.
func (s *SQLStore) GetDocument(ctx context.Context, userID int64, id string) (*models.Document, error) {
	doc, err := s.documents.GetByID(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrStoreUnavailable, err)
	}
	if doc == nil {
		return nil, store.ErrNotFound
	}
	return doc, nil
}

// DeleteFamilyMemberCascade removes the member and its documents in a single
// transaction. Implements store.CascadeDeleter.
func (s *SQLStore) DeleteFamilyMemberCascade(ctx context.Context, userID int64, memberID string) (int, error) {
	removed, err := s.documents.DeleteMemberCascade(ctx, userID, memberID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", store.ErrStoreUnavailable, err)
	}
	return removed, nil
}

// CreateVerificationToken implements store.VerificationStore
func (s *SQLStore) CreateVerificationToken(ctx context.Context, token *models.VerificationToken) error {
	if err := s.users.CreateVerificationToken(ctx, token); err != nil {
		return fmt.Errorf("%w: %v", store.ErrStoreUnavailable, err)
	}
	return nil
}

// ConsumeVerificationToken implements store.VerificationStore
func (s *SQLStore) ConsumeVerificationToken(ctx context.Context, token string) (*models.VerificationToken, error) {
	consumed, err := s.users.ConsumeVerificationToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrStoreUnavailable, err)
	}
	if consumed == nil {
		return nil, store.ErrNotFound
	}
	return consumed, nil
}

// Subscribe implements store.Watcher by polling the database. The callback
// fires once with the initial snapshot and again whenever a poll observes a
// change. The returned teardown stops the polling goroutine.
func (s *SQLStore) Subscribe(ctx context.Context, userID int64, fn func(store.Snapshot)) (func(), error) {
	snapshot, err := s.loadSnapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	fn(snapshot)

	subCtx, cancel := context.WithCancel(ctx)
	go func() {
		last := snapshot
		ticker := time.NewTicker(PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-subCtx.Done():
				return
			case <-ticker.C:
				current, err := s.loadSnapshot(subCtx, userID)
				if err != nil {
					continue
				}
				if !reflect.DeepEqual(current, last) {
					last = current
					fn(current)
				}
			}
		}
	}()
	return cancel, nil
}

func (s *SQLStore) loadSnapshot(ctx context.Context, userID int64) (store.Snapshot, error) {
	members, err := s.LoadFamilyMembers(ctx, userID)
	if err != nil {
		return store.Snapshot{}, err
	}
	docs, err := s.LoadDocuments(ctx, userID)
	if err != nil {
		return store.Snapshot{}, err
	}
	return store.Snapshot{Members: members, Documents: docs}, nil
}
