// Package localstore is the file-backed Store implementation: one users
// record, one active-session record with a 24-hour expiry rule, and one
// familydata_<userID> record per user holding the member and document
// arrays. Document payloads are embedded inline in the record.
package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"familydocs/internal/models"
	"familydocs/internal/store"
)

// Store persists all records as JSON files under a data directory
type Store struct {
	dir string
	mu  sync.Mutex
}

// New creates a file-backed store rooted at dir
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create data dir: %v", store.ErrStoreUnavailable, err)
	}
	return &Store{dir: dir}, nil
}

type familyData struct {
	FamilyMembers []models.FamilyMember `json:"familyMembers"`
	Documents     []models.Document     `json:"documents"`
}

type sessionRecord struct {
	Session   models.Session `json:"session"`
	LoginTime time.Time      `json:"loginTime"`
}

func (s *Store) usersPath() string   { return filepath.Join(s.dir, "users.json") }
func (s *Store) sessionPath() string { return filepath.Join(s.dir, "session.json") }

func (s *Store) familyDataPath(userID int64) string {
	return filepath.Join(s.dir, fmt.Sprintf("familydata_%d.json", userID))
}

// readJSON loads a JSON file into v. A missing file leaves v untouched and
// returns false; any other failure maps to ErrStoreUnavailable.
func readJSON(path string, v interface{}) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: read %s: %v", store.ErrStoreUnavailable, filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("%w: decode %s: %v", store.ErrStoreUnavailable, filepath.Base(path), err)
	}
	return true, nil
}

// writeJSON writes v atomically via a temp file rename
func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %v", store.ErrStoreUnavailable, filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("%w: replace %s: %v", store.ErrStoreUnavailable, filepath.Base(path), err)
	}
	return nil
}

func (s *Store) readFamilyData(userID int64) (*familyData, error) {
	data := &familyData{
		FamilyMembers: []models.FamilyMember{},
		Documents:     []models.Document{},
	}
	if _, err := readJSON(s.familyDataPath(userID), data); err != nil {
		return nil, err
	}
	return data, nil
}

func (s *Store) writeFamilyData(userID int64, data *familyData) error {
	return writeJSON(s.familyDataPath(userID), data)
}

// nextID returns a numeric-timestamp ID, bumped until it is unused
func nextID(taken map[string]bool) string {
	id := time.Now().UnixMilli()
	for taken[strconv.FormatInt(id, 10)] {
		id++
	}
	return strconv.FormatInt(id, 10)
}

// --- UserStore ---

func (s *Store) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var users []models.User
	if _, err := readJSON(s.usersPath(), &users); err != nil {
		return nil, err
	}

	for _, u := range users {
		if u.Username == user.Username {
			return nil, store.ErrUsernameTaken
		}
	}

	created := *user
	created.ID = time.Now().UnixMilli()
	for _, u := range users {
		if u.ID >= created.ID {
			created.ID = u.ID + 1
		}
	}
	now := time.Now()
	created.CreatedAt = now
	created.UpdatedAt = now

	users = append(users, created)
	if err := writeJSON(s.usersPath(), users); err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var users []models.User
	if _, err := readJSON(s.usersPath(), &users); err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].Username == username {
			return &users[i], nil
		}
	}
	return nil, nil
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var users []models.User
	if _, err := readJSON(s.usersPath(), &users); err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].ID == id {
			return &users[i], nil
		}
	}
	return nil, nil
}

// --- SessionStore ---
// The file-backed store keeps a single active session record. A new login
// replaces the previous session.

func (s *Store) CreateSession(ctx context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := sessionRecord{Session: *session, LoginTime: session.CreatedAt}
	return writeJSON(s.sessionPath(), &record)
}

func (s *Store) GetSession(ctx context.Context, id string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var record sessionRecord
	found, err := readJSON(s.sessionPath(), &record)
	if err != nil {
		return nil, err
	}
	if !found || record.Session.ID != id {
		return nil, nil
	}
	// 24 hours from login, regardless of what the record claims
	if time.Since(record.LoginTime) >= store.SessionTTL {
		return nil, nil
	}
	return &record.Session, nil
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var record sessionRecord
	found, err := readJSON(s.sessionPath(), &record)
	if err != nil {
		return err
	}
	if !found || record.Session.ID != id {
		return nil
	}
	if err := os.Remove(s.sessionPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: remove session: %v", store.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var record sessionRecord
	found, err := readJSON(s.sessionPath(), &record)
	if err != nil {
		return 0, err
	}
	if !found || time.Since(record.LoginTime) < store.SessionTTL {
		return 0, nil
	}
	if err := os.Remove(s.sessionPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("%w: remove session: %v", store.ErrStoreUnavailable, err)
	}
	return 1, nil
}

// --- DocumentStore ---

func (s *Store) LoadFamilyMembers(ctx context.Context, userID int64) ([]models.FamilyMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readFamilyData(userID)
	if err != nil {
		return nil, err
	}
	return data.FamilyMembers, nil
}

func (s *Store) LoadDocuments(ctx context.Context, userID int64) ([]models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readFamilyData(userID)
	if err != nil {
		return nil, err
	}
	return data.Documents, nil
}

func (s *Store) SaveFamilyMember(ctx context.Context, member *models.FamilyMember) (*models.FamilyMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readFamilyData(member.UserID)
	if err != nil {
		return nil, err
	}

	saved := *member
	if saved.ID == "" {
		taken := make(map[string]bool, len(data.FamilyMembers))
		for _, m := range data.FamilyMembers {
			taken[m.ID] = true
		}
		saved.ID = nextID(taken)
		data.FamilyMembers = append(data.FamilyMembers, saved)
	} else {
		replaced := false
		for i := range data.FamilyMembers {
			if data.FamilyMembers[i].ID == saved.ID {
				data.FamilyMembers[i] = saved
				replaced = true
				break
			}
		}
		if !replaced {
			return nil, store.ErrNotFound
		}
	}

	if err := s.writeFamilyData(member.UserID, data); err != nil {
		return nil, err
	}
	return &saved, nil
}

func (s *Store) DeleteFamilyMember(ctx context.Context, userID int64, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readFamilyData(userID)
	if err != nil {
		return err
	}

	kept := data.FamilyMembers[:0]
	removed := false
	for _, m := range data.FamilyMembers {
		if m.ID == id {
			removed = true
			continue
		}
		kept = append(kept, m)
	}
	if !removed {
		return store.ErrNotFound
	}
	data.FamilyMembers = kept
	return s.writeFamilyData(userID, data)
}

func (s *Store) SaveDocumentMetadata(ctx context.Context, doc *models.Document) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readFamilyData(doc.UserID)
	if err != nil {
		return nil, err
	}

	saved := *doc
	if saved.ID == "" {
		taken := make(map[string]bool, len(data.Documents))
		for _, d := range data.Documents {
			taken[d.ID] = true
		}
		saved.ID = nextID(taken)
		data.Documents = append(data.Documents, saved)
	} else {
		replaced := false
		for i := range data.Documents {
			if data.Documents[i].ID == saved.ID {
				data.Documents[i] = saved
				replaced = true
				break
			}
		}
		if !replaced {
			return nil, store.ErrNotFound
		}
	}

	if err := s.writeFamilyData(doc.UserID, data); err != nil {
		return nil, err
	}
	return &saved, nil
}

func (s *Store) DeleteDocumentMetadata(ctx context.Context, userID int64, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readFamilyData(userID)
	if err != nil {
		return err
	}

	kept := data.Documents[:0]
	removed := false
	for _, d := range data.Documents {
		if d.ID == id {
			removed = true
			continue
		}
		kept = append(kept, d)
	}
	if !removed {
		return store.ErrNotFound
	}
	data.Documents = kept
	return s.writeFamilyData(userID, data)
}
