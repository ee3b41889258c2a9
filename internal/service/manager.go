package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"familydocs/internal/blob"
	"familydocs/internal/models"
	"familydocs/internal/store"
	"familydocs/internal/validation"
)

// Manager owns the family member and document collections for signed-in
// users. Each user's records are loaded from the store into memory once and
// every read serves from memory; writes go to the store first and the
// in-memory copy is updated only after the store accepts them.
type Manager struct {
	store         store.DocumentStore
	blobs         store.BlobStore
	maxUploadSize int64

	mu        sync.RWMutex
	state     map[int64]*userState
	teardowns map[int64]func()
}

type userState struct {
	members   []models.FamilyMember
	documents []models.Document
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithBlobStore routes document payloads through external blob storage.
// Without it payloads are embedded in the document record, which is how the
// file-backed store persists them.
func WithBlobStore(blobs store.BlobStore) ManagerOption {
	return func(m *Manager) { m.blobs = blobs }
}

// WithUploadLimit overrides the maximum accepted payload size
func WithUploadLimit(maxBytes int64) ManagerOption {
	return func(m *Manager) { m.maxUploadSize = maxBytes }
}

// DefaultUploadLimit caps document payloads at 10 MiB
const DefaultUploadLimit = 10 * 1024 * 1024

// NewManager creates a document manager over the given store
func NewManager(docStore store.DocumentStore, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:         docStore,
		maxUploadSize: DefaultUploadLimit,
		state:         make(map[int64]*userState),
		teardowns:     make(map[int64]func()),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// LoadForUser reads the user's family members and documents from the store
// into memory. When the store cannot be reached the previous in-memory state
// is kept untouched and the error is returned.
func (m *Manager) LoadForUser(ctx context.Context, userID int64) error {
	members, err := m.store.LoadFamilyMembers(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load family members: %w", err)
	}
	documents, err := m.store.LoadDocuments(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load documents: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.state[userID] = &userState{members: members, documents: documents}
	m.sortLocked(userID)
	return nil
}

// EnsureLoaded loads the user's records on first access after login or a
// restart, and starts a live subscription when the store supports one. Users
// already in memory are left untouched.
func (m *Manager) EnsureLoaded(ctx context.Context, userID int64) error {
	m.mu.RLock()
	_, loaded := m.state[userID]
	m.mu.RUnlock()
	if loaded {
		return nil
	}
	if err := m.LoadForUser(ctx, userID); err != nil {
		return err
	}
	// The subscription outlives the triggering request; Unload cancels it.
	return m.Subscribe(context.Background(), userID)
}

// Unload drops the user's in-memory state and tears down any live
// subscription. Called on logout.
func (m *Manager) Unload(userID int64) {
	m.mu.Lock()
	teardown := m.teardowns[userID]
	delete(m.teardowns, userID)
	delete(m.state, userID)
	m.mu.Unlock()

	if teardown != nil {
		teardown()
	}
}

// Close tears down every live subscription
func (m *Manager) Close() {
	m.mu.Lock()
	teardowns := m.teardowns
	m.teardowns = make(map[int64]func())
	m.mu.Unlock()

	for _, teardown := range teardowns {
		teardown()
	}
}

// Subscribe starts a live subscription for the user when the store supports
// one. Incoming snapshots replace the in-memory state. Stores without live
// updates are served purely from LoadForUser and this is a no-op.
func (m *Manager) Subscribe(ctx context.Context, userID int64) error {
	watcher, ok := m.store.(store.Watcher)
	if !ok {
		return nil
	}

	teardown, err := watcher.Subscribe(ctx, userID, func(snap store.Snapshot) {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.state[userID] = &userState{members: snap.Members, documents: snap.Documents}
		m.sortLocked(userID)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	m.mu.Lock()
	if old := m.teardowns[userID]; old != nil {
		old()
	}
	m.teardowns[userID] = teardown
	m.mu.Unlock()
	return nil
}

// FamilyMembers returns the user's family members, most recently added first
func (m *Manager) FamilyMembers(userID int64) []models.FamilyMember {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.state[userID]
	if !ok {
		return nil
	}
	out := make([]models.FamilyMember, len(st.members))
	copy(out, st.members)
	return out
}

// GetFamilyMember returns one family member by ID
func (m *Manager) GetFamilyMember(userID int64, id string) (*models.FamilyMember, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.state[userID]
	if !ok {
		return nil, ErrMemberNotFound
	}
	for i := range st.members {
		if st.members[i].ID == id {
			member := st.members[i]
			return &member, nil
		}
	}
	return nil, ErrMemberNotFound
}

// UpsertFamilyMember creates a family member when id is empty and updates the
// existing one otherwise. The store assigns IDs on create.
func (m *Manager) UpsertFamilyMember(ctx context.Context, userID int64, id string, req models.CreateFamilyMemberRequest) (*models.FamilyMember, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, validation.ValidationError{Field: "name", Message: "name is required"}
	}
	if !models.IsValidRelation(req.Relation) {
		return nil, validation.ValidationError{Field: "relation", Message: "unknown relation"}
	}

	var birthDate *time.Time
	if req.BirthDate != "" {
		parsed, err := time.Parse("2006-01-02", req.BirthDate)
		if err != nil {
			return nil, validation.ValidationError{Field: "birth_date", Message: "birth date must be YYYY-MM-DD"}
		}
		birthDate = &parsed
	}

	member := &models.FamilyMember{
		ID:        id,
		UserID:    userID,
		Name:      name,
		Relation:  req.Relation,
		BirthDate: birthDate,
		Notes:     strings.TrimSpace(req.Notes),
	}
	if id != "" {
		existing, err := m.GetFamilyMember(userID, id)
		if err != nil {
			return nil, err
		}
		member.CreatedAt = existing.CreatedAt
	}

	saved, err := m.store.SaveFamilyMember(ctx, member)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("failed to save family member: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.stateLocked(userID)
	replaced := false
	for i := range st.members {
		if st.members[i].ID == saved.ID {
			st.members[i] = *saved
			replaced = true
			break
		}
	}
	if !replaced {
		st.members = append(st.members, *saved)
	}
	m.sortLocked(userID)
	return saved, nil
}

// DeleteFamilyMember removes a family member and every document that belongs
// to them. Documents are removed first, one at a time; when a document delete
// fails the member is kept and a PartialCascadeError reports how far the
// cascade got. Retrying resumes with the remaining documents.
func (m *Manager) DeleteFamilyMember(ctx context.Context, userID int64, memberID string) (int, error) {
	if _, err := m.GetFamilyMember(userID, memberID); err != nil {
		return 0, err
	}

	docs := m.memberDocuments(userID, memberID)
	removed := 0
	for _, doc := range docs {
		if err := m.DeleteDocument(ctx, userID, doc.ID); err != nil {
			return removed, &PartialCascadeError{
				Removed:   removed,
				Remaining: len(docs) - removed,
				Err:       err,
			}
		}
		removed++
	}

	if err := m.store.DeleteFamilyMember(ctx, userID, memberID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return removed, ErrMemberNotFound
		}
		return removed, fmt.Errorf("failed to delete family member: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.stateLocked(userID)
	for i := range st.members {
		if st.members[i].ID == memberID {
			st.members = append(st.members[:i], st.members[i+1:]...)
			break
		}
	}
	return removed, nil
}

// DeleteFamilyMemberStrict removes a member and their documents in a single
// store transaction when the store supports it, falling back to the
// document-by-document cascade otherwise. Blob payloads of the removed
// documents are cleaned up afterwards; a failed blob delete leaves the
// payload orphaned but never undoes the delete.
func (m *Manager) DeleteFamilyMemberStrict(ctx context.Context, userID int64, memberID string) (int, error) {
	cascader, ok := m.store.(store.CascadeDeleter)
	if !ok {
		return m.DeleteFamilyMember(ctx, userID, memberID)
	}
	if _, err := m.GetFamilyMember(userID, memberID); err != nil {
		return 0, err
	}

	docs := m.memberDocuments(userID, memberID)
	removed, err := cascader.DeleteFamilyMemberCascade(ctx, userID, memberID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete family member: %w", err)
	}

	if m.blobs != nil {
		for _, doc := range docs {
			if doc.StoragePath == "" {
				continue
			}
			if err := m.blobs.Delete(ctx, doc.StoragePath); err != nil {
				log.Printf("Warning: failed to delete blob %s: %v", doc.StoragePath, err)
			}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.stateLocked(userID)
	for i := range st.members {
		if st.members[i].ID == memberID {
			st.members = append(st.members[:i], st.members[i+1:]...)
			break
		}
	}
	kept := st.documents[:0]
	for _, doc := range st.documents {
		if doc.MemberID != memberID {
			kept = append(kept, doc)
		}
	}
	st.documents = kept
	return removed, nil
}

// Documents returns all of the user's documents, most recently uploaded first
func (m *Manager) Documents(userID int64) []models.Document {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.state[userID]
	if !ok {
		return nil
	}
	out := make([]models.Document, len(st.documents))
	copy(out, st.documents)
	return out
}

// GetDocument returns one document by ID
func (m *Manager) GetDocument(userID int64, id string) (*models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.state[userID]
	if !ok {
		return nil, ErrDocumentNotFound
	}
	for i := range st.documents {
		if st.documents[i].ID == id {
			doc := st.documents[i]
			return &doc, nil
		}
	}
	return nil, ErrDocumentNotFound
}

// UpsertDocument creates a document when id is empty and updates the existing
// one otherwise. A nil payload on update keeps the stored file; a payload is
// required on create. The payload is persisted before the metadata record so
// a failed upload never leaves metadata pointing at nothing.
func (m *Manager) UpsertDocument(ctx context.Context, userID int64, id string, req models.CreateDocumentRequest, payload io.Reader, originalName string, size int64) (*models.Document, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, validation.ValidationError{Field: "name", Message: "document name is required"}
	}
	if !models.IsValidCategory(req.Category) {
		return nil, validation.ValidationError{Field: "category", Message: "unknown category"}
	}
	if _, err := m.GetFamilyMember(userID, req.MemberID); err != nil {
		return nil, validation.ValidationError{Field: "member_id", Message: "family member does not exist"}
	}
	if id == "" && payload == nil {
		return nil, validation.ValidationError{Field: "file", Message: "a file is required"}
	}
	if payload != nil && size > m.maxUploadSize {
		return nil, ErrFileTooLarge
	}

	doc := &models.Document{
		ID:          id,
		UserID:      userID,
		Name:        name,
		MemberID:    req.MemberID,
		Category:    req.Category,
		Description: strings.TrimSpace(req.Description),
	}
	if id != "" {
		existing, err := m.GetDocument(userID, id)
		if err != nil {
			return nil, err
		}
		doc.OriginalName = existing.OriginalName
		doc.FileType = existing.FileType
		doc.FileSize = existing.FileSize
		doc.Data = existing.Data
		doc.DownloadURL = existing.DownloadURL
		doc.StoragePath = existing.StoragePath
		doc.UploadedAt = existing.UploadedAt
	} else {
		doc.UploadedAt = time.Now()
	}

	if payload != nil {
		doc.OriginalName = originalName
		doc.FileType = fileExtension(originalName)
		doc.FileSize = size

		if m.blobs != nil {
			path := blob.DocumentPath(userID, doc.UploadedAt, originalName)
			url, err := m.blobs.Put(ctx, path, io.LimitReader(payload, m.maxUploadSize), size)
			if err != nil {
				return nil, fmt.Errorf("failed to store document file: %w", err)
			}
			doc.StoragePath = path
			doc.DownloadURL = url
			doc.Data = nil
		} else {
			data, err := io.ReadAll(io.LimitReader(payload, m.maxUploadSize+1))
			if err != nil {
				return nil, fmt.Errorf("failed to read document file: %w", err)
			}
			if int64(len(data)) > m.maxUploadSize {
				return nil, ErrFileTooLarge
			}
			doc.Data = data
			doc.FileSize = int64(len(data))
			doc.StoragePath = ""
			doc.DownloadURL = ""
		}
	}

	saved, err := m.store.SaveDocumentMetadata(ctx, doc)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to save document: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.stateLocked(userID)
	replaced := false
	for i := range st.documents {
		if st.documents[i].ID == saved.ID {
			st.documents[i] = *saved
			replaced = true
			break
		}
	}
	if !replaced {
		st.documents = append(st.documents, *saved)
	}
	m.sortLocked(userID)
	return saved, nil
}

// DeleteDocument removes a document. The metadata record goes first; a
// failure to delete the blob payload afterwards is logged and the delete
// still succeeds.
func (m *Manager) DeleteDocument(ctx context.Context, userID int64, id string) error {
	doc, err := m.GetDocument(userID, id)
	if err != nil {
		return err
	}

	if err := m.store.DeleteDocumentMetadata(ctx, userID, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrDocumentNotFound
		}
		return fmt.Errorf("failed to delete document: %w", err)
	}

	if m.blobs != nil && doc.StoragePath != "" {
		if err := m.blobs.Delete(ctx, doc.StoragePath); err != nil {
			log.Printf("Warning: failed to delete blob %s: %v", doc.StoragePath, err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.stateLocked(userID)
	for i := range st.documents {
		if st.documents[i].ID == id {
			st.documents = append(st.documents[:i], st.documents[i+1:]...)
			break
		}
	}
	return nil
}

// OpenDocument returns a reader over a document's payload. Inline payloads
// are served from memory; blob-backed documents are fetched through the
// opener when one is wired, otherwise callers should redirect to DownloadURL.
func (m *Manager) OpenDocument(ctx context.Context, userID int64, id string) (*models.Document, io.ReadCloser, error) {
	doc, err := m.GetDocument(userID, id)
	if err != nil {
		// A download token can outlive the in-memory state, for example
		// across a logout or a server restart. Fall back to a direct
		// store lookup when the backend supports one.
		getter, ok := m.store.(store.DocumentGetter)
		if !ok {
			return nil, nil, err
		}
		doc, err = getter.GetDocument(ctx, userID, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, nil, ErrDocumentNotFound
			}
			return nil, nil, fmt.Errorf("failed to look up document: %w", err)
		}
	}
	if doc.Data != nil {
		return doc, io.NopCloser(bytes.NewReader(doc.Data)), nil
	}
	return doc, nil, nil
}

// FilterDocuments returns the documents matching every given criterion. An
// empty memberID or category matches everything, so both empty returns the
// full collection.
func (m *Manager) FilterDocuments(userID int64, memberID, category string) []models.Document {
	var out []models.Document
	for _, doc := range m.Documents(userID) {
		if memberID != "" && doc.MemberID != memberID {
			continue
		}
		if category != "" && doc.Category != category {
			continue
		}
		out = append(out, doc)
	}
	return out
}

// SearchDocuments returns the documents whose name, description or category
// label contains the term, compared case-insensitively. An empty term matches
// everything.
func (m *Manager) SearchDocuments(userID int64, term string) []models.Document {
	term = strings.ToLower(strings.TrimSpace(term))
	var out []models.Document
	for _, doc := range m.Documents(userID) {
		if term == "" ||
			strings.Contains(strings.ToLower(doc.Name), term) ||
			strings.Contains(strings.ToLower(doc.Description), term) ||
			strings.Contains(strings.ToLower(models.CategoryLabel(doc.Category)), term) {
			out = append(out, doc)
		}
	}
	return out
}

// RecentDocuments returns up to n documents, most recently uploaded first.
// Documents sharing an upload time keep their stored order.
func (m *Manager) RecentDocuments(userID int64, n int) []models.Document {
	docs := m.Documents(userID)
	if n < len(docs) {
		docs = docs[:n]
	}
	return docs
}

// CategoryCounts returns how many of the user's documents fall in each
// category. Categories with no documents are omitted.
func (m *Manager) CategoryCounts(userID int64) map[string]int {
	counts := make(map[string]int)
	for _, doc := range m.Documents(userID) {
		counts[doc.Category]++
	}
	return counts
}

// DashboardStats summarizes one user's collections
type DashboardStats struct {
	MemberCount   int   `json:"member_count"`
	DocumentCount int   `json:"document_count"`
	TotalSize     int64 `json:"total_size"`
}

// Stats returns collection totals for the dashboard
func (m *Manager) Stats(userID int64) DashboardStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.state[userID]
	if !ok {
		return DashboardStats{}
	}
	stats := DashboardStats{
		MemberCount:   len(st.members),
		DocumentCount: len(st.documents),
	}
	for _, doc := range st.documents {
		stats.TotalSize += doc.FileSize
	}
	return stats
}

// memberDocuments returns the documents belonging to one member, in stored order
func (m *Manager) memberDocuments(userID int64, memberID string) []models.Document {
	var out []models.Document
	for _, doc := range m.Documents(userID) {
		if doc.MemberID == memberID {
			out = append(out, doc)
		}
	}
	return out
}

// stateLocked returns the user's state, creating it if absent. Caller holds mu.
func (m *Manager) stateLocked(userID int64) *userState {
	st, ok := m.state[userID]
	if !ok {
		st = &userState{}
		m.state[userID] = st
	}
	return st
}

// sortLocked keeps members and documents newest-first. Caller holds mu.
func (m *Manager) sortLocked(userID int64) {
	st, ok := m.state[userID]
	if !ok {
		return
	}
	sort.SliceStable(st.members, func(i, j int) bool {
		return st.members[i].CreatedAt.After(st.members[j].CreatedAt)
	})
	sort.SliceStable(st.documents, func(i, j int) bool {
		return st.documents[i].UploadedAt.After(st.documents[j].UploadedAt)
	})
}

func fileExtension(name string) string {
	if idx := strings.LastIndex(name, "."); idx >= 0 && idx < len(name)-1 {
		return strings.ToLower(name[idx+1:])
	}
	return ""
}
