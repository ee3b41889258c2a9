package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"familydocs/internal/models"
	"familydocs/internal/store"
)

// fakeStore is an in-memory DocumentStore with per-operation failure
// injection, used to exercise the manager without a real backend.
type fakeStore struct {
	members   map[string]models.FamilyMember
	documents map[string]models.Document
	nextID    int

	failLoad       bool
	failSaveMember bool
	failSaveDoc    bool
	failDeleteDoc  func(id string) bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		members:   make(map[string]models.FamilyMember),
		documents: make(map[string]models.Document),
	}
}

func (f *fakeStore) LoadFamilyMembers(ctx context.Context, userID int64) ([]models.FamilyMember, error) {
	if f.failLoad {
		return nil, store.ErrStoreUnavailable
	}
	var out []models.FamilyMember
	for _, m := range f.members {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) LoadDocuments(ctx context.Context, userID int64) ([]models.Document, error) {
	if f.failLoad {
		return nil, store.ErrStoreUnavailable
	}
	var out []models.Document
	for _, d := range f.documents {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeStore) SaveFamilyMember(ctx context.Context, member *models.FamilyMember) (*models.FamilyMember, error) {
	if f.failSaveMember {
		return nil, store.ErrStoreUnavailable
	}
	saved := *member
	if saved.ID == "" {
		f.nextID++
		saved.ID = fmt.Sprintf("m%d", f.nextID)
		saved.CreatedAt = time.Now()
	} else if _, ok := f.members[saved.ID]; !ok {
		return nil, store.ErrNotFound
	}
	f.members[saved.ID] = saved
	return &saved, nil
}

func (f *fakeStore) DeleteFamilyMember(ctx context.Context, userID int64, id string) error {
	if _, ok := f.members[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.members, id)
	return nil
}

func (f *fakeStore) SaveDocumentMetadata(ctx context.Context, doc *models.Document) (*models.Document, error) {
	if f.failSaveDoc {
		return nil, store.ErrStoreUnavailable
	}
	saved := *doc
	if saved.ID == "" {
		f.nextID++
		saved.ID = fmt.Sprintf("d%d", f.nextID)
	} else if _, ok := f.documents[saved.ID]; !ok {
		return nil, store.ErrNotFound
	}
	f.documents[saved.ID] = saved
	return &saved, nil
}

func (f *fakeStore) GetDocument(ctx context.Context, userID int64, id string) (*models.Document, error) {
	doc, ok := f.documents[id]
	if !ok || doc.UserID != userID {
		return nil, store.ErrNotFound
	}
	return &doc, nil
}

func (f *fakeStore) DeleteDocumentMetadata(ctx context.Context, userID int64, id string) error {
	if f.failDeleteDoc != nil && f.failDeleteDoc(id) {
		return store.ErrStoreUnavailable
	}
	if _, ok := f.documents[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.documents, id)
	return nil
}

func addMember(t *testing.T, m *Manager, userID int64, name, relation string) *models.FamilyMember {
	t.Helper()
	member, err := m.UpsertFamilyMember(context.Background(), userID, "", models.CreateFamilyMemberRequest{
		Name:     name,
		Relation: relation,
	})
	if err != nil {
		t.Fatalf("UpsertFamilyMember(%s): %v", name, err)
	}
	return member
}

func addDocument(t *testing.T, m *Manager, userID int64, memberID, name, category, content string) *models.Document {
	t.Helper()
	doc, err := m.UpsertDocument(context.Background(), userID, "", models.CreateDocumentRequest{
		Name:     name,
		MemberID: memberID,
		Category: category,
	}, strings.NewReader(content), name+".pdf", int64(len(content)))
	if err != nil {
		t.Fatalf("UpsertDocument(%s): %v", name, err)
	}
	return doc
}

func TestLoadForUserKeepsStateOnStoreFailure(t *testing.T) {
	fake := newFakeStore()
	m := NewManager(fake)
	ctx := context.Background()
	const userID = 1

	if err := m.LoadForUser(ctx, userID); err != nil {
		t.Fatalf("LoadForUser: %v", err)
	}
	member := addMember(t, m, userID, "Budi", "ayah")

	fake.failLoad = true
	err := m.LoadForUser(ctx, userID)
	if !errors.Is(err, store.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}

	members := m.FamilyMembers(userID)
	if len(members) != 1 || members[0].ID != member.ID {
		t.Errorf("in-memory state lost after failed load: %+v", members)
	}
}

func TestUpsertFamilyMember(t *testing.T) {
	m := NewManager(newFakeStore())
	ctx := context.Background()
	const userID = 1
	if err := m.LoadForUser(ctx, userID); err != nil {
		t.Fatalf("LoadForUser: %v", err)
	}

	t.Run("create assigns ID", func(t *testing.T) {
		member := addMember(t, m, userID, "Budi", "ayah")
		if member.ID == "" {
			t.Error("expected store-assigned ID")
		}
		if member.UserID != userID {
			t.Errorf("UserID = %d, want %d", member.UserID, userID)
		}
	})

	t.Run("edit replaces in place", func(t *testing.T) {
		member := addMember(t, m, userID, "Siti", "ibu")
		before := len(m.FamilyMembers(userID))
		if member.CreatedAt.IsZero() {
			t.Fatal("expected store-assigned CreatedAt on create")
		}

		updated, err := m.UpsertFamilyMember(ctx, userID, member.ID, models.CreateFamilyMemberRequest{
			Name:     "Siti Rahayu",
			Relation: "ibu",
		})
		if err != nil {
			t.Fatalf("UpsertFamilyMember edit: %v", err)
		}
		if updated.ID != member.ID {
			t.Errorf("edit changed ID: %s != %s", updated.ID, member.ID)
		}
		if got := len(m.FamilyMembers(userID)); got != before {
			t.Errorf("member count changed on edit: %d != %d", got, before)
		}
		fetched, err := m.GetFamilyMember(userID, member.ID)
		if err != nil {
			t.Fatalf("GetFamilyMember: %v", err)
		}
		if fetched.Name != "Siti Rahayu" {
			t.Errorf("Name = %q, want %q", fetched.Name, "Siti Rahayu")
		}
		if fetched.UserID != member.UserID {
			t.Errorf("edit changed owner: %d != %d", fetched.UserID, member.UserID)
		}
		if !fetched.CreatedAt.Equal(member.CreatedAt) {
			t.Errorf("edit changed CreatedAt: %v != %v", fetched.CreatedAt, member.CreatedAt)
		}
	})

	t.Run("edit of unknown ID fails", func(t *testing.T) {
		_, err := m.UpsertFamilyMember(ctx, userID, "missing", models.CreateFamilyMemberRequest{
			Name:     "Nobody",
			Relation: "anak",
		})
		if !errors.Is(err, ErrMemberNotFound) {
			t.Errorf("expected ErrMemberNotFound, got %v", err)
		}
	})

	t.Run("invalid relation rejected", func(t *testing.T) {
		_, err := m.UpsertFamilyMember(ctx, userID, "", models.CreateFamilyMemberRequest{
			Name:     "Agus",
			Relation: "cousin",
		})
		if err == nil {
			t.Error("expected validation error for unknown relation")
		}
	})
}

func TestUploadDocumentScenario(t *testing.T) {
	m := NewManager(newFakeStore())
	ctx := context.Background()
	const userID = 1
	if err := m.LoadForUser(ctx, userID); err != nil {
		t.Fatalf("LoadForUser: %v", err)
	}

	budi := addMember(t, m, userID, "Budi", "ayah")
	content := strings.Repeat("x", 1024)
	doc, err := m.UpsertDocument(ctx, userID, "", models.CreateDocumentRequest{
		Name:     "KTP Budi",
		MemberID: budi.ID,
		Category: "ktp",
	}, strings.NewReader(content), "ktp-budi.pdf", 1024)
	if err != nil {
		t.Fatalf("UpsertDocument: %v", err)
	}

	if doc.ID == "" {
		t.Error("expected store-assigned document ID")
	}
	if doc.FileSize != 1024 {
		t.Errorf("FileSize = %d, want 1024", doc.FileSize)
	}
	if doc.FileType != "pdf" {
		t.Errorf("FileType = %q, want pdf", doc.FileType)
	}
	if len(doc.Data) != 1024 {
		t.Errorf("inline payload length = %d, want 1024", len(doc.Data))
	}

	docs := m.Documents(userID)
	if len(docs) != 1 || docs[0].Name != "KTP Budi" {
		t.Errorf("Documents = %+v", docs)
	}
}

func TestUpsertDocumentValidation(t *testing.T) {
	m := NewManager(newFakeStore(), WithUploadLimit(100))
	ctx := context.Background()
	const userID = 1
	if err := m.LoadForUser(ctx, userID); err != nil {
		t.Fatalf("LoadForUser: %v", err)
	}
	budi := addMember(t, m, userID, "Budi", "ayah")

	tests := []struct {
		name    string
		docName string
		member  string
		cat     string
		payload string
		wantErr error
	}{
		{"unknown category", "Doc", budi.ID, "misc", "x", nil},
		{"missing member", "Doc", "ghost", "ktp", "x", nil},
		{"over size limit", "Doc", budi.ID, "ktp", strings.Repeat("x", 101), ErrFileTooLarge},
		{"empty name", "", budi.ID, "ktp", "x", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.UpsertDocument(ctx, userID, "", models.CreateDocumentRequest{
				Name:     tt.docName,
				MemberID: tt.member,
				Category: tt.cat,
			}, strings.NewReader(tt.payload), "f.pdf", int64(len(tt.payload)))
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}

	t.Run("create without file rejected", func(t *testing.T) {
		_, err := m.UpsertDocument(ctx, userID, "", models.CreateDocumentRequest{
			Name:     "Doc",
			MemberID: budi.ID,
			Category: "ktp",
		}, nil, "", 0)
		if err == nil {
			t.Error("expected error when creating without a file")
		}
	})

	t.Run("edit without file keeps payload", func(t *testing.T) {
		doc := addDocument(t, m, userID, budi.ID, "Akta", "akta", "isi akta")
		updated, err := m.UpsertDocument(ctx, userID, doc.ID, models.CreateDocumentRequest{
			Name:     "Akta Kelahiran",
			MemberID: budi.ID,
			Category: "akta",
		}, nil, "", 0)
		if err != nil {
			t.Fatalf("edit: %v", err)
		}
		if string(updated.Data) != "isi akta" {
			t.Errorf("payload lost on metadata edit: %q", updated.Data)
		}
		if updated.Name != "Akta Kelahiran" {
			t.Errorf("Name = %q", updated.Name)
		}
	})
}

func TestUploadFailureLeavesNoMetadata(t *testing.T) {
	fake := newFakeStore()
	m := NewManager(fake)
	ctx := context.Background()
	const userID = 1
	if err := m.LoadForUser(ctx, userID); err != nil {
		t.Fatalf("LoadForUser: %v", err)
	}
	budi := addMember(t, m, userID, "Budi", "ayah")

	fake.failSaveDoc = true
	_, err := m.UpsertDocument(ctx, userID, "", models.CreateDocumentRequest{
		Name:     "KTP Budi",
		MemberID: budi.ID,
		Category: "ktp",
	}, strings.NewReader("x"), "ktp.pdf", 1)
	if err == nil {
		t.Fatal("expected error")
	}
	if len(m.Documents(userID)) != 0 {
		t.Error("failed save must not appear in memory")
	}
	if len(fake.documents) != 0 {
		t.Error("failed save must not persist metadata")
	}
}

func TestDeleteFamilyMemberCascade(t *testing.T) {
	fake := newFakeStore()
	m := NewManager(fake)
	ctx := context.Background()
	const userID = 1
	if err := m.LoadForUser(ctx, userID); err != nil {
		t.Fatalf("LoadForUser: %v", err)
	}

	budi := addMember(t, m, userID, "Budi", "ayah")
	siti := addMember(t, m, userID, "Siti", "ibu")
	addDocument(t, m, userID, budi.ID, "KTP Budi", "ktp", "a")
	addDocument(t, m, userID, budi.ID, "Ijazah Budi", "ijazah", "b")
	sitiDoc := addDocument(t, m, userID, siti.ID, "KTP Siti", "ktp", "c")

	removed, err := m.DeleteFamilyMember(ctx, userID, budi.ID)
	if err != nil {
		t.Fatalf("DeleteFamilyMember: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	if _, err := m.GetFamilyMember(userID, budi.ID); !errors.Is(err, ErrMemberNotFound) {
		t.Error("member should be gone")
	}

	docs := m.Documents(userID)
	if len(docs) != 1 || docs[0].ID != sitiDoc.ID {
		t.Errorf("other member's documents must survive: %+v", docs)
	}
}

func TestDeleteFamilyMemberPartialCascade(t *testing.T) {
	fake := newFakeStore()
	m := NewManager(fake)
	ctx := context.Background()
	const userID = 1
	if err := m.LoadForUser(ctx, userID); err != nil {
		t.Fatalf("LoadForUser: %v", err)
	}

	budi := addMember(t, m, userID, "Budi", "ayah")
	var docIDs []string
	for i := 0; i < 4; i++ {
		doc := addDocument(t, m, userID, budi.ID, fmt.Sprintf("Doc %d", i), "lainnya", "x")
		docIDs = append(docIDs, doc.ID)
	}

	// Fail after two deletes succeed.
	deleted := 0
	fake.failDeleteDoc = func(id string) bool {
		if deleted >= 2 {
			return true
		}
		deleted++
		return false
	}

	_, err := m.DeleteFamilyMember(ctx, userID, budi.ID)
	var partial *PartialCascadeError
	if !errors.As(err, &partial) {
		t.Fatalf("expected PartialCascadeError, got %v", err)
	}
	if partial.Removed != 2 || partial.Remaining != 2 {
		t.Errorf("Removed/Remaining = %d/%d, want 2/2", partial.Removed, partial.Remaining)
	}

	// The member survives so the remaining documents are never orphaned.
	if _, err := m.GetFamilyMember(userID, budi.ID); err != nil {
		t.Error("member must be kept after a partial cascade")
	}
	if got := len(m.Documents(userID)); got != 2 {
		t.Errorf("remaining documents = %d, want 2", got)
	}

	// A retry picks up where the cascade stopped.
	fake.failDeleteDoc = nil
	removed, err := m.DeleteFamilyMember(ctx, userID, budi.ID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if removed != 2 {
		t.Errorf("retry removed = %d, want 2", removed)
	}
	if got := len(m.Documents(userID)); got != 0 {
		t.Errorf("documents remaining after retry = %d", got)
	}
}

func TestFilterDocuments(t *testing.T) {
	m := NewManager(newFakeStore())
	ctx := context.Background()
	const userID = 1
	if err := m.LoadForUser(ctx, userID); err != nil {
		t.Fatalf("LoadForUser: %v", err)
	}

	budi := addMember(t, m, userID, "Budi", "ayah")
	siti := addMember(t, m, userID, "Siti", "ibu")
	addDocument(t, m, userID, budi.ID, "KTP Budi", "ktp", "a")
	addDocument(t, m, userID, budi.ID, "Ijazah Budi", "ijazah", "b")
	addDocument(t, m, userID, siti.ID, "KTP Siti", "ktp", "c")

	tests := []struct {
		name     string
		memberID string
		category string
		want     int
	}{
		{"no filters returns all", "", "", 3},
		{"by member", budi.ID, "", 2},
		{"by category", "", "ktp", 2},
		{"member and category", budi.ID, "ktp", 1},
		{"no match", siti.ID, "ijazah", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.FilterDocuments(userID, tt.memberID, tt.category)
			if len(got) != tt.want {
				t.Errorf("FilterDocuments(%q, %q) returned %d documents, want %d", tt.memberID, tt.category, len(got), tt.want)
			}
		})
	}
}

func TestSearchDocuments(t *testing.T) {
	m := NewManager(newFakeStore())
	ctx := context.Background()
	const userID = 1
	if err := m.LoadForUser(ctx, userID); err != nil {
		t.Fatalf("LoadForUser: %v", err)
	}

	budi := addMember(t, m, userID, "Budi", "ayah")
	addDocument(t, m, userID, budi.ID, "Kartu Identitas", "ktp", "a")
	doc2, err := m.UpsertDocument(ctx, userID, "", models.CreateDocumentRequest{
		Name:        "Surat Rumah",
		MemberID:    budi.ID,
		Category:    "properti",
		Description: "sertifikat tanah warisan",
	}, strings.NewReader("b"), "rumah.pdf", 1)
	if err != nil {
		t.Fatalf("UpsertDocument: %v", err)
	}

	tests := []struct {
		term string
		want int
	}{
		{"kartu", 1},
		{"KARTU", 1},
		// matches the category label "KTP & Identitas" even though the
		// document name never contains the term
		{"ktp", 1},
		{"warisan", 1},
		{"rumah", 1},
		{"", 2},
		{"tidak ada", 0},
	}
	for _, tt := range tests {
		t.Run("term "+tt.term, func(t *testing.T) {
			got := m.SearchDocuments(userID, tt.term)
			if len(got) != tt.want {
				t.Errorf("SearchDocuments(%q) returned %d documents, want %d", tt.term, len(got), tt.want)
			}
		})
	}

	if got := m.SearchDocuments(userID, "warisan"); len(got) == 1 && got[0].ID != doc2.ID {
		t.Errorf("description match returned wrong document: %s", got[0].ID)
	}
}

func TestRecentDocumentsOrder(t *testing.T) {
	fake := newFakeStore()
	m := NewManager(fake)
	ctx := context.Background()
	const userID = 1

	budi := models.FamilyMember{ID: "m1", UserID: userID, Name: "Budi", Relation: "ayah", CreatedAt: time.Now()}
	fake.members[budi.ID] = budi
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("d%d", i)
		fake.documents[id] = models.Document{
			ID: id, UserID: userID, MemberID: budi.ID,
			Name: fmt.Sprintf("Doc %d", i), Category: "lainnya",
			UploadedAt: base.Add(time.Duration(i) * time.Hour),
		}
	}
	if err := m.LoadForUser(ctx, userID); err != nil {
		t.Fatalf("LoadForUser: %v", err)
	}

	recent := m.RecentDocuments(userID, 3)
	if len(recent) != 3 {
		t.Fatalf("len = %d, want 3", len(recent))
	}
	for i, want := range []string{"d4", "d3", "d2"} {
		if recent[i].ID != want {
			t.Errorf("recent[%d] = %s, want %s", i, recent[i].ID, want)
		}
	}

	all := m.RecentDocuments(userID, 10)
	if len(all) != 5 {
		t.Errorf("asking for more than exist returns all: got %d", len(all))
	}
}

func TestCategoryCountsAndStats(t *testing.T) {
	m := NewManager(newFakeStore())
	ctx := context.Background()
	const userID = 1
	if err := m.LoadForUser(ctx, userID); err != nil {
		t.Fatalf("LoadForUser: %v", err)
	}

	budi := addMember(t, m, userID, "Budi", "ayah")
	addDocument(t, m, userID, budi.ID, "KTP", "ktp", "aa")
	addDocument(t, m, userID, budi.ID, "KTP lama", "ktp", "bbb")
	addDocument(t, m, userID, budi.ID, "Ijazah", "ijazah", "c")

	counts := m.CategoryCounts(userID)
	if counts["ktp"] != 2 || counts["ijazah"] != 1 {
		t.Errorf("counts = %v", counts)
	}
	if _, ok := counts["pajak"]; ok {
		t.Error("empty categories must be omitted")
	}

	stats := m.Stats(userID)
	if stats.MemberCount != 1 || stats.DocumentCount != 3 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.TotalSize != 6 {
		t.Errorf("TotalSize = %d, want 6", stats.TotalSize)
	}
}

func TestDeleteDocument(t *testing.T) {
	m := NewManager(newFakeStore())
	ctx := context.Background()
	const userID = 1
	if err := m.LoadForUser(ctx, userID); err != nil {
		t.Fatalf("LoadForUser: %v", err)
	}
	budi := addMember(t, m, userID, "Budi", "ayah")
	doc := addDocument(t, m, userID, budi.ID, "KTP", "ktp", "a")

	if err := m.DeleteDocument(ctx, userID, doc.ID); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if err := m.DeleteDocument(ctx, userID, doc.ID); !errors.Is(err, ErrDocumentNotFound) {
		t.Errorf("second delete: %v, want ErrDocumentNotFound", err)
	}
	// The member is untouched by a document delete.
	if _, err := m.GetFamilyMember(userID, budi.ID); err != nil {
		t.Error("member must survive document delete")
	}
}

func TestOpenDocumentAfterUnload(t *testing.T) {
	m := NewManager(newFakeStore())
	ctx := context.Background()
	const userID = 1
	if err := m.LoadForUser(ctx, userID); err != nil {
		t.Fatalf("LoadForUser: %v", err)
	}
	budi := addMember(t, m, userID, "Budi", "ayah")
	doc := addDocument(t, m, userID, budi.ID, "KTP", "ktp", "isi berkas")

	// A download link issued before logout must keep working after the
	// in-memory state is dropped.
	m.Unload(userID)

	fetched, reader, err := m.OpenDocument(ctx, userID, doc.ID)
	if err != nil {
		t.Fatalf("OpenDocument after unload: %v", err)
	}
	if fetched.ID != doc.ID {
		t.Errorf("document ID = %s, want %s", fetched.ID, doc.ID)
	}
	if reader == nil {
		t.Fatal("expected inline payload reader")
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("read payload: %v", err)
	}
	if string(data) != "isi berkas" {
		t.Errorf("payload = %q, want %q", data, "isi berkas")
	}

	if _, _, err := m.OpenDocument(ctx, userID, "missing"); !errors.Is(err, ErrDocumentNotFound) {
		t.Errorf("unknown ID after unload: %v, want ErrDocumentNotFound", err)
	}
}
