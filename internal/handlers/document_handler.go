package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"

	"familydocs/internal/models"
	"familydocs/internal/security"
	"familydocs/internal/service"
	"familydocs/internal/validation"
)

// PayloadOpener fetches a blob-backed document payload by storage path.
// nil when the store keeps payloads inline or serves them by URL.
type PayloadOpener func(ctx context.Context, path string) (io.ReadCloser, error)

// DocumentHandler handles document endpoints
type DocumentHandler struct {
	manager       *service.Manager
	tokens        *security.DownloadTokenIssuer
	openPayload   PayloadOpener
	maxUploadSize int64
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(manager *service.Manager, tokens *security.DownloadTokenIssuer, openPayload PayloadOpener, maxUploadSize int64) *DocumentHandler {
	return &DocumentHandler{
		manager:       manager,
		tokens:        tokens,
		openPayload:   openPayload,
		maxUploadSize: maxUploadSize,
	}
}

// documentView is the API shape of a document; payload bytes never leave
// through list endpoints.
type documentView struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	MemberID      string `json:"member_id"`
	Category      string `json:"category"`
	CategoryLabel string `json:"category_label"`
	Description   string `json:"description,omitempty"`
	OriginalName  string `json:"original_name"`
	FileType      string `json:"file_type"`
	FileSize      int64  `json:"file_size"`
	UploadedAt    string `json:"uploaded_at"`
}

func toDocumentView(doc models.Document) documentView {
	return documentView{
		ID:            doc.ID,
		Name:          doc.Name,
		MemberID:      doc.MemberID,
		Category:      doc.Category,
		CategoryLabel: models.CategoryLabel(doc.Category),
		Description:   doc.Description,
		OriginalName:  doc.OriginalName,
		FileType:      doc.FileType,
		FileSize:      doc.FileSize,
		UploadedAt:    doc.UploadedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

func toDocumentViews(docs []models.Document) []documentView {
	views := make([]documentView, 0, len(docs))
	for _, doc := range docs {
		views = append(views, toDocumentView(doc))
	}
	return views
}

// List handles GET /api/documents. Supports ?member_id= and ?category=
// filters (combined with AND), ?q= free-text search, and ?recent=N to cap
// the result at the N most recent uploads.
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	query := r.URL.Query()

	var docs []models.Document
	if term := query.Get("q"); term != "" {
		docs = h.manager.SearchDocuments(user.ID, term)
	} else {
		docs = h.manager.FilterDocuments(user.ID, query.Get("member_id"), query.Get("category"))
	}

	if recentStr := query.Get("recent"); recentStr != "" {
		n, err := strconv.Atoi(recentStr)
		if err != nil || n < 0 {
			respondWithError(w, http.StatusBadRequest, "Invalid recent parameter", "", nil)
			return
		}
		if n < len(docs) {
			docs = docs[:n]
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"documents": toDocumentViews(docs)})
}

// Create handles POST /api/documents, a multipart form with the metadata
// fields and the file
func (h *DocumentHandler) Create(w http.ResponseWriter, r *http.Request) {
	h.upsert(w, r, "")
}

// Update handles PUT /api/documents/{id}. The file part is optional; without
// it only the metadata changes.
func (h *DocumentHandler) Update(w http.ResponseWriter, r *http.Request) {
	h.upsert(w, r, r.PathValue("id"))
}

func (h *DocumentHandler) upsert(w http.ResponseWriter, r *http.Request, id string) {
	user := GetUserFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+512*1024)
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid upload", "parse multipart", err)
		return
	}

	req := models.CreateDocumentRequest{
		Name:        r.FormValue("name"),
		MemberID:    r.FormValue("member_id"),
		Category:    r.FormValue("category"),
		Description: r.FormValue("description"),
	}

	var payload io.Reader
	var originalName string
	var size int64
	file, header, err := r.FormFile("file")
	if err == nil {
		defer file.Close()
		payload = file
		originalName = header.Filename
		size = header.Size
	} else if !errors.Is(err, http.ErrMissingFile) {
		respondWithError(w, http.StatusBadRequest, "Invalid file upload", "form file", err)
		return
	}

	doc, err := h.manager.UpsertDocument(r.Context(), user.ID, id, req, payload, originalName, size)
	if err != nil {
		var vErr validation.ValidationError
		switch {
		case errors.As(err, &vErr):
			respondWithError(w, http.StatusBadRequest, vErr.Message, "", nil)
		case errors.Is(err, service.ErrFileTooLarge):
			respondWithError(w, http.StatusRequestEntityTooLarge, "File exceeds the 10 MB limit", "", nil)
		case errors.Is(err, service.ErrDocumentNotFound):
			respondWithError(w, http.StatusNotFound, "Document not found", "", nil)
		default:
			respondWithError(w, http.StatusInternalServerError, "Failed to save document", "save document", err)
		}
		return
	}

	status := http.StatusOK
	if id == "" {
		status = http.StatusCreated
	}
	respondJSON(w, status, toDocumentView(*doc))
}

// Delete handles DELETE /api/documents/{id}
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	id := r.PathValue("id")

	if err := h.manager.DeleteDocument(r.Context(), user.ID, id); err != nil {
		if errors.Is(err, service.ErrDocumentNotFound) {
			respondWithError(w, http.StatusNotFound, "Document not found", "", nil)
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Failed to delete document", "delete document", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// DownloadURL handles GET /api/documents/{id}/url, issuing a short-lived
// tokenized link that works without the session cookie
func (h *DocumentHandler) DownloadURL(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	id := r.PathValue("id")

	if _, err := h.manager.GetDocument(user.ID, id); err != nil {
		respondWithError(w, http.StatusNotFound, "Document not found", "", nil)
		return
	}

	token, err := h.tokens.Issue(id, user.ID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to issue download link", "issue token", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"url": fmt.Sprintf("/files/download?token=%s", token),
	})
}

// Download handles GET /files/download?token=..., serving the payload the
// token was issued for
func (h *DocumentHandler) Download(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		respondWithError(w, http.StatusBadRequest, "Missing download token", "", nil)
		return
	}

	docID, userID, err := h.tokens.Verify(token)
	if err != nil {
		respondWithError(w, http.StatusForbidden, "Invalid or expired download link", "", nil)
		return
	}

	doc, reader, err := h.manager.OpenDocument(r.Context(), userID, docID)
	if err != nil {
		respondWithError(w, http.StatusNotFound, "Document not found", "", nil)
		return
	}

	if reader == nil && h.openPayload != nil && doc.StoragePath != "" {
		reader, err = h.openPayload(r.Context(), doc.StoragePath)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, "Failed to fetch document", "open payload", err)
			return
		}
	}
	if reader == nil {
		if doc.DownloadURL != "" {
			http.Redirect(w, r, doc.DownloadURL, http.StatusFound)
			return
		}
		respondWithError(w, http.StatusNotFound, "Document payload unavailable", "", nil)
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.OriginalName))
	w.Header().Set("Content-Type", "application/octet-stream")
	if doc.FileSize > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(doc.FileSize, 10))
	}
	if _, err := io.Copy(w, reader); err != nil {
		log.Printf("Failed to stream document %s: %v", doc.ID, err)
	}
}

// Categories handles GET /api/categories, returning every category with its
// label and the caller's document count in it
func (h *DocumentHandler) Categories(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	counts := h.manager.CategoryCounts(user.ID)

	type categoryView struct {
		Key   string `json:"key"`
		Label string `json:"label"`
		Count int    `json:"count"`
	}
	views := make([]categoryView, 0, len(models.Categories))
	for _, key := range models.Categories {
		views = append(views, categoryView{
			Key:   key,
			Label: models.CategoryLabel(key),
			Count: counts[key],
		})
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"categories": views})
}

// Recent handles GET /api/documents/recent, the newest uploads for the
// dashboard. ?n= overrides the default of 5.
func (h *DocumentHandler) Recent(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())

	n := 5
	if nStr := r.URL.Query().Get("n"); nStr != "" {
		parsed, err := strconv.Atoi(nStr)
		if err != nil || parsed < 0 {
			respondWithError(w, http.StatusBadRequest, "Invalid n parameter", "", nil)
			return
		}
		n = parsed
	}

	docs := h.manager.RecentDocuments(user.ID, n)
	respondJSON(w, http.StatusOK, map[string]interface{}{"documents": toDocumentViews(docs)})
}

// Search handles GET /api/search. ?q= matches name, description and category
// label; ?member= and ?category= narrow the result further.
func (h *DocumentHandler) Search(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	query := r.URL.Query()

	docs := h.manager.SearchDocuments(user.ID, query.Get("q"))

	memberID := query.Get("member")
	category := query.Get("category")
	if memberID != "" || category != "" {
		filtered := docs[:0]
		for _, doc := range docs {
			if memberID != "" && doc.MemberID != memberID {
				continue
			}
			if category != "" && doc.Category != category {
				continue
			}
			filtered = append(filtered, doc)
		}
		docs = filtered
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"documents": toDocumentViews(docs)})
}

// Dashboard handles GET /api/dashboard, collection totals plus the five most
// recent uploads
func (h *DocumentHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	stats := h.manager.Stats(user.ID)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"member_count":   stats.MemberCount,
		"document_count": stats.DocumentCount,
		"total_size":     stats.TotalSize,
		"recent":         toDocumentViews(h.manager.RecentDocuments(user.ID, 5)),
	})
}
