package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"familydocs/internal/models"
	"familydocs/internal/service"
	"familydocs/internal/validation"
)

// FamilyHandler handles family member endpoints
type FamilyHandler struct {
	manager *service.Manager
}

// NewFamilyHandler creates a new family member handler
func NewFamilyHandler(manager *service.Manager) *FamilyHandler {
	return &FamilyHandler{manager: manager}
}

// List handles GET /api/members
func (h *FamilyHandler) List(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	members := h.manager.FamilyMembers(user.ID)
	if members == nil {
		members = []models.FamilyMember{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"members":   members,
		"relations": models.Relations,
	})
}

// Create handles POST /api/members
func (h *FamilyHandler) Create(w http.ResponseWriter, r *http.Request) {
	h.upsert(w, r, "")
}

// Update handles PUT /api/members/{id}
func (h *FamilyHandler) Update(w http.ResponseWriter, r *http.Request) {
	h.upsert(w, r, r.PathValue("id"))
}

func (h *FamilyHandler) upsert(w http.ResponseWriter, r *http.Request, id string) {
	user := GetUserFromContext(r.Context())

	var req models.CreateFamilyMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", "", nil)
		return
	}

	member, err := h.manager.UpsertFamilyMember(r.Context(), user.ID, id, req)
	if err != nil {
		var vErr validation.ValidationError
		switch {
		case errors.As(err, &vErr):
			respondWithError(w, http.StatusBadRequest, vErr.Message, "", nil)
		case errors.Is(err, service.ErrMemberNotFound):
			respondWithError(w, http.StatusNotFound, "Family member not found", "", nil)
		default:
			respondWithError(w, http.StatusInternalServerError, "Failed to save family member", "save member", err)
		}
		return
	}

	status := http.StatusOK
	if id == "" {
		status = http.StatusCreated
	}
	respondJSON(w, status, member)
}

// Delete handles DELETE /api/members/{id}. The member's documents are
// removed first; a partial cascade reports how far it got so the client can
// retry.
func (h *FamilyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	id := r.PathValue("id")

	removed, err := h.manager.DeleteFamilyMember(r.Context(), user.ID, id)
	if err != nil {
		var partial *service.PartialCascadeError
		switch {
		case errors.As(err, &partial):
			respondJSON(w, http.StatusConflict, map[string]interface{}{
				"error":               "Some documents could not be removed, try again",
				"documents_removed":   partial.Removed,
				"documents_remaining": partial.Remaining,
			})
		case errors.Is(err, service.ErrMemberNotFound):
			respondWithError(w, http.StatusNotFound, "Family member not found", "", nil)
		default:
			respondWithError(w, http.StatusInternalServerError, "Failed to delete family member", "delete member", err)
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":           true,
		"documents_removed": removed,
	})
}

// Relations handles GET /api/members/relations
func (h *FamilyHandler) Relations(w http.ResponseWriter, r *http.Request) {
	type relationView struct {
		Key   string `json:"key"`
		Label string `json:"label"`
	}
	views := make([]relationView, 0, len(models.Relations))
	for _, key := range models.Relations {
		views = append(views, relationView{Key: key, Label: models.RelationLabel(key)})
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"relations": views})
}
