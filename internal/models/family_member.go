package models

import "time"

// FamilyMember represents a person record owned by a user
type FamilyMember struct {
	ID        string     `json:"id"`
	UserID    int64      `json:"user_id"`
	Name      string     `json:"name"`
	Relation  string     `json:"relation"`
	BirthDate *time.Time `json:"birth_date,omitempty"`
	Notes     string     `json:"notes,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// relationLabels maps relation keys to their display labels
var relationLabels = map[string]string{
	"suami":   "Suami",
	"istri":   "Istri",
	"ayah":    "Ayah",
	"ibu":     "Ibu",
	"anak":    "Anak",
	"kakek":   "Kakek",
	"nenek":   "Nenek",
	"saudara": "Saudara",
	"lainnya": "Lainnya",
}

// Relations lists the recognized relation keys in display order
var Relations = []string{
	"suami",
	"istri",
	"ayah",
	"ibu",
	"anak",
	"kakek",
	"nenek",
	"saudara",
	"lainnya",
}

// IsValidRelation reports whether key is a recognized relation
func IsValidRelation(key string) bool {
	_, ok := relationLabels[key]
	return ok
}

// RelationLabel returns the display label for a relation key.
// Unknown keys are returned as-is.
func RelationLabel(key string) string {
	if label, ok := relationLabels[key]; ok {
		return label
	}
	return key
}

// CreateFamilyMemberRequest carries the fields of a member create/edit submission
type CreateFamilyMemberRequest struct {
	Name      string `json:"name"`
	Relation  string `json:"relation"`
	BirthDate string `json:"birth_date,omitempty"`
	Notes     string `json:"notes,omitempty"`
}
