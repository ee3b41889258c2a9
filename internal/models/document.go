package models

import "time"

// Document represents an uploaded file's metadata plus its payload reference.
// Exactly one payload form is populated: Data holds the bytes inline on the
// file-backed store, DownloadURL/StoragePath point at external blob storage
// on the SQL store.
type Document struct {
	ID           string    `json:"id"`
	UserID       int64     `json:"user_id"`
	Name         string    `json:"name"`
	MemberID     string    `json:"member_id"`
	Category     string    `json:"category"`
	Description  string    `json:"description,omitempty"`
	OriginalName string    `json:"original_name"`
	FileType     string    `json:"file_type"`
	FileSize     int64     `json:"file_size"`
	UploadedAt   time.Time `json:"uploaded_at"`

	Data        []byte `json:"data,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`
	StoragePath string `json:"storage_path,omitempty"`
}

// categoryLabels maps category keys to their display labels
var categoryLabels = map[string]string{
	"ktp":         "KTP & Identitas",
	"kk":          "Kartu Keluarga",
	"akta":        "Akta Kelahiran",
	"ijazah":      "Ijazah & Sertifikat",
	"surat-kerja": "Surat Kerja",
	"pajak":       "Dokumen Pajak",
	"asuransi":    "Asuransi",
	"properti":    "Dokumen Properti",
	"keuangan":    "Dokumen Keuangan",
	"lainnya":     "Lainnya",
}

// Categories lists the recognized category keys in display order
var Categories = []string{
	"ktp",
	"kk",
	"akta",
	"ijazah",
	"surat-kerja",
	"pajak",
	"asuransi",
	"properti",
	"keuangan",
	"lainnya",
}

// IsValidCategory reports whether key is a recognized category
func IsValidCategory(key string) bool {
	_, ok := categoryLabels[key]
	return ok
}

// CategoryLabel returns the display label for a category key.
// Unknown keys are returned as-is.
func CategoryLabel(key string) string {
	if label, ok := categoryLabels[key]; ok {
		return label
	}
	return key
}

// CreateDocumentRequest carries the metadata fields of a document upload
type CreateDocumentRequest struct {
	Name        string `json:"name"`
	MemberID    string `json:"member_id"`
	Category    string `json:"category"`
	Description string `json:"description,omitempty"`
}
