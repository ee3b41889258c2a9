package models

import (
	"testing"
	"time"
)

func TestSessionIsExpired(t *testing.T) {
	tests := []struct {
		name      string
		expiresAt time.Time
		want      bool
	}{
		{
			name:      "future expiration",
			expiresAt: time.Now().Add(1 * time.Hour),
			want:      false,
		},
		{
			name:      "just expired",
			expiresAt: time.Now().Add(-1 * time.Second),
			want:      true,
		},
		{
			name:      "expired yesterday",
			expiresAt: time.Now().Add(-24 * time.Hour),
			want:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := Session{
				ID:        "test-session",
				UserID:    1,
				ExpiresAt: tt.expiresAt,
				CreatedAt: time.Now().Add(-1 * time.Hour),
			}
			result := session.IsExpired()
			if result != tt.want {
				t.Errorf("Session.IsExpired() = %v, want %v", result, tt.want)
			}
		})
	}
}

func TestCategoryLabel(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want string
	}{
		{
			name: "identity card",
			key:  "ktp",
			want: "KTP & Identitas",
		},
		{
			name: "family card",
			key:  "kk",
			want: "Kartu Keluarga",
		},
		{
			name: "employment letter",
			key:  "surat-kerja",
			want: "Surat Kerja",
		},
		{
			name: "fallback for unknown key",
			key:  "something-else",
			want: "something-else",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CategoryLabel(tt.key); got != tt.want {
				t.Errorf("CategoryLabel(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestRelationLabel(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want string
	}{
		{
			name: "father",
			key:  "ayah",
			want: "Ayah",
		},
		{
			name: "grandmother",
			key:  "nenek",
			want: "Nenek",
		},
		{
			name: "fallback for unknown key",
			key:  "tetangga",
			want: "tetangga",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RelationLabel(tt.key); got != tt.want {
				t.Errorf("RelationLabel(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestEveryCategoryKeyHasLabel(t *testing.T) {
	for _, key := range Categories {
		if !IsValidCategory(key) {
			t.Errorf("category %q listed but not recognized", key)
		}
		if CategoryLabel(key) == key {
			t.Errorf("category %q has no display label", key)
		}
	}
	for _, key := range Relations {
		if !IsValidRelation(key) {
			t.Errorf("relation %q listed but not recognized", key)
		}
	}
}
