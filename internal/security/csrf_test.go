package security

import "testing"

func TestCSRFTokenRoundTrip(t *testing.T) {
	g := NewCSRFGenerator("test-secret")

	token, err := g.GenerateToken("session-123")
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	if token == "" {
		t.Fatal("GenerateToken() returned empty token")
	}

	if !g.ValidateToken("session-123", token) {
		t.Error("ValidateToken() rejected its own token")
	}
}

func TestCSRFTokenDeterministic(t *testing.T) {
	g := NewCSRFGenerator("test-secret")

	token1, err := g.GenerateToken("session-123")
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	token2, err := g.GenerateToken("session-123")
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	if token1 != token2 {
		t.Error("GenerateToken() not deterministic for the same session")
	}
}

func TestCSRFTokenValidation(t *testing.T) {
	g := NewCSRFGenerator("test-secret")
	token, err := g.GenerateToken("session-123")
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	tests := []struct {
		name      string
		sessionID string
		token     string
		want      bool
	}{
		{
			name:      "valid token",
			sessionID: "session-123",
			token:     token,
			want:      true,
		},
		{
			name:      "different session",
			sessionID: "session-456",
			token:     token,
			want:      false,
		},
		{
			name:      "tampered token",
			sessionID: "session-123",
			token:     token + "00",
			want:      false,
		},
		{
			name:      "empty token",
			sessionID: "session-123",
			token:     "",
			want:      false,
		},
		{
			name:      "empty session",
			sessionID: "",
			token:     token,
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := g.ValidateToken(tt.sessionID, tt.token); got != tt.want {
				t.Errorf("ValidateToken() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCSRFTokenSecretDependent(t *testing.T) {
	g1 := NewCSRFGenerator("secret-one")
	g2 := NewCSRFGenerator("secret-two")

	token, err := g1.GenerateToken("session-123")
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	if g2.ValidateToken("session-123", token) {
		t.Error("ValidateToken() accepted a token signed with a different secret")
	}
}
