package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"familydocs/internal/models"
	"familydocs/internal/security"
	"familydocs/internal/service"
	"familydocs/internal/validation"
)

// AuthHandler handles registration, login and session endpoints
type AuthHandler struct {
	authService          *service.AuthService
	csrf                 *security.CSRFGenerator
	oauthProviders       map[string]OAuthProvider
	oauthRedirectBaseURL string
	onLogout             func(userID int64)
}

// OnLogout registers a callback invoked with the user ID on logout, used to
// release per-user state held outside the session store.
func (h *AuthHandler) OnLogout(fn func(userID int64)) {
	h.onLogout = fn
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *service.AuthService, csrf *security.CSRFGenerator, oauthProviders map[string]OAuthProvider, oauthRedirectBaseURL string) *AuthHandler {
	return &AuthHandler{
		authService:          authService,
		csrf:                 csrf,
		oauthProviders:       oauthProviders,
		oauthRedirectBaseURL: oauthRedirectBaseURL,
	}
}

type userResponse struct {
	ID            int64  `json:"id"`
	Username      string `json:"username"`
	FullName      string `json:"full_name"`
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified"`
}

func toUserResponse(user *models.User) userResponse {
	return userResponse{
		ID:            user.ID,
		Username:      user.Username,
		FullName:      user.FullName,
		Email:         user.Email,
		EmailVerified: user.EmailVerified,
	}
}

// Register handles POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
		FullName string `json:"full_name"`
		Email    string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", "", nil)
		return
	}

	user, err := h.authService.Register(r.Context(), req.Username, req.Password, req.FullName, req.Email)
	if err != nil {
		var vErr validation.ValidationError
		switch {
		case errors.As(err, &vErr):
			respondWithError(w, http.StatusBadRequest, vErr.Message, "", nil)
		case errors.Is(err, service.ErrUsernameTaken):
			respondWithError(w, http.StatusConflict, "Username already taken", "", nil)
		default:
			respondWithError(w, http.StatusInternalServerError, "Registration failed", "register", err)
		}
		return
	}

	respondJSON(w, http.StatusCreated, toUserResponse(user))
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", "", nil)
		return
	}

	session, user, err := h.authService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			respondWithError(w, http.StatusUnauthorized, "Invalid username or password", "", nil)
			return
		}
		if errors.Is(err, service.ErrEmailNotVerified) {
			respondWithError(w, http.StatusForbidden, "Please verify your email address first", "", nil)
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Login failed", "login", err)
		return
	}

	http.SetCookie(w, security.CreateSessionCookie(r, SessionCookieName, session.ID, session.ExpiresAt))
	respondJSON(w, http.StatusOK, toUserResponse(user))
}

// Logout handles POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		if user, err := h.authService.ValidateSession(r.Context(), cookie.Value); err == nil && h.onLogout != nil {
			h.onLogout(user.ID)
		}
		if err := h.authService.Logout(r.Context(), cookie.Value); err != nil {
			respondWithError(w, http.StatusInternalServerError, "Logout failed", "logout", err)
			return
		}
	}
	http.SetCookie(w, security.CreateDeleteCookie(r, SessionCookieName))
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Me handles GET /api/auth/me, returning the signed-in user
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		respondWithError(w, http.StatusUnauthorized, "Authentication required", "", nil)
		return
	}
	respondJSON(w, http.StatusOK, toUserResponse(user))
}

// CSRFToken handles GET /api/auth/csrf, issuing a token bound to the session
func (h *AuthHandler) CSRFToken(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		respondWithError(w, http.StatusUnauthorized, "Authentication required", "", nil)
		return
	}
	token, err := h.csrf.GenerateToken(cookie.Value)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to generate token", "csrf", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"csrf_token": token})
}

// VerifyEmail handles GET /auth/verify-email?token=..., the link sent by email
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		respondWithError(w, http.StatusBadRequest, "Missing verification token", "", nil)
		return
	}
	if err := h.authService.VerifyEmail(r.Context(), token); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid or expired verification link", "verify email", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"verified": true})
}

// ResendVerification handles POST /api/auth/resend-verification
func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		respondWithError(w, http.StatusUnauthorized, "Authentication required", "", nil)
		return
	}
	if user.EmailVerified {
		respondJSON(w, http.StatusOK, map[string]bool{"verified": true})
		return
	}
	if err := h.authService.RequestEmailVerification(r.Context(), user); err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to send verification email", "resend verification", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"sent": true})
}
