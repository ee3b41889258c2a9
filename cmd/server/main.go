package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"familydocs/internal/blob"
	"familydocs/internal/config"
	"familydocs/internal/database"
	"familydocs/internal/handlers"
	"familydocs/internal/security"
	"familydocs/internal/service"
	"familydocs/internal/store"
	"familydocs/internal/store/localstore"
	"familydocs/internal/store/sqlstore"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"
	"golang.org/x/oauth2/google"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize the persistence backend
	docStore, openPayload, blobs, cleanup, err := buildStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage backend: %v", err)
	}
	defer cleanup()

	log.Printf("Storage backend ready (backend: %s)", cfg.Backend)

	// Session secret signs CSRF and download tokens. An ephemeral secret
	// invalidates outstanding tokens on restart.
	secret := cfg.SessionSecret
	if secret == "" {
		secret = security.GenerateSessionID()
		log.Println("Warning: SESSION_SECRET not set, using an ephemeral secret")
	}

	// Initialize services
	emailService, err := service.NewEmailService(cfg.SESRegion, cfg.SESFromEmail, cfg.SESFromName, cfg.AppBaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize email service: %v", err)
	}

	authService := service.NewAuthService(docStore, emailService, cfg.SessionDuration)

	managerOpts := []service.ManagerOption{service.WithUploadLimit(cfg.UploadMaxSize)}
	if blobs != nil {
		managerOpts = append(managerOpts, service.WithBlobStore(blobs))
	}
	manager := service.NewManager(docStore, managerOpts...)
	defer manager.Close()

	oauthProviders := map[string]handlers.OAuthProvider{
		"google": {
			Name:  "google",
			Label: "Google",
			Config: &oauth2.Config{
				ClientID:     cfg.GoogleClientID,
				ClientSecret: cfg.GoogleClientSecret,
				Endpoint:     google.Endpoint,
				Scopes:       []string{"openid", "email", "profile"},
			},
			UserInfoURL: "https://www.googleapis.com/oauth2/v2/userinfo",
		},
		"facebook": {
			Name:  "facebook",
			Label: "Facebook",
			Config: &oauth2.Config{
				ClientID:     cfg.FacebookClientID,
				ClientSecret: cfg.FacebookClientSecret,
				Endpoint:     facebook.Endpoint,
				Scopes:       []string{"email", "public_profile"},
			},
			UserInfoURL: "https://graph.facebook.com/me?fields=id,name,email",
		},
		"apple": {
			Name:  "apple",
			Label: "Apple",
			Config: &oauth2.Config{
				ClientID:     cfg.AppleClientID,
				ClientSecret: cfg.AppleClientSecret,
				Endpoint: oauth2.Endpoint{
					AuthURL:  "https://appleid.apple.com/auth/authorize",
					TokenURL: "https://appleid.apple.com/auth/token",
				},
				Scopes: []string{"name", "email"},
			},
			AuthParams: map[string]string{
				"response_mode": "query",
			},
		},
	}

	// Initialize handlers
	csrf := security.NewCSRFGenerator(secret)
	limiter := security.NewRateLimiter(10, time.Minute)
	tokens := security.NewDownloadTokenIssuer(secret, 15*time.Minute)

	middleware := handlers.NewMiddleware(authService, manager, csrf, limiter)
	authHandler := handlers.NewAuthHandler(authService, csrf, oauthProviders, cfg.AppBaseURL)
	authHandler.OnLogout(manager.Unload)
	familyHandler := handlers.NewFamilyHandler(manager)
	documentHandler := handlers.NewDocumentHandler(manager, tokens, openPayload, cfg.UploadMaxSize)

	// Setup routes
	mux := http.NewServeMux()

	// Auth routes
	mux.HandleFunc("POST /api/auth/register", middleware.RateLimit(authHandler.Register))
	mux.HandleFunc("POST /api/auth/login", middleware.RateLimit(authHandler.Login))
	mux.HandleFunc("POST /api/auth/logout", authHandler.Logout)
	mux.HandleFunc("GET /api/auth/me", middleware.RequireAuth(authHandler.Me))
	mux.HandleFunc("GET /api/auth/csrf", authHandler.CSRFToken)
	mux.HandleFunc("POST /api/auth/resend-verification", middleware.RequireAuth(middleware.CSRFProtect(authHandler.ResendVerification)))
	mux.HandleFunc("GET /auth/verify-email", authHandler.VerifyEmail)
	mux.HandleFunc("GET /api/auth/providers", authHandler.Providers)
	mux.HandleFunc("GET /auth/{provider}/start", authHandler.StartOAuth)
	mux.HandleFunc("GET /auth/{provider}/callback", authHandler.OAuthCallback)

	// Family member routes
	mux.HandleFunc("GET /api/members", middleware.RequireAuth(familyHandler.List))
	mux.HandleFunc("POST /api/members", middleware.RequireAuth(middleware.CSRFProtect(familyHandler.Create)))
	mux.HandleFunc("PUT /api/members/{id}", middleware.RequireAuth(middleware.CSRFProtect(familyHandler.Update)))
	mux.HandleFunc("DELETE /api/members/{id}", middleware.RequireAuth(middleware.CSRFProtect(familyHandler.Delete)))
	mux.HandleFunc("GET /api/members/relations", middleware.RequireAuth(familyHandler.Relations))

	// Document routes
	mux.HandleFunc("GET /api/documents", middleware.RequireAuth(documentHandler.List))
	mux.HandleFunc("POST /api/documents", middleware.RequireAuth(middleware.CSRFProtect(documentHandler.Create)))
	mux.HandleFunc("PUT /api/documents/{id}", middleware.RequireAuth(middleware.CSRFProtect(documentHandler.Update)))
	mux.HandleFunc("DELETE /api/documents/{id}", middleware.RequireAuth(middleware.CSRFProtect(documentHandler.Delete)))
	mux.HandleFunc("GET /api/documents/recent", middleware.RequireAuth(documentHandler.Recent))
	mux.HandleFunc("GET /api/documents/{id}/url", middleware.RequireAuth(documentHandler.DownloadURL))
	mux.HandleFunc("GET /files/download", documentHandler.Download)

	// Search and dashboard routes
	mux.HandleFunc("GET /api/search", middleware.RequireAuth(documentHandler.Search))
	mux.HandleFunc("GET /api/categories", middleware.RequireAuth(documentHandler.Categories))
	mux.HandleFunc("GET /api/dashboard", middleware.RequireAuth(documentHandler.Dashboard))

	// Wrap with logging middleware
	handler := handlers.Logging(mux)

	// Start server
	addr := ":" + cfg.ServerPort
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start background session cleanup
	go cleanupExpiredSessions(authService)

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on http://localhost%s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}

// buildStore assembles the configured persistence backend. The local backend
// keeps per-user JSON records with inline payloads; the SQL backend pairs a
// relational database with disk or S3 blob storage.
func buildStore(cfg *config.Config) (store.Store, handlers.PayloadOpener, store.BlobStore, func(), error) {
	switch cfg.Backend {
	case "local":
		st, err := localstore.New(cfg.DataDir)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		return st, nil, nil, func() {}, nil

	case "sql":
		db, err := database.InitializeWithConfig(cfg)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		if err := db.RunMigrations(cfg.MigrationsPath); err != nil {
			db.Close()
			return nil, nil, nil, nil, err
		}
		log.Println("Migrations completed successfully")

		var (
			blobs       store.BlobStore
			openPayload handlers.PayloadOpener
		)
		switch cfg.BlobBackend {
		case "disk":
			local, err := blob.NewLocalBlobStore(cfg.BlobDir, cfg.AppBaseURL+"/files")
			if err != nil {
				db.Close()
				return nil, nil, nil, nil, err
			}
			blobs = local
			openPayload = func(ctx context.Context, path string) (io.ReadCloser, error) {
				return local.Open(path)
			}
		case "s3":
			s3store, err := blob.NewS3BlobStore(context.Background(), blob.S3Options{
				Endpoint:  cfg.S3Endpoint,
				AccessKey: cfg.S3AccessKey,
				SecretKey: cfg.S3SecretKey,
				Bucket:    cfg.S3Bucket,
				Region:    cfg.S3Region,
			})
			if err != nil {
				db.Close()
				return nil, nil, nil, nil, err
			}
			blobs = s3store
			openPayload = s3store.Open
		default:
			db.Close()
			return nil, nil, nil, nil, fmt.Errorf("unknown blob backend %q", cfg.BlobBackend)
		}

		return sqlstore.New(db), openPayload, blobs, func() { db.Close() }, nil

	default:
		return nil, nil, nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// cleanupExpiredSessions purges expired sessions every hour
func cleanupExpiredSessions(authService *service.AuthService) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for range ticker.C {
		removed, err := authService.CleanupExpiredSessions(context.Background())
		if err != nil {
			log.Printf("Session cleanup failed: %v", err)
			continue
		}
		if removed > 0 {
			log.Printf("Cleaned up %d expired sessions", removed)
		}
	}
}
