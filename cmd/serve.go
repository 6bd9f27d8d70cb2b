package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/reflekt-app/reflekt/internal/api"
	"github.com/reflekt-app/reflekt/internal/config"
	"github.com/reflekt-app/reflekt/internal/db"
	"github.com/reflekt-app/reflekt/internal/middleware"
	"github.com/reflekt-app/reflekt/internal/services"
	"github.com/reflekt-app/reflekt/internal/storage"
)

// defaultAdminIdentifier is seeded into the administrator namespace and
// cannot be removed.
const defaultAdminIdentifier = "admin"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Starts the Reflekt API server",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		if err := runServer(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func buildCredentialStores(cfg config.Config) (*services.CredentialService, *services.CredentialService) {
	credentials := services.NewCredentialService(
		storage.NewFileBackend(filepath.Join(cfg.DataDir, "identities.json")),
		cfg.CredentialSalt,
	)
	admins := services.NewCredentialService(
		storage.NewFileBackend(filepath.Join(cfg.DataDir, "admins.json")),
		cfg.CredentialSalt,
		services.WithSeedAccounts(map[string]string{defaultAdminIdentifier: cfg.AdminSecret}),
		services.WithProtected(defaultAdminIdentifier),
	)
	return credentials, admins
}

func buildSummaryStore(cfg config.Config) (services.SummaryStore, func(), error) {
	if cfg.SQLitePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create sqlite dir: %w", err)
		}
		store, err := db.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	}
	store := services.NewFileSummaryStore(storage.NewFileBackend(filepath.Join(cfg.DataDir, "summaries.json")))
	return store, func() {}, nil
}

func runServer(cfg config.Config) error {
	commit := os.Getenv("REFLEKT_COMMIT")
	buildTime := os.Getenv("REFLEKT_BUILD_TIME")

	credentials, admins := buildCredentialStores(cfg)
	summaries, closeSummaries, err := buildSummaryStore(cfg)
	if err != nil {
		return err
	}
	defer closeSummaries()

	progress := services.NewProgressService(
		storage.NewFileBackend(filepath.Join(cfg.DataDir, "progress.json")),
		summaries,
	)
	gen := services.NewChatGenerator(nil, cfg.Generation.APIBase, cfg.Generation.APIKey, cfg.Generation.Model)
	sessions := services.NewSessionService(progress, credentials, gen, cfg.Generation.RetryDelay)
	admin := services.NewAdminService(credentials, summaries)
	tokens := services.NewTokenService(cfg.TokenSecret)
	limiter := middleware.NewRateLimiter(cfg.RateLimit.Budget, cfg.RateLimit.Window)

	router := chi.NewRouter()
	router.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Logger,
		chimw.Timeout(60*time.Second),
		middleware.SecureHeaders,
		middleware.NoStore,
		middleware.CORS,
	)

	api.NewRouter(api.RouterDeps{
		Tokens:        tokens,
		Credentials:   credentials,
		Admins:        admins,
		Sessions:      sessions,
		Admin:         admin,
		Summaries:     summaries,
		Generator:     gen,
		Limiter:       limiter,
		SecureCookies: cfg.SecureCookies,
	}).Register(router)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":   true,
			"name": "Reflekt API",
		})
	})
	router.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"commit":     commit,
			"build_time": buildTime,
		})
	})

	if cfg.StaticDir != "" {
		fs := http.FileServer(http.Dir(cfg.StaticDir))
		router.Handle("/*", fs)
	}

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	log.Printf("Reflekt server listening on %s", cfg.Addr)
	return srv.ListenAndServe()
}
