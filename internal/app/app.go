// Package app assembles the store, session, template and handler layers
// into the site's http.Handler.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/csrf"
	"github.com/gorilla/sessions"

	"github.com/kakhikvaratskhelia-boop/AGRO-RENT2/internal/auth"
	"github.com/kakhikvaratskhelia-boop/AGRO-RENT2/internal/config"
	"github.com/kakhikvaratskhelia-boop/AGRO-RENT2/internal/handlers"
	"github.com/kakhikvaratskhelia-boop/AGRO-RENT2/internal/models"
	"github.com/kakhikvaratskhelia-boop/AGRO-RENT2/internal/store"
	"github.com/kakhikvaratskhelia-boop/AGRO-RENT2/internal/uploads"
	"github.com/kakhikvaratskhelia-boop/AGRO-RENT2/web"
)

type App struct {
	Config       *config.Config
	Store        *store.Store
	Uploads      *uploads.Storage
	Templates    *handlers.TemplateCache
	SessionStore *sessions.CookieStore
	Limiter      *handlers.RateLimiter

	handler http.Handler
}

// New opens and migrates the database, seeds the admin account and builds
// the handler chain. Call Close when done.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := store.NewStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a := &App{Config: cfg, Store: db}

	if err := a.init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config
	if err := a.Store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if err := a.seedAdmin(ctx); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	up, err := uploads.New(cfg.UploadDir)
	if err != nil {
		return fmt.Errorf("upload dir: %w", err)
	}
	a.Uploads = up

	a.Templates = handlers.NewTemplateCache()
	if err := a.Templates.Load(web.FS, "templates"); err != nil {
		return fmt.Errorf("load templates: %w", err)
	}
	static, err := web.Static()
	if err != nil {
		return fmt.Errorf("static assets: %w", err)
	}

	// Session Setup
	a.SessionStore = sessions.NewCookieStore(cfg.SessionKey)
	a.SessionStore.Options.HttpOnly = true
	a.SessionStore.Options.Secure = cfg.CookieSecure
	a.SessionStore.Options.SameSite = http.SameSiteLaxMode
	a.SessionStore.Options.Path = "/"
	a.SessionStore.Options.MaxAge = int(cfg.SessionTTL.Seconds())
	if cfg.CookieDomain != "" {
		a.SessionStore.Options.Domain = cfg.CookieDomain
	}

	a.Limiter = handlers.NewRateLimiter(cfg.LoginRateLimit, cfg.LoginRateWindow)

	accounts := &handlers.AccountHandler{
		Store:        a.Store,
		SessionStore: a.SessionStore,
		Templates:    a.Templates,
		SessionTTL:   cfg.SessionTTL,
	}
	machines := &handlers.MachineHandler{
		Store:          a.Store,
		Uploads:        a.Uploads,
		SessionStore:   a.SessionStore,
		Templates:      a.Templates,
		MaxUploadBytes: cfg.MaxUploadBytes,
	}
	router := handlers.NewRouter(accounts, machines, a.Limiter, static)

	CSRF := csrf.Protect(
		cfg.CSRFKey,
		csrf.Secure(cfg.CookieSecure),
		csrf.Path("/"),
		csrf.TrustedOrigins([]string{"localhost:" + cfg.Port, "127.0.0.1:" + cfg.Port, "localhost", "127.0.0.1"}),
	)

	protected := CSRF(router)
	if !cfg.CookieSecure {
		// Served over plain HTTP, typically in development.
		protected = plaintextHTTP(protected)
	}
	limit := handlers.BodyLimitMiddleware(cfg.MaxUploadBytes, handlers.IsUploadPath)

	// Chain: Logger -> Security Headers -> Body Limit -> CSRF -> Router
	a.handler = handlers.LoggingMiddleware(
		handlers.SecurityHeadersMiddleware(
			limit(protected),
		),
	)
	return nil
}

func plaintextHTTP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, csrf.PlaintextHTTPRequest(r))
	})
}

// seedAdmin creates the configured admin account if it is missing.
// An existing account is left untouched, including its password.
func (a *App) seedAdmin(ctx context.Context) error {
	cfg := a.Config
	existing, err := a.Store.GetUserByUsername(ctx, cfg.AdminUsername)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	hash, err := auth.HashPassword(cfg.AdminPassword, 0)
	if err != nil {
		return err
	}
	created, err := a.Store.EnsureUser(ctx, &models.User{
		Username: cfg.AdminUsername,
		Password: hash,
		Phone:    cfg.AdminPhone,
		IsAdmin:  true,
	})
	if err != nil {
		return err
	}
	if created {
		slog.Info("Seeded admin account", "username", cfg.AdminUsername)
	}
	return nil
}

func (a *App) Handler() http.Handler {
	return a.handler
}

func (a *App) Close() error {
	return a.Store.Close()
}
