package handlers

import (
	"io/fs"
	"net/http"
	"strings"
)

// NewRouter wires every page route. Static assets are served from static,
// photos from the upload directory of machines. The returned handler
// resolves the logged-in user before dispatching.
func NewRouter(accounts *AccountHandler, machines *MachineHandler, limiter *RateLimiter, static fs.FS) http.Handler {
	mux := http.NewServeMux()
	ss := accounts.SessionStore

	// Static Files
	mux.Handle("GET /static/", http.StripPrefix("/static", noDirListing(http.FileServerFS(static))))
	mux.Handle("GET /uploads/", http.StripPrefix("/uploads", noDirListing(http.FileServer(http.Dir(machines.Uploads.Dir)))))

	// Public Routes
	mux.HandleFunc("GET /{$}", machines.Index)
	mux.HandleFunc("GET /machine/{id}", machines.Details)

	mux.HandleFunc("GET /register", accounts.RegisterGet)
	mux.HandleFunc("POST /register", limiter.Middleware(accounts.RegisterPost))
	mux.HandleFunc("GET /login", accounts.LoginGet)
	mux.HandleFunc("POST /login", limiter.Middleware(accounts.LoginPost))
	mux.HandleFunc("GET /logout", accounts.Logout)

	// Protected Routes
	mux.HandleFunc("GET /add", RequireLogin(ss, machines.AddForm))
	mux.HandleFunc("POST /add", RequireLogin(ss, machines.Create))
	mux.HandleFunc("GET /edit/{id}", RequireLogin(ss, machines.EditForm))
	mux.HandleFunc("POST /edit/{id}", RequireLogin(ss, machines.Update))
	mux.HandleFunc("POST /delete/{id}", RequireLogin(ss, machines.Delete))

	return Authenticate(accounts.Store, ss)(mux)
}

// IsUploadPath reports whether path is a route that accepts a photo upload.
func IsUploadPath(path string) bool {
	return path == "/add" || strings.HasPrefix(path, "/edit/")
}

func noDirListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
