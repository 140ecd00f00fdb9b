package app

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/kakhikvaratskhelia-boop/AGRO-RENT2/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		Port:            "8585",
		DBPath:          filepath.Join(dir, "farm.db"),
		UploadDir:       filepath.Join(dir, "uploads"),
		MaxUploadBytes:  1 << 20,
		CSRFKey:         []byte("0123456789abcdef0123456789abcdef"),
		SessionKey:      []byte("fedcba9876543210fedcba9876543210"),
		SessionTTL:      time.Hour,
		AdminUsername:   "admin",
		AdminPassword:   "123",
		AdminPhone:      "555000000",
		LoginRateLimit:  10,
		LoginRateWindow: time.Minute,
	}
}

func TestNew_SeedsAdminOnce(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	a, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	admin, err := a.Store.GetUserByUsername(ctx, "admin")
	if err != nil || admin == nil {
		t.Fatalf("admin not seeded: %v", err)
	}
	if !admin.IsAdmin || admin.Phone != "555000000" {
		t.Fatalf("unexpected admin: %+v", admin)
	}
	if bcrypt.CompareHashAndPassword([]byte(admin.Password), []byte("123")) != nil {
		t.Fatalf("admin password not hashed from config")
	}
	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// A second start with a different password keeps the existing account.
	cfg.AdminPassword = "changed"
	a, err = New(ctx, cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer a.Close()
	users, err := a.Store.ListUsers(ctx)
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected a single admin, got %d users", len(users))
	}
	again, _ := a.Store.GetUserByUsername(ctx, "admin")
	if bcrypt.CompareHashAndPassword([]byte(again.Password), []byte("123")) != nil {
		t.Fatalf("existing admin password was overwritten")
	}
}

func TestHandler(t *testing.T) {
	a, err := New(context.Background(), testConfig(t))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer a.Close()
	h := a.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("index: expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("Content-Security-Policy") == "" {
		t.Fatalf("security headers missing")
	}
	if !strings.Contains(rec.Body.String(), "No listings found.") {
		t.Fatalf("expected empty index: %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login", nil))
	if !strings.Contains(rec.Body.String(), `name="gorilla.csrf.Token"`) {
		t.Fatalf("login form lacks a CSRF field")
	}

	// State-changing requests without a token are rejected.
	form := url.Values{"username": {"admin"}, "password": {"123"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("POST without CSRF token: expected 403, got %d", rec.Code)
	}
}

var csrfFieldRe = regexp.MustCompile(`name="gorilla\.csrf\.Token" value="([^"]+)"`)

// browser drives the full handler chain the way a form-submitting browser
// does: cookies are kept and every POST carries the token from the page.
type browser struct {
	t      *testing.T
	base   string
	client *http.Client
}

func newBrowser(t *testing.T, srv *httptest.Server) *browser {
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &browser{t: t, base: srv.URL, client: &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}}
}

func (b *browser) do(req *http.Request) (int, string) {
	b.t.Helper()
	resp, err := b.client.Do(req)
	if err != nil {
		b.t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		b.t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(body)
}

// token loads page and returns the CSRF token embedded in its form.
func (b *browser) token(page string) string {
	b.t.Helper()
	req, _ := http.NewRequest(http.MethodGet, b.base+page, nil)
	status, body := b.do(req)
	if status != http.StatusOK {
		b.t.Fatalf("GET %s: status %d", page, status)
	}
	m := csrfFieldRe.FindStringSubmatch(body)
	if m == nil {
		b.t.Fatalf("GET %s: no CSRF field in page", page)
	}
	return m[1]
}

func (b *browser) postForm(page, action string, form url.Values) int {
	b.t.Helper()
	form.Set("gorilla.csrf.Token", b.token(page))
	req, _ := http.NewRequest(http.MethodPost, b.base+action, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	status, _ := b.do(req)
	return status
}

func (b *browser) postMultipart(page, action string, fields map[string]string, filename string, content []byte) (int, string) {
	b.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("gorilla.csrf.Token", b.token(page))
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	fw, err := mw.CreateFormFile("image", filename)
	if err != nil {
		b.t.Fatalf("create form file: %v", err)
	}
	_, _ = fw.Write(content)
	_ = mw.Close()
	req, _ := http.NewRequest(http.MethodPost, b.base+action, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return b.do(req)
}

func TestHandler_ListingLifecycle(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxUploadBytes = 64 << 10
	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer a.Close()
	srv := httptest.NewServer(a.Handler())
	defer srv.Close()
	ctx := context.Background()
	b := newBrowser(t, srv)

	if status := b.postForm("/login", "/login", url.Values{"username": {"admin"}, "password": {"123"}}); status != http.StatusSeeOther {
		t.Fatalf("login: expected 303, got %d", status)
	}

	fields := map[string]string{"name": "Tractor A", "category": "Tractor", "price": "50"}
	status, body := b.postMultipart("/add", "/add", fields, "tractor.jpg", []byte("small photo"))
	if status != http.StatusSeeOther {
		t.Fatalf("create: expected 303, got %d: %s", status, body)
	}
	list, err := a.Store.ListMachines(ctx, "")
	if err != nil || len(list) != 1 {
		t.Fatalf("expected one listing: %d %v", len(list), err)
	}
	m := list[0]
	id := strconv.FormatInt(m.ID, 10)

	// A photo over the limit is refused before anything is stored.
	big := bytes.Repeat([]byte("x"), 2*int(cfg.MaxUploadBytes))
	status, body = b.postMultipart("/add", "/add", fields, "big.jpg", big)
	if status != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized create: expected 413, got %d", status)
	}
	if !strings.Contains(body, "File too large. Max 64 KB.") {
		t.Fatalf("unexpected 413 body: %s", body)
	}
	status, _ = b.postMultipart("/edit/"+id, "/edit/"+id, fields, "big.jpg", big)
	if status != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized edit: expected 413, got %d", status)
	}
	if list, _ := a.Store.ListMachines(ctx, ""); len(list) != 1 {
		t.Fatalf("oversized upload stored a listing: %d", len(list))
	}
	entries, err := os.ReadDir(cfg.UploadDir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected only the first photo on disk: %d %v", len(entries), err)
	}

	status = b.postForm("/edit/"+id, "/edit/"+id, url.Values{"name": {"Tractor B"}, "category": {"Tractor"}, "price": {"65"}})
	if status != http.StatusSeeOther {
		t.Fatalf("edit: expected 303, got %d", status)
	}
	got, err := a.Store.GetMachineByID(ctx, m.ID)
	if err != nil || got.Name != "Tractor B" || got.Price != 65 || got.ImageFile != m.ImageFile {
		t.Fatalf("unexpected listing after edit: %+v %v", got, err)
	}

	if status := b.postForm("/machine/"+id, "/delete/"+id, url.Values{}); status != http.StatusSeeOther {
		t.Fatalf("delete: expected 303, got %d", status)
	}
	if list, _ := a.Store.ListMachines(ctx, ""); len(list) != 0 {
		t.Fatalf("listing not deleted")
	}
	if entries, _ := os.ReadDir(cfg.UploadDir); len(entries) != 0 {
		t.Fatalf("photo not removed with the listing")
	}
}
