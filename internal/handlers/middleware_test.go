package handlers

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRateLimiter_Allow(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	if !rl.Allow("1.2.3.4") || !rl.Allow("1.2.3.4") {
		t.Fatalf("first two requests should pass")
	}
	if rl.Allow("1.2.3.4") {
		t.Fatalf("third request inside the window should be refused")
	}
	if !rl.Allow("5.6.7.8") {
		t.Fatalf("other clients have their own budget")
	}

	now = now.Add(time.Minute + time.Second)
	if !rl.Allow("1.2.3.4") {
		t.Fatalf("a new window should reset the budget")
	}
}

func TestRateLimiter_PrunesStaleVisitors(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, time.Minute)
	rl.now = func() time.Time { return now }

	rl.Allow("a")
	rl.Allow("b")
	now = now.Add(2 * time.Minute)
	rl.Allow("c")

	if len(rl.visitors) != 1 {
		t.Fatalf("expected stale visitors pruned, have %d", len(rl.visitors))
	}
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	h := rl.Middleware(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = "10.0.0.1:4242"
		rec := httptest.NewRecorder()
		h(rec, req)
		return rec.Code
	}
	if code := send(); code != http.StatusNoContent {
		t.Fatalf("first request: got %d", code)
	}
	if code := send(); code != http.StatusTooManyRequests {
		t.Fatalf("second request: expected 429, got %d", code)
	}
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	h := SecurityHeadersMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	for _, name := range []string{"X-Content-Type-Options", "X-Frame-Options", "Content-Security-Policy"} {
		if rec.Header().Get(name) == "" {
			t.Errorf("missing %s", name)
		}
	}
}

func TestSafeNext(t *testing.T) {
	tests := map[string]string{
		"":                  "/",
		"/add":              "/add",
		"/edit/3?x=1":       "/edit/3?x=1",
		"//evil.example":    "/",
		`/\evil.example`:    "/",
		"https://evil.test": "/",
		"relative":          "/",
	}
	for in, want := range tests {
		if got := safeNext(in); got != want {
			t.Errorf("safeNext(%q) = %q, want %q", in, got, want)
		}
	}
}

func multipartBody(t *testing.T, fileSize int) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("name", "Tractor A"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	fw, err := mw.CreateFormFile("image", "big.jpg")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(bytes.Repeat([]byte("x"), fileSize)); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestBodyLimitMiddleware(t *testing.T) {
	const max = 4 << 10
	var reached *http.Request
	h := BodyLimitMiddleware(max, IsUploadPath)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = r
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name     string
		method   string
		path     string
		fileSize int
		chunked  bool
		want     int
	}{
		{"small upload passes", http.MethodPost, "/add", 100, false, http.StatusNoContent},
		{"declared length over limit", http.MethodPost, "/add", 3 * max, false, http.StatusRequestEntityTooLarge},
		{"streamed body over limit", http.MethodPost, "/edit/7", 3 * max, true, http.StatusRequestEntityTooLarge},
		{"other routes are not limited", http.MethodPost, "/login", 3 * max, false, http.StatusNoContent},
		{"safe methods are not limited", http.MethodGet, "/add", 3 * max, false, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reached = nil
			body, contentType := multipartBody(t, tt.fileSize)
			var r io.Reader = body
			if tt.chunked {
				r = io.MultiReader(body)
			}
			req := httptest.NewRequest(tt.method, tt.path, r)
			req.Header.Set("Content-Type", contentType)
			if tt.chunked {
				req.ContentLength = -1
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rec.Code)
			}
			if tt.want == http.StatusRequestEntityTooLarge {
				if reached != nil {
					t.Fatalf("oversized request reached the next handler")
				}
				if !strings.Contains(rec.Body.String(), "File too large. Max 4 KB.") {
					t.Fatalf("unexpected body %q", rec.Body.String())
				}
			}
		})
	}
}

func TestBodyLimitMiddleware_ParsesFormForLaterReaders(t *testing.T) {
	h := BodyLimitMiddleware(1<<20, IsUploadPath)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.MultipartForm == nil {
			t.Fatalf("multipart form not parsed")
		}
		if got := r.PostFormValue("name"); got != "Tractor A" {
			t.Errorf("PostFormValue(name) = %q", got)
		}
		if files := r.MultipartForm.File["image"]; len(files) != 1 || files[0].Size != 100 {
			t.Errorf("uploaded file not available: %+v", files)
		}
	}))
	body, contentType := multipartBody(t, 100)
	req := httptest.NewRequest(http.MethodPost, "/add", body)
	req.Header.Set("Content-Type", contentType)
	h.ServeHTTP(httptest.NewRecorder(), req)
}

func TestTooLargeMessage(t *testing.T) {
	if got := tooLargeMessage(10 << 20); got != "File too large. Max 10 MB." {
		t.Errorf("got %q", got)
	}
	if got := tooLargeMessage(512 << 10); got != "File too large. Max 512 KB." {
		t.Errorf("got %q", got)
	}
}
