package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

// TestRequestIDMiddleware_GeneratesAndPropagates はリクエストIDの生成と引き継ぎを検証する。
func TestRequestIDMiddleware_GeneratesAndPropagates(t *testing.T) {
	var seen string
	handler := NewRequestIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" {
		t.Fatal("expected generated request id")
	}
	if got := w.Header().Get(RequestIDHeader); got != seen {
		t.Errorf("response header = %q, want %q", got, seen)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "client-supplied")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if seen != "client-supplied" {
		t.Errorf("request id = %q, want client-supplied", seen)
	}
}

// TestMiddlewareChain_RecoveryReturnsJSON500 はpanicが統一フォーマットの500に変換されることを検証する。
func TestMiddlewareChain_RecoveryReturnsJSON500(t *testing.T) {
	r := chi.NewRouter()
	r.Use(NewRequestIDMiddleware())
	r.Use(NewRecoveryMiddleware())
	r.Use(NewSecurityHeadersMiddleware())
	r.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if body := decodeError(t, w); body.Success {
		t.Error("success should be false")
	}
}

// TestMiddlewareChain_AuthGroup は認証グループのみがトークンを要求することを検証する。
func TestMiddlewareChain_AuthGroup(t *testing.T) {
	r := chi.NewRouter()
	r.Use(NewSecurityHeadersMiddleware())
	r.Get("/public", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Group(func(r chi.Router) {
		r.Use(NewBearerAuthMiddleware(verifierFor("tok", "u1")))
		r.Get("/private", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	tests := []struct {
		path   string
		token  string
		status int
	}{
		{"/public", "", http.StatusOK},
		{"/private", "", http.StatusUnauthorized},
		{"/private", "tok", http.StatusOK},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, tt.path, nil)
		if tt.token != "" {
			req.Header.Set("Authorization", "Bearer "+tt.token)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != tt.status {
			t.Errorf("%s (token=%q): status = %d, want %d", tt.path, tt.token, w.Code, tt.status)
		}
		if w.Header().Get("X-Content-Type-Options") != "nosniff" {
			t.Errorf("%s: missing security headers", tt.path)
		}
	}
}
