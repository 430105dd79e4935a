package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/guilddash/internal/model"
)

// --- モック定義 ---

type mockVerifier struct {
	verifyFn func(token string) (*model.SessionClaims, error)
}

func (m *mockVerifier) Verify(token string) (*model.SessionClaims, error) {
	if m.verifyFn != nil {
		return m.verifyFn(token)
	}
	return nil, model.ErrInvalidSession
}

func verifierFor(valid, userID string) *mockVerifier {
	return &mockVerifier{
		verifyFn: func(token string) (*model.SessionClaims, error) {
			if token == valid {
				return &model.SessionClaims{SubjectID: userID, Username: "laylay98"}, nil
			}
			return nil, fmt.Errorf("parse: %w", model.ErrInvalidSession)
		},
	}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponseBody {
	t.Helper()
	var body ErrorResponseBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body
}

// --- テスト ---

func TestBearerAuth_ValidToken_InjectsClaims(t *testing.T) {
	mw := NewBearerAuthMiddleware(verifierFor("good-token", "544896191507275776"))

	var capturedUserID, capturedUsername string
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := UserIDFromContext(r.Context())
		if err != nil {
			t.Errorf("expected no error, got %v", err)
		}
		capturedUserID = userID
		if claims, ok := ClaimsFromContext(r.Context()); ok {
			capturedUsername = claims.Username
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if capturedUserID != "544896191507275776" {
		t.Errorf("userID = %q, want %q", capturedUserID, "544896191507275776")
	}
	if capturedUsername != "laylay98" {
		t.Errorf("username = %q, want %q", capturedUsername, "laylay98")
	}
}

func TestBearerAuth_MissingHeader_Returns401(t *testing.T) {
	called := false
	verifier := &mockVerifier{verifyFn: func(string) (*model.SessionClaims, error) {
		called = true
		return nil, nil
	}}
	handler := NewBearerAuthMiddleware(verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if called {
		t.Error("verifier should not be called without a token")
	}
	if body := decodeError(t, w); body.Code != model.ErrCodeInvalidSession {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeInvalidSession)
	}
}

func TestBearerAuth_InvalidToken_Returns401InvalidSession(t *testing.T) {
	handler := NewBearerAuthMiddleware(verifierFor("good-token", "u1"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer forged-token")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	body := decodeError(t, w)
	if body.Success {
		t.Error("success should be false")
	}
	if body.Code != model.ErrCodeInvalidSession {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeInvalidSession)
	}
}

func TestBearerAuth_ExpiredToken_Returns401SessionExpired(t *testing.T) {
	verifier := &mockVerifier{verifyFn: func(string) (*model.SessionClaims, error) {
		return nil, fmt.Errorf("verify: %w", model.ErrSessionExpired)
	}}
	handler := NewBearerAuthMiddleware(verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer old-token")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if body := decodeError(t, w); body.Code != model.ErrCodeSessionExpired {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeSessionExpired)
	}
}

func TestBearerToken_Parsing(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"bearer", "Bearer abc.def.ghi", "abc.def.ghi"},
		{"lowercase scheme", "bearer abc", "abc"},
		{"empty", "", ""},
		{"basic scheme", "Basic dXNlcjpwYXNz", ""},
		{"scheme only", "Bearer", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if got := BearerToken(req); got != tt.want {
				t.Errorf("BearerToken() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUserIDFromContext_Missing_ReturnsError(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, err := UserIDFromContext(req.Context()); err == nil {
		t.Error("expected error for missing user ID")
	}
	if _, ok := ClaimsFromContext(req.Context()); ok {
		t.Error("expected no claims in empty context")
	}
}

func TestOptionalAuth_InjectsClaimsOnlyForValidToken(t *testing.T) {
	mw := NewOptionalAuthMiddleware(verifierFor("good-token", "544896191507275776"))

	tests := []struct {
		name       string
		header     string
		wantUserID string
	}{
		{"valid token", "Bearer good-token", "544896191507275776"},
		{"invalid token", "Bearer forged", ""},
		{"no header", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotUserID string
			called := false
			handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				gotUserID, _ = UserIDFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/servers", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if !called || rec.Code != http.StatusOK {
				t.Fatalf("expected request to pass through, called=%v status=%d", called, rec.Code)
			}
			if gotUserID != tt.wantUserID {
				t.Errorf("expected user ID %q, got %q", tt.wantUserID, gotUserID)
			}
		})
	}
}
