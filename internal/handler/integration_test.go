package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/guilddash/internal/aggregate"
	"github.com/hitoshi/guilddash/internal/auth"
	"github.com/hitoshi/guilddash/internal/middleware"
	"github.com/hitoshi/guilddash/internal/model"
	"github.com/hitoshi/guilddash/internal/repository"
	"github.com/hitoshi/guilddash/internal/security"
	"github.com/hitoshi/guilddash/internal/session"
)

// fakeDiscord はDiscordのトークン、ユーザー、ギルドの各エンドポイントを模倣する。
type fakeDiscord struct {
	tokenStatus int
	tokenBody   string
	identity    map[string]any
	guildCount  int
}

func (f *fakeDiscord) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if f.tokenStatus != 0 && f.tokenStatus != http.StatusOK {
			w.WriteHeader(f.tokenStatus)
			w.Write([]byte(f.tokenBody))
			return
		}
		w.Write([]byte(`{"access_token":"provider-access","token_type":"Bearer","expires_in":604800,"scope":"identify email guilds"}`))
	})
	mux.HandleFunc("GET /api/users/@me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer provider-access" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(f.identity)
	})
	mux.HandleFunc("GET /api/users/@me/guilds", func(w http.ResponseWriter, r *http.Request) {
		guilds := make([]map[string]any, 0, f.guildCount)
		for i := 0; i < f.guildCount; i++ {
			guilds = append(guilds, map[string]any{
				"id":          fmt.Sprintf("90000000000000%04d", i),
				"name":        "Guild",
				"icon":        nil,
				"owner":       i == 0,
				"permissions": "2147483647",
			})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(guilds)
	})
	return mux
}

type testStack struct {
	router http.Handler
	users  *repository.MemoryUserRepo
}

// newTestStack は実際のサービス群を組み合わせたダッシュボードAPIを生成する。
// ポーラーは到達不能なアドレスを指す。
func newTestStack(t *testing.T, discord *fakeDiscord) *testStack {
	t.Helper()

	provider := httptest.NewServer(discord.handler())
	t.Cleanup(provider.Close)

	// 到達不能なポーラー: 起動してすぐ閉じたサーバーのアドレスを使う
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	issuer, err := session.NewIssuer(session.Config{Secret: "integration-secret", TTL: time.Hour})
	require.NoError(t, err)

	users := repository.NewMemoryUserRepo(time.Hour)
	authService := auth.NewService(
		auth.NewDiscordOAuthProvider(auth.DiscordOAuthConfig{
			ClientID:     "client",
			ClientSecret: "secret",
			RedirectURL:  "http://localhost:3000/auth/callback",
			TokenURL:     provider.URL + "/oauth2/token",
			APIBaseURL:   provider.URL + "/api",
			HTTPClient:   provider.Client(),
		}),
		issuer,
		users,
		security.NewProfileSanitizer(),
		nil,
		auth.ServiceConfig{},
	)

	gateway := aggregate.NewGateway(
		aggregate.Config{BaseURL: deadURL, Timeout: 500 * time.Millisecond},
		nil,
		aggregate.NewFallbackGenerator(rand.New(rand.NewPCG(7, 7)), nil),
		discardLogger(),
		nil,
	)

	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(rl.Stop)

	return &testStack{
		router: NewRouter(&RouterDeps{
			SessionVerifier:   issuer,
			CORSAllowedOrigin: "http://localhost:3000",
			RateLimiter:       rl,
			Logger:            discardLogger(),
			AuthService:       authService,
			DashboardService:  gateway,
		}),
		users: users,
	}
}

func (s *testStack) do(t *testing.T, method, path, token, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded), "raw: %s", rec.Body.String())
	return rec, decoded
}

func laylayIdentity() map[string]any {
	return map[string]any{
		"id":            "544896191507275776",
		"username":      "laylay98",
		"global_name":   nil,
		"discriminator": "1",
		"avatar":        nil,
		"email":         "lay@example.com",
		"verified":      true,
		"locale":        "en-US",
	}
}

// プロバイダーがトークン交換を拒否した場合は400とプロバイダーのエラーを返す。
func TestIntegration_TokenExchangeRejected(t *testing.T) {
	stack := newTestStack(t, &fakeDiscord{
		tokenStatus: http.StatusBadRequest,
		tokenBody:   `{"error": "invalid_grant", "error_description": "Invalid \"code\" in request."}`,
		identity:    laylayIdentity(),
	})

	rec, body := stack.do(t, http.MethodPost, "/api/auth/discord", "", `{"code":"reused"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Failed to exchange code for token", body["error"])
	assert.Contains(t, body["details"], "invalid_grant")
	stored, err := stack.users.FindByID(context.Background(), "544896191507275776")
	require.NoError(t, err)
	assert.Nil(t, stored, "交換に失敗したユーザーは保存しない")
}

// アバター未設定のユーザーはディスクリミネーターから既定アバターが決まる。
func TestIntegration_LoginDefaultAvatarAndSession(t *testing.T) {
	stack := newTestStack(t, &fakeDiscord{identity: laylayIdentity(), guildCount: 12})

	rec, body := stack.do(t, http.MethodPost, "/api/auth/discord", "", `{"code":"fresh"}`)
	require.Equal(t, http.StatusOK, rec.Code, "body: %v", body)

	user := body["user"].(map[string]any)
	assert.Equal(t, "544896191507275776", user["id"])
	assert.Equal(t, "laylay98", user["username"])
	assert.Equal(t, "https://cdn.discordapp.com/embed/avatars/1.png", user["avatarUrl"])
	assert.Len(t, user["guilds"], 10)

	token, _ := body["token"].(string)
	require.NotEmpty(t, token)

	// トークンで本人情報を取得できる
	rec, me := stack.do(t, http.MethodGet, "/api/auth/me", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"id": "544896191507275776", "username": "laylay98", "email": "lay@example.com"}, me["user"])

	// 保存済みユーザーは全ギルドを持つ
	rec, full := stack.do(t, http.MethodGet, "/api/auth/user", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, full["user"].(map[string]any)["guilds"], 12)

	// リフレッシュしたトークンも検証できる
	rec, refreshed := stack.do(t, http.MethodPost, "/api/auth/refresh", "", `{"token":"`+token+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	newToken, _ := refreshed["token"].(string)
	require.NotEmpty(t, newToken)

	rec, _ = stack.do(t, http.MethodGet, "/api/auth/me", newToken, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	// プロフィール編集はサニタイズされ、新しいトークンを返す
	rec, edited := stack.do(t, http.MethodPut, "/api/auth/profile", token, `{"username":"<script>x</script>Lay"}`)
	require.Equal(t, http.StatusOK, rec.Code, "body: %v", edited)
	assert.Equal(t, "Lay", edited["user"].(map[string]any)["username"])
	assert.NotEmpty(t, edited["token"])
}

// ポーラーに到達できない場合もダッシュボードはフォールバックデータで200を返す。
func TestIntegration_PollerUnreachable_FallsBack(t *testing.T) {
	stack := newTestStack(t, &fakeDiscord{identity: laylayIdentity()})

	start := time.Now()
	rec, body := stack.do(t, http.MethodGet, "/api/servers", "", "")
	elapsed := time.Since(start)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, string(model.DataSourceFallback), body["dataSource"])
	servers := body["data"].(map[string]any)["servers"].([]any)
	assert.NotEmpty(t, servers)
	assert.Less(t, elapsed, 3*time.Second)

	for _, path := range []string{"/api/analytics/dashboard", "/api/commands", "/api/bot/status"} {
		rec, body := stack.do(t, http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, string(model.DataSourceFallback), body["dataSource"], path)
	}
}

// 改ざんされたトークンは401になる。
func TestIntegration_TamperedToken_Rejected(t *testing.T) {
	stack := newTestStack(t, &fakeDiscord{identity: laylayIdentity()})

	_, body := stack.do(t, http.MethodPost, "/api/auth/discord", "", `{"code":"fresh"}`)
	token := body["token"].(string)
	tampered := token[:len(token)-2] + "xx"
	if tampered == token {
		tampered = token + "x"
	}

	rec, errBody := stack.do(t, http.MethodGet, "/api/auth/me", tampered, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, model.ErrCodeInvalidSession, errBody["code"])
}
