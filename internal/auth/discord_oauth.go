package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/hitoshi/guilddash/internal/model"
)

const (
	defaultDiscordAuthURL  = "https://discord.com/oauth2/authorize"
	defaultDiscordTokenURL = "https://discord.com/api/oauth2/token"
	defaultDiscordAPIURL   = "https://discord.com/api/v10"

	// maxProviderBody はエラー診断用に保持するレスポンスボディの上限。
	maxProviderBody = 64 * 1024
	// maxResponseBody は正常レスポンスとして読み込むボディの上限。
	// 参加ギルドが多いユーザーのギルド一覧も収まる大きさにする。
	maxResponseBody = 8 * 1024 * 1024
)

// discordScopes はログイン時に要求するスコープ。
var discordScopes = []string{"identify", "email", "guilds"}

// DiscordOAuthConfig はDiscord OAuthプロバイダーの設定。
type DiscordOAuthConfig struct {
	ClientID     string
	ClientSecret string
	// RedirectURL は認可リダイレクト時と完全に一致している必要がある（プロバイダー側で検証される）。
	RedirectURL string

	// テスト用にオーバーライド可能なURL
	AuthURL    string
	TokenURL   string
	APIBaseURL string

	// HTTPClient はプロバイダー呼び出しに使用するクライアント。
	// 未指定の場合はhttp.DefaultClientを使用する。本番ではsecurity.NewProviderClientを渡す。
	HTTPClient *http.Client
}

// DiscordOAuthProvider はDiscord OAuth 2.0の認可コードフローを提供する。
type DiscordOAuthProvider struct {
	oauth      *oauth2.Config
	apiBaseURL string
	httpClient *http.Client
}

// NewDiscordOAuthProvider はDiscordOAuthProviderを生成する。
func NewDiscordOAuthProvider(config DiscordOAuthConfig) *DiscordOAuthProvider {
	if config.AuthURL == "" {
		config.AuthURL = defaultDiscordAuthURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultDiscordTokenURL
	}
	if config.APIBaseURL == "" {
		config.APIBaseURL = defaultDiscordAPIURL
	}
	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}

	return &DiscordOAuthProvider{
		oauth: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURL,
			Scopes:       discordScopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   config.AuthURL,
				TokenURL:  config.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		apiBaseURL: strings.TrimRight(config.APIBaseURL, "/"),
		httpClient: config.HTTPClient,
	}
}

// RawIdentity はDiscordの /users/@me レスポンス。
type RawIdentity struct {
	ID            string  `json:"id"`
	Username      string  `json:"username"`
	GlobalName    *string `json:"global_name"`
	Discriminator string  `json:"discriminator"`
	Avatar        *string `json:"avatar"`
	Email         *string `json:"email"`
	Verified      *bool   `json:"verified"`
	Locale        *string `json:"locale"`
}

// RawGuild はDiscordの /users/@me/guilds レスポンスの1要素。
type RawGuild struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Icon        *string     `json:"icon"`
	Owner       bool        `json:"owner"`
	Permissions Permissions `json:"permissions"`
}

// Permissions はギルドの権限ビットマスク。
// API v10では10進文字列、旧バージョンでは数値で返るため両方を受け付ける。
type Permissions uint64

// UnmarshalJSON はjson.Unmarshalerを実装する。
func (p *Permissions) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*p = 0
		return nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid permissions value %q: %w", s, err)
	}
	*p = Permissions(v)
	return nil
}

// GetLoginURL はDiscordの認可URLを生成する。
func (p *DiscordOAuthProvider) GetLoginURL(state string) string {
	return p.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "consent"))
}

// ExchangeCode は認可コードをアクセストークンに交換する。
// 認可コードは1回限りのため、失敗してもリトライしない。
func (p *DiscordOAuthProvider) ExchangeCode(ctx context.Context, code string) (*model.TokenPair, error) {
	if code == "" {
		return nil, fmt.Errorf("authorization code is required: %w", model.ErrInvalidRequest)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	tok, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			status := 0
			if retrieveErr.Response != nil {
				status = retrieveErr.Response.StatusCode
			}
			return nil, &model.ProviderError{
				Op:         "exchange code",
				StatusCode: status,
				Body:       string(retrieveErr.Body),
				Err:        model.ErrTokenExchangeFailed,
			}
		}
		return nil, &model.ProviderError{Op: "exchange code", Err: err}
	}

	expiresIn := 0
	if !tok.Expiry.IsZero() {
		expiresIn = int(time.Until(tok.Expiry).Round(time.Second).Seconds())
	}

	return &model.TokenPair{
		AccessToken:      tok.AccessToken,
		TokenType:        tok.Type(),
		ExpiresInSeconds: expiresIn,
	}, nil
}

// FetchIdentity はアクセストークンで認証ユーザー情報を取得する。
// 失敗はログイン全体の失敗として扱う。
func (p *DiscordOAuthProvider) FetchIdentity(ctx context.Context, token *model.TokenPair) (*RawIdentity, error) {
	var identity RawIdentity
	if err := p.getJSON(ctx, "fetch identity", "/users/@me", token, model.ErrIdentityFetchFailed, &identity); err != nil {
		return nil, err
	}

	if identity.ID == "" {
		return nil, &model.ProviderError{
			Op:  "fetch identity",
			Err: fmt.Errorf("%w: empty id in response", model.ErrIdentityFetchFailed),
		}
	}

	return &identity, nil
}

// FetchGuilds はアクセストークンで所属ギルド一覧を取得する。
func (p *DiscordOAuthProvider) FetchGuilds(ctx context.Context, token *model.TokenPair) ([]RawGuild, error) {
	var guilds []RawGuild
	if err := p.getJSON(ctx, "fetch guilds", "/users/@me/guilds", token, model.ErrGuildFetchFailed, &guilds); err != nil {
		return nil, err
	}
	return guilds, nil
}

// getJSON はBearer認証付きGETを実行し、レスポンスをdstにデコードする。
// 失敗時はkindをラップしたProviderErrorを返す。
func (p *DiscordOAuthProvider) getJSON(ctx context.Context, op, path string, token *model.TokenPair, kind error, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBaseURL+path, nil)
	if err != nil {
		return &model.ProviderError{Op: op, Err: fmt.Errorf("%w: failed to create request: %v", kind, err)}
	}
	req.Header.Set("Authorization", token.TokenType+" "+token.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return &model.ProviderError{Op: op, Err: fmt.Errorf("%w: request failed: %v", kind, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxProviderBody))
		return &model.ProviderError{Op: op, StatusCode: resp.StatusCode, Body: string(body), Err: kind}
	}

	// 上限を1バイト超えて読み、切り詰めが起きたかを判定する
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody+1))
	if err != nil {
		return &model.ProviderError{Op: op, Err: fmt.Errorf("%w: failed to read response: %v", kind, err)}
	}
	if len(body) > maxResponseBody {
		return &model.ProviderError{Op: op, Err: fmt.Errorf("%w: response exceeds %d bytes", kind, maxResponseBody)}
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return &model.ProviderError{Op: op, Body: truncateBody(body), Err: fmt.Errorf("%w: failed to parse response: %v", kind, err)}
	}

	return nil
}

// truncateBody は診断用にボディをmaxProviderBodyまでに切り詰める。
func truncateBody(body []byte) string {
	if len(body) > maxProviderBody {
		body = body[:maxProviderBody]
	}
	return string(body)
}

// compile-time interface check
var _ OAuthProvider = (*DiscordOAuthProvider)(nil)
