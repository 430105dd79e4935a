// Package auth はDiscord OAuthログインフローとセッション管理を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/guilddash/internal/metrics"
	"github.com/hitoshi/guilddash/internal/model"
	"github.com/hitoshi/guilddash/internal/repository"
)

const (
	// DefaultGuildPreviewLimit はログインレスポンスに含めるギルド数の上限。
	DefaultGuildPreviewLimit = 10

	maxUsernameRunes   = 32
	maxGlobalNameRunes = 32
	maxLocaleRunes     = 10
)

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをアクセストークンに交換する。
	ExchangeCode(ctx context.Context, code string) (*model.TokenPair, error)
	// FetchIdentity は認証ユーザー情報を取得する。
	FetchIdentity(ctx context.Context, token *model.TokenPair) (*RawIdentity, error)
	// FetchGuilds は所属ギルド一覧を取得する。
	FetchGuilds(ctx context.Context, token *model.TokenPair) ([]RawGuild, error)
}

// TokenIssuer はセッショントークンの発行・検証インターフェース。
type TokenIssuer interface {
	Issue(user *model.CanonicalUser) (string, error)
	Verify(token string) (*model.SessionClaims, error)
	Refresh(token string) (string, error)
}

// TextSanitizer はユーザー入力のプロフィール文字列を無害化する。
type TextSanitizer interface {
	SanitizeText(raw string, maxRunes int) string
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	// GuildPreviewLimit はログインレスポンスのギルド数上限。0以下の場合はDefaultGuildPreviewLimit。
	GuildPreviewLimit int
}

// LoginResult はログイン成功時の結果。
type LoginResult struct {
	User  *model.CanonicalUser
	Token string
}

// ProfileUpdate はプロフィール編集の入力。nilのフィールドは変更しない。
type ProfileUpdate struct {
	Username   *string
	GlobalName *string
	Locale     *string
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth     OAuthProvider
	issuer    TokenIssuer
	userRepo  repository.UserRepository
	sanitizer TextSanitizer
	metrics   metrics.MetricsCollector
	config    ServiceConfig
}

// NewService はServiceを生成する。mcがnilの場合はメトリクスを記録しない。
func NewService(
	oauth OAuthProvider,
	issuer TokenIssuer,
	userRepo repository.UserRepository,
	sanitizer TextSanitizer,
	mc metrics.MetricsCollector,
	config ServiceConfig,
) *Service {
	if config.GuildPreviewLimit <= 0 {
		config.GuildPreviewLimit = DefaultGuildPreviewLimit
	}
	if mc == nil {
		mc = metrics.NopCollector{}
	}
	return &Service{
		oauth:     oauth,
		issuer:    issuer,
		userRepo:  userRepo,
		sanitizer: sanitizer,
		metrics:   mc,
		config:    config,
	}
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// Login は認可コードでDiscordログインを行い、セッショントークンを発行する。
// トークン交換、ユーザー情報取得、ギルド取得、トークン発行の順に逐次実行する。
// ギルド取得の失敗は空のギルド一覧として継続する。
func (s *Service) Login(ctx context.Context, code string) (*LoginResult, error) {
	// 1. 認可コードをアクセストークンに交換
	token, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		s.metrics.RecordLogin(loginResultFor(err))
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	// 2. ユーザー情報を取得（失敗はログイン中断）
	identity, err := s.oauth.FetchIdentity(ctx, token)
	if err != nil {
		s.metrics.RecordLogin(metrics.LoginIdentityFailed)
		return nil, fmt.Errorf("failed to fetch identity: %w", err)
	}

	// 3. ギルド一覧を取得（失敗しても継続）
	guilds, err := s.oauth.FetchGuilds(ctx, token)
	if err != nil {
		slog.Warn("guild fetch failed, continuing with empty guild list",
			slog.String("user_id", identity.ID),
			slog.String("error", err.Error()),
		)
		s.metrics.RecordGuildFetchDegraded()
		guilds = nil
	}

	// 4. 正規化して保存（ディレクトリには全ギルドを保持する）
	user := Normalize(identity, guilds, 0)
	if err := s.userRepo.Save(ctx, user); err != nil {
		s.metrics.RecordLogin(metrics.LoginInternalFailure)
		return nil, fmt.Errorf("failed to save user: %w", err)
	}

	// 5. セッショントークンを発行
	session, err := s.issuer.Issue(user)
	if err != nil {
		s.metrics.RecordLogin(metrics.LoginInternalFailure)
		return nil, fmt.Errorf("failed to issue session token: %w", err)
	}

	s.metrics.RecordLogin(metrics.LoginSuccess)
	slog.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.Int("guilds", len(user.Guilds)),
	)

	return &LoginResult{
		User:  user.WithGuildLimit(s.config.GuildPreviewLimit),
		Token: session,
	}, nil
}

// VerifySession はセッショントークンを検証してクレームを返す。
func (s *Service) VerifySession(token string) (*model.SessionClaims, error) {
	return s.issuer.Verify(token)
}

// RefreshSession は有効なセッショントークンを有効期限を延長したトークンに交換する。
func (s *Service) RefreshSession(token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("token is required: %w", model.ErrInvalidRequest)
	}
	return s.issuer.Refresh(token)
}

// GetUser はログイン時に保存したユーザーを全ギルド付きで返す。
func (s *Service) GetUser(ctx context.Context, id string) (*model.CanonicalUser, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.ErrUserNotFound
	}
	return user, nil
}

// UpdateProfile はプロフィールを編集し、新しいユーザーと再発行したトークンを返す。
// プロバイダーへの再検証は行わない。
func (s *Service) UpdateProfile(ctx context.Context, id string, update ProfileUpdate) (*LoginResult, error) {
	current, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	next := *current
	if update.Username != nil {
		username := s.sanitizer.SanitizeText(*update.Username, maxUsernameRunes)
		if username == "" {
			return nil, fmt.Errorf("username must not be empty: %w", model.ErrInvalidRequest)
		}
		next.Username = username
	}
	if update.GlobalName != nil {
		next.GlobalName = optionalText(s.sanitizer.SanitizeText(*update.GlobalName, maxGlobalNameRunes))
	}
	if update.Locale != nil {
		next.Locale = optionalText(s.sanitizer.SanitizeText(*update.Locale, maxLocaleRunes))
	}

	if err := s.userRepo.Save(ctx, &next); err != nil {
		return nil, fmt.Errorf("failed to save user: %w", err)
	}

	token, err := s.issuer.Issue(&next)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session token: %w", err)
	}

	slog.Info("user profile updated", slog.String("user_id", id))
	return &LoginResult{User: &next, Token: token}, nil
}

func optionalText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func loginResultFor(err error) string {
	switch {
	case errors.Is(err, model.ErrInvalidRequest):
		return metrics.LoginInvalidRequest
	case errors.Is(err, model.ErrTokenExchangeFailed):
		return metrics.LoginExchangeFailed
	default:
		return metrics.LoginInternalFailure
	}
}
