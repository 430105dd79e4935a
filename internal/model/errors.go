// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// エラー種別。ハンドラーはerrors.Isでこれらを判定してHTTPステータスに変換する。
var (
	// ErrInvalidRequest は認可コードやトークンが欠けている等のクライアントエラー。
	ErrInvalidRequest = errors.New("invalid request")
	// ErrTokenExchangeFailed はプロバイダーが認可コードを拒否したことを示す。
	ErrTokenExchangeFailed = errors.New("token exchange failed")
	// ErrIdentityFetchFailed はユーザー情報の取得に失敗したことを示す。ログインは中断する。
	ErrIdentityFetchFailed = errors.New("identity fetch failed")
	// ErrGuildFetchFailed はギルド一覧の取得に失敗したことを示す。ログインは継続する。
	ErrGuildFetchFailed = errors.New("guild fetch failed")
	// ErrInvalidSession は署名不一致または不正な形式のセッショントークン。
	ErrInvalidSession = errors.New("invalid session")
	// ErrSessionExpired は有効期限切れのセッショントークン。
	ErrSessionExpired = errors.New("session expired")
	// ErrUpstreamUnavailable はポーラーに到達できないことを示す。
	// 集約ゲートウェイ内でフォールバックに変換され、ブラウザには返らない。
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrUserNotFound はユーザーディレクトリにユーザーが存在しないことを示す。
	ErrUserNotFound = errors.New("user not found")
)

// ProviderError はOAuthプロバイダー呼び出しの失敗を表す。
// 診断用にプロバイダーのレスポンスボディをそのまま保持する。
type ProviderError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

// Error はerrorインターフェースを実装する。
func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: provider returned status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap はラップしたエラー種別を返す。
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, system
	Action   string // ユーザー向け対処方法
	Details  string // 診断情報（プロバイダーのレスポンス等）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidRequest       = "INVALID_REQUEST"
	ErrCodeTokenExchangeFailed  = "TOKEN_EXCHANGE_FAILED"
	ErrCodeAuthenticationFailed = "AUTHENTICATION_FAILED"
	ErrCodeInvalidSession       = "INVALID_SESSION"
	ErrCodeSessionExpired       = "SESSION_EXPIRED"
	ErrCodeUserNotFound         = "USER_NOT_FOUND"
	ErrCodeRateLimited          = "RATE_LIMIT_EXCEEDED"
	ErrCodeNotFound             = "NOT_FOUND"
	ErrCodeInternal             = "INTERNAL_ERROR"
)

// NewInvalidRequestError はリクエスト不正エラーを生成する。
func NewInvalidRequestError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  message,
		Category: "validation",
		Action:   "Check the request parameters and try again.",
	}
}

// NewTokenExchangeFailedError は認可コード交換失敗エラーを生成する。
// detailsにはプロバイダーのレスポンスボディを含める。
func NewTokenExchangeFailedError(details string) *APIError {
	return &APIError{
		Code:     ErrCodeTokenExchangeFailed,
		Message:  "Failed to exchange code for token",
		Category: "auth",
		Action:   "Start the Discord login again.",
		Details:  details,
	}
}

// NewAuthenticationFailedError は汎用の認証失敗エラーを生成する。
func NewAuthenticationFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthenticationFailed,
		Message:  "Authentication failed",
		Category: "auth",
		Action:   "Please wait a moment and log in again.",
	}
}

// NewInvalidSessionError は無効なセッションエラーを生成する。
func NewInvalidSessionError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSession,
		Message:  "Invalid session token",
		Category: "auth",
		Action:   "Log in again.",
	}
}

// NewSessionExpiredError はセッション期限切れエラーを生成する。
func NewSessionExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionExpired,
		Message:  "Session token has expired",
		Category: "auth",
		Action:   "Log in again.",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "User not found",
		Category: "auth",
		Action:   "Log in again.",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many requests. Please try again later.",
		Category: "system",
		Action:   "Please wait and retry after the specified time.",
	}
}

// NewNotFoundError は存在しないエンドポイントへのリクエストを表すエラーを生成する。
func NewNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  "Resource not found",
		Category: "validation",
		Action:   "Check the request path.",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "Internal server error",
		Category: "system",
		Action:   "Please wait a moment and try again.",
	}
}
