// Package model はドメインモデルを定義する。
package model

import "time"

// CanonicalUser はダッシュボードで扱う正規化済みユーザーを表す。
// ログインごとにIdentity Normalizerが生成し、生成後は変更しない。
// プロフィール編集は新しい値を生成して置き換える。
type CanonicalUser struct {
	ID         string         `json:"id"`
	Username   string         `json:"username"`
	GlobalName *string        `json:"globalName"`
	AvatarURL  string         `json:"avatarUrl"`
	Email      *string        `json:"email"`
	Verified   *bool          `json:"verified"`
	Locale     *string        `json:"locale"`
	Guilds     []GuildSummary `json:"guilds"`
}

// EmailOrEmpty はメールアドレスを返す。未設定の場合は空文字を返す。
func (u *CanonicalUser) EmailOrEmpty() string {
	if u.Email == nil {
		return ""
	}
	return *u.Email
}

// WithGuildLimit はギルド一覧を先頭limit件に制限したコピーを返す。
// limitが0以下の場合は全件を保持する。
func (u *CanonicalUser) WithGuildLimit(limit int) *CanonicalUser {
	cp := *u
	if limit > 0 && len(cp.Guilds) > limit {
		cp.Guilds = cp.Guilds[:limit]
	}
	return &cp
}

// GuildSummary はログイン時点のギルド所属情報を表す。
// ログイン後はプロバイダーと同期しない。
type GuildSummary struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	IconURL     *string `json:"iconUrl"`
	Owner       bool    `json:"owner"`
	Permissions uint64  `json:"permissions"`
}

// TokenPair はプロバイダーから取得したアクセストークン。
// ユーザー情報の取得にのみ使用し、永続化もブラウザへの返却もしない。
type TokenPair struct {
	AccessToken      string
	TokenType        string
	ExpiresInSeconds int
}

// SessionClaims はセッショントークンに含まれるクレーム。
type SessionClaims struct {
	SubjectID string
	Username  string
	Email     string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
