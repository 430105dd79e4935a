// Package session はダッシュボードのセッショントークンの発行と検証を提供する。
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/guilddash/internal/model"
)

const (
	// DefaultTTL はセッショントークンの有効期間。
	DefaultTTL = 7 * 24 * time.Hour

	signingMethod = "HS256"
)

// Claims はセッショントークンのJWTクレーム。subにユーザーIDを格納する。
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// Config はIssuerの設定。
type Config struct {
	// Secret は署名用の共有シークレット。必須。
	Secret string
	// TTL は有効期間。未指定の場合はDefaultTTLを使用する。
	TTL time.Duration
	// Now はテスト用の時刻関数。未指定の場合はtime.Nowを使用する。
	Now func() time.Time
}

// Issuer はHMAC署名付きのセッショントークンを発行・検証する。
// 状態を持たないため複数のgoroutineから同時に利用できる。
type Issuer struct {
	key    []byte
	method jwt.SigningMethod
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer はIssuerを生成する。
func NewIssuer(cfg Config) (*Issuer, error) {
	if cfg.Secret == "" {
		return nil, errors.New("session secret must not be empty")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Issuer{
		key:    []byte(cfg.Secret),
		method: jwt.GetSigningMethod(signingMethod),
		ttl:    cfg.TTL,
		now:    cfg.Now,
	}, nil
}

// Issue はユーザーのセッショントークンを発行する。
func (i *Issuer) Issue(user *model.CanonicalUser) (string, error) {
	return i.sign(user.ID, user.Username, user.EmailOrEmpty())
}

// Verify はトークンの署名と有効期限を検証し、クレームを返す。
// 期限切れはErrSessionExpired、それ以外の不正はErrInvalidSessionを返す。
func (i *Issuer) Verify(token string) (*model.SessionClaims, error) {
	if token == "" {
		return nil, fmt.Errorf("token is required: %w", model.ErrInvalidSession)
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (any, error) {
			return i.key, nil
		},
		jwt.WithValidMethods([]string{i.method.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", model.ErrSessionExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidSession, err)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", model.ErrInvalidSession)
	}

	return toSessionClaims(claims), nil
}

// Refresh は有効なトークンと同じサブジェクトで有効期限を延長したトークンを発行する。
// 期限切れのトークンは更新できない。
func (i *Issuer) Refresh(token string) (string, error) {
	claims, err := i.Verify(token)
	if err != nil {
		return "", err
	}
	return i.sign(claims.SubjectID, claims.Username, claims.Email)
}

func (i *Issuer) sign(subject, username, email string) (string, error) {
	now := i.now().Truncate(time.Second)

	t := jwt.NewWithClaims(i.method, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		Username: username,
		Email:    email,
	})

	signed, err := t.SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

func toSessionClaims(c *Claims) *model.SessionClaims {
	sc := &model.SessionClaims{
		SubjectID: c.Subject,
		Username:  c.Username,
		Email:     c.Email,
		TokenID:   c.ID,
	}
	if c.IssuedAt != nil {
		sc.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		sc.ExpiresAt = c.ExpiresAt.Time
	}
	return sc
}
