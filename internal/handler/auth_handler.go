// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/guilddash/internal/auth"
	"github.com/hitoshi/guilddash/internal/middleware"
	"github.com/hitoshi/guilddash/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	GetLoginURL(state string) string
	Login(ctx context.Context, code string) (*auth.LoginResult, error)
	RefreshSession(token string) (string, error)
	GetUser(ctx context.Context, id string) (*model.CanonicalUser, error)
	UpdateProfile(ctx context.Context, id string, update auth.ProfileUpdate) (*auth.LoginResult, error)
}

// AuthHandler はDiscordログインとセッション関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface) *AuthHandler {
	return &AuthHandler{service: service}
}

type discordLoginRequest struct {
	Code string `json:"code" validate:"required"`
	// State は認可URLと共に返したstate。サーバーでは検証しないが、フロントエンドが送り返しても受け付ける。
	State string `json:"state" validate:"omitempty,max=128"`
}

type refreshRequest struct {
	Token string `json:"token"`
}

type profileRequest struct {
	Username   *string `json:"username" validate:"omitnil,max=128"`
	GlobalName *string `json:"globalName" validate:"omitnil,max=128"`
	Locale     *string `json:"locale" validate:"omitnil,max=16"`
}

type loginResponse struct {
	Success bool                 `json:"success"`
	User    *model.CanonicalUser `json:"user"`
	Token   string               `json:"token"`
}

type tokenResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
}

type meUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type meResponse struct {
	Success bool   `json:"success"`
	User    meUser `json:"user"`
}

type userResponse struct {
	Success bool                 `json:"success"`
	User    *model.CanonicalUser `json:"user"`
}

type loginURLResponse struct {
	Success bool   `json:"success"`
	URL     string `json:"url"`
	State   string `json:"state"`
}

// DiscordLogin は認可コードを受け取り、ログインしてセッショントークンを返す。
// POST /api/auth/discord
func (h *AuthHandler) DiscordLogin(w http.ResponseWriter, r *http.Request) {
	var req discordLoginRequest
	if err := decodeAndValidate(r, &req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("Authorization code is required"))
		return
	}

	result, err := h.service.Login(r.Context(), req.Code)
	if err != nil {
		writeLoginError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, loginResponse{
		Success: true,
		User:    result.User,
		Token:   result.Token,
	})
}

// writeLoginError はログイン失敗をステータスコードに変換する。
// プロバイダーが認可コードを拒否した場合はそのレスポンスをdetailsとして返す。
func writeLoginError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidRequest):
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("Authorization code is required"))
	case errors.Is(err, model.ErrTokenExchangeFailed):
		var details string
		var perr *model.ProviderError
		if errors.As(err, &perr) {
			details = perr.Body
		}
		slog.Warn("discord token exchange rejected", slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewTokenExchangeFailedError(details))
	default:
		slog.Error("discord login failed", slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, http.StatusInternalServerError, model.NewAuthenticationFailedError())
	}
}

// Refresh は有効なセッショントークンを有効期限を延長したトークンに交換する。
// トークンはリクエストボディ、無ければAuthorizationヘッダーから読み取る。
// POST /api/auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("Request body must be valid JSON"))
			return
		}
	}
	if req.Token == "" {
		req.Token = middleware.BearerToken(r)
	}
	if req.Token == "" {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewInvalidSessionError())
		return
	}

	token, err := h.service.RefreshSession(req.Token)
	if err != nil {
		writeSessionError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, tokenResponse{Success: true, Token: token})
}

// Me はセッショントークンのクレームからログイン中のユーザーを返す。
// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewInvalidSessionError())
		return
	}

	middleware.WriteJSON(w, http.StatusOK, meResponse{
		Success: true,
		User: meUser{
			ID:       claims.SubjectID,
			Username: claims.Username,
			Email:    claims.Email,
		},
	})
}

// LoginURL はDiscordの認可URLとstate値を返す。
// stateの照合はフロントエンドが行う。
// GET /api/auth/discord/url
func (h *AuthHandler) LoginURL(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, loginURLResponse{
		Success: true,
		URL:     h.service.GetLoginURL(state),
		State:   state,
	})
}

// User はログイン時に保存したユーザーを全ギルド付きで返す。
// GET /api/auth/user
func (h *AuthHandler) User(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewInvalidSessionError())
		return
	}

	user, err := h.service.GetUser(r.Context(), userID)
	if err != nil {
		writeUserError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, userResponse{Success: true, User: user})
}

// UpdateProfile はプロフィールを編集し、新しいユーザーと再発行したトークンを返す。
// PUT /api/auth/profile
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewInvalidSessionError())
		return
	}

	var req profileRequest
	if err := decodeAndValidate(r, &req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("Invalid profile fields"))
		return
	}

	result, err := h.service.UpdateProfile(r.Context(), userID, auth.ProfileUpdate{
		Username:   req.Username,
		GlobalName: req.GlobalName,
		Locale:     req.Locale,
	})
	if err != nil {
		if errors.Is(err, model.ErrInvalidRequest) {
			middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("Username must not be empty"))
			return
		}
		writeUserError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, loginResponse{
		Success: true,
		User:    result.User,
		Token:   result.Token,
	})
}

func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrSessionExpired):
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewSessionExpiredError())
	case errors.Is(err, model.ErrInvalidSession), errors.Is(err, model.ErrInvalidRequest):
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewInvalidSessionError())
	default:
		slog.Error("session refresh failed", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
	}
}

func writeUserError(w http.ResponseWriter, err error) {
	if errors.Is(err, model.ErrUserNotFound) {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewUserNotFoundError())
		return
	}
	slog.Error("user lookup failed", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

var _ AuthServiceInterface = (*auth.Service)(nil)
