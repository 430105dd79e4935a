package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/guilddash/internal/aggregate"
	"github.com/hitoshi/guilddash/internal/middleware"
	"github.com/hitoshi/guilddash/internal/model"
)

// DashboardServiceInterface はダッシュボードの各データドメインを返すサービス。
// 実装はエラーを返さず、取得できない場合はフォールバックを返す。
type DashboardServiceInterface interface {
	Servers(ctx context.Context) model.AggregatedResponse[model.ServersData]
	Analytics(ctx context.Context) model.AggregatedResponse[model.AnalyticsData]
	Commands(ctx context.Context) model.AggregatedResponse[model.CommandsData]
	BotStatus(ctx context.Context) model.AggregatedResponse[model.BotStatusData]
}

// DashboardHandler はダッシュボードデータのHTTPハンドラー。
type DashboardHandler struct {
	service DashboardServiceInterface
}

// NewDashboardHandler はDashboardHandlerを生成する。
func NewDashboardHandler(service DashboardServiceInterface) *DashboardHandler {
	return &DashboardHandler{service: service}
}

// Servers はGET /api/servers を処理する。
func (h *DashboardHandler) Servers(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, h.service.Servers(r.Context()))
}

// Analytics はGET /api/analytics/dashboard を処理する。
func (h *DashboardHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, h.service.Analytics(r.Context()))
}

// Commands はGET /api/commands を処理する。
func (h *DashboardHandler) Commands(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, h.service.Commands(r.Context()))
}

// BotStatus はGET /api/bot/status を処理する。
func (h *DashboardHandler) BotStatus(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, h.service.BotStatus(r.Context()))
}

var _ DashboardServiceInterface = (*aggregate.Gateway)(nil)
