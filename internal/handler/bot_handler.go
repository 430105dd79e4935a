package handler

import (
	"net/http"

	"github.com/hitoshi/guilddash/internal/middleware"
	"github.com/hitoshi/guilddash/internal/model"
	"github.com/hitoshi/guilddash/internal/worker/snapshot"
)

// SnapshotSource は最新のスナップショットを返す。
type SnapshotSource interface {
	Snapshot() *model.LiveSnapshot
}

// BotHandler はポーラーの読み取りAPIのHTTPハンドラー。
// 集約ゲートウェイが読み取るため、ペイロードはsuccessと同じ階層に展開する。
type BotHandler struct {
	source SnapshotSource
}

// NewBotHandler はBotHandlerを生成する。
func NewBotHandler(source SnapshotSource) *BotHandler {
	return &BotHandler{source: source}
}

type serversPayload struct {
	Success bool `json:"success"`
	model.ServersData
}

type analyticsPayload struct {
	Success bool `json:"success"`
	model.AnalyticsData
}

type commandsPayload struct {
	Success bool `json:"success"`
	model.CommandsData
}

type statusPayload struct {
	Success bool `json:"success"`
	model.BotStatusData
}

// Status はGET /api/bot/real-status を処理する。
func (h *BotHandler) Status(w http.ResponseWriter, r *http.Request) {
	s := h.source.Snapshot()
	middleware.WriteJSON(w, http.StatusOK, statusPayload{Success: true, BotStatusData: snapshot.StatusFromSnapshot(s)})
}

// Servers はGET /api/servers/real を処理する。
func (h *BotHandler) Servers(w http.ResponseWriter, r *http.Request) {
	s := h.source.Snapshot()
	middleware.WriteJSON(w, http.StatusOK, serversPayload{Success: true, ServersData: snapshot.ServersFromSnapshot(s)})
}

// Analytics はGET /api/analytics/real を処理する。
func (h *BotHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	s := h.source.Snapshot()
	middleware.WriteJSON(w, http.StatusOK, analyticsPayload{Success: true, AnalyticsData: snapshot.AnalyticsFromSnapshot(s)})
}

// Commands はGET /api/commands/real を処理する。
func (h *BotHandler) Commands(w http.ResponseWriter, r *http.Request) {
	s := h.source.Snapshot()
	middleware.WriteJSON(w, http.StatusOK, commandsPayload{Success: true, CommandsData: snapshot.CommandsFromSnapshot(s)})
}

var _ SnapshotSource = (*snapshot.Poller)(nil)
