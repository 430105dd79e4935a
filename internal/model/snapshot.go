package model

import "time"

// SourceMode はスナップショットの生成元を表す。
type SourceMode string

const (
	// SourceModeLive はゲートウェイのギルドキャッシュから生成されたことを示す。
	SourceModeLive SourceMode = "live"
	// SourceModeDemo はBotトークン未設定時の合成データであることを示す。
	SourceModeDemo SourceMode = "demo"
)

// GuildStat はスナップショット内の1ギルド分の統計。
type GuildStat struct {
	ID                       string    `json:"id" validate:"required"`
	Name                     string    `json:"name"`
	IconURL                  *string   `json:"iconUrl"`
	MemberCount              int       `json:"memberCount" validate:"gte=0"`
	VerificationLevel        int       `json:"verificationLevel"`
	PremiumTier              int       `json:"premiumTier"`
	PremiumSubscriptionCount int       `json:"premiumSubscriptionCount"`
	Features                 []string  `json:"features" validate:"required"`
	CreatedAt                time.Time `json:"createdAt"`
	JoinedAt                 time.Time `json:"joinedAt"`
}

// LiveSnapshot はポーラーが保持するギルド統計の時点スナップショット。
// ポーラーのみが生成し、更新は丸ごと差し替える。読み取り側は変更してはならない。
type LiveSnapshot struct {
	IsConnected     bool           `json:"isConnected"`
	Mode            SourceMode     `json:"mode"`
	Guilds          []GuildStat    `json:"guilds"`
	TotalUserCount  int            `json:"totalUserCount"`
	UptimeSeconds   int64          `json:"uptimeSeconds"`
	LatencyMs       int64          `json:"latencyMs"`
	CommandUsage    map[string]int `json:"commandUsage"`
	LastRefreshedAt time.Time      `json:"lastRefreshedAt"`
}

// DataSource は集約レスポンスのデータ取得元を表す。
type DataSource string

const (
	// DataSourceLive はポーラーから取得したデータであることを示す。
	DataSourceLive DataSource = "live"
	// DataSourceFallback はフォールバック生成データであることを示す。
	DataSourceFallback DataSource = "fallback"
)

// AggregatedResponse はダッシュボード向けデータドメインの統一エンベロープ。
type AggregatedResponse[T any] struct {
	Success     bool       `json:"success"`
	Data        T          `json:"data"`
	DataSource  DataSource `json:"dataSource"`
	GeneratedAt time.Time  `json:"generatedAt"`
}

// ServersData はserversドメインのペイロード。
type ServersData struct {
	Servers []GuildStat `json:"servers" validate:"required,dive"`
	Total   int         `json:"total" validate:"gte=0"`
}

// ServerRank は分析画面の上位サーバー1件。
type ServerRank struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MemberCount int    `json:"memberCount"`
}

// AnalyticsData はanalyticsドメインのペイロード。
type AnalyticsData struct {
	TotalServers      int          `json:"totalServers"`
	TotalUsers        int          `json:"totalUsers"`
	AverageMembers    float64      `json:"averageMembers"`
	BoostedServers    int          `json:"boostedServers"`
	TotalCommandsUsed int          `json:"totalCommandsUsed"`
	UptimeSeconds     int64        `json:"uptimeSeconds"`
	TopServers        []ServerRank `json:"topServers" validate:"required"`
}

// CommandStat はBotコマンド1件の利用統計。
type CommandStat struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Enabled     bool   `json:"enabled"`
	UsageCount  int    `json:"usageCount"`
}

// CommandsData はcommandsドメインのペイロード。
type CommandsData struct {
	Commands []CommandStat `json:"commands" validate:"required,dive"`
	Total    int           `json:"total" validate:"gte=0"`
}

// BotStatus はBotの稼働状態。
type BotStatus struct {
	IsConnected     bool       `json:"isConnected"`
	Mode            SourceMode `json:"mode" validate:"oneof=live demo"`
	GuildCount      int        `json:"guildCount"`
	TotalUserCount  int        `json:"totalUserCount"`
	UptimeSeconds   int64      `json:"uptimeSeconds"`
	LatencyMs       int64      `json:"latencyMs"`
	LastRefreshedAt time.Time  `json:"lastRefreshedAt"`
}

// BotStatusData はbotStatusドメインのペイロード。
type BotStatusData struct {
	Bot BotStatus `json:"bot"`
}
