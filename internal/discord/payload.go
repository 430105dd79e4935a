// Package discord はDiscordゲートウェイ（WebSocket）クライアントを提供する。
// ギルド統計の収集に必要なイベントのみを扱う。
package discord

import (
	"encoding/json"
	"strconv"
	"time"
)

// ゲートウェイのopコード
const (
	opDispatch       = 0
	opHeartbeat      = 1
	opIdentify       = 2
	opReconnect      = 7
	opInvalidSession = 9
	opHello          = 10
	opHeartbeatACK   = 11
)

// discordEpochMs はスノーフレークIDの基準時刻（2015-01-01T00:00:00Z）。
const discordEpochMs = 1420070400000

// interactionTypeCommand はスラッシュコマンドのインタラクション種別。
const interactionTypeCommand = 2

// payload はゲートウェイで送受信するメッセージ。
type payload struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d"`
	S  *int64          `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

type outgoing struct {
	Op int `json:"op"`
	D  any `json:"d"`
}

type helloData struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"`
}

type identifyData struct {
	Token      string             `json:"token"`
	Intents    int                `json:"intents"`
	Properties identifyProperties `json:"properties"`
}

type identifyProperties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

type readyData struct {
	SessionID string `json:"session_id"`
	User      struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"user"`
	Guilds []struct {
		ID string `json:"id"`
	} `json:"guilds"`
}

// guildData はGUILD_CREATE / GUILD_UPDATEのペイロード。
// GUILD_UPDATEにはmember_countとjoined_atが含まれない。
type guildData struct {
	ID                       string   `json:"id"`
	Name                     string   `json:"name"`
	Icon                     *string  `json:"icon"`
	MemberCount              *int     `json:"member_count"`
	VerificationLevel        int      `json:"verification_level"`
	PremiumTier              int      `json:"premium_tier"`
	PremiumSubscriptionCount int      `json:"premium_subscription_count"`
	Features                 []string `json:"features"`
	JoinedAt                 *string  `json:"joined_at"`
	Unavailable              bool     `json:"unavailable"`
}

type guildDeleteData struct {
	ID          string `json:"id"`
	Unavailable bool   `json:"unavailable"`
}

type guildMemberData struct {
	GuildID string `json:"guild_id"`
}

type interactionData struct {
	Type int `json:"type"`
	Data struct {
		Name string `json:"name"`
	} `json:"data"`
}

// Guild はゲートウェイから受け取ったギルドのキャッシュエントリ。
type Guild struct {
	ID                       string
	Name                     string
	Icon                     *string
	MemberCount              int
	VerificationLevel        int
	PremiumTier              int
	PremiumSubscriptionCount int
	Features                 []string
	JoinedAt                 time.Time
}

// CreatedAt はギルドIDから作成日時を返す。
func (g Guild) CreatedAt() time.Time {
	return SnowflakeTime(g.ID)
}

// SnowflakeTime はスノーフレークIDに埋め込まれた作成日時を返す。
// 不正なIDの場合はゼロ値を返す。
func SnowflakeTime(id string) time.Time {
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(int64(n>>22) + discordEpochMs).UTC()
}
