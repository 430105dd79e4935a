package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// DefaultGatewayURL はDiscordゲートウェイの接続先。
	DefaultGatewayURL = "wss://gateway.discord.gg/?v=10&encoding=json"

	// IntentGuilds はギルドの作成・更新・削除イベントを受け取るためのインテント。
	IntentGuilds = 1 << 0
	// IntentGuildMembers はメンバー参加・退出イベントを受け取るための特権インテント。
	IntentGuildMembers = 1 << 1

	writeTimeout = 10 * time.Second
	// helloTimeout は接続後にHELLOを待つ上限。
	helloTimeout = 20 * time.Second
)

var (
	// ErrSessionEnded はゲートウェイがセッションの終了（再接続要求や無効セッション）を通知したことを示す。
	ErrSessionEnded = errors.New("gateway session ended")
	// ErrHeartbeatTimeout はハートビートACKが返らなかったことを示す。
	ErrHeartbeatTimeout = errors.New("gateway heartbeat not acknowledged")
)

// Config はゲートウェイクライアントの設定。
type Config struct {
	Token   string
	Intents int
	// URL は接続先。未指定の場合はDefaultGatewayURL。
	URL string
	// Dialer は未指定の場合websocket.DefaultDialerを使用する。
	Dialer *websocket.Dialer
}

// Client はDiscordゲートウェイに接続し、ギルドキャッシュとコマンド利用数を保持する。
// 再接続は行わない。切断後はDoneが閉じられる。
type Client struct {
	cfg Config

	conn    *websocket.Conn
	writeMu sync.Mutex

	mu     sync.RWMutex
	guilds map[string]*Guild
	usage  map[string]int

	seq         atomic.Int64
	lastBeat    atomic.Int64 // 最後に送ったハートビートのUNIXナノ秒
	awaitingACK atomic.Bool
	latency     atomic.Int64
	closing     atomic.Bool

	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
	closeOnce sync.Once
	err       error
}

// NewClient はClientを生成する。接続はOpenで行う。
func NewClient(cfg Config) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultGatewayURL
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	c := &Client{
		cfg:    cfg,
		guilds: make(map[string]*Guild),
		usage:  make(map[string]int),
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
	}
	c.seq.Store(-1)
	return c
}

// Open はゲートウェイに接続してIDENTIFYを送り、READYを受け取るまで待つ。
func (c *Client) Open(ctx context.Context) error {
	conn, _, err := c.cfg.Dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to dial gateway: %w", err)
	}
	c.conn = conn

	// HELLO待ちの間はctxのキャンセルで接続を閉じ、読み込みを中断させる
	_ = conn.SetReadDeadline(time.Now().Add(helloTimeout))
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	interval, err := c.readHello()
	stop()
	if ctxErr := ctx.Err(); ctxErr != nil {
		conn.Close()
		return fmt.Errorf("failed to read hello: %w", ctxErr)
	}
	if err != nil {
		conn.Close()
		return err
	}
	_ = conn.SetReadDeadline(time.Time{})

	if err := c.send(opIdentify, identifyData{
		Token:   c.cfg.Token,
		Intents: c.cfg.Intents,
		Properties: identifyProperties{
			OS:      "linux",
			Browser: "guilddash",
			Device:  "guilddash",
		},
	}); err != nil {
		conn.Close()
		return fmt.Errorf("failed to send identify: %w", err)
	}

	go c.readLoop()
	go c.heartbeatLoop(interval)

	select {
	case <-c.ready:
		return nil
	case <-c.done:
		if err := c.Err(); err != nil {
			return err
		}
		return ErrSessionEnded
	case <-ctx.Done():
		c.shutdown(ctx.Err())
		return ctx.Err()
	}
}

// Done はセッション終了時に閉じられるチャネルを返す。
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err はセッション終了の原因を返す。Closeによる終了の場合はnil。
func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Close は正常終了のクローズフレームを送って接続を閉じる。
func (c *Client) Close() error {
	c.closing.Store(true)
	if c.conn != nil {
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeTimeout))
		c.writeMu.Unlock()
	}
	c.shutdown(nil)
	return nil
}

// Guilds はギルドキャッシュのコピーをID順で返す。
func (c *Client) Guilds() []Guild {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Guild, 0, len(c.guilds))
	for _, g := range c.guilds {
		cp := *g
		cp.Features = slices.Clone(g.Features)
		out = append(out, cp)
	}
	slices.SortFunc(out, func(a, b Guild) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// CommandUsage はコマンド名ごとの実行回数のコピーを返す。
func (c *Client) CommandUsage() map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.usage)
}

// Latency は直近のハートビート往復時間を返す。未計測の場合は0。
func (c *Client) Latency() time.Duration {
	return time.Duration(c.latency.Load())
}

func (c *Client) readHello() (time.Duration, error) {
	var p payload
	if err := c.conn.ReadJSON(&p); err != nil {
		return 0, fmt.Errorf("failed to read hello: %w", err)
	}
	if p.Op != opHello {
		return 0, fmt.Errorf("expected hello (op %d), got op %d", opHello, p.Op)
	}
	var hello helloData
	if err := json.Unmarshal(p.D, &hello); err != nil {
		return 0, fmt.Errorf("invalid hello payload: %w", err)
	}
	if hello.HeartbeatInterval <= 0 {
		return 0, fmt.Errorf("invalid heartbeat interval: %d", hello.HeartbeatInterval)
	}
	return time.Duration(hello.HeartbeatInterval) * time.Millisecond, nil
}

func (c *Client) readLoop() {
	for {
		var p payload
		if err := c.conn.ReadJSON(&p); err != nil {
			c.shutdown(fmt.Errorf("gateway read failed: %w", err))
			return
		}
		if p.S != nil {
			c.seq.Store(*p.S)
		}

		switch p.Op {
		case opDispatch:
			c.dispatch(p.T, p.D)
		case opHeartbeat:
			if err := c.heartbeat(); err != nil {
				c.shutdown(err)
				return
			}
		case opHeartbeatACK:
			c.awaitingACK.Store(false)
			if sent := c.lastBeat.Load(); sent > 0 {
				c.latency.Store(time.Now().UnixNano() - sent)
			}
		case opReconnect, opInvalidSession:
			slog.Warn("gateway requested session end", slog.Int("op", p.Op))
			c.shutdown(ErrSessionEnded)
			return
		}
	}
}

func (c *Client) heartbeatLoop(interval time.Duration) {
	// 初回は接続が集中しないよう間隔内のランダムな時点で送る
	timer := time.NewTimer(time.Duration(rand.Float64() * float64(interval)))
	defer timer.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-timer.C:
			if c.awaitingACK.Load() {
				c.shutdown(ErrHeartbeatTimeout)
				return
			}
			if err := c.heartbeat(); err != nil {
				c.shutdown(err)
				return
			}
			timer.Reset(interval)
		}
	}
}

func (c *Client) heartbeat() error {
	var d any
	if s := c.seq.Load(); s >= 0 {
		d = s
	}
	c.awaitingACK.Store(true)
	c.lastBeat.Store(time.Now().UnixNano())
	if err := c.send(opHeartbeat, d); err != nil {
		return fmt.Errorf("failed to send heartbeat: %w", err)
	}
	return nil
}

func (c *Client) send(op int, d any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(outgoing{Op: op, D: d})
}

func (c *Client) shutdown(err error) {
	c.closeOnce.Do(func() {
		if c.closing.Load() {
			err = nil
		}
		c.err = err
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
		if err != nil {
			slog.Warn("gateway session closed", slog.String("error", err.Error()))
		}
	})
}

func (c *Client) dispatch(event string, raw json.RawMessage) {
	switch event {
	case "READY":
		var d readyData
		if err := json.Unmarshal(raw, &d); err != nil {
			slog.Warn("invalid READY payload", slog.String("error", err.Error()))
			return
		}
		slog.Info("gateway ready",
			slog.String("bot_user", d.User.Username),
			slog.Int("guilds", len(d.Guilds)),
		)
		c.readyOnce.Do(func() { close(c.ready) })

	case "GUILD_CREATE", "GUILD_UPDATE":
		var d guildData
		if err := json.Unmarshal(raw, &d); err != nil {
			slog.Warn("invalid guild payload", slog.String("event", event), slog.String("error", err.Error()))
			return
		}
		if d.Unavailable {
			return
		}
		c.upsertGuild(d)

	case "GUILD_DELETE":
		var d guildDeleteData
		if err := json.Unmarshal(raw, &d); err != nil {
			return
		}
		// unavailableは一時的な障害のため、最後の値を残す
		if d.Unavailable {
			return
		}
		c.mu.Lock()
		delete(c.guilds, d.ID)
		c.mu.Unlock()

	case "GUILD_MEMBER_ADD":
		c.adjustMembers(raw, 1)
	case "GUILD_MEMBER_REMOVE":
		c.adjustMembers(raw, -1)

	case "INTERACTION_CREATE":
		var d interactionData
		if err := json.Unmarshal(raw, &d); err != nil {
			return
		}
		if d.Type != interactionTypeCommand || d.Data.Name == "" {
			return
		}
		c.mu.Lock()
		c.usage[d.Data.Name]++
		c.mu.Unlock()
	}
}

func (c *Client) upsertGuild(d guildData) {
	c.mu.Lock()
	defer c.mu.Unlock()

	g, ok := c.guilds[d.ID]
	if !ok {
		g = &Guild{ID: d.ID}
		c.guilds[d.ID] = g
	}
	g.Name = d.Name
	g.Icon = d.Icon
	g.VerificationLevel = d.VerificationLevel
	g.PremiumTier = d.PremiumTier
	g.PremiumSubscriptionCount = d.PremiumSubscriptionCount
	g.Features = d.Features
	if d.MemberCount != nil {
		g.MemberCount = *d.MemberCount
	}
	if d.JoinedAt != nil {
		if t, err := time.Parse(time.RFC3339, *d.JoinedAt); err == nil {
			g.JoinedAt = t.UTC()
		}
	}
}

func (c *Client) adjustMembers(raw json.RawMessage, delta int) {
	var d guildMemberData
	if err := json.Unmarshal(raw, &d); err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if g, ok := c.guilds[d.GuildID]; ok {
		g.MemberCount = max(0, g.MemberCount+delta)
	}
}
