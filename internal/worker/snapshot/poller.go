// Package snapshot はBotのギルド統計スナップショットを定期的に再計算するポーラーを提供する。
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hitoshi/guilddash/internal/discord"
	"github.com/hitoshi/guilddash/internal/metrics"
	"github.com/hitoshi/guilddash/internal/model"
)

// DefaultInterval はスナップショット再計算の間隔。
const DefaultInterval = 30 * time.Second

// ErrDisconnected はゲートウェイセッションが終了したことを示す。
var ErrDisconnected = errors.New("gateway session disconnected")

// GuildSource はスナップショット計算に使うギルドキャッシュ。
type GuildSource interface {
	Guilds() []discord.Guild
	Latency() time.Duration
	CommandUsage() map[string]int
}

// Session は接続を持つGuildSource。discord.ClientとDemoSessionが実装する。
type Session interface {
	GuildSource
	Open(ctx context.Context) error
	Done() <-chan struct{}
	Close() error
}

// State はポーラーの接続状態。
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// String はfmt.Stringerを実装する。
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Config はPollerの設定。
type Config struct {
	// Interval は再計算間隔。0以下の場合はDefaultInterval。
	Interval time.Duration
	// Mode はスナップショットに付与する生成元。
	Mode model.SourceMode
	// Now はテスト用の時刻関数。
	Now func() time.Time
}

// Poller はゲートウェイのギルドキャッシュからスナップショットを計算し、丸ごと差し替えて公開する。
// 読み取り側は計算中でも待たされず、直前のスナップショットを受け取る。
type Poller struct {
	session   Session
	mode      model.SourceMode
	interval  time.Duration
	logger    *slog.Logger
	metrics   metrics.MetricsCollector
	now       func() time.Time
	startedAt time.Time

	state   atomic.Int32
	current atomic.Pointer[model.LiveSnapshot]
}

// NewPoller はPollerを生成する。mcがnilの場合はメトリクスを記録しない。
func NewPoller(session Session, cfg Config, logger *slog.Logger, mc metrics.MetricsCollector) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Mode == "" {
		cfg.Mode = model.SourceModeLive
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if mc == nil {
		mc = metrics.NopCollector{}
	}

	p := &Poller{
		session:   session,
		mode:      cfg.Mode,
		interval:  cfg.Interval,
		logger:    logger,
		metrics:   mc,
		now:       cfg.Now,
		startedAt: cfg.Now(),
	}
	p.current.Store(p.disconnectedSnapshot(nil))
	return p
}

// State は現在の接続状態を返す。
func (p *Poller) State() State {
	return State(p.state.Load())
}

// Snapshot は最新のスナップショットを返す。返り値を変更してはならない。
func (p *Poller) Snapshot() *model.LiveSnapshot {
	return p.current.Load()
}

// Run はゲートウェイに接続し、接続直後に1回、以降は一定間隔でスナップショットを再計算する。
// コンテキストがキャンセルされるとセッションを閉じてnilを返す。
// ゲートウェイが切断した場合は再接続せずErrDisconnectedを返す。
func (p *Poller) Run(ctx context.Context) error {
	p.setState(StateConnecting)

	if err := p.session.Open(ctx); err != nil {
		p.setState(StateDisconnected)
		return fmt.Errorf("failed to open gateway session: %w", err)
	}

	p.setState(StateConnected)
	p.logger.Info("スナップショットポーラーを開始しました",
		slog.Duration("interval", p.interval),
		slog.String("mode", string(p.mode)),
	)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// 接続直後に1回実行
	p.Refresh()

	for {
		select {
		case <-ctx.Done():
			_ = p.session.Close()
			p.markDisconnected()
			p.logger.Info("スナップショットポーラーを停止しました")
			return nil
		case <-p.session.Done():
			p.markDisconnected()
			p.logger.Warn("ゲートウェイから切断されました")
			return ErrDisconnected
		case <-ticker.C:
			p.Refresh()
		}
	}
}

// Refresh はスナップショットを再計算して差し替える。
func (p *Poller) Refresh() {
	start := p.now()
	snap := p.compute()
	p.current.Store(snap)

	p.metrics.RecordSnapshotRefresh(string(snap.Mode), len(snap.Guilds), snap.TotalUserCount)
	p.logger.Debug("スナップショットを更新しました",
		slog.Int("guild_count", len(snap.Guilds)),
		slog.Int("total_users", snap.TotalUserCount),
		slog.Duration("duration", p.now().Sub(start)),
	)
}

func (p *Poller) setState(s State) {
	p.state.Store(int32(s))
}

// markDisconnected は最後に計算したギルド統計を残したまま未接続として公開する。
func (p *Poller) markDisconnected() {
	p.setState(StateDisconnected)
	p.current.Store(p.disconnectedSnapshot(p.current.Load()))
}

func (p *Poller) disconnectedSnapshot(last *model.LiveSnapshot) *model.LiveSnapshot {
	snap := &model.LiveSnapshot{
		IsConnected:     false,
		Mode:            p.mode,
		Guilds:          []model.GuildStat{},
		CommandUsage:    map[string]int{},
		UptimeSeconds:   p.uptimeSeconds(),
		LastRefreshedAt: p.now().UTC(),
	}
	if last != nil {
		snap.Guilds = last.Guilds
		snap.TotalUserCount = last.TotalUserCount
		snap.CommandUsage = last.CommandUsage
		snap.LatencyMs = last.LatencyMs
	}
	return snap
}

func (p *Poller) compute() *model.LiveSnapshot {
	guilds := p.session.Guilds()
	stats := make([]model.GuildStat, 0, len(guilds))
	total := 0

	for _, g := range guilds {
		features := g.Features
		if features == nil {
			features = []string{}
		}
		stats = append(stats, model.GuildStat{
			ID:                       g.ID,
			Name:                     g.Name,
			IconURL:                  discord.GuildIconURL(g.ID, g.Icon),
			MemberCount:              g.MemberCount,
			VerificationLevel:        g.VerificationLevel,
			PremiumTier:              g.PremiumTier,
			PremiumSubscriptionCount: g.PremiumSubscriptionCount,
			Features:                 features,
			CreatedAt:                g.CreatedAt(),
			JoinedAt:                 g.JoinedAt,
		})
		total += g.MemberCount
	}

	usage := p.session.CommandUsage()
	if usage == nil {
		usage = map[string]int{}
	}

	return &model.LiveSnapshot{
		IsConnected:     true,
		Mode:            p.mode,
		Guilds:          stats,
		TotalUserCount:  total,
		UptimeSeconds:   p.uptimeSeconds(),
		LatencyMs:       p.session.Latency().Milliseconds(),
		CommandUsage:    usage,
		LastRefreshedAt: p.now().UTC(),
	}
}

func (p *Poller) uptimeSeconds() int64 {
	return int64(p.now().Sub(p.startedAt).Seconds())
}
