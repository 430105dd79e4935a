package aggregate

import (
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"github.com/hitoshi/guilddash/internal/model"
	"github.com/hitoshi/guilddash/internal/worker/snapshot"
)

// mockServerNames はフォールバックのサーバー名候補。生成ごとに開始位置をずらして使う。
var mockServerNames = []string{
	"Gaming Hub",
	"Study Group",
	"Music Lounge",
	"Art Community",
	"Tech Talk",
	"Anime Club",
	"Developers Guild",
	"Chill Zone",
	"Book Club",
	"Fitness Crew",
}

var mockFeatures = [][]string{
	{},
	{"COMMUNITY"},
	{"COMMUNITY", "NEWS"},
	{"COMMUNITY", "ANIMATED_ICON", "BANNER"},
}

// フォールバック値の範囲
const (
	minServers       = 5
	maxServers       = 10
	minMembers       = 25
	maxMembers       = 5000
	maxBoosts        = 30
	maxCommandUsage  = 500
	minLatencyMs     = 20
	maxLatencyMs     = 150
	maxUptimeSeconds = 30 * 24 * 60 * 60
	maxGuildAgeDays  = 5 * 365
)

// FallbackGenerator はポーラーが利用できないときのダッシュボード用データを生成する。
// 内容はランダムだが、スキーマはポーラーのレスポンスと同一。
type FallbackGenerator struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// NewFallbackGenerator はFallbackGeneratorを生成する。
// rngがnilの場合は時刻をシードにした乱数源を使用する。
func NewFallbackGenerator(rng *rand.Rand, now func() time.Time) *FallbackGenerator {
	if now == nil {
		now = time.Now
	}
	if rng == nil {
		seed := uint64(now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	return &FallbackGenerator{rng: rng, now: now}
}

// intRange は[lo, hi]の乱数を返す。呼び出し側でmuを保持していること。
func (f *FallbackGenerator) intRange(lo, hi int) int {
	return lo + f.rng.IntN(hi-lo+1)
}

// servers は合成スナップショット用のサーバー一覧を生成する。呼び出し側でmuを保持していること。
func (f *FallbackGenerator) servers() []model.GuildStat {
	now := f.now().UTC()
	n := f.intRange(minServers, maxServers)
	offset := f.rng.IntN(len(mockServerNames))

	guilds := make([]model.GuildStat, 0, n)
	for i := 0; i < n; i++ {
		created := now.Add(-time.Duration(f.intRange(30, maxGuildAgeDays)) * 24 * time.Hour)
		joined := created.Add(time.Duration(f.rng.Int64N(int64(now.Sub(created)))))
		boosts := f.rng.IntN(maxBoosts + 1)

		guilds = append(guilds, model.GuildStat{
			ID:                       strconv.FormatInt(900000000000000000+int64(i), 10),
			Name:                     mockServerNames[(offset+i)%len(mockServerNames)],
			MemberCount:              f.intRange(minMembers, maxMembers),
			VerificationLevel:        f.rng.IntN(5),
			PremiumTier:              premiumTierFor(boosts),
			PremiumSubscriptionCount: boosts,
			Features:                 append([]string{}, mockFeatures[f.rng.IntN(len(mockFeatures))]...),
			CreatedAt:                created,
			JoinedAt:                 joined,
		})
	}
	return guilds
}

// premiumTierFor はブースト数からブーストレベルを求める。
func premiumTierFor(boosts int) int {
	switch {
	case boosts >= 14:
		return 3
	case boosts >= 7:
		return 2
	case boosts >= 2:
		return 1
	default:
		return 0
	}
}

// mockSnapshot はフォールバック用の合成スナップショットを生成する。
// ポーラーと同じペイロード生成関数を通すことでスキーマを一致させる。
func (f *FallbackGenerator) mockSnapshot() *model.LiveSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	guilds := f.servers()
	total := 0
	for _, g := range guilds {
		total += g.MemberCount
	}

	usage := make(map[string]int, len(model.CommandCatalog))
	for _, c := range model.CommandCatalog {
		usage[c.Name] = f.rng.IntN(maxCommandUsage + 1)
	}

	return &model.LiveSnapshot{
		IsConnected:     true,
		Mode:            model.SourceModeDemo,
		Guilds:          guilds,
		TotalUserCount:  total,
		UptimeSeconds:   int64(f.intRange(3600, maxUptimeSeconds)),
		LatencyMs:       int64(f.intRange(minLatencyMs, maxLatencyMs)),
		CommandUsage:    usage,
		LastRefreshedAt: f.now().UTC(),
	}
}

// Servers はserversドメインのフォールバックを生成する。
func (f *FallbackGenerator) Servers() model.ServersData {
	return snapshot.ServersFromSnapshot(f.mockSnapshot())
}

// Analytics はanalyticsドメインのフォールバックを生成する。
func (f *FallbackGenerator) Analytics() model.AnalyticsData {
	return snapshot.AnalyticsFromSnapshot(f.mockSnapshot())
}

// Commands はcommandsドメインのフォールバックを生成する。
func (f *FallbackGenerator) Commands() model.CommandsData {
	return snapshot.CommandsFromSnapshot(f.mockSnapshot())
}

// BotStatus はbotStatusドメインのフォールバックを生成する。
func (f *FallbackGenerator) BotStatus() model.BotStatusData {
	return snapshot.StatusFromSnapshot(f.mockSnapshot())
}
