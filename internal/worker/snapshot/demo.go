package snapshot

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/hitoshi/guilddash/internal/discord"
)

// デモモードの合成ギルド
const (
	DemoGuildID          = "1000000000000000000"
	DemoGuildName        = "Demo Server"
	DemoGuildMemberCount = 1250
)

// DemoSession はBotトークン未設定時に使うSession。
// 生成時に合成ギルドを1件だけ用意し、プロバイダーには一切接続しない。
type DemoSession struct {
	guilds    []discord.Guild
	done      chan struct{}
	closeOnce sync.Once
}

// NewDemoSession はDemoSessionを生成する。seededAtは合成ギルドの参加日時になる。
func NewDemoSession(seededAt time.Time) *DemoSession {
	return &DemoSession{
		guilds: []discord.Guild{{
			ID:                       DemoGuildID,
			Name:                     DemoGuildName,
			MemberCount:              DemoGuildMemberCount,
			VerificationLevel:        1,
			PremiumTier:              1,
			PremiumSubscriptionCount: 2,
			Features:                 []string{"COMMUNITY"},
			JoinedAt:                 seededAt.UTC(),
		}},
		done: make(chan struct{}),
	}
}

// Open は何もせず成功する。
func (d *DemoSession) Open(context.Context) error { return nil }

// Done はCloseで閉じられるチャネルを返す。
func (d *DemoSession) Done() <-chan struct{} { return d.done }

// Close はセッションを終了する。
func (d *DemoSession) Close() error {
	d.closeOnce.Do(func() { close(d.done) })
	return nil
}

// Guilds は合成ギルドのコピーを返す。
func (d *DemoSession) Guilds() []discord.Guild {
	out := slices.Clone(d.guilds)
	for i := range out {
		out[i].Features = slices.Clone(out[i].Features)
	}
	return out
}

// Latency は常に0を返す。
func (d *DemoSession) Latency() time.Duration { return 0 }

// CommandUsage は空の利用数を返す。
func (d *DemoSession) CommandUsage() map[string]int { return map[string]int{} }

var (
	_ Session = (*DemoSession)(nil)
	_ Session = (*discord.Client)(nil)
)
