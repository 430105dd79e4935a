package aggregate

import (
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/guilddash/internal/model"
)

func newSeededFallback(seed uint64) *FallbackGenerator {
	return NewFallbackGenerator(rand.New(rand.NewPCG(seed, seed+1)), func() time.Time { return fixedNow })
}

func TestFallbackGenerator_Servers_WithinRanges(t *testing.T) {
	f := newSeededFallback(42)

	for i := 0; i < 50; i++ {
		data := f.Servers()
		require.GreaterOrEqual(t, len(data.Servers), minServers)
		require.LessOrEqual(t, len(data.Servers), maxServers)
		assert.Equal(t, len(data.Servers), data.Total)

		for _, s := range data.Servers {
			assert.GreaterOrEqual(t, s.MemberCount, minMembers)
			assert.LessOrEqual(t, s.MemberCount, maxMembers)
			assert.Contains(t, mockServerNames, s.Name)
			assert.False(t, s.JoinedAt.Before(s.CreatedAt))
			assert.False(t, s.JoinedAt.After(fixedNow))
			assert.Equal(t, premiumTierFor(s.PremiumSubscriptionCount), s.PremiumTier)
		}
	}
}

func TestFallbackGenerator_SameSeed_SameContent(t *testing.T) {
	assert.Equal(t, newSeededFallback(7).Servers(), newSeededFallback(7).Servers())
}

func TestFallbackGenerator_RandomizedAcrossCalls(t *testing.T) {
	f := newSeededFallback(7)
	first := f.Analytics()
	changed := false
	for i := 0; i < 10 && !changed; i++ {
		changed = f.Analytics().TotalUsers != first.TotalUsers
	}
	assert.True(t, changed, "呼び出しごとに内容が変わる")
}

func TestFallbackGenerator_Analytics_Consistent(t *testing.T) {
	data := newSeededFallback(3).Analytics()

	assert.GreaterOrEqual(t, data.TotalServers, minServers)
	assert.LessOrEqual(t, len(data.TopServers), 5)
	assert.Positive(t, data.TotalUsers)
	assert.InDelta(t, float64(data.TotalUsers)/float64(data.TotalServers), data.AverageMembers, 0.05)
	for i := 1; i < len(data.TopServers); i++ {
		assert.GreaterOrEqual(t, data.TopServers[i-1].MemberCount, data.TopServers[i].MemberCount)
	}
}

func TestFallbackGenerator_Commands_CoversCatalog(t *testing.T) {
	data := newSeededFallback(5).Commands()

	require.Len(t, data.Commands, len(model.CommandCatalog))
	for i, c := range data.Commands {
		assert.Equal(t, model.CommandCatalog[i].Name, c.Name)
		assert.True(t, c.Enabled)
		assert.LessOrEqual(t, c.UsageCount, maxCommandUsage)
	}
}

func TestFallbackGenerator_BotStatus(t *testing.T) {
	data := newSeededFallback(9).BotStatus()

	assert.True(t, data.Bot.IsConnected)
	assert.Equal(t, model.SourceModeDemo, data.Bot.Mode)
	assert.GreaterOrEqual(t, data.Bot.LatencyMs, int64(minLatencyMs))
	assert.LessOrEqual(t, data.Bot.LatencyMs, int64(maxLatencyMs))
	assert.Equal(t, fixedNow, data.Bot.LastRefreshedAt)
}

func TestFallbackGenerator_ConcurrentUse(t *testing.T) {
	f := NewFallbackGenerator(nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_ = f.Servers()
				_ = f.Commands()
			}
		}()
	}
	wg.Wait()
}

func TestPremiumTierFor(t *testing.T) {
	assert.Equal(t, 0, premiumTierFor(1))
	assert.Equal(t, 1, premiumTierFor(2))
	assert.Equal(t, 2, premiumTierFor(7))
	assert.Equal(t, 3, premiumTierFor(14))
}
