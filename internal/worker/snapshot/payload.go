package snapshot

import (
	"cmp"
	"math"
	"slices"

	"github.com/hitoshi/guilddash/internal/model"
)

// TopServerCount は分析画面に表示する上位サーバー数。
const TopServerCount = 5

// ServersFromSnapshot はserversドメインのペイロードを生成する。
func ServersFromSnapshot(s *model.LiveSnapshot) model.ServersData {
	servers := slices.Clone(s.Guilds)
	if servers == nil {
		servers = []model.GuildStat{}
	}
	return model.ServersData{
		Servers: servers,
		Total:   len(servers),
	}
}

// AnalyticsFromSnapshot はanalyticsドメインのペイロードを生成する。
func AnalyticsFromSnapshot(s *model.LiveSnapshot) model.AnalyticsData {
	data := model.AnalyticsData{
		TotalServers:  len(s.Guilds),
		TotalUsers:    s.TotalUserCount,
		UptimeSeconds: s.UptimeSeconds,
		TopServers:    TopServers(s.Guilds, TopServerCount),
	}

	if len(s.Guilds) > 0 {
		avg := float64(s.TotalUserCount) / float64(len(s.Guilds))
		data.AverageMembers = math.Round(avg*10) / 10
	}
	for _, g := range s.Guilds {
		if g.PremiumSubscriptionCount > 0 {
			data.BoostedServers++
		}
	}
	for _, n := range s.CommandUsage {
		data.TotalCommandsUsed += n
	}

	return data
}

// TopServers はメンバー数の多い順にn件のサーバーを返す。同数の場合はID順。
func TopServers(guilds []model.GuildStat, n int) []model.ServerRank {
	sorted := slices.Clone(guilds)
	slices.SortFunc(sorted, func(a, b model.GuildStat) int {
		if c := cmp.Compare(b.MemberCount, a.MemberCount); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	ranks := make([]model.ServerRank, 0, min(n, len(sorted)))
	for _, g := range sorted[:min(n, len(sorted))] {
		ranks = append(ranks, model.ServerRank{ID: g.ID, Name: g.Name, MemberCount: g.MemberCount})
	}
	return ranks
}

// CommandsFromSnapshot はcommandsドメインのペイロードを生成する。
// カタログのコマンドに利用数を付与し、カタログ外で実行されたコマンドは末尾に追加する。
func CommandsFromSnapshot(s *model.LiveSnapshot) model.CommandsData {
	commands := make([]model.CommandStat, 0, len(model.CommandCatalog))
	known := make(map[string]bool, len(model.CommandCatalog))

	for _, c := range model.CommandCatalog {
		known[c.Name] = true
		commands = append(commands, model.CommandStat{
			Name:        c.Name,
			Description: c.Description,
			Category:    c.Category,
			Enabled:     true,
			UsageCount:  s.CommandUsage[c.Name],
		})
	}

	var extra []string
	for name := range s.CommandUsage {
		if !known[name] {
			extra = append(extra, name)
		}
	}
	slices.Sort(extra)
	for _, name := range extra {
		commands = append(commands, model.CommandStat{
			Name:       name,
			Category:   "other",
			Enabled:    true,
			UsageCount: s.CommandUsage[name],
		})
	}

	return model.CommandsData{
		Commands: commands,
		Total:    len(commands),
	}
}

// StatusFromSnapshot はbotStatusドメインのペイロードを生成する。
func StatusFromSnapshot(s *model.LiveSnapshot) model.BotStatusData {
	return model.BotStatusData{
		Bot: model.BotStatus{
			IsConnected:     s.IsConnected,
			Mode:            s.Mode,
			GuildCount:      len(s.Guilds),
			TotalUserCount:  s.TotalUserCount,
			UptimeSeconds:   s.UptimeSeconds,
			LatencyMs:       s.LatencyMs,
			LastRefreshedAt: s.LastRefreshedAt,
		},
	}
}
