package auth

import (
	"github.com/hitoshi/guilddash/internal/discord"
	"github.com/hitoshi/guilddash/internal/model"
)

// Normalize はプロバイダーのユーザー情報とギルド一覧をCanonicalUserに変換する。
// guildLimitが0以下の場合はギルドを全件保持する。
// 同じ入力に対して常に同じ結果を返す。
func Normalize(raw *RawIdentity, rawGuilds []RawGuild, guildLimit int) *model.CanonicalUser {
	user := &model.CanonicalUser{
		ID:         raw.ID,
		Username:   raw.Username,
		GlobalName: raw.GlobalName,
		AvatarURL:  AvatarURL(raw),
		Email:      raw.Email,
		Verified:   raw.Verified,
		Locale:     raw.Locale,
		Guilds:     make([]model.GuildSummary, 0, len(rawGuilds)),
	}

	for _, g := range rawGuilds {
		if guildLimit > 0 && len(user.Guilds) >= guildLimit {
			break
		}
		user.Guilds = append(user.Guilds, model.GuildSummary{
			ID:          g.ID,
			Name:        g.Name,
			IconURL:     discord.GuildIconURL(g.ID, g.Icon),
			Owner:       g.Owner,
			Permissions: uint64(g.Permissions),
		})
	}

	return user
}

// AvatarURL はユーザーのアバター画像URLを返す。
func AvatarURL(raw *RawIdentity) string {
	return discord.UserAvatarURL(raw.ID, raw.Avatar, raw.Discriminator)
}
