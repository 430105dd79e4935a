package discord

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// CDNBaseURL はDiscordの画像配信ホスト。
	CDNBaseURL = "https://cdn.discordapp.com"

	animatedHashPrefix = "a_"
	defaultAvatarCount = 5
)

// UserAvatarURL はユーザーのアバター画像URLを返す。
// ハッシュが未設定の場合はdiscriminatorから選ばれるデフォルトアバターを返す。
func UserAvatarURL(userID string, hash *string, discriminator string) string {
	if hash != nil && *hash != "" {
		return fmt.Sprintf("%s/avatars/%s/%s.%s", CDNBaseURL, userID, *hash, imageExt(*hash))
	}
	return DefaultAvatarURL(discriminator)
}

// DefaultAvatarURL はdiscriminator mod 5で選ばれるデフォルトアバターURLを返す。
// 未設定や数値でない場合は0として扱う。
func DefaultAvatarURL(discriminator string) string {
	n, err := strconv.ParseUint(discriminator, 10, 64)
	if err != nil {
		n = 0
	}
	return fmt.Sprintf("%s/embed/avatars/%d.png", CDNBaseURL, n%defaultAvatarCount)
}

// GuildIconURL はギルドアイコンのURLを返す。アイコン未設定の場合はnil。
func GuildIconURL(guildID string, hash *string) *string {
	if hash == nil || *hash == "" {
		return nil
	}
	u := fmt.Sprintf("%s/icons/%s/%s.%s", CDNBaseURL, guildID, *hash, imageExt(*hash))
	return &u
}

// アニメーション画像のハッシュはa_で始まる
func imageExt(hash string) string {
	if strings.HasPrefix(hash, animatedHashPrefix) {
		return "gif"
	}
	return "png"
}
