package model

// CommandInfo はBotに登録されたスラッシュコマンドの定義。
type CommandInfo struct {
	Name        string
	Description string
	Category    string
}

// CommandCatalog はBotが提供するコマンドの一覧。
// ポーラーの利用統計とフォールバック生成の両方がこの一覧を基準にする。
var CommandCatalog = []CommandInfo{
	{Name: "help", Description: "Show the list of available commands", Category: "utility"},
	{Name: "ping", Description: "Check the bot latency", Category: "utility"},
	{Name: "serverinfo", Description: "Show information about this server", Category: "info"},
	{Name: "userinfo", Description: "Show information about a member", Category: "info"},
	{Name: "avatar", Description: "Show a member's avatar", Category: "info"},
	{Name: "ban", Description: "Ban a member from the server", Category: "moderation"},
	{Name: "kick", Description: "Kick a member from the server", Category: "moderation"},
	{Name: "timeout", Description: "Temporarily mute a member", Category: "moderation"},
	{Name: "purge", Description: "Bulk delete recent messages", Category: "moderation"},
	{Name: "poll", Description: "Create a quick poll", Category: "fun"},
	{Name: "roll", Description: "Roll a dice", Category: "fun"},
	{Name: "remind", Description: "Set a reminder", Category: "utility"},
}
