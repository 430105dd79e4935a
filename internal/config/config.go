// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// OAuth
	DiscordClientID     string
	DiscordClientSecret string
	DiscordRedirectURI  string
	DiscordTokenURL     string
	DiscordAPIURL       string
	OAuthTimeout        time.Duration

	// Session
	JWTSecret  string
	SessionTTL time.Duration

	// Bot / Poller
	DiscordBotToken  string
	GatewayURL       string
	GatewayIntents   int
	SnapshotInterval time.Duration

	// Aggregation Gateway
	BotAPIURL       string
	UpstreamTimeout time.Duration

	// Rate Limit（req/min）
	RateLimitGeneral int
	RateLimitAuth    int

	// Logging
	LogLevel string

	// Server
	ServerPort string
	BotAPIPort string

	// CORS
	FrontendURL string
}

// Load は環境変数からConfigを読み込む。
// 必須項目の検証はサブコマンドごとに行うため、ここでは行わない。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.DiscordClientID = os.Getenv("DISCORD_CLIENT_ID")
	cfg.DiscordClientSecret = os.Getenv("DISCORD_CLIENT_SECRET")
	cfg.DiscordRedirectURI = getEnvString("DISCORD_REDIRECT_URI", "http://localhost:3000/auth/callback")
	cfg.DiscordTokenURL = getEnvString("DISCORD_TOKEN_URL", "https://discord.com/api/oauth2/token")
	cfg.DiscordAPIURL = getEnvString("DISCORD_API_URL", "https://discord.com/api/v10")
	cfg.OAuthTimeout = getEnvDuration("OAUTH_TIMEOUT", 10*time.Second)

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	cfg.SessionTTL = getEnvDuration("SESSION_TTL", 7*24*time.Hour)

	cfg.DiscordBotToken = os.Getenv("DISCORD_BOT_TOKEN")
	cfg.GatewayURL = getEnvString("DISCORD_GATEWAY_URL", "wss://gateway.discord.gg/?v=10&encoding=json")
	cfg.GatewayIntents = getEnvInt("DISCORD_GATEWAY_INTENTS", 1) // GUILDS
	cfg.SnapshotInterval = getEnvDuration("SNAPSHOT_INTERVAL", 30*time.Second)

	cfg.BotAPIURL = getEnvString("BOT_API_URL", "http://localhost:3002")
	cfg.UpstreamTimeout = getEnvDuration("UPSTREAM_TIMEOUT", 3*time.Second)

	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitAuth = getEnvInt("RATE_LIMIT_AUTH", 10)

	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.BotAPIPort = getEnvString("BOT_API_PORT", "3002")

	cfg.FrontendURL = getEnvString("FRONTEND_URL", "http://localhost:3000")

	if cfg.SnapshotInterval <= 0 {
		return nil, fmt.Errorf("SNAPSHOT_INTERVAL must be positive: %v", cfg.SnapshotInterval)
	}
	if cfg.UpstreamTimeout <= 0 {
		return nil, fmt.Errorf("UPSTREAM_TIMEOUT must be positive: %v", cfg.UpstreamTimeout)
	}
	if cfg.RateLimitGeneral <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_GENERAL must be positive: %d", cfg.RateLimitGeneral)
	}
	if cfg.RateLimitAuth <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_AUTH must be positive: %d", cfg.RateLimitAuth)
	}

	return cfg, nil
}

// ValidateServe はダッシュボードAPI（serve）に必須の設定を検証する。
// 未設定の環境変数名をまとめてエラーとして返す。
func (c *Config) ValidateServe() error {
	var missing []string

	if c.DiscordClientID == "" {
		missing = append(missing, "DISCORD_CLIENT_ID")
	}
	if c.DiscordClientSecret == "" {
		missing = append(missing, "DISCORD_CLIENT_SECRET")
	}
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}

	if len(missing) > 0 {
		return fmt.Errorf("required environment variables are not set: %v", missing)
	}
	return nil
}

// DemoMode はBotトークンが未設定でポーラーがデモモードで動作するかを返す。
func (c *Config) DemoMode() bool {
	return c.DiscordBotToken == ""
}

// LoadDotEnv は作業ディレクトリの.envファイルを環境変数に読み込む。
// 既に設定済みの環境変数は上書きしない。ファイルが存在しない場合は何もしない。
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to load %s: %w", path, err)
}

// ParseFlags はサブコマンドのフラグで設定を上書きする。
// 環境変数より優先される。
func (c *Config) ParseFlags(name string, args []string) error {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)

	fs.StringVarP(&c.ServerPort, "port", "p", c.ServerPort, "Dashboard API listen port")
	fs.StringVar(&c.BotAPIPort, "bot-port", c.BotAPIPort, "Poller API listen port")
	fs.StringVar(&c.BotAPIURL, "bot-api-url", c.BotAPIURL, "Base URL of the poller API")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")

	return fs.Parse(args)
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
