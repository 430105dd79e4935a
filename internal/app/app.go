package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/guilddash/internal/aggregate"
	"github.com/hitoshi/guilddash/internal/auth"
	"github.com/hitoshi/guilddash/internal/config"
	"github.com/hitoshi/guilddash/internal/discord"
	"github.com/hitoshi/guilddash/internal/handler"
	"github.com/hitoshi/guilddash/internal/logger"
	"github.com/hitoshi/guilddash/internal/metrics"
	"github.com/hitoshi/guilddash/internal/middleware"
	"github.com/hitoshi/guilddash/internal/model"
	"github.com/hitoshi/guilddash/internal/repository"
	"github.com/hitoshi/guilddash/internal/security"
	"github.com/hitoshi/guilddash/internal/session"
	"github.com/hitoshi/guilddash/internal/worker/snapshot"
)

const (
	shutdownTimeout = 30 * time.Second
	// userCleanupInterval はユーザーディレクトリの期限切れエントリを削除する間隔。
	userCleanupInterval = time.Hour
)

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、.env・環境変数・フラグの順に設定を読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer, args []string) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. .envと環境変数から設定を読み込む
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. フラグで上書き
	cmd := ParseCommand(args)
	if err := cfg.ParseFlags(string(cmd), flagArgs(args)); err != nil {
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}

	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。SIGINTまたはSIGTERMでグレースフルシャットダウンする。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if err := cfg.ParseFlags(string(cmd), flagArgs(args)); err != nil {
			return err
		}
		return runHealthcheck(cfg.ServerPort)
	}

	cfg, err := Init(w, args)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("log_level", cfg.LogLevel),
	)

	switch cmd {
	case CommandPoller:
		return runPoller(ctx, cfg, nil)
	default:
		return runServe(ctx, cfg, nil)
	}
}

// buildServeRouter はダッシュボードAPIの全依存関係をワイヤリングしたルーターを返す。
// 返却するRateLimiterはシャットダウン時に停止する。
func buildServeRouter(cfg *config.Config, users repository.UserRepository) (http.Handler, *middleware.RateLimiter, error) {
	if err := cfg.ValidateServe(); err != nil {
		return nil, nil, err
	}
	for _, u := range []string{cfg.DiscordTokenURL, cfg.DiscordAPIURL} {
		if err := security.ValidateProviderURL(u); err != nil {
			return nil, nil, fmt.Errorf("invalid provider endpoint %q: %w", u, err)
		}
	}

	// 1. メトリクス
	reg := metrics.NewRegistry()
	collector := metrics.NewCollector(reg)

	// 2. 認証
	issuer, err := session.NewIssuer(session.Config{Secret: cfg.JWTSecret, TTL: cfg.SessionTTL})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session issuer: %w", err)
	}
	oauthProvider := auth.NewDiscordOAuthProvider(auth.DiscordOAuthConfig{
		ClientID:     cfg.DiscordClientID,
		ClientSecret: cfg.DiscordClientSecret,
		RedirectURL:  cfg.DiscordRedirectURI,
		TokenURL:     cfg.DiscordTokenURL,
		APIBaseURL:   cfg.DiscordAPIURL,
		HTTPClient:   security.NewProviderClient(cfg.OAuthTimeout),
	})
	authService := auth.NewService(
		oauthProvider,
		issuer,
		users,
		security.NewProfileSanitizer(),
		collector,
		auth.ServiceConfig{},
	)

	// 3. 集約ゲートウェイ
	gateway := aggregate.NewGateway(
		aggregate.Config{BaseURL: cfg.BotAPIURL, Timeout: cfg.UpstreamTimeout},
		nil,
		aggregate.NewFallbackGenerator(nil, nil),
		slog.Default(),
		collector,
	)

	// 4. ルーター
	rateLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitAuth))
	router := handler.NewRouter(&handler.RouterDeps{
		SessionVerifier:   issuer,
		CORSAllowedOrigin: cfg.FrontendURL,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),
		AuthService:       authService,
		DashboardService:  gateway,
		Gatherer:          reg,
	})

	return router, rateLimiter, nil
}

// runServe はダッシュボードAPIサーバーモードで起動する。
// lnがnilの場合はServerPortで待ち受ける。
func runServe(ctx context.Context, cfg *config.Config, ln net.Listener) error {
	users := repository.NewMemoryUserRepo(cfg.SessionTTL)
	router, rateLimiter, err := buildServeRouter(cfg, users)
	if err != nil {
		return err
	}
	defer rateLimiter.Stop()

	cleanupCtx, stopCleanup := context.WithCancel(ctx)
	defer stopCleanup()
	go users.RunCleanup(cleanupCtx, userCleanupInterval)

	slog.Info("dashboard API configured",
		slog.String("bot_api_url", cfg.BotAPIURL),
		slog.Duration("upstream_timeout", cfg.UpstreamTimeout),
		slog.String("frontend_url", cfg.FrontendURL),
	)

	return serveHTTP(ctx, newServer(cfg.ServerPort, router), ln)
}

// newPollerSession はBotトークンの有無に応じてゲートウェイセッションを生成する。
func newPollerSession(cfg *config.Config) (snapshot.Session, model.SourceMode) {
	if cfg.DemoMode() {
		return snapshot.NewDemoSession(time.Now()), model.SourceModeDemo
	}
	return discord.NewClient(discord.Config{
		Token:   cfg.DiscordBotToken,
		Intents: cfg.GatewayIntents,
		URL:     cfg.GatewayURL,
	}), model.SourceModeLive
}

// runPoller はポーラーモードで起動する。
// ゲートウェイへの接続と読み取りAPIを並行して動かし、ゲートウェイが切断しても読み取りAPIは提供を続ける。
// lnがnilの場合はBotAPIPortで待ち受ける。
func runPoller(ctx context.Context, cfg *config.Config, ln net.Listener) error {
	reg := metrics.NewRegistry()
	collector := metrics.NewCollector(reg)

	sess, mode := newPollerSession(cfg)
	if mode == model.SourceModeDemo {
		slog.Warn("DISCORD_BOT_TOKEN is not set, running poller in demo mode")
	}

	poller := snapshot.NewPoller(sess, snapshot.Config{
		Interval: cfg.SnapshotInterval,
		Mode:     mode,
	}, slog.Default(), collector)

	router := handler.NewBotRouter(&handler.BotRouterDeps{
		Source:   poller,
		Logger:   slog.Default(),
		Gatherer: reg,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pollerDone := make(chan struct{})
	go func() {
		defer close(pollerDone)
		if err := poller.Run(ctx); err != nil {
			slog.Error("poller stopped", slog.String("error", err.Error()))
		}
	}()

	err := serveHTTP(ctx, newServer(cfg.BotAPIPort, router), ln)
	cancel()
	<-pollerDone
	return err
}

func newServer(port string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + port,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// serveHTTP はctxがキャンセルされるまでHTTPサーバーを動かし、グレースフルシャットダウンする。
func serveHTTP(ctx context.Context, server *http.Server, ln net.Listener) error {
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", server.Addr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", server.Addr, err)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server starting", slog.String("addr", ln.Addr().String()))
		errCh <- server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server listen error: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("HTTP server stopped gracefully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
