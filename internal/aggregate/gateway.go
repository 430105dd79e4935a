// Package aggregate はダッシュボード向けデータの集約ゲートウェイを提供する。
// ポーラーのAPIを呼び出し、取得できない場合はフォールバックデータを生成する。
package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/guilddash/internal/metrics"
	"github.com/hitoshi/guilddash/internal/model"
)

// データドメイン名
const (
	DomainServers   = "servers"
	DomainAnalytics = "analytics"
	DomainCommands  = "commands"
	DomainBotStatus = "botStatus"
)

// ポーラーの読み取りエンドポイント
const (
	PathServers   = "/api/servers/real"
	PathAnalytics = "/api/analytics/real"
	PathCommands  = "/api/commands/real"
	PathBotStatus = "/api/bot/real-status"
)

const (
	// DefaultTimeout はポーラー呼び出しのタイムアウト。
	DefaultTimeout = 3 * time.Second

	maxUpstreamBody = 1 << 20
)

// Config は集約ゲートウェイの設定。
type Config struct {
	// BaseURL はポーラーAPIのベースURL。
	BaseURL string
	// Timeout はポーラー呼び出し1回あたりのタイムアウト。0以下の場合はDefaultTimeout。
	Timeout time.Duration
	// Now はテスト用の時刻関数。
	Now func() time.Time
}

// Gateway はダッシュボードの各データドメインを集約する。
// どのメソッドもエラーを返さず、ポーラーが利用できない場合はフォールバックに切り替える。
type Gateway struct {
	httpClient *http.Client
	baseURL    string
	timeout    time.Duration
	fallback   *FallbackGenerator
	validate   *validator.Validate
	logger     *slog.Logger
	metrics    metrics.MetricsCollector
	now        func() time.Time
}

// NewGateway はGatewayを生成する。mcがnilの場合はメトリクスを記録しない。
func NewGateway(cfg Config, httpClient *http.Client, fallback *FallbackGenerator, logger *slog.Logger, mc metrics.MetricsCollector) *Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if mc == nil {
		mc = metrics.NopCollector{}
	}
	return &Gateway{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		timeout:    cfg.Timeout,
		fallback:   fallback,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		logger:     logger,
		metrics:    mc,
		now:        cfg.Now,
	}
}

// Servers はサーバー一覧を集約する。
func (g *Gateway) Servers(ctx context.Context) model.AggregatedResponse[model.ServersData] {
	return aggregate(ctx, g, DomainServers, PathServers, g.fallback.Servers)
}

// Analytics は分析サマリーを集約する。
func (g *Gateway) Analytics(ctx context.Context) model.AggregatedResponse[model.AnalyticsData] {
	return aggregate(ctx, g, DomainAnalytics, PathAnalytics, g.fallback.Analytics)
}

// Commands はコマンド利用統計を集約する。
func (g *Gateway) Commands(ctx context.Context) model.AggregatedResponse[model.CommandsData] {
	return aggregate(ctx, g, DomainCommands, PathCommands, g.fallback.Commands)
}

// BotStatus はBotの稼働状態を集約する。
func (g *Gateway) BotStatus(ctx context.Context) model.AggregatedResponse[model.BotStatusData] {
	return aggregate(ctx, g, DomainBotStatus, PathBotStatus, g.fallback.BotStatus)
}

// aggregate はポーラーから取得できればlive、失敗すればfallbackとしてレスポンスを組み立てる。
func aggregate[T any](ctx context.Context, g *Gateway, domain, path string, fallback func() T) model.AggregatedResponse[T] {
	data, err := fetchLive[T](ctx, g, domain, path)
	if err != nil {
		g.logger.Warn("ポーラーからの取得に失敗したためフォールバックデータを返します",
			slog.String("domain", domain),
			slog.String("error", err.Error()),
		)
		g.metrics.RecordAggregate(domain, string(model.DataSourceFallback))
		return model.AggregatedResponse[T]{
			Success:     true,
			Data:        fallback(),
			DataSource:  model.DataSourceFallback,
			GeneratedAt: g.now().UTC(),
		}
	}

	g.metrics.RecordAggregate(domain, string(model.DataSourceLive))
	return model.AggregatedResponse[T]{
		Success:     true,
		Data:        data,
		DataSource:  model.DataSourceLive,
		GeneratedAt: g.now().UTC(),
	}
}

// upstreamStatus はポーラーのレスポンスに共通するフィールド。
type upstreamStatus struct {
	Success *bool `json:"success"`
}

// fetchLive はポーラーのエンドポイントを呼び出し、ペイロードをTにデコードする。
// 失敗はすべてErrUpstreamUnavailableとして返す。
func fetchLive[T any](ctx context.Context, g *Gateway, domain, path string) (T, error) {
	var zero T

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	defer func() { g.metrics.RecordUpstreamLatency(domain, time.Since(start)) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return zero, fmt.Errorf("%w: HTTPリクエストの作成に失敗しました: %v", model.ErrUpstreamUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return zero, fmt.Errorf("%w: %v", model.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return zero, fmt.Errorf("%w: ポーラーがステータス %d を返しました", model.ErrUpstreamUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBody))
	if err != nil {
		return zero, fmt.Errorf("%w: レスポンスボディの読み取りに失敗しました: %v", model.ErrUpstreamUnavailable, err)
	}

	var status upstreamStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return zero, fmt.Errorf("%w: レスポンスJSONのパースに失敗しました: %v", model.ErrUpstreamUnavailable, err)
	}
	if status.Success == nil || !*status.Success {
		return zero, fmt.Errorf("%w: ポーラーがsuccess=falseを返しました", model.ErrUpstreamUnavailable)
	}

	var data T
	if err := json.Unmarshal(body, &data); err != nil {
		return zero, fmt.Errorf("%w: ペイロードのパースに失敗しました: %v", model.ErrUpstreamUnavailable, err)
	}
	if err := g.validate.Struct(data); err != nil {
		return zero, fmt.Errorf("%w: ペイロードがスキーマを満たしません: %v", model.ErrUpstreamUnavailable, err)
	}

	return data, nil
}
