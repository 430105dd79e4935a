// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ログイン結果のラベル値
const (
	LoginSuccess         = "success"
	LoginExchangeFailed  = "exchange_failed"
	LoginIdentityFailed  = "identity_failed"
	LoginInvalidRequest  = "invalid_request"
	LoginInternalFailure = "internal_error"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層、集約ゲートウェイ、ポーラーから利用する。
type MetricsCollector interface {
	RecordLogin(result string)
	RecordGuildFetchDegraded()
	RecordAggregate(domain, source string)
	RecordUpstreamLatency(domain string, duration time.Duration)
	RecordSnapshotRefresh(mode string, guildCount, userCount int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	logins           *prometheus.CounterVec
	guildDegraded    prometheus.Counter
	aggregates       *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec
	snapshotRefresh  *prometheus.CounterVec
	snapshotGuilds   prometheus.Gauge
	snapshotUsers    prometheus.Gauge
	snapshotRefreshT prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guilddash_login_total",
			Help: "Discordログイン試行の結果別合計数",
		}, []string{"result"}),
		guildDegraded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "guilddash_login_guild_fetch_degraded_total",
			Help: "ギルド一覧取得に失敗して空のまま継続したログイン数",
		}),
		aggregates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guilddash_aggregate_total",
			Help: "ドメイン・データ取得元別の集約レスポンス数",
		}, []string{"domain", "source"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "guilddash_upstream_latency_seconds",
			Help:    "ポーラー呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"domain"}),
		snapshotRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guilddash_snapshot_refresh_total",
			Help: "スナップショット再計算の合計数",
		}, []string{"mode"}),
		snapshotGuilds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "guilddash_snapshot_guilds",
			Help: "最新スナップショットのギルド数",
		}),
		snapshotUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "guilddash_snapshot_users",
			Help: "最新スナップショットの合計メンバー数",
		}),
		snapshotRefreshT: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "guilddash_snapshot_last_refresh_timestamp_seconds",
			Help: "最新スナップショットの計算時刻（UNIX秒）",
		}),
	}

	reg.MustRegister(
		c.logins,
		c.guildDegraded,
		c.aggregates,
		c.upstreamLatency,
		c.snapshotRefresh,
		c.snapshotGuilds,
		c.snapshotUsers,
		c.snapshotRefreshT,
	)

	return c
}

// RecordLogin はログイン結果を記録する。
func (c *Collector) RecordLogin(result string) {
	c.logins.WithLabelValues(result).Inc()
}

// RecordGuildFetchDegraded はギルド一覧なしで継続したログインを記録する。
func (c *Collector) RecordGuildFetchDegraded() {
	c.guildDegraded.Inc()
}

// RecordAggregate は集約レスポンスのデータ取得元を記録する。
func (c *Collector) RecordAggregate(domain, source string) {
	c.aggregates.WithLabelValues(domain, source).Inc()
}

// RecordUpstreamLatency はポーラー呼び出しのレイテンシを記録する。
func (c *Collector) RecordUpstreamLatency(domain string, duration time.Duration) {
	c.upstreamLatency.WithLabelValues(domain).Observe(duration.Seconds())
}

// RecordSnapshotRefresh はスナップショット再計算を記録する。
func (c *Collector) RecordSnapshotRefresh(mode string, guildCount, userCount int) {
	c.snapshotRefresh.WithLabelValues(mode).Inc()
	c.snapshotGuilds.Set(float64(guildCount))
	c.snapshotUsers.Set(float64(userCount))
	c.snapshotRefreshT.SetToCurrentTime()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// NewRegistry はランタイムとプロセスのメトリクスを登録済みのレジストリを生成する。
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// NopCollector は何も記録しないMetricsCollector。テストやメトリクス無効時に使用する。
type NopCollector struct{}

func (NopCollector) RecordLogin(string) {}
func (NopCollector) RecordGuildFetchDegraded() {}
func (NopCollector) RecordAggregate(string, string) {}
func (NopCollector) RecordUpstreamLatency(string, time.Duration) {}
func (NopCollector) RecordSnapshotRefresh(string, int, int) {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = NopCollector{}
)
