// Package metrics 提供 Prometheus helper，包含常用 counter/gauge/histogram 模板
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 指标集合
type Metrics struct {
	registry *prometheus.Registry

	// HTTP 请求计数
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTP 请求耗时
	HTTPRequestDuration *prometheus.HistogramVec

	// 业务指标
	DepositsTotal     prometheus.Counter
	WithdrawalsTotal  prometheus.Counter
	RedemptionsTotal  prometheus.Counter
	StrategiesActive  prometheus.Gauge
	ListingsActive    prometheus.Gauge
	ListingsFilled    prometheus.Counter
	ListingsCancelled prometheus.Counter
}

// New 创建指标实例
func New(serviceName string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yieldmarket",
			Subsystem: serviceName,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "yieldmarket",
			Subsystem: serviceName,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		DepositsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "yieldmarket",
			Subsystem: serviceName,
			Name:      "deposits_total",
			Help:      "Total successful deposits",
		}),
		WithdrawalsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "yieldmarket",
			Subsystem: serviceName,
			Name:      "withdrawals_total",
			Help:      "Total successful withdrawals",
		}),
		RedemptionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "yieldmarket",
			Subsystem: serviceName,
			Name:      "redemptions_total",
			Help:      "Total successful yield redemptions",
		}),
		StrategiesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "yieldmarket",
			Subsystem: serviceName,
			Name:      "strategies_active",
			Help:      "Number of active strategies",
		}),
		ListingsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "yieldmarket",
			Subsystem: serviceName,
			Name:      "listings_active",
			Help:      "Number of active marketplace listings",
		}),
		ListingsFilled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "yieldmarket",
			Subsystem: serviceName,
			Name:      "listings_filled_total",
			Help:      "Total filled listings",
		}),
		ListingsCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "yieldmarket",
			Subsystem: serviceName,
			Name:      "listings_cancelled_total",
			Help:      "Total cancelled listings",
		}),
	}

	m.registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.DepositsTotal,
		m.WithdrawalsTotal,
		m.RedemptionsTotal,
		m.StrategiesActive,
		m.ListingsActive,
		m.ListingsFilled,
		m.ListingsCancelled,
	)

	return m
}

// Handler 返回 /metrics 的 HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveHTTP 记录一次 HTTP 请求
func (m *Metrics) ObserveHTTP(method, path, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
