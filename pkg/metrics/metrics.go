// Package metrics 提供 Prometheus helper，包含常用 counter/gauge/histogram 模板
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wyfcoding/oiltrading/pkg/logger"
)

// Metrics 指标集合
type Metrics struct {
	// HTTP 请求计数
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTP 请求耗时
	HTTPRequestDuration prometheus.Histogram

	// 数据库查询计数
	DBQueriesTotal prometheus.Counter
	// 数据库查询耗时
	DBQueryDuration prometheus.Histogram

	// 业务指标
	SettlementsCreated   prometheus.Counter
	SettlementsFinalized prometheus.Counter
	PaymentsCompleted    prometheus.Counter
	RuleExecutionsTotal  *prometheus.CounterVec
	RuleActionDuration   prometheus.Histogram
	SettlementsPending   prometheus.Gauge
}

// New 创建指标实例
func New(serviceName string) *Metrics {
	return &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oiltrading",
			Subsystem: serviceName,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "oiltrading",
			Subsystem: serviceName,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		DBQueriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "oiltrading",
			Subsystem: serviceName,
			Name:      "db_queries_total",
			Help:      "Total database queries",
		}),
		DBQueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "oiltrading",
			Subsystem: serviceName,
			Name:      "db_query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		SettlementsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "oiltrading",
			Subsystem: serviceName,
			Name:      "settlements_created_total",
			Help:      "Total settlements created",
		}),
		SettlementsFinalized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "oiltrading",
			Subsystem: serviceName,
			Name:      "settlements_finalized_total",
			Help:      "Total settlements finalized",
		}),
		PaymentsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "oiltrading",
			Subsystem: serviceName,
			Name:      "payments_completed_total",
			Help:      "Total payments completed",
		}),
		RuleExecutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oiltrading",
			Subsystem: serviceName,
			Name:      "rule_executions_total",
			Help:      "Total automation rule executions by outcome",
		}, []string{"rule_type", "status"}),
		RuleActionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "oiltrading",
			Subsystem: serviceName,
			Name:      "rule_action_duration_seconds",
			Help:      "Rule action execution duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		SettlementsPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "oiltrading",
			Subsystem: serviceName,
			Name:      "settlements_pending",
			Help:      "Number of settlements not yet finalized",
		}),
	}
}

// Register 注册所有指标
func (m *Metrics) Register() error {
	collectors := []prometheus.Collector{
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.DBQueriesTotal,
		m.DBQueryDuration,
		m.SettlementsCreated,
		m.SettlementsFinalized,
		m.PaymentsCompleted,
		m.RuleExecutionsTotal,
		m.RuleActionDuration,
		m.SettlementsPending,
	}
	for _, c := range collectors {
		if err := prometheus.DefaultRegisterer.Register(c); err != nil {
			logger.Error(context.Background(), "failed to register metric", "error", err)
			return err
		}
	}
	return nil
}

// StartHTTPServer 启动 Prometheus HTTP 服务器
func StartHTTPServer(port int, path string) {
	if path == "" {
		path = "/metrics"
	}
	http.Handle(path, promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	logger.Info(context.Background(), "starting metrics server", "addr", addr, "path", path)

	go func() {
		if err := http.ListenAndServe(addr, nil); err != nil {
			logger.Error(context.Background(), "metrics server exited", "error", err)
		}
	}()
}
