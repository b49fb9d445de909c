package monitor

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"auto-trader/pkg/types"
)

// Metrics 信号评估的 Prometheus 指标
type Metrics struct {
	registry *prometheus.Registry

	signalsTotal *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	evalSeconds  prometheus.Histogram
}

// NewMetrics 创建独立 registry 的指标集合
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		signalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "autotrader",
				Name:      "signals_total",
				Help:      "Signals produced by the rule evaluator",
			},
			[]string{"symbol", "signal"},
		),
		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "autotrader",
				Name:      "evaluation_errors_total",
				Help:      "Evaluations that produced no signal",
			},
			[]string{"symbol", "kind"},
		),
		evalSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "autotrader",
			Name:      "evaluation_seconds",
			Help:      "Per-symbol evaluation latency including data loading",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
	}
	m.registry.MustRegister(m.signalsTotal, m.errorsTotal, m.evalSeconds)
	return m
}

func (m *Metrics) ObserveSignal(symbol string, signal types.Signal) {
	m.signalsTotal.WithLabelValues(symbol, signal.String()).Inc()
}

func (m *Metrics) ObserveError(symbol, kind string) {
	m.errorsTotal.WithLabelValues(symbol, kind).Inc()
}

func (m *Metrics) ObserveDuration(d time.Duration) {
	m.evalSeconds.Observe(d.Seconds())
}

// Registry 指标 registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve 在 addr 上暴露 /metrics
func (m *Metrics) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Error("❌ 指标服务异常退出", zap.String("addr", addr), zap.Error(err))
		}
	}()
	zap.L().Info("📡 指标服务已启动", zap.String("addr", addr))
	return srv
}

// Shutdown 关闭指标服务
func Shutdown(srv *http.Server, timeout time.Duration) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zap.L().Warn("⚠️ 关闭指标服务失败", zap.Error(err))
	}
}
