package monitor

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"auto-trader/internal/strategy/database"
	"auto-trader/internal/strategy/engine"
	"auto-trader/pkg/types"
)

// PerformanceSource 每日统计来源
type PerformanceSource interface {
	GetStrategyPerformance(ctx context.Context, symbol string, days int) ([]database.StrategyPerformance, error)
}

// EngineStats 引擎运行统计
type EngineStats interface {
	Stats() engine.Stats
	Symbols() []string
}

// PerformanceMonitor 策略性能监控器
type PerformanceMonitor struct {
	source PerformanceSource
	engine EngineStats
	config types.MonitorConfig

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// 性能指标
	metrics *PerformanceMetrics
	mutex   sync.RWMutex
}

// PerformanceMetrics 性能指标
type PerformanceMetrics struct {
	StartTime      time.Time                 `json:"start_time"`
	Engine         engine.Stats              `json:"engine"`
	BuySignals     int                       `json:"buy_signals"`
	SellSignals    int                       `json:"sell_signals"`
	HoldSignals    int                       `json:"hold_signals"`
	Skipped        int                       `json:"skipped"`
	SymbolStats    map[string]*SymbolMetrics `json:"symbol_stats"`
	LastUpdateTime time.Time                 `json:"last_update_time"`
}

// SymbolMetrics 单个标的最近 N 天的信号分布
type SymbolMetrics struct {
	Symbol      string    `json:"symbol"`
	Evaluations int       `json:"evaluations"`
	BuySignals  int       `json:"buy_signals"`
	SellSignals int       `json:"sell_signals"`
	HoldSignals int       `json:"hold_signals"`
	Skipped     int       `json:"skipped"`
	LastDate    time.Time `json:"last_date"`
}

// NewPerformanceMonitor 创建性能监控器，source 为空时只统计引擎计数
func NewPerformanceMonitor(source PerformanceSource, eng EngineStats, config types.MonitorConfig) *PerformanceMonitor {
	ctx, cancel := context.WithCancel(context.Background())
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}
	if config.Days <= 0 {
		config.Days = 30
	}

	return &PerformanceMonitor{
		source: source,
		engine: eng,
		config: config,
		ctx:    ctx,
		cancel: cancel,
		metrics: &PerformanceMetrics{
			StartTime:   time.Now(),
			SymbolStats: make(map[string]*SymbolMetrics),
		},
	}
}

// Start 启动性能监控
func (pm *PerformanceMonitor) Start() {
	zap.L().Info("📊 启动策略性能监控器", zap.Duration("interval", pm.config.Interval))

	pm.wg.Add(1)
	go pm.reportLoop()
}

// reportLoop 报告循环
func (pm *PerformanceMonitor) reportLoop() {
	defer pm.wg.Done()

	ticker := time.NewTicker(pm.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-pm.ctx.Done():
			return
		case <-ticker.C:
			pm.updateMetrics(pm.ctx)
			pm.generateReport()
		}
	}
}

// updateMetrics 更新性能指标
func (pm *PerformanceMonitor) updateMetrics(ctx context.Context) {
	symbolStats := make(map[string]*SymbolMetrics)
	var buy, sell, hold, skipped int

	if pm.source != nil {
		for _, symbol := range pm.engine.Symbols() {
			performances, err := pm.source.GetStrategyPerformance(ctx, symbol, pm.config.Days)
			if err != nil {
				zap.L().Warn("获取策略统计失败",
					zap.String("symbol", symbol),
					zap.Error(err))
				continue
			}

			sm := &SymbolMetrics{Symbol: symbol}
			for _, p := range performances {
				sm.Evaluations += p.TotalEvaluations
				sm.BuySignals += p.BuySignals
				sm.SellSignals += p.SellSignals
				sm.HoldSignals += p.HoldSignals
				sm.Skipped += p.Skipped
				if p.Date.After(sm.LastDate) {
					sm.LastDate = p.Date
				}
			}
			symbolStats[symbol] = sm

			buy += sm.BuySignals
			sell += sm.SellSignals
			hold += sm.HoldSignals
			skipped += sm.Skipped
		}
	}

	pm.mutex.Lock()
	pm.metrics.Engine = pm.engine.Stats()
	pm.metrics.SymbolStats = symbolStats
	pm.metrics.BuySignals = buy
	pm.metrics.SellSignals = sell
	pm.metrics.HoldSignals = hold
	pm.metrics.Skipped = skipped
	pm.metrics.LastUpdateTime = time.Now()
	pm.mutex.Unlock()
}

// generateReport 生成性能报告
func (pm *PerformanceMonitor) generateReport() {
	pm.mutex.RLock()
	defer pm.mutex.RUnlock()

	zap.L().Info("📈 策略性能报告",
		zap.Duration("run_time", time.Since(pm.metrics.StartTime)),
		zap.Int64("runs", pm.metrics.Engine.Runs),
		zap.Int64("evaluations", pm.metrics.Engine.Evaluations),
		zap.Int64("errors", pm.metrics.Engine.Errors),
		zap.Int64("notified", pm.metrics.Engine.Notified),
		zap.Int("buy_signals", pm.metrics.BuySignals),
		zap.Int("sell_signals", pm.metrics.SellSignals),
		zap.Int("hold_signals", pm.metrics.HoldSignals),
		zap.Int("skipped", pm.metrics.Skipped))

	for symbol, sm := range pm.metrics.SymbolStats {
		if sm.Evaluations == 0 {
			continue
		}
		zap.L().Info("📊 标的信号分布",
			zap.String("symbol", symbol),
			zap.Int("evaluations", sm.Evaluations),
			zap.Int("buy", sm.BuySignals),
			zap.Int("sell", sm.SellSignals),
			zap.Int("hold", sm.HoldSignals),
			zap.Int("skipped", sm.Skipped),
			zap.Time("last_date", sm.LastDate))
	}
}

// GetMetrics 刷新并返回当前性能指标副本
func (pm *PerformanceMonitor) GetMetrics(ctx context.Context) PerformanceMetrics {
	pm.updateMetrics(ctx)

	pm.mutex.RLock()
	defer pm.mutex.RUnlock()
	out := *pm.metrics
	out.SymbolStats = make(map[string]*SymbolMetrics, len(pm.metrics.SymbolStats))
	for k, v := range pm.metrics.SymbolStats {
		copied := *v
		out.SymbolStats[k] = &copied
	}
	return out
}

// GetMetricsJSON 获取JSON格式的性能指标
func (pm *PerformanceMonitor) GetMetricsJSON(ctx context.Context) (string, error) {
	metrics := pm.GetMetrics(ctx)
	data, err := json.MarshalIndent(metrics, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Stop 停止性能监控
func (pm *PerformanceMonitor) Stop() {
	zap.L().Info("🛑 停止策略性能监控器")
	pm.cancel()
	pm.wg.Wait()
}
