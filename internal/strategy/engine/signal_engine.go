package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"auto-trader/internal/notifier"
	"auto-trader/internal/strategy/database"
	"auto-trader/internal/strategy/signals"
	"auto-trader/pkg/types"
)

// SeriesSource 指标序列来源
type SeriesSource interface {
	LoadSeries(ctx context.Context, symbol string, limit int) (types.IndicatorSeries, error)
}

// StateStore 持仓快照和最新信号缓存
type StateStore interface {
	Holdings(ctx context.Context, symbol string) (types.Holdings, error)
	StoreLatestSignal(ctx context.Context, symbol string, signal types.Signal, tradeDate time.Time) (types.Signal, error)
}

// DecisionRecorder 评估审计和每日统计
type DecisionRecorder interface {
	SaveDecision(ctx context.Context, decision *database.SignalDecision) error
	UpdateStrategyPerformance(ctx context.Context, symbol string, date time.Time, signal types.Signal) error
}

// MetricsRecorder 评估指标
type MetricsRecorder interface {
	ObserveSignal(symbol string, signal types.Signal)
	ObserveError(symbol, kind string)
	ObserveDuration(d time.Duration)
}

// Result 单个标的的评估结果
type Result struct {
	Symbol    string
	Event     *types.SignalEvent
	Diagnosis *signals.Diagnosis
	Err       error
	Duration  time.Duration
}

// Notify 信号是否需要推送：BUY / SELL 且与上次不同
func (r Result) Notify() bool {
	if r.Err != nil || r.Event == nil {
		return false
	}
	return r.Event.Signal.IsActionable() && r.Event.Signal != r.Event.PreviousSignal
}

// Stats 引擎累计统计
type Stats struct {
	Runs        int64     `json:"runs"`
	Evaluations int64     `json:"evaluations"`
	Buy         int64     `json:"buy"`
	Sell        int64     `json:"sell"`
	Hold        int64     `json:"hold"`
	Errors      int64     `json:"errors"`
	Notified    int64     `json:"notified"`
	LastRun     time.Time `json:"last_run"`
}

// SignalEngine 信号引擎：按标的并发评估并分发结果
type SignalEngine struct {
	config    types.StrategyConfig
	evaluator *signals.RuleEvaluator

	series   SeriesSource
	state    StateStore
	recorder DecisionRecorder
	metrics  MetricsRecorder
	notifier notifier.Interface

	// 同一时刻只允许一轮评估
	runMutex sync.Mutex

	stats      Stats
	statsMutex sync.RWMutex
}

// Option 可选依赖
type Option func(*SignalEngine)

// WithRecorder 启用审计记录
func WithRecorder(r DecisionRecorder) Option {
	return func(se *SignalEngine) { se.recorder = r }
}

// WithMetrics 启用指标上报
func WithMetrics(m MetricsRecorder) Option {
	return func(se *SignalEngine) { se.metrics = m }
}

// NewSignalEngine 创建信号引擎
func NewSignalEngine(config types.StrategyConfig, series SeriesSource, state StateStore, notifyService notifier.Interface, opts ...Option) (*SignalEngine, error) {
	evaluator, err := signals.NewRuleEvaluator(config.Rules)
	if err != nil {
		return nil, err
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.History < config.Rules.RequiredHistory() {
		config.History = config.Rules.RequiredHistory()
	}

	se := &SignalEngine{
		config:    config,
		evaluator: evaluator,
		series:    series,
		state:     state,
		notifier:  notifyService,
	}
	for _, opt := range opts {
		opt(se)
	}
	return se, nil
}

// EvaluateAll 评估全部标的，结果顺序与配置中的标的顺序一致
func (se *SignalEngine) EvaluateAll(ctx context.Context) []Result {
	se.runMutex.Lock()
	defer se.runMutex.Unlock()

	symbols := se.config.Symbols
	results := make([]Result, len(symbols))
	if len(symbols) == 0 {
		return results
	}

	zap.L().Info("🔍 开始评估信号",
		zap.Int("symbols", len(symbols)),
		zap.String("variant", se.config.Rules.Variant),
		zap.Int("workers", se.config.Workers))
	start := time.Now()

	jobs := make(chan int)
	var wg sync.WaitGroup

	workerCount := se.config.Workers
	if workerCount > len(symbols) {
		workerCount = len(symbols)
	}
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results[idx] = se.EvaluateSymbol(ctx, symbols[idx])
			}
		}()
	}

	for i := range symbols {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	// 收集需要推送的信号
	events := make([]*types.SignalEvent, 0)
	for _, r := range results {
		if r.Notify() {
			events = append(events, r.Event)
		}
	}
	se.dispatch(events)

	se.statsMutex.Lock()
	se.stats.Runs++
	se.stats.LastRun = start
	se.stats.Notified += int64(len(events))
	se.statsMutex.Unlock()

	zap.L().Info("✅ 信号评估完成",
		zap.Int("symbols", len(symbols)),
		zap.Int("notified", len(events)),
		zap.Duration("elapsed", time.Since(start)))

	return results
}

// EvaluateSymbol 评估单个标的
func (se *SignalEngine) EvaluateSymbol(ctx context.Context, symbol string) (result Result) {
	start := time.Now()
	result = Result{Symbol: symbol}
	defer func() {
		result.Duration = time.Since(start)
		if se.metrics != nil {
			se.metrics.ObserveDuration(result.Duration)
		}
	}()

	if err := ctx.Err(); err != nil {
		result.Err = err
		se.recordError(symbol, "canceled", err)
		return result
	}

	series, err := se.series.LoadSeries(ctx, symbol, se.config.History)
	if err != nil {
		result.Err = err
		se.recordError(symbol, "load", err)
		return result
	}

	holdings, err := se.state.Holdings(ctx, symbol)
	if err != nil {
		zap.L().Warn("⚠️ 读取持仓失败，按空仓处理", zap.String("symbol", symbol), zap.Error(err))
		holdings = types.Holdings{}
	}

	event := &types.SignalEvent{
		Symbol:      symbol,
		Variant:     se.config.Rules.Variant,
		Held:        holdings.Held,
		EvaluatedAt: start,
	}
	if cur, ok := series.Current(); ok {
		event.TradeDate = cur.Date
		event.Close = cur.Close
		event.RSI = cur.RSI
		event.MACDHist = cur.MACDHist
	}
	result.Event = event

	diagnosis, err := se.evaluator.Diagnose(series)
	if err != nil {
		result.Err = err
		kind := signals.ErrorKind(err)
		zap.L().Warn("⚠️ 跳过信号评估",
			zap.String("symbol", symbol),
			zap.String("kind", kind),
			zap.Error(err))
		se.recordError(symbol, kind, err)
		se.persist(ctx, event, kind, err)
		return result
	}

	event.Signal = diagnosis.Signal
	event.VolumeRatio = diagnosis.VolumeRatio
	result.Diagnosis = diagnosis

	prev, err := se.state.StoreLatestSignal(ctx, symbol, event.Signal, event.TradeDate)
	if err != nil {
		zap.L().Warn("⚠️ 缓存最新信号失败", zap.String("symbol", symbol), zap.Error(err))
	}
	event.PreviousSignal = prev

	zap.L().Debug("信号评估结果",
		zap.String("symbol", symbol),
		zap.String("signal", event.Signal.String()),
		zap.String("previous", prev.String()),
		zap.Any("diagnosis", diagnosis))

	se.recordSignal(symbol, event.Signal)
	se.persist(ctx, event, "", nil)
	return result
}

// dispatch 批量发送信号，失败时降级为逐条发送
func (se *SignalEngine) dispatch(events []*types.SignalEvent) {
	if len(events) == 0 || se.notifier == nil {
		return
	}

	// 如果只有一个信号，使用单个发送
	if len(events) == 1 {
		if err := se.notifier.SendSignal(events[0]); err != nil {
			zap.L().Error("❌ 发送信号失败", zap.String("symbol", events[0].Symbol), zap.Error(err))
		}
		return
	}

	if err := se.notifier.SendBatchSignals(events); err != nil {
		zap.L().Error("❌ 批量发送信号失败", zap.Error(err))
		for _, event := range events {
			if singleErr := se.notifier.SendSignal(event); singleErr != nil {
				zap.L().Error("❌ 单个信号发送失败", zap.String("symbol", event.Symbol), zap.Error(singleErr))
			}
		}
	}
}

// persist 写入审计记录和每日统计
func (se *SignalEngine) persist(ctx context.Context, event *types.SignalEvent, kind string, evalErr error) {
	if se.recorder == nil {
		return
	}
	if err := se.recorder.SaveDecision(ctx, database.NewSignalDecision(event, kind, evalErr)); err != nil {
		zap.L().Error("保存评估记录失败", zap.String("symbol", event.Symbol), zap.Error(err))
	}

	date := event.TradeDate
	if date.IsZero() {
		date = event.EvaluatedAt
	}
	if err := se.recorder.UpdateStrategyPerformance(ctx, event.Symbol, date, event.Signal); err != nil {
		zap.L().Error("更新策略性能失败", zap.String("symbol", event.Symbol), zap.Error(err))
	}
}

func (se *SignalEngine) recordSignal(symbol string, signal types.Signal) {
	se.statsMutex.Lock()
	se.stats.Evaluations++
	switch signal {
	case types.SignalBuy:
		se.stats.Buy++
	case types.SignalSell:
		se.stats.Sell++
	default:
		se.stats.Hold++
	}
	se.statsMutex.Unlock()

	if se.metrics != nil {
		se.metrics.ObserveSignal(symbol, signal)
	}
}

func (se *SignalEngine) recordError(symbol, kind string, err error) {
	se.statsMutex.Lock()
	se.stats.Evaluations++
	se.stats.Errors++
	se.statsMutex.Unlock()

	if se.metrics != nil {
		se.metrics.ObserveError(symbol, kind)
	}
	if kind == "load" {
		zap.L().Error("读取指标序列失败", zap.String("symbol", symbol), zap.Error(err))
	}
}

// Stats 获取统计信息
func (se *SignalEngine) Stats() Stats {
	se.statsMutex.RLock()
	defer se.statsMutex.RUnlock()
	return se.stats
}

// Symbols 评估的标的列表
func (se *SignalEngine) Symbols() []string {
	return append([]string(nil), se.config.Symbols...)
}

// String 调试输出
func (s Stats) String() string {
	return fmt.Sprintf("runs=%d evaluations=%d buy=%d sell=%d hold=%d errors=%d notified=%d",
		s.Runs, s.Evaluations, s.Buy, s.Sell, s.Hold, s.Errors, s.Notified)
}
