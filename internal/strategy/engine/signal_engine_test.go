package engine

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auto-trader/internal/storage"
	"auto-trader/internal/strategy/database"
	"auto-trader/pkg/types"
)

var day0 = time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)

// buySeries 最后一天满足严格规则集的 BUY 条件，第 27 天金叉
func buySeries() types.IndicatorSeries {
	series := make(types.IndicatorSeries, 30)
	for i := range series {
		macd := 0.1
		if i >= 26 {
			macd = 0.5
		}
		series[i] = types.IndicatorRecord{
			Date: day0.AddDate(0, 0, i), Close: 110, Volume: 200,
			SMAFast: 105, SMASlow: 104,
			EMA9: 51, EMA20: 100, EMA21: 49.5, EMA50: 48, EMA100: 40, EMA200: 30,
			RSI: 65, MACD: macd, MACDSignal: 0.2, MACDHist: 0.3,
			VolumeSMA20: 100, AvgVolume: 100,
		}
	}
	series[29].MACDHist = 0.5
	return series
}

func sellSeries() types.IndicatorSeries {
	series := buySeries()
	last := &series[len(series)-1]
	last.EMA9, last.EMA21, last.EMA50 = 40, 50, 55
	last.RSI = 30
	last.MACDHist = -0.2
	return series
}

func holdSeries() types.IndicatorSeries {
	series := buySeries()
	series[len(series)-1].RSI = 50
	return series
}

type fakeSeries struct {
	mu     sync.Mutex
	data   map[string]types.IndicatorSeries
	err    map[string]error
	limits []int
}

func (f *fakeSeries) LoadSeries(_ context.Context, symbol string, limit int) (types.IndicatorSeries, error) {
	f.mu.Lock()
	f.limits = append(f.limits, limit)
	f.mu.Unlock()
	if err := f.err[symbol]; err != nil {
		return nil, err
	}
	return f.data[symbol], nil
}

type fakeRecorder struct {
	mu        sync.Mutex
	decisions []*database.SignalDecision
	perf      map[string][]types.Signal
}

func (f *fakeRecorder) SaveDecision(_ context.Context, d *database.SignalDecision) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decisions = append(f.decisions, d)
	return nil
}

func (f *fakeRecorder) UpdateStrategyPerformance(_ context.Context, symbol string, _ time.Time, signal types.Signal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.perf == nil {
		f.perf = make(map[string][]types.Signal)
	}
	f.perf[symbol] = append(f.perf[symbol], signal)
	return nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	single   []*types.SignalEvent
	batches  [][]*types.SignalEvent
	batchErr error
}

func (f *fakeNotifier) SendSignal(e *types.SignalEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.single = append(f.single, e)
	return nil
}

func (f *fakeNotifier) SendBatchSignals(events []*types.SignalEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.batchErr != nil {
		return f.batchErr
	}
	f.batches = append(f.batches, events)
	return nil
}

type fakeMetrics struct {
	mu        sync.Mutex
	signals   map[string]types.Signal
	errors    map[string]string
	durations int
}

func (f *fakeMetrics) ObserveSignal(symbol string, signal types.Signal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signals == nil {
		f.signals = make(map[string]types.Signal)
	}
	f.signals[symbol] = signal
}

func (f *fakeMetrics) ObserveError(symbol, kind string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errors == nil {
		f.errors = make(map[string]string)
	}
	f.errors[symbol] = kind
}

func (f *fakeMetrics) ObserveDuration(time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.durations++
}

func newTestEngine(t *testing.T, symbols []string, series *fakeSeries, n *fakeNotifier, opts ...Option) *SignalEngine {
	t.Helper()
	cfg := types.StrategyConfig{
		Symbols: symbols,
		Workers: 3,
		History: 60,
		Rules:   types.StrictRuleConfig(),
	}
	se, err := NewSignalEngine(cfg, series, storage.NewMemoryStateManager(), n, opts...)
	require.NoError(t, err)
	return se
}

func TestEvaluateAll_ProducesOrderedResults(t *testing.T) {
	missing := buySeries()
	missing[len(missing)-1].RSI = math.NaN()

	series := &fakeSeries{
		data: map[string]types.IndicatorSeries{
			"TCS":      buySeries(),
			"INFY":     sellSeries(),
			"RELIANCE": holdSeries(),
			"WIPRO":    missing,
			"NEWCO":    buySeries()[:3],
		},
		err: map[string]error{"HDFCBANK": errors.New("connection refused")},
	}
	notifier := &fakeNotifier{}
	recorder := &fakeRecorder{}
	metrics := &fakeMetrics{}
	symbols := []string{"TCS", "INFY", "RELIANCE", "WIPRO", "NEWCO", "HDFCBANK"}
	se := newTestEngine(t, symbols, series, notifier, WithRecorder(recorder), WithMetrics(metrics))

	results := se.EvaluateAll(context.Background())
	require.Len(t, results, len(symbols))
	for i, r := range results {
		assert.Equal(t, symbols[i], r.Symbol)
	}

	assert.Equal(t, types.SignalBuy, results[0].Event.Signal)
	assert.Equal(t, types.SignalSell, results[1].Event.Signal)
	assert.Equal(t, types.SignalHold, results[2].Event.Signal)
	assert.NotNil(t, results[0].Diagnosis)
	assert.InDelta(t, 2.0, results[0].Event.VolumeRatio, 1e-9)

	assert.Equal(t, "missing_indicator", metrics.errors["WIPRO"])
	assert.Equal(t, "insufficient_history", metrics.errors["NEWCO"])
	assert.Equal(t, "load", metrics.errors["HDFCBANK"])
	assert.Error(t, results[5].Err)
	assert.Equal(t, len(symbols), metrics.durations)

	// BUY 和 SELL 合并为一次批量推送
	require.Len(t, notifier.batches, 1)
	assert.Len(t, notifier.batches[0], 2)
	assert.Empty(t, notifier.single)

	// 加载失败的标的没有审计记录
	assert.Len(t, recorder.decisions, 5)
	assert.Equal(t, []types.Signal{""}, recorder.perf["WIPRO"])

	stats := se.Stats()
	assert.Equal(t, int64(1), stats.Runs)
	assert.Equal(t, int64(6), stats.Evaluations)
	assert.Equal(t, int64(3), stats.Errors)
	assert.Equal(t, int64(2), stats.Notified)
	assert.Equal(t, []int{60, 60, 60, 60, 60, 60}, series.limits)
}

func TestEvaluateAll_NotifiesOnlyOnChange(t *testing.T) {
	series := &fakeSeries{data: map[string]types.IndicatorSeries{"TCS": buySeries()}}
	notifier := &fakeNotifier{}
	se := newTestEngine(t, []string{"TCS"}, series, notifier)

	se.EvaluateAll(context.Background())
	require.Len(t, notifier.single, 1)
	assert.Equal(t, types.Signal(""), notifier.single[0].PreviousSignal)

	// 信号未变化，不重复推送
	results := se.EvaluateAll(context.Background())
	assert.False(t, results[0].Notify())
	assert.Len(t, notifier.single, 1)

	// HOLD 不推送，再次 BUY 时重新推送
	series.data["TCS"] = holdSeries()
	se.EvaluateAll(context.Background())
	series.data["TCS"] = buySeries()
	se.EvaluateAll(context.Background())
	require.Len(t, notifier.single, 2)
	assert.Equal(t, types.SignalHold, notifier.single[1].PreviousSignal)
}

func TestEvaluateAll_BatchFailureFallsBackToSingle(t *testing.T) {
	series := &fakeSeries{data: map[string]types.IndicatorSeries{"TCS": buySeries(), "INFY": sellSeries()}}
	notifier := &fakeNotifier{batchErr: errors.New("webhook down")}
	se := newTestEngine(t, []string{"TCS", "INFY"}, series, notifier)

	se.EvaluateAll(context.Background())
	assert.Len(t, notifier.single, 2)
}

func TestEvaluateSymbol_HoldingsPassThrough(t *testing.T) {
	series := &fakeSeries{data: map[string]types.IndicatorSeries{"TCS": buySeries()}}
	state := storage.NewMemoryStateManager()
	require.NoError(t, state.SetHoldings(context.Background(), "TCS", types.Holdings{Held: true, Quantity: 5}))

	cfg := types.StrategyConfig{Symbols: []string{"TCS"}, Workers: 1, History: 30, Rules: types.StrictRuleConfig()}
	se, err := NewSignalEngine(cfg, series, state, nil)
	require.NoError(t, err)

	r := se.EvaluateSymbol(context.Background(), "TCS")
	require.NoError(t, r.Err)
	assert.True(t, r.Event.Held)
	assert.Equal(t, types.SignalBuy, r.Event.Signal)
	assert.Equal(t, day0.AddDate(0, 0, 29), r.Event.TradeDate)
	assert.Greater(t, r.Duration, time.Duration(0))

	latest, ok, err := state.LatestSignal(context.Background(), "TCS")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, types.SignalBuy, latest.Signal)
}

func TestEvaluateSymbol_Canceled(t *testing.T) {
	series := &fakeSeries{data: map[string]types.IndicatorSeries{"TCS": buySeries()}}
	se := newTestEngine(t, []string{"TCS"}, series, &fakeNotifier{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := se.EvaluateSymbol(ctx, "TCS")
	assert.ErrorIs(t, r.Err, context.Canceled)
	assert.Empty(t, series.limits)
}

func TestNewSignalEngine_Defaults(t *testing.T) {
	cfg := types.StrategyConfig{Symbols: []string{"TCS"}, Rules: types.StrictRuleConfig()}
	se, err := NewSignalEngine(cfg, &fakeSeries{}, storage.NewMemoryStateManager(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, se.config.Workers)
	assert.Equal(t, 5, se.config.History)

	cfg.Rules.BuyRSI = 10
	_, err = NewSignalEngine(cfg, &fakeSeries{}, storage.NewMemoryStateManager(), nil)
	assert.Error(t, err)
}
