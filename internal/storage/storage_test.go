package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auto-trader/pkg/types"
)

func TestStateManager_HoldingsMemory(t *testing.T) {
	ctx := context.Background()
	sm := NewMemoryStateManager()

	h, err := sm.Holdings(ctx, "TCS")
	require.NoError(t, err)
	assert.Equal(t, types.Holdings{}, h)

	meta := map[string]string{"broker": "zerodha"}
	require.NoError(t, sm.SetHoldings(ctx, "TCS", types.Holdings{Held: true, Quantity: 10, AveragePrice: 3500, Meta: meta}))
	meta["broker"] = "changed"

	h, err = sm.Holdings(ctx, "TCS")
	require.NoError(t, err)
	assert.True(t, h.Held)
	assert.Equal(t, 10.0, h.Quantity)
	assert.Equal(t, "zerodha", h.Meta["broker"])

	h.Meta["broker"] = "mutated"
	again, _ := sm.Holdings(ctx, "TCS")
	assert.Equal(t, "zerodha", again.Meta["broker"])
}

func TestStateManager_LatestSignal(t *testing.T) {
	ctx := context.Background()
	sm := NewMemoryStateManager()
	day := time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC)

	_, ok, err := sm.LatestSignal(ctx, "INFY")
	require.NoError(t, err)
	assert.False(t, ok)

	prev, err := sm.StoreLatestSignal(ctx, "INFY", types.SignalBuy, day)
	require.NoError(t, err)
	assert.Empty(t, prev)

	prev, err = sm.StoreLatestSignal(ctx, "INFY", types.SignalHold, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, types.SignalBuy, prev)

	latest, ok, err := sm.LatestSignal(ctx, "INFY")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, types.SignalHold, latest.Signal)
	assert.Equal(t, day.AddDate(0, 0, 1), latest.TradeDate)

	stats := sm.Stats(ctx)
	assert.Equal(t, false, stats["redis_enabled"])
	assert.Equal(t, 1, stats["memory_signals"])
}

func TestStateManager_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	sm := NewMemoryStateManager()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			symbol := []string{"TCS", "INFY", "RELIANCE", "HDFCBANK"}[i%4]
			_ = sm.SetHoldings(ctx, symbol, types.Holdings{Held: i%2 == 0, Quantity: float64(i)})
			_, _ = sm.Holdings(ctx, symbol)
			_, _ = sm.StoreLatestSignal(ctx, symbol, types.SignalHold, time.Now())
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 4, sm.Stats(ctx)["memory_signals"])
	assert.Equal(t, 4, sm.Stats(ctx)["memory_holdings"])
}

func TestNewStateManager_NoRedisFallsBackToMemory(t *testing.T) {
	sm := NewStateManager(types.RedisConfig{})
	assert.False(t, sm.RedisEnabled())
	assert.NoError(t, sm.Close())
}

func TestHoldingsCodec(t *testing.T) {
	in := types.Holdings{Held: true, Quantity: 12.5, AveragePrice: 101.25, Meta: map[string]string{"note": "swing"}}
	fields, err := encodeHoldings(in)
	require.NoError(t, err)

	raw := make(map[string]string, len(fields))
	for k, v := range fields {
		raw[k] = v.(string)
	}
	out, err := decodeHoldings(raw)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = decodeHoldings(map[string]string{"quantity": "ten"})
	assert.Error(t, err)
}

func TestDecodeSignal(t *testing.T) {
	latest, err := decodeSignal(map[string]string{"signal": "sell", "trade_date": "2024-03-05", "updated_at": "1709640000"})
	require.NoError(t, err)
	assert.Equal(t, types.SignalSell, latest.Signal)
	assert.Equal(t, time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC), latest.TradeDate)

	_, err = decodeSignal(map[string]string{"signal": "MAYBE"})
	assert.Error(t, err)
}
