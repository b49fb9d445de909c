package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"auto-trader/pkg/types"
)

const (
	holdingsKeyPrefix = "autotrader:holdings:"
	signalKeyPrefix   = "autotrader:signal:"
	dateLayout        = "2006-01-02"
)

// LatestSignal 最近一次评估结果
type LatestSignal struct {
	Signal    types.Signal `json:"signal"`
	TradeDate time.Time    `json:"trade_date"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// StateManager 状态管理器：持仓快照和最新信号，内存为主，Redis 可选持久化
type StateManager struct {
	holdings    map[string]types.Holdings
	signals     map[string]LatestSignal
	mutex       sync.RWMutex
	signalTTL   time.Duration
	redisClient *redis.Client
	useRedis    bool
}

// NewStateManager 创建状态管理器，Redis 不可用时退化为纯内存模式
func NewStateManager(redisConfig types.RedisConfig) *StateManager {
	// 尝试连接Redis
	if redisConfig.URL == "" {
		zap.L().Info("🔧 未配置Redis，使用纯内存模式")
		return newMemoryStateManager(redisConfig.SignalTTL)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     redisConfig.URL,
		Password: redisConfig.Password,
		DB:       redisConfig.DB,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		zap.L().Warn("⚠️ Redis连接失败，使用纯内存模式", zap.Error(err))
		_ = client.Close()
		return newMemoryStateManager(redisConfig.SignalTTL)
	}

	zap.L().Info("✅ Redis连接成功", zap.String("addr", redisConfig.URL))
	return newRedisStateManager(client, redisConfig.SignalTTL)
}

func newRedisStateManager(client *redis.Client, signalTTL time.Duration) *StateManager {
	sm := newMemoryStateManager(signalTTL)
	sm.redisClient = client
	sm.useRedis = true
	return sm
}

// NewMemoryStateManager 纯内存状态管理器
func NewMemoryStateManager() *StateManager {
	return newMemoryStateManager(0)
}

func newMemoryStateManager(signalTTL time.Duration) *StateManager {
	return &StateManager{
		holdings:  make(map[string]types.Holdings),
		signals:   make(map[string]LatestSignal),
		signalTTL: signalTTL,
	}
}

// Holdings 读取持仓快照，未知标的返回空仓
//
// 启用 Redis 时以 Redis 为准（持仓可能由其他进程写入），读取失败才退回内存副本。
func (sm *StateManager) Holdings(ctx context.Context, symbol string) (types.Holdings, error) {
	if sm.useRedis {
		h, err := sm.redisHoldings(ctx, symbol)
		if err == nil {
			return h, nil
		}
		zap.L().Warn("⚠️ Redis读取持仓失败，使用内存副本", zap.String("symbol", symbol), zap.Error(err))
	}

	sm.mutex.RLock()
	h := sm.holdings[symbol]
	sm.mutex.RUnlock()
	return cloneHoldings(h), nil
}

func (sm *StateManager) redisHoldings(ctx context.Context, symbol string) (types.Holdings, error) {
	fields, err := sm.redisClient.HGetAll(ctx, holdingsKeyPrefix+symbol).Result()
	if err != nil {
		return types.Holdings{}, fmt.Errorf("读取持仓失败 %s: %w", symbol, err)
	}

	var h types.Holdings
	if len(fields) > 0 {
		if h, err = decodeHoldings(fields); err != nil {
			return types.Holdings{}, fmt.Errorf("解析持仓失败 %s: %w", symbol, err)
		}
	}

	sm.mutex.Lock()
	if len(fields) > 0 {
		sm.holdings[symbol] = h
	} else {
		delete(sm.holdings, symbol)
	}
	sm.mutex.Unlock()
	return cloneHoldings(h), nil
}

// SetHoldings 写入持仓快照
func (sm *StateManager) SetHoldings(ctx context.Context, symbol string, h types.Holdings) error {
	sm.mutex.Lock()
	sm.holdings[symbol] = cloneHoldings(h)
	sm.mutex.Unlock()

	if !sm.useRedis {
		return nil
	}

	fields, err := encodeHoldings(h)
	if err != nil {
		return err
	}
	// 整体替换，避免残留上一次的 meta
	key := holdingsKeyPrefix + symbol
	pipe := sm.redisClient.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, fields)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("Redis存储持仓失败 %s: %w", symbol, err)
	}
	return nil
}

// StoreLatestSignal 缓存最新信号，返回上一次的信号（没有则为空）
func (sm *StateManager) StoreLatestSignal(ctx context.Context, symbol string, signal types.Signal, tradeDate time.Time) (types.Signal, error) {
	prev, _, err := sm.LatestSignal(ctx, symbol)
	if err != nil {
		zap.L().Warn("⚠️ 读取上次信号失败", zap.String("symbol", symbol), zap.Error(err))
	}

	latest := LatestSignal{Signal: signal, TradeDate: tradeDate, UpdatedAt: time.Now()}
	sm.mutex.Lock()
	sm.signals[symbol] = latest
	sm.mutex.Unlock()

	if !sm.useRedis {
		return prev.Signal, nil
	}

	key := signalKeyPrefix + symbol
	pipe := sm.redisClient.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"signal":     string(signal),
		"trade_date": tradeDate.Format(dateLayout),
		"updated_at": latest.UpdatedAt.Unix(),
	})
	if sm.signalTTL > 0 {
		pipe.Expire(ctx, key, sm.signalTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return prev.Signal, fmt.Errorf("Redis存储信号失败 %s: %w", symbol, err)
	}
	return prev.Signal, nil
}

// LatestSignal 读取最新信号，启用 Redis 时以 Redis 为准
func (sm *StateManager) LatestSignal(ctx context.Context, symbol string) (LatestSignal, bool, error) {
	if !sm.useRedis {
		sm.mutex.RLock()
		latest, ok := sm.signals[symbol]
		sm.mutex.RUnlock()
		return latest, ok, nil
	}

	fields, err := sm.redisClient.HGetAll(ctx, signalKeyPrefix+symbol).Result()
	if err != nil {
		sm.mutex.RLock()
		latest, ok := sm.signals[symbol]
		sm.mutex.RUnlock()
		return latest, ok, fmt.Errorf("读取最新信号失败 %s: %w", symbol, err)
	}
	if len(fields) == 0 {
		// 已过期或从未写入
		sm.mutex.Lock()
		delete(sm.signals, symbol)
		sm.mutex.Unlock()
		return LatestSignal{}, false, nil
	}

	latest, err := decodeSignal(fields)
	if err != nil {
		return LatestSignal{}, false, err
	}

	sm.mutex.Lock()
	sm.signals[symbol] = latest
	sm.mutex.Unlock()
	return latest, true, nil
}

// Stats 获取存储统计信息
func (sm *StateManager) Stats(ctx context.Context) map[string]interface{} {
	sm.mutex.RLock()
	stats := map[string]interface{}{
		"redis_enabled":   sm.useRedis,
		"memory_holdings": len(sm.holdings),
		"memory_signals":  len(sm.signals),
	}
	sm.mutex.RUnlock()

	if sm.useRedis {
		keys, err := sm.redisClient.Keys(ctx, signalKeyPrefix+"*").Result()
		if err == nil {
			stats["redis_signal_keys"] = len(keys)
		} else {
			stats["redis_error"] = err.Error()
		}
	}

	return stats
}

// RedisEnabled 是否使用 Redis 持久化
func (sm *StateManager) RedisEnabled() bool {
	return sm.useRedis
}

// Close 关闭Redis连接
func (sm *StateManager) Close() error {
	if sm.redisClient == nil {
		return nil
	}
	return sm.redisClient.Close()
}

func cloneHoldings(h types.Holdings) types.Holdings {
	if h.Meta != nil {
		meta := make(map[string]string, len(h.Meta))
		for k, v := range h.Meta {
			meta[k] = v
		}
		h.Meta = meta
	}
	return h
}

func encodeHoldings(h types.Holdings) (map[string]interface{}, error) {
	fields := map[string]interface{}{
		"held":          strconv.FormatBool(h.Held),
		"quantity":      strconv.FormatFloat(h.Quantity, 'f', -1, 64),
		"average_price": strconv.FormatFloat(h.AveragePrice, 'f', -1, 64),
	}
	if len(h.Meta) > 0 {
		meta, err := json.Marshal(h.Meta)
		if err != nil {
			return nil, fmt.Errorf("序列化持仓元数据失败: %w", err)
		}
		fields["meta"] = string(meta)
	}
	return fields, nil
}

func decodeHoldings(fields map[string]string) (types.Holdings, error) {
	var h types.Holdings
	var err error
	if v, ok := fields["held"]; ok {
		if h.Held, err = strconv.ParseBool(v); err != nil {
			return h, err
		}
	}
	if v, ok := fields["quantity"]; ok {
		if h.Quantity, err = strconv.ParseFloat(v, 64); err != nil {
			return h, err
		}
	}
	if v, ok := fields["average_price"]; ok {
		if h.AveragePrice, err = strconv.ParseFloat(v, 64); err != nil {
			return h, err
		}
	}
	if v, ok := fields["meta"]; ok && v != "" {
		if err := json.Unmarshal([]byte(v), &h.Meta); err != nil {
			return h, err
		}
	}
	return h, nil
}

func decodeSignal(fields map[string]string) (LatestSignal, error) {
	latest := LatestSignal{Signal: types.Signal(strings.ToUpper(fields["signal"]))}
	if !latest.Signal.Valid() {
		return LatestSignal{}, errors.New("无效的缓存信号: " + fields["signal"])
	}
	if v := fields["trade_date"]; v != "" {
		date, err := time.Parse(dateLayout, v)
		if err != nil {
			return LatestSignal{}, err
		}
		latest.TradeDate = date
	}
	if v := fields["updated_at"]; v != "" {
		sec, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return LatestSignal{}, err
		}
		latest.UpdatedAt = time.Unix(sec, 0)
	}
	return latest, nil
}
