package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"auto-trader/pkg/types"
)

// Manager 数据库管理器
type Manager struct {
	db *gorm.DB
}

// NewManager 创建 MySQL 数据库管理器
func NewManager(config types.MySQLConfig) (*Manager, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		config.Username,
		config.Password,
		config.Host,
		config.Port,
		config.Database,
	)

	// 配置GORM日志
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent), // 生产环境使用Silent
	}

	db, err := gorm.Open(mysql.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("连接MySQL失败: %w", err)
	}

	// 配置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取数据库实例失败: %w", err)
	}

	sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	manager, err := NewManagerWithDB(db)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	zap.L().Info("✅ MySQL数据库连接成功",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.String("database", config.Database))

	return manager, nil
}

// NewManagerWithDB 基于已打开的连接创建管理器并迁移表结构
func NewManagerWithDB(db *gorm.DB) (*Manager, error) {
	manager := &Manager{db: db}

	// 自动迁移表结构
	if err := manager.AutoMigrate(); err != nil {
		return nil, fmt.Errorf("数据库迁移失败: %w", err)
	}
	return manager, nil
}

// AutoMigrate 自动迁移表结构
func (m *Manager) AutoMigrate() error {
	return m.db.AutoMigrate(
		&IndicatorBar{},
		&SignalDecision{},
		&StrategyPerformance{},
	)
}

// LoadSeries 读取最近 limit 个交易日的指标，按交易日升序返回
func (m *Manager) LoadSeries(ctx context.Context, symbol string, limit int) (types.IndicatorSeries, error) {
	var bars []IndicatorBar
	err := m.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("trade_date DESC").
		Limit(limit).
		Find(&bars).Error
	if err != nil {
		return nil, fmt.Errorf("读取指标序列失败 %s: %w", symbol, err)
	}
	return seriesFromBars(bars), nil
}

// SaveIndicatorBars 批量写入指标，(symbol, trade_date) 冲突时覆盖
func (m *Manager) SaveIndicatorBars(ctx context.Context, symbol string, series types.IndicatorSeries) error {
	if len(series) == 0 {
		return nil
	}

	bars := make([]IndicatorBar, 0, len(series))
	for _, rec := range series {
		bars = append(bars, NewIndicatorBar(symbol, rec))
	}

	tx := m.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}

	// 分批处理避免单个事务过大
	batchSize := 100
	for i := 0; i < len(bars); i += batchSize {
		end := i + batchSize
		if end > len(bars) {
			end = len(bars)
		}

		batch := bars[i:end]
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}, {Name: "trade_date"}},
			UpdateAll: true,
		}).CreateInBatches(batch, len(batch)).Error
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("批量写入指标失败: %w", err)
		}
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("提交指标写入事务失败: %w", err)
	}

	zap.L().Debug("✅ 批量保存指标完成",
		zap.String("symbol", symbol),
		zap.Int("count", len(bars)))

	return nil
}

// SaveDecision 保存评估审计记录
func (m *Manager) SaveDecision(ctx context.Context, decision *SignalDecision) error {
	if decision.CreatedAt.IsZero() {
		decision.CreatedAt = time.Now()
	}
	return m.db.WithContext(ctx).Create(decision).Error
}

// UpdateStrategyPerformance 累加当日信号统计，signal 为空表示本次评估被跳过
func (m *Manager) UpdateStrategyPerformance(ctx context.Context, symbol string, date time.Time, signal types.Signal) error {
	day := dateOf(date)
	db := m.db.WithContext(ctx)

	var performance StrategyPerformance
	result := db.Where("symbol = ? AND date = ?", symbol, day).First(&performance)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		// 创建新记录
		performance = StrategyPerformance{Symbol: symbol, Date: day}
		applySignal(&performance, signal)
		return db.Create(&performance).Error
	} else if result.Error != nil {
		return result.Error
	}

	// 更新现有记录
	applySignal(&performance, signal)
	updates := map[string]interface{}{
		"total_evaluations": performance.TotalEvaluations,
		"buy_signals":       performance.BuySignals,
		"sell_signals":      performance.SellSignals,
		"hold_signals":      performance.HoldSignals,
		"skipped":           performance.Skipped,
	}
	return db.Model(&performance).Where("id = ?", performance.ID).Updates(updates).Error
}

// applySignal 计数加一
func applySignal(p *StrategyPerformance, signal types.Signal) {
	p.TotalEvaluations++
	switch signal {
	case types.SignalBuy:
		p.BuySignals++
	case types.SignalSell:
		p.SellSignals++
	case types.SignalHold:
		p.HoldSignals++
	default:
		p.Skipped++
	}
}

// GetDecisions 获取最近的评估记录
func (m *Manager) GetDecisions(ctx context.Context, symbol string, limit int) ([]SignalDecision, error) {
	var decisions []SignalDecision
	err := m.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("created_at DESC").
		Limit(limit).
		Find(&decisions).Error

	return decisions, err
}

// GetStrategyPerformance 获取策略性能数据
func (m *Manager) GetStrategyPerformance(ctx context.Context, symbol string, days int) ([]StrategyPerformance, error) {
	var performances []StrategyPerformance
	startDate := dateOf(time.Now().AddDate(0, 0, -days))

	err := m.db.WithContext(ctx).
		Where("symbol = ? AND date >= ?", symbol, startDate).
		Order("date DESC").
		Find(&performances).Error

	return performances, err
}

// Close 关闭数据库连接
func (m *Manager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health 检查数据库连接健康状态
func (m *Manager) Health(ctx context.Context) error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
