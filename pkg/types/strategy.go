package types

import (
	"errors"
	"fmt"
)

const (
	VariantStrict  = "strict"
	VariantRelaxed = "relaxed"
)

// StrategyConfig 策略配置总入口
type StrategyConfig struct {
	Symbols  []string       `mapstructure:"symbols"`
	Workers  int            `mapstructure:"workers"` // 并发评估 worker 数
	History  int            `mapstructure:"history"` // 每次加载的历史交易日数量
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Rules    RuleConfig     `mapstructure:"rules"`
}

// ScheduleConfig 定时评估配置
type ScheduleConfig struct {
	Cron       string `mapstructure:"cron"`         // 含秒字段，如 "0 30 16 * * 1-5"
	RunOnStart bool   `mapstructure:"run_on_start"` // 启动时立即评估一次
}

// RuleConfig 信号规则配置，严格/宽松两种规则集只是两组参数
type RuleConfig struct {
	Variant string `mapstructure:"variant"` // strict / relaxed，仅用于日志和审计

	// 趋势对齐（严格模式，仅 BUY）
	TrendAlignment  bool           `mapstructure:"trend_alignment"`
	TrendBandAnchor IndicatorField `mapstructure:"trend_band_anchor"` // sma_slow / sma_fast
	BandLower       float64        `mapstructure:"band_lower"`        // 0.01 → close ≥ anchor*1.01
	BandUpper       float64        `mapstructure:"band_upper"`        // 0.08 → close ≤ anchor*1.08

	// 短期动量排列缓冲
	BuyBuffer  float64 `mapstructure:"buy_buffer"`
	SellBuffer float64 `mapstructure:"sell_buffer"`

	// RSI 阈值（严格大于 / 严格小于）
	BuyRSI  float64 `mapstructure:"buy_rsi"`
	SellRSI float64 `mapstructure:"sell_rsi"`

	// MACD 柱状图加速（仅 BUY）
	HistAcceleration bool `mapstructure:"hist_acceleration"`

	// 成交量确认
	VolumeMultiplier float64        `mapstructure:"volume_multiplier"`
	VolumeBaseline   IndicatorField `mapstructure:"volume_baseline"` // volume_sma_20 / avg_volume

	// 近期 MACD 金叉（严格模式，仅 BUY）
	RecentCrossover bool `mapstructure:"recent_crossover"`
	LookbackDays    int  `mapstructure:"lookback_days"`
}

// StrictRuleConfig 多条件严格规则集
func StrictRuleConfig() RuleConfig {
	return RuleConfig{
		Variant:          VariantStrict,
		TrendAlignment:   true,
		TrendBandAnchor:  FieldSMASlow,
		BandLower:        0.01,
		BandUpper:        0.08,
		BuyBuffer:        0.02,
		SellBuffer:       0.01,
		BuyRSI:           60,
		SellRSI:          45,
		HistAcceleration: true,
		VolumeMultiplier: 1.5,
		VolumeBaseline:   FieldVolumeSMA20,
		RecentCrossover:  true,
		LookbackDays:     5,
	}
}

// RelaxedRuleConfig 简化规则集：去掉趋势对齐和金叉过滤
func RelaxedRuleConfig() RuleConfig {
	return RuleConfig{
		Variant:          VariantRelaxed,
		TrendAlignment:   false,
		TrendBandAnchor:  FieldSMASlow,
		BandLower:        0.01,
		BandUpper:        0.08,
		BuyBuffer:        0.01,
		SellBuffer:       0.01,
		BuyRSI:           55,
		SellRSI:          45,
		HistAcceleration: true,
		VolumeMultiplier: 1.5,
		VolumeBaseline:   FieldAvgVolume,
		RecentCrossover:  false,
		LookbackDays:     5,
	}
}

// RuleConfigFor 按名称返回预设规则集
func RuleConfigFor(variant string) (RuleConfig, error) {
	switch variant {
	case VariantStrict, "":
		return StrictRuleConfig(), nil
	case VariantRelaxed:
		return RelaxedRuleConfig(), nil
	}
	return RuleConfig{}, fmt.Errorf("未知规则集: %q", variant)
}

// Validate 校验阈值组合，保证 BUY / SELL 条件互斥
func (c RuleConfig) Validate() error {
	var errs []error
	// NaN 与任何阈值比较都为 false，下面的区间校验拦不住
	for _, th := range []struct {
		name  string
		value float64
	}{
		{"buy_rsi", c.BuyRSI},
		{"sell_rsi", c.SellRSI},
		{"buy_buffer", c.BuyBuffer},
		{"sell_buffer", c.SellBuffer},
		{"band_lower", c.BandLower},
		{"band_upper", c.BandUpper},
		{"volume_multiplier", c.VolumeMultiplier},
	} {
		if !Finite(th.value) {
			errs = append(errs, fmt.Errorf("%s 必须为有限数: %v", th.name, th.value))
		}
	}
	if c.BuyRSI <= c.SellRSI {
		errs = append(errs, fmt.Errorf("buy_rsi (%.2f) 必须大于 sell_rsi (%.2f)", c.BuyRSI, c.SellRSI))
	}
	if c.BuyRSI < 0 || c.BuyRSI > 100 || c.SellRSI < 0 || c.SellRSI > 100 {
		errs = append(errs, errors.New("rsi 阈值必须在 0-100 之间"))
	}
	if c.BuyBuffer < 0 || c.BuyBuffer >= 1 {
		errs = append(errs, fmt.Errorf("buy_buffer 超出范围 [0,1): %.4f", c.BuyBuffer))
	}
	if c.SellBuffer < 0 || c.SellBuffer >= 1 {
		errs = append(errs, fmt.Errorf("sell_buffer 超出范围 [0,1): %.4f", c.SellBuffer))
	}
	if c.VolumeMultiplier <= 0 {
		errs = append(errs, fmt.Errorf("volume_multiplier 必须为正数: %.4f", c.VolumeMultiplier))
	}
	if c.VolumeBaseline != FieldVolumeSMA20 && c.VolumeBaseline != FieldAvgVolume {
		errs = append(errs, fmt.Errorf("volume_baseline 不支持: %q", c.VolumeBaseline))
	}
	if c.TrendAlignment {
		if c.TrendBandAnchor != FieldSMASlow && c.TrendBandAnchor != FieldSMAFast {
			errs = append(errs, fmt.Errorf("trend_band_anchor 不支持: %q", c.TrendBandAnchor))
		}
		if c.BandLower > c.BandUpper {
			errs = append(errs, fmt.Errorf("band_lower (%.4f) 不能大于 band_upper (%.4f)", c.BandLower, c.BandUpper))
		}
	}
	if c.RecentCrossover && c.LookbackDays < 1 {
		errs = append(errs, fmt.Errorf("lookback_days 必须 ≥ 1: %d", c.LookbackDays))
	}
	return errors.Join(errs...)
}

// RequiredHistory 评估所需的最少交易日数量
func (c RuleConfig) RequiredHistory() int {
	required := 1
	if c.HistAcceleration && required < 2 {
		required = 2
	}
	if c.RecentCrossover && c.LookbackDays > required {
		required = c.LookbackDays
	}
	return required
}

// RequiredFields 当前交易日必须有值的字段，顺序即报错优先级
func (c RuleConfig) RequiredFields() []IndicatorField {
	fields := []IndicatorField{
		FieldClose, FieldVolume,
		FieldEMA9, FieldEMA21, FieldEMA50,
		FieldRSI, FieldMACDHist,
		c.VolumeBaseline,
	}
	if c.TrendAlignment {
		fields = append(fields, FieldSMASlow)
		if c.TrendBandAnchor != FieldSMASlow {
			fields = append(fields, c.TrendBandAnchor)
		}
		fields = append(fields, FieldEMA20, FieldEMA100, FieldEMA200)
	}
	if c.RecentCrossover {
		fields = append(fields, FieldMACD, FieldMACDSignal)
	}
	return fields
}
