package signals

import (
	"fmt"

	"auto-trader/pkg/types"
)

// Diagnosis 各子条件的评估结果
type Diagnosis struct {
	Signal types.Signal `json:"signal"`

	// BUY
	TrendAligned    bool `json:"trend_aligned"`
	MomentumUp      bool `json:"momentum_up"`
	RSIAboveBuy     bool `json:"rsi_above_buy"`
	HistRising      bool `json:"hist_rising"`
	RecentCrossover bool `json:"recent_crossover"`

	// SELL
	MomentumDown bool `json:"momentum_down"`
	RSIBelowSell bool `json:"rsi_below_sell"`
	HistNegative bool `json:"hist_negative"`

	// 共用
	VolumeConfirmed bool    `json:"volume_confirmed"`
	VolumeRatio     float64 `json:"volume_ratio"`
	CrossoverAge    int     `json:"crossover_age"` // -1 表示窗口内无金叉
}

// BuyConditions BUY 条件是否全部满足（未启用的过滤器视为满足）
func (d *Diagnosis) BuyConditions(cfg types.RuleConfig) bool {
	return d.MomentumUp &&
		d.RSIAboveBuy &&
		d.HistRising &&
		d.VolumeConfirmed &&
		(!cfg.TrendAlignment || d.TrendAligned) &&
		(!cfg.RecentCrossover || d.RecentCrossover)
}

// SellConditions SELL 条件是否全部满足
func (d *Diagnosis) SellConditions() bool {
	return d.MomentumDown && d.RSIBelowSell && d.HistNegative && d.VolumeConfirmed
}

// Evaluate 对当前交易日给出 BUY / SELL / HOLD
//
// 纯函数：不修改入参，不持有状态，可并发调用。holdings 当前规则集不读取。
func Evaluate(series types.IndicatorSeries, holdings types.Holdings, cfg types.RuleConfig) (types.Signal, error) {
	d, err := Diagnose(series, cfg)
	if err != nil {
		return "", err
	}
	return d.Signal, nil
}

// Diagnose 评估并返回每个子条件的结果
func Diagnose(series types.IndicatorSeries, cfg types.RuleConfig) (*Diagnosis, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := checkInputs(series, cfg); err != nil {
		return nil, err
	}

	curr, _ := series.Current()
	d := &Diagnosis{
		Signal:       types.SignalHold,
		CrossoverAge: -1,
	}

	// BUY 条件组
	if cfg.TrendAlignment {
		d.TrendAligned = trendAligned(curr, cfg)
	}
	d.MomentumUp = momentumUp(curr, cfg.BuyBuffer)
	d.RSIAboveBuy = curr.RSI > cfg.BuyRSI
	if cfg.HistAcceleration {
		prev, _ := series.Back(1)
		d.HistRising = histAccelerating(curr, prev)
	} else {
		d.HistRising = curr.MACDHist > 0
	}
	if cfg.RecentCrossover {
		d.CrossoverAge = LastCrossoverAge(series, cfg.LookbackDays)
		d.RecentCrossover = d.CrossoverAge >= 0
	}

	// SELL 条件组
	d.MomentumDown = momentumDown(curr, cfg.SellBuffer)
	d.RSIBelowSell = curr.RSI < cfg.SellRSI
	d.HistNegative = curr.MACDHist < 0

	d.VolumeConfirmed = volumeConfirmed(curr, cfg)
	d.VolumeRatio = VolumeRatio(curr, cfg.VolumeBaseline)

	switch {
	case d.BuyConditions(cfg):
		d.Signal = types.SignalBuy
	case d.SellConditions():
		d.Signal = types.SignalSell
	}
	return d, nil
}

// checkInputs 校验序列长度和必需字段
func checkInputs(series types.IndicatorSeries, cfg types.RuleConfig) error {
	required := cfg.RequiredHistory()
	if len(series) == 0 || len(series) < required {
		return &InsufficientHistoryError{Required: required, Available: len(series)}
	}

	curr, _ := series.Current()
	for _, f := range cfg.RequiredFields() {
		if !types.Finite(f.Of(curr)) {
			return &MissingIndicatorError{Field: f}
		}
	}
	if cfg.HistAcceleration {
		prev, _ := series.Back(1)
		if !types.Finite(prev.MACDHist) {
			return &MissingIndicatorError{Field: types.FieldMACDHist, Offset: 1}
		}
	}
	return nil
}

// RuleEvaluator 绑定一组已校验规则的评估器
type RuleEvaluator struct {
	config types.RuleConfig
}

// NewRuleEvaluator 创建评估器，配置非法时返回错误
func NewRuleEvaluator(config types.RuleConfig) (*RuleEvaluator, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return &RuleEvaluator{config: config}, nil
}

// Config 返回规则配置副本
func (re *RuleEvaluator) Config() types.RuleConfig { return re.config }

// Evaluate 见包级 Evaluate
func (re *RuleEvaluator) Evaluate(series types.IndicatorSeries, holdings types.Holdings) (types.Signal, error) {
	return Evaluate(series, holdings, re.config)
}

// Diagnose 见包级 Diagnose
func (re *RuleEvaluator) Diagnose(series types.IndicatorSeries) (*Diagnosis, error) {
	return Diagnose(series, re.config)
}
