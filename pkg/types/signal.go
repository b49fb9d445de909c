package types

import "time"

// Signal 交易信号
type Signal string

const (
	SignalBuy  Signal = "BUY"
	SignalSell Signal = "SELL"
	SignalHold Signal = "HOLD"
)

// Valid 是否为合法信号
func (s Signal) Valid() bool {
	switch s {
	case SignalBuy, SignalSell, SignalHold:
		return true
	}
	return false
}

// IsActionable BUY / SELL 需要通知，HOLD 不需要
func (s Signal) IsActionable() bool {
	return s == SignalBuy || s == SignalSell
}

func (s Signal) String() string { return string(s) }

// Holdings 持仓快照，当前规则集不读取，仅透传
type Holdings struct {
	Held         bool              `json:"held"`
	Quantity     float64           `json:"quantity"`
	AveragePrice float64           `json:"average_price"`
	Meta         map[string]string `json:"meta,omitempty"`
}

// SignalEvent 一次评估产生的信号事件（通知 / 审计使用）
type SignalEvent struct {
	Symbol         string    `json:"symbol"`
	Signal         Signal    `json:"signal"`
	PreviousSignal Signal    `json:"previous_signal,omitempty"`
	Variant        string    `json:"variant"`
	TradeDate      time.Time `json:"trade_date"`
	Close          float64   `json:"close"`
	RSI            float64   `json:"rsi"`
	MACDHist       float64   `json:"macd_hist"`
	VolumeRatio    float64   `json:"volume_ratio"` // 成交量 / 基准
	Held           bool      `json:"held"`
	EvaluatedAt    time.Time `json:"evaluated_at"`
}
