package database

import (
	"math"
	"time"

	"auto-trader/pkg/types"
)

// IndicatorBar 日线指标模型，NULL 表示指标尚在预热期
type IndicatorBar struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Symbol      string    `gorm:"type:varchar(32);not null;uniqueIndex:uk_bar_symbol_date" json:"symbol"`
	TradeDate   time.Time `gorm:"type:date;not null;uniqueIndex:uk_bar_symbol_date" json:"trade_date"`
	Close       float64   `gorm:"type:decimal(20,6);not null" json:"close"`
	Volume      float64   `gorm:"type:decimal(24,4);not null" json:"volume"`
	SMAFast     *float64  `gorm:"column:sma_fast;type:decimal(20,6)" json:"sma_fast"`
	SMASlow     *float64  `gorm:"column:sma_slow;type:decimal(20,6)" json:"sma_slow"`
	EMA9        *float64  `gorm:"column:ema_9;type:decimal(20,6)" json:"ema_9"`
	EMA20       *float64  `gorm:"column:ema_20;type:decimal(20,6)" json:"ema_20"`
	EMA21       *float64  `gorm:"column:ema_21;type:decimal(20,6)" json:"ema_21"`
	EMA50       *float64  `gorm:"column:ema_50;type:decimal(20,6)" json:"ema_50"`
	EMA100      *float64  `gorm:"column:ema_100;type:decimal(20,6)" json:"ema_100"`
	EMA200      *float64  `gorm:"column:ema_200;type:decimal(20,6)" json:"ema_200"`
	RSI         *float64  `gorm:"column:rsi;type:decimal(10,4)" json:"rsi"`
	MACD        *float64  `gorm:"column:macd;type:decimal(20,6)" json:"macd"`
	MACDSignal  *float64  `gorm:"column:macd_signal;type:decimal(20,6)" json:"macd_signal"`
	MACDHist    *float64  `gorm:"column:macd_hist;type:decimal(20,6)" json:"macd_hist"`
	VolumeSMA20 *float64  `gorm:"column:volume_sma_20;type:decimal(24,4)" json:"volume_sma_20"`
	AvgVolume   *float64  `gorm:"column:avg_volume;type:decimal(24,4)" json:"avg_volume"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SignalDecision 每次评估的审计记录，评估失败时 Signal 为空并记录错误类型
type SignalDecision struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Symbol       string     `gorm:"type:varchar(32);not null;index:idx_symbol_date" json:"symbol"`
	TradeDate    *time.Time `gorm:"type:date;index:idx_symbol_date" json:"trade_date"` // 序列为空时为 NULL
	Signal       string     `gorm:"type:varchar(8)" json:"signal"`
	Variant      string     `gorm:"type:varchar(16);not null" json:"variant"`
	Close        *float64   `gorm:"type:decimal(20,6)" json:"close"`
	RSI          *float64   `gorm:"column:rsi;type:decimal(10,4)" json:"rsi"`
	MACDHist     *float64   `gorm:"column:macd_hist;type:decimal(20,6)" json:"macd_hist"`
	VolumeRatio  *float64   `gorm:"type:decimal(10,4)" json:"volume_ratio"`
	Held         bool       `gorm:"default:false" json:"held"`
	ErrorKind    string     `gorm:"type:varchar(32)" json:"error_kind"`
	ErrorMessage string     `gorm:"type:varchar(255)" json:"error_message"`
	CreatedAt    time.Time  `json:"created_at"`
}

// StrategyPerformance 每日信号统计
type StrategyPerformance struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	Symbol           string    `gorm:"type:varchar(32);not null;uniqueIndex:uk_perf_symbol_date" json:"symbol"`
	Date             time.Time `gorm:"type:date;not null;uniqueIndex:uk_perf_symbol_date" json:"date"`
	TotalEvaluations int       `gorm:"default:0" json:"total_evaluations"`
	BuySignals       int       `gorm:"default:0" json:"buy_signals"`
	SellSignals      int       `gorm:"default:0" json:"sell_signals"`
	HoldSignals      int       `gorm:"default:0" json:"hold_signals"`
	Skipped          int       `gorm:"default:0" json:"skipped"` // 数据不足 / 指标缺失
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// nullable 非有限值存为 NULL
func nullable(v float64) *float64 {
	if !types.Finite(v) {
		return nil
	}
	return &v
}

// valueOf NULL 读回为 NaN
func valueOf(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

// dateOf 截断为 UTC 日期
func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NewIndicatorBar 指标快照转数据库模型
func NewIndicatorBar(symbol string, rec types.IndicatorRecord) IndicatorBar {
	return IndicatorBar{
		Symbol:      symbol,
		TradeDate:   dateOf(rec.Date),
		Close:       rec.Close,
		Volume:      rec.Volume,
		SMAFast:     nullable(rec.SMAFast),
		SMASlow:     nullable(rec.SMASlow),
		EMA9:        nullable(rec.EMA9),
		EMA20:       nullable(rec.EMA20),
		EMA21:       nullable(rec.EMA21),
		EMA50:       nullable(rec.EMA50),
		EMA100:      nullable(rec.EMA100),
		EMA200:      nullable(rec.EMA200),
		RSI:         nullable(rec.RSI),
		MACD:        nullable(rec.MACD),
		MACDSignal:  nullable(rec.MACDSignal),
		MACDHist:    nullable(rec.MACDHist),
		VolumeSMA20: nullable(rec.VolumeSMA20),
		AvgVolume:   nullable(rec.AvgVolume),
	}
}

// Record 数据库模型转指标快照
func (b *IndicatorBar) Record() types.IndicatorRecord {
	return types.IndicatorRecord{
		Date:        b.TradeDate,
		Close:       b.Close,
		Volume:      b.Volume,
		SMAFast:     valueOf(b.SMAFast),
		SMASlow:     valueOf(b.SMASlow),
		EMA9:        valueOf(b.EMA9),
		EMA20:       valueOf(b.EMA20),
		EMA21:       valueOf(b.EMA21),
		EMA50:       valueOf(b.EMA50),
		EMA100:      valueOf(b.EMA100),
		EMA200:      valueOf(b.EMA200),
		RSI:         valueOf(b.RSI),
		MACD:        valueOf(b.MACD),
		MACDSignal:  valueOf(b.MACDSignal),
		MACDHist:    valueOf(b.MACDHist),
		VolumeSMA20: valueOf(b.VolumeSMA20),
		AvgVolume:   valueOf(b.AvgVolume),
	}
}

// seriesFromBars 按交易日倒序查询的结果转为升序序列
func seriesFromBars(bars []IndicatorBar) types.IndicatorSeries {
	series := make(types.IndicatorSeries, len(bars))
	for i := range bars {
		series[len(bars)-1-i] = bars[i].Record()
	}
	return series
}

// NewSignalDecision 构造审计记录，err 非空时只记录错误
func NewSignalDecision(event *types.SignalEvent, errKind string, err error) *SignalDecision {
	d := &SignalDecision{
		Symbol:    event.Symbol,
		Variant:   event.Variant,
		Held:      event.Held,
		CreatedAt: event.EvaluatedAt,
	}
	if !event.TradeDate.IsZero() {
		date := dateOf(event.TradeDate)
		d.TradeDate = &date
	}
	if err != nil {
		d.ErrorKind = errKind
		msg := []rune(err.Error())
		if len(msg) > 255 {
			msg = msg[:255]
		}
		d.ErrorMessage = string(msg)
		return d
	}
	d.Signal = event.Signal.String()
	d.Close = nullable(event.Close)
	d.RSI = nullable(event.RSI)
	d.MACDHist = nullable(event.MACDHist)
	d.VolumeRatio = nullable(event.VolumeRatio)
	return d
}
