package types

import (
	"math"
	"time"
)

// IndicatorRecord 单个交易日的指标快照（预计算，NaN 表示指标尚在预热期）
type IndicatorRecord struct {
	Date time.Time `json:"date"`

	// 价格
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`

	// 趋势
	SMAFast float64 `json:"sma_fast"` // SMA10(close)
	SMASlow float64 `json:"sma_slow"` // SMA20(close)
	EMA9    float64 `json:"ema_9"`
	EMA20   float64 `json:"ema_20"`
	EMA21   float64 `json:"ema_21"`
	EMA50   float64 `json:"ema_50"`
	EMA100  float64 `json:"ema_100"`
	EMA200  float64 `json:"ema_200"`

	// 动量
	RSI        float64 `json:"rsi"`
	MACD       float64 `json:"macd"`
	MACDSignal float64 `json:"macd_signal"`
	MACDHist   float64 `json:"macd_hist"`

	// 成交量基准
	VolumeSMA20 float64 `json:"volume_sma_20"`
	AvgVolume   float64 `json:"avg_volume"`
}

// IndicatorSeries 按时间升序排列的指标序列，最后一个元素是当前评估日
type IndicatorSeries []IndicatorRecord

// Len 序列长度
func (s IndicatorSeries) Len() int { return len(s) }

// Current 返回当前评估日，空序列返回 false
func (s IndicatorSeries) Current() (IndicatorRecord, bool) {
	if len(s) == 0 {
		return IndicatorRecord{}, false
	}
	return s[len(s)-1], true
}

// Back 返回距离当前日 offset 天的记录（offset=0 为当前日）
func (s IndicatorSeries) Back(offset int) (IndicatorRecord, bool) {
	idx := len(s) - 1 - offset
	if offset < 0 || idx < 0 {
		return IndicatorRecord{}, false
	}
	return s[idx], true
}

// IndicatorField 指标字段标识
type IndicatorField string

const (
	FieldClose       IndicatorField = "close"
	FieldVolume      IndicatorField = "volume"
	FieldSMAFast     IndicatorField = "sma_fast"
	FieldSMASlow     IndicatorField = "sma_slow"
	FieldEMA9        IndicatorField = "ema_9"
	FieldEMA20       IndicatorField = "ema_20"
	FieldEMA21       IndicatorField = "ema_21"
	FieldEMA50       IndicatorField = "ema_50"
	FieldEMA100      IndicatorField = "ema_100"
	FieldEMA200      IndicatorField = "ema_200"
	FieldRSI         IndicatorField = "rsi"
	FieldMACD        IndicatorField = "macd"
	FieldMACDSignal  IndicatorField = "macd_signal"
	FieldMACDHist    IndicatorField = "macd_hist"
	FieldVolumeSMA20 IndicatorField = "volume_sma_20"
	FieldAvgVolume   IndicatorField = "avg_volume"
)

// Of 读取记录中对应字段的值，未知字段返回 NaN
func (f IndicatorField) Of(rec IndicatorRecord) float64 {
	switch f {
	case FieldClose:
		return rec.Close
	case FieldVolume:
		return rec.Volume
	case FieldSMAFast:
		return rec.SMAFast
	case FieldSMASlow:
		return rec.SMASlow
	case FieldEMA9:
		return rec.EMA9
	case FieldEMA20:
		return rec.EMA20
	case FieldEMA21:
		return rec.EMA21
	case FieldEMA50:
		return rec.EMA50
	case FieldEMA100:
		return rec.EMA100
	case FieldEMA200:
		return rec.EMA200
	case FieldRSI:
		return rec.RSI
	case FieldMACD:
		return rec.MACD
	case FieldMACDSignal:
		return rec.MACDSignal
	case FieldMACDHist:
		return rec.MACDHist
	case FieldVolumeSMA20:
		return rec.VolumeSMA20
	case FieldAvgVolume:
		return rec.AvgVolume
	}
	return math.NaN()
}

// Finite 字段值是否为有限数
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// IndicatorFields 全部指标字段，顺序与 IndicatorRecord 一致
var IndicatorFields = []IndicatorField{
	FieldClose, FieldVolume,
	FieldSMAFast, FieldSMASlow,
	FieldEMA9, FieldEMA20, FieldEMA21, FieldEMA50, FieldEMA100, FieldEMA200,
	FieldRSI, FieldMACD, FieldMACDSignal, FieldMACDHist,
	FieldVolumeSMA20, FieldAvgVolume,
}

// Set 写入记录中对应字段，未知字段返回 false
func (f IndicatorField) Set(rec *IndicatorRecord, v float64) bool {
	switch f {
	case FieldClose:
		rec.Close = v
	case FieldVolume:
		rec.Volume = v
	case FieldSMAFast:
		rec.SMAFast = v
	case FieldSMASlow:
		rec.SMASlow = v
	case FieldEMA9:
		rec.EMA9 = v
	case FieldEMA20:
		rec.EMA20 = v
	case FieldEMA21:
		rec.EMA21 = v
	case FieldEMA50:
		rec.EMA50 = v
	case FieldEMA100:
		rec.EMA100 = v
	case FieldEMA200:
		rec.EMA200 = v
	case FieldRSI:
		rec.RSI = v
	case FieldMACD:
		rec.MACD = v
	case FieldMACDSignal:
		rec.MACDSignal = v
	case FieldMACDHist:
		rec.MACDHist = v
	case FieldVolumeSMA20:
		rec.VolumeSMA20 = v
	case FieldAvgVolume:
		rec.AvgVolume = v
	default:
		return false
	}
	return true
}
