package signals

import (
	"time"

	"auto-trader/pkg/types"
)

var baseDate = time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)

// bullishSeries 30 个交易日，当前日满足严格规则集的全部 BUY 条件；
// crossIdx 为 MACD 上穿信号线的下标（<0 表示无金叉）
func bullishSeries(n, crossIdx int) types.IndicatorSeries {
	series := make(types.IndicatorSeries, n)
	for i := range series {
		macd := 0.1
		if crossIdx >= 0 && i >= crossIdx {
			macd = 0.5
		}
		series[i] = types.IndicatorRecord{
			Date:        baseDate.AddDate(0, 0, i),
			Close:       110,
			Volume:      200,
			SMAFast:     105,
			SMASlow:     104,
			EMA9:        51,
			EMA20:       100,
			EMA21:       49.5,
			EMA50:       48,
			EMA100:      40,
			EMA200:      30,
			RSI:         65,
			MACD:        macd,
			MACDSignal:  0.2,
			MACDHist:    0.3,
			VolumeSMA20: 100,
			AvgVolume:   100,
		}
	}
	series[n-1].MACDHist = 0.5
	return series
}

// bearishSeries 当前日满足全部 SELL 条件
func bearishSeries(n int) types.IndicatorSeries {
	series := bullishSeries(n, -1)
	last := &series[n-1]
	last.EMA9 = 40
	last.EMA21 = 50
	last.EMA50 = 55
	last.RSI = 30
	last.MACDHist = -0.2
	return series
}

// withCurrent 复制序列并修改当前日
func withCurrent(series types.IndicatorSeries, mutate func(rec *types.IndicatorRecord)) types.IndicatorSeries {
	out := append(types.IndicatorSeries(nil), series...)
	mutate(&out[len(out)-1])
	return out
}
