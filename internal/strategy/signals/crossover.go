package signals

import "auto-trader/pkg/types"

// crossedAbove 第 i 天 MACD 是否上穿信号线（前一日 ≤，当日 >）
func crossedAbove(series types.IndicatorSeries, i int) bool {
	if i < 1 || i >= len(series) {
		return false
	}
	prev, curr := series[i-1], series[i]
	return prev.MACD <= prev.MACDSignal && curr.MACD > curr.MACDSignal
}

// RecentCrossover 在最近 lookback 个交易日内向后扫描 MACD 金叉
//
// 窗口最早的一天只有在存在前一日数据时才可能计为金叉，不会越过序列起点。
func RecentCrossover(series types.IndicatorSeries, lookback int) bool {
	if lookback <= 0 {
		return false
	}
	stop := len(series) - lookback
	if stop < 0 {
		stop = 0
	}
	for i := len(series) - 1; i >= stop; i-- {
		if crossedAbove(series, i) {
			return true
		}
	}
	return false
}

// LastCrossoverAge 最近一次金叉距当前日的天数，窗口内未找到返回 -1
func LastCrossoverAge(series types.IndicatorSeries, lookback int) int {
	stop := len(series) - lookback
	if stop < 0 {
		stop = 0
	}
	for i := len(series) - 1; i >= stop; i-- {
		if crossedAbove(series, i) {
			return len(series) - 1 - i
		}
	}
	return -1
}
