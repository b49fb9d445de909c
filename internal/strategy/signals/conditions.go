package signals

import "auto-trader/pkg/types"

// trendAligned 收盘价在慢速均线之上且未过度偏离，同时 EMA 多头排列
func trendAligned(rec types.IndicatorRecord, cfg types.RuleConfig) bool {
	anchor := cfg.TrendBandAnchor.Of(rec)
	inBand := rec.Close >= anchor*(1+cfg.BandLower) && rec.Close <= anchor*(1+cfg.BandUpper)
	return rec.Close > rec.SMASlow && inBand && emaLadder(rec)
}

// emaLadder close > EMA20 > EMA50 > EMA100 > EMA200
func emaLadder(rec types.IndicatorRecord) bool {
	return rec.Close > rec.EMA20 &&
		rec.EMA20 > rec.EMA50 &&
		rec.EMA50 > rec.EMA100 &&
		rec.EMA100 > rec.EMA200
}

// momentumUp EMA9 > EMA21*(1+b) > EMA50*(1+b)
func momentumUp(rec types.IndicatorRecord, buffer float64) bool {
	k := 1 + buffer
	return rec.EMA9 > rec.EMA21*k && rec.EMA21*k > rec.EMA50*k
}

// momentumDown EMA9 < EMA21*(1-b) < EMA50*(1-b)
func momentumDown(rec types.IndicatorRecord, buffer float64) bool {
	k := 1 - buffer
	return rec.EMA9 < rec.EMA21*k && rec.EMA21*k < rec.EMA50*k
}

// histAccelerating 柱状图为正且较前一日增大
func histAccelerating(curr, prev types.IndicatorRecord) bool {
	return curr.MACDHist > 0 && curr.MACDHist > prev.MACDHist
}

// volumeConfirmed 成交量超过基准的 multiplier 倍
func volumeConfirmed(rec types.IndicatorRecord, cfg types.RuleConfig) bool {
	return rec.Volume > cfg.VolumeMultiplier*cfg.VolumeBaseline.Of(rec)
}

// VolumeRatio 成交量相对基准的倍数，基准为 0 时返回 0
func VolumeRatio(rec types.IndicatorRecord, baseline types.IndicatorField) float64 {
	base := baseline.Of(rec)
	if base == 0 || !types.Finite(base) {
		return 0
	}
	return rec.Volume / base
}
