package signals

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecentCrossover(t *testing.T) {
	tests := []struct {
		name     string
		n        int
		crossIdx int
		lookback int
		want     bool
		age      int
	}{
		{"today", 10, 9, 5, true, 0},
		{"oldest day in window", 10, 5, 5, true, 4},
		{"outside window", 10, 4, 5, false, -1},
		{"no crossover", 10, -1, 5, false, -1},
		{"series start has no prior day", 3, 0, 5, false, -1},
		{"lookback longer than series", 3, 1, 5, true, 1},
		{"zero lookback", 10, 9, 0, false, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			series := bullishSeries(tt.n, tt.crossIdx)
			assert.Equal(t, tt.want, RecentCrossover(series, tt.lookback))
			assert.Equal(t, tt.age, LastCrossoverAge(series, tt.lookback))
		})
	}
}

func TestRecentCrossover_TouchThenCross(t *testing.T) {
	// 前一日 MACD 恰好等于信号线也算上穿
	series := bullishSeries(6, -1)
	series[4].MACD = 0.2
	series[5].MACD = 0.21
	assert.True(t, RecentCrossover(series, 1))

	// 当日持平不算
	series[5].MACD = 0.2
	assert.False(t, RecentCrossover(series, 1))
}

func TestRecentCrossover_IgnoresDeathCross(t *testing.T) {
	series := bullishSeries(6, -1)
	for i := range series {
		series[i].MACD = 0.5
	}
	series[5].MACD = 0.1
	assert.False(t, RecentCrossover(series, 5))
}
