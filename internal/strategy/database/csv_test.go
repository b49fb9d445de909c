package database

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auto-trader/pkg/types"
)

func TestReadIndicatorCSV(t *testing.T) {
	input := `date,close,volume,sma_fast,sma_slow,rsi,macd_hist,volume_sma_20
2024-03-05,102.5,2100,101,100,61.2,0.4,1500
2024-03-04,101,1800,100.5,99.8,,0.3,1450
`
	series, err := ReadIndicatorCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, series, 2)

	first, last := series[0], series[1]
	assert.Equal(t, time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC), first.Date)
	assert.True(t, math.IsNaN(first.RSI))
	assert.True(t, math.IsNaN(first.EMA200))
	assert.Equal(t, 102.5, last.Close)
	assert.Equal(t, 61.2, last.RSI)
	assert.Equal(t, 1500.0, types.FieldVolumeSMA20.Of(last))
}

func TestReadIndicatorCSV_Invalid(t *testing.T) {
	cases := map[string]string{
		"unknown column": "date,close,volume,vwap\n2024-03-04,1,2,3\n",
		"no date":        "close,volume\n1,2\n",
		"no volume":      "date,close\n2024-03-04,1\n",
		"bad date":       "date,close,volume\n04/03/2024,1,2\n",
		"bad number":     "date,close,volume,rsi\n2024-03-04,1,2,abc\n",
		"empty close":    "date,close,volume\n2024-03-04,,2\n",
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ReadIndicatorCSV(strings.NewReader(input))
			assert.Error(t, err)
		})
	}
}
