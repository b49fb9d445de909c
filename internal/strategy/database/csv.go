package database

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"auto-trader/pkg/types"
)

const (
	csvDateColumn = "date"
	dateLayout    = "2006-01-02"
)

// ReadIndicatorCSV 读取预计算指标 CSV，表头为 date 加指标字段名，空单元格视为 NaN。
// 返回的序列按日期升序排列。
func ReadIndicatorCSV(r io.Reader) (types.IndicatorSeries, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("读取表头失败: %w", err)
	}

	dateIdx := -1
	columns := make([]types.IndicatorField, len(header))
	seen := make(map[types.IndicatorField]bool, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == csvDateColumn {
			dateIdx = i
			continue
		}
		field := types.IndicatorField(name)
		if !field.Set(&types.IndicatorRecord{}, 0) {
			return nil, fmt.Errorf("未知指标列 %q", name)
		}
		columns[i] = field
		seen[field] = true
	}
	if dateIdx < 0 {
		return nil, errors.New("缺少 date 列")
	}
	for _, required := range []types.IndicatorField{types.FieldClose, types.FieldVolume} {
		if !seen[required] {
			return nil, fmt.Errorf("缺少 %s 列", required)
		}
	}

	var series types.IndicatorSeries
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("第 %d 行: %w", line, err)
		}

		date, err := time.Parse(dateLayout, strings.TrimSpace(row[dateIdx]))
		if err != nil {
			return nil, fmt.Errorf("第 %d 行日期无效: %w", line, err)
		}
		rec := emptyRecord(date)
		for i, cell := range row {
			if i == dateIdx {
				continue
			}
			v, err := parseCell(cell)
			if err != nil {
				return nil, fmt.Errorf("第 %d 行 %s: %w", line, columns[i], err)
			}
			columns[i].Set(&rec, v)
		}
		if !types.Finite(rec.Close) || !types.Finite(rec.Volume) {
			return nil, fmt.Errorf("第 %d 行缺少 close/volume", line)
		}
		series = append(series, rec)
	}

	sort.SliceStable(series, func(i, j int) bool { return series[i].Date.Before(series[j].Date) })
	return series, nil
}

func emptyRecord(date time.Time) types.IndicatorRecord {
	rec := types.IndicatorRecord{Date: date}
	for _, f := range types.IndicatorFields {
		f.Set(&rec, math.NaN())
	}
	return rec
}

func parseCell(cell string) (float64, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" || strings.EqualFold(cell, "nan") {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(cell, 64)
}
