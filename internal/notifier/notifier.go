package notifier

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"unicode/utf8"

	"auto-trader/pkg/types"
)

// Interface 通知接口
type Interface interface {
	SendSignal(event *types.SignalEvent) error
	SendBatchSignals(events []*types.SignalEvent) error
}

// safePadding 安全地计算填充空格数量，避免负数
func safePadding(content string, totalWidth int) int {
	// 使用utf8.RuneCountInString计算实际显示字符数，而不是字节数
	runeCount := utf8.RuneCountInString(content)
	padding := totalWidth - runeCount - 4 // 4是边框字符数
	if padding < 0 {
		padding = 0
	}
	return padding
}

// signalIcon 信号对应的图标和中文描述
func signalIcon(signal types.Signal) (string, string) {
	switch signal {
	case types.SignalBuy:
		return "🟢", "买入"
	case types.SignalSell:
		return "🔴", "卖出"
	}
	return "⚪", "观望"
}

// splitBySignal 拆分 BUY / SELL，各自按成交量倍数从高到低排序
func splitBySignal(events []*types.SignalEvent) (buys, sells []*types.SignalEvent) {
	for _, e := range events {
		switch e.Signal {
		case types.SignalBuy:
			buys = append(buys, e)
		case types.SignalSell:
			sells = append(sells, e)
		}
	}
	byVolume := func(list []*types.SignalEvent) {
		sort.SliceStable(list, func(i, j int) bool { return list[i].VolumeRatio > list[j].VolumeRatio })
	}
	byVolume(buys)
	byVolume(sells)
	return buys, sells
}

// transition 上次信号到本次信号的描述
func transition(e *types.SignalEvent) string {
	if e.PreviousSignal == "" {
		return e.Signal.String()
	}
	return fmt.Sprintf("%s → %s", e.PreviousSignal, e.Signal)
}

// ConsoleNotifier 控制台通知器
type ConsoleNotifier struct {
	out io.Writer
}

func NewConsoleNotifier() *ConsoleNotifier {
	return &ConsoleNotifier{out: os.Stdout}
}

// NewConsoleNotifierTo 输出到指定 writer
func NewConsoleNotifierTo(w io.Writer) *ConsoleNotifier {
	return &ConsoleNotifier{out: w}
}

func (cn *ConsoleNotifier) SendSignal(event *types.SignalEvent) error {
	cn.printSignal(event)
	return nil
}

func (cn *ConsoleNotifier) SendBatchSignals(events []*types.SignalEvent) error {
	if len(events) == 0 {
		return nil
	}

	if len(events) == 1 {
		return cn.SendSignal(events[0])
	}

	cn.printBatchSignals(events)
	return nil
}

func (cn *ConsoleNotifier) line(content string, width int) {
	fmt.Fprintf(cn.out, "║ %s%s ║\n", content, strings.Repeat(" ", safePadding(content, width)))
}

func (cn *ConsoleNotifier) printSignal(event *types.SignalEvent) {
	const width = 60
	icon, action := signalIcon(event.Signal)

	fmt.Fprintln(cn.out)
	fmt.Fprintln(cn.out, "╔"+strings.Repeat("═", width)+"╗")
	cn.line(fmt.Sprintf("%s 交易信号：%s", icon, action), width)
	fmt.Fprintln(cn.out, "║"+strings.Repeat(" ", width)+"║")
	cn.line(fmt.Sprintf("标的: %s", event.Symbol), width)
	cn.line(fmt.Sprintf("信号: %s (%s)", transition(event), event.Variant), width)
	cn.line(fmt.Sprintf("交易日: %s", event.TradeDate.Format("2006-01-02")), width)
	cn.line(fmt.Sprintf("收盘价: %.2f", event.Close), width)
	cn.line(fmt.Sprintf("RSI: %.2f  MACD柱: %.4f", event.RSI, event.MACDHist), width)
	cn.line(fmt.Sprintf("成交量倍数: %.2fx", event.VolumeRatio), width)
	if event.Held {
		cn.line("持仓: 是", width)
	}
	fmt.Fprintln(cn.out, "╚"+strings.Repeat("═", width)+"╝")
	fmt.Fprintln(cn.out)
}

func (cn *ConsoleNotifier) printBatchSignals(events []*types.SignalEvent) {
	const width = 80
	buys, sells := splitBySignal(events)

	fmt.Fprintln(cn.out)
	fmt.Fprintln(cn.out, "╔"+strings.Repeat("═", width)+"╗")
	cn.line(fmt.Sprintf("🚨 批量交易信号 - %d个标的", len(events)), width)
	cn.line(fmt.Sprintf("🟢 买入: %d个  🔴 卖出: %d个", len(buys), len(sells)), width)
	fmt.Fprintln(cn.out, "║"+strings.Repeat(" ", width)+"║")

	section := func(title string, list []*types.SignalEvent) {
		if len(list) == 0 {
			return
		}
		cn.line(title, width)
		for i, e := range list {
			icon, _ := signalIcon(e.Signal)
			cn.line(fmt.Sprintf("  %d. %s %s: %.2f RSI %.1f 量比 %.2fx", i+1, icon, e.Symbol, e.Close, e.RSI, e.VolumeRatio), width)
		}
		fmt.Fprintln(cn.out, "║"+strings.Repeat(" ", width)+"║")
	}
	section("🟢 买入信号 (按量比排序):", buys)
	section("🔴 卖出信号 (按量比排序):", sells)

	cn.line(fmt.Sprintf("交易日: %s", events[0].TradeDate.Format("2006-01-02")), width)
	fmt.Fprintln(cn.out, "╚"+strings.Repeat("═", width)+"╝")
	fmt.Fprintln(cn.out)
}
