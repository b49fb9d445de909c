package notifier

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"auto-trader/pkg/types"
)

// DingTalkNotifier 钉钉通知器
type DingTalkNotifier struct {
	webhookURL string
	secret     string
	httpClient *http.Client
	fallback   *ConsoleNotifier
	now        func() time.Time
}

// DingTalkMessage 钉钉消息结构
type DingTalkMessage struct {
	MsgType  string            `json:"msgtype"`
	Markdown *DingTalkMarkdown `json:"markdown,omitempty"`
	At       *DingTalkAt       `json:"at,omitempty"`
}

type DingTalkMarkdown struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

type DingTalkAt struct {
	AtAll bool `json:"isAtAll"`
}

// DingTalkResponse 钉钉API响应
type DingTalkResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// NewDingTalkNotifier 未配置 webhook 时返回控制台通知器
func NewDingTalkNotifier(config types.DingTalkConfig, network types.NetworkConfig) Interface {
	if config.WebhookURL == "" {
		zap.L().Info("🔧 未配置钉钉Webhook URL，使用控制台输出模式")
		return NewConsoleNotifier()
	}

	if config.Secret != "" {
		zap.L().Info("✅ 已配置钉钉通知服务（含加签验证）")
	} else {
		zap.L().Warn("⚠️ 钉钉通知已配置，但未设置secret（建议配置加签验证）")
	}

	timeout := network.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if network.Proxy != "" {
		if proxyURL, err := url.Parse(network.Proxy); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		} else {
			zap.L().Warn("⚠️ 代理地址无效，忽略", zap.String("proxy", network.Proxy), zap.Error(err))
		}
	}

	return &DingTalkNotifier{
		webhookURL: config.WebhookURL,
		secret:     config.Secret,
		httpClient: &http.Client{Timeout: timeout, Transport: transport},
		fallback:   NewConsoleNotifier(),
		now:        time.Now,
	}
}

func (dtn *DingTalkNotifier) SendSignal(event *types.SignalEvent) error {
	icon, action := signalIcon(event.Signal)
	title := fmt.Sprintf("%s %s信号 - %s", icon, action, event.Symbol)

	if err := dtn.sendDingTalkMessage(title, buildMarkdownContent(event)); err != nil {
		zap.L().Error("❌ 钉钉发送失败，降级为控制台输出", zap.String("symbol", event.Symbol), zap.Error(err))
		return dtn.fallback.SendSignal(event)
	}

	zap.L().Info("✅ 钉钉通知已发送",
		zap.String("symbol", event.Symbol),
		zap.String("signal", event.Signal.String()))
	return nil
}

func (dtn *DingTalkNotifier) SendBatchSignals(events []*types.SignalEvent) error {
	if len(events) == 0 {
		return nil
	}

	if len(events) == 1 {
		return dtn.SendSignal(events[0])
	}

	title := fmt.Sprintf("📊 批量交易信号 - %d个标的", len(events))
	if err := dtn.sendDingTalkMessage(title, buildBatchMarkdownContent(events)); err != nil {
		zap.L().Error("❌ 钉钉批量发送失败，降级为控制台输出", zap.Error(err))
		return dtn.fallback.SendBatchSignals(events)
	}

	zap.L().Info("✅ 钉钉批量通知已发送", zap.Int("count", len(events)))
	return nil
}

// generateSignature 生成钉钉加签
func (dtn *DingTalkNotifier) generateSignature(timestamp int64) string {
	// 按照文档要求: timestamp + "\n" + secret
	stringToSign := fmt.Sprintf("%d\n%s", timestamp, dtn.secret)

	// HMAC-SHA256签名
	h := hmac.New(sha256.New, []byte(dtn.secret))
	h.Write([]byte(stringToSign))
	signature := base64.StdEncoding.EncodeToString(h.Sum(nil))

	// URL编码
	return url.QueryEscape(signature)
}

// buildSignedURL 构建带签名的URL
func (dtn *DingTalkNotifier) buildSignedURL() string {
	if dtn.secret == "" {
		return dtn.webhookURL
	}

	timestamp := dtn.now().UnixNano() / 1e6 // 毫秒时间戳

	// 添加timestamp和sign参数
	separator := "&"
	if !strings.Contains(dtn.webhookURL, "?") {
		separator = "?"
	}

	return fmt.Sprintf("%s%stimestamp=%d&sign=%s",
		dtn.webhookURL, separator, timestamp, dtn.generateSignature(timestamp))
}

// buildMarkdownContent 构建单个信号的Markdown内容
func buildMarkdownContent(e *types.SignalEvent) string {
	icon, action := signalIcon(e.Signal)
	color := "green"
	if e.Signal == types.SignalSell {
		color = "red"
	}
	held := "否"
	if e.Held {
		held = "是"
	}

	return fmt.Sprintf(`## %s %s信号

**标的**: %s
**信号**: <font color="%s">%s</font> (%s)
**交易日**: %s
**收盘价**: %.2f
**RSI**: %.2f
**MACD柱**: %.4f
**成交量倍数**: %.2fx
**当前持仓**: %s

> %s 信号仅供参考，请结合风险控制执行。`,
		icon, action,
		e.Symbol,
		color, transition(e), e.Variant,
		e.TradeDate.Format("2006-01-02"),
		e.Close,
		e.RSI,
		e.MACDHist,
		e.VolumeRatio,
		held,
		icon)
}

// buildBatchMarkdownContent 构建批量信号的Markdown内容
func buildBatchMarkdownContent(events []*types.SignalEvent) string {
	buys, sells := splitBySignal(events)

	var b strings.Builder
	fmt.Fprintf(&b, `## 🚨 批量交易信号

**信号统计**:
🟢 买入: <font color="green">%d个</font>
🔴 卖出: <font color="red">%d个</font>
🕐 交易日: %s

**详细列表**:
`, len(buys), len(sells), events[0].TradeDate.Format("2006-01-02"))

	section := func(title, color string, list []*types.SignalEvent) {
		if len(list) == 0 {
			return
		}
		b.WriteString(title + "\n")
		maxShow := 8 // 每个分组最多显示8个
		for i, e := range list {
			if i == maxShow {
				fmt.Fprintf(&b, "- ... 还有%d个\n", len(list)-maxShow)
				break
			}
			fmt.Fprintf(&b, "- **%s**: %.2f (<font color=\"%s\">RSI %.1f, 量比 %.2fx</font>)\n",
				e.Symbol, e.Close, color, e.RSI, e.VolumeRatio)
		}
		b.WriteString("\n")
	}
	section("**🟢 买入信号**:", "green", buys)
	section("**🔴 卖出信号**:", "red", sells)

	b.WriteString("> ⚠️ 信号仅供参考，请结合风险控制执行。")
	return b.String()
}

// sendDingTalkMessage 发送钉钉消息
func (dtn *DingTalkNotifier) sendDingTalkMessage(title, content string) error {
	message := &DingTalkMessage{
		MsgType: "markdown",
		Markdown: &DingTalkMarkdown{
			Title: title,
			Text:  content,
		},
		At: &DingTalkAt{
			AtAll: false, // 不@所有人，避免过度打扰
		},
	}

	jsonData, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("序列化消息失败: %w", err)
	}

	resp, err := dtn.httpClient.Post(dtn.buildSignedURL(), "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	var dingResp DingTalkResponse
	if err := json.NewDecoder(resp.Body).Decode(&dingResp); err != nil {
		return fmt.Errorf("解析响应失败: %w", err)
	}

	if dingResp.ErrCode != 0 {
		return fmt.Errorf("钉钉API错误 [%d]: %s", dingResp.ErrCode, dingResp.ErrMsg)
	}

	return nil
}
