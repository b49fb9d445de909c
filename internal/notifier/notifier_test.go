package notifier

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auto-trader/pkg/types"
)

func sampleEvents() []*types.SignalEvent {
	day := time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC)
	return []*types.SignalEvent{
		{Symbol: "TCS", Signal: types.SignalBuy, Variant: "strict", TradeDate: day, Close: 3900, RSI: 64, VolumeRatio: 1.6},
		{Symbol: "INFY", Signal: types.SignalSell, PreviousSignal: types.SignalBuy, Variant: "strict", TradeDate: day, Close: 1500, RSI: 40, VolumeRatio: 2.1},
		{Symbol: "RELIANCE", Signal: types.SignalBuy, Variant: "strict", TradeDate: day, Close: 2900, RSI: 66, VolumeRatio: 2.4},
	}
}

type dingTalkServer struct {
	*httptest.Server
	mu       sync.Mutex
	queries  []string
	messages []DingTalkMessage
	errCode  int
}

func newDingTalkServer(t *testing.T, errCode int) *dingTalkServer {
	s := &dingTalkServer{errCode: errCode}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg DingTalkMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		s.mu.Lock()
		s.queries = append(s.queries, r.URL.RawQuery)
		s.messages = append(s.messages, msg)
		s.mu.Unlock()
		_ = json.NewEncoder(w).Encode(DingTalkResponse{ErrCode: s.errCode, ErrMsg: "ok"})
	}))
	t.Cleanup(s.Close)
	return s
}

func newTestDingTalk(url, secret string, out *bytes.Buffer) *DingTalkNotifier {
	return &DingTalkNotifier{
		webhookURL: url,
		secret:     secret,
		httpClient: &http.Client{Timeout: 2 * time.Second},
		fallback:   NewConsoleNotifierTo(out),
		now:        func() time.Time { return time.UnixMilli(1700000000000) },
	}
}

func TestDingTalk_SendSignalSigned(t *testing.T) {
	srv := newDingTalkServer(t, 0)
	var out bytes.Buffer
	dtn := newTestDingTalk(srv.URL+"/robot/send?access_token=abc", "SECret", &out)

	require.NoError(t, dtn.SendSignal(sampleEvents()[0]))

	require.Len(t, srv.messages, 1)
	assert.Equal(t, "markdown", srv.messages[0].MsgType)
	assert.Contains(t, srv.messages[0].Markdown.Title, "TCS")
	assert.Contains(t, srv.messages[0].Markdown.Text, "3900.00")
	assert.Contains(t, srv.queries[0], "access_token=abc&timestamp=1700000000000&sign=")
	assert.Empty(t, out.String())
}

func TestDingTalk_BatchGroupsBySignal(t *testing.T) {
	srv := newDingTalkServer(t, 0)
	var out bytes.Buffer
	dtn := newTestDingTalk(srv.URL, "", &out)

	require.NoError(t, dtn.SendBatchSignals(sampleEvents()))

	require.Len(t, srv.messages, 1)
	assert.Equal(t, "", srv.queries[0])
	text := srv.messages[0].Markdown.Text
	assert.Contains(t, text, `<font color="green">2个</font>`)
	// 买入按量比排序：RELIANCE (2.4) 在 TCS (1.6) 之前
	assert.Less(t, strings.Index(text, "RELIANCE"), strings.Index(text, "TCS"))
}

func TestDingTalk_FallsBackToConsole(t *testing.T) {
	srv := newDingTalkServer(t, 310000)
	var out bytes.Buffer
	dtn := newTestDingTalk(srv.URL, "", &out)

	require.NoError(t, dtn.SendSignal(sampleEvents()[1]))
	assert.Contains(t, out.String(), "INFY")
	assert.Contains(t, out.String(), "BUY → SELL")
}

func TestNewDingTalkNotifier_NoWebhook(t *testing.T) {
	n := NewDingTalkNotifier(types.DingTalkConfig{}, types.NetworkConfig{})
	_, ok := n.(*ConsoleNotifier)
	assert.True(t, ok)
}

func TestGenerateSignature(t *testing.T) {
	dtn := &DingTalkNotifier{secret: "secret"}
	a := dtn.generateSignature(1700000000000)
	b := dtn.generateSignature(1700000000000)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, dtn.generateSignature(1700000000001))
	assert.NotContains(t, a, "+")
}

func TestConsoleNotifier(t *testing.T) {
	var out bytes.Buffer
	cn := NewConsoleNotifierTo(&out)

	require.NoError(t, cn.SendBatchSignals(nil))
	assert.Empty(t, out.String())

	require.NoError(t, cn.SendBatchSignals(sampleEvents()))
	assert.Contains(t, out.String(), "批量交易信号 - 3个标的")
	assert.Contains(t, out.String(), "买入: 2个")
}
