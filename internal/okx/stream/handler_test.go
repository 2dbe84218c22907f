package stream

import (
	"testing"
	"time"

	"vpcollector/internal/okx/ingest"
	"vpcollector/internal/okx/profile"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const tradeFrame = `{
	"arg": {"channel": "trades", "instId": "BTC-USDT"},
	"data": [
		{"instId": "BTC-USDT", "tradeId": "130639474", "px": "42219.9", "sz": "0.12060306", "side": "buy", "ts": "1756600000000"},
		{"instId": "BTC-USDT", "tradeId": "130639475", "px": "42220.1", "sz": "0.005", "side": "sell", "ts": "1756600000125"}
	]
}`

// go test -v --run TestClassify
func TestClassify(t *testing.T) {
	var env Envelope

	if got := Classify([]byte("pong"), &env); got != KindHeartbeat {
		t.Errorf("pong: expected KindHeartbeat, got %v", got)
	}
	if got := Classify([]byte(`{"event":"subscribe","arg":{"channel":"trades","instId":"BTC-USDT"}}`), &env); got != KindEvent {
		t.Errorf("subscribe ack: expected KindEvent, got %v", got)
	}
	if got := Classify([]byte(`{"event":"error","code":"60012","msg":"Invalid request"}`), &env); got != KindError {
		t.Errorf("error event: expected KindError, got %v", got)
	}
	if got := Classify([]byte(tradeFrame), &env); got != KindTrade {
		t.Errorf("trade frame: expected KindTrade, got %v", got)
	}
	if got := Classify([]byte(`{"arg":{"channel":"books","instId":"BTC-USDT"},"data":[{}]}`), &env); got != KindOther {
		t.Errorf("non-trades channel: expected KindOther, got %v", got)
	}
}

// go test -v --run TestHandlerPushesTrades
func TestHandlerPushesTrades(t *testing.T) {
	queue := ingest.NewQueue(10)
	handler := MakeMessageHandler(zap.NewNop(), queue, nil)

	handler([]byte(tradeFrame))

	batch := queue.PopBatch(10, 100*time.Millisecond)
	if len(batch) != 2 {
		t.Fatalf("expected 2 events, got %d", len(batch))
	}

	ev := batch[0]
	if ev.Symbol != profile.SymbolBTCUSDT {
		t.Errorf("unexpected symbol %s", ev.Symbol)
	}
	if !ev.Price.Equal(decimal.RequireFromString("42219.9")) {
		t.Errorf("unexpected price %s", ev.Price)
	}
	if !ev.Size.Equal(decimal.RequireFromString("0.12060306")) {
		t.Errorf("unexpected size %s", ev.Size)
	}
	if ev.Side != profile.SideBuy {
		t.Errorf("unexpected side %s", ev.Side)
	}
	if !ev.ExchangeTS.Equal(time.UnixMilli(1756600000000)) {
		t.Errorf("unexpected exchange timestamp %v", ev.ExchangeTS)
	}

	if batch[1].Side != profile.SideSell {
		t.Errorf("unexpected side for second trade: %s", batch[1].Side)
	}
}

// go test -v --run TestHandlerSkipsNonTradeFrames
func TestHandlerSkipsNonTradeFrames(t *testing.T) {
	queue := ingest.NewQueue(10)
	handler := MakeMessageHandler(zap.NewNop(), queue, nil)

	handler([]byte("pong"))
	handler([]byte(`{"event":"subscribe","arg":{"channel":"trades","instId":"BTC-USDT"}}`))
	handler([]byte(`{"event":"error","code":"60012","msg":"Invalid request"}`))
	handler([]byte(`not json at all`))

	if batch := queue.PopBatch(1, 50*time.Millisecond); batch != nil {
		t.Errorf("expected nothing queued, got %d events", len(batch))
	}
}

// go test -v --run TestHandlerDropsMalformedTrade
func TestHandlerDropsMalformedTrade(t *testing.T) {
	queue := ingest.NewQueue(10)
	handler := MakeMessageHandler(zap.NewNop(), queue, nil)

	frame := `{
		"arg": {"channel": "trades", "instId": "ETH-USDT"},
		"data": [
			{"instId": "ETH-USDT", "px": "not-a-price", "sz": "1", "side": "buy", "ts": "1756600000000"},
			{"instId": "ETH-USDT", "px": "3100.5", "sz": "1.5", "side": "sell", "ts": "1756600000001"}
		]
	}`
	handler([]byte(frame))

	batch := queue.PopBatch(10, 100*time.Millisecond)
	if len(batch) != 1 {
		t.Fatalf("expected only the valid trade, got %d events", len(batch))
	}
	if batch[0].Symbol != profile.SymbolETHUSDT || batch[0].Side != profile.SideSell {
		t.Errorf("unexpected surviving trade: %+v", batch[0])
	}
}

// go test -v --run TestParseTradeRejectsBadFields
func TestParseTradeRejectsBadFields(t *testing.T) {
	recvAt := time.Now()

	cases := []Trade{
		{InstID: "BTC-USDT", Px: "x", Sz: "1", Side: "buy", Ts: "1756600000000"},
		{InstID: "BTC-USDT", Px: "100", Sz: "y", Side: "buy", Ts: "1756600000000"},
		{InstID: "BTC-USDT", Px: "100", Sz: "1", Side: "hold", Ts: "1756600000000"},
		{InstID: "BTC-USDT", Px: "100", Sz: "1", Side: "buy", Ts: "yesterday"},
	}
	for i, c := range cases {
		if _, err := ParseTrade(c, recvAt); err == nil {
			t.Errorf("case %d: expected parse error", i)
		}
	}
}
