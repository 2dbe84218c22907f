package stream

import "encoding/json"

// Arg identifies the channel a message belongs to, e.g. {"channel":"trades","instId":"BTC-USDT"}.
type Arg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

// Envelope is the outer shape of every OKX public WebSocket message. Event
// messages (subscribe acks, errors) carry Event/Code/Msg; data messages
// carry Arg plus a Data array.
type Envelope struct {
	Event string          `json:"event,omitempty"` // "subscribe", "unsubscribe", "error", empty for data
	Code  string          `json:"code,omitempty"`
	Msg   string          `json:"msg,omitempty"`
	Arg   Arg             `json:"arg"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Trade is one execution as delivered on the trades channel (and by the
// REST recent-trades endpoint, which shares the shape).
type Trade struct {
	InstID  string `json:"instId"`
	TradeID string `json:"tradeId"`
	Px      string `json:"px"`   // price
	Sz      string `json:"sz"`   // size
	Side    string `json:"side"` // "buy" or "sell"
	Ts      string `json:"ts"`   // exchange timestamp, ms since epoch
}

// Kind is the message class, resolved exactly once at parse time. Only
// trades reach the aggregation core.
type Kind int

const (
	KindTrade Kind = iota
	KindEvent
	KindError
	KindHeartbeat // "pong" keepalive replies
	KindOther
)

// Classify tags a raw frame. OKX replies to the text "ping" keepalive with
// a bare "pong", which is not JSON.
func Classify(raw []byte, env *Envelope) Kind {
	if string(raw) == "pong" {
		return KindHeartbeat
	}
	*env = Envelope{}
	if err := json.Unmarshal(raw, env); err != nil {
		return KindOther
	}
	if env.Event == "error" {
		return KindError
	}
	if env.Event != "" {
		return KindEvent
	}
	if env.Arg.Channel == ChannelTrades && len(env.Data) > 0 {
		return KindTrade
	}
	return KindOther
}

// ChannelTrades is the OKX public trades channel name.
const ChannelTrades = "trades"
