package okx

import "encoding/json"

// Response represents the standard envelope of OKX's v5 REST API.
type Response struct {
	Code string          `json:"code"` // "0" means success
	Msg  string          `json:"msg"`  // human-readable error description
	Data json.RawMessage `json:"data"` // delay decoding, payload varies per endpoint
}

// InstrumentInfo is one entry of the public instruments endpoint.
type InstrumentInfo struct {
	InstID    string `json:"instId"`   // e.g., "BTC-USDT"
	InstType  string `json:"instType"` // e.g., "SPOT"
	BaseCcy   string `json:"baseCcy"`  // e.g., "BTC"
	QuoteCcy  string `json:"quoteCcy"` // e.g., "USDT"
	TickSz    string `json:"tickSz"`   // minimum price increment, decimal string
	LotSz     string `json:"lotSz"`    // minimum size increment
	State     string `json:"state"`    // "live", "suspend", ...
	ListTime  string `json:"listTime"`
	ExpTime   string `json:"expTime"`
	CtValCcy  string `json:"ctValCcy"`
	SettleCcy string `json:"settleCcy"`
}

// subscribeRequest is the op payload sent after connecting.
type subscribeRequest struct {
	Op   string         `json:"op"`
	Args []subscribeArg `json:"args"`
}

type subscribeArg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}
