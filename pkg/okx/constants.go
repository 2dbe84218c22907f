package okx

import "fmt"

// DefaultWSURL is the OKX v5 public WebSocket endpoint.
const DefaultWSURL = "wss://ws.okx.com:8443/ws/v5/public"

// DefaultRESTBaseURL is the OKX v5 REST endpoint.
const DefaultRESTBaseURL = "https://www.okx.com"

// InstType values accepted by the instruments endpoint.
const (
	InstTypeSpot = "SPOT"
)

// InstrumentMeta holds the static fallback metadata for an instrument, used
// when the exchange metadata endpoint is unreachable at startup.
type InstrumentMeta struct {
	InstID          string
	DefaultTickSize string // decimal string
}

// knownInstruments maps instId to its fallback metadata.
var knownInstruments = map[string]InstrumentMeta{
	"BTC-USDT": {InstID: "BTC-USDT", DefaultTickSize: "0.1"},
	"ETH-USDT": {InstID: "ETH-USDT", DefaultTickSize: "0.01"},
}

// IsKnownInstrument checks whether a fallback entry exists for instId.
func IsKnownInstrument(instID string) bool {
	_, ok := knownInstruments[instID]
	return ok
}

// LookupInstrument returns the fallback metadata for instId.
func LookupInstrument(instID string) (InstrumentMeta, error) {
	meta, ok := knownInstruments[instID]
	if !ok {
		return InstrumentMeta{}, fmt.Errorf("unknown instrument: %s", instID)
	}
	return meta, nil
}
