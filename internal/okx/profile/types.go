package profile

import (
	"time"

	"github.com/shopspring/decimal"
)

// Symbol is an OKX instrument id, e.g. "BTC-USDT".
type Symbol string

const (
	SymbolBTCUSDT Symbol = "BTC-USDT"
	SymbolETHUSDT Symbol = "ETH-USDT"
)

// Side is the taker side of a trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// TradeEvent is a single parsed trade execution. Immutable once constructed.
type TradeEvent struct {
	Symbol  Symbol
	Price   decimal.Decimal
	Size    decimal.Decimal
	Side    Side
	TradeID string

	ExchangeTS time.Time // exchange-side execution time
	ReceivedTS time.Time // local receipt time
}

// PriceBin accumulates traded volume at one quantized price level.
type PriceBin struct {
	Price      decimal.Decimal `json:"price"`
	BuyVolume  decimal.Decimal `json:"buy_volume"`
	SellVolume decimal.Decimal `json:"sell_volume"`
}

// TotalVolume returns buy plus sell volume of the bin.
func (b PriceBin) TotalVolume() decimal.Decimal {
	return b.BuyVolume.Add(b.SellVolume)
}

// Snapshot is an immutable deep copy of a volume profile at a point in time.
// Holders may keep it indefinitely; it is never mutated after creation.
type Snapshot struct {
	Symbol      Symbol
	WindowStart time.Time
	WindowEnd   time.Time
	Finalized   bool // true when the window has closed

	Bins           []PriceBin // ascending by price
	TotalVolume    decimal.Decimal
	PointOfControl decimal.Decimal
	ValueAreaLow   decimal.Decimal
	ValueAreaHigh  decimal.Decimal

	TradeCount int64
	LastPrice  decimal.Decimal

	TakenAt time.Time
}
