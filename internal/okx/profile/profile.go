package profile

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Quantize floors a price to the given tick size, so every traded price maps
// onto exactly one bin boundary. Quantizing an already-quantized price is a
// no-op.
func Quantize(price, tick decimal.Decimal) decimal.Decimal {
	return price.Div(tick).Floor().Mul(tick)
}

// VolumeProfile is a histogram of traded volume keyed by quantized price
// level over one time window. It is owned and mutated exclusively by the
// Aggregator for its symbol; everyone else sees immutable Snapshots.
type VolumeProfile struct {
	Symbol      Symbol
	TickSize    decimal.Decimal
	WindowStart time.Time
	WindowEnd   time.Time

	bins   map[string]*PriceBin // keyed by quantized price string
	prices []decimal.Decimal    // bin prices, ascending

	totalVolume decimal.Decimal
	tradeCount  int64
	lastPrice   decimal.Decimal

	valueAreaPct decimal.Decimal

	pocPrice decimal.Decimal // bin with max total volume, lowest price on tie
	vaLow    decimal.Decimal
	vaHigh   decimal.Decimal
}

// NewVolumeProfile creates an empty profile for one window.
func NewVolumeProfile(symbol Symbol, tick decimal.Decimal, start, end time.Time, valueAreaPct decimal.Decimal) *VolumeProfile {
	return &VolumeProfile{
		Symbol:       symbol,
		TickSize:     tick,
		WindowStart:  start,
		WindowEnd:    end,
		bins:         make(map[string]*PriceBin),
		valueAreaPct: valueAreaPct,
	}
}

// TotalVolume returns the running total volume of the window.
func (p *VolumeProfile) TotalVolume() decimal.Decimal { return p.totalVolume }

// BinCount returns the number of occupied price levels.
func (p *VolumeProfile) BinCount() int { return len(p.bins) }

// PointOfControl returns the price of the highest-volume bin.
func (p *VolumeProfile) PointOfControl() decimal.Decimal { return p.pocPrice }

// ValueArea returns the [low, high] price bounds holding the configured
// share of total volume around the point of control.
func (p *VolumeProfile) ValueArea() (low, high decimal.Decimal) { return p.vaLow, p.vaHigh }

// Apply folds one trade into the profile. The caller has already validated
// the event; Apply never rejects.
func (p *VolumeProfile) Apply(ev TradeEvent) {
	q := Quantize(ev.Price, p.TickSize)
	key := q.String()

	bin, ok := p.bins[key]
	if !ok {
		bin = &PriceBin{Price: q, BuyVolume: decimal.Zero, SellVolume: decimal.Zero}
		p.bins[key] = bin
		p.insertPrice(q)
	}

	if ev.Side == SideSell {
		bin.SellVolume = bin.SellVolume.Add(ev.Size)
	} else {
		bin.BuyVolume = bin.BuyVolume.Add(ev.Size)
	}

	p.totalVolume = p.totalVolume.Add(ev.Size)
	p.tradeCount++
	p.lastPrice = ev.Price

	p.updatePOC(bin)
	p.recomputeValueArea()
}

// insertPrice keeps the sorted price index in ascending order.
func (p *VolumeProfile) insertPrice(q decimal.Decimal) {
	i := sort.Search(len(p.prices), func(i int) bool {
		return p.prices[i].GreaterThanOrEqual(q)
	})
	p.prices = append(p.prices, decimal.Decimal{})
	copy(p.prices[i+1:], p.prices[i:])
	p.prices[i] = q
}

// updatePOC maintains the running maximum. Bin volumes only grow within a
// window, so the previous point of control can never lose its rank; a full
// rescan is needed only during reconciliation.
func (p *VolumeProfile) updatePOC(bin *PriceBin) {
	if len(p.prices) == 1 {
		p.pocPrice = bin.Price
		return
	}

	poc := p.bins[p.pocPrice.String()]
	switch bin.TotalVolume().Cmp(poc.TotalVolume()) {
	case 1:
		p.pocPrice = bin.Price
	case 0:
		if bin.Price.LessThan(p.pocPrice) {
			p.pocPrice = bin.Price
		}
	}
}

// recomputeValueArea expands outward from the point of control, taking the
// higher-volume neighbor on each step, until the accumulated volume reaches
// the configured share of the total. Equal neighbors resolve to the bin
// below the point of control.
func (p *VolumeProfile) recomputeValueArea() {
	if len(p.prices) == 0 {
		return
	}

	pocIdx := sort.Search(len(p.prices), func(i int) bool {
		return p.prices[i].GreaterThanOrEqual(p.pocPrice)
	})

	target := p.totalVolume.Mul(p.valueAreaPct)
	acc := p.binAt(pocIdx).TotalVolume()
	lo, hi := pocIdx, pocIdx

	for acc.LessThan(target) && (lo > 0 || hi < len(p.prices)-1) {
		switch {
		case lo == 0: // only room above
			hi++
			acc = acc.Add(p.binAt(hi).TotalVolume())
		case hi == len(p.prices)-1: // only room below
			lo--
			acc = acc.Add(p.binAt(lo).TotalVolume())
		default:
			below := p.binAt(lo - 1).TotalVolume()
			above := p.binAt(hi + 1).TotalVolume()
			if below.GreaterThanOrEqual(above) {
				lo--
				acc = acc.Add(below)
			} else {
				hi++
				acc = acc.Add(above)
			}
		}
	}

	p.vaLow = p.prices[lo]
	p.vaHigh = p.prices[hi]
}

func (p *VolumeProfile) binAt(i int) *PriceBin {
	return p.bins[p.prices[i].String()]
}

// Reconcile recomputes total volume and the point of control from scratch
// and repairs any divergence from the incremental state. Returns an error
// describing the drift when one was found.
func (p *VolumeProfile) Reconcile() error {
	sum := decimal.Zero
	var poc decimal.Decimal
	var pocVol decimal.Decimal
	for i := range p.prices {
		bin := p.binAt(i)
		vol := bin.TotalVolume()
		sum = sum.Add(vol)
		if i == 0 || vol.GreaterThan(pocVol) {
			poc, pocVol = bin.Price, vol
		}
	}

	var err error
	if !sum.Equal(p.totalVolume) {
		err = fmt.Errorf("total volume drift: incremental=%s recomputed=%s", p.totalVolume, sum)
		p.totalVolume = sum
	}
	if !poc.Equal(p.pocPrice) {
		if err == nil {
			err = fmt.Errorf("poc drift: incremental=%s recomputed=%s", p.pocPrice, poc)
		}
		p.pocPrice = poc
	}
	if err != nil {
		p.recomputeValueArea()
	}
	return err
}

// Snapshot deep-copies the profile into an immutable view. Later mutation of
// the live profile never affects a snapshot already handed out.
func (p *VolumeProfile) Snapshot(finalized bool) *Snapshot {
	bins := make([]PriceBin, 0, len(p.prices))
	for i := range p.prices {
		bins = append(bins, *p.binAt(i))
	}

	return &Snapshot{
		Symbol:         p.Symbol,
		WindowStart:    p.WindowStart,
		WindowEnd:      p.WindowEnd,
		Finalized:      finalized,
		Bins:           bins,
		TotalVolume:    p.totalVolume,
		PointOfControl: p.pocPrice,
		ValueAreaLow:   p.vaLow,
		ValueAreaHigh:  p.vaHigh,
		TradeCount:     p.tradeCount,
		LastPrice:      p.lastPrice,
		TakenAt:        time.Now(),
	}
}
