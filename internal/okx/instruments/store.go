package instruments

import (
	"sync"

	"vpcollector/internal/okx/profile"
	"vpcollector/pkg/okx"

	"github.com/shopspring/decimal"
)

// Store holds exchange-reported tick sizes per instrument.
type Store struct {
	mu    sync.Mutex
	ticks map[profile.Symbol]decimal.Decimal
}

func NewStore() *Store {
	return &Store{
		ticks: make(map[profile.Symbol]decimal.Decimal),
	}
}

// Add records the tick size parsed from one instrument entry. Entries with
// an unparsable tickSz are ignored.
func (s *Store) Add(info okx.InstrumentInfo) {
	tick, err := decimal.NewFromString(info.TickSz)
	if err != nil || !tick.IsPositive() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticks[profile.Symbol(info.InstID)] = tick
}

// Consume drains the channel into the store, returning when it closes.
func (s *Store) Consume(ch <-chan okx.InstrumentInfo) {
	for info := range ch {
		s.Add(info)
	}
}

// TickSize returns the stored tick size for a symbol.
func (s *Store) TickSize(symbol profile.Symbol) (decimal.Decimal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tick, ok := s.ticks[symbol]
	return tick, ok
}
