package memorystore

import (
	"sync"
	"sync/atomic"

	"vpcollector/internal/okx/profile"
)

// SnapshotStore holds the latest published profile snapshot per symbol.
// Publish is a single atomic pointer swap; readers already holding an older
// snapshot keep it untouched. Latest never blocks and never exposes partial
// state.
type SnapshotStore struct {
	globalMu sync.RWMutex
	data     map[profile.Symbol]*atomic.Pointer[profile.Snapshot]
}

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		data: make(map[profile.Symbol]*atomic.Pointer[profile.Snapshot]),
	}
}

// Publish replaces the current snapshot for its symbol.
func (s *SnapshotStore) Publish(snap *profile.Snapshot) {
	// Fast path: slot already exists, read lock only
	s.globalMu.RLock()
	slot, ok := s.data[snap.Symbol]
	s.globalMu.RUnlock()

	if !ok {
		// Need to initialize the slot (exclusive lock)
		s.globalMu.Lock()
		if slot, ok = s.data[snap.Symbol]; !ok {
			slot = &atomic.Pointer[profile.Snapshot]{}
			s.data[snap.Symbol] = slot
		}
		s.globalMu.Unlock()
	}

	slot.Store(snap)
}

// Latest returns the current snapshot for a symbol, or nil before the first
// publish.
func (s *SnapshotStore) Latest(symbol profile.Symbol) *profile.Snapshot {
	s.globalMu.RLock()
	slot, ok := s.data[symbol]
	s.globalMu.RUnlock()
	if !ok {
		return nil
	}
	return slot.Load()
}

// Symbols lists every symbol that has published at least once.
func (s *SnapshotStore) Symbols() []profile.Symbol {
	s.globalMu.RLock()
	defer s.globalMu.RUnlock()

	out := make([]profile.Symbol, 0, len(s.data))
	for symbol := range s.data {
		out = append(out, symbol)
	}
	return out
}

// Dominance returns each symbol's share of the combined total volume across
// the latest snapshots, in [0,1]. Nil when no volume has been seen yet.
func (s *SnapshotStore) Dominance() map[profile.Symbol]float64 {
	s.globalMu.RLock()
	defer s.globalMu.RUnlock()

	totals := make(map[profile.Symbol]float64, len(s.data))
	var combined float64
	for symbol, slot := range s.data {
		snap := slot.Load()
		if snap == nil {
			continue
		}
		v, _ := snap.TotalVolume.Float64()
		totals[symbol] = v
		combined += v
	}
	if combined == 0 {
		return nil
	}

	for symbol, v := range totals {
		totals[symbol] = v / combined
	}
	return totals
}
