package memorystore

import (
	"math"
	"testing"
	"time"

	"vpcollector/internal/okx/profile"

	"github.com/shopspring/decimal"
)

func snap(symbol profile.Symbol, totalVolume string) *profile.Snapshot {
	return &profile.Snapshot{
		Symbol:      symbol,
		TotalVolume: decimal.RequireFromString(totalVolume),
		TakenAt:     time.Now(),
	}
}

// go test -v --run TestPublishAndLatest
func TestPublishAndLatest(t *testing.T) {
	store := NewSnapshotStore()

	if got := store.Latest(profile.SymbolBTCUSDT); got != nil {
		t.Fatalf("expected nil before first publish, got %+v", got)
	}

	first := snap(profile.SymbolBTCUSDT, "1")
	store.Publish(first)
	if got := store.Latest(profile.SymbolBTCUSDT); got != first {
		t.Errorf("expected the published snapshot back, got %+v", got)
	}

	// A newer publish replaces the reference; the old snapshot itself is untouched
	second := snap(profile.SymbolBTCUSDT, "2")
	store.Publish(second)
	if got := store.Latest(profile.SymbolBTCUSDT); got != second {
		t.Errorf("expected the newer snapshot, got %+v", got)
	}
	if !first.TotalVolume.Equal(decimal.RequireFromString("1")) {
		t.Errorf("older snapshot mutated: %s", first.TotalVolume)
	}

	if got := store.Latest(profile.SymbolETHUSDT); got != nil {
		t.Errorf("expected nil for symbol without publishes, got %+v", got)
	}
}

// go test -v --run TestDominance
func TestDominance(t *testing.T) {
	store := NewSnapshotStore()

	if got := store.Dominance(); got != nil {
		t.Fatalf("expected nil dominance before any volume, got %v", got)
	}

	store.Publish(snap(profile.SymbolBTCUSDT, "6"))
	store.Publish(snap(profile.SymbolETHUSDT, "2"))

	shares := store.Dominance()
	if math.Abs(shares[profile.SymbolBTCUSDT]-0.75) > 1e-9 {
		t.Errorf("expected BTC share 0.75, got %v", shares[profile.SymbolBTCUSDT])
	}
	if math.Abs(shares[profile.SymbolETHUSDT]-0.25) > 1e-9 {
		t.Errorf("expected ETH share 0.25, got %v", shares[profile.SymbolETHUSDT])
	}
}
