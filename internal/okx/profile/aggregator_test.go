package profile

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type stubSink struct {
	mu    sync.Mutex
	snaps []*Snapshot
}

func (s *stubSink) Publish(snap *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = append(s.snaps, snap)
}

func (s *stubSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snaps)
}

func (s *stubSink) last() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.snaps) == 0 {
		return nil
	}
	return s.snaps[len(s.snaps)-1]
}

type stubSource struct{}

func (stubSource) PopBatch(int, time.Duration) []TradeEvent { return nil }

func newTestAggregator(sink SnapshotSink, window WindowConfig, publishInterval time.Duration) *Aggregator {
	return NewAggregator(AggregatorConfig{
		TickSizes:       map[Symbol]decimal.Decimal{SymbolBTCUSDT: d("1"), SymbolETHUSDT: d("1")},
		ValueAreaPct:    d("0.7"),
		Window:          window,
		PublishInterval: publishInterval,
		PopTimeout:      20 * time.Millisecond,
	}, stubSource{}, sink, zap.NewNop())
}

func tradeAt(price, size string, ts time.Time) TradeEvent {
	return TradeEvent{
		Symbol:     SymbolBTCUSDT,
		Price:      d(price),
		Size:       d(size),
		Side:       SideBuy,
		ExchangeTS: ts,
		ReceivedTS: time.Now(),
	}
}

// go test -v --run TestAggregatorDropsMalformed
func TestAggregatorDropsMalformed(t *testing.T) {
	sink := &stubSink{}
	a := newTestAggregator(sink, WindowConfig{Policy: WindowRolling, Duration: time.Hour}, 0)

	ts := time.Date(2026, 8, 31, 10, 5, 0, 0, time.UTC)

	unknown := tradeAt("100", "1", ts)
	unknown.Symbol = "DOGE-USDT"
	a.process(unknown)

	zero := tradeAt("100", "0", ts)
	a.process(zero)

	negative := tradeAt("100", "-3", ts)
	a.process(negative)

	if got := a.Dropped(); got != 3 {
		t.Errorf("expected 3 dropped events, got %d", got)
	}
	if len(a.profiles) != 0 {
		t.Errorf("malformed events must not open profiles, got %d", len(a.profiles))
	}
}

// go test -v --run TestAggregatorWindowRotation
func TestAggregatorWindowRotation(t *testing.T) {
	sink := &stubSink{}
	a := newTestAggregator(sink, WindowConfig{Policy: WindowRolling, Duration: time.Minute}, 0)

	base := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	a.process(tradeAt("100.3", "2", base.Add(10*time.Second)))
	a.process(tradeAt("100.7", "3", base.Add(40*time.Second)))

	// Crossing window_end closes the profile and opens the next with this
	// event as its first member
	a.process(tradeAt("101.2", "1", base.Add(70*time.Second)))

	select {
	case final := <-a.Finalized():
		if !final.Finalized {
			t.Error("retired profile not marked finalized")
		}
		if !final.WindowStart.Equal(base) || !final.WindowEnd.Equal(base.Add(time.Minute)) {
			t.Errorf("unexpected retired window [%v, %v)", final.WindowStart, final.WindowEnd)
		}
		if final.TradeCount != 2 || !final.TotalVolume.Equal(d("5")) {
			t.Errorf("retired profile: trades=%d volume=%s", final.TradeCount, final.TotalVolume)
		}
	default:
		t.Fatal("expected a finalized profile after rotation")
	}

	p := a.profiles[SymbolBTCUSDT]
	if !p.WindowStart.Equal(base.Add(time.Minute)) {
		t.Errorf("new window should start at old end, got %v", p.WindowStart)
	}
	if p.tradeCount != 1 || !p.TotalVolume().Equal(d("1")) {
		t.Errorf("rotating event not folded into new window: trades=%d volume=%s", p.tradeCount, p.TotalVolume())
	}
}

// go test -v --run TestAggregatorLateEventDoesNotReopenWindow
func TestAggregatorLateEventDoesNotReopenWindow(t *testing.T) {
	sink := &stubSink{}
	a := newTestAggregator(sink, WindowConfig{Policy: WindowRolling, Duration: time.Minute}, 0)

	base := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	a.process(tradeAt("100", "1", base.Add(10*time.Second)))
	a.process(tradeAt("101", "1", base.Add(65*time.Second))) // rotates
	<-a.Finalized()

	// An out-of-order timestamp from the previous window folds into the
	// current profile and triggers no rotation
	a.process(tradeAt("99", "1", base.Add(30*time.Second)))

	select {
	case <-a.Finalized():
		t.Fatal("late event must not rotate the window")
	default:
	}

	p := a.profiles[SymbolBTCUSDT]
	if p.tradeCount != 2 {
		t.Errorf("expected late event folded into current window, trades=%d", p.tradeCount)
	}
	if wm := a.watermarks[SymbolBTCUSDT]; !wm.Equal(base.Add(65 * time.Second)) {
		t.Errorf("watermark regressed: %v", wm)
	}
}

// go test -v --run TestAggregatorWatermarksAreIndependent
func TestAggregatorWatermarksAreIndependent(t *testing.T) {
	sink := &stubSink{}
	a := newTestAggregator(sink, WindowConfig{Policy: WindowRolling, Duration: time.Hour}, 0)

	// ETH runs nearly an hour ahead of BTC
	eth := tradeAt("4000", "1", time.Date(2026, 8, 31, 12, 5, 0, 0, time.UTC))
	eth.Symbol = SymbolETHUSDT
	a.process(eth)

	a.process(tradeAt("100", "2", time.Date(2026, 8, 31, 10, 30, 0, 0, time.UTC)))
	a.process(tradeAt("101", "1", time.Date(2026, 8, 31, 11, 1, 0, 0, time.UTC))) // rotates BTC only

	select {
	case final := <-a.Finalized():
		if final.Symbol != SymbolBTCUSDT {
			t.Fatalf("rotated symbol = %s, want BTC-USDT", final.Symbol)
		}
		want := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
		if !final.WindowStart.Equal(want) || !final.WindowEnd.Equal(want.Add(time.Hour)) {
			t.Errorf("retired window [%v, %v)", final.WindowStart, final.WindowEnd)
		}
	default:
		t.Fatal("expected BTC window to rotate")
	}

	// The replacement window must contain the rotating BTC trade even though
	// ETH's clock is far ahead
	btc := a.profiles[SymbolBTCUSDT]
	rot := time.Date(2026, 8, 31, 11, 1, 0, 0, time.UTC)
	if rot.Before(btc.WindowStart) || !rot.Before(btc.WindowEnd) {
		t.Errorf("rotating trade %v outside its window [%v, %v)", rot, btc.WindowStart, btc.WindowEnd)
	}
	if btc.tradeCount != 1 {
		t.Errorf("rotating trade not in new window, trades=%d", btc.tradeCount)
	}

	// ETH never rotated and keeps its own window
	ethProfile := a.profiles[SymbolETHUSDT]
	if !ethProfile.WindowStart.Equal(time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("ETH window moved: starts %v", ethProfile.WindowStart)
	}
	select {
	case snap := <-a.Finalized():
		t.Fatalf("unexpected second rotation for %s", snap.Symbol)
	default:
	}
}

// go test -v --run TestAggregatorDedupesTradeIDs
func TestAggregatorDedupesTradeIDs(t *testing.T) {
	sink := &stubSink{}
	a := newTestAggregator(sink, WindowConfig{Policy: WindowRolling, Duration: time.Hour}, 0)

	ts := time.Date(2026, 8, 31, 10, 5, 0, 0, time.UTC)
	ev := tradeAt("100", "2", ts)
	ev.TradeID = "987654"

	// Same trade via backfill and the live stream counts once
	a.process(ev)
	a.process(ev)

	p := a.profiles[SymbolBTCUSDT]
	if p.tradeCount != 1 || !p.TotalVolume().Equal(d("2")) {
		t.Errorf("duplicate trade double-counted: trades=%d volume=%s", p.tradeCount, p.TotalVolume())
	}
	if a.Duplicates() != 1 {
		t.Errorf("expected 1 duplicate, got %d", a.Duplicates())
	}

	// A fresh ID still applies
	next := tradeAt("100", "1", ts.Add(time.Second))
	next.TradeID = "987655"
	a.process(next)
	if p.tradeCount != 2 || !p.TotalVolume().Equal(d("3")) {
		t.Errorf("fresh trade rejected: trades=%d volume=%s", p.tradeCount, p.TotalVolume())
	}
}

// go test -v --run TestAggregatorPublishThrottle
func TestAggregatorPublishThrottle(t *testing.T) {
	sink := &stubSink{}
	a := newTestAggregator(sink, WindowConfig{Policy: WindowRolling, Duration: time.Hour}, time.Hour)

	ts := time.Date(2026, 8, 31, 10, 5, 0, 0, time.UTC)
	a.process(tradeAt("100", "1", ts))
	a.maybePublish(false)
	if sink.count() != 1 {
		t.Fatalf("expected first publish to pass, got %d", sink.count())
	}

	// Within the throttle interval nothing new is published
	a.process(tradeAt("100", "1", ts.Add(time.Second)))
	a.maybePublish(false)
	if sink.count() != 1 {
		t.Errorf("expected publish to be throttled, got %d", sink.count())
	}

	// An idle tick flushes pending state regardless of the throttle
	a.maybePublish(true)
	if sink.count() != 2 {
		t.Errorf("expected idle flush, got %d publishes", sink.count())
	}
	if snap := sink.last(); !snap.TotalVolume.Equal(d("2")) {
		t.Errorf("flushed snapshot stale: total volume %s", snap.TotalVolume)
	}
}

// go test -v --run TestAggregatorRunShutdown
func TestAggregatorRunShutdown(t *testing.T) {
	sink := &stubSink{}
	a := newTestAggregator(sink, WindowConfig{Policy: WindowRolling, Duration: time.Hour}, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("aggregator did not stop within grace period")
	}

	// Finalized channel closes on shutdown
	select {
	case _, ok := <-a.Finalized():
		if ok {
			t.Error("unexpected finalized profile at shutdown")
		}
	case <-time.After(time.Second):
		t.Error("finalized channel not closed")
	}
}
