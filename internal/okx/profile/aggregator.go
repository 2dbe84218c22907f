package profile

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// EventSource hands batches of trade events to the aggregator. Satisfied by
// the ingest queue.
type EventSource interface {
	PopBatch(maxN int, timeout time.Duration) []TradeEvent
}

// SnapshotSink receives published profile snapshots. Satisfied by the
// memorystore snapshot store.
type SnapshotSink interface {
	Publish(snap *Snapshot)
}

// AggregatorConfig carries the per-symbol tick sizes and the pipeline knobs.
type AggregatorConfig struct {
	TickSizes    map[Symbol]decimal.Decimal
	ValueAreaPct decimal.Decimal
	Window       WindowConfig

	BatchSize         int
	PopTimeout        time.Duration
	PublishInterval   time.Duration
	ReconcileInterval time.Duration
}

// Aggregator drains the ingest queue on a dedicated goroutine and folds each
// trade into the live profile for its symbol. It is the only writer of live
// profiles; readers only ever see snapshots through the sink.
type Aggregator struct {
	cfg    AggregatorConfig
	source EventSource
	sink   SnapshotSink
	logger *zap.Logger

	profiles   map[Symbol]*VolumeProfile
	watermarks map[Symbol]time.Time // per-symbol max exchange timestamp, gates rotation
	dirty      map[Symbol]bool
	seen       map[Symbol]*recentIDs

	lastPublish   time.Time
	lastReconcile time.Time

	finalized chan *Snapshot

	dropped    atomic.Uint64
	duplicates atomic.Uint64
}

// dedupDepth bounds the per-symbol trade ID history. It only needs to cover
// the overlap between the REST backfill and the first live frames, so a few
// thousand IDs is plenty.
const dedupDepth = 4096

// NewAggregator wires an aggregator to its event source and snapshot sink.
func NewAggregator(cfg AggregatorConfig, source EventSource, sink SnapshotSink, logger *zap.Logger) *Aggregator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 256
	}
	if cfg.PopTimeout <= 0 {
		cfg.PopTimeout = 250 * time.Millisecond
	}
	return &Aggregator{
		cfg:        cfg,
		source:     source,
		sink:       sink,
		logger:     logger,
		profiles:   make(map[Symbol]*VolumeProfile),
		watermarks: make(map[Symbol]time.Time),
		dirty:      make(map[Symbol]bool),
		seen:       make(map[Symbol]*recentIDs),
		finalized:  make(chan *Snapshot, 16),
	}
}

// Finalized exposes retired window profiles for an external writer to
// persist. Closed when Run returns.
func (a *Aggregator) Finalized() <-chan *Snapshot {
	return a.finalized
}

// Dropped returns the count of malformed events discarded so far.
func (a *Aggregator) Dropped() uint64 {
	return a.dropped.Load()
}

// Duplicates returns the count of events discarded because their trade ID
// was already applied.
func (a *Aggregator) Duplicates() uint64 {
	return a.duplicates.Load()
}

// Run consumes the queue until ctx is cancelled. Events still buffered at
// shutdown are discarded; pending snapshots are flushed so readers see the
// last consumed state.
func (a *Aggregator) Run(ctx context.Context) {
	a.logger.Info("aggregator started",
		zap.String("window_policy", string(a.cfg.Window.Policy)),
		zap.Duration("window_duration", a.cfg.Window.Duration))

	for {
		select {
		case <-ctx.Done():
			a.publishDirty()
			close(a.finalized)
			a.logger.Info("aggregator stopped",
				zap.Uint64("dropped", a.dropped.Load()),
				zap.Uint64("duplicates", a.duplicates.Load()))
			return
		default:
		}

		batch := a.source.PopBatch(a.cfg.BatchSize, a.cfg.PopTimeout)
		for _, ev := range batch {
			a.process(ev)
		}
		a.maybePublish(len(batch) == 0)
		a.maybeReconcile()
	}
}

// process applies one event: validate, advance the watermark, rotate the
// window when the watermark crossed its end, then fold the trade in.
func (a *Aggregator) process(ev TradeEvent) {
	tick, ok := a.cfg.TickSizes[ev.Symbol]
	if !ok {
		a.dropped.Add(1)
		a.logger.Debug("dropping trade for unknown symbol", zap.String("symbol", string(ev.Symbol)))
		return
	}
	if !ev.Size.IsPositive() {
		a.dropped.Add(1)
		a.logger.Debug("dropping trade with non-positive size",
			zap.String("symbol", string(ev.Symbol)), zap.String("size", ev.Size.String()))
		return
	}

	// The REST backfill and the live stream can hand us the same trade;
	// the exchange trade ID decides which copy counts.
	if ev.TradeID != "" {
		ids := a.seen[ev.Symbol]
		if ids == nil {
			ids = newRecentIDs(dedupDepth)
			a.seen[ev.Symbol] = ids
		}
		if ids.mark(ev.TradeID) {
			a.duplicates.Add(1)
			return
		}
	}

	// Each symbol carries its own watermark so a quiet feed is never rotated
	// by a faster one.
	wm := a.watermarks[ev.Symbol]
	if ev.ExchangeTS.After(wm) {
		wm = ev.ExchangeTS
		a.watermarks[ev.Symbol] = wm
	}

	p := a.profiles[ev.Symbol]
	if p == nil {
		start, end := a.cfg.Window.WindowFor(ev.ExchangeTS)
		p = NewVolumeProfile(ev.Symbol, tick, start, end, a.cfg.ValueAreaPct)
		a.profiles[ev.Symbol] = p
	}

	// Rotation is gated on the symbol's watermark, not on the event's own
	// timestamp: a late event never reopens a closed window, it folds into
	// the current one binned by price alone.
	if !wm.Before(p.WindowEnd) && !ev.ExchangeTS.Before(p.WindowEnd) {
		a.retire(p)
		start, end := a.cfg.Window.WindowFor(wm)
		p = NewVolumeProfile(ev.Symbol, tick, start, end, a.cfg.ValueAreaPct)
		a.profiles[ev.Symbol] = p
	}

	p.Apply(ev)
	a.dirty[ev.Symbol] = true
}

// retire finalizes a closed window: its last state is published so readers
// converge, and the immutable copy is handed to the archive channel.
func (a *Aggregator) retire(p *VolumeProfile) {
	snap := p.Snapshot(true)
	a.sink.Publish(snap)
	delete(a.dirty, p.Symbol)

	select {
	case a.finalized <- snap:
	default:
		a.logger.Warn("finalized channel full, dropping retired profile",
			zap.String("symbol", string(snap.Symbol)),
			zap.Time("window_start", snap.WindowStart))
	}

	a.logger.Info("window rotated",
		zap.String("symbol", string(snap.Symbol)),
		zap.Time("window_start", snap.WindowStart),
		zap.Time("window_end", snap.WindowEnd),
		zap.String("total_volume", snap.TotalVolume.String()),
		zap.Int64("trades", snap.TradeCount))
}

// maybePublish throttles snapshot publication: at most once per interval
// while events flow, plus immediately on an idle tick so a quiet feed still
// converges.
func (a *Aggregator) maybePublish(idle bool) {
	if len(a.dirty) == 0 {
		return
	}
	if !idle && time.Since(a.lastPublish) < a.cfg.PublishInterval {
		return
	}
	a.publishDirty()
}

func (a *Aggregator) publishDirty() {
	for symbol := range a.dirty {
		a.sink.Publish(a.profiles[symbol].Snapshot(false))
		delete(a.dirty, symbol)
	}
	a.lastPublish = time.Now()
}

// maybeReconcile periodically verifies the incremental totals against a
// full recomputation and repairs drift. With decimal accumulation this
// should never fire; it exists to make the invariant observable.
func (a *Aggregator) maybeReconcile() {
	if a.cfg.ReconcileInterval <= 0 {
		return
	}
	if time.Since(a.lastReconcile) < a.cfg.ReconcileInterval {
		return
	}
	a.lastReconcile = time.Now()

	for symbol, p := range a.profiles {
		if err := p.Reconcile(); err != nil {
			a.logger.Error("profile reconciliation repaired drift",
				zap.String("symbol", string(symbol)), zap.Error(err))
			a.dirty[symbol] = true
		}
	}
}

// recentIDs remembers the last n trade IDs in insertion order, evicting the
// oldest once full.
type recentIDs struct {
	ids  map[string]struct{}
	ring []string
	next int
}

func newRecentIDs(n int) *recentIDs {
	return &recentIDs{
		ids:  make(map[string]struct{}, n),
		ring: make([]string, n),
	}
}

// mark records id and reports whether it was already present.
func (r *recentIDs) mark(id string) bool {
	if _, ok := r.ids[id]; ok {
		return true
	}
	if old := r.ring[r.next]; old != "" {
		delete(r.ids, old)
	}
	r.ring[r.next] = id
	r.ids[id] = struct{}{}
	r.next = (r.next + 1) % len(r.ring)
	return false
}
