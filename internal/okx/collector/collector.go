package collector

import (
	"context"
	"fmt"
	"time"

	"vpcollector/config"
	"vpcollector/internal/okx/archive"
	"vpcollector/internal/okx/ingest"
	"vpcollector/internal/okx/instruments"
	"vpcollector/internal/okx/memorystore"
	"vpcollector/internal/okx/profile"
	"vpcollector/internal/okx/rawstore"
	"vpcollector/internal/okx/stream"
	"vpcollector/pkg/okx"
	"vpcollector/pkg/storage/postgres"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// StartCollector initializes the data pipeline for OKX spot trades.
// It loads instrument tick sizes via REST, backfills recent trades, sets up
// the WebSocket trades stream, and runs the volume-profile aggregation with
// snapshot publication and window archival. It returns once all workers are
// started; ctx cancellation winds everything down.
func StartCollector(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {

	// Initialize PostgreSQL client for window archival (optional)
	var postgresClient *postgres.PostgresClient
	if cfg.Postgres.Enabled {
		client, err := postgres.InitializeAndMigrateProfileRecord(cfg.Postgres, cfg.Log.Environment, true)
		if err != nil {
			return fmt.Errorf("failed to connect to DB: %w", err)
		}
		postgresClient = client
	}

	restClient := okx.NewRESTClient(cfg.OKX.REST.BaseURL, cfg.OKX.REST.Timeout)

	// Load instrument metadata (tick sizes) before subscribing
	instStore := instruments.NewStore()
	infoCh := make(chan okx.InstrumentInfo, 100)
	loader := &instruments.Loader{Cfg: cfg, RestClient: restClient, Logger: logger}
	go func() {
		if err := loader.Load(infoCh); err != nil {
			logger.Warn("instrument metadata unavailable, using static tick sizes", zap.Error(err))
		}
	}()
	instStore.Consume(infoCh)

	tickSizes, err := resolveTickSizes(cfg, instStore, logger)
	if err != nil {
		return err
	}

	windowPolicy, err := profile.ParseWindowPolicy(cfg.Profile.WindowPolicy)
	if err != nil {
		return err
	}
	if windowPolicy == profile.WindowRolling && cfg.Profile.WindowDuration <= 0 {
		return fmt.Errorf("rolling window requires a positive window_duration")
	}
	if cfg.Profile.ValueAreaPct <= 0 || cfg.Profile.ValueAreaPct > 1 {
		return fmt.Errorf("value_area_pct must be in (0,1], got %v", cfg.Profile.ValueAreaPct)
	}

	// Ingestion queue and snapshot store connect the feed, the aggregator
	// and any reader
	queue := ingest.NewQueue(cfg.Profile.QueueCapacity)
	snapshots := memorystore.NewSnapshotStore()

	aggregator := profile.NewAggregator(profile.AggregatorConfig{
		TickSizes:         tickSizes,
		ValueAreaPct:      decimal.NewFromFloat(cfg.Profile.ValueAreaPct),
		Window:            profile.WindowConfig{Policy: windowPolicy, Duration: cfg.Profile.WindowDuration},
		BatchSize:         cfg.Profile.BatchSize,
		PopTimeout:        cfg.Profile.PopTimeout,
		PublishInterval:   cfg.Profile.PublishInterval,
		ReconcileInterval: cfg.Profile.ReconcileInterval,
	}, queue, snapshots, logger)
	go aggregator.Run(ctx)

	// Archive retired windows
	go archive.NewWriter(postgresClient, logger).Run(ctx, aggregator.Finalized())

	// Optional raw frame archival
	var raw *rawstore.Store
	if cfg.Raw.Enabled {
		raw, err = rawstore.NewStore(cfg.Raw.Dir, cfg.Raw.RetentionDays)
		if err != nil {
			return fmt.Errorf("failed to init raw store: %w", err)
		}
	}

	// Warm the profiles from REST; this blocks until the fetches complete so
	// the live stream attaches afterwards
	if cfg.Profile.BackfillLimit > 0 {
		backfillRecentTrades(ctx, cfg, restClient, queue, logger)
	}

	// Initialize WebSocket client and attach the stream handler
	wsClient := okx.NewWSClient(cfg.OKX.WS.URL, cfg.Profile.Instruments, logger)
	wsClient.SetMessageHandler(stream.MakeMessageHandler(logger, queue, raw))

	if err := wsClient.Connect(); err != nil {
		return err
	}
	go wsClient.Listen(ctx) // explicitly start listener

	// Periodically report pipeline state for visibility
	go reportLoop(ctx, cfg, queue, aggregator, snapshots, logger)

	return nil
}

// resolveTickSizes merges, per configured instrument: config override, then
// exchange metadata, then the static fallback table.
func resolveTickSizes(cfg *config.Config, instStore *instruments.Store, logger *zap.Logger) (map[profile.Symbol]decimal.Decimal, error) {
	tickSizes := make(map[profile.Symbol]decimal.Decimal, len(cfg.Profile.Instruments))

	for _, instID := range cfg.Profile.Instruments {
		symbol := profile.Symbol(instID)

		if override, ok := cfg.Profile.TickSizes[instID]; ok {
			tick, err := decimal.NewFromString(override)
			if err != nil || !tick.IsPositive() {
				return nil, fmt.Errorf("invalid tick size override for %s: %q", instID, override)
			}
			tickSizes[symbol] = tick
			continue
		}

		if tick, ok := instStore.TickSize(symbol); ok {
			tickSizes[symbol] = tick
			continue
		}

		meta, err := okx.LookupInstrument(instID)
		if err != nil {
			logger.Warn("no tick size available, skipping instrument", zap.String("instId", instID))
			continue
		}
		tick, err := decimal.NewFromString(meta.DefaultTickSize)
		if err != nil {
			return nil, fmt.Errorf("bad fallback tick size for %s: %w", instID, err)
		}
		tickSizes[symbol] = tick
	}

	if len(tickSizes) == 0 {
		return nil, fmt.Errorf("no usable instruments configured")
	}
	return tickSizes, nil
}

// backfillRecentTrades seeds the queue from the REST recent-trades endpoint
// so the first snapshots are not empty. It returns only after every fetch
// finished, so the caller can attach the live stream afterwards; trades the
// stream replays anyway are deduplicated by ID in the aggregator.
func backfillRecentTrades(ctx context.Context, cfg *config.Config, restClient *okx.RESTClient,
	queue *ingest.Queue, logger *zap.Logger) {

	sem := make(chan struct{}, 2) // bound concurrent REST fetches
	for _, instID := range cfg.Profile.Instruments {
		instID := instID // capture
		sem <- struct{}{}

		go func() {
			defer func() { <-sem }()

			reqCtx, cancel := context.WithTimeout(ctx, cfg.OKX.REST.Timeout)
			trades, err := restClient.GetRecentTrades(reqCtx, instID, cfg.Profile.BackfillLimit)
			cancel()
			if err != nil {
				logger.Warn("failed to backfill recent trades",
					zap.String("instId", instID), zap.Error(err))
				return
			}

			// The endpoint returns newest first; push oldest first to keep
			// FIFO arrival order sane
			recvAt := time.Now()
			pushed := 0
			for i := len(trades) - 1; i >= 0; i-- {
				ev, err := stream.ParseTrade(trades[i], recvAt)
				if err != nil {
					continue
				}
				queue.Push(ev)
				pushed++
			}
			logger.Info("backfilled recent trades",
				zap.String("instId", instID), zap.Int("count", pushed))
		}()
	}

	// Wait for in-flight fetches before handing control back
	for i := 0; i < cap(sem); i++ {
		sem <- struct{}{}
	}
}

// reportLoop logs per-symbol profile state and pipeline counters on a fixed
// cadence.
func reportLoop(ctx context.Context, cfg *config.Config, queue *ingest.Queue,
	aggregator *profile.Aggregator, snapshots *memorystore.SnapshotStore, logger *zap.Logger) {

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for _, instID := range cfg.Profile.Instruments {
			snap := snapshots.Latest(profile.Symbol(instID))
			if snap == nil {
				continue
			}
			logger.Info("current profile",
				zap.String("symbol", instID),
				zap.String("poc", snap.PointOfControl.String()),
				zap.String("value_area_low", snap.ValueAreaLow.String()),
				zap.String("value_area_high", snap.ValueAreaHigh.String()),
				zap.String("total_volume", snap.TotalVolume.String()),
				zap.Int("bins", len(snap.Bins)),
				zap.Int64("trades", snap.TradeCount))
		}

		logger.Info("pipeline counters",
			zap.Int("queue_len", queue.Len()),
			zap.Uint64("queue_overflow", queue.Overflow()),
			zap.Uint64("dropped_malformed", aggregator.Dropped()),
			zap.Uint64("dropped_duplicate", aggregator.Duplicates()),
			zap.Any("dominance", snapshots.Dominance()))
	}
}
