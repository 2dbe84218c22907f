package archive

import (
	"context"
	"time"

	"vpcollector/internal/okx/profile"
	"vpcollector/pkg/storage/postgres"

	"go.uber.org/zap"
)

// Writer persists finalized window profiles emitted by the aggregator.
// With a nil client it only logs rotations, so running without a database
// stays supported.
type Writer struct {
	client *postgres.PostgresClient
	logger *zap.Logger
}

func NewWriter(client *postgres.PostgresClient, logger *zap.Logger) *Writer {
	return &Writer{client: client, logger: logger}
}

// Run drains the finalized channel until it closes or ctx is cancelled.
func (w *Writer) Run(ctx context.Context, in <-chan *profile.Snapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-in:
			if !ok {
				return
			}
			w.persist(snap)
		}
	}
}

func (w *Writer) persist(snap *profile.Snapshot) {
	if w.client == nil {
		w.logger.Info("profile retired (archive disabled)",
			zap.String("symbol", string(snap.Symbol)),
			zap.Time("window_start", snap.WindowStart),
			zap.String("total_volume", snap.TotalVolume.String()))
		return
	}

	record, err := postgres.ToProfileRecord(snap)
	if err != nil {
		w.logger.Warn("failed to convert profile to record",
			zap.String("symbol", string(snap.Symbol)), zap.Error(err))
		return
	}

	// context for DB insert (short timeout)
	dbCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := w.client.InsertProfile(dbCtx, record); err != nil {
		w.logger.Warn("failed to insert profile record",
			zap.String("symbol", string(snap.Symbol)), zap.Error(err))
		return
	}

	w.logger.Info("profile archived",
		zap.String("symbol", string(snap.Symbol)),
		zap.Time("window_start", snap.WindowStart),
		zap.Time("window_end", snap.WindowEnd),
		zap.Int64("trades", snap.TradeCount))
}
