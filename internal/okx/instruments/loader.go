package instruments

import (
	"context"

	"vpcollector/config"
	"vpcollector/pkg/okx"

	"go.uber.org/zap"
)

// Loader fetches spot instrument metadata from the exchange and streams the
// entries for configured instruments into a channel.
type Loader struct {
	Cfg        *config.Config
	RestClient *okx.RESTClient
	Logger     *zap.Logger
}

// Load fetches instrument metadata and streams matching entries into ch.
// The channel is always closed, so downstream consumers can exit cleanly.
func (l *Loader) Load(ch chan<- okx.InstrumentInfo) error {
	defer close(ch)

	ctx, cancel := context.WithTimeout(context.Background(), l.Cfg.OKX.REST.Timeout)
	defer cancel()

	infos, err := l.RestClient.GetInstruments(ctx, okx.InstTypeSpot)
	if err != nil {
		l.Logger.Error("failed to load instrument metadata", zap.Error(err))
		return err
	}

	wanted := make(map[string]bool, len(l.Cfg.Profile.Instruments))
	for _, instID := range l.Cfg.Profile.Instruments {
		wanted[instID] = true
	}

	loaded := 0
	for _, info := range infos {
		if !wanted[info.InstID] {
			continue
		}
		select {
		case ch <- info:
			loaded++
		case <-ctx.Done():
			l.Logger.Warn("instrument streaming interrupted", zap.Error(ctx.Err()))
			return ctx.Err()
		}
	}
	l.Logger.Info("loaded instrument metadata", zap.Int("count", loaded))

	return nil
}
