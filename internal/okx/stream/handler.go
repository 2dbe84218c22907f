package stream

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"vpcollector/internal/okx/ingest"
	"vpcollector/internal/okx/profile"
	"vpcollector/internal/okx/rawstore"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MakeMessageHandler returns a function that handles incoming WebSocket
// frames: classifies them, parses trade payloads and pushes the resulting
// events into the ingest queue. raw may be nil when archival is disabled.
func MakeMessageHandler(logger *zap.Logger, queue *ingest.Queue, raw *rawstore.Store) func(msg []byte) {
	return func(msg []byte) {
		// Step 1: classify the frame before paying for a full parse
		var env Envelope
		switch Classify(msg, &env) {
		case KindHeartbeat:
			return
		case KindError:
			logger.Warn("feed error event", zap.String("code", env.Code), zap.String("msg", env.Msg))
			return
		case KindEvent:
			logger.Info("feed event",
				zap.String("event", env.Event),
				zap.String("channel", env.Arg.Channel),
				zap.String("instId", env.Arg.InstID))
			return
		case KindOther:
			return
		}

		// Step 2: archive the raw frame before any lossy processing
		if raw != nil {
			if err := raw.Append(env.Arg.Channel, env.Arg.InstID, msg); err != nil {
				logger.Warn("failed to archive raw frame", zap.Error(err))
			}
		}

		// Step 3: parse the trade payload and feed the queue
		var trades []Trade
		if err := json.Unmarshal(env.Data, &trades); err != nil {
			logger.Warn("failed to parse trades payload", zap.Error(err))
			return
		}

		recvAt := time.Now()
		for _, t := range trades {
			ev, err := ParseTrade(t, recvAt)
			if err != nil {
				logger.Warn("dropping malformed trade",
					zap.String("instId", t.InstID), zap.Error(err))
				continue
			}
			queue.Push(ev)
		}
	}
}

// ParseTrade converts one wire trade into a TradeEvent. Shared by the live
// stream handler and the REST backfill path.
func ParseTrade(t Trade, recvAt time.Time) (profile.TradeEvent, error) {
	px, err := decimal.NewFromString(t.Px)
	if err != nil {
		return profile.TradeEvent{}, fmt.Errorf("bad px %q: %w", t.Px, err)
	}
	sz, err := decimal.NewFromString(t.Sz)
	if err != nil {
		return profile.TradeEvent{}, fmt.Errorf("bad sz %q: %w", t.Sz, err)
	}
	ms, err := strconv.ParseInt(t.Ts, 10, 64)
	if err != nil {
		return profile.TradeEvent{}, fmt.Errorf("bad ts %q: %w", t.Ts, err)
	}

	side := profile.Side(t.Side)
	if side != profile.SideBuy && side != profile.SideSell {
		return profile.TradeEvent{}, fmt.Errorf("bad side %q", t.Side)
	}

	return profile.TradeEvent{
		Symbol:     profile.Symbol(t.InstID),
		Price:      px,
		Size:       sz,
		Side:       side,
		TradeID:    t.TradeID,
		ExchangeTS: time.UnixMilli(ms),
		ReceivedTS: recvAt,
	}, nil
}
