package di

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/swarmtrader/internal/database"
	"github.com/aristath/swarmtrader/internal/domain"
	"github.com/aristath/swarmtrader/internal/sharedstate"
)

// tradeLogger persists every closed trade confirmation as a durable Trade
// row, independent of the P&L tracker's in-memory lifecycle bookkeeping
// (§3: "single writer in practice... trade-logger on confirmation
// handling").
type tradeLogger struct {
	log  zerolog.Logger
	repo *database.TradeRepository
}

func newTradeLogger(log zerolog.Logger, repo *database.TradeRepository) *tradeLogger {
	return &tradeLogger{log: log.With().Str("component", "trade_logger").Logger(), repo: repo}
}

func (t *tradeLogger) handle(payload any) {
	conf, ok := payload.(domain.TradeConfirmation)
	if !ok || conf.ExitPrice == 0 {
		return
	}

	result := domain.ResultLoss
	if conf.RealizedPnLPct > 0 {
		result = domain.ResultWin
	}

	row := domain.Trade{
		TradeID:           uuid.NewString(),
		Pair:              conf.Pair,
		StrategyType:      "synthesized",
		AgentID:           0, // the synthesized stream has no single owning agent
		EntryTS:           conf.Timestamp,
		ExitTS:            conf.Timestamp,
		EntryPrice:        conf.EntryPrice,
		ExitPrice:         conf.ExitPrice,
		PriceChangePct:    conf.RealizedPnLPct,
		PnLPct:            conf.RealizedPnLPct,
		PnLAbsolute:       conf.Amount * conf.EntryPrice * conf.RealizedPnLPct / 100,
		Result:            result,
		SignalSource:      "collision",
		CollisionDetected: true,
		PositionSize:      conf.Amount,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := t.repo.Insert(ctx, row); err != nil {
		t.log.Error().Err(err).Str("pair", conf.Pair).Msg("failed to persist trade")
	}
}

// newContagionCheck builds the scheduler's optional policy-contagion
// heuristic (§4.3, Open Question resolved in DESIGN.md): it scans every
// policy:* record, buckets by the sign of the strategy vector's momentum
// component, and reports whether either direction's share of a
// sufficiently large sample crosses threshold.
func newContagionCheck(state *sharedstate.Map, threshold float64) func() (bool, float64) {
	const minSample = 5

	return func() (bool, float64) {
		keys := state.KeysByPrefix(domain.PolicyKeyPrefix)
		if len(keys) < minSample {
			return false, 0
		}

		var positive, negative int
		for _, key := range keys {
			var rec domain.PolicyRecord
			ok, err := state.GetJSON(key, &rec)
			if err != nil || !ok {
				continue
			}
			mom := rec.StrategyVector[2]
			switch {
			case mom > 0:
				positive++
			case mom < 0:
				negative++
			}
		}

		total := positive + negative
		if total < minSample {
			return false, 0
		}

		fraction := float64(positive) / float64(total)
		if negative > positive {
			fraction = float64(negative) / float64(total)
		}

		return fraction >= threshold, fraction
	}
}
