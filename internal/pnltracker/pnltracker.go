// Package pnltracker implements the per-asset P&L tracker with its
// probation/hibernation lifecycle (C10, §4.10).
package pnltracker

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/swarmtrader/internal/agent"
	"github.com/aristath/swarmtrader/internal/bus"
	"github.com/aristath/swarmtrader/internal/domain"
	"github.com/aristath/swarmtrader/internal/registry"
)

// Thresholds bundles the tracker's probation/hibernation knobs (§4.10, §6).
type Thresholds struct {
	ProbationTierOne         float64       // default -5.0
	ProbationTierTwo         float64       // default -10.0
	HibernationThreshold     float64       // default -15.0
	HibernationQualifyingDur time.Duration // default 90 * 24h
}

// Tracker is the C10 agent. Reactive only: no periodic Step.
type Tracker struct {
	agent.Base

	log        zerolog.Logger
	bus        *bus.Bus
	registry   *registry.Registry
	thresholds Thresholds

	mu      sync.Mutex
	records map[string]*domain.AssetRecord
}

// New constructs the P&L tracker, subscribing to trade-confirmations.
func New(ids *agent.IDAllocator, log zerolog.Logger, b *bus.Bus, reg *registry.Registry, t Thresholds) *Tracker {
	tr := &Tracker{
		Base:       agent.NewBase(ids, agent.KindPnLTracker),
		log:        log.With().Str("component", "pnl_tracker").Logger(),
		bus:        b,
		registry:   reg,
		thresholds: t,
		records:    make(map[string]*domain.AssetRecord),
	}
	b.Subscribe(domain.TopicTradeConfirmations, tr.handleConfirmation)
	return tr
}

func (tr *Tracker) handleConfirmation(payload any) {
	conf, ok := payload.(domain.TradeConfirmation)
	if !ok {
		return
	}
	// Only completed round trips carry a nonzero realized P&L (§4.8); the
	// opening leg of a position is not yet "a recorded trade" for §4.10.
	if conf.ExitPrice == 0 {
		return
	}
	tr.recordTrade(conf.Pair, conf.RealizedPnLPct, float64(time.Now().Unix()))
}

// recordTrade implements §4.10 steps 1-5 for one closed trade on pair.
func (tr *Tracker) recordTrade(pair string, pnlPct float64, now float64) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	rec, ok := tr.records[pair]
	if !ok {
		rec = &domain.AssetRecord{Pair: pair, PositionSizeMultiplier: 1.0, FirstTradeTS: now}
		tr.records[pair] = rec
	}

	rec.CumulativePnL += pnlPct
	rec.TradeCount++
	if pnlPct >= 0 {
		rec.WinCount++
	} else {
		rec.LossCount++
	}
	rec.LastTradeTS = now
	if rec.CumulativePnL < rec.WorstDrawdown {
		rec.WorstDrawdown = rec.CumulativePnL
	}

	previousLevel := rec.ProbationLevel
	var newLevel domain.ProbationLevel
	switch {
	case rec.CumulativePnL >= tr.thresholds.ProbationTierOne:
		newLevel = domain.ProbationNone
	case rec.CumulativePnL >= tr.thresholds.ProbationTierTwo:
		newLevel = domain.ProbationOne
	default:
		newLevel = domain.ProbationTwo
	}
	rec.ProbationLevel = newLevel
	rec.PositionSizeMultiplier = domain.PositionSizeMultiplier(newLevel)

	if previousLevel == domain.ProbationNone && newLevel != domain.ProbationNone {
		ts := now
		rec.ProbationStartTS = &ts
	} else if previousLevel != domain.ProbationNone && newLevel == domain.ProbationNone {
		rec.ProbationStartTS = nil
	}

	if rec.CumulativePnL < tr.thresholds.HibernationThreshold && rec.ProbationStartTS != nil {
		elapsed := time.Duration(now-*rec.ProbationStartTS) * time.Second
		if elapsed >= tr.thresholds.HibernationQualifyingDur {
			tr.hibernate(rec, now)
		}
	}
}

func (tr *Tracker) hibernate(rec *domain.AssetRecord, now float64) {
	tr.registry.Remove(rec.Pair)
	probationDays := 0.0
	if rec.ProbationStartTS != nil {
		probationDays = (now - *rec.ProbationStartTS) / 86400
	}
	tr.log.Warn().Str("pair", rec.Pair).Float64("final_pnl", rec.CumulativePnL).Msg("pair hibernated")
	tr.bus.Publish(domain.TopicSystemHibernation, domain.HibernationNotice{
		Pair:          rec.Pair,
		Reason:        "sustained loss below hibernation threshold",
		FinalPnL:      rec.CumulativePnL,
		ProbationDays: probationDays,
		Timestamp:     now,
	})
}

// Record returns a copy of the asset record for pair, for observability and
// tests.
func (tr *Tracker) Record(pair string) (domain.AssetRecord, bool) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	rec, ok := tr.records[pair]
	if !ok {
		return domain.AssetRecord{}, false
	}
	return *rec, true
}
