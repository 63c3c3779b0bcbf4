// Package synth implements the signal-collision synthesizer/trader (C8,
// §4.8): the only place an order is ever placed. It consumes both idea
// streams and executes a trade exclusively when independently-sourced
// same-direction ideas collide within a short temporal window.
package synth

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/swarmtrader/internal/agent"
	"github.com/aristath/swarmtrader/internal/bus"
	"github.com/aristath/swarmtrader/internal/domain"
	"github.com/aristath/swarmtrader/internal/exchange"
)

type slot struct {
	direction domain.Direction
	timestamp time.Time
	idea      domain.TradeIdea
}

// Synthesizer is the C8 agent. It has no periodic Step: every action is
// reactive to an incoming trade idea (§4.8).
type Synthesizer struct {
	agent.Base

	log       zerolog.Logger
	bus       *bus.Bus
	connector exchange.Connector

	collisionWindow  time.Duration
	roundTripCostPct float64

	mu             sync.Mutex
	recentBaseline map[string]*slot
	recentMycelial map[string]*slot
	positions      map[domain.Stream]map[string]domain.PositionState
	cumPnL         map[domain.Stream]float64
	tradeCount     map[domain.Stream]int
	halted         bool
}

// New constructs the synthesizer and subscribes to the global
// mycelial-trade-ideas channel and system-control. Per-pair baseline
// channels are subscribed via Watch as pairs become active (§3's two
// candidate baseline topics are normalized to the parameterized form,
// §9 Open Questions).
func New(ids *agent.IDAllocator, log zerolog.Logger, b *bus.Bus, connector exchange.Connector, collisionWindow time.Duration, roundTripCostPct float64) *Synthesizer {
	if collisionWindow <= 0 {
		collisionWindow = 5 * time.Second
	}
	s := &Synthesizer{
		Base:             agent.NewBase(ids, agent.KindSynthesizer),
		log:              log.With().Str("component", "synthesizer").Logger(),
		bus:              b,
		connector:        connector,
		collisionWindow:  collisionWindow,
		roundTripCostPct: roundTripCostPct,
		recentBaseline:   make(map[string]*slot),
		recentMycelial:   make(map[string]*slot),
		positions: map[domain.Stream]map[string]domain.PositionState{
			domain.StreamBaseline:    make(map[string]domain.PositionState),
			domain.StreamMycelial:    make(map[string]domain.PositionState),
			domain.StreamSynthesized: make(map[string]domain.PositionState),
		},
		cumPnL:     make(map[domain.Stream]float64),
		tradeCount: make(map[domain.Stream]int),
	}
	b.Subscribe(domain.TopicMycelialTradeIdeas, func(p any) { s.onIdea(domain.StreamMycelial, p) })
	b.Subscribe(domain.TopicSystemControl, s.handleSystemControl)
	return s
}

// Watch subscribes the synthesizer to a pair's baseline-idea channel; call
// once per pair when it becomes active (initial set, or a builder
// deployment, §4.11).
func (s *Synthesizer) Watch(pair string) {
	s.bus.Subscribe(domain.BaselineTradeIdeasTopic(pair), func(p any) { s.onIdea(domain.StreamBaseline, p) })
}

func (s *Synthesizer) handleSystemControl(payload any) {
	sc, ok := payload.(domain.SystemControl)
	if !ok {
		return
	}
	if sc.Command == domain.CommandHaltTrading {
		s.mu.Lock()
		s.halted = true
		s.mu.Unlock()
	}
}

func (s *Synthesizer) onIdea(stream domain.Stream, payload any) {
	idea, ok := payload.(domain.TradeIdea)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	newSlot := &slot{direction: idea.Direction, timestamp: now, idea: idea}
	if stream == domain.StreamBaseline {
		s.recentBaseline[idea.Pair] = newSlot
	} else {
		s.recentMycelial[idea.Pair] = newSlot
	}

	s.applyPositionUpdate(stream, idea.Pair, idea.Direction, idea.CurrentPrice)
	s.checkCollision(idea.Pair, now)
}

// applyPositionUpdate implements the open/close position semantics shared
// by all three streams (§4.8): buy opens (replacing any existing position),
// sell closes and realizes P&L net of the round-trip cost, sell with no
// open position is a no-op (§7 InvariantViolation, logged not errored).
func (s *Synthesizer) applyPositionUpdate(stream domain.Stream, pair string, direction domain.Direction, price float64) (netPct float64, closed bool) {
	positions := s.positions[stream]
	switch direction {
	case domain.Buy:
		positions[pair] = domain.PositionState{EntryPrice: price, Direction: domain.Buy}
		return 0, false
	case domain.Sell:
		pos, open := positions[pair]
		if !open {
			s.log.Debug().Str("pair", pair).Str("stream", string(stream)).Msg("sell with no open position, ignored")
			return 0, false
		}
		rawPct := (price - pos.EntryPrice) / pos.EntryPrice * 100
		netPct = rawPct - s.roundTripCostPct
		delete(positions, pair)
		s.cumPnL[stream] += netPct
		s.tradeCount[stream]++
		return netPct, true
	}
	return 0, false
}

// checkCollision implements step 3 of §4.8. Caller already holds s.mu.
func (s *Synthesizer) checkCollision(pair string, now time.Time) {
	b := s.recentBaseline[pair]
	m := s.recentMycelial[pair]
	if b == nil || m == nil {
		return
	}

	diff := b.timestamp.Sub(m.timestamp)
	if diff < 0 {
		diff = -diff
	}
	if diff > s.collisionWindow {
		return
	}

	if b.direction != m.direction {
		s.log.Info().Str("pair", pair).Msg("conflict: baseline and mycelial disagree on direction")
		return
	}

	if s.halted {
		return
	}

	direction := b.direction
	price := m.idea.CurrentPrice
	entryPrice := price
	if pos, open := s.positions[domain.StreamSynthesized][pair]; open && direction == domain.Sell {
		entryPrice = pos.EntryPrice
	}
	netPct, closed := s.applyPositionUpdate(domain.StreamSynthesized, pair, direction, price)

	ctx := context.Background()
	result, err := s.connector.PlaceOrder(ctx, pair, domain.OrderMarket, direction, 0.001, price)
	if err != nil {
		s.log.Warn().Err(err).Str("pair", pair).Msg("order placement failed")
	}

	entry := domain.SynthesizedLogEntry{
		Pair:              pair,
		Direction:         direction,
		EntryPrice:        price,
		Timestamp:         float64(now.Unix()),
		BaselineCumPnL:    s.cumPnL[domain.StreamBaseline],
		MycelialCumPnL:    s.cumPnL[domain.StreamMycelial],
		SynthesizedCumPnL: s.cumPnL[domain.StreamSynthesized],
		BaselineTrades:    s.tradeCount[domain.StreamBaseline],
		MycelialTrades:    s.tradeCount[domain.StreamMycelial],
		SynthesizedTrades: s.tradeCount[domain.StreamSynthesized],
	}
	s.bus.Publish(domain.TopicSynthesizedTradeLog, entry)

	confirmation := domain.TradeConfirmation{
		Pair:      pair,
		Direction: direction,
		Amount:    0.001,
		EntryPrice: entryPrice,
		Timestamp: float64(now.Unix()),
	}
	if closed {
		confirmation.ExitPrice = price
		confirmation.RealizedPnLPct = netPct
	}
	if result.Status != "" {
		s.bus.Publish(domain.TopicTradeConfirmations, confirmation)
	}

	delete(s.recentBaseline, pair)
	delete(s.recentMycelial, pair)
}

// CumulativePnL exposes a stream's running total, used by tests asserting
// §8 property 8 (cost accounting) without reaching into private state.
func (s *Synthesizer) CumulativePnL(stream domain.Stream) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cumPnL[stream]
}

// TradeCount exposes a stream's executed-trade count.
func (s *Synthesizer) TradeCount(stream domain.Stream) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tradeCount[stream]
}
