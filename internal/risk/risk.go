// Package risk implements the risk-manager circuit breaker (C9, §4.9).
package risk

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/aristath/swarmtrader/internal/agent"
	"github.com/aristath/swarmtrader/internal/bus"
	"github.com/aristath/swarmtrader/internal/domain"
)

// Manager tracks portfolio drawdown from realized P&L on trade
// confirmations and issues a one-way system-wide halt on breach (§4.9).
//
// The specification notes the source never actually mutates
// current_portfolio_value on confirmation (§9 Open Questions); this
// implementation resolves that by accounting each confirmation's realized
// P&L against the position's notional value (amount * entry_price), which
// is the only accounting rule that keeps the drawdown computation honest
// without inventing data the confirmation doesn't carry.
type Manager struct {
	agent.Base

	log zerolog.Logger
	bus *bus.Bus

	mu                    sync.Mutex
	initialPortfolioValue float64
	currentPortfolioValue float64
	peakPortfolioValue    float64
	maxDrawdown           float64
	isHalted              bool
}

// New constructs the risk manager with the given starting capital and
// drawdown limit, subscribing to trade-confirmations immediately.
func New(ids *agent.IDAllocator, log zerolog.Logger, b *bus.Bus, initialPortfolioValue, maxDrawdown float64) *Manager {
	m := &Manager{
		Base:                  agent.NewBase(ids, agent.KindRiskManager),
		log:                   log.With().Str("component", "risk").Logger(),
		bus:                   b,
		initialPortfolioValue: initialPortfolioValue,
		currentPortfolioValue: initialPortfolioValue,
		peakPortfolioValue:    initialPortfolioValue,
		maxDrawdown:           maxDrawdown,
	}
	b.Subscribe(domain.TopicTradeConfirmations, m.handleConfirmation)
	return m
}

func (m *Manager) handleConfirmation(payload any) {
	conf, ok := payload.(domain.TradeConfirmation)
	if !ok {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isHalted {
		return
	}

	notional := conf.Amount * conf.EntryPrice
	m.currentPortfolioValue += notional * (conf.RealizedPnLPct / 100)

	if m.currentPortfolioValue > m.peakPortfolioValue {
		m.peakPortfolioValue = m.currentPortfolioValue
	}

	var drawdown float64
	if m.peakPortfolioValue > 0 {
		drawdown = (m.peakPortfolioValue - m.currentPortfolioValue) / m.peakPortfolioValue
	}

	if drawdown > m.maxDrawdown {
		m.isHalted = true
		m.log.Warn().Float64("drawdown", drawdown).Msg("max drawdown breached, halting trading")
		m.bus.Publish(domain.TopicSystemControl, domain.SystemControl{
			Command: domain.CommandHaltTrading,
			Reason:  "max drawdown breached",
			Source:  m.Name(),
		})
	}
}

// IsHalted reports the circuit breaker's one-way halt state (§4.9).
func (m *Manager) IsHalted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isHalted
}

// Drawdown returns the current drawdown fraction, for observability.
func (m *Manager) Drawdown() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.peakPortfolioValue == 0 {
		return 0
	}
	return (m.peakPortfolioValue - m.currentPortfolioValue) / m.peakPortfolioValue
}
