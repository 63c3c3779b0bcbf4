// Package learner implements the pattern-learner swarm signal producer
// (C7, §4.7): a large population of parameterized agents, each maintaining
// a belief-state vector in shared state and opportunistically proposing a
// "mycelial" trade idea.
package learner

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/swarmtrader/internal/agent"
	"github.com/aristath/swarmtrader/internal/bus"
	"github.com/aristath/swarmtrader/internal/domain"
	"github.com/aristath/swarmtrader/internal/sharedstate"
)

const tradeHistoryCapacity = 100

type positionState int

const (
	flat positionState = iota
	long
)

// Agent is one pattern-learner instance. All instances deployed for a pair
// target that pair's trade ideas regardless of which data channel they
// observe (§4.11: the Builder deploys fifteen pattern-learners "all
// targeting that pair").
type Agent struct {
	agent.Base

	log   zerolog.Logger
	bus   *bus.Bus
	state *sharedstate.Map

	pair          string
	productFocus  string
	rsiThreshold  float64
	atrMultiplier float64
	parentID      *uint64
	generation    int
	birthTS       float64

	position   positionState
	entryPrice float64

	tradeCount int
	totalPnL   float64
	history    []float64 // last N realized pct, bounded

	tradingHalted bool
}

// Params bundles a pattern-learner's construction-time parameters (§4.7).
type Params struct {
	Pair         string
	ProductFocus string // Finance, Code, Logistics, Government, Corporations
	Channel      string // bus topic this instance subscribes to
	ParentID     *uint64
	Generation   int
}

// New constructs a pattern-learner, randomizing rsi_threshold (±5 around a
// nominal 70) and atr_multiplier (×0.8-1.2), and subscribing to both its
// assigned data channel and system-control (§4.7).
func New(ids *agent.IDAllocator, log zerolog.Logger, b *bus.Bus, state *sharedstate.Map, p Params) *Agent {
	base := agent.NewBase(ids, agent.KindPatternLearner)
	a := &Agent{
		Base:          base,
		log:           log.With().Str("component", "learner").Str("agent", base.Name()).Str("pair", p.Pair).Logger(),
		bus:           b,
		state:         state,
		pair:          p.Pair,
		productFocus:  p.ProductFocus,
		rsiThreshold:  70 + (rand.Float64()*10 - 5),
		atrMultiplier: 0.8 + rand.Float64()*0.4,
		parentID:      p.ParentID,
		generation:    p.Generation,
		birthTS:       float64(time.Now().Unix()),
	}
	b.Subscribe(p.Channel, a.handleFrame)
	b.Subscribe(domain.TopicSystemControl, a.handleSystemControl)
	return a
}

func (a *Agent) handleSystemControl(payload any) {
	sc, ok := payload.(domain.SystemControl)
	if !ok {
		return
	}
	if sc.Command == domain.CommandHaltTrading {
		a.tradingHalted = true
	}
}

func (a *Agent) handleFrame(payload any) {
	if a.tradingHalted {
		return
	}
	ff, ok := payload.(domain.FeatureFrame)
	if !ok {
		return
	}

	mom, _ := ff.Feature("MOM")
	atr, _ := ff.Feature("ATR")
	rsi, rsiOK := ff.Feature("RSI")
	if !rsiOK {
		rsi = 50
	}
	close, _ := ff.Feature("close")

	predictionScore := clip(0.5+2*math.Abs(mom)-0.05*atr, 0.1, 0.9)
	strategyVector := [4]float64{a.rsiThreshold, a.atrMultiplier, mom, 100 - 2*math.Abs(50-rsi)}

	a.writePolicy(predictionScore, strategyVector, close)

	if atr > 10 && rsi > 45 && rsi < 55 {
		a.bus.Publish(domain.TopicSystemBuildRequest, domain.BuildRequest{
			ToolNeeded: fmt.Sprintf("choppy-regime-tool:%s", ff.Target),
			Reason:     "ATR>10 with RSI in the 45-55 dead zone",
			Source:     a.Name(),
		})
	}

	switch a.position {
	case flat:
		if predictionScore > 0.8 && rsi < 30 && mom > 0 {
			a.openLong(close, predictionScore)
		}
	case long:
		if rsi > a.rsiThreshold {
			a.closeLong(close, predictionScore)
		}
	}
}

func (a *Agent) writePolicy(predictionScore float64, strategyVector [4]float64, close float64) {
	ageMinutes := (float64(time.Now().Unix()) - a.birthTS) / 60
	decay := domain.DecayFactor(ageMinutes)
	record := domain.PolicyRecord{
		PredictionScore:     predictionScore,
		StrategyVector:      strategyVector,
		ClosePrice:          close,
		ParentID:            a.parentID,
		Generation:          a.generation,
		BirthTimestamp:      a.birthTS,
		AgentID:             a.ID(),
		ProductFocus:        a.productFocus,
		PatternAgeMinutes:   ageMinutes,
		PatternDecayFactor:  decay,
		PatternCurrentValue: domain.CurrentValue(predictionScore, decay),
	}
	if err := a.state.SetJSON(domain.PolicyKey(a.Name()), record); err != nil {
		a.log.Warn().Err(err).Msg("failed to write policy record")
	}
}

func (a *Agent) openLong(price, predictionScore float64) {
	a.position = long
	a.entryPrice = price
	a.tradeCount++
	a.emit(domain.Buy, price, predictionScore, 0)
}

func (a *Agent) closeLong(price, predictionScore float64) {
	realized := (price - a.entryPrice) / a.entryPrice * 100
	a.totalPnL += realized
	a.history = append(a.history, realized)
	if len(a.history) > tradeHistoryCapacity {
		a.history = a.history[len(a.history)-tradeHistoryCapacity:]
	}
	a.position = flat
	a.entryPrice = 0
	a.emit(domain.Sell, price, predictionScore, realized)
}

func (a *Agent) winRate() float64 {
	if len(a.history) == 0 {
		return 0
	}
	wins := 0
	for _, pct := range a.history {
		if pct > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(a.history))
}

// emit publishes a mycelial trade idea unless the loss-suppression rule
// applies (§4.7: never publish a losing strategy once it has enough
// history to judge it by).
func (a *Agent) emit(direction domain.Direction, price, predictionScore, simulatedPnL float64) {
	if a.totalPnL < -5 && a.tradeCount > 5 {
		return
	}

	interestingness := 40*predictionScore + clip(a.totalPnL, -20, 20) + 20 + math.Min(40*math.Abs(predictionScore-0.5), 20)

	idea := domain.TradeIdea{
		Source:               a.Name(),
		Pair:                 a.pair,
		Direction:             direction,
		OrderType:             domain.OrderMarket,
		Amount:                0.001,
		CurrentPrice:          price,
		Timestamp:             float64(time.Now().Unix()),
		Confidence:            predictionScore,
		PredictionScore:       predictionScore,
		InterestingnessScore:  interestingness,
		SimulatedPnL:          simulatedPnL,
		TotalPnL:              a.totalPnL,
		WinRate:               a.winRate(),
		TradeCount:            a.tradeCount,
		ProductFocus:          a.productFocus,
	}
	a.bus.Publish(domain.TopicMycelialTradeIdeas, idea)
}

func clip(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
