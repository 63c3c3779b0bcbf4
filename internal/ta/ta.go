// Package ta implements the baseline technical-analysis signal producer
// (C6, §4.6): one RSI/MACD/Bollinger-Band/moving-average rule table per
// pair, "rule of three" deployed (three instances per asset with slightly
// randomized periods).
package ta

import (
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/swarmtrader/internal/agent"
	"github.com/aristath/swarmtrader/internal/bus"
	"github.com/aristath/swarmtrader/internal/domain"
	"github.com/aristath/swarmtrader/internal/indicators"
)

const windowCapacity = 100

type frame struct {
	close, high, low, timestamp float64
}

type candidate struct {
	signalType     string
	direction      domain.Direction
	confidence     float64
	indicatorValue float64
}

// Agent is one technical-analysis instance for one pair.
type Agent struct {
	agent.Base

	log  zerolog.Logger
	bus  *bus.Bus
	pair string

	rsiPeriod  int
	macdFast   int
	macdSlow   int
	bbPeriod   int
	bbStdDev   float64
	cooldown   time.Duration

	window   []frame
	lastEmit time.Time

	havePrevMACD bool
	prevMacd     float64
	prevSignal   float64
}

// New constructs a technical-analysis agent for pair, subscribing to its
// market-data channel immediately (§4.4: handlers are registered at
// construction). Periods are independently randomized per the "rule of
// three" (§4.6): rsi_period = 14±2, macd_fast = 12±1, macd_slow = 26±2,
// bb_period = 20±2, bb_std_dev = 2.0.
func New(ids *agent.IDAllocator, log zerolog.Logger, b *bus.Bus, pair string, cooldown time.Duration) *Agent {
	base := agent.NewBase(ids, agent.KindTechnicalAnalyst)
	if cooldown <= 0 {
		cooldown = 10 * time.Second
	}
	a := &Agent{
		Base:      base,
		log:       log.With().Str("component", "ta").Str("agent", base.Name()).Str("pair", pair).Logger(),
		bus:       b,
		pair:      pair,
		rsiPeriod: 14 + jitter(2),
		macdFast:  12 + jitter(1),
		macdSlow:  26 + jitter(2),
		bbPeriod:  20 + jitter(2),
		bbStdDev:  2.0,
		cooldown:  cooldown,
	}
	b.Subscribe(domain.MarketDataTopic(pair), a.handleMarketData)
	return a
}

func jitter(spread int) int {
	if spread <= 0 {
		return 0
	}
	return rand.Intn(2*spread+1) - spread
}

func (a *Agent) handleMarketData(payload any) {
	ff, ok := payload.(domain.FeatureFrame)
	if !ok {
		return
	}
	close, ok1 := ff.Feature("close")
	high, ok2 := ff.Feature("high")
	low, ok3 := ff.Feature("low")
	if !ok1 || !ok2 || !ok3 {
		return
	}

	a.window = append(a.window, frame{close: close, high: high, low: low, timestamp: ff.Timestamp})
	if len(a.window) > windowCapacity {
		a.window = a.window[len(a.window)-windowCapacity:]
	}

	warmup := a.macdSlow
	if a.rsiPeriod > warmup {
		warmup = a.rsiPeriod
	}
	if len(a.window) < warmup {
		return
	}

	a.evaluate()
}

func (a *Agent) evaluate() {
	closes := make([]float64, len(a.window))
	highs := make([]float64, len(a.window))
	lows := make([]float64, len(a.window))
	for i, f := range a.window {
		closes[i], highs[i], lows[i] = f.close, f.high, f.low
	}
	price := closes[len(closes)-1]

	rsi := indicators.RSI(closes, a.rsiPeriod)
	macdLine, signalLine := indicators.MACD(closes, a.macdFast, a.macdSlow, 9)
	mid, upper, lower := indicators.BollingerBands(closes, a.bbPeriod, a.bbStdDev)

	var candidates []candidate

	if rsi < 30 {
		candidates = append(candidates, candidate{"RSI Oversold", domain.Buy, math.Min((30-rsi)/30, 0.9), rsi})
	}
	if rsi > 70 {
		candidates = append(candidates, candidate{"RSI Overbought", domain.Sell, math.Min((rsi-70)/30, 0.9), rsi})
	}

	// MACD crossover detection (§4.6): a signal fires only on the sign
	// change of (macd - signal) across consecutive frames, not on every
	// frame the level happens to sit above or below zero.
	if a.havePrevMACD {
		diff := macdLine - signalLine
		switch {
		case macdLine > signalLine && a.prevMacd <= a.prevSignal:
			candidates = append(candidates, candidate{"MACD Bullish Cross", domain.Buy, indicators.Clip(math.Abs(diff)*10, 0.55, 0.85), macdLine})
		case macdLine < signalLine && a.prevMacd >= a.prevSignal:
			candidates = append(candidates, candidate{"MACD Bearish Cross", domain.Sell, indicators.Clip(math.Abs(diff)*10, 0.55, 0.85), macdLine})
		}
	}
	a.prevMacd, a.prevSignal = macdLine, signalLine
	a.havePrevMACD = true

	if mid > 0 {
		if price <= lower {
			conf := 0.60
			if math.Abs(price-lower)/lower <= 0.001 {
				conf = 0.70
			}
			candidates = append(candidates, candidate{"Bollinger Lower Band", domain.Buy, conf, lower})
		}
		if price >= upper {
			conf := 0.60
			if math.Abs(price-upper)/upper <= 0.001 {
				conf = 0.70
			}
			candidates = append(candidates, candidate{"Bollinger Upper Band", domain.Sell, conf, upper})
		}
		if price > 1.02*mid {
			candidates = append(candidates, candidate{"Above Moving Average", domain.Buy, 0.65, mid})
		}
		if price < 0.98*mid {
			candidates = append(candidates, candidate{"Below Moving Average", domain.Sell, 0.65, mid})
		}
	}

	if len(candidates) == 0 {
		return
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.confidence > best.confidence {
			best = c
		}
	}

	if time.Since(a.lastEmit) < a.cooldown {
		return
	}

	idea := domain.TradeIdea{
		Source:         a.Name(),
		Pair:           a.pair,
		Direction:      best.direction,
		OrderType:      domain.OrderMarket,
		Amount:         0.001,
		CurrentPrice:   price,
		Timestamp:      float64(time.Now().Unix()),
		Confidence:     best.confidence,
		SignalType:     best.signalType,
		IndicatorValue: best.indicatorValue,
	}
	a.lastEmit = time.Now()
	a.bus.Publish(domain.BaselineTradeIdeasTopic(a.pair), idea)
}
