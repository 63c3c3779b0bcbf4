package producer

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/swarmtrader/internal/agent"
	"github.com/aristath/swarmtrader/internal/bus"
	"github.com/aristath/swarmtrader/internal/domain"
	"github.com/aristath/swarmtrader/internal/exchange"
	"github.com/aristath/swarmtrader/internal/indicators"
)

// defaultPeriod is the indicator period used for the market producer's
// enriched RSI/ATR/MOM (§4.5: "default period 14").
const defaultPeriod = 14

// ringSample is one {close, high, low} observation of the rolling buffer.
type ringSample struct {
	close, high, low float64
}

// MarketProducer polls the exchange connector's ticker for one pair and
// publishes enriched FeatureFrames on market-data:{pair}, maintaining a
// rolling buffer long enough to compute RSI/ATR/MOM (§4.5).
type MarketProducer struct {
	agent.Base
	poller

	connector exchange.Connector
	pair      string
	period    int

	buffer []ringSample
}

// NewMarketProducer constructs a market producer for pair.
func NewMarketProducer(ids *agent.IDAllocator, log zerolog.Logger, b *bus.Bus, connector exchange.Connector, pair string, fetchInterval time.Duration) *MarketProducer {
	base := baseFor(ids)
	m := &MarketProducer{
		Base:      base,
		connector: connector,
		pair:      pair,
		period:    defaultPeriod,
	}
	m.poller = newPoller(log, b, domain.MarketDataTopic(pair), base.Name(), pair, fetchInterval, m.fetchTicker)
	return m
}

func (m *MarketProducer) fetchTicker() (map[string]float64, map[string]string, error) {
	t, err := m.connector.Ticker(context.Background(), m.pair)
	if err != nil {
		return nil, nil, err
	}

	m.buffer = append(m.buffer, ringSample{close: t.Close, high: t.High24h, low: t.Low24h})
	maxLen := 3 * m.period
	if len(m.buffer) > maxLen {
		m.buffer = m.buffer[len(m.buffer)-maxLen:]
	}

	features := map[string]float64{
		"close": t.Close,
		"high":  t.High24h,
		"low":   t.Low24h,
		"bid":   t.Bid,
		"ask":   t.Ask,
		"open":  t.Open,
		"volume_24h": t.Volume24h,
	}

	// Gated on buffer having >= period+1 entries (§4.5).
	if len(m.buffer) >= m.period+1 {
		closes := make([]float64, len(m.buffer))
		highs := make([]float64, len(m.buffer))
		lows := make([]float64, len(m.buffer))
		for i, s := range m.buffer {
			closes[i], highs[i], lows[i] = s.close, s.high, s.low
		}
		features["RSI"] = indicators.RSI(closes, m.period)
		features["ATR"] = indicators.ATR(highs, lows, closes, m.period)
		features["MOM"] = indicators.MOM(closes, m.period)
	}

	return features, nil, nil
}

// Step implements agent.Agent: poll on the configured cadence (§4.5).
func (m *MarketProducer) Step() { m.poll(time.Now()) }
