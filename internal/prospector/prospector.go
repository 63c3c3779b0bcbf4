// Package prospector implements the Prospector/MarketExplorer agents, the
// consensus aggregator, and the Builder (C11, §4.11): together they scan
// for new tradable pairs, score them, reach cross-team consensus, and
// trigger templated deployment of new agent teams.
package prospector

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/swarmtrader/internal/agent"
	"github.com/aristath/swarmtrader/internal/bus"
	"github.com/aristath/swarmtrader/internal/domain"
	"github.com/aristath/swarmtrader/internal/exchange"
	"github.com/aristath/swarmtrader/internal/registry"
	"github.com/aristath/swarmtrader/internal/sharedstate"
)

// DefaultScanInterval is the tick modulus at which each prospector agent
// rescans (§4.11: "every 60 ticks").
const DefaultScanInterval = 60

// crossMoatWeights are the per-team weights on {code, government, logistics,
// corporate} signals (§4.11).
var crossMoatWeights = map[domain.ProspectingTeam]map[string]float64{
	domain.TeamHFT:      {"code": 0.5, "corp": 0.5, "govt": 0, "logistics": 0},
	domain.TeamDayTrade: {"code": 0.7, "corp": 0.7, "govt": 0.3, "logistics": 0.3},
	domain.TeamSwing:    {"code": 0.3, "corp": 0.3, "govt": 1.0, "logistics": 1.0},
}

// Agent is one prospector instance: one of three per team, "rule of three"
// deployed (§4.11, GLOSSARY).
type Agent struct {
	agent.Base

	log          zerolog.Logger
	bus          *bus.Bus
	connector    exchange.Connector
	state        *sharedstate.Map
	registry     *registry.Registry
	team         domain.ProspectingTeam
	scanInterval uint64

	tickCount uint64
}

// New constructs a prospector agent for team.
func New(ids *agent.IDAllocator, log zerolog.Logger, b *bus.Bus, connector exchange.Connector, state *sharedstate.Map, reg *registry.Registry, team domain.ProspectingTeam, scanInterval uint64) *Agent {
	if scanInterval == 0 {
		scanInterval = DefaultScanInterval
	}
	return &Agent{
		Base:         agent.NewBase(ids, agent.KindProspector),
		log:          log.With().Str("component", "prospector").Str("team", string(team)).Logger(),
		bus:          b,
		connector:    connector,
		state:        state,
		registry:     reg,
		team:         team,
		scanInterval: scanInterval,
	}
}

// Step implements agent.Agent: scan on the configured tick cadence.
func (a *Agent) Step() {
	a.tickCount++
	if a.tickCount%a.scanInterval != 0 {
		return
	}
	a.scan()
}

func (a *Agent) scan() {
	pairs, err := a.connector.TradablePairs(context.Background())
	if err != nil {
		a.log.Warn().Err(err).Msg("failed to fetch tradable pairs")
		return
	}

	for _, pair := range pairs {
		if pair.Quote != "USD" || pair.Status != "online" {
			continue
		}
		if a.registry.Active(pair.Pair) {
			continue
		}
		score, breakdown := a.score(pair)
		if score >= 4 {
			a.bus.Publish(domain.ProspectingProposalsTopic(a.team), domain.ProspectingProposal{
				Pair:       pair.Pair,
				Team:       a.team,
				Score:      score,
				Confidence: float64(score) / 8,
				Breakdown:  breakdown,
				AgentName:  a.Name(),
			})
		}
	}
}

// score implements the 0-8 prospecting score (§4.11 step 3).
func (a *Agent) score(pair exchange.TradablePair) (int, map[string]int) {
	ctx := context.Background()
	t, err := a.connector.Ticker(ctx, pair.Pair)
	if err != nil {
		return 0, nil
	}

	breakdown := make(map[string]int)

	if t.High24h > 0 && t.Close > 0 && (t.High24h-t.Low24h)/t.Close > 0.02 {
		breakdown["volatility"] = 1
	}
	if t.Volume24h*t.Close > 10_000_000 {
		breakdown["volume"] = 1
	}
	if t.Bid > 0 && (t.Ask-t.Bid)/t.Bid < 0.005 {
		breakdown["liquidity"] = 1
	}
	if t.Open > 0 && math.Abs((t.Close-t.Open)/t.Open) > 0.15 {
		breakdown["momentum"] = 1
	}
	breakdown["novelty"] = 1 // not already tracked, guaranteed by the caller's Active() filter

	breakdown["cross_moat"] = a.crossMoatScore()

	total := 0
	for _, v := range breakdown {
		total += v
	}
	return total, breakdown
}

// crossMoatScore implements §4.11 step 3's weighted cross-moat criterion,
// reading the latest mirrored moat activity out of shared state.
func (a *Agent) crossMoatScore() int {
	weights := crossMoatWeights[a.team]
	weighted := 0.0
	for category, weight := range weights {
		if weight == 0 {
			continue
		}
		weighted += weight * a.averageActivity(category)
	}
	switch {
	case weighted >= 1.5:
		return 2
	case weighted >= 0.5:
		return 1
	default:
		return 0
	}
}

func (a *Agent) averageActivity(category string) float64 {
	keys := a.state.KeysByPrefix("moat:" + category + ":")
	if len(keys) == 0 {
		return 0
	}
	var sum float64
	var n int
	for _, key := range keys {
		raw, ok := a.state.Get(key)
		if !ok {
			continue
		}
		var features map[string]float64
		if err := json.Unmarshal(raw, &features); err != nil {
			continue
		}
		sum += activityScalar(category, features)
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// activityScalar reduces a moat's fixed feature schema to the single
// "activity" scalar the cross-moat weighting consumes.
func activityScalar(category string, features map[string]float64) float64 {
	switch category {
	case "code":
		return features["novelty_score"]
	case "logistics":
		return math.Min(features["shipping_volume_index"]/10, 10)
	case "govt":
		return math.Abs(features["policy_sentiment"]) * 5
	case "corp":
		return math.Abs(features["earnings_surprise_index"])
	default:
		return 0
	}
}

// ConsensusAggregator collects proposals across the three prospector teams
// and publishes prospecting-consensus once 2-of-3 team members agree on a
// pair with confidence >= 70% (§4.11). Kept as a standalone subscriber
// rather than folded into the Builder (§9 Open Questions).
type ConsensusAggregator struct {
	log zerolog.Logger
	bus *bus.Bus

	mu    sync.Mutex
	votes map[domain.ProspectingTeam]map[string]map[string]float64 // team -> pair -> agentName -> confidence
}

// NewConsensusAggregator constructs the aggregator and subscribes to all
// three teams' proposal topics.
func NewConsensusAggregator(log zerolog.Logger, b *bus.Bus) *ConsensusAggregator {
	c := &ConsensusAggregator{
		log:   log.With().Str("component", "prospecting_consensus").Logger(),
		bus:   b,
		votes: make(map[domain.ProspectingTeam]map[string]map[string]float64),
	}
	for _, team := range []domain.ProspectingTeam{domain.TeamHFT, domain.TeamDayTrade, domain.TeamSwing} {
		b.Subscribe(domain.ProspectingProposalsTopic(team), c.handleProposal)
	}
	return c
}

func (c *ConsensusAggregator) handleProposal(payload any) {
	p, ok := payload.(domain.ProspectingProposal)
	if !ok || p.Confidence < 0.70 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	byPair, ok := c.votes[p.Team]
	if !ok {
		byPair = make(map[string]map[string]float64)
		c.votes[p.Team] = byPair
	}
	byAgent, ok := byPair[p.Pair]
	if !ok {
		byAgent = make(map[string]float64)
		byPair[p.Pair] = byAgent
	}
	byAgent[p.AgentName] = p.Confidence

	if len(byAgent) >= 2 {
		sum := 0.0
		for _, conf := range byAgent {
			sum += conf
		}
		avg := sum / float64(len(byAgent))
		c.bus.Publish(domain.TopicProspectingConsensus, domain.ProspectingConsensus{
			Pair:       p.Pair,
			Team:       p.Team,
			Confidence: avg,
			Votes:      len(byAgent),
		})
		delete(byPair, p.Pair)
	}
}
