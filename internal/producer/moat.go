package producer

import (
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/swarmtrader/internal/agent"
	"github.com/aristath/swarmtrader/internal/bus"
	"github.com/aristath/swarmtrader/internal/domain"
	"github.com/aristath/swarmtrader/internal/sharedstate"
)

// MoatStateKey is the shared-state key one moat producer's latest feature
// map is mirrored under, read by the Prospector's cross-moat scoring
// (§4.11).
func MoatStateKey(category, target string) string {
	return "moat:" + category + ":" + target
}

// MoatProducer polls one auxiliary ("cross-moat") data source and publishes
// a fixed-schema FeatureFrame on its channel (§4.5). The concrete adapters
// (GitHub API, a logistics index, a government-policy feed, a corporate
// indicator feed) are out of scope (§1); each producer here is wired to a
// synthetic generator so the rest of the system — prospector cross-moat
// scoring, pattern-learner product_focus=Code/Logistics/... — is runnable
// end to end. Swapping in a real Fetcher is a one-line constructor change.
type MoatProducer struct {
	agent.Base
	poller
}

func newMoatProducer(ids *agent.IDAllocator, log zerolog.Logger, b *bus.Bus, state *sharedstate.Map, category, topic, target string, fetchInterval time.Duration, fetch Fetcher) *MoatProducer {
	base := baseFor(ids)
	p := &MoatProducer{Base: base}
	p.poller = newPoller(log, b, topic, base.Name(), target, fetchInterval, fetch)
	p.poller.mirrorToState(state, MoatStateKey(category, target))
	return p
}

// Step implements agent.Agent.
func (p *MoatProducer) Step() { p.poll(time.Now()) }

// NewCodeMoatProducer publishes on code-data:{lang} with the novelty-score
// and dependency-entropy formulas (§4.5):
//
//	novelty_score        = clip(commits_24h / max(contributors,1) * 10, 0.5, 9.5)
//	dependency_entropy    = contributors * ln(commits_24h+1) / sqrt(open_issues)
//	                        when denominators are positive
func NewCodeMoatProducer(ids *agent.IDAllocator, log zerolog.Logger, b *bus.Bus, state *sharedstate.Map, lang string, fetchInterval time.Duration) *MoatProducer {
	fetch := func() (map[string]float64, map[string]string, error) {
		commits24h := float64(rand.Intn(200))
		contributors := float64(1 + rand.Intn(50))
		openIssues := float64(1 + rand.Intn(100))

		novelty := clip(commits24h/math.Max(contributors, 1)*10, 0.5, 9.5)
		entropy := 0.0
		if contributors > 0 && openIssues > 0 {
			entropy = contributors * math.Log(commits24h+1) / math.Sqrt(openIssues)
		}

		return map[string]float64{
			"commits_24h":       commits24h,
			"contributors":      contributors,
			"open_issues":       openIssues,
			"novelty_score":     novelty,
			"dependency_entropy": entropy,
		}, map[string]string{"language": lang}, nil
	}
	return newMoatProducer(ids, log, b, state, "code", domain.CodeDataTopic(lang), lang, fetchInterval, fetch)
}

// NewLogisticsMoatProducer publishes on logistics-data:{region} (§4.5).
func NewLogisticsMoatProducer(ids *agent.IDAllocator, log zerolog.Logger, b *bus.Bus, state *sharedstate.Map, region string, fetchInterval time.Duration) *MoatProducer {
	fetch := func() (map[string]float64, map[string]string, error) {
		return map[string]float64{
			"shipping_volume_index": 80 + rand.Float64()*40,
			"port_delay_index":      rand.Float64() * 10,
			"freight_rate_change":   rand.Float64()*10 - 5,
		}, map[string]string{"region": region}, nil
	}
	return newMoatProducer(ids, log, b, state, "logistics", domain.LogisticsDataTopic(region), region, fetchInterval, fetch)
}

// NewGovtMoatProducer publishes on govt-data:{region} (§4.5).
func NewGovtMoatProducer(ids *agent.IDAllocator, log zerolog.Logger, b *bus.Bus, state *sharedstate.Map, region string, fetchInterval time.Duration) *MoatProducer {
	fetch := func() (map[string]float64, map[string]string, error) {
		return map[string]float64{
			"policy_sentiment":  rand.Float64()*2 - 1,
			"regulatory_risk":   rand.Float64() * 10,
			"rate_decision_bps": float64(rand.Intn(51) - 25),
		}, map[string]string{"region": region}, nil
	}
	return newMoatProducer(ids, log, b, state, "govt", domain.GovtDataTopic(region), region, fetchInterval, fetch)
}

// NewCorpMoatProducer publishes on corp-data:{sector} (§4.5).
func NewCorpMoatProducer(ids *agent.IDAllocator, log zerolog.Logger, b *bus.Bus, state *sharedstate.Map, sector string, fetchInterval time.Duration) *MoatProducer {
	fetch := func() (map[string]float64, map[string]string, error) {
		return map[string]float64{
			"earnings_surprise_index": rand.Float64()*10 - 5,
			"supply_chain_health":     rand.Float64() * 10,
			"insider_activity_index":  rand.Float64()*2 - 1,
		}, map[string]string{"sector": sector}, nil
	}
	return newMoatProducer(ids, log, b, state, "corp", domain.CorpDataTopic(sector), sector, fetchInterval, fetch)
}

func clip(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
