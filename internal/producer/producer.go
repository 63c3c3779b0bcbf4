// Package producer implements the data-producer agents (C5): periodic
// pollers of external sources that publish enriched feature frames on a
// per-target channel, with cache + rate-limit fallback (§4.5).
package producer

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/swarmtrader/internal/agent"
	"github.com/aristath/swarmtrader/internal/bus"
	"github.com/aristath/swarmtrader/internal/domain"
	"github.com/aristath/swarmtrader/internal/sharedstate"
)

// DefaultFetchInterval is the specification's default producer poll cadence
// (§5: "per-producer fetch_interval (default 60 s)").
const DefaultFetchInterval = 60 * time.Second

// Fetcher retrieves one feature observation for a target. Returning an
// error signals a transient failure (§4.5, §7 TransientExternal); the
// caller falls back to the last cached frame rather than retrying
// synchronously.
type Fetcher func() (features map[string]float64, strings map[string]string, err error)

// poller is the fetch-cache-publish state shared by every producer kind.
// It is intentionally unexported: concrete producers (market, moat) embed
// it and add their own Step/indicator logic on top.
type poller struct {
	log           zerolog.Logger
	bus           *bus.Bus
	fetch         Fetcher
	topic         string
	source        string
	target        string
	fetchInterval time.Duration

	lastFetch time.Time
	cached    *domain.FeatureFrame

	// state/stateKey, when set, mirror the latest feature map into shared
	// state so the Prospector's cross-moat scoring (§4.11) has somewhere to
	// read activity signals from without subscribing to every moat channel
	// itself.
	state    *sharedstate.Map
	stateKey string
}

func newPoller(log zerolog.Logger, b *bus.Bus, topic, source, target string, fetchInterval time.Duration, fetch Fetcher) poller {
	if fetchInterval <= 0 {
		fetchInterval = DefaultFetchInterval
	}
	return poller{
		log:           log.With().Str("component", "producer").Str("target", target).Logger(),
		bus:           b,
		fetch:         fetch,
		topic:         topic,
		source:        source,
		target:        target,
		fetchInterval: fetchInterval,
	}
}

// mirrorToState arranges for every published frame's features to also be
// written to shared state under key.
func (p *poller) mirrorToState(state *sharedstate.Map, key string) {
	p.state = state
	p.stateKey = key
}

// poll runs one fetch-or-cache-or-skip cycle (§4.5 step 1-2) and returns the
// frame it published, if any.
func (p *poller) poll(now time.Time) *domain.FeatureFrame {
	if now.Sub(p.lastFetch) < p.fetchInterval {
		return nil
	}
	p.lastFetch = now

	features, strs, err := p.fetch()
	if err != nil {
		if p.cached != nil {
			p.log.Warn().Err(err).Msg("fetch failed, republishing cached frame")
			p.bus.Publish(p.topic, *p.cached)
			return p.cached
		}
		p.log.Warn().Err(err).Msg("fetch failed, no cached frame to fall back to")
		return nil
	}

	frame := &domain.FeatureFrame{
		Source:    p.source,
		Timestamp: float64(now.Unix()),
		Target:    p.target,
		Features:  features,
		Strings:   strs,
	}
	p.cached = frame
	p.bus.Publish(p.topic, *frame)
	if p.state != nil {
		if err := p.state.SetJSON(p.stateKey, features); err != nil {
			p.log.Warn().Err(err).Msg("failed to mirror frame into shared state")
		}
	}
	return frame
}

// baseFor builds the agent.Base + IDAllocator boilerplate every producer
// constructor repeats.
func baseFor(ids *agent.IDAllocator) agent.Base {
	return agent.NewBase(ids, agent.KindDataProducer)
}
