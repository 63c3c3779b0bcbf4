package prospector

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/swarmtrader/internal/agent"
	"github.com/aristath/swarmtrader/internal/bus"
	"github.com/aristath/swarmtrader/internal/domain"
	"github.com/aristath/swarmtrader/internal/errs"
	"github.com/aristath/swarmtrader/internal/exchange"
	"github.com/aristath/swarmtrader/internal/learner"
	"github.com/aristath/swarmtrader/internal/producer"
	"github.com/aristath/swarmtrader/internal/registry"
	"github.com/aristath/swarmtrader/internal/scheduler"
	"github.com/aristath/swarmtrader/internal/sharedstate"
	"github.com/aristath/swarmtrader/internal/synth"
	"github.com/aristath/swarmtrader/internal/ta"
)

// buildRequestTTL is the dedup window for system-build-request messages
// (§4.11: "deduplicates within a 60s TTL").
const buildRequestTTL = 60 * time.Second

// learnerFocusRotation assigns the fifteen deployed pattern-learners a
// product focus in turn (§4.7 lists the five valid values). The focus only
// labels each learner's belief state; every learner reads the pair's
// market feed (see deploy).
var learnerFocusRotation = []string{"Finance", "Code", "Logistics", "Government", "Corporations"}

// learnersPerTeam is how many pattern-learners the Builder deploys per new
// pair (§4.11: "fifteen pattern-learners").
const learnersPerTeam = 15

// Limits bundles the Builder's capacity and cooldown knobs (§6, §4.11).
type Limits struct {
	MaxActiveAssets    int
	DeploymentCooldown time.Duration
	SignalCooldown     time.Duration
}

// Builder deploys new agent teams on prospecting consensus (§4.11).
type Builder struct {
	agent.Base

	log       zerolog.Logger
	bus       *bus.Bus
	ids       *agent.IDAllocator
	sched     *scheduler.Scheduler
	state     *sharedstate.Map
	registry  *registry.Registry
	connector exchange.Connector
	synth     *synth.Synthesizer
	limits    Limits

	mu                  sync.Mutex
	rejectedDeployments int
	seenBuildRequests   map[string]time.Time
}

// NewBuilder constructs the Builder, subscribing to prospecting-consensus and
// system-build-request.
func NewBuilder(ids *agent.IDAllocator, log zerolog.Logger, b *bus.Bus, sched *scheduler.Scheduler, state *sharedstate.Map, reg *registry.Registry, connector exchange.Connector, synthesizer *synth.Synthesizer, limits Limits) *Builder {
	builder := &Builder{
		Base:              agent.NewBase(ids, agent.KindBuilder),
		log:               log.With().Str("component", "builder").Logger(),
		bus:               b,
		ids:               ids,
		sched:             sched,
		state:             state,
		registry:          reg,
		connector:         connector,
		synth:             synthesizer,
		limits:            limits,
		seenBuildRequests: make(map[string]time.Time),
	}
	b.Subscribe(domain.TopicProspectingConsensus, builder.handleConsensus)
	b.Subscribe(domain.TopicSystemBuildRequest, builder.handleBuildRequest)
	return builder
}

// RejectedDeployments returns the running count of capacity/cooldown
// rejections, for observability and tests (§8 scenario f).
func (bd *Builder) RejectedDeployments() int {
	bd.mu.Lock()
	defer bd.mu.Unlock()
	return bd.rejectedDeployments
}

func (bd *Builder) handleConsensus(payload any) {
	consensus, ok := payload.(domain.ProspectingConsensus)
	if !ok {
		return
	}
	now := time.Now()

	if bd.registry.Active(consensus.Pair) {
		bd.reject(consensus.Pair, "already active")
		return
	}
	if bd.registry.Count() >= bd.limits.MaxActiveAssets {
		bd.reject(consensus.Pair, "at max active assets")
		return
	}
	if bd.registry.DeployedWithin(consensus.Pair, bd.limits.DeploymentCooldown, now) {
		bd.reject(consensus.Pair, "within deployment cooldown")
		return
	}

	bd.deploy(consensus.Pair, now)
}

func (bd *Builder) reject(pair, reason string) {
	bd.mu.Lock()
	bd.rejectedDeployments++
	bd.mu.Unlock()
	bd.log.Info().Str("pair", pair).Str("reason", reason).Err(errs.ErrCapacityRejection).Msg("deployment rejected")
}

// deploy implements §4.11's templated deployment: one data-producer, three
// technical-analysis agents, and fifteen pattern-learners, all targeting
// pair.
func (bd *Builder) deploy(pair string, now time.Time) {
	var newAgents []agent.Agent

	marketProducer := producer.NewMarketProducer(bd.ids, bd.log, bd.bus, bd.connector, pair, producer.DefaultFetchInterval)
	newAgents = append(newAgents, marketProducer)

	for i := 0; i < 3; i++ {
		newAgents = append(newAgents, ta.New(bd.ids, bd.log, bd.bus, pair, bd.limits.SignalCooldown))
	}

	// A moat channel (code/logistics/government/corporate) has no inherent
	// link to a trading pair; every deployed learner reads this pair's own
	// market feed regardless of its declared product_focus, which only
	// labels the belief state it writes (§4.7, §4.11).
	for i := 0; i < learnersPerTeam; i++ {
		focus := learnerFocusRotation[i%len(learnerFocusRotation)]
		newAgents = append(newAgents, learner.New(bd.ids, bd.log, bd.bus, bd.state, learner.Params{
			Pair:         pair,
			ProductFocus: focus,
			Channel:      domain.MarketDataTopic(pair),
			Generation:   0,
		}))
	}

	bd.sched.RegisterMany(newAgents)
	bd.registry.Add(pair, now)
	bd.synth.Watch(pair)

	bd.log.Info().Str("pair", pair).Int("agents", len(newAgents)).Msg("deployed new agent team")
}

func (bd *Builder) handleBuildRequest(payload any) {
	req, ok := payload.(domain.BuildRequest)
	if !ok {
		return
	}

	bd.mu.Lock()
	defer bd.mu.Unlock()

	now := time.Now()
	if last, seen := bd.seenBuildRequests[req.ToolNeeded]; seen && now.Sub(last) < buildRequestTTL {
		return
	}
	bd.seenBuildRequests[req.ToolNeeded] = now

	// Autonomous code generation from a build request is explicitly a
	// non-goal (§1); the Builder logs the request for a human or a future
	// offline tool-generation pass.
	bd.log.Info().Str("tool_needed", req.ToolNeeded).Str("reason", req.Reason).Str("source", req.Source).Msg("build request received (stub: not auto-fulfilled)")
}
