// Package scheduler drives every registered agent one step per tick, in
// randomized order, and owns the shutdown signal (§4.3).
package scheduler

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/aristath/swarmtrader/internal/agent"
)

// ContagionCheck is the optional policy-contagion heuristic consulted before
// each tick (§4.3 step 2). It is a hook, not a hard-wired component: the
// specification names it only by its config knob
// (policy_contagion_threshold) and leaves its exact behavior to the
// implementer. Ours inspects shared state for directional consensus across
// pattern-learner policies and logs when consensus crosses the threshold;
// see DESIGN.md for the Open Question resolution.
type ContagionCheck func() (triggered bool, fraction float64)

// Scheduler owns the agent registry and the tick loop. An exception in one
// agent's Step is logged but never aborts the tick (§4.3, §7).
type Scheduler struct {
	log zerolog.Logger

	mu      sync.Mutex
	running atomic.Bool
	agents  []agent.Agent

	stepCounter     atomic.Uint64
	archiveInterval uint64
	onArchiveTick   func(stepCounter uint64)

	contagion ContagionCheck

	cron    *cron.Cron
	cronJob cron.EntryID
}

// New creates a Scheduler. archiveInterval is the tick modulus at which
// onArchiveTick fires (default 300 per §4.3); onArchiveTick may be nil.
func New(log zerolog.Logger, archiveInterval uint64, onArchiveTick func(uint64)) *Scheduler {
	if archiveInterval == 0 {
		archiveInterval = 300
	}
	s := &Scheduler{
		log:             log.With().Str("component", "scheduler").Logger(),
		archiveInterval: archiveInterval,
		onArchiveTick:   onArchiveTick,
		cron:            cron.New(cron.WithSeconds()),
	}
	s.running.Store(true)
	return s
}

// SetContagionCheck installs the optional policy-contagion heuristic.
func (s *Scheduler) SetContagionCheck(c ContagionCheck) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contagion = c
}

// Register adds an agent to the scheduler's registry. The scheduler
// exclusively owns the agent set (§3 Ownership).
func (s *Scheduler) Register(a agent.Agent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents = append(s.agents, a)
}

// RegisterMany adds several agents at once, e.g. a builder deployment.
func (s *Scheduler) RegisterMany(agents []agent.Agent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents = append(s.agents, agents...)
}

// AgentCount returns the number of currently registered agents.
func (s *Scheduler) AgentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.agents)
}

// StepCounter returns the number of ticks executed so far.
func (s *Scheduler) StepCounter() uint64 { return s.stepCounter.Load() }

// Running reports whether the tick loop is still active.
func (s *Scheduler) Running() bool { return s.running.Load() }

// Stop sets running=false; subsequent Tick calls are no-ops. This is the
// scheduler side of the shutdown coordinator's hard-cancel (§4.13, §5).
func (s *Scheduler) Stop() {
	s.running.Store(false)
	if s.cron != nil {
		s.cron.Stop()
	}
}

// StartTickLoop drives Tick once per tickInterval using a cron schedule
// (the specification's "embedding loop", one tick per simulated second by
// default, §4.3 / §5). Returns immediately; the loop runs in the
// background until Stop is called.
func (s *Scheduler) StartTickLoop(tickInterval time.Duration) error {
	spec := fmt.Sprintf("@every %s", tickInterval.String())
	id, err := s.cron.AddFunc(spec, s.Tick)
	if err != nil {
		return fmt.Errorf("failed to schedule tick loop: %w", err)
	}
	s.cronJob = id
	s.cron.Start()
	return nil
}

// Tick executes one scheduling round: consult the contagion heuristic,
// shuffle the agent set, step every agent, and trigger the archiver on the
// configured interval (§4.3).
func (s *Scheduler) Tick() {
	if !s.running.Load() {
		return
	}

	if s.contagion != nil {
		if triggered, frac := s.contagion(); triggered {
			s.log.Warn().Float64("fraction", frac).Msg("policy contagion threshold crossed")
		}
	}

	s.mu.Lock()
	shuffled := make([]agent.Agent, len(s.agents))
	copy(shuffled, s.agents)
	s.mu.Unlock()

	rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	for _, a := range shuffled {
		s.stepAgent(a)
	}

	count := s.stepCounter.Add(1)
	if s.onArchiveTick != nil && s.archiveInterval > 0 && count%s.archiveInterval == 0 {
		s.onArchiveTick(count)
	}
}

// stepAgent runs one agent's Step, containing any panic the way a
// production scheduler contains a misbehaving worker (§7: agent failures
// are logged, never propagated to the scheduler).
func (s *Scheduler) stepAgent(a agent.Agent) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().
				Interface("panic", r).
				Str("agent", a.Name()).
				Msg("agent step panicked")
		}
	}()
	a.Step()
}
