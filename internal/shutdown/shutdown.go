// Package shutdown implements the emergency-stop handler (§4.13).
package shutdown

import (
	"github.com/rs/zerolog"

	"github.com/aristath/swarmtrader/internal/agent"
	"github.com/aristath/swarmtrader/internal/archiver"
	"github.com/aristath/swarmtrader/internal/bus"
	"github.com/aristath/swarmtrader/internal/database"
	"github.com/aristath/swarmtrader/internal/domain"
	"github.com/aristath/swarmtrader/internal/scheduler"
)

// Coordinator subscribes to system-control and, on EMERGENCY_SHUTDOWN,
// drains the running system in the order §4.13 specifies.
type Coordinator struct {
	agent.Base

	log      zerolog.Logger
	bus      *bus.Bus
	sched    *scheduler.Scheduler
	archiver *archiver.Archiver
	dbs      []*database.DB
}

// New constructs the Coordinator, subscribing to system-control. dbs are the
// durable-storage handles closed on shutdown, in the order given.
func New(ids *agent.IDAllocator, log zerolog.Logger, b *bus.Bus, sched *scheduler.Scheduler, arch *archiver.Archiver, dbs ...*database.DB) *Coordinator {
	c := &Coordinator{
		Base:     agent.NewBase(ids, agent.KindShutdown),
		bus:      b,
		sched:    sched,
		archiver: arch,
		dbs:      dbs,
	}
	c.log = log.With().Str("component", "shutdown_coordinator").Str("agent", c.Name()).Logger()
	b.Subscribe(domain.TopicSystemControl, c.handleControl)
	return c
}

func (c *Coordinator) handleControl(payload any) {
	ctl, ok := payload.(domain.SystemControl)
	if !ok || ctl.Command != domain.CommandEmergencyShutdown {
		return
	}
	c.log.Warn().Str("reason", ctl.Reason).Str("source", ctl.Source).Msg("emergency shutdown received")

	// 1. Broadcast HALT_TRADING so every idea-producing agent stops emitting.
	c.bus.Publish(domain.TopicSystemControl, domain.SystemControl{
		Command: domain.CommandHaltTrading,
		Reason:  ctl.Reason,
		Source:  "shutdown_coordinator",
	})

	// 2. Flush high-value patterns one last time.
	c.archiver.Run(c.sched.StepCounter())

	// 3. Close durable-storage handles.
	for _, db := range c.dbs {
		if err := db.Close(); err != nil {
			c.log.Error().Err(err).Str("db", db.Name()).Msg("failed to close database during shutdown")
		}
	}

	// 4. Stop the tick loop — the hard-cancel.
	c.sched.Stop()

	c.log.Warn().Msg("shutdown sequence complete")
}
