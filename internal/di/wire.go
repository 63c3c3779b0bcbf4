// Package di wires together every component into a runnable system,
// following the teacher's sequential-initialization Wire() shape: open
// databases, build the bus and shared state, construct every agent, then
// register the stepped ones (prospectors and moat producers) with the
// scheduler; the other agents act only on bus messages.
package di

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/aristath/swarmtrader/internal/agent"
	"github.com/aristath/swarmtrader/internal/archiver"
	"github.com/aristath/swarmtrader/internal/bus"
	"github.com/aristath/swarmtrader/internal/config"
	"github.com/aristath/swarmtrader/internal/database"
	"github.com/aristath/swarmtrader/internal/domain"
	"github.com/aristath/swarmtrader/internal/exchange"
	"github.com/aristath/swarmtrader/internal/pnltracker"
	"github.com/aristath/swarmtrader/internal/producer"
	"github.com/aristath/swarmtrader/internal/prospector"
	"github.com/aristath/swarmtrader/internal/registry"
	"github.com/aristath/swarmtrader/internal/risk"
	"github.com/aristath/swarmtrader/internal/scheduler"
	"github.com/aristath/swarmtrader/internal/sharedstate"
	"github.com/aristath/swarmtrader/internal/shutdown"
	"github.com/aristath/swarmtrader/internal/synth"
)

// bootstrapPairs seed the paper connector's universe. Real deployment would
// source this list from the exchange; the reference connector needs
// something to quote.
var bootstrapPairs = []exchange.TradablePair{
	{Pair: "BTC-USD", Status: "online", Quote: "USD"},
	{Pair: "ETH-USD", Status: "online", Quote: "USD"},
	{Pair: "SOL-USD", Status: "online", Quote: "USD"},
	{Pair: "ADA-USD", Status: "online", Quote: "USD"},
}

var bootstrapPrices = map[string]float64{
	"BTC-USD": 60000,
	"ETH-USD": 3000,
	"SOL-USD": 140,
	"ADA-USD": 0.45,
}

// initialPortfolioValue seeds the risk manager's drawdown baseline.
const initialPortfolioValue = 100000.0

// Container holds every wired component, for cmd/server to drive and for
// the shutdown coordinator to unwind.
type Container struct {
	Config *config.Config
	Log    zerolog.Logger

	Bus       *bus.Bus
	State     *sharedstate.Map
	IDs       *agent.IDAllocator
	Scheduler *scheduler.Scheduler
	Connector exchange.Connector

	PatternsDB *database.DB
	TradesDB   *database.DB

	Synth        *synth.Synthesizer
	Risk         *risk.Manager
	PnL          *pnltracker.Tracker
	Registry     *registry.Registry
	Builder      *prospector.Builder
	Consensus    *prospector.ConsensusAggregator
	Archiver     *archiver.Archiver
	Backup       *archiver.BackupService
	Shutdown     *shutdown.Coordinator
}

// Wire initializes databases, the bus, shared state and every agent, and
// registers the prospectors and moat producers with the scheduler. It returns a Container the caller
// drives (StartFeed/StartTickLoop) and eventually tears down.
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	c := &Container{Config: cfg, Log: log}

	c.IDs = agent.NewIDAllocator()
	c.Bus = bus.New(log)
	c.State = sharedstate.New()

	// --- Databases ---
	patternsDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "patterns.db"),
		Profile: database.ProfileLedger,
		Name:    "patterns",
	})
	if err != nil {
		return nil, fmt.Errorf("open patterns database: %w", err)
	}
	if err := patternsDB.Migrate(); err != nil {
		patternsDB.Close()
		return nil, fmt.Errorf("migrate patterns database: %w", err)
	}
	c.PatternsDB = patternsDB

	tradesDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "trades.db"),
		Profile: database.ProfileLedger,
		Name:    "trades",
	})
	if err != nil {
		patternsDB.Close()
		return nil, fmt.Errorf("open trades database: %w", err)
	}
	if err := tradesDB.Migrate(); err != nil {
		patternsDB.Close()
		tradesDB.Close()
		return nil, fmt.Errorf("migrate trades database: %w", err)
	}
	c.TradesDB = tradesDB

	patternRepo := database.NewPatternRepository(patternsDB)
	tradeRepo := database.NewTradeRepository(tradesDB)

	// --- Exchange connector ---
	c.Connector = exchange.NewPaperConnector(log, bootstrapPairs, bootstrapPrices)

	// --- Archiver (constructed before the scheduler so its Run method can
	// be handed in as the archive-tick hook) ---
	c.Archiver = archiver.New(c.IDs, log, c.State, patternRepo)
	c.Scheduler = scheduler.New(log, cfg.Runtime.ArchiveInterval, c.Archiver.Run)
	c.Scheduler.SetContagionCheck(newContagionCheck(c.State, cfg.Runtime.PolicyContagionThreshold))

	// --- Core trading agents ---
	c.Synth = synth.New(c.IDs, log, c.Bus, c.Connector, cfg.Runtime.CollisionWindow, cfg.Runtime.RoundTripCostPct)
	c.Risk = risk.New(c.IDs, log, c.Bus, initialPortfolioValue, cfg.Runtime.MaxDrawdown)
	c.Registry = registry.New()
	c.PnL = pnltracker.New(c.IDs, log, c.Bus, c.Registry, pnltracker.Thresholds{
		ProbationTierOne:         cfg.Runtime.ProbationTierOne,
		ProbationTierTwo:         cfg.Runtime.ProbationTierTwo,
		HibernationThreshold:     cfg.Runtime.HibernationThreshold,
		HibernationQualifyingDur: cfg.Runtime.HibernationQualifyingDur,
	})

	// trade-logger: every closing confirmation (nonzero exit price) also
	// becomes a durable Trade row, independent of the P&L tracker's
	// in-memory lifecycle bookkeeping; opening legs are not persisted.
	c.Bus.Subscribe(domain.TopicTradeConfirmations, newTradeLogger(log, tradeRepo).handle)

	c.Builder = prospector.NewBuilder(c.IDs, log, c.Bus, c.Scheduler, c.State, c.Registry, c.Connector, c.Synth, prospector.Limits{
		MaxActiveAssets:    cfg.Runtime.MaxActiveAssets,
		DeploymentCooldown: cfg.Runtime.DeploymentCooldown,
		SignalCooldown:     cfg.Runtime.SignalCooldown,
	})
	c.Consensus = prospector.NewConsensusAggregator(log, c.Bus)

	// --- Prospector teams (three teams of three agents each, §4.11) ---
	for _, team := range []domain.ProspectingTeam{domain.TeamHFT, domain.TeamDayTrade, domain.TeamSwing} {
		for i := 0; i < 3; i++ {
			p := prospector.New(c.IDs, log, c.Bus, c.Connector, c.State, c.Registry, team, cfg.Runtime.ProspectorScanInterval)
			c.Scheduler.Register(p)
		}
	}

	// --- Moat producers (global, not per-pair; feed the prospector's
	// cross-moat score via shared state) ---
	c.Scheduler.Register(producer.NewCodeMoatProducer(c.IDs, log, c.Bus, c.State, "go", producer.DefaultFetchInterval))
	c.Scheduler.Register(producer.NewLogisticsMoatProducer(c.IDs, log, c.Bus, c.State, "global", producer.DefaultFetchInterval))
	c.Scheduler.Register(producer.NewGovtMoatProducer(c.IDs, log, c.Bus, c.State, "us", producer.DefaultFetchInterval))
	c.Scheduler.Register(producer.NewCorpMoatProducer(c.IDs, log, c.Bus, c.State, "tech", producer.DefaultFetchInterval))

	// --- Offsite backup ---
	var r2 *archiver.R2Client
	if cfg.S3Bucket != "" {
		r2Client, err := archiver.NewR2Client(context.Background(), cfg.S3Endpoint, cfg.S3Region, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket)
		if err != nil {
			log.Warn().Err(err).Msg("offsite backup disabled: failed to build r2 client")
		} else {
			r2 = r2Client
		}
	}
	c.Backup = archiver.NewBackupService(log, r2, patternsDB, tradesDB)

	// --- Shutdown coordinator ---
	c.Shutdown = shutdown.New(c.IDs, log, c.Bus, c.Scheduler, c.Archiver, patternsDB, tradesDB)

	return c, nil
}

// Close releases durable resources not already closed by a shutdown
// sequence (e.g. on startup failure, or in tests).
func (c *Container) Close() {
	if c.PatternsDB != nil {
		c.PatternsDB.Close()
	}
	if c.TradesDB != nil {
		c.TradesDB.Close()
	}
}
