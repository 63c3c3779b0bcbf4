// Package archiver periodically snapshots high-value belief state into
// durable storage (§4.12).
package archiver

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/swarmtrader/internal/agent"
	"github.com/aristath/swarmtrader/internal/database"
	"github.com/aristath/swarmtrader/internal/domain"
	"github.com/aristath/swarmtrader/internal/sharedstate"
)

// minPatternValue is the §4.12 persistence floor: "for each record with
// pattern_current_value ≥ 40".
const minPatternValue = 40.0

// Archiver scans shared state for policy:* records and persists the
// high-value ones. It is invoked both on the scheduler's archive-tick
// cadence and once more by the shutdown coordinator during a hard-cancel;
// it is not itself stepped by the scheduler, but embeds agent.Base for a
// consistent identity in logs.
type Archiver struct {
	agent.Base

	log   zerolog.Logger
	state *sharedstate.Map
	repo  *database.PatternRepository
}

// New constructs an Archiver over state, persisting through repo.
func New(ids *agent.IDAllocator, log zerolog.Logger, state *sharedstate.Map, repo *database.PatternRepository) *Archiver {
	a := &Archiver{
		Base:  agent.NewBase(ids, agent.KindArchiver),
		state: state,
		repo:  repo,
	}
	a.log = log.With().Str("component", "archiver").Str("agent", a.Name()).Logger()
	return a
}

// Run scans policy:* and persists every record whose pattern_current_value
// is at least minPatternValue, in a single batch transaction (§4.12). It
// accepts the scheduler's step_counter for logging only.
func (a *Archiver) Run(stepCounter uint64) {
	keys := a.state.KeysByPrefix(domain.PolicyKeyPrefix)

	var candidates []domain.ArchivedPattern
	for _, key := range keys {
		var rec domain.PolicyRecord
		ok, err := a.state.GetJSON(key, &rec)
		if err != nil || !ok {
			continue
		}
		if rec.PatternCurrentValue < minPatternValue {
			continue
		}

		rawFeatures, err := json.Marshal(rec.RawFeatures)
		if err != nil {
			a.log.Warn().Err(err).Str("key", key).Msg("failed to serialize raw features")
			continue
		}

		candidates = append(candidates, domain.ArchivedPattern{
			AgentID:      rec.AgentID,
			Timestamp:    float64(time.Now().Unix()),
			PatternValue: rec.PatternCurrentValue,
			RawFeatures:  string(rawFeatures),
			AgeMinutes:   rec.PatternAgeMinutes,
			DecayFactor:  rec.PatternDecayFactor,
		})
	}

	if len(candidates) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	inserted, rowErrs := a.repo.InsertBatch(ctx, candidates)
	for _, err := range rowErrs {
		a.log.Error().Err(err).Msg("pattern archival row failed")
	}
	a.log.Info().Uint64("step", stepCounter).Int("scanned", len(keys)).Int("candidates", len(candidates)).Int("inserted", inserted).Msg("archive sweep complete")
}
