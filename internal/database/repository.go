package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aristath/swarmtrader/internal/domain"
)

// PatternRepository persists ArchivedPattern rows (§3, §4.12).
type PatternRepository struct {
	db *DB
}

// NewPatternRepository wraps db for pattern archival.
func NewPatternRepository(db *DB) *PatternRepository { return &PatternRepository{db: db} }

// InsertBatch appends rows in a single transaction. Per-row failures are
// logged by the caller and skipped; the batch commits what it can (§4.12,
// §7: "Failures on individual rows are logged; the batch commits what it
// can").
func (r *PatternRepository) InsertBatch(ctx context.Context, rows []domain.ArchivedPattern) (inserted int, rowErrs []error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, []error{fmt.Errorf("begin pattern batch: %w", err)}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO patterns (agent_id, timestamp, pattern_value, raw_features, age_minutes, decay_factor)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		_ = tx.Rollback()
		return 0, []error{fmt.Errorf("prepare pattern insert: %w", err)}
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row.AgentID, row.Timestamp, row.PatternValue, row.RawFeatures, row.AgeMinutes, row.DecayFactor); err != nil {
			rowErrs = append(rowErrs, fmt.Errorf("insert pattern for agent %d: %w", row.AgentID, err))
			continue
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return inserted, append(rowErrs, fmt.Errorf("commit pattern batch: %w", err))
	}
	return inserted, rowErrs
}

// TradeRepository persists Trade rows (§3). Unique on trade_id; duplicates
// are ignored.
type TradeRepository struct {
	db *DB
}

// NewTradeRepository wraps db for trade persistence.
func NewTradeRepository(db *DB) *TradeRepository { return &TradeRepository{db: db} }

// Insert appends one trade row, silently ignoring a duplicate trade_id
// (§3: "Duplicate trade_id is ignored").
func (r *TradeRepository) Insert(ctx context.Context, t domain.Trade) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO trades (
			trade_id, pair, strategy_type, agent_id, pattern_id,
			entry_ts, exit_ts, hold_seconds, entry_price, exit_price,
			price_change_pct, pnl_pct, pnl_absolute, result, signal_source,
			prediction_score, cross_moat_score, collision_detected,
			position_size, fees_paid, slippage_pct
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.TradeID, t.Pair, t.StrategyType, t.AgentID, nullableInt64(t.PatternID),
		t.EntryTS, t.ExitTS, t.HoldSeconds, t.EntryPrice, t.ExitPrice,
		t.PriceChangePct, t.PnLPct, t.PnLAbsolute, string(t.Result), t.SignalSource,
		nullableFloat64(t.PredictionScore), t.CrossMoatScore, t.CollisionDetected,
		t.PositionSize, t.FeesPaid, t.SlippagePct,
	)
	if err != nil {
		return fmt.Errorf("insert trade %s: %w", t.TradeID, err)
	}
	return nil
}

func nullableInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullableFloat64(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
