package domain

// PolicyRecord is an agent's latest belief-state vector, written into shared
// state under PolicyKey(name) and subject to the decay invariant (§3):
//
//	pattern_decay_factor = max(0, 1 - 0.005*age_minutes)
//	pattern_current_value = prediction_score * decay_factor * 100
type PolicyRecord struct {
	PredictionScore     float64   `json:"prediction_score"`
	StrategyVector      [4]float64 `json:"strategy_vector"` // [rsi_thresh, atr_mult, mom, rsi_conf]
	ClosePrice          float64   `json:"close_price"`
	ParentID            *uint64   `json:"parent_id,omitempty"`
	Generation          int       `json:"generation"`
	BirthTimestamp      float64   `json:"birth_timestamp"`
	AgentID             uint64    `json:"agent_id"`
	ProductFocus        string    `json:"product_focus"`
	PatternAgeMinutes   float64   `json:"pattern_age_minutes"`
	PatternDecayFactor  float64   `json:"pattern_decay_factor"`
	PatternCurrentValue float64   `json:"pattern_current_value"`
	RawFeatures         map[string]float64 `json:"raw_features"`
}

// DecayFactor implements the decay invariant (§3, invariant 3).
func DecayFactor(ageMinutes float64) float64 {
	d := 1 - 0.005*ageMinutes
	if d < 0 {
		return 0
	}
	return d
}

// CurrentValue implements pattern_current_value = prediction_score * decay * 100.
func CurrentValue(predictionScore, decayFactor float64) float64 {
	return predictionScore * decayFactor * 100
}

// PositionState is the open-position side of a Position (§3).
type PositionState struct {
	EntryPrice float64
	Direction  Direction
}

// Stream identifies one of the three parallel P&L streams tracked by the
// synthesizer (§4.8).
type Stream string

const (
	StreamBaseline    Stream = "baseline"
	StreamMycelial    Stream = "mycelial"
	StreamSynthesized Stream = "synthesized"
)

// ProbationLevel is 0 (healthy), 1, or 2 (§4.10).
type ProbationLevel int

const (
	ProbationNone ProbationLevel = 0
	ProbationOne  ProbationLevel = 1
	ProbationTwo  ProbationLevel = 2
)

// PositionSizeMultiplier implements the invariant in §3:
// {0:1.0, 1:0.5, 2:0.25}[probation_level].
func PositionSizeMultiplier(level ProbationLevel) float64 {
	switch level {
	case ProbationOne:
		return 0.5
	case ProbationTwo:
		return 0.25
	default:
		return 1.0
	}
}

// AssetRecord is the P&L tracker's per-pair lifecycle state (§3).
type AssetRecord struct {
	Pair                  string
	CumulativePnL         float64
	TradeCount            int
	WinCount              int
	LossCount             int
	ProbationLevel        ProbationLevel
	PositionSizeMultiplier float64
	FirstTradeTS          float64
	LastTradeTS           float64
	ProbationStartTS      *float64
	WorstDrawdown         float64
}

// ArchivedPattern is the durable row the archiver appends for high-value
// policies (§3, §4.12).
type ArchivedPattern struct {
	ID            int64
	AgentID       uint64
	Timestamp     float64
	PatternValue  float64
	RawFeatures   string // serialized JSON blob
	AgeMinutes    float64
	DecayFactor   float64
	CreatedAt     float64
}

// TradeResult is WIN or LOSS (§3).
type TradeResult string

const (
	ResultWin  TradeResult = "WIN"
	ResultLoss TradeResult = "LOSS"
)

// Trade is the durable row persisted for every closed synthesized trade (§3). Unique
// on TradeID; duplicates are ignored by the repository layer.
type Trade struct {
	TradeID             string
	Pair                string
	StrategyType         string
	AgentID              uint64
	PatternID            *int64
	EntryTS              float64
	ExitTS               float64
	HoldSeconds          float64
	EntryPrice           float64
	ExitPrice            float64
	PriceChangePct       float64
	PnLPct               float64 // net, after trading costs
	PnLAbsolute          float64
	Result               TradeResult
	SignalSource         string
	PredictionScore      *float64
	CrossMoatScore       float64
	CollisionDetected    bool
	PositionSize         float64
	FeesPaid             float64
	SlippagePct          float64
}
