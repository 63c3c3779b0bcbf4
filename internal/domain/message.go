package domain

// Direction is a trade idea's side.
type Direction string

const (
	Buy  Direction = "buy"
	Sell Direction = "sell"
)

// OrderType mirrors the exchange connector's order_type parameter.
type OrderType string

const (
	OrderMarket OrderType = "market"
	OrderLimit  OrderType = "limit"
)

// FeatureFrame is a producer's enriched observation of one target at one
// point in time (§3). Market frames carry close/high/low plus derived
// RSI/ATR/MOM once the producer's rolling buffer has enough samples; moat
// frames carry a fixed schema per moat.
type FeatureFrame struct {
	Source    string             `json:"source" msgpack:"source"`
	Timestamp float64            `json:"timestamp" msgpack:"timestamp"` // seconds since epoch
	Target    string             `json:"target" msgpack:"target"`
	Features  map[string]float64 `json:"features" msgpack:"features"`
	Strings   map[string]string  `json:"strings,omitempty" msgpack:"strings,omitempty"`
}

// Feature returns a numeric feature, and whether it was present.
func (f *FeatureFrame) Feature(name string) (float64, bool) {
	v, ok := f.Features[name]
	return v, ok
}

// TradeIdea is produced independently by the baseline (technical-analysis)
// and mycelial (pattern-learner) signal producers (§3).
type TradeIdea struct {
	Source        string    `json:"source" msgpack:"source"`
	Pair          string    `json:"pair" msgpack:"pair"`
	Direction     Direction `json:"direction" msgpack:"direction"`
	OrderType     OrderType `json:"order_type" msgpack:"order_type"`
	Amount        float64   `json:"amount" msgpack:"amount"`
	CurrentPrice  float64   `json:"current_price" msgpack:"current_price"`
	Timestamp     float64   `json:"timestamp" msgpack:"timestamp"`
	Confidence    float64   `json:"confidence" msgpack:"confidence"`

	// Baseline-specific (C6).
	SignalType      string  `json:"signal_type,omitempty" msgpack:"signal_type,omitempty"`
	IndicatorValue  float64 `json:"indicator_value,omitempty" msgpack:"indicator_value,omitempty"`

	// Mycelial-specific (C7).
	PredictionScore      float64 `json:"prediction_score,omitempty" msgpack:"prediction_score,omitempty"`
	InterestingnessScore float64 `json:"interestingness_score,omitempty" msgpack:"interestingness_score,omitempty"`
	SimulatedPnL         float64 `json:"simulated_pnl,omitempty" msgpack:"simulated_pnl,omitempty"`
	TotalPnL             float64 `json:"total_pnl,omitempty" msgpack:"total_pnl,omitempty"`
	WinRate              float64 `json:"win_rate,omitempty" msgpack:"win_rate,omitempty"`
	TradeCount           int     `json:"trade_count,omitempty" msgpack:"trade_count,omitempty"`
	ProductFocus         string  `json:"product_focus,omitempty" msgpack:"product_focus,omitempty"`
}

// Clone returns a deep-enough copy for at-most-once, read-only delivery
// (§4.1: "subscribers must treat them as read-only" — the bus still copies
// defensively so a careless subscriber mutating its own copy cannot affect
// others).
func (t TradeIdea) Clone() TradeIdea { return t }

// SystemControlCommand enumerates the system-control payload's `command`.
type SystemControlCommand string

const (
	CommandHaltTrading       SystemControlCommand = "HALT_TRADING"
	CommandEmergencyShutdown SystemControlCommand = "EMERGENCY_SHUTDOWN"
	CommandForceShare        SystemControlCommand = "FORCE_SHARE"
)

// SystemControl is the payload carried on TopicSystemControl.
type SystemControl struct {
	Command SystemControlCommand `json:"command" msgpack:"command"`
	Reason  string                `json:"reason,omitempty" msgpack:"reason,omitempty"`
	Group   string                `json:"group,omitempty" msgpack:"group,omitempty"`
	Source  string                `json:"source,omitempty" msgpack:"source,omitempty"`
}

// TradeConfirmation is published by the synthesizer once an order clears.
type TradeConfirmation struct {
	Pair          string    `json:"pair" msgpack:"pair"`
	Direction     Direction `json:"direction" msgpack:"direction"`
	Amount        float64   `json:"amount" msgpack:"amount"`
	EntryPrice    float64   `json:"entry_price,omitempty" msgpack:"entry_price,omitempty"`
	ExitPrice     float64   `json:"exit_price,omitempty" msgpack:"exit_price,omitempty"`
	RealizedPnLPct float64  `json:"realized_pnl_pct,omitempty" msgpack:"realized_pnl_pct,omitempty"`
	Timestamp     float64   `json:"timestamp" msgpack:"timestamp"`
}

// SynthesizedLogEntry is published on TopicSynthesizedTradeLog after a
// collision executes (§4.8).
type SynthesizedLogEntry struct {
	Pair               string    `json:"pair" msgpack:"pair"`
	Direction          Direction `json:"direction" msgpack:"direction"`
	EntryPrice         float64   `json:"entry_price" msgpack:"entry_price"`
	Timestamp          float64   `json:"timestamp" msgpack:"timestamp"`
	BaselineCumPnL     float64   `json:"baseline_cum_pnl" msgpack:"baseline_cum_pnl"`
	MycelialCumPnL     float64   `json:"mycelial_cum_pnl" msgpack:"mycelial_cum_pnl"`
	SynthesizedCumPnL  float64   `json:"synthesized_cum_pnl" msgpack:"synthesized_cum_pnl"`
	BaselineTrades     int       `json:"baseline_trades" msgpack:"baseline_trades"`
	MycelialTrades     int       `json:"mycelial_trades" msgpack:"mycelial_trades"`
	SynthesizedTrades  int       `json:"synthesized_trades" msgpack:"synthesized_trades"`
}

// HibernationNotice is published on TopicSystemHibernation (§4.10).
type HibernationNotice struct {
	Pair           string  `json:"pair" msgpack:"pair"`
	Reason         string  `json:"reason" msgpack:"reason"`
	FinalPnL       float64 `json:"final_pnl" msgpack:"final_pnl"`
	ProbationDays  float64 `json:"probation_days" msgpack:"probation_days"`
	Timestamp      float64 `json:"timestamp" msgpack:"timestamp"`
}

// BuildRequest is published on TopicSystemBuildRequest when a pattern-learner
// detects it lacks a tool for the regime it is observing (§4.7 step 4).
type BuildRequest struct {
	ToolNeeded string `json:"tool_needed" msgpack:"tool_needed"`
	Reason     string `json:"reason" msgpack:"reason"`
	Source     string `json:"source" msgpack:"source"`
}

// ProspectingProposal is published on a team's proposals topic (§4.11).
type ProspectingProposal struct {
	Pair       string             `json:"pair" msgpack:"pair"`
	Team       ProspectingTeam    `json:"team" msgpack:"team"`
	Score      int                `json:"score" msgpack:"score"`
	Confidence float64            `json:"confidence" msgpack:"confidence"`
	Breakdown  map[string]int     `json:"breakdown" msgpack:"breakdown"`
	AgentName  string             `json:"agent_name" msgpack:"agent_name"`
}

// ProspectingConsensus is published once 2-of-3 team members agree (§4.11).
type ProspectingConsensus struct {
	Pair       string          `json:"pair" msgpack:"pair"`
	Team       ProspectingTeam `json:"team" msgpack:"team"`
	Confidence float64         `json:"confidence" msgpack:"confidence"`
	Votes      int             `json:"votes" msgpack:"votes"`
}
