// Package exchange describes the market-data/exchange connector interface.
// The connector itself is an external collaborator and out of scope for
// this specification (§1); this package defines only the interface the core
// consumes (§6) plus one reference paper-trading implementation so the
// system is runnable end to end.
package exchange

import (
	"context"

	"github.com/aristath/swarmtrader/internal/domain"
)

// Ticker is the connector's snapshot quote for a pair (§6).
type Ticker struct {
	Bid       float64
	Ask       float64
	High24h   float64
	Low24h    float64
	Close     float64
	Open      float64
	Volume24h float64
}

// OHLCBar is one candle from the connector's ohlc() call (§6).
type OHLCBar struct {
	Timestamp float64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// TradablePair is one entry from tradable_pairs() (§6).
type TradablePair struct {
	Pair   string
	Status string // e.g. "online"
	Quote  string // e.g. "USD"
}

// OrderResult is place_order()'s return value (§6). The specification notes
// the source passes validate=true (a dry run); a successful Status here
// counts as "executed" for downstream P&L regardless of whether fills are
// live (§9 Open Questions).
type OrderResult struct {
	Status  string
	OrderID string
}

// Connector is every external market/exchange operation the core consumes.
type Connector interface {
	Ticker(ctx context.Context, pair string) (Ticker, error)
	OHLC(ctx context.Context, pair string, intervalMinutes int, since float64) ([]OHLCBar, error)
	TradablePairs(ctx context.Context) ([]TradablePair, error)
	PlaceOrder(ctx context.Context, pair string, orderType domain.OrderType, direction domain.Direction, amount float64, price float64) (OrderResult, error)
	AccountBalance(ctx context.Context) (map[string]float64, error)
}
