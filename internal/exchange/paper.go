package exchange

import (
	"context"
	"crypto/tls"
	"fmt"
	"math"
	"math/rand"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/aristath/swarmtrader/internal/domain"
)

const (
	dialTimeout          = 30 * time.Second
	baseReconnectDelay   = 5 * time.Second
	maxReconnectDelay    = 5 * time.Minute
	cacheStaleThreshold  = 5 * time.Minute
)

// tick is one price update the optional live feed emits.
type tick struct {
	Pair  string  `json:"pair"`
	Price float64 `json:"price"`
}

// PaperConnector is a reference, paper-trading implementation of Connector.
// It never places a live order: PlaceOrder always reports an "executed"
// status with a fresh order id and changes no price or balance, mirroring
// the specification's note that
// a validated dry-run counts as executed for downstream P&L (§9).
//
// When FeedURL is configured it maintains a websocket subscription to a
// live ticker feed, reconnecting with exponential backoff exactly like the
// teacher's MarketStatusWebSocket; without one it falls back to a
// pseudo-random synthetic walk so the system is runnable offline.
type PaperConnector struct {
	FeedURL string

	log zerolog.Logger

	mu          sync.RWMutex
	prices      map[string]float64
	lastUpdate  map[string]time.Time
	pairs       []TradablePair
	balances    map[string]float64

	connCtx    context.Context
	cancelFunc context.CancelFunc
	httpClient *http.Client
}

// NewPaperConnector creates a paper connector seeded with the given
// tradable pairs and starting prices.
func NewPaperConnector(log zerolog.Logger, pairs []TradablePair, startingPrices map[string]float64) *PaperConnector {
	ctx, cancel := context.WithCancel(context.Background())
	prices := make(map[string]float64, len(startingPrices))
	for k, v := range startingPrices {
		prices[k] = v
	}
	c := &PaperConnector{
		log:        log.With().Str("component", "paper_connector").Logger(),
		prices:     prices,
		lastUpdate: make(map[string]time.Time),
		pairs:      pairs,
		balances:   map[string]float64{"USD": 100000},
		connCtx:    ctx,
		cancelFunc: cancel,
		httpClient: createHTTP1Client(),
	}
	return c
}

// createHTTP1Client forces HTTP/1.1, matching the teacher's
// MarketStatusWebSocket (needed for brokers that negotiate HTTP/2 via ALPN
// in ways that break the websocket upgrade handshake).
func createHTTP1Client() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			TLSClientConfig: &tls.Config{
				NextProtos: []string{"http/1.1"},
			},
			ForceAttemptHTTP2: false,
		},
	}
}

// StartFeed connects to FeedURL (if set) and applies ticks as they arrive,
// reconnecting with exponential backoff on disconnect (§4.1, §5 — the
// exchange connector owns its own I/O retry policy, not the bus's).
func (c *PaperConnector) StartFeed() {
	if c.FeedURL == "" {
		return
	}
	go c.feedLoop()
}

// Close stops the feed loop and releases connector resources.
func (c *PaperConnector) Close() {
	c.cancelFunc()
}

func (c *PaperConnector) feedLoop() {
	delay := baseReconnectDelay
	for {
		select {
		case <-c.connCtx.Done():
			return
		default:
		}

		if err := c.runFeedOnce(); err != nil {
			c.log.Warn().Err(err).Dur("retry_in", delay).Msg("market feed disconnected, backing off")
		}

		select {
		case <-c.connCtx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

func (c *PaperConnector) runFeedOnce() error {
	dialCtx, cancel := context.WithTimeout(c.connCtx, dialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, c.FeedURL, &websocket.DialOptions{HTTPClient: c.httpClient})
	if err != nil {
		return fmt.Errorf("dial market feed: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	for {
		var t tick
		if err := wsjson.Read(c.connCtx, conn, &t); err != nil {
			return fmt.Errorf("read market feed: %w", err)
		}
		c.applyTick(t)
	}
}

func (c *PaperConnector) applyTick(t tick) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[t.Pair] = t.Price
	c.lastUpdate[t.Pair] = time.Now()
}

// syntheticPrice returns a pseudo-random walk when no live feed
// has updated a pair recently (§4.5: producers fall back to cached data on
// fetch failure; here, to synthetic data when there is no feed at all).
func (c *PaperConnector) syntheticPrice(pair string) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	last, ok := c.prices[pair]
	if !ok {
		last = 100 + rand.Float64()*100
	}
	if stale, ok := c.lastUpdate[pair]; !ok || time.Since(stale) > cacheStaleThreshold {
		delta := last * (rand.Float64()*0.02 - 0.01) // +/-1% walk
		last = math.Max(0.01, last+delta)
		c.prices[pair] = last
		c.lastUpdate[pair] = time.Now()
	}
	return last
}

// Ticker implements Connector.
func (c *PaperConnector) Ticker(ctx context.Context, pair string) (Ticker, error) {
	price := c.syntheticPrice(pair)
	spread := price * 0.0005
	return Ticker{
		Bid: price - spread/2, Ask: price + spread/2,
		High24h: price * 1.015, Low24h: price * 0.985,
		Close: price, Open: price * (1 + (rand.Float64()*0.02 - 0.01)),
		Volume24h: 500000 + rand.Float64()*2000000,
	}, nil
}

// OHLC implements Connector with a synthetic history anchored on the
// current price.
func (c *PaperConnector) OHLC(ctx context.Context, pair string, intervalMinutes int, since float64) ([]OHLCBar, error) {
	price := c.syntheticPrice(pair)
	bars := make([]OHLCBar, 0, 50)
	now := float64(time.Now().Unix())
	step := float64(intervalMinutes * 60)
	for i := 49; i >= 0; i-- {
		ts := now - float64(i)*step
		walk := price * (1 + (rand.Float64()*0.01 - 0.005))
		high := walk * (1 + rand.Float64()*0.003)
		low := walk * (1 - rand.Float64()*0.003)
		bars = append(bars, OHLCBar{Timestamp: ts, Open: walk, High: high, Low: low, Close: walk, Volume: rand.Float64() * 1000})
	}
	return bars, nil
}

// TradablePairs implements Connector.
func (c *PaperConnector) TradablePairs(ctx context.Context) ([]TradablePair, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]TradablePair, len(c.pairs))
	copy(out, c.pairs)
	return out, nil
}

// PlaceOrder implements Connector: always fills at the requested price
// (paper trading; see the package doc's note on the validate=true contract).
func (c *PaperConnector) PlaceOrder(ctx context.Context, pair string, orderType domain.OrderType, direction domain.Direction, amount float64, price float64) (OrderResult, error) {
	return OrderResult{Status: "executed", OrderID: uuid.NewString()}, nil
}

// AccountBalance implements Connector.
func (c *PaperConnector) AccountBalance(ctx context.Context) (map[string]float64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]float64, len(c.balances))
	for k, v := range c.balances {
		out[k] = v
	}
	return out, nil
}
