// Package bus implements the in-process, topic-addressed publish/subscribe
// fabric described in the specification's Message Bus component (§4.1).
//
// The wire contract is written as though a real broker sat behind this API
// (the specification is explicit that "the bus is backed by an external
// broker in source, which may disconnect"): payloads are msgpack-encoded
// once per Publish and decoded back into a fresh value before fan-out, so a
// careless subscriber mutating its own copy's top-level fields cannot affect
// another subscriber's view, and Disconnect/reconnect semantics are real
// operations rather than no-ops.
package bus

import (
	"context"
	"fmt"
	"math/rand"
	"reflect"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/swarmtrader/internal/errs"
)

// DefaultQueueCapacity bounds each subscription's delivery queue (§5: "an
// implementation may bound them and drop oldest on overflow").
const DefaultQueueCapacity = 1024

const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 60 * time.Second
	healthInterval = 30 * time.Second
)

// Handle is the opaque subscription identifier returned by Subscribe.
type Handle uint64

// Handler receives a decoded, read-only payload.
type Handler func(payload any)

type subscription struct {
	handle  Handle
	topic   string
	handler Handler
	queue   chan any
	cancel  context.CancelFunc
	dropped uint64
	mu      sync.Mutex
}

// Bus is a single-process, concurrent, at-most-once message broadcaster.
// Each subscription owns an independent bounded delivery queue and worker
// goroutine, so a slow callback on one topic cannot starve another (§4.1,
// §5). Within one (topic, subscriber) pair, delivery is FIFO; across
// subscribers or topics, no ordering is guaranteed.
type Bus struct {
	log zerolog.Logger

	mu            sync.RWMutex
	closed        bool
	connected     bool
	subsByTopic   map[string][]*subscription
	subsByHandle  map[Handle]*subscription
	nextHandle    Handle
	queueCapacity int

	healthStop chan struct{}
	healthOnce sync.Once

	// DialFunc, when set, replaces the default always-succeeds reconnect
	// handshake. Exposed for tests exercising the backoff schedule.
	DialFunc func() bool
}

// New creates a Bus and starts its periodic connection-health probe.
func New(log zerolog.Logger) *Bus {
	return NewWithCapacity(log, DefaultQueueCapacity)
}

// NewWithCapacity is New with an explicit per-subscription queue capacity.
func NewWithCapacity(log zerolog.Logger, queueCapacity int) *Bus {
	if queueCapacity <= 0 {
		queueCapacity = DefaultQueueCapacity
	}
	b := &Bus{
		log:           log.With().Str("component", "bus").Logger(),
		connected:     true,
		subsByTopic:   make(map[string][]*subscription),
		subsByHandle:  make(map[Handle]*subscription),
		queueCapacity: queueCapacity,
		healthStop:    make(chan struct{}),
	}
	go b.healthLoop()
	return b
}

// Publish enqueues a copy of payload to every current subscriber of topic.
// publish on a closed bus is a silent drop (§4.1). Delivery failures for one
// subscriber never block another: each subscriber has its own queue, and a
// full queue drops the oldest entry rather than blocking the publisher.
func (b *Bus) Publish(topic string, payload any) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	subs := append([]*subscription(nil), b.subsByTopic[topic]...)
	b.mu.RUnlock()

	if len(subs) == 0 {
		return
	}

	encoded, err := msgpack.Marshal(payload)
	if err != nil {
		b.log.Warn().Err(err).Str("topic", topic).Msg("failed to encode payload, dropping publish")
		return
	}

	for _, sub := range subs {
		decoded, err := decodeInto(payload, encoded)
		if err != nil {
			b.log.Warn().Err(err).Str("topic", topic).Msg("failed to decode payload for subscriber")
			continue
		}
		sub.enqueue(decoded, b.log)
	}
}

// decodeInto round-trips payload through msgpack into a fresh value of the
// same concrete type, so each subscriber gets an independent decode rather
// than sharing one Go value by reference.
func decodeInto(payload any, encoded []byte) (any, error) {
	t := reflect.TypeOf(payload)
	if t == nil {
		return payload, nil
	}
	ptr := reflect.New(t)
	if err := msgpack.Unmarshal(encoded, ptr.Interface()); err != nil {
		return nil, err
	}
	return ptr.Elem().Interface(), nil
}

func (s *subscription) enqueue(payload any, log zerolog.Logger) {
	select {
	case s.queue <- payload:
	default:
		// Bounded queue full: drop oldest, then push (§5 documented choice).
		select {
		case <-s.queue:
			s.mu.Lock()
			s.dropped++
			s.mu.Unlock()
			log.Warn().Str("topic", s.topic).Msg("subscriber queue full, dropped oldest message")
		default:
		}
		select {
		case s.queue <- payload:
		default:
		}
	}
}

// Subscribe registers handler to receive subsequent messages on topic.
// Subscribe on a closed bus fails with errs.ErrBusClosed (§4.1).
func (b *Bus) Subscribe(topic string, handler Handler) (Handle, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return 0, fmt.Errorf("subscribe topic %q: %w", topic, errs.ErrBusClosed)
	}
	b.nextHandle++
	handle := b.nextHandle
	ctx, cancel := context.WithCancel(context.Background())
	sub := &subscription{
		handle:  handle,
		topic:   topic,
		handler: handler,
		queue:   make(chan any, b.queueCapacity),
		cancel:  cancel,
	}
	b.subsByTopic[topic] = append(b.subsByTopic[topic], sub)
	b.subsByHandle[handle] = sub
	b.mu.Unlock()

	go sub.run(ctx, b.log)
	return handle, nil
}

func (s *subscription) run(ctx context.Context, log zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-s.queue:
			safeInvoke(s.handler, payload, s.topic, log)
		}
	}
}

// safeInvoke contains a subscriber's panic the way the scheduler contains an
// agent's (§4.3, §7): a callback failure is logged, never propagated.
func safeInvoke(handler Handler, payload any, topic string, log zerolog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("topic", topic).Msg("subscriber callback panicked")
		}
	}()
	handler(payload)
}

// Unsubscribe removes a subscription, used on shutdown.
func (b *Bus) Unsubscribe(handle Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subsByHandle[handle]
	if !ok {
		return
	}
	delete(b.subsByHandle, handle)
	list := b.subsByTopic[sub.topic]
	for i, s := range list {
		if s.handle == handle {
			b.subsByTopic[sub.topic] = append(list[:i], list[i+1:]...)
			break
		}
	}
	sub.cancel()
}

// Close shuts the bus down: no further Publish takes effect and Subscribe
// fails with errs.ErrBusClosed.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, sub := range b.subsByHandle {
		sub.cancel()
	}
	b.mu.Unlock()

	b.healthOnce.Do(func() { close(b.healthStop) })
}

// Healthy reports the bus's last-probed connection state (§4.1: "Connection
// health is probed periodically (default 30s)").
func (b *Bus) Healthy() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connected && !b.closed
}

func (b *Bus) healthLoop() {
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-b.healthStop:
			return
		case <-ticker.C:
			b.mu.RLock()
			connected := b.connected
			b.mu.RUnlock()
			if !connected {
				b.log.Warn().Msg("bus probe: disconnected, attempting reconnect")
				b.Reconnect()
			}
		}
	}
}

// SimulateDisconnect marks the bus as disconnected from its backing broker
// without dropping registered subscriptions, exercising the same code path
// a real broker disconnect would (used by tests; §8 property 9).
func (b *Bus) SimulateDisconnect() {
	b.mu.Lock()
	b.connected = false
	b.mu.Unlock()
}

// Reconnect re-arms the bus with exponential backoff (initial 1s, cap 60s).
// Subscriptions registered before the disconnect remain valid — only
// messages published during the outage are lost (§4.1). Each attempt calls
// dial; setting the DialFunc field replaces it, so a failing dial can
// exercise the backoff schedule.
func (b *Bus) Reconnect() {
	backoff := initialBackoff
	for attempt := 1; ; attempt++ {
		b.mu.RLock()
		closed := b.closed
		b.mu.RUnlock()
		if closed {
			return
		}

		if b.dial() {
			b.mu.Lock()
			b.connected = true
			b.mu.Unlock()
			b.log.Info().Int("attempt", attempt).Msg("bus reconnected")
			return
		}

		jitter := time.Duration(rand.Int63n(int64(backoff/4 + 1)))
		time.Sleep(backoff + jitter)
		if backoff < maxBackoff {
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
}

// dial defaults to always succeeding: the in-process bus has no real broker
// handshake to perform. DialFunc lets tests simulate a flaky broker.
func (b *Bus) dial() bool {
	if b.DialFunc != nil {
		return b.DialFunc()
	}
	return true
}
