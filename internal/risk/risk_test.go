package risk

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/swarmtrader/internal/agent"
	"github.com/aristath/swarmtrader/internal/bus"
	"github.com/aristath/swarmtrader/internal/domain"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestManager_HaltsOnDrawdownBreach(t *testing.T) {
	b := bus.New(zerolog.Nop())
	defer b.Close()

	ch := make(chan domain.SystemControl, 1)
	_, err := b.Subscribe(domain.TopicSystemControl, func(payload any) {
		if ctl, ok := payload.(domain.SystemControl); ok {
			ch <- ctl
		}
	})
	require.NoError(t, err)

	m := New(agent.NewIDAllocator(), zerolog.Nop(), b, 100000, 0.05)

	b.Publish(domain.TopicTradeConfirmations, domain.TradeConfirmation{
		Pair:           "BTC-USD",
		Amount:         1,
		EntryPrice:     60000,
		RealizedPnLPct: -10, // 10% loss on a 60000 notional position breaches 5% drawdown
	})

	waitFor(t, m.IsHalted)
	assert.True(t, m.IsHalted())

	select {
	case ctl := <-ch:
		assert.Equal(t, domain.CommandHaltTrading, ctl.Command)
	case <-time.After(time.Second):
		t.Fatal("expected a halt-trading system control message")
	}
}

func TestManager_NoHaltWithinLimit(t *testing.T) {
	b := bus.New(zerolog.Nop())
	defer b.Close()

	m := New(agent.NewIDAllocator(), zerolog.Nop(), b, 100000, 0.05)

	b.Publish(domain.TopicTradeConfirmations, domain.TradeConfirmation{
		Pair:           "BTC-USD",
		Amount:         1,
		EntryPrice:     60000,
		RealizedPnLPct: -1,
	})

	time.Sleep(50 * time.Millisecond)
	assert.False(t, m.IsHalted())
}
