package di

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aristath/swarmtrader/internal/domain"
	"github.com/aristath/swarmtrader/internal/sharedstate"
)

func seedPolicy(t *testing.T, state *sharedstate.Map, name string, momentum float64) {
	t.Helper()
	rec := domain.PolicyRecord{StrategyVector: [4]float64{0, 0, momentum, 0}}
	require := assert.New(t)
	require.NoError(state.SetJSON(domain.PolicyKey(name), rec))
}

func TestContagionCheck_BelowSampleSize(t *testing.T) {
	state := sharedstate.New()
	seedPolicy(t, state, "a", 1)
	seedPolicy(t, state, "b", 1)

	check := newContagionCheck(state, 0.8)
	triggered, fraction := check()
	assert.False(t, triggered)
	assert.Zero(t, fraction)
}

func TestContagionCheck_TriggersOnConsensus(t *testing.T) {
	state := sharedstate.New()
	for i := 0; i < 4; i++ {
		seedPolicy(t, state, string(rune('a'+i)), 1)
	}
	seedPolicy(t, state, "e", -1)

	check := newContagionCheck(state, 0.8)
	triggered, fraction := check()
	assert.True(t, triggered)
	assert.InDelta(t, 0.8, fraction, 1e-9)
}

func TestContagionCheck_NoConsensus(t *testing.T) {
	state := sharedstate.New()
	for i := 0; i < 3; i++ {
		seedPolicy(t, state, string(rune('a'+i)), 1)
	}
	for i := 0; i < 3; i++ {
		seedPolicy(t, state, string(rune('x'+i)), -1)
	}

	check := newContagionCheck(state, 0.8)
	triggered, _ := check()
	assert.False(t, triggered)
}
