package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_AddRemoveActive(t *testing.T) {
	r := New()
	assert.False(t, r.Active("BTC-USD"))
	assert.Equal(t, 0, r.Count())

	now := time.Now()
	r.Add("BTC-USD", now)
	assert.True(t, r.Active("BTC-USD"))
	assert.Equal(t, 1, r.Count())
	assert.Contains(t, r.Pairs(), "BTC-USD")

	r.Remove("BTC-USD")
	assert.False(t, r.Active("BTC-USD"))
	assert.Equal(t, 0, r.Count())
}

func TestRegistry_DeployedWithin(t *testing.T) {
	r := New()
	now := time.Now()
	r.Add("ETH-USD", now)

	assert.True(t, r.DeployedWithin("ETH-USD", time.Hour, now.Add(time.Minute)))
	assert.False(t, r.DeployedWithin("ETH-USD", time.Minute, now.Add(time.Hour)))
	assert.False(t, r.DeployedWithin("SOL-USD", time.Hour, now))
}
