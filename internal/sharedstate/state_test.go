package sharedstate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMap_SetGetRoundtrip(t *testing.T) {
	m := New()
	m.Set("policy:agent-1", []byte("payload"))

	v, ok := m.Get("policy:agent-1")
	assert.True(t, ok)
	assert.Equal(t, []byte("payload"), v)

	_, ok = m.Get("missing")
	assert.False(t, ok)
}

func TestMap_TTLExpiry(t *testing.T) {
	m := New()
	m.SetWithTTL("ephemeral", []byte("x"), 10*time.Millisecond)

	_, ok := m.Get("ephemeral")
	assert.True(t, ok)

	time.Sleep(30 * time.Millisecond)
	_, ok = m.Get("ephemeral")
	assert.False(t, ok)
}

func TestMap_KeysByPrefix(t *testing.T) {
	m := New()
	m.Set("policy:a", []byte("1"))
	m.Set("policy:b", []byte("2"))
	m.Set("moat:code:go", []byte("3"))

	keys := m.KeysByPrefix("policy:")
	assert.ElementsMatch(t, []string{"policy:a", "policy:b"}, keys)
}

type sample struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

func TestMap_JSONRoundtrip(t *testing.T) {
	m := New()
	in := sample{Name: "rsi", Value: 42}
	require := assert.New(t)
	require.NoError(m.SetJSON("typed:key", in))

	var out sample
	ok, err := m.GetJSON("typed:key", &out)
	require.NoError(err)
	require.True(ok)
	require.Equal(in, out)

	ok, err = m.GetJSON("typed:missing", &out)
	require.NoError(err)
	require.False(ok)
}
