package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CanRau/logux-core/action"
	"github.com/CanRau/logux-core/node"
)

func TestTestTimeMonotone(t *testing.T) {
	clock := NewTestTime(5)
	a := clock.Next()
	b := clock.Next()
	assert.Equal(t, a+5, b)
}

func TestTestLogGeneratesIdsForNode(t *testing.T) {
	l, _ := TestLog("server")
	m, ok, err := l.Add(action.Action{Type: "a"}, action.Meta{Reasons: []string{"r"}})
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, m.Id)
}

func TestTestPairReachesSynchronized(t *testing.T) {
	p := NewTestPair("client", "server", node.Config{Proto: 1, MinProtocol: 1})
	defer p.Destroy()

	require.NoError(t, p.Connect())

	select {
	case <-p.Client.WaitFor(node.Synchronized):
	case <-time.After(2 * time.Second):
		t.Fatal("client never reached synchronized")
	}
	select {
	case <-p.Server.WaitFor(node.Synchronized):
	case <-time.After(2 * time.Second):
		t.Fatal("server never reached synchronized")
	}
}
