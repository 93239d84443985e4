package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixTimeMatchesReferenceScenario(t *testing.T) {
	baseTime, timeFix := fixTime(10000, 11101, 50, 1050)
	assert.Equal(t, int64(1050), baseTime)
	assert.Equal(t, int64(10000), timeFix)
}

func TestFixTimeAppliedDuringHandshake(t *testing.T) {
	client, server, _, _ := newTestNodes(t,
		Config{Proto: 1, MinProtocol: 1, FixTime: true, Clock: seqClock(10000, 11101)},
		Config{Proto: 1, MinProtocol: 1, FixTime: true, Clock: seqClock(50, 1050)},
	)
	defer client.Destroy()
	defer server.Destroy()

	require.NoError(t, server.Connect())
	require.NoError(t, client.Connect())

	waitState(t, client, Synchronized)
	waitState(t, server, Synchronized)

	done := make(chan struct{})
	client.enqueue(func() {
		assert.Equal(t, int64(1050), client.baseTime)
		assert.Equal(t, int64(10000), client.timeFix)
		close(done)
	})
	<-done
}
