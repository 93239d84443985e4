package node

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CanRau/logux-core/actionlog"
	"github.com/CanRau/logux-core/conn/pair"
	"github.com/CanRau/logux-core/store/memory"
)

func seqClock(values ...int64) Clock {
	i := 0
	return func() int64 {
		v := values[i]
		if i < len(values)-1 {
			i++
		}
		return v
	}
}

func newTestNodes(t *testing.T, clientCfg, serverCfg Config) (client, server *Node, clientLog, serverLog *actionlog.Log) {
	t.Helper()
	clientLog, err := actionlog.New("client", memory.New(), func() int64 { return 1 })
	require.NoError(t, err)
	serverLog, err = actionlog.New("server", memory.New(), func() int64 { return 1 })
	require.NoError(t, err)
	a, b := pair.New()
	client = NewClientNode("client", clientLog, a, clientCfg)
	server = NewServerNode("server", serverLog, b, serverCfg)
	return client, server, clientLog, serverLog
}

func waitState(t *testing.T, n *Node, s State) {
	t.Helper()
	select {
	case <-n.WaitFor(s):
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for state %s, currently %s", s, n.State())
	}
}

func TestHandshakeReachesSynchronized(t *testing.T) {
	client, server, _, _ := newTestNodes(t,
		Config{Proto: 1, MinProtocol: 1, Clock: seqClock(10)},
		Config{Proto: 1, MinProtocol: 1, Clock: seqClock(2, 3)},
	)
	defer client.Destroy()
	defer server.Destroy()

	require.NoError(t, server.Connect())
	require.NoError(t, client.Connect())

	waitState(t, client, Synchronized)
	waitState(t, server, Synchronized)
}

func TestWrongProtocolIsRejected(t *testing.T) {
	client, server, _, _ := newTestNodes(t,
		Config{Proto: 1, MinProtocol: 1, Clock: seqClock(10)},
		Config{Proto: 2, MinProtocol: 2, Clock: seqClock(2, 3)},
	)
	defer client.Destroy()
	defer server.Destroy()

	var got *DomainError
	done := make(chan struct{})
	client.OnClientError(func(de *DomainError) {
		got = de
		close(done)
	})

	require.NoError(t, server.Connect())
	require.NoError(t, client.Connect())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a wrong-protocol error on the client")
	}
	assert.Equal(t, KindWrongProtocol, got.Kind)
}

func TestConnectListenerRejectsPeer(t *testing.T) {
	client, server, _, _ := newTestNodes(t,
		Config{Proto: 1, MinProtocol: 1, Clock: seqClock(10), Subprotocol: "2.0.0"},
		Config{
			Proto: 1, MinProtocol: 1, Clock: seqClock(2, 3),
			ConnectListener: func(nodeId, subprotocol string) error {
				if subprotocol != "1.0.0" {
					return &DomainError{Kind: KindWrongSubprotocol, Options: map[string]any{"used": subprotocol}}
				}
				return nil
			},
		},
	)
	defer client.Destroy()
	defer server.Destroy()

	var got *DomainError
	done := make(chan struct{})
	client.OnClientError(func(de *DomainError) {
		got = de
		close(done)
	})

	require.NoError(t, server.Connect())
	require.NoError(t, client.Connect())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a wrong-subprotocol error on the client")
	}
	assert.Equal(t, KindWrongSubprotocol, got.Kind)
}

func TestWrongFormatDisconnects(t *testing.T) {
	client, server, _, _ := newTestNodes(t, Config{}, Config{Clock: seqClock(1)})
	defer client.Destroy()
	defer server.Destroy()

	require.NoError(t, server.Connect())

	raw := client.conn.(interface{ SendRaw([]byte) })
	done := make(chan struct{})
	server.OnDisconnect(func(string) { close(done) })
	raw.SendRaw([]byte(`{"hi":1}`))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected server to disconnect after a malformed frame")
	}
}
