package tcp

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTripOverLoopback(t *testing.T) {
	ln, err := Listen(context.Background(), "127.0.0.1:0", nil)
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan *Conn, 1)
	go func() {
		nc, err := ln.Accept()
		if err != nil {
			return
		}
		accepted <- Wrap(nc)
	}()

	client, err := Dial(context.Background(), ln.Addr().String(), nil)
	require.NoError(t, err)
	require.NoError(t, client.Connect())

	var server *Conn
	select {
	case server = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted")
	}
	require.NoError(t, server.Connect())

	got := make(chan []any, 1)
	client.OnMessage(func(msg []any) { got <- msg })

	server.Send([]any{"ping", float64(1)})

	select {
	case msg := <-got:
		require.Len(t, msg, 2)
		assert.Equal(t, "ping", msg[0])
	case <-time.After(2 * time.Second):
		t.Fatal("client never received the server's message")
	}

	_ = client.Disconnect("done")
	_ = server.Disconnect("done")
}

func TestDialWithRetrySucceedsOnceListenerOpens(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ln, err := Listen(context.Background(), "127.0.0.1:0", nil)
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	relisten := make(chan struct{})
	go func() {
		<-relisten
		l2, err := net.Listen("tcp", addr)
		if err == nil {
			defer l2.Close()
			l2.Accept()
		}
	}()

	go func() {
		time.Sleep(100 * time.Millisecond)
		close(relisten)
	}()

	var failures int
	_, err = DialWithRetry(ctx, addr, nil, func(error) { failures++ })
	require.NoError(t, err)
	assert.Greater(t, failures, 0, "expected at least one failed attempt before the listener reopened")
}
