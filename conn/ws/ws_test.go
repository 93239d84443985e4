package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTripOverRealSocket(t *testing.T) {
	var serverConn *Conn
	serverReady := make(chan struct{})

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		c, err := Upgrade(w, r)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		serverConn = c
		if err := c.Connect(); err != nil {
			t.Errorf("server connect failed: %v", err)
			return
		}
		close(serverReady)
		<-r.Context().Done()
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	client := Dial(url, nil)

	got := make(chan []any, 1)
	client.OnMessage(func(msg []any) { got <- msg })

	require.NoError(t, client.Connect())

	select {
	case <-serverReady:
	case <-time.After(2 * time.Second):
		t.Fatal("server never finished upgrading")
	}

	serverConn.Send([]any{"ping", float64(1)})

	select {
	case msg := <-got:
		require.Len(t, msg, 2)
		assert.Equal(t, "ping", msg[0])
	case <-time.After(2 * time.Second):
		t.Fatal("client never received the server's message")
	}

	_ = client.Disconnect("done")
}
