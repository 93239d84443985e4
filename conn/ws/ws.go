// Package ws adapts gorilla/websocket to the conn.Connection
// interface, the real-transport counterpart to conn/pair's in-process
// pairing. Grounded on the teacher corpus's own websocket usage
// (sumanthd032-CollabText's upgrader/ReadMessage/WriteMessage loop) —
// the teacher repo's own transport is raw TCP (see conn/tcp), not
// websocket, so this is adopted from elsewhere in the retrieval pack
// rather than from drpcorg-chotki.
package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/CanRau/logux-core/conn"
)

// Conn is a Connection backed by one *websocket.Conn, either dialed by
// us (client) or handed to us already upgraded (server).
type Conn struct {
	conn.Base

	mu        sync.Mutex
	ws        *websocket.Conn
	url       string
	header    http.Header
	dialer    *websocket.Dialer
	connected bool
	stop      chan struct{}
	wg        sync.WaitGroup
}

// Dial builds a client-mode Conn that opens url on Connect.
func Dial(url string, header http.Header) *Conn {
	return &Conn{url: url, header: header, dialer: websocket.DefaultDialer}
}

// Wrap builds a server-mode Conn around an already-upgraded
// *websocket.Conn, e.g. the result of an Upgrader.Upgrade call inside
// an http.Handler.
func Wrap(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

func (c *Conn) Connect() error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.ConnectingEv.Fire(struct{}{})
	if c.ws == nil {
		ws, _, err := c.dialer.Dial(c.url, c.header)
		if err != nil {
			c.mu.Unlock()
			return err
		}
		c.ws = ws
	}
	c.connected = true
	c.stop = make(chan struct{})
	c.mu.Unlock()

	c.wg.Add(1)
	go c.readLoop()
	c.ConnectEv.Fire(struct{}{})
	return nil
}

func (c *Conn) readLoop() {
	defer c.wg.Done()
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.mu.Lock()
			wasConnected := c.connected
			c.connected = false
			c.mu.Unlock()
			if wasConnected {
				_ = c.ws.Close()
				c.DisconnectEv.Fire(err.Error())
			}
			return
		}
		var msg []any
		if jerr := json.Unmarshal(data, &msg); jerr != nil {
			c.ErrEv.Fire(&conn.ErrWrongFormat{Raw: data})
			continue
		}
		c.MessageEv.Fire(msg)
	}
}

func (c *Conn) Disconnect(reason string) error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil
	}
	c.connected = false
	close(c.stop)
	err := c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason))
	c.mu.Unlock()

	_ = c.ws.Close()
	c.wg.Wait()
	c.DisconnectEv.Fire(reason)
	return err
}

func (c *Conn) Send(message []any) {
	data, err := json.Marshal(message)
	if err != nil {
		c.ErrEv.Fire(err)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		c.ErrEv.Fire(errors.New("ws: send on closed connection"))
		return
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		c.ErrEv.Fire(err)
	}
}

func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Upgrader is shared by server-mode callers that need the same
// permissive CheckOrigin default the examples use for local
// development; production deployments should supply their own.
var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Upgrade promotes an incoming HTTP request to a websocket connection
// and wraps it as a Conn, for use inside an http.Handler.
func Upgrade(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	raw, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return Wrap(raw), nil
}
