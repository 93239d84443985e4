// Package tcp adapts a raw TCP/TLS net.Conn to the conn.Connection
// interface. Messages are newline-delimited JSON arrays, one per
// line, rather than the teacher's toytlv length-prefixed records —
// the simplest framing that fits this wire format over a byte stream.
// The dial/listen/retry-with-backoff shape below is adapted from the
// teacher's own protocol/net.go, which manages the same lifecycle for
// its TLV-framed object-sync connections.
package tcp

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/CanRau/logux-core/conn"
)

const (
	minRetryPeriod = time.Second / 2
	maxRetryPeriod = time.Minute
)

// Conn is a Connection backed by one net.Conn, either dialed by us
// (client) or accepted by a Listener (server).
type Conn struct {
	conn.Base

	mu        sync.Mutex
	nc        net.Conn
	connected bool
	writeMu   sync.Mutex
	wg        sync.WaitGroup
}

// Wrap builds a Conn around an already-established net.Conn, e.g. one
// handed to an http-less TCP server by a Listener's Accept.
func Wrap(nc net.Conn) *Conn {
	return &Conn{nc: nc}
}

// Dial opens a TCP connection to addr. If tlsConfig is non-nil the
// connection is upgraded with it, mirroring the teacher's TCP/TLS
// ConnType switch in protocol/net.go.
func Dial(ctx context.Context, addr string, tlsConfig *tls.Config) (*Conn, error) {
	var nc net.Conn
	var err error
	if tlsConfig != nil {
		nc, err = (&tls.Dialer{Config: tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		nc, err = (&net.Dialer{}).DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, err
	}
	c := Wrap(nc)
	return c, nil
}

// DialWithRetry keeps calling Dial until it succeeds or ctx is
// cancelled, backing off between attempts the way the teacher's
// KeepConnecting does (starting at minRetryPeriod, doubling up to
// maxRetryPeriod). onFail, if non-nil, is called with each failed
// attempt's error.
func DialWithRetry(ctx context.Context, addr string, tlsConfig *tls.Config, onFail func(error)) (*Conn, error) {
	backoff := minRetryPeriod
	for {
		c, err := Dial(ctx, addr, tlsConfig)
		if err == nil {
			return c, nil
		}
		if onFail != nil {
			onFail(err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(maxRetryPeriod, backoff*2)
	}
}

// Listen opens a net.Listener, TLS-wrapped when tlsConfig is
// non-nil, for a caller to Accept() from and Wrap() each result.
func Listen(ctx context.Context, addr string, tlsConfig *tls.Config) (net.Listener, error) {
	l, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if tlsConfig != nil {
		l = tls.NewListener(l, tlsConfig)
	}
	return l, nil
}

func (c *Conn) Connect() error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.ConnectingEv.Fire(struct{}{})
	c.connected = true
	c.mu.Unlock()

	c.wg.Add(1)
	go c.readLoop()
	c.ConnectEv.Fire(struct{}{})
	return nil
}

func (c *Conn) readLoop() {
	defer c.wg.Done()
	scanner := bufio.NewScanner(c.nc)
	scanner.Buffer(make([]byte, 4096), 1<<20)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var msg []any
		if err := json.Unmarshal(line, &msg); err != nil {
			raw := make([]byte, len(line))
			copy(raw, line)
			c.ErrEv.Fire(&conn.ErrWrongFormat{Raw: raw})
			continue
		}
		c.MessageEv.Fire(msg)
	}
	c.mu.Lock()
	wasConnected := c.connected
	c.connected = false
	c.mu.Unlock()
	if wasConnected {
		_ = c.nc.Close()
		reason := "eof"
		if err := scanner.Err(); err != nil {
			reason = err.Error()
		}
		c.DisconnectEv.Fire(reason)
	}
}

func (c *Conn) Disconnect(reason string) error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil
	}
	c.connected = false
	c.mu.Unlock()

	err := c.nc.Close()
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
	data = append(data, '\n')
	c.mu.Lock()
	connected := c.connected
	c.mu.Unlock()
	if !connected {
		c.ErrEv.Fire(errors.New("tcp: send on closed connection"))
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.nc.Write(data); err != nil {
		c.ErrEv.Fire(err)
	}
}

func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}
