package node

import (
	"time"

	"github.com/CanRau/logux-core/wire"
)

// armTimeout (re)starts the handshake/liveness deadline timer. A nil
// or zero Config.Timeout disables it, per spec §6.4.
func (n *Node) armTimeout() {
	if n.cfg.Timeout <= 0 {
		return
	}
	if n.timeoutTimer != nil {
		n.timeoutTimer.Stop()
	}
	n.timeoutTimer = time.AfterFunc(n.cfg.Timeout, func() { n.enqueue(n.onTimeout) })
}

// resetTimeoutTimer restarts the deadline whenever a message is
// received, since receipt of anything — not just pong — proves the
// peer is alive.
func (n *Node) resetTimeoutTimer() {
	if n.cfg.Timeout <= 0 || n.timeoutTimer == nil {
		return
	}
	n.armTimeout()
}

func (n *Node) onTimeout() {
	n.cfg.Logger.Warn("node: peer timed out", "node", n.nodeId, "peer", n.remoteNodeId)
	de := &DomainError{Kind: KindTimeout}
	n.sendError(KindTimeout, nil)
	n.clientErrorEv.Fire(de)
	_ = n.conn.Disconnect(KindTimeout)
}

// armPing (re)starts the idle-ping timer of spec §4.4.6. A nil or
// zero Config.Ping disables liveness probing.
func (n *Node) armPing() {
	if n.cfg.Ping <= 0 {
		return
	}
	if n.pingTimer != nil {
		n.pingTimer.Stop()
	}
	n.pingTimer = time.AfterFunc(n.cfg.Ping, func() { n.enqueue(n.onPingDue) })
}

func (n *Node) onPingDue() {
	if n.State() != Synchronized && n.State() != Sending {
		return
	}
	n.pingSentAt = time.Now()
	n.send(wire.Ping{Synced: n.lastSent}.Encode())
	n.armTimeout()
	n.armPing()
}

func (n *Node) handlePing(msg []any) {
	p, err := wire.DecodePing(msg)
	if err != nil {
		n.sendError(KindWrongFormat, msg)
		_ = n.conn.Disconnect(KindWrongFormat)
		return
	}
	n.lastReceived = p.Synced
	n.send(wire.Pong{Synced: n.lastSent}.Encode())
}

func (n *Node) handlePong(msg []any) {
	p, err := wire.DecodePong(msg)
	if err != nil {
		n.sendError(KindWrongFormat, msg)
		_ = n.conn.Disconnect(KindWrongFormat)
		return
	}
	n.lastReceived = p.Synced
	if !n.pingSentAt.IsZero() {
		n.pingRTT.Add(float64(time.Since(n.pingSentAt).Milliseconds()))
		n.pingSentAt = time.Time{}
	}
	n.armPing()
}
