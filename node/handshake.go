package node

import (
	"github.com/pkg/errors"

	"github.com/CanRau/logux-core/wire"
)

func (n *Node) onTransportConnect() {
	if n.isServer {
		n.setState(WaitingConnect)
		n.armTimeout()
		return
	}
	n.setState(SendingConnect)
	lastAdded, err := n.log.Store().GetLastAdded()
	if err != nil {
		n.errorEv.Fire(err)
		return
	}
	n.tA = n.cfg.Clock()
	auth := n.authObject()
	n.send(wire.Connect{Proto: n.cfg.Proto, NodeId: n.nodeId, Synced: lastAdded, Auth: auth}.Encode())
	n.setState(WaitingConnect)
	n.armTimeout()
}

func (n *Node) authObject() map[string]any {
	auth := map[string]any{"subprotocol": n.cfg.Subprotocol}
	if n.cfg.Credentials != nil {
		auth["credentials"] = n.cfg.Credentials
	}
	return auth
}

// handleConnect implements ServerNode's receipt of `connect` (spec
// §4.4.3).
func (n *Node) handleConnect(msg []any) {
	c, err := wire.DecodeConnect(msg)
	if err != nil {
		n.cfg.Logger.Warn("node: malformed connect", "node", n.nodeId)
		n.sendError(KindWrongFormat, msg)
		_ = n.conn.Disconnect(KindWrongFormat)
		return
	}
	if c.Proto < n.cfg.MinProtocol {
		n.cfg.Logger.Warn("node: rejecting peer with old protocol", "node", n.nodeId, "peer", c.NodeId, "used", c.Proto, "supported", n.cfg.MinProtocol)
		handshakeTotal.WithLabelValues(n.nodeId, "wrong_protocol").Inc()
		n.sendError(KindWrongProtocol, map[string]any{"supported": n.cfg.MinProtocol, "used": c.Proto})
		_ = n.conn.Disconnect(KindWrongProtocol)
		return
	}
	n.setState(Authenticating)
	t0 := n.cfg.Clock()

	var credentials any
	subprotocol := "0.0.0"
	if c.Auth != nil {
		credentials = c.Auth["credentials"]
		if sp, ok := c.Auth["subprotocol"].(string); ok && sp != "" {
			subprotocol = sp
		}
	}

	auth := n.cfg.Auth
	if auth == nil {
		auth = func(any, string) (bool, error) { return true, nil }
	}
	ok, err := auth(credentials, c.NodeId)
	if err != nil {
		handshakeTotal.WithLabelValues(n.nodeId, "auth_error").Inc()
		if de, isDomain := err.(*DomainError); isDomain {
			n.cfg.Logger.Warn("node: auth listener rejected peer", "node", n.nodeId, "peer", c.NodeId, "kind", de.Kind)
			n.sendError(de.Kind, de.Options)
		} else {
			wrapped := errors.Wrapf(err, "node: auth listener failed for peer %q", c.NodeId)
			n.cfg.Logger.Error("node: auth listener failed", "node", n.nodeId, "peer", c.NodeId, "err", wrapped)
			n.errorEv.Fire(wrapped)
		}
		_ = n.conn.Disconnect("auth-error")
		return
	}
	if !ok {
		n.cfg.Logger.Warn("node: rejecting peer with bad credentials", "node", n.nodeId, "peer", c.NodeId)
		handshakeTotal.WithLabelValues(n.nodeId, "wrong_credentials").Inc()
		n.sendError(KindWrongCredentials, nil)
		_ = n.conn.Disconnect(KindWrongCredentials)
		return
	}

	n.remoteNodeId = c.NodeId
	n.remoteSubprotocol = subprotocol
	n.remoteProto = c.Proto
	n.lastReceived = c.Synced

	if n.cfg.ConnectListener != nil {
		if err := n.cfg.ConnectListener(c.NodeId, subprotocol); err != nil {
			handshakeTotal.WithLabelValues(n.nodeId, "connect_rejected").Inc()
			if de, isDomain := err.(*DomainError); isDomain {
				n.cfg.Logger.Warn("node: connect listener rejected peer", "node", n.nodeId, "peer", c.NodeId, "kind", de.Kind)
				n.sendError(de.Kind, de.Options)
			} else {
				wrapped := errors.Wrapf(err, "node: connect listener failed for peer %q", c.NodeId)
				n.cfg.Logger.Error("node: connect listener failed", "node", n.nodeId, "peer", c.NodeId, "err", wrapped)
				n.errorEv.Fire(wrapped)
			}
			_ = n.conn.Disconnect("connect-rejected")
			return
		}
	}

	t1 := n.cfg.Clock()
	if n.cfg.FixTime {
		// t1 is the shared epoch reference both sides settle on: the
		// server already has it locally, the client receives it in
		// this very message, so it needs no round-trip estimation.
		// Only the client can estimate timeFix, since only it knows
		// tA/tB; the server's timeFix is left at zero.
		n.baseTime = t1
	}
	n.send(wire.Connected{Proto: n.cfg.Proto, NodeId: n.nodeId, T0: t0, T1: t1, Auth: n.authObject()}.Encode())
	n.cfg.Logger.Debug("node: accepted peer", "node", n.nodeId, "peer", c.NodeId, "subprotocol", subprotocol)
	handshakeTotal.WithLabelValues(n.nodeId, "accepted").Inc()
	n.connectEv.Fire(struct{}{})
	n.enterSynchronized()
}

// handleConnected implements ClientNode's receipt of `connected`
// (spec §4.4.3, §4.4.4).
func (n *Node) handleConnected(msg []any) {
	c, err := wire.DecodeConnected(msg)
	if err != nil {
		n.cfg.Logger.Warn("node: malformed connected", "node", n.nodeId)
		n.sendError(KindWrongFormat, msg)
		_ = n.conn.Disconnect(KindWrongFormat)
		return
	}
	n.setState(Authenticating)
	tB := n.cfg.Clock()

	n.remoteNodeId = c.NodeId
	n.remoteProto = c.Proto
	if c.Auth != nil {
		if sp, ok := c.Auth["subprotocol"].(string); ok && sp != "" {
			n.remoteSubprotocol = sp
		}
	}
	if n.remoteSubprotocol == "" {
		n.remoteSubprotocol = "0.0.0"
	}

	if n.cfg.FixTime {
		n.baseTime, n.timeFix = fixTime(n.tA, tB, c.T0, c.T1)
	}

	n.cfg.Logger.Debug("node: connected to peer", "node", n.nodeId, "peer", c.NodeId, "subprotocol", n.remoteSubprotocol)
	handshakeTotal.WithLabelValues(n.nodeId, "connected").Inc()
	n.connectedEv.Fire(struct{}{})
	n.enterSynchronized()
}

// fixTime computes the clock-skew correction of spec §4.4.4 given the
// client's send/receive wallclock readings (tA, tB) and the server's
// receive/send readings it reported back ([t0, t1]). baseTime settles
// on the server's t1 — the one clock reading both sides already hold
// without further estimation — while timeFix records how far ahead
// of the server's clock the client's own reading was, for diagnostics.
func fixTime(tA, tB, t0, t1 int64) (baseTime, timeFix int64) {
	rtt := (tB - tA - (t1 - t0)) / 2
	timeFix = tA + rtt - t0
	baseTime = t1
	return baseTime, timeFix
}

func (n *Node) enterSynchronized() {
	n.drainTimers()
	n.setState(Synchronized)
	n.synchronizedEv.Fire(struct{}{})
	n.armPing()
	n.startSync()
}
