package testutil

import (
	"github.com/CanRau/logux-core/actionlog"
	"github.com/CanRau/logux-core/conn/pair"
	"github.com/CanRau/logux-core/node"
)

// TestPair wires a ClientNode and a ServerNode together over an
// in-process conn/pair, each backed by its own TestLog — the fixture
// the node package's own handshake/sync tests build by hand, promoted
// here for reuse by callers outside that package.
type TestPair struct {
	Client, Server         *node.Node
	ClientLog, ServerLog   *actionlog.Log
	ClientTime, ServerTime *TestTime
}

// NewTestPair builds a client/server pair with the given node ids and
// configuration. cfg is used for both sides; set fields like FixTime
// or Timeout before calling if a test needs them.
func NewTestPair(clientId, serverId string, cfg node.Config) *TestPair {
	clientLog, clientTime := TestLog(clientId)
	serverLog, serverTime := TestLog(serverId)
	a, b := pair.New()
	return &TestPair{
		Client:     node.NewClientNode(clientId, clientLog, a, cfg),
		Server:     node.NewServerNode(serverId, serverLog, b, cfg),
		ClientLog:  clientLog,
		ServerLog:  serverLog,
		ClientTime: clientTime,
		ServerTime: serverTime,
	}
}

// Connect starts both transports, server first so it is ready to
// receive the client's connect.
func (p *TestPair) Connect() error {
	if err := p.Server.Connect(); err != nil {
		return err
	}
	return p.Client.Connect()
}

// Destroy tears down both nodes.
func (p *TestPair) Destroy() {
	p.Client.Destroy()
	p.Server.Destroy()
}
