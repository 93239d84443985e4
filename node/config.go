// Package node implements the protocol state machine of spec §4.4: a
// Node pairs one Log to one Connection, running the handshake,
// clock-skew correction, sync streaming and liveness exchanges over
// the wire format in package wire.
package node

import (
	"log/slog"
	"time"

	"github.com/CanRau/logux-core/action"
	"github.com/CanRau/logux-core/utils"
)

// AuthFunc authenticates an incoming connect's credentials against its
// claimed node id. The default, used when Config.Auth is nil, accepts
// everything.
type AuthFunc func(credentials any, nodeId string) (bool, error)

// MapFunc transforms an entry in transit, inbound (InMap) or outbound
// (OutMap).
type MapFunc func(a action.Action, m action.Meta) (action.Action, action.Meta)

// FilterFunc decides whether an entry in transit should be dropped.
type FilterFunc func(a action.Action, m action.Meta) bool

// ConnectFunc is invoked by ServerNode after auth succeeds but before
// replying with `connected` (spec §4.4.3 step 4). Returning a
// *DomainError rejects the peer with that error instead of
// completing the handshake; any other error surfaces locally.
type ConnectFunc func(nodeId, subprotocol string) error

// Clock is an injectable wallclock-milliseconds source, used for the
// t0/t1/tA/tB timestamps of the handshake (spec §4.4.4) so tests can
// pin the exact arithmetic of the reference scenario.
type Clock func() int64

func defaultClock() int64 { return time.Now().UnixMilli() }

// Config carries the options enumerated in spec §6.4.
type Config struct {
	// Proto is the protocol version this node speaks.
	Proto int64
	// MinProtocol is the lowest peer Proto a server accepts; ignored on
	// ClientNode. Defaults to Proto.
	MinProtocol int64

	Subprotocol string
	Credentials any
	Auth        AuthFunc

	// ConnectListener gives a ServerNode a second, post-auth veto over
	// an incoming peer — e.g. rejecting a subprotocol it can't speak
	// with a &DomainError{Kind: KindWrongSubprotocol}. Ignored on
	// ClientNode.
	ConnectListener ConnectFunc

	// Timeout is the handshake and liveness deadline; zero disables it.
	Timeout time.Duration
	// Ping is the idle interval between outgoing pings; zero disables
	// liveness probing.
	Ping time.Duration
	// FixTime enables the §4.4.4 clock-skew correction.
	FixTime bool

	InFilter  FilterFunc
	InMap     MapFunc
	OutFilter FilterFunc
	OutMap    MapFunc

	// Clock overrides wallclock reads; nil uses time.Now.
	Clock Clock

	// Logger receives internal diagnostics (handshake outcomes, sync
	// errors, timeouts). Defaults to a warn-level utils.DefaultLogger;
	// callers embedding a Node in a larger service typically pass their
	// own, the way cmd/loguxd does.
	Logger utils.Logger
}

func (c Config) withDefaults() Config {
	if c.Proto == 0 {
		c.Proto = 1
	}
	if c.MinProtocol == 0 {
		c.MinProtocol = c.Proto
	}
	if c.Subprotocol == "" {
		c.Subprotocol = "0.0.0"
	}
	if c.Clock == nil {
		c.Clock = defaultClock
	}
	if c.Logger == nil {
		c.Logger = utils.NewDefaultLogger(slog.LevelWarn)
	}
	return c
}
