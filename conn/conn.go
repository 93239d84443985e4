// Package conn defines the transport-level Connection interface (spec
// §6.2) that the node package drives.
package conn

import "github.com/CanRau/logux-core/event"

// Connection is the transport abstraction the node package depends
// on: delivery and receipt of framed JSON messages plus lifecycle
// events (spec §6.2). Implementations must parse incoming frames as
// JSON; a parse failure is surfaced as an OnError carrying
// *ErrWrongFormat so the Node can map it onto the wire "wrong-format"
// error.
type Connection interface {
	// Connect starts the transport; it returns once the connection is
	// open (or immediately fails).
	Connect() error
	// Disconnect closes the transport. Idempotent.
	Disconnect(reason string) error
	// Send is best-effort: delivery failure on a closed channel is
	// reported through OnError, not a return value, matching the
	// "send(message) — best-effort" contract of spec §6.2.
	Send(message []any)
	// OnConnecting registers a listener fired when the transport starts
	// opening (e.g. right before the TCP dial or WS handshake).
	OnConnecting(func()) event.Unsubscribe
	// OnConnect registers a listener fired once the transport is open.
	OnConnect(func()) event.Unsubscribe
	// OnDisconnect registers a listener fired on close, successful or
	// not; reason carries context when available.
	OnDisconnect(func(reason string)) event.Unsubscribe
	// OnMessage registers a listener fired for every parsed incoming
	// frame, in arrival order.
	OnMessage(func(message []any)) event.Unsubscribe
	// OnError registers a listener fired on transport-level errors
	// (including JSON parse failures on receipt).
	OnError(func(err error)) event.Unsubscribe
	// Connected reports whether the transport is currently open.
	Connected() bool
}

// ErrWrongFormat is the sentinel a Connection implementation emits via
// OnError when an inbound frame fails to parse as JSON. The Node maps
// it onto the wire "wrong-format" domain error.
type ErrWrongFormat struct {
	Raw []byte
}

func (e *ErrWrongFormat) Error() string { return "conn: wrong message format" }

// Base bundles the five event.Emitter instances every Connection
// implementation needs, so adapters (pair, ws) embed it instead of
// repeating the wiring.
type Base struct {
	ConnectingEv event.Emitter[struct{}]
	ConnectEv    event.Emitter[struct{}]
	DisconnectEv event.Emitter[string]
	MessageEv    event.Emitter[[]any]
	ErrEv        event.Emitter[error]
}

func (b *Base) OnConnecting(f func()) event.Unsubscribe {
	return b.ConnectingEv.On(func(struct{}) { f() })
}

func (b *Base) OnConnect(f func()) event.Unsubscribe {
	return b.ConnectEv.On(func(struct{}) { f() })
}

func (b *Base) OnDisconnect(f func(string)) event.Unsubscribe {
	return b.DisconnectEv.On(f)
}

func (b *Base) OnMessage(f func([]any)) event.Unsubscribe {
	return b.MessageEv.On(f)
}

func (b *Base) OnError(f func(error)) event.Unsubscribe {
	return b.ErrEv.On(f)
}
