// Package wire implements the JSON array framing of spec §4.4.1: each
// transport message is a JSON array whose first element is a string
// tag, decoded into one of the typed message structs below.
package wire

import (
	"github.com/CanRau/logux-core/errs"
)

// Tag identifies the kind of a protocol message.
type Tag string

const (
	TagConnect   Tag = "connect"
	TagConnected Tag = "connected"
	TagPing      Tag = "ping"
	TagPong      Tag = "pong"
	TagSync      Tag = "sync"
	TagSynced    Tag = "synced"
	TagDebug     Tag = "debug"
	TagError     Tag = "error"
)

// Connect is the client→server handshake opener.
type Connect struct {
	Proto  int64
	NodeId string
	Synced int64
	Auth   map[string]any // may be nil; may carry "credentials", "subprotocol"
}

func (c Connect) Encode() []any {
	msg := []any{string(TagConnect), c.Proto, c.NodeId, c.Synced}
	if c.Auth != nil {
		msg = append(msg, c.Auth)
	}
	return msg
}

func DecodeConnect(msg []any) (Connect, error) {
	if len(msg) < 4 || len(msg) > 5 {
		return Connect{}, errs.ErrBadMessage
	}
	proto, ok1 := asInt(msg[1])
	nodeId, ok2 := msg[2].(string)
	synced, ok3 := asInt(msg[3])
	if !ok1 || !ok2 || !ok3 {
		return Connect{}, errs.ErrBadMessage
	}
	c := Connect{Proto: proto, NodeId: nodeId, Synced: synced}
	if len(msg) == 5 {
		auth, ok := msg[4].(map[string]any)
		if !ok {
			return Connect{}, errs.ErrBadMessage
		}
		c.Auth = auth
	}
	return c, nil
}

// Connected is the server→client handshake reply.
type Connected struct {
	Proto   int64
	NodeId  string
	T0, T1  int64
	Auth    map[string]any
}

func (c Connected) Encode() []any {
	msg := []any{string(TagConnected), c.Proto, c.NodeId, []any{c.T0, c.T1}}
	if c.Auth != nil {
		msg = append(msg, c.Auth)
	}
	return msg
}

func DecodeConnected(msg []any) (Connected, error) {
	if len(msg) < 4 || len(msg) > 5 {
		return Connected{}, errs.ErrBadMessage
	}
	proto, ok1 := asInt(msg[1])
	nodeId, ok2 := msg[2].(string)
	pair, ok3 := msg[3].([]any)
	if !ok1 || !ok2 || !ok3 || len(pair) != 2 {
		return Connected{}, errs.ErrBadMessage
	}
	t0, ok4 := asInt(pair[0])
	t1, ok5 := asInt(pair[1])
	if !ok4 || !ok5 {
		return Connected{}, errs.ErrBadMessage
	}
	c := Connected{Proto: proto, NodeId: nodeId, T0: t0, T1: t1}
	if len(msg) == 5 {
		auth, ok := msg[4].(map[string]any)
		if !ok {
			return Connected{}, errs.ErrBadMessage
		}
		c.Auth = auth
	}
	return c, nil
}

// Ping/Pong both carry the sender's synced bookmark.
type Ping struct{ Synced int64 }
type Pong struct{ Synced int64 }

func (p Ping) Encode() []any { return []any{string(TagPing), p.Synced} }
func (p Pong) Encode() []any { return []any{string(TagPong), p.Synced} }

func DecodePing(msg []any) (Ping, error) {
	s, err := decodeSingleInt(msg)
	return Ping{Synced: s}, err
}

func DecodePong(msg []any) (Pong, error) {
	s, err := decodeSingleInt(msg)
	return Pong{Synced: s}, err
}

func decodeSingleInt(msg []any) (int64, error) {
	if len(msg) != 2 {
		return 0, errs.ErrBadMessage
	}
	v, ok := asInt(msg[1])
	if !ok {
		return 0, errs.ErrBadMessage
	}
	return v, nil
}

// Synced acknowledges a sync batch up to Added.
type Synced struct{ Added int64 }

func (s Synced) Encode() []any { return []any{string(TagSynced), s.Added} }

func DecodeSynced(msg []any) (Synced, error) {
	v, err := decodeSingleInt(msg)
	return Synced{Added: v}, err
}

// Debug carries an opaque application-level debugging payload,
// allowed before authentication completes.
type Debug struct {
	Kind string
	Data any
}

func (d Debug) Encode() []any { return []any{string(TagDebug), d.Kind, d.Data} }

func DecodeDebug(msg []any) (Debug, error) {
	if len(msg) != 3 {
		return Debug{}, errs.ErrBadMessage
	}
	kind, ok := msg[1].(string)
	if !ok {
		return Debug{}, errs.ErrBadMessage
	}
	return Debug{Kind: kind, Data: msg[2]}, nil
}

// Error carries a domain error kind plus an optional payload.
type Error struct {
	Kind    string
	Options any
}

func (e Error) Encode() []any {
	if e.Options == nil {
		return []any{string(TagError), e.Kind}
	}
	return []any{string(TagError), e.Kind, e.Options}
}

func DecodeError(msg []any) (Error, error) {
	if len(msg) < 2 || len(msg) > 3 {
		return Error{}, errs.ErrBadMessage
	}
	kind, ok := msg[1].(string)
	if !ok {
		return Error{}, errs.ErrBadMessage
	}
	e := Error{Kind: kind}
	if len(msg) == 3 {
		e.Options = msg[2]
	}
	return e, nil
}

// Sync carries a batch of action/meta pairs plus the sender's highest
// `added` in the batch. Pairs are left as raw `any` (each is a
// map[string]any once decoded through encoding/json) — the node
// package is responsible for turning them into action.Action/Meta,
// since wire has no dependency on the action model.
type Sync struct {
	Added int64
	Pairs []any // always an even-length [action, meta, action, meta, ...] slice
}

func (s Sync) Encode() []any {
	msg := make([]any, 0, 2+len(s.Pairs))
	msg = append(msg, string(TagSync), s.Added)
	msg = append(msg, s.Pairs...)
	return msg
}

func DecodeSync(msg []any) (Sync, error) {
	if len(msg) < 2 {
		return Sync{}, errs.ErrBadMessage
	}
	added, ok := asInt(msg[1])
	if !ok {
		return Sync{}, errs.ErrBadMessage
	}
	rest := msg[2:]
	if len(rest)%2 != 0 {
		return Sync{}, errs.ErrBadMessage
	}
	return Sync{Added: added, Pairs: rest}, nil
}

// TagOf extracts the leading tag from a decoded JSON array message.
func TagOf(msg []any) (Tag, bool) {
	if len(msg) == 0 {
		return "", false
	}
	s, ok := msg[0].(string)
	return Tag(s), ok
}

// asInt accepts both float64 (the type encoding/json produces for
// bare JSON numbers) and the Go integer types a caller may have built
// a message with directly.
func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}
