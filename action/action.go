// Package action defines the Action/Meta/Entry data model shared by
// the log, store and node layers (spec §3).
package action

import (
	"encoding/json"
	"fmt"

	"github.com/CanRau/logux-core/idcmp"
)

// Action is the opaque, JSON-serializable payload supplied by the
// user. The only attribute the core cares about is Type; everything
// else rides along as raw JSON fields.
type Action struct {
	Type   string
	Fields map[string]any
}

// MarshalJSON flattens Type back into the fields object so actions
// round-trip as a plain JSON object with a "type" key, the shape every
// logux-style peer expects on the wire.
func (a Action) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(a.Fields)+1)
	for k, v := range a.Fields {
		out[k] = v
	}
	out["type"] = a.Type
	return json.Marshal(out)
}

func (a *Action) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t, _ := raw["type"].(string)
	a.Type = t
	delete(raw, "type")
	a.Fields = raw
	return nil
}

// ErrReadOnlyField is returned by Log.ChangeMeta when the caller tries
// to mutate id, added, time or subprotocol — fields that are assigned
// once and never touched again by user code.
type ErrReadOnlyField struct{ Field string }

func (e *ErrReadOnlyField) Error() string {
	return fmt.Sprintf("action: %q is read-only once assigned", e.Field)
}

// Meta is the metadata record accompanying an Action (spec §3). Id,
// Added, Time and Subprotocol are read-only once assigned: they can
// only be set by the Log/Store/Node internals, never through the
// public ChangeMeta diff API.
type Meta struct {
	Id           string
	Time         int64
	Added        int64
	Reasons      []string
	Subprotocol  string
	KeepLast     string
	// Extra carries application-defined meta fields not modeled above
	// (the source format allows arbitrary metadata keys).
	Extra map[string]any
}

// ReadOnlyFields is consulted by Log.ChangeMeta to reject diffs that
// touch assigned-once fields. Store implementations do not consult it;
// their ChangeMeta skips these same keys without reporting an error.
var ReadOnlyFields = map[string]bool{
	"id":          true,
	"added":       true,
	"time":        true,
	"subprotocol": true,
}

// Entry is an (action, meta) pair, the unit the store and the wire
// protocol move around.
type Entry struct {
	Action Action
	Meta   Meta
}

// Clone makes a deep-enough copy of Meta for safe cross-goroutine
// handoff (Reasons is copied; Extra is shallow-copied, matching the
// shallow-copy semantics JSON payloads get everywhere else here).
func (m Meta) Clone() Meta {
	c := m
	if m.Reasons != nil {
		c.Reasons = append([]string(nil), m.Reasons...)
	}
	if m.Extra != nil {
		c.Extra = make(map[string]any, len(m.Extra))
		for k, v := range m.Extra {
			c.Extra[k] = v
		}
	}
	return c
}

// HasReason reports whether reason is present among m.Reasons.
func (m Meta) HasReason(reason string) bool {
	for _, r := range m.Reasons {
		if r == reason {
			return true
		}
	}
	return false
}

// RemoveReason strips reason from m.Reasons in place, reporting
// whether anything changed.
func (m *Meta) RemoveReason(reason string) bool {
	for i, r := range m.Reasons {
		if r == reason {
			m.Reasons = append(m.Reasons[:i], m.Reasons[i+1:]...)
			return true
		}
	}
	return false
}

// CmpMeta projects a Meta (or its absence) into the idcmp.Meta shape
// the comparator operates on.
func CmpMeta(m *Meta) idcmp.Meta {
	if m == nil {
		return idcmp.Meta{Absent: true}
	}
	return idcmp.Meta{Id: m.Id, Time: m.Time}
}

// Older reports whether a is strictly older than b under the §4.1
// total order. Either may be nil, meaning absent.
func Older(a, b *Meta) bool {
	return idcmp.Older(CmpMeta(a), CmpMeta(b))
}
