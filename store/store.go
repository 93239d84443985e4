// Package store defines the Store interface (spec §4.2) that the Log
// persists through.
package store

import "github.com/CanRau/logux-core/action"

// Order selects how Get paginates entries.
type Order int

const (
	// OrderCreated orders by id per the §4.1 comparator, newest first.
	OrderCreated Order = iota
	// OrderAdded orders by the store's insertion counter, newest first.
	OrderAdded
)

// GetOptions configures a Get call.
type GetOptions struct {
	Order Order
}

// Page is one page of a Get result. Next is nil once the result set is
// exhausted.
type Page struct {
	Entries []action.Entry
	Next    func() (Page, error)
}

// Criteria narrows a RemoveReason sweep (spec §4.2).
type Criteria struct {
	MinAdded    *int64
	MaxAdded    *int64
	OlderThan   *action.Meta
	YoungerThan *action.Meta
	Id          *string
}

// Synced is the per-node bookmark pair a Store tracks for sync
// resumption.
type Synced struct {
	Sent     int64
	Received int64
}

// SyncedPatch partially updates a Synced bookmark; nil fields are left
// untouched.
type SyncedPatch struct {
	Sent     *int64
	Received *int64
}

// Store persists actions with reason-based retention and a monotonic
// insertion counter (spec §4.2). Implementations must serialize their
// own mutations: Add must assign strictly increasing, globally unique
// `added` values even under concurrent callers.
type Store interface {
	// Add inserts action/meta if meta.Id is not already present,
	// assigning the next `added` value. ok is false when the id already
	// existed (meta.Added is reused as the existing entry's value in
	// that case, for logging, and the entry is left untouched).
	Add(a action.Action, m action.Meta) (result action.Meta, ok bool, err error)
	// Get returns one page of entries ordered per opts.
	Get(opts GetOptions) (Page, error)
	// ById looks up a single entry by id.
	ById(id string) (action.Entry, bool, error)
	// Remove deletes an entry unconditionally, returning what was
	// removed.
	Remove(id string) (action.Entry, bool, error)
	// ChangeMeta merges diff into the stored meta for id. Returns false
	// if id is unknown.
	ChangeMeta(id string, diff map[string]any) (bool, error)
	// RemoveReason strips reason from every entry matching criteria;
	// entries left with zero reasons are deleted and onClean is invoked
	// for each.
	RemoveReason(reason string, criteria Criteria, onClean func(action.Action, action.Meta)) error
	// GetLastAdded returns the maximum `added` ever assigned, or 0.
	GetLastAdded() (int64, error)
	// GetLastSynced returns the sync bookmark for nodeId.
	GetLastSynced(nodeId string) (Synced, error)
	// SetLastSynced partially updates the sync bookmark for nodeId.
	SetLastSynced(nodeId string, patch SyncedPatch) error
	// Clean releases any resources (file handles, connections) held by
	// the store.
	Clean() error
}
