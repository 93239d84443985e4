// Package actionlog implements the Log component of spec §4.3: it
// wraps a Store, assigns ids, enforces the add-time invariants, and
// fans added/cleaned actions out to subscribers.
package actionlog

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/CanRau/logux-core/action"
	"github.com/CanRau/logux-core/errs"
	"github.com/CanRau/logux-core/event"
	"github.com/CanRau/logux-core/idcmp"
	"github.com/CanRau/logux-core/store"
)

// dedupeCacheSize bounds the recently-seen-id cache Add consults
// before falling back to a store lookup on the sync-receive path,
// where a busy peer resends the same id until its Synced bookmark
// advances. Sized the way the teacher bounds its own lookup caches in
// index_manager.go.
const dedupeCacheSize = 4096

// Stop is returned by an Each callback to end iteration early. Unlike
// ErrMissingType/ErrBadReason this is a control-flow sentinel private
// to Each's own contract, not a cross-layer error, so it stays local
// rather than moving to errs.
var Stop = fmt.Errorf("actionlog: stop iteration")

// ErrMissingType is returned by Add when action.Type is empty.
var ErrMissingType = errs.ErrMissingType

// ErrBadReason is returned by Add when a supplied reason is empty.
var ErrBadReason = errs.ErrBadReason

// Log is an ordered, id-keyed action store (spec §4.3).
type Log struct {
	nodeId string
	gen    *idcmp.Generator
	store  store.Store
	dedupe *lru.Cache[string, struct{}]

	preadd event.Emitter[*action.Entry]
	add    event.Emitter[action.Entry]
	clean  event.Emitter[action.Entry]
}

// New builds a Log for nodeId backed by st. clock is injected for
// deterministic id generation in tests (see testutil.TestTime); nil
// defaults to wallclock time.
func New(nodeId string, st store.Store, clock idcmp.Clock) (*Log, error) {
	gen, err := idcmp.NewGenerator(nodeId, clock)
	if err != nil {
		return nil, err
	}
	dedupe, err := lru.New[string, struct{}](dedupeCacheSize)
	if err != nil {
		return nil, err
	}
	return &Log{nodeId: nodeId, gen: gen, store: st, dedupe: dedupe}, nil
}

// NodeId returns the log's owning node id.
func (l *Log) NodeId() string { return l.nodeId }

// Store exposes the underlying Store, e.g. for Node's sync bookmark
// bookkeeping.
func (l *Log) Store() store.Store { return l.store }

// OnPreadd subscribes to the preadd event: listeners receive a
// mutable *action.Entry (specifically its Meta) before dispatch
// decides what to do with it; they may append reasons or set
// KeepLast.
func (l *Log) OnPreadd(f func(*action.Entry)) event.Unsubscribe { return l.preadd.On(f) }

// OnAdd subscribes to the add event: a frozen action.Entry carrying
// whatever `added` the store assigned (zero if never persisted).
func (l *Log) OnAdd(f func(action.Entry)) event.Unsubscribe { return l.add.On(f) }

// OnClean subscribes to the clean event, fired once per entry whose
// reasons have all been released.
func (l *Log) OnClean(f func(action.Entry)) event.Unsubscribe { return l.clean.On(f) }

// generateId returns a fresh, monotone id for this log.
func (l *Log) generateId() string { return l.gen.Next() }

// Add implements spec §4.3's Add operation. ok is false exactly when
// the id is treated as a duplicate: it is already in the store, or,
// for a caller-supplied id, it is still in the recently-seen cache
// (see seen), whether or not that entry was ever persisted.
func (l *Log) Add(a action.Action, m action.Meta) (action.Meta, bool, error) {
	if a.Type == "" {
		return action.Meta{}, false, ErrMissingType
	}

	isNew := m.Id == ""
	if isNew {
		m.Id = l.generateId()
	}

	if m.Time == 0 {
		if t, ok := idcmp.TimePrefix(m.Id); ok {
			m.Time = t
		}
	}
	if m.Reasons == nil {
		m.Reasons = []string{}
	}
	for _, r := range m.Reasons {
		if r == "" {
			return action.Meta{}, false, ErrBadReason
		}
	}

	entry := &action.Entry{Action: a, Meta: m}
	l.preadd.Fire(entry)
	m = entry.Meta

	if m.KeepLast != "" {
		older := m
		_ = l.RemoveReason(m.KeepLast, store.Criteria{OlderThan: &older})
		m.Reasons = append(m.Reasons, m.KeepLast)
	}

	switch {
	case len(m.Reasons) == 0 && isNew:
		frozen := action.Entry{Action: a, Meta: m.Clone()}
		l.add.Fire(frozen)
		l.clean.Fire(frozen)
		return m, true, nil

	case len(m.Reasons) == 0 && !isNew:
		if l.seen(m.Id) {
			return action.Meta{}, false, nil
		}
		if _, found, err := l.store.ById(m.Id); err != nil {
			return action.Meta{}, false, err
		} else if found {
			return action.Meta{}, false, nil
		}
		l.dedupe.Add(m.Id, struct{}{})
		frozen := action.Entry{Action: a, Meta: m.Clone()}
		l.add.Fire(frozen)
		l.clean.Fire(frozen)
		return m, true, nil

	default:
		if !isNew && l.seen(m.Id) {
			return action.Meta{}, false, nil
		}
		stored, ok, err := l.store.Add(a, m)
		if err != nil {
			return action.Meta{}, false, err
		}
		if !ok {
			return action.Meta{}, false, nil
		}
		l.dedupe.Add(m.Id, struct{}{})
		l.add.Fire(action.Entry{Action: a, Meta: stored.Clone()})
		return stored, true, nil
	}
}

// seen reports whether id was added through this Log recently,
// letting the sync-receive path (the only caller that passes
// already-assigned ids) skip a store round trip for the common case
// of a peer resending before its bookmark has caught up.
func (l *Log) seen(id string) bool {
	_, ok := l.dedupe.Get(id)
	return ok
}

// Each iterates entries newest-to-oldest per opts, stopping when cb
// returns Stop or the store's pages exhaust. Store.Get returns pages
// newest-first (so the most relevant entries are the cheapest to reach
// when paginating), so Each walks every page front to back and then
// follows Next. Callers that need ascending order, such as sync
// streaming, sort what they collect.
func (l *Log) Each(opts store.GetOptions, cb func(action.Action, action.Meta) error) error {
	page, err := l.store.Get(opts)
	if err != nil {
		return err
	}
	for {
		for i := 0; i < len(page.Entries); i++ {
			e := page.Entries[i]
			if err := cb(e.Action, e.Meta); err != nil {
				if err == Stop {
					return nil
				}
				return err
			}
		}
		if page.Next == nil {
			return nil
		}
		page, err = page.Next()
		if err != nil {
			return err
		}
	}
}

// ChangeMeta delegates to the store, rejecting diffs that touch
// read-only fields and handling the reasons-emptied-means-remove rule.
func (l *Log) ChangeMeta(id string, diff map[string]any) (bool, error) {
	for field := range action.ReadOnlyFields {
		if _, touched := diff[field]; touched {
			return false, &action.ErrReadOnlyField{Field: field}
		}
	}
	if rs, ok := diff["reasons"]; ok {
		if list, ok := rs.([]string); ok && len(list) == 0 {
			entry, found, err := l.store.Remove(id)
			if err != nil || !found {
				return found, err
			}
			l.clean.Fire(entry)
			return true, nil
		}
	}
	return l.store.ChangeMeta(id, diff)
}

// RemoveReason delegates to the store, firing clean for every entry
// whose reasons become empty as a result.
func (l *Log) RemoveReason(reason string, criteria store.Criteria) error {
	return l.store.RemoveReason(reason, criteria, func(a action.Action, m action.Meta) {
		l.clean.Fire(action.Entry{Action: a, Meta: m})
	})
}

// ById delegates to the store.
func (l *Log) ById(id string) (action.Entry, bool, error) { return l.store.ById(id) }
