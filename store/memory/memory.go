// Package memory is the in-memory reference Store implementation
// (spec §4.2, "an in-memory reference implementation is required for
// tests"). It is grounded on the teacher's concurrency idioms: an
// xsync.Map for the entry set (the same structure the teacher's
// protocol.Net uses for its connection table) and a plain mutex
// guarding the monotonic `added` counter and the mutations, since
// that counter assignment must be a single atomic step regardless of
// how many goroutines call Add concurrently (spec §4.2's invariant).
// There is no ordered index: Get sorts a snapshot on every call.
package memory

import (
	"sort"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/CanRau/logux-core/action"
	"github.com/CanRau/logux-core/idcmp"
	"github.com/CanRau/logux-core/store"
)

type record struct {
	entry action.Entry
}

// Store is the in-memory Store.
type Store struct {
	mu        sync.Mutex
	byId      *xsync.MapOf[string, *record]
	lastAdded int64
	synced    map[string]store.Synced
	closed    bool
}

// New creates an empty in-memory Store.
func New() *Store {
	return &Store{
		byId:   xsync.NewMapOf[string, *record](),
		synced: make(map[string]store.Synced),
	}
}

func (s *Store) Add(a action.Action, m action.Meta) (action.Meta, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return action.Meta{}, false, errClosed
	}
	if existing, ok := s.byId.Load(m.Id); ok {
		return existing.entry.Meta, false, nil
	}
	s.lastAdded++
	m = m.Clone()
	m.Added = s.lastAdded
	s.byId.Store(m.Id, &record{entry: action.Entry{Action: a, Meta: m}})
	return m, true, nil
}

func (s *Store) ById(id string) (action.Entry, bool, error) {
	r, ok := s.byId.Load(id)
	if !ok {
		return action.Entry{}, false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return action.Entry{Action: r.entry.Action, Meta: r.entry.Meta.Clone()}, true, nil
}

func (s *Store) Remove(id string) (action.Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byId.LoadAndDelete(id)
	if !ok {
		return action.Entry{}, false, nil
	}
	return r.entry, true, nil
}

func (s *Store) ChangeMeta(id string, diff map[string]any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byId.Load(id)
	if !ok {
		return false, nil
	}
	applyDiff(&r.entry.Meta, diff)
	return true, nil
}

func applyDiff(m *action.Meta, diff map[string]any) {
	if v, ok := diff["reasons"]; ok {
		if rs, ok := v.([]string); ok {
			m.Reasons = rs
		}
	}
	if v, ok := diff["keepLast"]; ok {
		if s, ok := v.(string); ok {
			m.KeepLast = s
		}
	}
	if m.Extra == nil {
		m.Extra = map[string]any{}
	}
	for k, v := range diff {
		switch k {
		case "reasons", "keepLast", "id", "added", "time", "subprotocol":
			continue
		default:
			m.Extra[k] = v
		}
	}
}

func (s *Store) RemoveReason(reason string, criteria store.Criteria, onClean func(action.Action, action.Meta)) error {
	s.mu.Lock()
	var cleaned []string
	s.byId.Range(func(id string, r *record) bool {
		m := &r.entry.Meta
		if !m.HasReason(reason) {
			return true
		}
		if !matches(*m, criteria) {
			return true
		}
		m.RemoveReason(reason)
		if len(m.Reasons) == 0 {
			cleaned = append(cleaned, id)
		}
		return true
	})
	var onCleanArgs []action.Entry
	for _, id := range cleaned {
		if r, ok := s.byId.LoadAndDelete(id); ok {
			onCleanArgs = append(onCleanArgs, r.entry)
		}
	}
	s.mu.Unlock()

	if onClean != nil {
		for _, e := range onCleanArgs {
			onClean(e.Action, e.Meta)
		}
	}
	return nil
}

func matches(m action.Meta, c store.Criteria) bool {
	if c.Id != nil && m.Id != *c.Id {
		return false
	}
	if c.MinAdded != nil && m.Added < *c.MinAdded {
		return false
	}
	if c.MaxAdded != nil && m.Added > *c.MaxAdded {
		return false
	}
	if c.OlderThan != nil && !idcmp.Older(action.CmpMeta(&m), action.CmpMeta(c.OlderThan)) {
		return false
	}
	if c.YoungerThan != nil && !idcmp.Older(action.CmpMeta(c.YoungerThan), action.CmpMeta(&m)) {
		return false
	}
	return true
}

func (s *Store) GetLastAdded() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAdded, nil
}

func (s *Store) GetLastSynced(nodeId string) (store.Synced, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.synced[nodeId], nil
}

func (s *Store) SetLastSynced(nodeId string, patch store.SyncedPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.synced[nodeId]
	if patch.Sent != nil {
		next.Sent = *patch.Sent
	}
	if patch.Received != nil {
		next.Received = *patch.Received
	}
	s.synced[nodeId] = next
	return nil
}

func (s *Store) Clean() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.byId.Clear()
	s.synced = make(map[string]store.Synced)
	return nil
}

// Get returns a page of entries ordered per opts. The whole set is
// snapshotted under the lock and paginated lazily afterwards, since
// the in-memory store has no natural iterator to keep open across
// calls.
func (s *Store) Get(opts store.GetOptions) (store.Page, error) {
	s.mu.Lock()
	entries := s.snapshot()
	s.mu.Unlock()

	switch opts.Order {
	case store.OrderAdded:
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].Meta.Added > entries[j].Meta.Added
		})
	default: // OrderCreated
		sort.Slice(entries, func(i, j int) bool {
			return idcmp.Older(action.CmpMeta(&entries[j].Meta), action.CmpMeta(&entries[i].Meta))
		})
	}
	return pageOf(entries, 0, pageSize), nil
}

const pageSize = 256

func pageOf(entries []action.Entry, offset, size int) store.Page {
	end := offset + size
	if end > len(entries) {
		end = len(entries)
	}
	p := store.Page{Entries: entries[offset:end]}
	if end < len(entries) {
		p.Next = func() (store.Page, error) {
			return pageOf(entries, end, size), nil
		}
	}
	return p
}

func (s *Store) snapshot() []action.Entry {
	entries := make([]action.Entry, 0, s.byId.Size())
	s.byId.Range(func(_ string, r *record) bool {
		entries = append(entries, action.Entry{Action: r.entry.Action, Meta: r.entry.Meta.Clone()})
		return true
	})
	return entries
}

var errClosed = storeClosedError{}

type storeClosedError struct{}

func (storeClosedError) Error() string { return "memory: store closed" }
