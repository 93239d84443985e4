// Package pebblestore is a durable Store backend built on
// github.com/cockroachdb/pebble, the teacher's own storage engine.
// Keys are prefixed the way the teacher's host/helpers.go prefixes
// object/version keys ('O'/'V'): here 'A' keys hold the action body,
// 'M' keys hold the meta record, 'S' keys hold a per-node sync
// bookmark, and a single 'L' key holds the last-assigned `added`
// counter, restored on Open.
package pebblestore

import (
	"encoding/binary"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"

	"github.com/CanRau/logux-core/action"
	"github.com/CanRau/logux-core/idcmp"
	"github.com/CanRau/logux-core/store"
	"github.com/CanRau/logux-core/utils"
)

// Options configures Open, the way the teacher's own chotki.Options
// configures its database handle.
type Options struct {
	// Logger receives open/close and lookup-failure diagnostics.
	// Defaults to a warn-level utils.DefaultLogger.
	Logger utils.Logger
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = utils.NewDefaultLogger(slog.LevelWarn)
	}
	return o
}

const (
	prefixAction = 'A'
	prefixMeta   = 'M'
	prefixSynced = 'S'
)

var lastAddedKey = []byte{'L'}

func actionKey(id string) []byte { return append([]byte{prefixAction}, id...) }
func metaKey(id string) []byte   { return append([]byte{prefixMeta}, id...) }
func syncedKey(node string) []byte { return append([]byte{prefixSynced}, node...) }

// Store is a durable, pebble-backed Store.
type Store struct {
	mu        sync.Mutex
	db        *pebble.DB
	lastAdded int64
	logger    utils.Logger
}

// Open opens (creating if absent) a pebble database at dir and
// restores the last-assigned `added` counter.
func Open(dir string, opts ...Options) (*Store, error) {
	opt := Options{}.withDefaults()
	if len(opts) > 0 {
		opt = opts[0].withDefaults()
	}
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		opt.Logger.Error("pebblestore: open failed", "dir", dir, "err", err)
		return nil, errors.Wrap(err, "pebblestore: open")
	}
	s := &Store{db: db, logger: opt.Logger}
	if err := s.restoreLastAdded(); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.logger.Debug("pebblestore: opened", "dir", dir, "lastAdded", s.lastAdded)
	return s, nil
}

func (s *Store) restoreLastAdded() error {
	v, closer, err := s.db.Get(lastAddedKey)
	if err == pebble.ErrNotFound {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "pebblestore: restore last added")
	}
	defer closer.Close()
	if len(v) == 8 {
		s.lastAdded = int64(binary.BigEndian.Uint64(v))
	}
	return nil
}

type metaRecord struct {
	Id          string
	Time        int64
	Added       int64
	Reasons     []string
	Subprotocol string
	KeepLast    string
	Extra       map[string]any
}

func toRecord(m action.Meta) metaRecord {
	return metaRecord{
		Id: m.Id, Time: m.Time, Added: m.Added, Reasons: m.Reasons,
		Subprotocol: m.Subprotocol, KeepLast: m.KeepLast, Extra: m.Extra,
	}
}

func fromRecord(r metaRecord) action.Meta {
	return action.Meta{
		Id: r.Id, Time: r.Time, Added: r.Added, Reasons: r.Reasons,
		Subprotocol: r.Subprotocol, KeepLast: r.KeepLast, Extra: r.Extra,
	}
}

func (s *Store) Add(a action.Action, m action.Meta) (action.Meta, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, closer, err := s.db.Get(metaKey(m.Id)); err == nil {
		closer.Close()
		existing, gerr := s.readMeta(m.Id)
		return existing, false, gerr
	} else if err != pebble.ErrNotFound {
		s.logger.Error("pebblestore: add lookup failed", "id", m.Id, "err", err)
		return action.Meta{}, false, errors.Wrap(err, "pebblestore: add lookup")
	}

	s.lastAdded++
	m = m.Clone()
	m.Added = s.lastAdded

	actionBytes, err := json.Marshal(a)
	if err != nil {
		return action.Meta{}, false, errors.Wrap(err, "pebblestore: marshal action")
	}
	metaBytes, err := json.Marshal(toRecord(m))
	if err != nil {
		return action.Meta{}, false, errors.Wrap(err, "pebblestore: marshal meta")
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(actionKey(m.Id), actionBytes, nil); err != nil {
		return action.Meta{}, false, err
	}
	if err := batch.Set(metaKey(m.Id), metaBytes, nil); err != nil {
		return action.Meta{}, false, err
	}
	var counter [8]byte
	binary.BigEndian.PutUint64(counter[:], uint64(s.lastAdded))
	if err := batch.Set(lastAddedKey, counter[:], nil); err != nil {
		return action.Meta{}, false, err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return action.Meta{}, false, errors.Wrap(err, "pebblestore: commit add")
	}
	return m, true, nil
}

func (s *Store) readMeta(id string) (action.Meta, error) {
	v, closer, err := s.db.Get(metaKey(id))
	if err != nil {
		return action.Meta{}, err
	}
	defer closer.Close()
	var r metaRecord
	if err := json.Unmarshal(v, &r); err != nil {
		return action.Meta{}, err
	}
	return fromRecord(r), nil
}

func (s *Store) readAction(id string) (action.Action, error) {
	v, closer, err := s.db.Get(actionKey(id))
	if err != nil {
		return action.Action{}, err
	}
	defer closer.Close()
	var a action.Action
	if err := json.Unmarshal(v, &a); err != nil {
		return action.Action{}, err
	}
	return a, nil
}

func (s *Store) ById(id string) (action.Entry, bool, error) {
	m, err := s.readMeta(id)
	if err == pebble.ErrNotFound {
		return action.Entry{}, false, nil
	}
	if err != nil {
		return action.Entry{}, false, err
	}
	a, err := s.readAction(id)
	if err != nil {
		return action.Entry{}, false, err
	}
	return action.Entry{Action: a, Meta: m}, true, nil
}

func (s *Store) Remove(id string) (action.Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok, err := s.ById(id)
	if err != nil || !ok {
		return entry, ok, err
	}
	batch := s.db.NewBatch()
	defer batch.Close()
	_ = batch.Delete(actionKey(id), nil)
	_ = batch.Delete(metaKey(id), nil)
	if err := batch.Commit(pebble.Sync); err != nil {
		return action.Entry{}, false, errors.Wrap(err, "pebblestore: commit remove")
	}
	return entry, true, nil
}

func (s *Store) ChangeMeta(id string, diff map[string]any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.readMeta(id)
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	applyDiff(&m, diff)
	metaBytes, err := json.Marshal(toRecord(m))
	if err != nil {
		return false, err
	}
	if err := s.db.Set(metaKey(id), metaBytes, pebble.Sync); err != nil {
		return false, errors.Wrap(err, "pebblestore: set meta")
	}
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
	entries, err := s.allEntries()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	batch := s.db.NewBatch()
	var cleaned []action.Entry
	for _, e := range entries {
		m := e.Meta
		if !m.HasReason(reason) || !matches(m, criteria) {
			continue
		}
		m.RemoveReason(reason)
		if len(m.Reasons) == 0 {
			_ = batch.Delete(actionKey(m.Id), nil)
			_ = batch.Delete(metaKey(m.Id), nil)
			cleaned = append(cleaned, action.Entry{Action: e.Action, Meta: m})
			continue
		}
		metaBytes, merr := json.Marshal(toRecord(m))
		if merr != nil {
			continue
		}
		_ = batch.Set(metaKey(m.Id), metaBytes, nil)
	}
	commitErr := batch.Commit(pebble.Sync)
	_ = batch.Close()
	s.mu.Unlock()
	if commitErr != nil {
		return errors.Wrap(commitErr, "pebblestore: commit removeReason")
	}
	if onClean != nil {
		for _, e := range cleaned {
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
	v, closer, err := s.db.Get(syncedKey(nodeId))
	if err == pebble.ErrNotFound {
		return store.Synced{}, nil
	}
	if err != nil {
		return store.Synced{}, err
	}
	defer closer.Close()
	var sy store.Synced
	if err := json.Unmarshal(v, &sy); err != nil {
		return store.Synced{}, err
	}
	return sy, nil
}

func (s *Store) SetLastSynced(nodeId string, patch store.SyncedPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.GetLastSynced(nodeId)
	if err != nil {
		return err
	}
	if patch.Sent != nil {
		cur.Sent = *patch.Sent
	}
	if patch.Received != nil {
		cur.Received = *patch.Received
	}
	data, err := json.Marshal(cur)
	if err != nil {
		return err
	}
	return s.db.Set(syncedKey(nodeId), data, pebble.Sync)
}

func (s *Store) Clean() error {
	s.logger.Debug("pebblestore: closing")
	return errors.Wrap(s.db.Close(), "pebblestore: close")
}

func (s *Store) allEntries() ([]action.Entry, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte{prefixMeta},
		UpperBound: []byte{prefixMeta + 1},
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var entries []action.Entry
	for iter.First(); iter.Valid(); iter.Next() {
		var r metaRecord
		if err := json.Unmarshal(iter.Value(), &r); err != nil {
			continue
		}
		m := fromRecord(r)
		a, err := s.readAction(m.Id)
		if err != nil {
			continue
		}
		entries = append(entries, action.Entry{Action: a, Meta: m})
	}
	return entries, iter.Error()
}

// Get scans the meta key range and sorts in memory. This mirrors the
// reference in-memory Store's approach rather than maintaining a
// dedicated secondary index: a durable action log is append-mostly
// and bounded by retention reasons, so a full scan per sync session is
// an acceptable cost next to the complexity of a live index.
func (s *Store) Get(opts store.GetOptions) (store.Page, error) {
	s.mu.Lock()
	entries, err := s.allEntries()
	s.mu.Unlock()
	if err != nil {
		return store.Page{}, err
	}

	switch opts.Order {
	case store.OrderAdded:
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].Meta.Added > entries[j].Meta.Added
		})
	default:
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
