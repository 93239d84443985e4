package node

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/CanRau/logux-core/actionlog"
	"github.com/CanRau/logux-core/store"
)

// Registry lets a server share one Log across many peer Nodes,
// keyed by however the caller chooses to namespace logs (e.g. one per
// client, or one shared log for a whole cluster). Grounded on the
// concurrent connection table the teacher keeps in its own protocol
// package (*xsync.MapOf[string, *Peer]).
type Registry struct {
	logs    *xsync.MapOf[string, *actionlog.Log]
	factory func(key string) (store.Store, error)
	mu      sync.Mutex
}

// NewRegistry builds a Registry that lazily creates a Log for each
// unseen key using newStore to build its backing Store.
func NewRegistry(newStore func(key string) (store.Store, error)) *Registry {
	return &Registry{
		logs:    xsync.NewMapOf[string, *actionlog.Log](),
		factory: newStore,
	}
}

// LogFor returns the Log for key, creating it (and its Store) on
// first use. Concurrent first-uses of the same key are serialized so
// the factory only runs once per key.
func (r *Registry) LogFor(key, nodeId string, clock func() int64) (*actionlog.Log, error) {
	if l, ok := r.logs.Load(key); ok {
		return l, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.logs.Load(key); ok {
		return l, nil
	}
	st, err := r.factory(key)
	if err != nil {
		return nil, err
	}
	l, err := actionlog.New(nodeId, st, clock)
	if err != nil {
		return nil, err
	}
	r.logs.Store(key, l)
	return l, nil
}

// Remove drops a key's Log from the registry; callers that own the
// underlying Store are responsible for calling its Clean themselves.
func (r *Registry) Remove(key string) {
	r.logs.Delete(key)
}

// Len reports how many logs are currently registered.
func (r *Registry) Len() int { return r.logs.Size() }
