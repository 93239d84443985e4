package node

import (
	"sort"
	"time"

	"github.com/CanRau/logux-core/action"
	"github.com/CanRau/logux-core/store"
	"github.com/CanRau/logux-core/wire"
)

func (n *Node) startSync() {
	if n.remoteNodeId == "" {
		return
	}
	bookmark, err := n.log.Store().GetLastSynced(n.remoteNodeId)
	if err != nil {
		n.cfg.Logger.Error("node: could not load sync bookmark", "node", n.nodeId, "peer", n.remoteNodeId, "err", err)
		n.errorEv.Fire(err)
		return
	}
	if n.lastSent == 0 {
		n.lastSent = bookmark.Sent
	}
	if n.lastReceived == 0 {
		n.lastReceived = bookmark.Received
	}
	n.sendPendingBatch()
}

// sendPendingBatch gathers every local entry with added > lastSent and
// frames it as one sync message (spec §4.4.5). Backpressure: while a
// batch is already in flight, new local adds are folded into the next
// batch rather than interrupting it — lastSent only advances once the
// corresponding synced arrives.
func (n *Node) sendPendingBatch() {
	if n.syncInFlight || n.remoteNodeId == "" {
		return
	}
	minAdded := n.lastSent
	pending := make([]action.Entry, 0, 8)

	err := n.log.Each(store.GetOptions{Order: store.OrderAdded}, func(a action.Action, m action.Meta) error {
		if m.Added <= minAdded {
			return nil
		}
		pending = append(pending, action.Entry{Action: a, Meta: m})
		return nil
	})
	if err != nil {
		n.cfg.Logger.Error("node: could not list pending entries", "node", n.nodeId, "peer", n.remoteNodeId, "err", err)
		n.errorEv.Fire(err)
		return
	}
	if len(pending) == 0 {
		n.setState(Synchronized)
		return
	}
	// Each/Get return newest-first; sync batches must be chronological
	// by added (spec §4.4.5), so sort ascending before framing.
	sort.Slice(pending, func(i, j int) bool { return pending[i].Meta.Added < pending[j].Meta.Added })

	pairs := make([]any, 0, len(pending)*2)
	var highest int64
	for _, e := range pending {
		a, m := e.Action, e.Meta
		if n.cfg.OutMap != nil {
			a, m = n.cfg.OutMap(a, m)
		}
		if n.cfg.OutFilter != nil && !n.cfg.OutFilter(a, m) {
			continue
		}
		out := m
		out.Time -= n.baseTime
		out.Added = 0
		if out.Subprotocol == n.cfg.Subprotocol {
			out.Subprotocol = ""
		}
		pairs = append(pairs, wireAction(a), wireMeta(out))
		if m.Added > highest {
			highest = m.Added
		}
	}
	if len(pairs) == 0 {
		n.setState(Synchronized)
		return
	}

	n.syncInFlight = true
	n.batchSentAt = time.Now()
	syncBatchesSent.WithLabelValues(n.nodeId).Inc()
	syncEntriesSent.WithLabelValues(n.nodeId).Add(float64(len(pairs) / 2))
	n.setState(Sending)
	n.send(wire.Sync{Added: highest, Pairs: pairs}.Encode())
}

func (n *Node) handleSynced(msg []any) {
	s, err := wire.DecodeSynced(msg)
	if err != nil {
		n.sendError(KindWrongFormat, msg)
		_ = n.conn.Disconnect(KindWrongFormat)
		return
	}
	n.lastSent = s.Added
	n.syncInFlight = false
	if !n.batchSentAt.IsZero() {
		syncRoundTrip.WithLabelValues(n.nodeId).Observe(float64(time.Since(n.batchSentAt).Milliseconds()))
	}
	if err := n.log.Store().SetLastSynced(n.remoteNodeId, store.SyncedPatch{Sent: &s.Added}); err != nil {
		n.cfg.Logger.Error("node: could not persist sent bookmark", "node", n.nodeId, "peer", n.remoteNodeId, "err", err)
		n.errorEv.Fire(err)
		return
	}
	n.sendPendingBatch()
}

// handleSync implements receipt of a sync batch (spec §4.4.5).
func (n *Node) handleSync(msg []any) {
	s, err := wire.DecodeSync(msg)
	if err != nil {
		n.sendError(KindWrongFormat, msg)
		_ = n.conn.Disconnect(KindWrongFormat)
		return
	}
	received := 0
	for i := 0; i+1 < len(s.Pairs); i += 2 {
		received++
		a, err := unwireAction(s.Pairs[i])
		if err != nil {
			n.sendError(KindWrongFormat, msg)
			_ = n.conn.Disconnect(KindWrongFormat)
			return
		}
		m, err := unwireMeta(s.Pairs[i+1])
		if err != nil {
			n.sendError(KindWrongFormat, msg)
			_ = n.conn.Disconnect(KindWrongFormat)
			return
		}
		m.Time += n.baseTime
		if n.cfg.InMap != nil {
			a, m = n.cfg.InMap(a, m)
		}
		if n.cfg.InFilter != nil && !n.cfg.InFilter(a, m) {
			continue
		}
		m.Subprotocol = n.remoteSubprotocol
		if _, _, err := n.log.Add(a, m); err != nil {
			n.cfg.Logger.Error("node: could not apply synced entry", "node", n.nodeId, "peer", n.remoteNodeId, "id", m.Id, "err", err)
			n.errorEv.Fire(err)
		}
	}
	syncEntriesReceived.WithLabelValues(n.nodeId).Add(float64(received))
	n.lastReceived = s.Added
	n.send(wire.Synced{Added: s.Added}.Encode())
	if err := n.log.Store().SetLastSynced(n.remoteNodeId, store.SyncedPatch{Received: &s.Added}); err != nil {
		n.cfg.Logger.Error("node: could not persist received bookmark", "node", n.nodeId, "peer", n.remoteNodeId, "err", err)
		n.errorEv.Fire(err)
	}
}

// onLocalAdd is the Log.OnAdd trigger of spec §4.4.5's closing
// paragraph: a newly added local action queues a sync while
// synchronized.
func (n *Node) onLocalAdd(e action.Entry) {
	n.addEv.Fire(e)
	if n.state == Synchronized || n.state == Sending {
		n.sendPendingBatch()
	}
}

func wireAction(a action.Action) map[string]any {
	out := make(map[string]any, len(a.Fields)+1)
	for k, v := range a.Fields {
		out[k] = v
	}
	out["type"] = a.Type
	return out
}

func unwireAction(raw any) (action.Action, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return action.Action{}, errBadWirePayload
	}
	t, _ := obj["type"].(string)
	fields := make(map[string]any, len(obj))
	for k, v := range obj {
		if k == "type" {
			continue
		}
		fields[k] = v
	}
	return action.Action{Type: t, Fields: fields}, nil
}

func wireMeta(m action.Meta) map[string]any {
	out := map[string]any{"id": m.Id, "time": m.Time}
	if len(m.Reasons) > 0 {
		out["reasons"] = m.Reasons
	}
	if m.Subprotocol != "" {
		out["subprotocol"] = m.Subprotocol
	}
	if m.KeepLast != "" {
		out["keepLast"] = m.KeepLast
	}
	for k, v := range m.Extra {
		out[k] = v
	}
	return out
}

func unwireMeta(raw any) (action.Meta, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return action.Meta{}, errBadWirePayload
	}
	m := action.Meta{}
	m.Id, _ = obj["id"].(string)
	if t, ok := obj["time"].(float64); ok {
		m.Time = int64(t)
	}
	if rs, ok := obj["reasons"].([]any); ok {
		for _, r := range rs {
			if s, ok := r.(string); ok {
				m.Reasons = append(m.Reasons, s)
			}
		}
	}
	m.Subprotocol, _ = obj["subprotocol"].(string)
	m.KeepLast, _ = obj["keepLast"].(string)
	for k, v := range obj {
		switch k {
		case "id", "time", "reasons", "subprotocol", "keepLast", "added":
			continue
		default:
			if m.Extra == nil {
				m.Extra = map[string]any{}
			}
			m.Extra[k] = v
		}
	}
	return m, nil
}
