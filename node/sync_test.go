package node

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CanRau/logux-core/action"
	"github.com/CanRau/logux-core/store"
	"github.com/CanRau/logux-core/wire"
)

func TestSyncStreamsOnlyEntriesPastBookmark(t *testing.T) {
	client, server, clientLog, serverLog := newTestNodes(t,
		Config{Proto: 1, MinProtocol: 1, Clock: seqClock(10)},
		Config{Proto: 1, MinProtocol: 1, Clock: seqClock(2, 3)},
	)
	defer client.Destroy()
	defer server.Destroy()

	for i := 0; i < 3; i++ {
		_, _, err := serverLog.Add(action.Action{Type: "old"}, action.Meta{Reasons: []string{"r"}})
		require.NoError(t, err)
	}
	sent := int64(3)
	require.NoError(t, serverLog.Store().SetLastSynced("client", store.SyncedPatch{Sent: &sent}))
	for i := 0; i < 2; i++ {
		_, _, err := serverLog.Add(action.Action{Type: "new"}, action.Meta{Reasons: []string{"r"}})
		require.NoError(t, err)
	}

	var captured wire.Sync
	got := make(chan struct{})
	client.conn.OnMessage(func(msg []any) {
		tag, ok := wire.TagOf(msg)
		if !ok || tag != wire.TagSync {
			return
		}
		s, err := wire.DecodeSync(msg)
		if err != nil {
			t.Errorf("decode sync: %v", err)
			return
		}
		captured = s
		close(got)
	})

	require.NoError(t, server.Connect())
	require.NoError(t, client.Connect())

	waitState(t, client, Synchronized)
	waitState(t, server, Synchronized)

	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a sync message on the client")
	}

	assert.EqualValues(t, 5, captured.Added)
	require.Len(t, captured.Pairs, 4)

	id := mustMetaId(captured.Pairs[1])
	entry, found, err := clientLog.ById(id)
	require.NoError(t, err)
	require.True(t, found, "synced action should have been applied to client log")
	assert.Equal(t, "new", entry.Action.Type)
}

// TestSyncMapRunsBeforeFilterOnBothSides pins the normative order of
// SPEC_FULL.md's wire-transform pipeline: outMap before outFilter on
// send, and inMap before inFilter before the subprotocol tag on
// receive. Each filter only passes an entry its paired map has
// already touched, so a regression that reorders map/filter (or
// tags the subprotocol too early) drops the entry or trips the
// assertion on the captured subprotocol.
func TestSyncMapRunsBeforeFilterOnBothSides(t *testing.T) {
	var subprotocolDuringInFilter string
	client, server, clientLog, serverLog := newTestNodes(t,
		Config{
			Proto: 1, MinProtocol: 1, Clock: seqClock(10),
			InMap: func(a action.Action, m action.Meta) (action.Action, action.Meta) {
				a.Fields["tagged"] = true
				return a, m
			},
			InFilter: func(a action.Action, m action.Meta) bool {
				subprotocolDuringInFilter = m.Subprotocol
				tagged, _ := a.Fields["tagged"].(bool)
				return tagged
			},
		},
		Config{
			Proto: 1, MinProtocol: 1, Clock: seqClock(2, 3),
			OutMap: func(a action.Action, m action.Meta) (action.Action, action.Meta) {
				a.Fields["stage"] = "mapped"
				return a, m
			},
			OutFilter: func(a action.Action, m action.Meta) bool {
				stage, _ := a.Fields["stage"].(string)
				return stage == "mapped"
			},
		},
	)
	defer client.Destroy()
	defer server.Destroy()

	_, _, err := serverLog.Add(action.Action{Type: "widget", Fields: map[string]any{}}, action.Meta{Reasons: []string{"r"}})
	require.NoError(t, err)

	require.NoError(t, server.Connect())
	require.NoError(t, client.Connect())

	waitState(t, client, Synchronized)
	waitState(t, server, Synchronized)

	require.Eventually(t, func() bool {
		page, err := clientLog.Store().Get(store.GetOptions{})
		require.NoError(t, err)
		return len(page.Entries) == 1
	}, 2*time.Second, 10*time.Millisecond)

	page, err := clientLog.Store().Get(store.GetOptions{})
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	entry := page.Entries[0]

	assert.Equal(t, true, entry.Action.Fields["tagged"], "InMap must run before InFilter sees the entry")
	assert.Equal(t, "0.0.0", entry.Meta.Subprotocol, "subprotocol must still be tagged once the entry reaches the log")
	assert.Empty(t, subprotocolDuringInFilter, "InFilter must run before the subprotocol tag is applied")
}

func mustMetaId(raw any) string {
	m, _ := raw.(map[string]any)
	id, _ := m["id"].(string)
	return id
}
