package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CanRau/logux-core/action"
	"github.com/CanRau/logux-core/store"
)

func TestAddAssignsMonotoneAdded(t *testing.T) {
	s := New()
	m1, ok, err := s.Add(action.Action{Type: "t"}, action.Meta{Id: "1 a 0", Reasons: []string{"r"}})
	require.NoError(t, err)
	require.True(t, ok)
	m2, ok, err := s.Add(action.Action{Type: "t"}, action.Meta{Id: "1 a 1", Reasons: []string{"r"}})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Greater(t, m2.Added, m1.Added, "added not monotone")
}

func TestAddDuplicateId(t *testing.T) {
	s := New()
	_, ok, _ := s.Add(action.Action{Type: "t"}, action.Meta{Id: "1 a 0"})
	require.True(t, ok, "first add should succeed")
	_, ok, _ = s.Add(action.Action{Type: "t"}, action.Meta{Id: "1 a 0"})
	assert.False(t, ok, "duplicate id should not be accepted")
}

func TestRemoveReasonPurgesEmptyEntry(t *testing.T) {
	s := New()
	s.Add(action.Action{Type: "t"}, action.Meta{Id: "1 a 0", Reasons: []string{"tab"}})
	var cleaned []string
	err := s.RemoveReason("tab", store.Criteria{}, func(a action.Action, m action.Meta) {
		cleaned = append(cleaned, m.Id)
	})
	require.NoError(t, err)
	require.Equal(t, []string{"1 a 0"}, cleaned, "expected clean callback for the purged entry")

	_, ok, _ := s.ById("1 a 0")
	assert.False(t, ok, "entry should be gone after last reason removed")
}

func TestGetOrderedByAdded(t *testing.T) {
	s := New()
	s.Add(action.Action{Type: "t"}, action.Meta{Id: "1 a 0", Reasons: []string{"r"}})
	s.Add(action.Action{Type: "t"}, action.Meta{Id: "1 a 1", Reasons: []string{"r"}})
	s.Add(action.Action{Type: "t"}, action.Meta{Id: "1 a 2", Reasons: []string{"r"}})

	page, err := s.Get(store.GetOptions{Order: store.OrderAdded})
	require.NoError(t, err)
	require.Len(t, page.Entries, 3)
	for i := 1; i < len(page.Entries); i++ {
		assert.GreaterOrEqual(t, page.Entries[i-1].Meta.Added, page.Entries[i].Meta.Added, "entries not newest-first by added")
	}
}

func TestLastSyncedRoundTrip(t *testing.T) {
	s := New()
	sent := int64(5)
	require.NoError(t, s.SetLastSynced("peer", store.SyncedPatch{Sent: &sent}))
	got, err := s.GetLastSynced("peer")
	require.NoError(t, err)
	assert.EqualValues(t, 5, got.Sent)
	assert.EqualValues(t, 0, got.Received)
}

func TestDuplicateAddIsIdempotentForSyncReplay(t *testing.T) {
	s := New()
	m1, _, _ := s.Add(action.Action{Type: "t"}, action.Meta{Id: "1 a 0", Reasons: []string{"r"}})
	m2, ok, _ := s.Add(action.Action{Type: "t"}, action.Meta{Id: "1 a 0", Reasons: []string{"r"}})
	assert.False(t, ok, "second add of the same id must report duplicate")
	assert.Equal(t, m1.Added, m2.Added, "duplicate add should surface the original added value")
}
