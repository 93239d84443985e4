package pebblestore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CanRau/logux-core/action"
	"github.com/CanRau/logux-core/store"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Clean() })
	return s
}

func TestAddAndById(t *testing.T) {
	s := openTest(t)
	m, ok, err := s.Add(action.Action{Type: "t", Fields: map[string]any{"x": float64(1)}}, action.Meta{Id: "1 a 0", Reasons: []string{"r"}})
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 1, m.Added, "expected first added to be 1")

	entry, ok, err := s.ById("1 a 0")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "t", entry.Action.Type)
}

func TestLastAddedSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	s.Add(action.Action{Type: "t"}, action.Meta{Id: "1 a 0", Reasons: []string{"r"}})
	s.Add(action.Action{Type: "t"}, action.Meta{Id: "1 a 1", Reasons: []string{"r"}})
	require.NoError(t, s.Clean())

	s2, err := Open(dir)
	require.NoError(t, err)
	defer s2.Clean()
	last, err := s2.GetLastAdded()
	require.NoError(t, err)
	assert.EqualValues(t, 2, last, "expected restored lastAdded of 2")
}

func TestRemoveReasonPurge(t *testing.T) {
	s := openTest(t)
	s.Add(action.Action{Type: "t"}, action.Meta{Id: "1 a 0", Reasons: []string{"tab"}})
	var cleaned []string
	err := s.RemoveReason("tab", store.Criteria{}, func(a action.Action, m action.Meta) {
		cleaned = append(cleaned, m.Id)
	})
	require.NoError(t, err)
	require.Len(t, cleaned, 1)

	_, ok, _ := s.ById("1 a 0")
	assert.False(t, ok, "entry should be purged")
}
