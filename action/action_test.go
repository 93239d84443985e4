package action

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOlderDelegatesToComparator(t *testing.T) {
	a := &Meta{Id: "1 a 2", Time: 1}
	b := &Meta{Id: "1 b 1", Time: 1}
	assert.True(t, Older(a, b), "expected a older than b")
	assert.NotEqual(t, Older(b, a), Older(a, b), "comparator must be antisymmetric for non-equal metas")
}

func TestOlderAbsent(t *testing.T) {
	present := &Meta{Id: "1 a 0", Time: 1}
	assert.True(t, Older(nil, present), "absent meta should be older than a present one")
	assert.False(t, Older(present, nil), "present meta should not be older than absent")
}

func TestRemoveReason(t *testing.T) {
	m := Meta{Reasons: []string{"a", "b", "c"}}
	assert.True(t, m.RemoveReason("b"), "expected removal to report true")
	assert.False(t, m.HasReason("b"), "reason should be gone")
	assert.Len(t, m.Reasons, 2)
	assert.False(t, m.RemoveReason("zzz"), "removing an absent reason should report false")
}

func TestCloneIsIndependent(t *testing.T) {
	m := Meta{Reasons: []string{"a"}, Extra: map[string]any{"x": 1}}
	c := m.Clone()
	c.Reasons[0] = "changed"
	c.Extra["x"] = 2
	assert.Equal(t, "a", m.Reasons[0], "clone mutated original reasons")
	assert.Equal(t, 1, m.Extra["x"], "clone mutated original extra")
}

func TestActionJSONRoundTrip(t *testing.T) {
	a := Action{Type: "user/add", Fields: map[string]any{"name": "ivan"}}
	data, err := a.MarshalJSON()
	require.NoError(t, err)

	var b Action
	require.NoError(t, b.UnmarshalJSON(data))
	assert.Equal(t, "user/add", b.Type)
	assert.Equal(t, "ivan", b.Fields["name"])
}
