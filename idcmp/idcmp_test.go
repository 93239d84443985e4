package idcmp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOlderEqualTimesDifferentNodes(t *testing.T) {
	a := Meta{Id: "1 a 2", Time: 1}
	b := Meta{Id: "1 b 1", Time: 1}
	assert.True(t, Older(a, b), "expected %q older than %q", a.Id, b.Id)
	assert.False(t, Older(b, a), "expected %q not older than %q", b.Id, a.Id)
}

func TestOlderVaryingNodeIdLength(t *testing.T) {
	a := Meta{Id: "1 1 2", Time: 1}
	b := Meta{Id: "1 11 1", Time: 1}
	assert.True(t, Older(a, b), "expected %q older than %q (lexicographic node compare)", a.Id, b.Id)
}

func TestOlderByTime(t *testing.T) {
	a := Meta{Id: "1 x 0", Time: 1}
	b := Meta{Id: "2 x 0", Time: 2}
	assert.True(t, Older(a, b), "time ordering broken")
	assert.False(t, Older(b, a), "time ordering broken")
}

func TestOlderAbsent(t *testing.T) {
	present := Meta{Id: "1 x 0", Time: 1}
	absent := Meta{Absent: true}
	assert.True(t, Older(absent, present), "absent should be older than present")
	assert.False(t, Older(present, absent), "present should not be older than absent")
	assert.False(t, Older(absent, absent), "both absent: neither older")
}

func TestOlderEqualIds(t *testing.T) {
	a := Meta{Id: "1 x 0", Time: 1}
	assert.False(t, Older(a, a), "equal ids must be neither older nor younger")
}

func TestOlderTotality(t *testing.T) {
	pairs := []struct{ a, b Meta }{
		{Meta{Id: "1 a 2", Time: 1}, Meta{Id: "1 b 1", Time: 1}},
		{Meta{Id: "5 node 9", Time: 5}, Meta{Id: "5 mode 1", Time: 5}},
		{Meta{Id: "3 x 1", Time: 3}, Meta{Id: "3 x 2", Time: 3}},
	}
	for _, p := range pairs {
		ab, ba := Older(p.a, p.b), Older(p.b, p.a)
		assert.NotEqual(t, ab, ba, "comparator not total for %+v vs %+v", p.a, p.b)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	cases := []string{"", "1", "1 2", "1 2 3 4", "x y z", "1 y\tz 3"}
	for _, c := range cases {
		_, err := Parse(c)
		assert.Error(t, err, "expected Parse(%q) to fail", c)
	}
}

func TestGeneratorMonotoneAcrossClockRegression(t *testing.T) {
	clockSeq := []int64{100, 100, 50, 101}
	i := 0
	clock := func() int64 {
		v := clockSeq[i]
		if i < len(clockSeq)-1 {
			i++
		}
		return v
	}
	gen, err := NewGenerator("node1", clock)
	require.NoError(t, err)
	var ids []string
	for range clockSeq {
		ids = append(ids, gen.Next())
	}
	for k := 1; k < len(ids); k++ {
		prev, _ := Parse(ids[k-1])
		cur, _ := Parse(ids[k])
		prevM := Meta{Id: ids[k-1], Time: prev.Time}
		curM := Meta{Id: ids[k], Time: cur.Time}
		assert.True(t, Older(prevM, curM), "id %d (%s) not strictly younger than id %d (%s)", k, ids[k], k-1, ids[k-1])
	}
}

func TestGeneratorRejectsBadNodeId(t *testing.T) {
	_, err := NewGenerator("has\ttab", nil)
	assert.Error(t, err, "expected error for node id containing a tab")
	_, err = NewGenerator("", nil)
	assert.Error(t, err, "expected error for empty node id")
}
