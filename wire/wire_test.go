package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectRoundTrip(t *testing.T) {
	c := Connect{Proto: 3, NodeId: "client", Synced: 0}
	msg := c.Encode()
	got, err := DecodeConnect(msg)
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestConnectedRoundTrip(t *testing.T) {
	c := Connected{Proto: 3, NodeId: "server", T0: 2, T1: 3}
	msg := c.Encode()
	got, err := DecodeConnected(msg)
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestDecodeConnectRejectsTrailingElements(t *testing.T) {
	msg := []any{"connect", float64(3), "client", float64(0), map[string]any{}, "extra"}
	_, err := DecodeConnect(msg)
	assert.Error(t, err, "expected error on unknown trailing element")
}

func TestDecodeConnectRejectsMalformedShape(t *testing.T) {
	_, err := DecodeConnect([]any{"connect", "not-a-number", "client", float64(0)})
	assert.Error(t, err, "expected error on non-numeric proto")
}

func TestSyncFraming(t *testing.T) {
	s := Sync{Added: 5, Pairs: []any{map[string]any{"type": "a"}, map[string]any{"id": "1 x 0"}}}
	msg := s.Encode()
	require.Len(t, msg, 4, "expected [tag, added, action, meta]")

	got, err := DecodeSync(msg)
	require.NoError(t, err)
	assert.EqualValues(t, 5, got.Added)
	assert.Len(t, got.Pairs, 2)
}

func TestSyncRejectsOddPairs(t *testing.T) {
	msg := []any{"sync", float64(5), map[string]any{"type": "a"}}
	_, err := DecodeSync(msg)
	assert.Error(t, err, "expected error on odd number of trailing elements")
}

func TestTagOf(t *testing.T) {
	tag, ok := TagOf([]any{"ping", float64(1)})
	require.True(t, ok)
	assert.Equal(t, TagPing, tag)

	_, ok = TagOf([]any{})
	assert.False(t, ok, "expected no tag for empty message")
}

func TestErrorEncodeWithAndWithoutOptions(t *testing.T) {
	e1 := Error{Kind: "timeout"}
	assert.Len(t, e1.Encode(), 2, "expected 2-element array for error without options")

	e2 := Error{Kind: "wrong-protocol", Options: map[string]any{"supported": 3}}
	assert.Len(t, e2.Encode(), 3, "expected 3-element array for error with options")
}
