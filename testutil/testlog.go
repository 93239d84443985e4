package testutil

import (
	"github.com/CanRau/logux-core/actionlog"
	"github.com/CanRau/logux-core/store/memory"
)

// TestLog builds a Log for nodeId over a fresh memory.Store, clocked
// by a fresh TestTime so id generation is deterministic across a test
// run. It panics on error since nodeId is expected to be a compile-
// time constant in callers (a bad node id is a test bug, not a
// runtime condition to handle).
func TestLog(nodeId string) (*actionlog.Log, *TestTime) {
	clock := NewTestTime(1)
	l, err := actionlog.New(nodeId, memory.New(), clock.Next)
	if err != nil {
		panic(err)
	}
	return l, clock
}
