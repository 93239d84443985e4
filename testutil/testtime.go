// Package testutil provides deterministic fixtures — a fake clock and
// a Log factory wired to it — shared by this module's own tests,
// grounded on the teacher's test_utils package which plays the same
// role for its replication tests.
package testutil

// TestTime is a deterministic idcmp.Clock: each call returns the next
// multiple of step, starting at step. Using a fixed step rather than a
// plain counter keeps generated ids comparable to real wallclock
// milliseconds in assertions without depending on wall time.
type TestTime struct {
	step int64
	now  int64
}

// NewTestTime builds a TestTime advancing by stepMs milliseconds per
// call. stepMs defaults to 1 if zero or negative.
func NewTestTime(stepMs int64) *TestTime {
	if stepMs <= 0 {
		stepMs = 1
	}
	return &TestTime{step: stepMs}
}

// Next is the idcmp.Clock function: it advances and returns the new
// time.
func (t *TestTime) Next() int64 {
	t.now += t.step
	return t.now
}

// Set pins the next value Next() will hand out minus one step, so the
// following Next() call returns exactly to.
func (t *TestTime) Set(to int64) {
	t.now = to - t.step
}

// Now returns the last value handed out without advancing.
func (t *TestTime) Now() int64 { return t.now }
