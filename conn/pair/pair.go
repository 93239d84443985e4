// Package pair provides an in-process, paired Connection
// implementation used by tests and by testutil.TestPair: two Pair
// values that deliver to each other directly, no real transport
// involved.
//
// It is built directly on the teacher's toyqueue package — each side
// owns one end of a toyqueue.BlockingRecordQueuePair, and a
// toyqueue.Pump goroutine drains it into an adapter that unmarshals
// each record and fires it onto the Connection event surface. That
// pairing primitive is exactly what the teacher used in test_utils to
// wire two in-memory replicas together; here it wires two Connection
// endpoints instead of two Syncers.
package pair

import (
	"encoding/json"
	"sync"

	"github.com/CanRau/logux-core/conn"
	"github.com/CanRau/logux-core/toyqueue"
)

// Pair is one end of an in-process connection pair.
type Pair struct {
	conn.Base

	mu        sync.Mutex
	connected bool
	queue     toyqueue.FeedDrainCloser
}

// eventDrainer adapts a Pair's event-firing receive path to
// toyqueue.Drainer, so the receive loop can run as a plain
// toyqueue.Pump instead of a hand-rolled copy of it.
type eventDrainer struct{ p *Pair }

func (d *eventDrainer) Drain(recs toyqueue.Records) error {
	for _, rec := range recs {
		var msg []any
		if err := json.Unmarshal(rec, &msg); err != nil {
			d.p.ErrEv.Fire(&conn.ErrWrongFormat{Raw: rec})
			continue
		}
		d.p.MessageEv.Fire(msg)
	}
	return nil
}

// New builds two Pair values wired to each other: whatever a.Send
// writes arrives at b's OnMessage listeners, and vice versa.
func New() (a, b *Pair) {
	i, o := toyqueue.BlockingRecordQueuePair(1 << 20)
	a = &Pair{queue: i}
	b = &Pair{queue: o}
	return a, b
}

func (p *Pair) Connect() error {
	p.mu.Lock()
	if p.connected {
		p.mu.Unlock()
		return nil
	}
	p.connected = true
	p.mu.Unlock()

	p.ConnectingEv.Fire(struct{}{})
	go toyqueue.Pump(p.queue, &eventDrainer{p: p})
	p.ConnectEv.Fire(struct{}{})
	return nil
}

func (p *Pair) Disconnect(reason string) error {
	p.mu.Lock()
	if !p.connected {
		p.mu.Unlock()
		return nil
	}
	p.connected = false
	p.mu.Unlock()

	_ = p.queue.Close()
	p.DisconnectEv.Fire(reason)
	return nil
}

func (p *Pair) Send(message []any) {
	data, err := json.Marshal(message)
	if err != nil {
		p.ErrEv.Fire(err)
		return
	}
	if err := p.queue.Drain(toyqueue.Records{data}); err != nil {
		p.ErrEv.Fire(err)
	}
}

// SendRaw drains data verbatim, bypassing the []any → JSON encoding
// Send does. Mainly useful for tests that need to deliver a frame
// that is not a well-formed JSON array, to exercise the receiving
// side's wrong-format handling.
func (p *Pair) SendRaw(data []byte) {
	if err := p.queue.Drain(toyqueue.Records{data}); err != nil {
		p.ErrEv.Fire(err)
	}
}

func (p *Pair) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}
