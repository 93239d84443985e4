package node

import (
	"sync"
	"time"

	"github.com/CanRau/logux-core/action"
	"github.com/CanRau/logux-core/actionlog"
	"github.com/CanRau/logux-core/conn"
	"github.com/CanRau/logux-core/event"
	"github.com/CanRau/logux-core/utils"
	"github.com/CanRau/logux-core/wire"
)

// Node is the protocol state machine of spec §4.4. All mutable state
// below is touched only from the run loop goroutine that newNode
// starts when the Node is built; every other method communicates with it by enqueueing a
// closure on cmds, the Go realization of the single execution context
// spec §5 requires.
type Node struct {
	cfg      Config
	nodeId   string
	isServer bool
	log      *actionlog.Log
	conn     conn.Connection

	cmds chan func()
	stop chan struct{}
	wg   sync.WaitGroup

	// snapshot is a lock-guarded copy of the fields callers may read
	// from any goroutine (State, Connected, Synchronized); the run loop
	// refreshes it after every transition.
	snapMu sync.Mutex
	snap   snapshot

	state             State
	remoteNodeId      string
	remoteSubprotocol string
	remoteProto       int64

	baseTime int64
	timeFix  int64

	tA int64 // client: wallclock when connect was sent

	lastSent     int64
	lastReceived int64
	syncInFlight bool
	batchSentAt  time.Time

	pingTimer    *time.Timer
	timeoutTimer *time.Timer
	pingSentAt   time.Time
	pingRTT      *utils.AvgVal

	logUnsub event.Unsubscribe

	connectEv      event.Emitter[struct{}]
	connectedEv    event.Emitter[struct{}]
	disconnectEv   event.Emitter[string]
	stateEv        event.Emitter[State]
	synchronizedEv event.Emitter[struct{}]
	addEv          event.Emitter[action.Entry]
	clientErrorEv  event.Emitter[*DomainError]
	errorEv        event.Emitter[error]
}

type snapshot struct {
	state       State
	connected   bool
	synchronize bool
}

func newNode(nodeId string, log *actionlog.Log, connection conn.Connection, cfg Config, isServer bool) *Node {
	n := &Node{
		cfg:      cfg.withDefaults(),
		nodeId:   nodeId,
		isServer: isServer,
		log:      log,
		conn:     connection,
		cmds:     make(chan func(), 64),
		stop:     make(chan struct{}),
		pingRTT:  &utils.AvgVal{},
	}
	connection.OnConnecting(func() {})
	connection.OnConnect(func() { n.enqueue(n.onTransportConnect) })
	connection.OnDisconnect(func(reason string) { n.enqueue(func() { n.onTransportDisconnect(reason) }) })
	connection.OnMessage(func(msg []any) { n.enqueue(func() { n.onMessage(msg) }) })
	connection.OnError(func(err error) { n.enqueue(func() { n.onTransportError(err) }) })
	n.logUnsub = log.OnAdd(func(e action.Entry) { n.enqueue(func() { n.onLocalAdd(e) }) })
	n.wg.Add(1)
	go n.run()
	return n
}

// NewClientNode builds a Node that opens the handshake on connect.
func NewClientNode(nodeId string, log *actionlog.Log, connection conn.Connection, cfg Config) *Node {
	return newNode(nodeId, log, connection, cfg, false)
}

// NewServerNode builds a Node that waits for the peer's connect.
func NewServerNode(nodeId string, log *actionlog.Log, connection conn.Connection, cfg Config) *Node {
	return newNode(nodeId, log, connection, cfg, true)
}

func (n *Node) run() {
	defer n.wg.Done()
	for {
		select {
		case f := <-n.cmds:
			f()
		case <-n.stop:
			n.drainTimers()
			return
		}
	}
}

// enqueue hands a state-mutating closure to the run loop. Safe to call
// from any goroutine, including from within the run loop itself.
func (n *Node) enqueue(f func()) {
	select {
	case n.cmds <- f:
	case <-n.stop:
	}
}

// Connect starts the transport. For a ClientNode this kicks off the
// handshake once the transport reports open; for a ServerNode it just
// starts listening for the peer's connect.
func (n *Node) Connect() error {
	done := make(chan struct{})
	n.enqueue(func() {
		n.setState(Connecting)
		close(done)
	})
	<-done
	return n.conn.Connect()
}

// Destroy cancels pending timers, closes the transport and detaches
// the Node from its Log's add event (spec §5's cancellation contract).
// Listeners registered on the Connection and on the Node's own events
// stay attached; the Connection ones only try to enqueue work, which
// the stopped run loop no longer accepts. Pending store
// operations already in flight are allowed to resolve; their results
// are simply never looked at again since the run loop has exited.
func (n *Node) Destroy() {
	select {
	case <-n.stop:
		return
	default:
	}
	close(n.stop)
	n.logUnsub()
	_ = n.conn.Disconnect("destroy")
	n.wg.Wait()
}

func (n *Node) drainTimers() {
	if n.pingTimer != nil {
		n.pingTimer.Stop()
	}
	if n.timeoutTimer != nil {
		n.timeoutTimer.Stop()
	}
}

func (n *Node) setState(s State) {
	n.state = s
	n.publishSnapshot()
	stateTransitions.WithLabelValues(n.nodeId, s.String()).Inc()
	n.stateEv.Fire(s)
}

func (n *Node) publishSnapshot() {
	n.snapMu.Lock()
	n.snap = snapshot{
		state:       n.state,
		connected:   n.state == Synchronized || n.state == Sending,
		synchronize: n.state == Synchronized,
	}
	n.snapMu.Unlock()
}

// State reports the current state, safe to call from any goroutine.
func (n *Node) State() State {
	n.snapMu.Lock()
	defer n.snapMu.Unlock()
	return n.snap.state
}

// Connected reports whether the handshake has completed and the
// transport has not since closed (spec §4.4.2's observable boolean).
func (n *Node) Connected() bool {
	n.snapMu.Lock()
	defer n.snapMu.Unlock()
	return n.snap.connected
}

// Synchronized reports whether both bookmarks are current.
func (n *Node) Synchronized() bool {
	n.snapMu.Lock()
	defer n.snapMu.Unlock()
	return n.snap.synchronize
}

func (n *Node) OnConnect(f func()) event.Unsubscribe { return n.connectEv.On(func(struct{}) { f() }) }
func (n *Node) OnConnected(f func()) event.Unsubscribe {
	return n.connectedEv.On(func(struct{}) { f() })
}
func (n *Node) OnDisconnect(f func(reason string)) event.Unsubscribe { return n.disconnectEv.On(f) }
func (n *Node) OnState(f func(State)) event.Unsubscribe             { return n.stateEv.On(f) }
func (n *Node) OnSynchronized(f func()) event.Unsubscribe {
	return n.synchronizedEv.On(func(struct{}) { f() })
}
func (n *Node) OnAdd(f func(action.Entry)) event.Unsubscribe     { return n.addEv.On(f) }
func (n *Node) OnClientError(f func(*DomainError)) event.Unsubscribe { return n.clientErrorEv.On(f) }
func (n *Node) OnError(f func(error)) event.Unsubscribe          { return n.errorEv.On(f) }

// PingRTT returns the moving average of observed ping/pong round-trip
// times in milliseconds, or 0 before the first pong arrives.
func (n *Node) PingRTT() float64 { return n.pingRTT.Val() }

// WaitFor resolves once state is reached. The channel is not closed
// when the node is destroyed before reaching it. It is safe to call
// concurrently with the run loop; the check for an already-current
// state happens after subscribing so callers never miss a transition
// that raced ahead of them.
func (n *Node) WaitFor(target State) <-chan struct{} {
	done := make(chan struct{})
	var once sync.Once
	var unsub event.Unsubscribe
	unsub = n.OnState(func(s State) {
		if s == target {
			unsub()
			once.Do(func() { close(done) })
		}
	})
	if n.State() == target {
		unsub()
		once.Do(func() { close(done) })
	}
	return done
}

func (n *Node) onTransportDisconnect(reason string) {
	n.cfg.Logger.Debug("node: transport disconnected", "node", n.nodeId, "reason", reason)
	n.setState(Disconnected)
	n.drainTimers()
	n.disconnectEv.Fire(reason)
}

func (n *Node) onTransportError(err error) {
	if wf, ok := err.(*conn.ErrWrongFormat); ok {
		n.sendError(KindWrongFormat, string(wf.Raw))
		_ = n.conn.Disconnect(KindWrongFormat)
		return
	}
	n.cfg.Logger.Error("node: transport error", "node", n.nodeId, "err", err)
	n.errorEv.Fire(err)
}

func (n *Node) onMessage(msg []any) {
	n.resetTimeoutTimer()
	tag, ok := wire.TagOf(msg)
	if !ok {
		n.sendError(KindWrongFormat, msg)
		_ = n.conn.Disconnect(KindWrongFormat)
		return
	}
	switch tag {
	case wire.TagConnect:
		n.handleConnect(msg)
	case wire.TagConnected:
		n.handleConnected(msg)
	case wire.TagSync:
		n.handleSync(msg)
	case wire.TagSynced:
		n.handleSynced(msg)
	case wire.TagPing:
		n.handlePing(msg)
	case wire.TagPong:
		n.handlePong(msg)
	case wire.TagDebug:
		// informational only; no core behavior hangs off it.
	case wire.TagError:
		n.handleError(msg)
	default:
		n.sendError(KindUnknownMessage, string(tag))
		_ = n.conn.Disconnect(KindUnknownMessage)
	}
}

func (n *Node) send(msg []any) { n.conn.Send(msg) }

func (n *Node) sendError(kind string, options any) {
	errorsByKind.WithLabelValues(n.nodeId, kind, "sent").Inc()
	n.send(wire.Error{Kind: kind, Options: options}.Encode())
}

func (n *Node) handleError(msg []any) {
	e, err := wire.DecodeError(msg)
	if err != nil {
		n.sendError(KindWrongFormat, msg)
		_ = n.conn.Disconnect(KindWrongFormat)
		return
	}
	de := &DomainError{Kind: e.Kind, Options: e.Options, Received: true}
	errorsByKind.WithLabelValues(n.nodeId, de.Kind, "received").Inc()
	// Informational kinds (spec §4.4.7) never throw; everything else is
	// "thrown" per §7. We cannot throw across goroutines, so every
	// received error fires OnClientError, and non-informational kinds
	// fire OnError as well; it is on the caller to register those
	// listeners rather than on us to guess whether anyone is listening.
	n.clientErrorEv.Fire(de)
	if !de.Informational() {
		n.errorEv.Fire(de)
	}
}
