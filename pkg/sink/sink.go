// Package sink implements the outbound sync pipeline: a priority queue of
// pending CRDT messages for one object, merged where possible, sent
// through a transport with ack-timeout retry, and a watchable sink state.
package sink

import (
	"container/heap"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/collabcore/pkg/events"
	"github.com/cuemby/collabcore/pkg/log"
	"github.com/cuemby/collabcore/pkg/metrics"
	"github.com/cuemby/collabcore/pkg/transport"
	"github.com/cuemby/collabcore/pkg/types"
)

const (
	defaultTimeout      = 2 * time.Second
	defaultMaxMergeSize = 4096
)

// Strategy selects when a deferrable (normal-priority) message is allowed
// to send.
type Strategy struct {
	// FixInterval, when non-zero, defers non-init/urgent sends until at
	// least this long has elapsed since the last send. Zero means Asap:
	// send as soon as a message is available.
	FixInterval time.Duration
}

// Config mirrors the spec's recognized sink options.
type Config struct {
	Timeout      time.Duration
	MaxMergeSize int
	Strategy     Strategy
}

// DefaultConfig returns the documented defaults: 2s timeout, 4096-byte
// max merge size, Asap strategy.
func DefaultConfig() Config {
	return Config{Timeout: defaultTimeout, MaxMergeSize: defaultMaxMergeSize}
}

// Builder constructs the payload and priority for the next queued
// message, deferring marshaling until the message actually mints an id.
type Builder func(id types.MsgID) (payload []byte, priority types.MsgPriority, mergeable bool)

// message is one queue entry. Priority queue ordering is priority first
// (lower value first), then insertion sequence as a FIFO tiebreaker.
type message struct {
	id        types.MsgID
	sequence  uint64
	priority  types.MsgPriority
	mergeable bool
	payload   []byte
	state     types.MsgState
	deadline  time.Time
}

type messageHeap []*message

func (h messageHeap) Len() int { return len(h) }
func (h messageHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].sequence < h[j].sequence
}
func (h messageHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *messageHeap) Push(x any)   { *h = append(*h, x.(*message)) }
func (h *messageHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Sink is the outbound sync pipeline for a single object.
type Sink struct {
	tenant types.Tenant
	object types.ObjectID
	cfg    Config
	tr     transport.Transport

	mu       sync.Mutex
	queue    messageHeap
	sequence uint64
	nextID   atomic.Uint64
	lastSent time.Time

	ackWaiters map[types.MsgID]chan struct{}

	notifier   chan bool // true means stop the runner
	state      atomic.Int32
	stateSub   *events.Broker[types.SinkState]
	unregister func()
}

// New constructs a Sink bound to one object and starts listening for acks
// on tr. Call Run to drive the scheduling loop.
func New(tenant types.Tenant, object types.ObjectID, tr transport.Transport, cfg Config) *Sink {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxMergeSize <= 0 {
		cfg.MaxMergeSize = defaultMaxMergeSize
	}
	s := &Sink{
		tenant:     tenant,
		object:     object,
		cfg:        cfg,
		tr:         tr,
		ackWaiters: map[types.MsgID]chan struct{}{},
		notifier:   make(chan bool, 1),
		stateSub:   events.NewBroker[types.SinkState](),
	}
	s.stateSub.Start()
	s.setState(types.SinkInit)
	s.unregister = tr.Register(tenant, object, transport.AckHandlerFunc(s.HandleAck))
	heap.Init(&s.queue)
	return s
}

// SubscribeState returns a receiver of sink state transitions.
func (s *Sink) SubscribeState() events.Subscriber[types.SinkState] {
	return s.stateSub.Subscribe()
}

// State returns the sink's current state.
func (s *Sink) State() types.SinkState {
	return types.SinkState(s.state.Load())
}

func (s *Sink) setState(st types.SinkState) {
	s.state.Store(int32(st))
	s.stateSub.Publish(st)
	metrics.SinkStateGauge.Reset()
	metrics.SinkStateGauge.WithLabelValues(st.String()).Set(1)
}

// Queue mints the next message id, builds the message via builder, inserts
// it under priority order, and notifies the runner.
func (s *Sink) Queue(builder Builder) types.MsgID {
	id := types.MsgID(s.nextID.Add(1))
	payload, priority, mergeable := builder(id)

	s.mu.Lock()
	s.sequence++
	heap.Push(&s.queue, &message{
		id:        id,
		sequence:  s.sequence,
		priority:  priority,
		mergeable: mergeable,
		payload:   payload,
		state:     types.MsgPending,
	})
	s.mu.Unlock()

	metrics.SinkMessagesQueuedTotal.Inc()
	log.WithMessageID(uint64(id)).Debug().Msg("queued outbound message")
	s.notify(false)
	return id
}

// notify wakes the runner for another scheduling tick. stop=true tells
// CollabSinkRunner-style consumers to terminate; it is a single-producer
// non-blocking broadcast, matching the "notifier is a boolean channel
// where true means stop" contract.
func (s *Sink) notify(stop bool) {
	select {
	case s.notifier <- stop:
	default:
	}
}

// Stop signals the runner to terminate on its next wake. Equivalent to
// the destructor-sends-stop-signal behavior: unsent messages remain in
// the queue for a future session.
func (s *Sink) Stop() {
	s.unregister()
	s.notify(true)
}

// HandleAck correlates an inbound ack by message id with the current head
// of the queue. Acks are ignored unless the head message is Processing and
// its id matches exactly; head.id is asserted to be >= ack.id.
func (s *Sink) HandleAck(_ types.Tenant, _ types.ObjectID, msgID types.MsgID) {
	s.mu.Lock()
	if len(s.queue) == 0 {
		s.mu.Unlock()
		return
	}
	head := s.queue[0]
	if head.id < msgID {
		// Violates head.id >= ack.id; drop defensively rather than panic
		// on a malformed or duplicate ack.
		s.mu.Unlock()
		return
	}
	if head.state != types.MsgProcessing || head.id != msgID {
		s.mu.Unlock()
		return
	}
	heap.Pop(&s.queue)
	empty := len(s.queue) == 0
	s.mu.Unlock()

	metrics.SinkMessagesAckedTotal.Inc()
	s.resolveWaiter(msgID)
	if empty {
		s.setState(types.SinkFinished)
	}
	s.notify(false)
}

func (s *Sink) resolveWaiter(id types.MsgID) {
	s.mu.Lock()
	ch, ok := s.ackWaiters[id]
	delete(s.ackWaiters, id)
	s.mu.Unlock()
	if ok {
		close(ch)
	}
}

// Run drives the scheduling loop until Stop is called or ctx is
// canceled. It mirrors CollabSinkRunner: wait for a notification, process
// one tick, repeat.
func (s *Sink) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case stop := <-s.notifier:
			if stop {
				return
			}
			s.processNextMsg(ctx)
		}
	}
}

// processNextMsg implements the per-tick algorithm: non-deferrable
// messages send immediately; FixInterval strategy defers otherwise-ready
// sends until the interval elapses; mergeable messages are coalesced up
// to MaxMergeSize before sending.
func (s *Sink) processNextMsg(ctx context.Context) {
	s.mu.Lock()
	if len(s.queue) == 0 {
		s.mu.Unlock()
		return
	}
	head := s.queue[0]
	if head.state == types.MsgProcessing {
		s.mu.Unlock()
		return
	}

	deferrable := head.priority == types.PriorityNormal
	if deferrable && s.cfg.Strategy.FixInterval > 0 {
		if time.Since(s.lastSent) < s.cfg.Strategy.FixInterval {
			s.mu.Unlock()
			go func() {
				time.Sleep(s.cfg.Strategy.FixInterval - time.Since(s.lastSent))
				s.notify(false)
			}()
			return
		}
	}

	merged := heap.Pop(&s.queue).(*message)
	for len(s.queue) > 0 && merged.mergeable {
		next := s.queue[0]
		if !next.mergeable || next.priority != merged.priority {
			break
		}
		if len(merged.payload)+len(next.payload) > s.cfg.MaxMergeSize {
			break
		}
		heap.Pop(&s.queue)
		merged.payload = append(merged.payload, next.payload...)
		metrics.SinkMessagesMergedTotal.Inc()
	}

	merged.state = types.MsgProcessing
	merged.deadline = time.Now().Add(s.cfg.Timeout)
	heap.Push(&s.queue, merged)
	s.lastSent = time.Now()
	if merged.priority != types.PriorityInit {
		s.setState(types.SinkSyncing)
	}

	waiter := make(chan struct{})
	s.ackWaiters[merged.id] = waiter
	s.mu.Unlock()

	go s.sendAndAwaitAck(ctx, merged, waiter)
}

func (s *Sink) sendAndAwaitAck(ctx context.Context, msg *message, waiter chan struct{}) {
	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	err := s.tr.Send(sendCtx, transport.Message{
		Tenant:  s.tenant,
		Object:  s.object,
		MsgID:   msg.id,
		Payload: msg.payload,
	})
	if err != nil {
		log.WithMessageID(uint64(msg.id)).Warn().Err(err).Msg("send failed")
		s.resolveWaiter(msg.id)
		s.markTimeout(msg.id)
		return
	}

	select {
	case <-waiter:
		// acked; HandleAck already advanced the queue and state.
	case <-time.After(s.cfg.Timeout):
		s.resolveWaiter(msg.id)
		s.markTimeout(msg.id)
	case <-ctx.Done():
		s.resolveWaiter(msg.id)
	}
}

// markTimeout returns the head to Pending, so the next tick resends it
// under the same id, and notifies the runner to retry.
func (s *Sink) markTimeout(id types.MsgID) {
	s.mu.Lock()
	if len(s.queue) > 0 && s.queue[0].id == id {
		s.queue[0].state = types.MsgPending
	}
	s.mu.Unlock()
	metrics.SinkTimeoutsTotal.Inc()
	s.notify(false)
}
