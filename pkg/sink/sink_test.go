package sink_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/collabcore/pkg/sink"
	"github.com/cuemby/collabcore/pkg/transport"
	"github.com/cuemby/collabcore/pkg/types"
)

// fakeTransport records every send and lets the test ack on its own
// schedule, standing in for a real grpc-backed collaborator.
type fakeTransport struct {
	mu       sync.Mutex
	sent     []transport.Message
	handlers map[types.ObjectID]transport.AckHandler
	failNext bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: map[types.ObjectID]transport.AckHandler{}}
}

func (f *fakeTransport) Send(_ context.Context, msg transport.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return context.DeadlineExceeded
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeTransport) Register(_ types.Tenant, object types.ObjectID, handler transport.AckHandler) func() {
	f.mu.Lock()
	f.handlers[object] = handler
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.handlers, object)
		f.mu.Unlock()
	}
}

func (f *fakeTransport) ack(tenant types.Tenant, object types.ObjectID, id types.MsgID) {
	f.mu.Lock()
	h := f.handlers[object]
	f.mu.Unlock()
	if h != nil {
		h.HandleAck(tenant, object, id)
	}
}

func (f *fakeTransport) lastSent() (transport.Message, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return transport.Message{}, false
	}
	return f.sent[len(f.sent)-1], true
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

// TestMergeableMessagesCoalesceBeforeSendAndAckAdvancesQueue exercises
// the merge-while-mergeable scheduling rule and ack correlation against
// the head of the queue.
func TestMergeableMessagesCoalesceBeforeSendAndAckAdvancesQueue(t *testing.T) {
	tr := newFakeTransport()
	s := sink.New(1, "doc-1", tr, sink.DefaultConfig())
	defer s.Stop()

	var ids []types.MsgID
	for _, payload := range []string{"a", "b", "c"} {
		p := []byte(payload)
		id := s.Queue(func(types.MsgID) ([]byte, types.MsgPriority, bool) {
			return p, types.PriorityNormal, true
		})
		ids = append(ids, id)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	waitFor(t, func() bool {
		msg, ok := tr.lastSent()
		return ok && string(msg.Payload) == "abc"
	})

	msg, ok := tr.lastSent()
	require.True(t, ok)
	require.Equal(t, ids[0], msg.MsgID, "the merged message keeps the first message's id")

	tr.ack(1, "doc-1", ids[0])

	waitFor(t, func() bool { return s.State() == types.SinkFinished })
}

func TestUnmergeableMessageSendsAlone(t *testing.T) {
	tr := newFakeTransport()
	s := sink.New(1, "doc-1", tr, sink.DefaultConfig())
	defer s.Stop()

	first := s.Queue(func(types.MsgID) ([]byte, types.MsgPriority, bool) {
		return []byte("x"), types.PriorityNormal, false
	})
	s.Queue(func(types.MsgID) ([]byte, types.MsgPriority, bool) {
		return []byte("y"), types.PriorityNormal, true
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	waitFor(t, func() bool {
		msg, ok := tr.lastSent()
		return ok && msg.MsgID == first
	})
	msg, _ := tr.lastSent()
	require.Equal(t, "x", string(msg.Payload), "unmergeable head must not absorb the following message")

	tr.ack(1, "doc-1", first)

	waitFor(t, func() bool {
		msg, ok := tr.lastSent()
		return ok && string(msg.Payload) == "y"
	})
}

func TestHandleAckIgnoresStaleOrMismatchedAcks(t *testing.T) {
	tr := newFakeTransport()
	s := sink.New(1, "doc-1", tr, sink.DefaultConfig())
	defer s.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	id := s.Queue(func(types.MsgID) ([]byte, types.MsgPriority, bool) {
		return []byte("only"), types.PriorityUrgent, false
	})

	waitFor(t, func() bool {
		_, ok := tr.lastSent()
		return ok
	})

	// An ack for an id larger than the head must not be applied
	// (head.id >= ack.id is the only accepted relation), and an ack
	// with no outstanding head is simply ignored.
	tr.ack(1, "doc-1", id+100)
	require.NotEqual(t, types.SinkFinished, s.State())

	tr.ack(1, "doc-1", id)
	waitFor(t, func() bool { return s.State() == types.SinkFinished })

	// A stale repeat ack after the queue has drained is a no-op, not a
	// panic.
	tr.ack(1, "doc-1", id)
}

func TestSubscribeStateObservesSyncingThenFinished(t *testing.T) {
	tr := newFakeTransport()
	s := sink.New(1, "doc-1", tr, sink.DefaultConfig())
	defer s.Stop()

	sub := s.SubscribeState()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	id := s.Queue(func(types.MsgID) ([]byte, types.MsgPriority, bool) {
		return []byte("p"), types.PriorityNormal, false
	})
	waitFor(t, func() bool {
		_, ok := tr.lastSent()
		return ok
	})
	tr.ack(1, "doc-1", id)

	seen := map[types.SinkState]bool{}
	deadline := time.After(2 * time.Second)
	for !seen[types.SinkFinished] {
		select {
		case st := <-sub:
			seen[st] = true
		case <-deadline:
			t.Fatal("did not observe finished state in time")
		}
	}
	require.True(t, seen[types.SinkSyncing])
}
