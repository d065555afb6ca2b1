package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/linkollector/internal/control"
	"github.com/danmuck/linkollector/internal/poll"
	"github.com/danmuck/linkollector/internal/protocol"
	"github.com/danmuck/linkollector/internal/testutil/chantest"
	"github.com/danmuck/linkollector/internal/testutil/testlog"
)

var errBroken = errors.New("broken socket")

// fakeReply is an in-memory reply socket that records acknowledgements.
type fakeReply struct {
	mu       sync.Mutex
	queue    [][]byte
	spurious int
	recvErr  error
	sendErr  error
	owed     bool
	acks     int
	bell     chan struct{}
}

func newFakeReply() *fakeReply {
	return &fakeReply{bell: make(chan struct{}, 1)}
}

func (f *fakeReply) push(msg []byte) {
	f.mu.Lock()
	f.queue = append(f.queue, msg)
	f.mu.Unlock()
	select {
	case f.bell <- struct{}{}:
	default:
	}
}

func (f *fakeReply) Pending() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue) > 0 || f.spurious > 0 || f.recvErr != nil
}

func (f *fakeReply) Notify() <-chan struct{} { return f.bell }

func (f *fakeReply) TryRecv() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recvErr != nil {
		return nil, f.recvErr
	}
	if f.spurious > 0 {
		f.spurious--
		return nil, poll.ErrWouldBlock
	}
	if len(f.queue) == 0 {
		return nil, poll.ErrWouldBlock
	}
	msg := f.queue[0]
	f.queue = f.queue[1:]
	f.owed = true
	return msg, nil
}

func (f *fakeReply) Send(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.owed {
		return errors.New("send without request")
	}
	f.owed = false
	if f.sendErr != nil {
		return f.sendErr
	}
	if len(payload) != 0 {
		return errors.New("acknowledgement must be empty")
	}
	f.acks++
	return nil
}

func (f *fakeReply) counts() (acks, queued int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acks, len(f.queue)
}

type loopHarness struct {
	loop      *Loop
	reply     *fakeReply
	stopPeer  *control.Endpoint
	forwarded *control.Endpoint
	result    chan error
}

func newLoopHarness(t *testing.T) *loopHarness {
	t.Helper()
	fabric := control.NewFabric()
	stop, err := fabric.Bind(control.WorkerShutdownEndpoint, 1)
	if err != nil {
		t.Fatalf("bind stop: %v", err)
	}
	stopPeer, err := fabric.Connect(control.WorkerShutdownEndpoint)
	if err != nil {
		t.Fatalf("connect stop: %v", err)
	}
	forward, err := fabric.Bind(control.WorkerResponseEndpoint, 8)
	if err != nil {
		t.Fatalf("bind forward: %v", err)
	}
	forwarded, err := fabric.Connect(control.WorkerResponseEndpoint)
	if err != nil {
		t.Fatalf("connect forward: %v", err)
	}
	t.Cleanup(func() {
		_ = stopPeer.Close()
		_ = stop.Close()
		_ = forwarded.Close()
		_ = forward.Close()
	})
	reply := newFakeReply()
	return &loopHarness{
		loop:      &Loop{Reply: reply, Stop: stop, Forward: forward},
		reply:     reply,
		stopPeer:  stopPeer,
		forwarded: forwarded,
		result:    make(chan error, 1),
	}
}

func (h *loopHarness) start(ctx context.Context) {
	go func() { h.result <- h.loop.Run(ctx) }()
}

func encode(t *testing.T, activity protocol.Activity, payload string) []byte {
	t.Helper()
	raw, err := protocol.Encode(activity, payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return raw
}

func recvWithin(t *testing.T, ep *control.Endpoint) []byte {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, err := ep.Recv(ctx)
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	return msg
}

func TestLoopAcknowledgesAndForwards(t *testing.T) {
	testlog.Start(t)

	h := newLoopHarness(t)
	h.start(context.Background())

	raw := encode(t, protocol.ActivityText, "hello")
	h.reply.push(raw)
	if got := recvWithin(t, h.forwarded); string(got) != string(raw) {
		t.Fatalf("forwarded bytes mismatch: %q", got)
	}

	if err := h.stopPeer.TrySend(nil); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := chantest.RequireReceive(t, h.result, 2*time.Second, "waiting for loop exit"); err != nil {
		t.Fatalf("run: %v", err)
	}
	if acks, _ := h.reply.counts(); acks != 1 {
		t.Fatalf("expected exactly one acknowledgement, got %d", acks)
	}
	if h.loop.State() != StateStopped {
		t.Fatalf("expected stopped state, got %s", h.loop.State())
	}
}

func TestLoopStopTakesPriority(t *testing.T) {
	testlog.Start(t)

	h := newLoopHarness(t)
	h.reply.push(encode(t, protocol.ActivityURL, "https://example.com"))
	if err := h.stopPeer.TrySend(nil); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := h.loop.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	acks, queued := h.reply.counts()
	if acks != 0 || queued != 1 {
		t.Fatalf("request should stay queued when stop is ready: acks=%d queued=%d", acks, queued)
	}
	if h.forwarded.Pending() {
		t.Fatalf("nothing should be forwarded")
	}
}

func TestLoopDecodeFailureContinues(t *testing.T) {
	testlog.Start(t)

	h := newLoopHarness(t)
	h.start(context.Background())

	h.reply.push([]byte("garbage"))
	h.reply.push(nil)
	valid := encode(t, protocol.ActivityURL, "https://example.com")
	h.reply.push(valid)
	if got := recvWithin(t, h.forwarded); string(got) != string(valid) {
		t.Fatalf("expected only the valid request to be forwarded, got %q", got)
	}
	if acks, _ := h.reply.counts(); acks != 3 {
		t.Fatalf("every request must be acknowledged, got %d", acks)
	}

	_ = h.stopPeer.TrySend(nil)
	if err := chantest.RequireReceive(t, h.result, 2*time.Second, "waiting for loop exit"); err != nil {
		t.Fatalf("run: %v", err)
	}
	if h.forwarded.Pending() {
		t.Fatalf("malformed requests must not be forwarded")
	}
}

func TestLoopWouldBlockReturnsToWaiting(t *testing.T) {
	testlog.Start(t)

	h := newLoopHarness(t)
	h.reply.spurious = 1

	var mu sync.Mutex
	var states []State
	h.loop.OnState = func(s State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
		if s == StateWaiting && len(states) > 2 {
			_ = h.stopPeer.TrySend(nil)
		}
	}
	if err := h.loop.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	want := []State{StateWaiting, StateDispatching, StateWaiting, StateDispatching, StateStopped}
	mu.Lock()
	defer mu.Unlock()
	if len(states) != len(want) {
		t.Fatalf("state sequence: got=%v want=%v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("state sequence: got=%v want=%v", states, want)
		}
	}
	if acks, _ := h.reply.counts(); acks != 0 {
		t.Fatalf("would-block must not acknowledge, got %d", acks)
	}
}

func TestLoopReceiveFailureIsFatal(t *testing.T) {
	testlog.Start(t)

	h := newLoopHarness(t)
	h.reply.recvErr = errBroken
	err := h.loop.Run(context.Background())
	if !errors.Is(err, ErrReceiveFailed) || !errors.Is(err, errBroken) {
		t.Fatalf("expected ErrReceiveFailed wrapping the cause, got %v", err)
	}
	if h.loop.State() != StateStopped {
		t.Fatalf("expected stopped state, got %s", h.loop.State())
	}
}

func TestLoopSendFailureIsFatal(t *testing.T) {
	testlog.Start(t)

	h := newLoopHarness(t)
	h.reply.sendErr = errBroken
	h.reply.push(encode(t, protocol.ActivityText, "hello"))
	err := h.loop.Run(context.Background())
	if !errors.Is(err, ErrSendFailed) {
		t.Fatalf("expected ErrSendFailed, got %v", err)
	}
	if h.forwarded.Pending() {
		t.Fatalf("unacknowledged request must not be forwarded")
	}
}

func TestLoopForwardFailureIsFatal(t *testing.T) {
	testlog.Start(t)

	h := newLoopHarness(t)
	fwd := h.loop.Forward.(*control.Endpoint)
	_ = fwd.Close()
	h.reply.push(encode(t, protocol.ActivityText, "hello"))
	err := h.loop.Run(context.Background())
	if !errors.Is(err, ErrForwardFailed) || !errors.Is(err, control.ErrClosed) {
		t.Fatalf("expected ErrForwardFailed wrapping ErrClosed, got %v", err)
	}
	if acks, _ := h.reply.counts(); acks != 1 {
		t.Fatalf("request must be acknowledged before forwarding, got %d", acks)
	}
}

func TestLoopPollFailure(t *testing.T) {
	testlog.Start(t)

	h := newLoopHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := h.loop.Run(ctx)
	if !errors.Is(err, ErrPollFailed) || !errors.Is(err, poll.ErrInterrupted) {
		t.Fatalf("expected ErrPollFailed wrapping ErrInterrupted, got %v", err)
	}
	if h.loop.State() != StateStopped {
		t.Fatalf("expected stopped state, got %s", h.loop.State())
	}
}

func TestLoopObserverSeesDecodedMessage(t *testing.T) {
	testlog.Start(t)

	h := newLoopHarness(t)
	seen := make(chan protocol.Message, 1)
	h.loop.Forward = nil
	h.loop.Observer = ObserverFunc(func(msg protocol.Message) { seen <- msg })
	h.start(context.Background())

	h.reply.push(encode(t, protocol.ActivityText, "inline"))
	msg := chantest.RequireReceive(t, seen, 2*time.Second, "waiting for observer")
	if msg.Activity != protocol.ActivityText || msg.Payload != "inline" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	_ = h.stopPeer.TrySend(nil)
	if err := chantest.RequireReceive(t, h.result, 2*time.Second, "waiting for loop exit"); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestLoopRequiresSockets(t *testing.T) {
	testlog.Start(t)

	if err := (&Loop{}).Run(context.Background()); !errors.Is(err, ErrLoopConfig) {
		t.Fatalf("expected ErrLoopConfig, got %v", err)
	}
	if (&Loop{}).State() != StateIdle {
		t.Fatalf("new loop should be idle")
	}
}
