package poll

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danmuck/linkollector/internal/testutil/testlog"
)

type fakeTarget struct {
	queued atomic.Int32
	bell   chan struct{}
	closed chan struct{}
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{bell: make(chan struct{}, 1), closed: make(chan struct{})}
}

func (f *fakeTarget) push() {
	f.queued.Add(1)
	f.ring()
}

func (f *fakeTarget) ring() {
	select {
	case f.bell <- struct{}{}:
	default:
	}
}

func (f *fakeTarget) Pending() bool           { return f.queued.Load() > 0 }
func (f *fakeTarget) Notify() <-chan struct{} { return f.bell }
func (f *fakeTarget) Closed() <-chan struct{} { return f.closed }

func TestWaitReturnsPendingImmediately(t *testing.T) {
	testlog.Start(t)

	a, b := newFakeTarget(), newFakeTarget()
	b.queued.Store(1)
	ready, err := Wait(context.Background(), a, b)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if len(ready) != 1 || !Ready(ready, b) || Ready(ready, a) {
		t.Fatalf("unexpected ready set: %v", ready)
	}
}

func TestWaitLevelSurvivesConsumedDoorbell(t *testing.T) {
	testlog.Start(t)

	a := newFakeTarget()
	a.push()
	<-a.bell
	ready, err := Wait(context.Background(), a)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if !Ready(ready, a) {
		t.Fatalf("expected queued target to be ready without a doorbell")
	}
}

func TestWaitBlocksUntilDoorbell(t *testing.T) {
	testlog.Start(t)

	a, b := newFakeTarget(), newFakeTarget()
	go func() {
		time.Sleep(20 * time.Millisecond)
		a.push()
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ready, err := Wait(ctx, a, b)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if !Ready(ready, a) || Ready(ready, b) {
		t.Fatalf("unexpected ready set: %v", ready)
	}
}

func TestWaitSpuriousWakeIsEmpty(t *testing.T) {
	testlog.Start(t)

	a := newFakeTarget()
	a.ring()
	ready, err := Wait(context.Background(), a)
	if err != nil {
		t.Fatalf("spurious wake should not be an error: %v", err)
	}
	if len(ready) != 0 {
		t.Fatalf("expected empty ready set, got %d", len(ready))
	}
}

func TestWaitInterruptedByContext(t *testing.T) {
	testlog.Start(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Wait(ctx, newFakeTarget())
	if !errors.Is(err, ErrInterrupted) {
		t.Fatalf("expected ErrInterrupted, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cause in chain, got %v", err)
	}
}

func TestWaitClosedTarget(t *testing.T) {
	testlog.Start(t)

	a := newFakeTarget()
	close(a.closed)
	if _, err := Wait(context.Background(), a); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}

	b := newFakeTarget()
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(b.closed)
	}()
	if _, err := Wait(context.Background(), b); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after close under waiter, got %v", err)
	}

	c := newFakeTarget()
	c.queued.Store(1)
	close(c.closed)
	ready, err := Wait(context.Background(), c)
	if err != nil || !Ready(ready, c) {
		t.Fatalf("queued data on a closed target should still be ready: ready=%v err=%v", ready, err)
	}
}

func TestWaitArgumentErrors(t *testing.T) {
	testlog.Start(t)

	if _, err := Wait(context.Background()); !errors.Is(err, ErrNoTargets) {
		t.Fatalf("expected ErrNoTargets, got %v", err)
	}
	if _, err := Wait(context.Background(), nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed for nil target, got %v", err)
	}
}

func TestDoneTarget(t *testing.T) {
	testlog.Start(t)

	ch := make(chan struct{})
	done := Done(ch)
	other := newFakeTarget()
	if done.Pending() {
		t.Fatalf("open channel should not be pending")
	}
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(ch)
	}()
	ready, err := Wait(context.Background(), other, done)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if !Ready(ready, done) {
		t.Fatalf("expected done target in ready set")
	}
}
