package control

import (
	"context"
	"sync"
)

// Endpoint is one side of a pair. Sends on one side are received on the
// other. An Endpoint may be used by one goroutine while another sends to its
// peer.
type Endpoint struct {
	p     *pair
	bound bool

	in     <-chan []byte
	out    chan<- []byte
	bell   chan struct{}
	remote chan struct{}

	closed    chan struct{}
	closeOnce sync.Once
}

func newEndpoint(p *pair, bound bool) *Endpoint {
	e := &Endpoint{p: p, bound: bound, closed: make(chan struct{})}
	if bound {
		e.in, e.out = p.toBound, p.toPeer
		e.bell, e.remote = p.boundBell, p.peerBell
	} else {
		e.in, e.out = p.toPeer, p.toBound
		e.bell, e.remote = p.peerBell, p.boundBell
	}
	return e
}

func (e *Endpoint) Name() string { return e.p.name }

// Send queues msg for the peer, blocking while the peer's queue is full.
func (e *Endpoint) Send(ctx context.Context, msg []byte) error {
	if e.isClosed() {
		return ErrClosed
	}
	select {
	case e.out <- msg:
		ring(e.remote)
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-e.closed:
		return ErrClosed
	case <-e.p.done:
		return ErrClosed
	}
}

// TrySend queues msg without blocking. It allocates nothing and is safe to
// call from the interrupt dispatcher.
func (e *Endpoint) TrySend(msg []byte) error {
	if e.isClosed() {
		return ErrClosed
	}
	select {
	case e.out <- msg:
		ring(e.remote)
		return nil
	default:
		return ErrWouldBlock
	}
}

// Recv blocks until a message arrives, ctx is done, or the endpoint closes.
func (e *Endpoint) Recv(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-e.in:
		return msg, nil
	default:
	}
	select {
	case msg := <-e.in:
		return msg, nil
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	case <-e.closed:
		return nil, ErrClosed
	case <-e.p.done:
		return e.TryRecv()
	}
}

// TryRecv returns a queued message or ErrWouldBlock. Messages queued before
// the peer closed are still delivered.
func (e *Endpoint) TryRecv() ([]byte, error) {
	select {
	case msg := <-e.in:
		return msg, nil
	default:
	}
	if e.isClosed() {
		return nil, ErrClosed
	}
	return nil, ErrWouldBlock
}

func (e *Endpoint) Pending() bool { return len(e.in) > 0 }

func (e *Endpoint) Notify() <-chan struct{} { return e.bell }

// Closed is closed once this endpoint is closed.
func (e *Endpoint) Closed() <-chan struct{} { return e.closed }

// Close releases the endpoint. Closing the bound side removes the name from
// the fabric. Close is idempotent.
func (e *Endpoint) Close() error {
	e.closeOnce.Do(func() {
		close(e.closed)
		if e.bound {
			e.p.close()
			e.p.fabric.unbind(e.p)
			return
		}
		e.p.fabric.disconnect(e.p)
		ring(e.remote)
	})
	return nil
}

func (e *Endpoint) isClosed() bool {
	select {
	case <-e.closed:
		return true
	case <-e.p.done:
		return true
	default:
		return false
	}
}
