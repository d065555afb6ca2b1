// Package poll waits on several readable targets at once.
//
// A target is level triggered through Pending and edge triggered through its
// Notify doorbell. Wait checks the level first, so a doorbell that was
// consumed by an earlier Wait never hides queued data.
package poll

import (
	"context"
	"errors"
	"fmt"
	"reflect"
)

var (
	ErrInterrupted = errors.New("poll: wait interrupted")
	ErrClosed      = errors.New("poll: target closed")
	ErrNoTargets   = errors.New("poll: no targets")
	ErrWouldBlock  = errors.New("poll: operation would block")
)

// Target is anything Wait can watch.
type Target interface {
	// Pending reports whether a receive would succeed without blocking.
	Pending() bool
	// Notify returns a doorbell rung after data is queued. It has capacity
	// one, so a ring can stand for any number of queued items.
	Notify() <-chan struct{}
}

// Closer is implemented by targets that can be closed under a waiter.
type Closer interface {
	Closed() <-chan struct{}
}

// Wait returns the targets that are ready to receive. When none is pending it
// blocks until a doorbell rings, a target closes, or ctx is done. The
// returned set may be empty after a wake; callers loop.
func Wait(ctx context.Context, targets ...Target) ([]Target, error) {
	if len(targets) == 0 {
		return nil, ErrNoTargets
	}
	for _, t := range targets {
		if t == nil {
			return nil, fmt.Errorf("%w: nil target", ErrClosed)
		}
	}
	if ready := pending(targets); len(ready) > 0 {
		return ready, nil
	}
	for _, t := range targets {
		if isClosed(t) {
			return nil, ErrClosed
		}
	}

	cases := make([]reflect.SelectCase, 0, 1+2*len(targets))
	cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())})
	bells := len(targets)
	for _, t := range targets {
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(t.Notify())})
	}
	for _, t := range targets {
		if c, ok := t.(Closer); ok {
			cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(c.Closed())})
		}
	}

	chosen, _, _ := reflect.Select(cases)
	switch {
	case chosen == 0:
		return nil, fmt.Errorf("%w: %w", ErrInterrupted, context.Cause(ctx))
	case chosen > bells:
		return nil, ErrClosed
	}
	return pending(targets), nil
}

// Ready reports whether t is in the set returned by Wait.
func Ready(ready []Target, t Target) bool {
	for _, r := range ready {
		if r == t {
			return true
		}
	}
	return false
}

// Done adapts a channel that is closed once into a Target that becomes
// pending when the channel closes.
func Done(ch <-chan struct{}) Target {
	return doneTarget{ch: ch}
}

type doneTarget struct {
	ch <-chan struct{}
}

func (d doneTarget) Pending() bool {
	select {
	case <-d.ch:
		return true
	default:
		return false
	}
}

func (d doneTarget) Notify() <-chan struct{} { return d.ch }

func pending(targets []Target) []Target {
	var ready []Target
	for _, t := range targets {
		if t.Pending() {
			ready = append(ready, t)
		}
	}
	return ready
}

func isClosed(t Target) bool {
	c, ok := t.(Closer)
	if !ok {
		return false
	}
	select {
	case <-c.Closed():
		return true
	default:
		return false
	}
}
