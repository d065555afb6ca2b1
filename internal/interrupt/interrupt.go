// Package interrupt routes process interruptions (SIGINT, SIGTERM) to a
// single registered callback.
//
// Exactly one (data, callback) pair can be installed at a time. The signal
// dispatcher is armed on first Install and stays armed for the life of the
// process, so interruptions that arrive with nothing installed are dropped
// instead of terminating the process.
package interrupt

import (
	"errors"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

var (
	ErrAlreadyInstalled = errors.New("interrupt: a registration is already installed")
	ErrNilCallback      = errors.New("interrupt: nil callback")
)

// Callback runs on the dispatcher goroutine. It must not block; a
// non-blocking enqueue is the intended body.
type Callback func(data any)

type binding struct {
	data     any
	onSignal Callback
}

var (
	current  atomic.Pointer[binding]
	armOnce  sync.Once
	received atomic.Uint64
	dropped  atomic.Uint64
)

// Registration is the handle to an installed pair.
type Registration struct {
	b    *binding
	once sync.Once
}

// Install stores data and onSignal as the process-wide interruption target.
func Install(data any, onSignal Callback) (*Registration, error) {
	if onSignal == nil {
		return nil, ErrNilCallback
	}
	b := &binding{data: data, onSignal: onSignal}
	if !current.CompareAndSwap(nil, b) {
		return nil, ErrAlreadyInstalled
	}
	arm()
	return &Registration{b: b}, nil
}

// Close clears the pair. Later interruptions are dropped. Close is
// idempotent and never fails.
func (r *Registration) Close() error {
	if r == nil {
		return nil
	}
	r.once.Do(func() {
		current.CompareAndSwap(r.b, nil)
	})
	return nil
}

// Installed reports whether a registration is live.
func Installed() bool {
	return current.Load() != nil
}

// Deliver runs the installed callback as though sig had been delivered by
// the operating system. It reports whether a callback ran.
func Deliver(sig os.Signal) bool {
	received.Add(1)
	b := current.Load()
	if b == nil {
		dropped.Add(1)
		log.Debug().Stringer("signal", sig).Msg("interrupt.Deliver dropped, nothing installed")
		return false
	}
	b.onSignal(b.data)
	return true
}

// Stats returns the number of interruptions seen and how many of them were
// dropped for lack of a registration.
func Stats() (seen, lost uint64) {
	return received.Load(), dropped.Load()
}

func arm() {
	armOnce.Do(func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, Signals...)
		go dispatch(ch)
	})
}

func dispatch(ch <-chan os.Signal) {
	for sig := range ch {
		Deliver(sig)
	}
}
