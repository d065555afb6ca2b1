// Package control provides named in-process endpoints used to pass control
// signals and forwarded messages between goroutines.
package control

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/danmuck/linkollector/internal/poll"
)

const (
	SignalEndpoint         = "inproc://signal"
	WorkerShutdownEndpoint = "inproc://worker_shutdown"
	WorkerResponseEndpoint = "inproc://worker_response"
)

const scheme = "inproc://"

var (
	ErrAddressInUse     = errors.New("control: address in use")
	ErrNotBound         = errors.New("control: endpoint not bound")
	ErrAlreadyConnected = errors.New("control: endpoint already connected")
	ErrInvalidEndpoint  = errors.New("control: invalid endpoint name")
	ErrClosed           = errors.New("control: endpoint closed")
	ErrWouldBlock       = poll.ErrWouldBlock
)

// Fabric is a registry of named rendezvous points. Each name pairs exactly
// one bound endpoint with at most one connected endpoint.
type Fabric struct {
	mu    sync.Mutex
	pairs map[string]*pair
}

func NewFabric() *Fabric {
	return &Fabric{pairs: make(map[string]*pair)}
}

// Bind creates the rendezvous for name. capacity bounds the messages queued
// in each direction; values below one mean one.
func (f *Fabric) Bind(name string, capacity int) (*Endpoint, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	if capacity < 1 {
		capacity = 1
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.pairs[name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrAddressInUse, name)
	}
	p := &pair{
		name:      name,
		fabric:    f,
		toBound:   make(chan []byte, capacity),
		toPeer:    make(chan []byte, capacity),
		boundBell: make(chan struct{}, 1),
		peerBell:  make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	f.pairs[name] = p
	return newEndpoint(p, true), nil
}

// Connect attaches to an endpoint bound under name.
func (f *Fabric) Connect(name string) (*Endpoint, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pairs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotBound, name)
	}
	if p.connected {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyConnected, name)
	}
	p.connected = true
	return newEndpoint(p, false), nil
}

// Bound reports whether name currently has a bound endpoint.
func (f *Fabric) Bound(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.pairs[name]
	return ok
}

func (f *Fabric) unbind(p *pair) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pairs[p.name] == p {
		delete(f.pairs, p.name)
	}
}

func (f *Fabric) disconnect(p *pair) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.connected = false
}

func validName(name string) error {
	if !strings.HasPrefix(name, scheme) || len(name) == len(scheme) {
		return fmt.Errorf("%w: %q", ErrInvalidEndpoint, name)
	}
	return nil
}

type pair struct {
	name      string
	fabric    *Fabric
	toBound   chan []byte
	toPeer    chan []byte
	boundBell chan struct{}
	peerBell  chan struct{}
	done      chan struct{}
	doneOnce  sync.Once
	connected bool
}

func (p *pair) close() {
	p.doneOnce.Do(func() {
		close(p.done)
		ring(p.peerBell)
	})
}

func ring(bell chan struct{}) {
	select {
	case bell <- struct{}{}:
	default:
	}
}
