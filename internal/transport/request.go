package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/danmuck/linkollector/internal/protocol/frame"
)

// Request is the sending side of a request/reply pair. Send and TryRecv
// alternate strictly and belong to a single goroutine.
type Request struct {
	cfg    Config
	logger zerolog.Logger
	conn   net.Conn

	nextID   uint64
	awaiting bool

	replies chan frame.Frame
	bell    chan struct{}

	mu      sync.Mutex
	readErr error

	wg        sync.WaitGroup
	closed    chan struct{}
	closeOnce sync.Once
}

// Dial connects to endpoint.
func Dial(ctx context.Context, endpoint string, cfg Config) (*Request, error) {
	addr, err := ParseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	cfg = cfg.WithDefaults()
	d := net.Dialer{Timeout: cfg.ConnectTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: connect %s: %w", endpoint, err)
	}
	r := &Request{
		cfg:     cfg,
		logger:  cfg.Logger.With().Str("endpoint", endpoint).Logger(),
		conn:    conn,
		replies: make(chan frame.Frame, 1),
		bell:    make(chan struct{}, 1),
		closed:  make(chan struct{}),
	}
	r.wg.Add(1)
	go r.readLoop()
	r.logger.Debug().Str("local", conn.LocalAddr().String()).Msg("transport.Request connected")
	return r, nil
}

// Send writes one request. It fails with ErrState while a reply is owed.
func (r *Request) Send(payload []byte) error {
	if r.isClosed() {
		return ErrClosed
	}
	if r.awaiting {
		return fmt.Errorf("%w: awaiting reply to request %d", ErrState, r.nextID)
	}
	if err := r.failure(); err != nil {
		return err
	}
	r.nextID++
	_ = r.conn.SetWriteDeadline(time.Now().Add(r.cfg.WriteTimeout))
	if err := frame.WriteFrame(r.conn, frame.Request(r.nextID, payload), r.cfg.Limits); err != nil {
		return fmt.Errorf("transport: send request: %w", err)
	}
	r.awaiting = true
	if r.cfg.ReadTimeout > 0 {
		_ = r.conn.SetReadDeadline(time.Now().Add(r.cfg.ReadTimeout))
	}
	return nil
}

// TryRecv returns the reply to the last request without blocking.
func (r *Request) TryRecv() ([]byte, error) {
	if !r.awaiting {
		return nil, fmt.Errorf("%w: no request outstanding", ErrState)
	}
	select {
	case f := <-r.replies:
		if f.Header.MessageID != r.nextID {
			return nil, fmt.Errorf("%w: reply id %d for request %d", ErrUnexpectedFrame, f.Header.MessageID, r.nextID)
		}
		r.awaiting = false
		return f.Payload, nil
	default:
	}
	if err := r.failure(); err != nil {
		return nil, err
	}
	if r.isClosed() {
		return nil, ErrClosed
	}
	return nil, ErrWouldBlock
}

// Pending is true when a reply or a read failure is ready to be reported.
func (r *Request) Pending() bool {
	return len(r.replies) > 0 || r.failure() != nil
}

func (r *Request) Notify() <-chan struct{} { return r.bell }

func (r *Request) Closed() <-chan struct{} { return r.closed }

// Close closes the connection and waits for the reader. Close is
// idempotent.
func (r *Request) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.closed)
		err = r.conn.Close()
		r.wg.Wait()
	})
	return err
}

func (r *Request) readLoop() {
	defer r.wg.Done()
	for {
		f, err := frame.ReadFrame(r.conn, r.cfg.Limits)
		if err != nil {
			if r.isClosed() {
				return
			}
			if errors.Is(err, io.EOF) {
				err = ErrPeerGone
			}
			r.fail(fmt.Errorf("transport: read reply: %w", err))
			return
		}
		if f.Header.Kind != frame.KindReply {
			r.fail(fmt.Errorf("%w: kind %d", ErrUnexpectedFrame, f.Header.Kind))
			return
		}
		select {
		case r.replies <- f:
			r.ring()
		case <-r.closed:
			return
		}
	}
}

func (r *Request) fail(err error) {
	r.mu.Lock()
	if r.readErr == nil {
		r.readErr = err
	}
	r.mu.Unlock()
	r.ring()
}

func (r *Request) failure() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readErr
}

func (r *Request) ring() {
	select {
	case r.bell <- struct{}{}:
	default:
	}
}

func (r *Request) isClosed() bool {
	select {
	case <-r.closed:
		return true
	default:
		return false
	}
}
