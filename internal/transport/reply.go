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

type inbound struct {
	id      uint64
	payload []byte
	peer    *peerConn
}

type peerConn struct {
	conn    net.Conn
	replied chan struct{}
}

// Reply is the receiving side of a request/reply pair. Every request taken
// with TryRecv must be answered with Send before the next TryRecv.
//
// TryRecv and Send belong to a single goroutine. Close may be called from
// any goroutine.
type Reply struct {
	cfg      Config
	logger   zerolog.Logger
	listener net.Listener

	queue chan inbound
	bell  chan struct{}

	owed *inbound

	mu    sync.Mutex
	conns map[net.Conn]struct{}

	wg        sync.WaitGroup
	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// Bind listens on endpoint and starts accepting connections.
func Bind(ctx context.Context, endpoint string, cfg Config) (*Reply, error) {
	addr, err := ParseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	cfg = cfg.WithDefaults()
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: bind %s: %w", endpoint, err)
	}
	r := &Reply{
		cfg:      cfg,
		logger:   cfg.Logger.With().Str("endpoint", endpoint).Logger(),
		listener: ln,
		queue:    make(chan inbound, cfg.QueueDepth),
		bell:     make(chan struct{}, 1),
		conns:    make(map[net.Conn]struct{}),
		closed:   make(chan struct{}),
	}
	r.wg.Add(1)
	go r.acceptLoop()
	r.logger.Debug().Str("addr", ln.Addr().String()).Msg("transport.Reply bound")
	return r, nil
}

// Addr returns the bound listener address.
func (r *Reply) Addr() net.Addr { return r.listener.Addr() }

// TryRecv takes the next queued request without blocking.
func (r *Reply) TryRecv() ([]byte, error) {
	if r.owed != nil {
		return nil, fmt.Errorf("%w: reply owed for request %d", ErrState, r.owed.id)
	}
	select {
	case in := <-r.queue:
		r.owed = &in
		if len(r.queue) > 0 {
			r.ring()
		}
		return in.payload, nil
	default:
	}
	if r.isClosed() {
		return nil, ErrClosed
	}
	return nil, ErrWouldBlock
}

// Send writes the reply for the request taken by the last TryRecv. A peer
// that disconnected before its reply is written loses the reply; that is not
// an error for the socket.
func (r *Reply) Send(payload []byte) error {
	if r.owed == nil {
		return fmt.Errorf("%w: no request to reply to", ErrState)
	}
	if r.isClosed() {
		return ErrClosed
	}
	in := r.owed
	r.owed = nil
	defer func() {
		select {
		case in.peer.replied <- struct{}{}:
		default:
		}
	}()

	if uint32(len(payload)) > r.cfg.Limits.MaxPayloadBytes {
		return fmt.Errorf("transport: reply: %w", frame.ErrPayloadTooLarge)
	}
	_ = in.peer.conn.SetWriteDeadline(time.Now().Add(r.cfg.WriteTimeout))
	if err := frame.WriteFrame(in.peer.conn, frame.Reply(in.id, payload), r.cfg.Limits); err != nil {
		r.logger.Warn().
			Err(err).
			Str("remote", in.peer.conn.RemoteAddr().String()).
			Uint64("message_id", in.id).
			Msg("transport.Reply dropped reply to departed peer")
		_ = in.peer.conn.Close()
	}
	return nil
}

func (r *Reply) Pending() bool { return len(r.queue) > 0 }

func (r *Reply) Notify() <-chan struct{} { return r.bell }

func (r *Reply) Closed() <-chan struct{} { return r.closed }

// Close stops accepting, closes every connection and waits for the
// connection goroutines to exit. Close is idempotent.
func (r *Reply) Close() error {
	r.closeOnce.Do(func() {
		close(r.closed)
		if err := r.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			r.closeErr = err
		}
		r.mu.Lock()
		for c := range r.conns {
			_ = c.Close()
		}
		r.mu.Unlock()
		r.wg.Wait()
		r.logger.Debug().Msg("transport.Reply closed")
	})
	return r.closeErr
}

func (r *Reply) acceptLoop() {
	defer r.wg.Done()
	for {
		conn, err := r.listener.Accept()
		if err != nil {
			if r.isClosed() || errors.Is(err, net.ErrClosed) {
				return
			}
			r.logger.Warn().Err(err).Msg("transport.Reply accept failed")
			continue
		}
		if !r.track(conn) {
			_ = conn.Close()
			return
		}
		r.wg.Add(1)
		go r.serve(conn)
	}
}

func (r *Reply) track(conn net.Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.isClosed() {
		return false
	}
	r.conns[conn] = struct{}{}
	return true
}

func (r *Reply) untrack(conn net.Conn) {
	r.mu.Lock()
	delete(r.conns, conn)
	r.mu.Unlock()
	_ = conn.Close()
}

// serve reads one request at a time from conn and does not read the next
// until the current one has been answered.
func (r *Reply) serve(conn net.Conn) {
	defer r.wg.Done()
	defer r.untrack(conn)

	remote := conn.RemoteAddr().String()
	peer := &peerConn{conn: conn, replied: make(chan struct{}, 1)}
	for {
		f, err := frame.ReadFrame(conn, r.cfg.Limits)
		if err != nil {
			if errors.Is(err, io.EOF) || r.isClosed() {
				r.logger.Debug().Str("remote", remote).Msg("transport.Reply peer closed")
			} else {
				r.logger.Warn().Err(err).Str("remote", remote).Msg("transport.Reply read failed")
			}
			return
		}
		if f.Header.Kind != frame.KindRequest {
			r.logger.Warn().
				Err(ErrUnexpectedFrame).
				Uint16("kind", f.Header.Kind).
				Str("remote", remote).
				Msg("transport.Reply dropping peer")
			return
		}
		select {
		case r.queue <- inbound{id: f.Header.MessageID, payload: f.Payload, peer: peer}:
			r.ring()
		case <-r.closed:
			return
		}
		select {
		case <-peer.replied:
		case <-r.closed:
			return
		}
	}
}

func (r *Reply) ring() {
	select {
	case r.bell <- struct{}{}:
	default:
	}
}

func (r *Reply) isClosed() bool {
	select {
	case <-r.closed:
		return true
	default:
		return false
	}
}
