package transport

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RepSocket is the responder end of the exchange role. Requests from all
// connected requesters are served one at a time: Recv returns the next
// request and pins its origin, Send replies to that origin. Send without a
// pending request is a protocol violation.
type RepSocket struct {
	logger *zap.Logger

	mu          sync.Mutex
	ln          net.Listener
	conns       map[string]net.Conn
	pending     net.Conn
	recvTimeout time.Duration
	closed      bool

	requests  chan incoming
	done      chan struct{}
	closeOnce sync.Once
}

type incoming struct {
	conn  net.Conn
	frame []byte
}

func NewRepSocket(logger *zap.Logger) *RepSocket {
	return &RepSocket{
		logger:   logger,
		conns:    make(map[string]net.Conn),
		requests: make(chan incoming, 64),
		done:     make(chan struct{}),
	}
}

// Bind starts listening on addr and accepting requesters.
func (r *RepSocket) Bind(addr string) error {
	ln, err := net.Listen("tcp", trimScheme(addr))
	if err != nil {
		return fmt.Errorf("%w: bind %s: %v", ErrTransport, addr, err)
	}
	r.mu.Lock()
	r.ln = ln
	r.mu.Unlock()
	go r.acceptLoop(ln)
	r.logger.Info("exchange socket bound", zap.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound address; handy when binding to port 0.
func (r *RepSocket) Addr() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ln == nil {
		return ""
	}
	return r.ln.Addr().String()
}

func (r *RepSocket) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go r.serveConn(conn)
	}
}

func (r *RepSocket) serveConn(conn net.Conn) {
	if _, err := ws.Upgrade(conn); err != nil {
		r.logger.Warn("requester handshake failed", zap.Error(err))
		conn.Close()
		return
	}
	id := uuid.NewString()
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		conn.Close()
		return
	}
	r.conns[id] = conn
	r.mu.Unlock()
	r.logger.Debug("requester connected",
		zap.String("conn_id", id),
		zap.String("remote", conn.RemoteAddr().String()))

	defer func() {
		r.mu.Lock()
		delete(r.conns, id)
		r.mu.Unlock()
		conn.Close()
	}()
	for {
		frame, err := wsutil.ReadClientBinary(conn)
		if err != nil {
			return
		}
		select {
		case r.requests <- incoming{conn: conn, frame: frame}:
		case <-r.done:
			return
		}
	}
}

// SetRecvTimeout bounds blocking receives. Zero blocks until a request
// arrives or the socket closes.
func (r *RepSocket) SetRecvTimeout(d time.Duration) {
	r.mu.Lock()
	r.recvTimeout = d
	r.mu.Unlock()
}

// Recv returns the next request frame, or nil when none arrives in time.
// Receiving again before replying abandons the previous requester.
func (r *RepSocket) Recv(nonBlocking bool) ([]byte, error) {
	r.mu.Lock()
	timeout := r.recvTimeout
	r.mu.Unlock()

	var in incoming
	switch {
	case nonBlocking:
		select {
		case in = <-r.requests:
		default:
			return nil, nil
		}
	case timeout > 0:
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case in = <-r.requests:
		case <-timer.C:
			return nil, nil
		case <-r.done:
			return nil, fmt.Errorf("%w: socket closed", ErrTransport)
		}
	default:
		select {
		case in = <-r.requests:
		case <-r.done:
			return nil, fmt.Errorf("%w: socket closed", ErrTransport)
		}
	}

	r.mu.Lock()
	r.pending = in.conn
	r.mu.Unlock()
	return in.frame, nil
}

// Send replies to the requester whose request the last Recv returned.
func (r *RepSocket) Send(frame []byte) error {
	r.mu.Lock()
	conn := r.pending
	r.pending = nil
	r.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("%w: no request awaiting reply", ErrTransport)
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := wsutil.WriteServerBinary(conn, frame); err != nil {
		return fmt.Errorf("%w: reply: %v", ErrTransport, err)
	}
	return nil
}

func (r *RepSocket) Close() error {
	r.closeOnce.Do(func() { close(r.done) })
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	for id, conn := range r.conns {
		conn.Close()
		delete(r.conns, id)
	}
	if r.ln != nil {
		return r.ln.Close()
	}
	return nil
}
