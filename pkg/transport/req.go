package transport

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws/wsutil"
	"go.uber.org/zap"
)

// ReqSocket is the requester end of the exchange role. Exchanges strictly
// alternate: Send, then Recv. A second Send while a reply is outstanding is
// a protocol violation. A timed-out exchange is abandoned; its late reply,
// if one ever arrives, is discarded before the next request goes out.
type ReqSocket struct {
	logger *zap.Logger

	mu            sync.Mutex
	conn          net.Conn
	awaitingReply bool
	recvTimeout   time.Duration

	replies   chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewReqSocket(logger *zap.Logger) *ReqSocket {
	return &ReqSocket{
		logger:  logger,
		replies: make(chan []byte, 8),
		done:    make(chan struct{}),
	}
}

// Connect dials the responder at addr. The connection is reused for every
// subsequent exchange.
func (r *ReqSocket) Connect(addr string) error {
	conn, err := dial(addr)
	if err != nil {
		return fmt.Errorf("%w: connect %s: %v", ErrTransport, addr, err)
	}
	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()
	go r.readLoop(conn)
	return nil
}

func (r *ReqSocket) readLoop(conn net.Conn) {
	defer conn.Close()
	for {
		frame, err := wsutil.ReadServerBinary(conn)
		if err != nil {
			return
		}
		select {
		case r.replies <- frame:
		case <-r.done:
			return
		}
	}
}

// SetRecvTimeout bounds blocking receives. Zero blocks until the reply
// arrives or the socket closes.
func (r *ReqSocket) SetRecvTimeout(d time.Duration) {
	r.mu.Lock()
	r.recvTimeout = d
	r.mu.Unlock()
}

func (r *ReqSocket) Send(frame []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return fmt.Errorf("%w: send on unconnected socket", ErrTransport)
	}
	if r.awaitingReply {
		return fmt.Errorf("%w: request already in flight", ErrTransport)
	}
drain:
	for {
		select {
		case <-r.replies:
			r.logger.Debug("discarding stale reply")
		default:
			break drain
		}
	}
	r.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := wsutil.WriteClientBinary(r.conn, frame); err != nil {
		return fmt.Errorf("%w: send: %v", ErrTransport, err)
	}
	r.awaitingReply = true
	return nil
}

// Recv returns the reply to the in-flight request. A nil frame with nil
// error means the timeout elapsed (or nothing was queued, for non-blocking
// receives); on timeout the exchange counts as abandoned and Send may be
// called again.
func (r *ReqSocket) Recv(nonBlocking bool) ([]byte, error) {
	r.mu.Lock()
	timeout := r.recvTimeout
	r.mu.Unlock()

	var frame []byte
	switch {
	case nonBlocking:
		select {
		case frame = <-r.replies:
		default:
			return nil, nil
		}
	case timeout > 0:
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case frame = <-r.replies:
		case <-timer.C:
			r.mu.Lock()
			r.awaitingReply = false
			r.mu.Unlock()
			return nil, nil
		case <-r.done:
			return nil, fmt.Errorf("%w: socket closed", ErrTransport)
		}
	default:
		select {
		case frame = <-r.replies:
		case <-r.done:
			return nil, fmt.Errorf("%w: socket closed", ErrTransport)
		}
	}

	r.mu.Lock()
	r.awaitingReply = false
	r.mu.Unlock()
	return frame, nil
}

func (r *ReqSocket) Close() error {
	r.closeOnce.Do(func() { close(r.done) })
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
