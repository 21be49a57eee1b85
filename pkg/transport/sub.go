package transport

import (
	"bytes"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws/wsutil"
	"go.uber.org/zap"
)

const subBuffer = 256

// SubSocket is the connector end of the broadcast role. Frames arrive on a
// background reader; Recv pulls them off a bounded buffer.
type SubSocket struct {
	logger *zap.Logger

	mu          sync.Mutex
	conn        net.Conn
	filter      []byte
	recvTimeout time.Duration

	recvCh    chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewSubSocket(logger *zap.Logger) *SubSocket {
	return &SubSocket{
		logger: logger,
		recvCh: make(chan []byte, subBuffer),
		done:   make(chan struct{}),
	}
}

// Connect dials the publisher at addr and starts receiving.
func (s *SubSocket) Connect(addr string) error {
	conn, err := dial(addr)
	if err != nil {
		return fmt.Errorf("%w: connect %s: %v", ErrTransport, addr, err)
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	go s.readLoop(conn)
	return nil
}

// SetFilter installs a topic filter: only frames whose serialized form
// starts with prefix are delivered. The empty prefix receives everything.
func (s *SubSocket) SetFilter(prefix string) {
	s.mu.Lock()
	s.filter = []byte(prefix)
	s.mu.Unlock()
}

// SetRecvTimeout bounds blocking receives. Zero blocks until a frame
// arrives or the socket closes.
func (s *SubSocket) SetRecvTimeout(d time.Duration) {
	s.mu.Lock()
	s.recvTimeout = d
	s.mu.Unlock()
}

func (s *SubSocket) readLoop(conn net.Conn) {
	defer conn.Close()
	for {
		frame, err := wsutil.ReadServerBinary(conn)
		if err != nil {
			select {
			case <-s.done:
			default:
				s.logger.Debug("subscriber stream ended", zap.Error(err))
			}
			return
		}
		s.mu.Lock()
		filter := s.filter
		s.mu.Unlock()
		if len(filter) > 0 && !bytes.HasPrefix(frame, filter) {
			continue
		}
		select {
		case s.recvCh <- frame:
		default:
			// At-most-once delivery: a slow consumer loses frames.
			s.logger.Warn("receive buffer full, dropping frame")
		}
	}
}

// Recv returns the next delivered frame. A nil frame with nil error means
// none was available: immediately for non-blocking receives, after the
// receive timeout otherwise.
func (s *SubSocket) Recv(nonBlocking bool) ([]byte, error) {
	if nonBlocking {
		select {
		case frame := <-s.recvCh:
			return frame, nil
		default:
			return nil, nil
		}
	}
	s.mu.Lock()
	timeout := s.recvTimeout
	s.mu.Unlock()
	if timeout <= 0 {
		select {
		case frame := <-s.recvCh:
			return frame, nil
		case <-s.done:
			return nil, fmt.Errorf("%w: socket closed", ErrTransport)
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case frame := <-s.recvCh:
		return frame, nil
	case <-timer.C:
		return nil, nil
	case <-s.done:
		return nil, fmt.Errorf("%w: socket closed", ErrTransport)
	}
}

// Send is not supported on the subscriber end of a broadcast socket.
func (s *SubSocket) Send([]byte) error {
	return fmt.Errorf("%w: sub socket cannot send", ErrTransport)
}

func (s *SubSocket) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
