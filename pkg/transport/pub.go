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

// PubSocket is the binder end of the broadcast role: every sent frame fans
// out to all currently connected subscribers. Delivery is at-most-once and
// there is no backlog; a subscriber that connects later never sees earlier
// frames.
type PubSocket struct {
	logger *zap.Logger

	mu     sync.Mutex
	ln     net.Listener
	conns  map[string]net.Conn
	closed bool
}

func NewPubSocket(logger *zap.Logger) *PubSocket {
	return &PubSocket{logger: logger, conns: make(map[string]net.Conn)}
}

// Bind starts listening on addr and accepting subscribers.
func (p *PubSocket) Bind(addr string) error {
	ln, err := net.Listen("tcp", trimScheme(addr))
	if err != nil {
		return fmt.Errorf("%w: bind %s: %v", ErrTransport, addr, err)
	}
	p.mu.Lock()
	p.ln = ln
	p.mu.Unlock()
	go p.acceptLoop(ln)
	p.logger.Info("broadcast socket bound", zap.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound address; handy when binding to port 0.
func (p *PubSocket) Addr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ln == nil {
		return ""
	}
	return p.ln.Addr().String()
}

func (p *PubSocket) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go p.register(conn)
	}
}

func (p *PubSocket) register(conn net.Conn) {
	if _, err := ws.Upgrade(conn); err != nil {
		p.logger.Warn("subscriber handshake failed", zap.Error(err))
		conn.Close()
		return
	}
	id := uuid.NewString()
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		conn.Close()
		return
	}
	p.conns[id] = conn
	p.mu.Unlock()
	p.logger.Debug("subscriber connected",
		zap.String("conn_id", id),
		zap.String("remote", conn.RemoteAddr().String()))
}

// Subscribers reports how many subscribers are currently connected.
func (p *PubSocket) Subscribers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

// Send fans one frame out to every connected subscriber. A subscriber whose
// write fails is dropped, not retried. Sending with zero subscribers is not
// an error.
func (p *PubSocket) Send(frame []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ln == nil {
		return fmt.Errorf("%w: send on unbound socket", ErrTransport)
	}
	for id, conn := range p.conns {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := wsutil.WriteServerBinary(conn, frame); err != nil {
			p.logger.Warn("dropping subscriber", zap.String("conn_id", id), zap.Error(err))
			conn.Close()
			delete(p.conns, id)
		}
	}
	return nil
}

// Recv is not supported on the publisher end of a broadcast socket.
func (p *PubSocket) Recv(bool) ([]byte, error) {
	return nil, fmt.Errorf("%w: pub socket cannot receive", ErrTransport)
}

func (p *PubSocket) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	for id, conn := range p.conns {
		conn.Close()
		delete(p.conns, id)
	}
	if p.ln != nil {
		return p.ln.Close()
	}
	return nil
}
