package transport

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Phil1999/TickrShell-Common/pkg/protocol"
)

// FrameSocket is the byte-frame surface shared by all four socket roles.
type FrameSocket interface {
	Send(frame []byte) error
	Recv(nonBlocking bool) ([]byte, error)
}

// MessageSocket sends and receives protocol envelopes over a frame socket.
// Inbound frames that fail to decode are logged and swallowed: the caller
// sees "no message available", never a fatal decode error.
type MessageSocket struct {
	sock   FrameSocket
	logger *zap.Logger
}

func NewMessageSocket(sock FrameSocket, logger *zap.Logger) *MessageSocket {
	return &MessageSocket{sock: sock, logger: logger}
}

func (m *MessageSocket) Send(e protocol.Envelope) error {
	frame, err := protocol.Marshal(e)
	if err != nil {
		return fmt.Errorf("%w: marshal envelope: %v", ErrTransport, err)
	}
	return m.sock.Send(frame)
}

// Receive returns the next envelope, or nil when no frame was available or
// the frame did not decode.
func (m *MessageSocket) Receive(nonBlocking bool) (*protocol.Envelope, error) {
	frame, err := m.sock.Recv(nonBlocking)
	if err != nil || frame == nil {
		return nil, err
	}
	e, err := protocol.Unmarshal(frame)
	if err != nil {
		m.logger.Warn("dropping malformed envelope", zap.Error(err))
		return nil, nil
	}
	return &e, nil
}
