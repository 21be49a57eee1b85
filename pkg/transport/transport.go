// Package transport provides the socket layer TickrShell services talk
// over: a broadcast role (one publisher binds, many subscribers connect)
// and an exchange role (synchronous request/reply). Sockets carry opaque
// byte frames; the MessageSocket wrapper adds Envelope encoding on top.
//
// There is no retry or reconnect logic here. If a connection drops, the
// caller reconnects. A socket belongs to a single logical flow of control
// and is not safe for concurrent use without external synchronization.
package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"github.com/gobwas/ws"
)

// ErrTransport reports a bind, connect, send or reply the underlying
// channel rejected.
var ErrTransport = errors.New("transport failure")

// writeWait bounds every frame write so one dead peer cannot stall a socket.
const writeWait = 5 * time.Second

// trimScheme accepts both "tcp://host:port" and plain "host:port" endpoints.
func trimScheme(addr string) string {
	return strings.TrimPrefix(addr, "tcp://")
}

func wsURL(addr string) string {
	return "ws://" + trimScheme(addr)
}

// duplex routes reads through data the dialer buffered during the
// handshake before falling through to the connection.
type duplex struct {
	r io.Reader
	net.Conn
}

func (d duplex) Read(p []byte) (int, error) { return d.r.Read(p) }

func dial(addr string) (net.Conn, error) {
	conn, br, _, err := ws.DefaultDialer.Dial(context.Background(), wsURL(addr))
	if err != nil {
		return nil, err
	}
	if br != nil {
		return duplex{r: io.MultiReader(br, conn), Conn: conn}, nil
	}
	return conn, nil
}
