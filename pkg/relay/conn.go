package relay

import (
	"bufio"
	"net"
	"sync"

	"github.com/couriernet/courier/pkg/protocol"
)

// FrameConn is one live transport carrying JSON frames. The accept loop and
// TLS termination live outside this core; anything that can read and write
// whole frames can be attached to the relay.
type FrameConn interface {
	// ReadFrame blocks for the next inbound frame.
	ReadFrame() (*protocol.Frame, error)
	// WriteFrame encodes and sends an outbound message. Safe for
	// concurrent use; handler goroutines and broadcasts share transports.
	WriteFrame(v interface{}) error
	// Ping sends a liveness probe. The transport decides how: a control
	// ping for WebSocket, a ping frame for raw connections.
	Ping() error
	// Close tears down the transport.
	Close() error
	// RemoteAddr describes the peer for logging.
	RemoteAddr() string
}

// SafeConn carries newline-delimited JSON frames over a raw net.Conn with
// automatic write synchronization. Without the mutex, handler and broadcast
// goroutines would interleave frame bytes on the wire.
type SafeConn struct {
	conn   net.Conn
	reader *bufio.Reader
	mu     sync.Mutex // Protects writes to conn
}

// NewSafeConn wraps a net.Conn with framing and write synchronization.
func NewSafeConn(conn net.Conn) *SafeConn {
	return &SafeConn{
		conn:   conn,
		reader: bufio.NewReaderSize(conn, 64*1024),
	}
}

// ReadFrame reads one newline-delimited JSON frame.
func (sc *SafeConn) ReadFrame() (*protocol.Frame, error) {
	line, err := sc.reader.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	return protocol.DecodeFrame(line)
}

// WriteFrame encodes and sends a frame. This is the only way to write to
// the connection; the raw conn is private.
func (sc *SafeConn) WriteFrame(v interface{}) error {
	data, err := protocol.EncodeFrame(v)
	if err != nil {
		return err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	if _, err := sc.conn.Write(data); err != nil {
		return err
	}
	_, err = sc.conn.Write([]byte{'\n'})
	return err
}

// Ping sends a protocol-level ping frame. Raw connections answer with a
// pong frame, which counts as the sweep acknowledgment.
func (sc *SafeConn) Ping() error {
	return sc.WriteFrame(&protocol.PingMessage{Type: protocol.TypePing})
}

// Close closes the underlying connection.
func (sc *SafeConn) Close() error {
	return sc.conn.Close()
}

// RemoteAddr returns the remote network address.
func (sc *SafeConn) RemoteAddr() string {
	return sc.conn.RemoteAddr().String()
}
