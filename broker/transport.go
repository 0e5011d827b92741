package broker

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is a bidirectional frame stream to a single device. The broker
// is transport-agnostic beyond this surface; production connections are
// websockets, tests substitute in-memory fakes.
type Transport interface {
	// ReadMessage blocks for at most timeout. It returns ErrReadTimeout when
	// the deadline expires with no frame and ErrConnectionGone once the
	// stream closed.
	ReadMessage(timeout time.Duration) (isBinary bool, data []byte, err error)

	// WriteMessage sends one frame. Safe for concurrent use.
	WriteMessage(isBinary bool, data []byte) error

	// Close performs the close handshake and tears the stream down.
	Close() error

	IsOpen() bool
	RemoteAddr() string
}

// wsTransport adapts a websocket connection to the Transport interface.
type wsTransport struct {
	conn         *websocket.Conn
	closeTimeout time.Duration

	writeMu sync.Mutex
	open    atomic.Bool
}

func newWSTransport(conn *websocket.Conn, closeTimeout time.Duration) *wsTransport {
	t := &wsTransport{conn: conn, closeTimeout: closeTimeout}
	t.open.Store(true)
	return t
}

func (t *wsTransport) ReadMessage(timeout time.Duration) (bool, []byte, error) {
	if err := t.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.open.Store(false)
		return false, nil, ErrConnectionGone
	}
	messageType, data, err := t.conn.ReadMessage()
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return false, nil, ErrReadTimeout
		}
		t.open.Store(false)
		return false, nil, ErrConnectionGone
	}
	return messageType == websocket.BinaryMessage, data, nil
}

func (t *wsTransport) WriteMessage(isBinary bool, data []byte) error {
	messageType := websocket.TextMessage
	if isBinary {
		messageType = websocket.BinaryMessage
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := t.conn.WriteMessage(messageType, data); err != nil {
		t.open.Store(false)
		return ErrConnectionGone
	}
	return nil
}

func (t *wsTransport) Close() error {
	if !t.open.Swap(false) {
		return nil
	}

	t.writeMu.Lock()
	// best effort close handshake, bounded by the close timeout
	deadline := time.Now().Add(t.closeTimeout)
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	t.writeMu.Unlock()

	return t.conn.Close()
}

func (t *wsTransport) IsOpen() bool {
	return t.open.Load()
}

func (t *wsTransport) RemoteAddr() string {
	if addr := t.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return "unknown"
}
