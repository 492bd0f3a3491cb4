package push

import (
	"io"
	"sync"

	"github.com/gorilla/websocket"
)

// wsConn adapts a gorilla websocket connection to the io.ReadWriteCloser
// the STOMP client expects. Reads drain one websocket message at a time,
// keeping the remainder for the next call.
type wsConn struct {
	ws *websocket.Conn

	readMu sync.Mutex
	reader io.Reader

	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{ws: ws}
}

func (c *wsConn) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	for {
		if c.reader == nil {
			_, reason, err := c.ws.NextReader()
			if err != nil {
				return 0, err
			}
			c.reader = reason
		}

		n, err := c.reader.Read(p)
		if err == io.EOF {
			// Message drained; continue with the next frame unless we
			// already have bytes to hand back.
			c.reader = nil
			if n > 0 {
				return n, nil
			}

			continue
		}

		return n, err
	}
}

func (c *wsConn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}

	return len(p), nil
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		// Best effort close frame before tearing the transport down.
		_ = c.ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.closeErr = c.ws.Close()
	})

	return c.closeErr
}
