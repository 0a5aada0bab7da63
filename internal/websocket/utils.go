package websocket

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/schoolhub/bulkops-backend/internal/model"
)

const (
	writeWait  = 10 * time.Second
	PongWait   = 60 * time.Second
	PingPeriod = (PongWait * 9) / 10
)

// WriteTyped sends a strongly-typed response payload over the WebSocket.
func WriteTyped(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

// WriteOperation sends op, as EventDone once it is terminal.
func WriteOperation(conn *websocket.Conn, event Event, op *model.BulkOperation) error {
	if op.Status.Terminal() {
		event = EventDone
	}
	return WriteTyped(conn, OperationEvent{Event: event, Operation: op})
}

// WriteError sends a typed ErrorResponse over the WebSocket.
func WriteError(conn *websocket.Conn, errMsg string) error {
	return WriteTyped(conn, ErrorResponse{
		Event: EventError,
		Error: errMsg,
	})
}

// WritePing sends a ping control frame.
func WritePing(conn *websocket.Conn) error {
	return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// Close sends a normal closure frame before the connection is dropped.
func Close(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

// DrainReads discards client frames so pong and close control frames get
// processed, and closes the returned channel when the peer goes away.
func DrainReads(conn *websocket.Conn) <-chan struct{} {
	gone := make(chan struct{})
	conn.SetReadDeadline(time.Now().Add(PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(PongWait))
	})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()
	return gone
}
