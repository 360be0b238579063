package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	readWait  = 5 * time.Minute
)

// WriteTyped sends a strongly-typed payload over the WebSocket.
func WriteTyped(conn *websocket.Conn, v any) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

// WriteJSON sends an event with its data, echoing the client's request ID.
func WriteJSON(conn *websocket.Conn, event Event, requestID string, data any) error {
	return WriteTyped(conn, ResponsePayload{Event: event, RequestID: requestID, Data: data})
}

// WriteError sends an ErrorResponse over the WebSocket.
func WriteError(conn *websocket.Conn, requestID, code, errMsg string) error {
	return WriteTyped(conn, ErrorResponse{
		Event:     EventError,
		RequestID: requestID,
		Code:      code,
		Error:     errMsg,
	})
}

// ReadJSON reads and decodes the next message. A client silent for longer
// than readWait is treated as gone.
func ReadJSON(conn *websocket.Conn, v any) error {
	conn.SetReadDeadline(time.Now().Add(readWait))
	return conn.ReadJSON(v)
}
