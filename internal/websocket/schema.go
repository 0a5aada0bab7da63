// Package websocket holds the wire types of the operation progress stream.
package websocket

import "github.com/schoolhub/bulkops-backend/internal/model"

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	// EventSnapshot is the operation's state at connect time.
	EventSnapshot Event = "snapshot"
	// EventProgress follows every tracker state change.
	EventProgress Event = "progress"
	// EventDone carries the terminal state; the server closes afterwards.
	EventDone  Event = "done"
	EventError Event = "error"
)

// OperationEvent wraps an operation snapshot.
type OperationEvent struct {
	Event     Event                `json:"event"`
	Operation *model.BulkOperation `json:"operation"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}
