// Package dialog implements the call orchestration core: per-call session
// state, skill runnables, the tool execution layer, routing policy and the
// turn state machine built on eino's compose graph.
package dialog

import "github.com/cloudwego/eino/schema"

// EventKind identifies a turn stream event.
type EventKind string

const (
	// EventStreamChunk carries an incremental text fragment from the model.
	EventStreamChunk EventKind = "stream.chunk"
	// EventModelEnd marks the end of one model invocation.
	EventModelEnd EventKind = "model.end"
	// EventToolEnd carries the raw textual result of one tool execution.
	EventToolEnd EventKind = "tool.end"
	// EventNodeEnd marks the completion of a graph node, with any
	// node-produced user-facing text.
	EventNodeEnd EventKind = "node.end"
	// EventTurnError terminates the stream after an unrecoverable turn error.
	EventTurnError EventKind = "turn.error"
)

// Event is one element of the per-turn event stream consumed by the
// segmenter. A fresh stream is created for every turn; events arrive in
// generation order.
type Event struct {
	Kind EventKind
	Node string
	Text string
	Err  error
}

// EventStream is the forward-only reader side of a turn's event pipe.
type EventStream = schema.StreamReader[Event]

func newEventPipe(cap int) (*schema.StreamReader[Event], *schema.StreamWriter[Event]) {
	return schema.Pipe[Event](cap)
}
