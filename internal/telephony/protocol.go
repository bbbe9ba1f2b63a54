package telephony

import "encoding/json"

// FrameType represents the type of websocket frame.
type FrameType string

const (
	FrameTypeRequest  FrameType = "req"
	FrameTypeResponse FrameType = "res"
	FrameTypeEvent    FrameType = "event"
)

// Request methods the media side may invoke. The transcriber side sends
// utterances; the synthesizer side receives sentence events.
const (
	MethodStartCall = "start_call"
	MethodUtterance = "utterance"
	MethodEndCall   = "end_call"
)

// Frame is the websocket protocol envelope.
type Frame struct {
	Type     FrameType       `json:"type"`
	ID       string          `json:"id,omitempty"`
	Method   string          `json:"method,omitempty"`
	Params   json.RawMessage `json:"params,omitempty"`
	OK       *bool           `json:"ok,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Error    string          `json:"error,omitempty"`
	Event    string          `json:"event,omitempty"`
	ThreadID string          `json:"thread_id,omitempty"`
}

// StartCallParams opens a new call over the socket.
type StartCallParams struct {
	PhoneNumber string `json:"phone_number,omitempty"`
	Language    string `json:"language,omitempty"`
	Direction   string `json:"direction,omitempty"` // "in" (default) or "out"
}

// UtteranceParams carries one transcribed caller utterance.
type UtteranceParams struct {
	ThreadID string `json:"thread_id"`
	Content  string `json:"content"`
}

// EndCallParams hangs up a call.
type EndCallParams struct {
	ThreadID string `json:"thread_id"`
	Reason   string `json:"reason,omitempty"`
}

// SentenceEvent is pushed to the synthesizer side for each spoken sentence.
type SentenceEvent struct {
	Text  string `json:"text"`
	Index int    `json:"index"`
}

// MarshalFrame serializes a Frame to JSON bytes.
func MarshalFrame(f Frame) ([]byte, error) {
	return json.Marshal(f)
}

// UnmarshalFrame deserializes JSON bytes into a Frame.
func UnmarshalFrame(data []byte) (Frame, error) {
	var f Frame
	err := json.Unmarshal(data, &f)
	return f, err
}

// NewEventFrame creates a Frame for pushing an event to a client.
func NewEventFrame(event, threadID string, payload any) (Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{
		Type:     FrameTypeEvent,
		Event:    event,
		ThreadID: threadID,
		Payload:  data,
	}, nil
}

// NewResponseFrame creates a response Frame.
func NewResponseFrame(id string, ok bool, payload any, errMsg string) (Frame, error) {
	f := Frame{
		Type:  FrameTypeResponse,
		ID:    id,
		OK:    &ok,
		Error: errMsg,
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Frame{}, err
		}
		f.Payload = data
	}
	return f, nil
}
