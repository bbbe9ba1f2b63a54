package events

import (
	"encoding/json"
	"time"
)

// EventPayload is the interface all typed payloads implement.
type EventPayload interface {
	EventType() EventType
}

type CallStartedPayload struct {
	PhoneNumber string `json:"phone_number,omitempty"`
	Language    string `json:"language"`
	Direction   string `json:"direction"`
}

func (CallStartedPayload) EventType() EventType { return EventCallStarted }

type CallEndedPayload struct {
	Reason   string        `json:"reason"` // "hangup", "timeout", "failed"
	Duration time.Duration `json:"duration,omitempty"`
	Turns    int           `json:"turns,omitempty"`
}

func (CallEndedPayload) EventType() EventType { return EventCallEnded }

type TurnStartedPayload struct {
	Utterance string `json:"utterance"`
	Skill     string `json:"skill"` // skill owning the conversation at turn start
}

func (TurnStartedPayload) EventType() EventType { return EventTurnStarted }

type TurnCompletedPayload struct {
	Sentences int           `json:"sentences"`
	Degraded  bool          `json:"degraded,omitempty"` // apology fallback was used
	Duration  time.Duration `json:"duration,omitempty"`
}

func (TurnCompletedPayload) EventType() EventType { return EventTurnCompleted }

type UserUtterancePayload struct {
	Content string `json:"content"`
}

func (UserUtterancePayload) EventType() EventType { return EventUserUtterance }

type SentencePayload struct {
	Text   string `json:"text"`
	Index  int    `json:"index"`
	Filler bool   `json:"filler,omitempty"` // leak was replaced by a filler phrase
}

func (SentencePayload) EventType() EventType { return EventSentence }

type LLMCallPayload struct {
	Phase        string        `json:"phase"` // "request", "response", "error"
	Skill        string        `json:"skill"`
	Model        string        `json:"model,omitempty"`
	MessageCount int           `json:"message_count,omitempty"`
	Attempt      int           `json:"attempt,omitempty"`
	Duration     time.Duration `json:"duration,omitempty"`
	Error        string        `json:"error,omitempty"`
}

func (LLMCallPayload) EventType() EventType { return EventLLMCall }

type ToolStatus string

const (
	ToolStatusStarted   ToolStatus = "started"
	ToolStatusCompleted ToolStatus = "completed"
	ToolStatusFailed    ToolStatus = "failed"
)

type ToolCallPayload struct {
	Status ToolStatus `json:"status"`
	Name   string     `json:"name"`
	Result string     `json:"result,omitempty"`
	Error  string     `json:"error,omitempty"`
}

func (ToolCallPayload) EventType() EventType { return EventToolCall }

type DialAttemptPayload struct {
	PhoneNumber string `json:"phone_number"`
	Language    string `json:"language"`
	ContactID   int64  `json:"contact_id"`
	Error       string `json:"error,omitempty"`
}

func (DialAttemptPayload) EventType() EventType { return EventDialAttempt }

// NewTypedEvent creates an event from a typed payload.
func NewTypedEvent(source EventSource, payload EventPayload) Event {
	return Event{
		ID:        generateEventID(),
		Type:      payload.EventType(),
		Timestamp: time.Now(),
		Source:    source,
		Payload:   toMap(payload),
	}
}

// NewTypedEventWithThread creates an event correlated to a call thread.
func NewTypedEventWithThread(source EventSource, payload EventPayload, threadID string) Event {
	e := NewTypedEvent(source, payload)
	e.ThreadID = threadID
	return e
}

func toMap(v any) map[string]any {
	var result map[string]any
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}

// ExtractPayload unmarshals an event's payload map into a typed payload.
func ExtractPayload[T EventPayload](e Event) (T, bool) {
	var result T
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return result, false
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, false
	}
	return result, true
}
