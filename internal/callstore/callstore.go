// Package callstore persists call sessions keyed by thread id. Each call is
// a directory holding atomic metadata, the full session snapshot, and an
// append-only transcript. Record deletion is the call-ended signal observed
// by the outbound call loop.
package callstore

import (
	"time"

	"github.com/slingshot-ai/slingdial/internal/dialog"
)

// Status of a call record.
type Status string

const (
	StatusActive Status = "active"
	StatusFailed Status = "failed"
)

// Record is the call-level metadata stored alongside the session snapshot.
type Record struct {
	ThreadID    string    `json:"thread_id"`
	PhoneNumber string    `json:"phone_number,omitempty"`
	Language    string    `json:"language"`
	Direction   string    `json:"direction"` // "in" or "out"
	Status      Status    `json:"status"`
	StartedAt   time.Time `json:"started_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Turns       int       `json:"turns"`
	Degraded    bool      `json:"degraded,omitempty"`
}

// TranscriptEntry is one spoken line of a call.
type TranscriptEntry struct {
	At       time.Time `json:"at"`
	Role     string    `json:"role"` // "caller" or "assistant"
	Text     string    `json:"text"`
	Filler   bool      `json:"filler,omitempty"`
	Degraded bool      `json:"degraded,omitempty"`
}

// Store is the persisted call-session store. Get and Save operate on the
// full snapshot; Delete both removes the record and signals call end to
// whoever polls Exists.
type Store interface {
	Create(rec *Record) error
	Get(threadID string) (*Record, error)
	Save(rec *Record, snap dialog.Snapshot) error
	LoadSnapshot(threadID string) (dialog.Snapshot, error)
	AppendTranscript(threadID string, entry TranscriptEntry) error
	LoadTranscript(threadID string) ([]TranscriptEntry, error)
	Delete(threadID string) error
	Exists(threadID string) bool
	List() ([]*Record, error)
}
