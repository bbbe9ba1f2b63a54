package dialog

import (
	"fmt"
	"sync"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/slingshot-ai/slingdial/internal/config"
)

// PrimarySkill is the sentinel skill owning the conversation when the dialog
// stack is empty.
const PrimarySkill = "primary"

// Session is the per-call mutable conversation record. It is created when a
// call begins, mutated exclusively during turn execution, and persisted by
// the call store keyed by ThreadID. Turns within one session are strictly
// sequential; BeginTurn enforces that.
type Session struct {
	ThreadID string
	Language string
	Profile  config.LanguageProfile

	mu       sync.Mutex
	messages []*schema.Message
	stack    []string
	degraded []string
	busy     bool
}

// NewSession creates a session with a fresh thread id.
func NewSession(language string, profile config.LanguageProfile) *Session {
	return &Session{
		ThreadID: uuid.New().String(),
		Language: language,
		Profile:  profile,
	}
}

// RestoreSession rebuilds a session from a persisted snapshot.
func RestoreSession(snap Snapshot, profile config.LanguageProfile) *Session {
	return &Session{
		ThreadID: snap.ThreadID,
		Language: snap.Language,
		Profile:  profile,
		messages: snap.Messages,
		stack:    append([]string(nil), snap.Stack...),
		degraded: append([]string(nil), snap.Degraded...),
	}
}

// Snapshot is the serializable form of a session.
type Snapshot struct {
	ThreadID string            `json:"thread_id"`
	Language string            `json:"language"`
	Messages []*schema.Message `json:"messages"`
	Stack    []string          `json:"stack,omitempty"`
	Degraded []string          `json:"degraded,omitempty"`
}

// Snapshot captures the current session state for persistence.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ThreadID: s.ThreadID,
		Language: s.Language,
		Messages: append([]*schema.Message(nil), s.messages...),
		Stack:    append([]string(nil), s.stack...),
		Degraded: append([]string(nil), s.degraded...),
	}
}

// BeginTurn marks the session busy. It fails if a previous turn is still in
// flight: a new utterance must not enter the state machine while the prior
// turn's segmenter is draining.
func (s *Session) BeginTurn() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return fmt.Errorf("session %s: turn already in flight", s.ThreadID)
	}
	s.busy = true
	return nil
}

// EndTurn releases the busy flag.
func (s *Session) EndTurn() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

// Append adds messages to the history. History is append-only within a turn
// and never reordered.
func (s *Session) Append(msgs ...*schema.Message) {
	s.mu.Lock()
	s.messages = append(s.messages, msgs...)
	s.mu.Unlock()
}

// Messages returns a copy of the message history.
func (s *Session) Messages() []*schema.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*schema.Message(nil), s.messages...)
}

// Last returns the most recent message, or nil for an empty history.
func (s *Session) Last() *schema.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		return nil
	}
	return s.messages[len(s.messages)-1]
}

// Push enters a sub-skill.
func (s *Session) Push(skill string) {
	s.mu.Lock()
	s.stack = append(s.stack, skill)
	s.mu.Unlock()
}

// Pop leaves the current sub-skill. Popping an empty stack is a no-op.
func (s *Session) Pop() {
	s.mu.Lock()
	if len(s.stack) > 0 {
		s.stack = s.stack[:len(s.stack)-1]
	}
	s.mu.Unlock()
}

// ActiveSkill returns the top of the dialog stack, or PrimarySkill when the
// stack is empty.
func (s *Session) ActiveSkill() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.stack) == 0 {
		return PrimarySkill
	}
	return s.stack[len(s.stack)-1]
}

// StackDepth returns the number of nested sub-skills.
func (s *Session) StackDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stack)
}

// Stack returns a copy of the dialog stack.
func (s *Session) Stack() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.stack...)
}

// MarkDegraded records that the named skill fell back to the apology message
// this turn, so callers can detect degraded turns.
func (s *Session) MarkDegraded(skill string) {
	s.mu.Lock()
	s.degraded = append(s.degraded, skill)
	s.mu.Unlock()
}

// Degraded returns the skills that degraded over the session lifetime.
func (s *Session) Degraded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.degraded...)
}
