// Package telephony exposes the dialog engine over the wire: a chi HTTP
// server with a websocket hub on the media side, plus the outbound call
// loop and the dialer worker that feeds it from the phonebook.
package telephony

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/slingshot-ai/slingdial/internal/callstore"
	"github.com/slingshot-ai/slingdial/internal/config"
	"github.com/slingshot-ai/slingdial/internal/dialog"
	"github.com/slingshot-ai/slingdial/internal/dialog/segment"
	"github.com/slingshot-ai/slingdial/internal/events"
)

// CallManager owns the live calls: it creates sessions, runs turns through
// the dialog engine, speaks the result through the segmenter and keeps the
// call store in sync after every turn.
type CallManager struct {
	mu        sync.RWMutex
	sessions  map[string]*dialog.Session
	engine    *dialog.Engine
	segmenter *segment.Segmenter
	store     callstore.Store
	languages *config.LanguageTable
	bus       *events.Bus
}

// NewCallManager creates a call manager.
func NewCallManager(engine *dialog.Engine, seg *segment.Segmenter, store callstore.Store, languages *config.LanguageTable, bus *events.Bus) *CallManager {
	return &CallManager{
		sessions:  make(map[string]*dialog.Session),
		engine:    engine,
		segmenter: seg,
		store:     store,
		languages: languages,
		bus:       bus,
	}
}

// StartCall creates a session and call record for a new call and returns
// the thread id and the localized greeting to synthesize first.
func (m *CallManager) StartCall(phoneNumber, language string, direction config.Direction) (threadID, greeting string, err error) {
	profile := m.languages.Lookup(language, direction)
	sess := dialog.NewSession(profile.Language, profile)

	rec := &callstore.Record{
		ThreadID:    sess.ThreadID,
		PhoneNumber: phoneNumber,
		Language:    profile.Language,
		Direction:   string(direction),
	}
	if err := m.store.Create(rec); err != nil {
		return "", "", fmt.Errorf("create call record: %w", err)
	}

	m.mu.Lock()
	m.sessions[sess.ThreadID] = sess
	m.mu.Unlock()

	m.bus.Publish(events.NewTypedEventWithThread(events.SourceTelephony, events.CallStartedPayload{
		PhoneNumber: phoneNumber,
		Language:    profile.Language,
		Direction:   string(direction),
	}, sess.ThreadID))

	slog.Info("call started", "thread", sess.ThreadID, "language", profile.Language, "direction", direction)
	return sess.ThreadID, profile.Greeting, nil
}

// session returns the in-memory session for a thread, restoring it from the
// call store when the server has been restarted mid-call.
func (m *CallManager) session(threadID string) (*dialog.Session, error) {
	m.mu.RLock()
	sess, ok := m.sessions[threadID]
	m.mu.RUnlock()
	if ok {
		return sess, nil
	}

	snap, err := m.store.LoadSnapshot(threadID)
	if err != nil {
		return nil, fmt.Errorf("unknown call %s: %w", threadID, err)
	}
	rec, err := m.store.Get(threadID)
	if err != nil {
		return nil, err
	}
	profile := m.languages.Lookup(snap.Language, config.Direction(rec.Direction))
	sess = dialog.RestoreSession(snap, profile)

	m.mu.Lock()
	m.sessions[threadID] = sess
	m.mu.Unlock()
	return sess, nil
}

// Sentence is one spoken unit produced by a turn, ready for synthesis.
type Sentence struct {
	Text  string
	Index int
}

// HandleUtterance runs one dialog turn for the caller's utterance. emit is
// called for each sentence as soon as it is ready; the call store is
// updated once the turn has fully drained.
func (m *CallManager) HandleUtterance(ctx context.Context, threadID, utterance string, emit func(Sentence)) error {
	sess, err := m.session(threadID)
	if err != nil {
		return err
	}

	m.bus.Publish(events.NewTypedEventWithThread(events.SourceTelephony, events.UserUtterancePayload{
		Content: utterance,
	}, threadID))
	if err := m.store.AppendTranscript(threadID, callstore.TranscriptEntry{
		Role: "user",
		Text: utterance,
	}); err != nil {
		slog.Warn("append user transcript", "thread", threadID, "error", err)
	}

	start := time.Now()
	stream, err := m.engine.RunTurn(ctx, sess, utterance)
	if err != nil {
		return fmt.Errorf("run turn: %w", err)
	}

	first, rest, err := m.segmenter.Speak(ctx, stream)
	if err != nil {
		return fmt.Errorf("segment turn: %w", err)
	}

	count := 0
	m.speak(threadID, first, count, emit)
	count++

	for {
		text, err := rest.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			rest.Close()
			return fmt.Errorf("read sentence stream: %w", err)
		}
		m.speak(threadID, text, count, emit)
		count++
	}
	rest.Close()

	rec, err := m.store.Get(threadID)
	if err != nil {
		return err
	}
	rec.Turns++
	rec.Degraded = len(sess.Degraded()) > 0
	if err := m.store.Save(rec, sess.Snapshot()); err != nil {
		return fmt.Errorf("save call: %w", err)
	}

	m.bus.Publish(events.NewTypedEventWithThread(events.SourceTelephony, events.TurnCompletedPayload{
		Sentences: count,
		Degraded:  rec.Degraded,
		Duration:  time.Since(start),
	}, threadID))
	return nil
}

func (m *CallManager) speak(threadID, text string, index int, emit func(Sentence)) {
	if emit != nil {
		emit(Sentence{Text: text, Index: index})
	}
	m.bus.Publish(events.NewTypedEventWithThread(events.SourceSegmenter, events.SentencePayload{
		Text:  text,
		Index: index,
	}, threadID))
	if err := m.store.AppendTranscript(threadID, callstore.TranscriptEntry{
		Role: "assistant",
		Text: text,
	}); err != nil {
		slog.Warn("append assistant transcript", "thread", threadID, "error", err)
	}
}

// EndCall tears down a call: the record is deleted, which the outbound
// loop observes as the call-ended signal.
func (m *CallManager) EndCall(threadID, reason string) error {
	m.mu.Lock()
	sess, ok := m.sessions[threadID]
	delete(m.sessions, threadID)
	m.mu.Unlock()

	var turns int
	var started time.Time
	if rec, err := m.store.Get(threadID); err == nil {
		turns = rec.Turns
		started = rec.StartedAt
	}
	if err := m.store.Delete(threadID); err != nil {
		return fmt.Errorf("delete call record: %w", err)
	}

	payload := events.CallEndedPayload{Reason: reason, Turns: turns}
	if !started.IsZero() {
		payload.Duration = time.Since(started)
	}
	m.bus.Publish(events.NewTypedEventWithThread(events.SourceTelephony, payload, threadID))

	if ok {
		slog.Info("call ended", "thread", threadID, "reason", reason, "turns", turns, "degraded", len(sess.Degraded()) > 0)
	} else {
		slog.Info("call ended", "thread", threadID, "reason", reason, "turns", turns)
	}
	return nil
}

// Active reports whether the call record still exists.
func (m *CallManager) Active(threadID string) bool {
	return m.store.Exists(threadID)
}
