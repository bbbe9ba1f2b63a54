package dialog

import (
	"context"
	"log/slog"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/slingshot-ai/slingdial/internal/events"
)

// RunTurn appends the user utterance and executes one pass of the state
// machine, returning the turn's event stream. The stream is forward-only,
// finite, and must be fully drained or closed by the consumer. Turns within
// a session are strictly sequential: a second call while a turn is in
// flight fails immediately.
func (e *Engine) RunTurn(ctx context.Context, sess *Session, utterance string) (*EventStream, error) {
	if err := sess.BeginTurn(); err != nil {
		return nil, err
	}

	sess.Append(schema.UserMessage(utterance))

	ctx = ContextWithLanguage(ctx, sess.Language)
	ctx = events.ContextWithThreadID(ctx, sess.ThreadID)

	reader, writer := newEventPipe(64)
	st := &TurnState{Session: sess, sink: writer}

	if e.bus != nil {
		e.bus.Publish(events.NewTypedEventWithThread(events.SourceDialog, events.TurnStartedPayload{
			Utterance: utterance,
			Skill:     sess.ActiveSkill(),
		}, sess.ThreadID))
	}

	start := time.Now()
	go func() {
		// The busy flag drops before the stream closes, so a caller that
		// observed EOF can immediately begin the next turn.
		defer writer.Close()
		defer sess.EndTurn()

		if _, err := e.runner.Invoke(ctx, st); err != nil {
			slog.Error("turn execution failed", "thread_id", sess.ThreadID, "error", err)
			writer.Send(Event{Kind: EventTurnError, Err: err}, nil)
		}

		if e.bus != nil {
			e.bus.Publish(events.NewTypedEventWithThread(events.SourceDialog, events.TurnCompletedPayload{
				Degraded: len(sess.Degraded()) > 0,
				Duration: time.Since(start),
			}, sess.ThreadID))
		}
	}()

	return reader, nil
}
