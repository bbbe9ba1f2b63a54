package dialog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/slingshot-ai/slingdial/internal/events"
	"github.com/slingshot-ai/slingdial/internal/models"
)

// apologyText is the fixed degraded-turn message. The skill runnable must
// never raise; this is the last line of defense before the caller speaks.
const apologyText = "Apologies.  There are some errors in our end"

// ModelResolver resolves named chat models. *models.Registry satisfies it.
type ModelResolver interface {
	Get(ctx context.Context, name string) (model.ToolCallingChatModel, error)
	Default(ctx context.Context) (model.ToolCallingChatModel, error)
}

// runSkill invokes the completion backend for one skill with bounded retry
// on transient failures. The assistant message (final text or tool call
// request) is appended to the session; model text fragments are emitted to
// the turn stream as they arrive. On retry exhaustion or an unrecoverable
// error the turn degrades to the apology message tagged with the skill name.
func (e *Engine) runSkill(ctx context.Context, st *TurnState, skill *Skill) error {
	chatModel, err := e.resolveModel(ctx, skill)
	if err != nil {
		return e.degrade(st, skill, err)
	}

	msgs := e.skillMessages(st.Session, skill)

	var out *schema.Message
	var lastErr error
	for attempt := 1; attempt <= e.maxRetries; attempt++ {
		start := time.Now()
		out, lastErr = e.streamOnce(ctx, chatModel, msgs, st, skill.Name)

		e.publish(st, events.LLMCallPayload{
			Skill:        skill.Name,
			Model:        skill.Model,
			MessageCount: len(msgs),
			Attempt:      attempt,
			Duration:     time.Since(start),
			Error:        errString(lastErr),
		})

		if lastErr == nil {
			break
		}
		if !models.IsTransient(lastErr) {
			break
		}
		slog.Warn("model call failed, retrying",
			"skill", skill.Name, "attempt", attempt, "max", e.maxRetries, "error", lastErr)
	}

	if lastErr != nil {
		return e.degrade(st, skill, lastErr)
	}

	st.Session.Append(out)
	st.emit(Event{Kind: EventModelEnd, Node: skill.Name, Text: out.Content})
	return nil
}

// degrade appends the apology message and tags the session with the failing
// skill. The apology is pushed through the turn stream so the caller still
// hears a sentence.
func (e *Engine) degrade(st *TurnState, skill *Skill, cause error) error {
	slog.Error("skill degraded to apology fallback", "skill", skill.Name, "error", cause)

	st.Session.Append(schema.AssistantMessage(apologyText, nil))
	st.Session.MarkDegraded(skill.Name)
	st.emit(Event{Kind: EventStreamChunk, Node: skill.Name, Text: apologyText})
	st.emit(Event{Kind: EventModelEnd, Node: skill.Name, Text: apologyText})
	return nil
}

func (e *Engine) resolveModel(ctx context.Context, skill *Skill) (model.ToolCallingChatModel, error) {
	var base model.ToolCallingChatModel
	var err error
	if skill.Model != "" {
		base, err = e.resolver.Get(ctx, skill.Model)
	} else {
		base, err = e.resolver.Default(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve model for skill %s: %w", skill.Name, err)
	}

	infos := make([]*schema.ToolInfo, 0, len(skill.Tools))
	for _, t := range skill.Tools {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("tool info: %w", err)
		}
		infos = append(infos, info)
	}
	if len(infos) == 0 {
		return base, nil
	}
	bound, err := base.WithTools(infos)
	if err != nil {
		return nil, fmt.Errorf("bind tools for skill %s: %w", skill.Name, err)
	}
	return bound, nil
}

// skillMessages builds the completion request: the skill's system prompt
// (with the language profile preamble, when set) followed by the history.
func (e *Engine) skillMessages(sess *Session, skill *Skill) []*schema.Message {
	prompt := skill.Prompt(sess.Language)
	if preamble := sess.Profile.PromptPreamble; preamble != "" {
		prompt = preamble + "\n\n" + prompt
	}

	history := sess.Messages()
	msgs := make([]*schema.Message, 0, len(history)+1)
	msgs = append(msgs, schema.SystemMessage(prompt))
	return append(msgs, history...)
}

// streamOnce performs a single streaming model call, forwarding text
// fragments to the turn stream and concatenating chunks into the final
// assistant message.
func (e *Engine) streamOnce(ctx context.Context, chatModel model.ToolCallingChatModel, msgs []*schema.Message, st *TurnState, node string) (*schema.Message, error) {
	reader, err := chatModel.Stream(ctx, msgs)
	if err != nil {
		return nil, models.HandleError(err)
	}
	defer reader.Close()

	var chunks []*schema.Message
	for {
		chunk, err := reader.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, models.HandleError(err)
		}
		chunks = append(chunks, chunk)
		if chunk.Content != "" {
			st.emit(Event{Kind: EventStreamChunk, Node: node, Text: chunk.Content})
		}
	}

	if len(chunks) == 0 {
		return nil, fmt.Errorf("model stream for %s produced no output", node)
	}

	out, err := schema.ConcatMessages(chunks)
	if err != nil {
		return nil, fmt.Errorf("concat stream chunks: %w", err)
	}
	return out, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
