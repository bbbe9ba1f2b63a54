package dialog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/slingshot-ai/slingdial/internal/config"
)

// scriptedModel plays back a fixed sequence of responses. An entry with a
// non-nil err fails that model call.
type scriptedModel struct {
	mu     sync.Mutex
	script []scriptStep
	calls  int
}

type scriptStep struct {
	msg *schema.Message
	err error
}

func (m *scriptedModel) Generate(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	return nil, errors.New("scripted model is stream-only")
}

func (m *scriptedModel) Stream(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	m.mu.Lock()
	m.calls++
	if len(m.script) == 0 {
		m.mu.Unlock()
		return nil, errors.New("script exhausted")
	}
	step := m.script[0]
	m.script = m.script[1:]
	m.mu.Unlock()

	if step.err != nil {
		return nil, step.err
	}

	sr, sw := schema.Pipe[*schema.Message](1)
	go func() {
		sw.Send(step.msg, nil)
		sw.Close()
	}()
	return sr, nil
}

func (m *scriptedModel) WithTools(_ []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return m, nil
}

func (m *scriptedModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type fixedResolver struct{ m model.ToolCallingChatModel }

func (r fixedResolver) Get(_ context.Context, _ string) (model.ToolCallingChatModel, error) {
	return r.m, nil
}

func (r fixedResolver) Default(_ context.Context) (model.ToolCallingChatModel, error) {
	return r.m, nil
}

func newTestEngine(t *testing.T, skills SkillSet, m *scriptedModel) *Engine {
	t.Helper()
	e, err := NewEngine(context.Background(), skills, fixedResolver{m}, config.DialogConfig{
		MaxRetries:   2,
		MaxTurnSteps: 25,
	}, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func drainEvents(t *testing.T, stream *EventStream) []Event {
	t.Helper()
	var out []Event
	for {
		ev, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("event stream: %v", err)
		}
		out = append(out, ev)
	}
}

func textOfChunks(evs []Event) string {
	var sb strings.Builder
	for _, ev := range evs {
		if ev.Kind == EventStreamChunk {
			sb.WriteString(ev.Text)
		}
	}
	return sb.String()
}

func TestTurnPlainAnswer(t *testing.T) {
	m := &scriptedModel{script: []scriptStep{
		{msg: schema.AssistantMessage("Hello! How can I help you today?", nil)},
	}}
	e := newTestEngine(t, DefaultSkills(), m)
	sess := NewSession("en", testProfile())

	stream, err := e.RunTurn(context.Background(), sess, "hi")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	evs := drainEvents(t, stream)

	if got := textOfChunks(evs); got != "Hello! How can I help you today?" {
		t.Fatalf("streamed text = %q", got)
	}
	if last := sess.Last(); last.Role != schema.Assistant || last.Content != "Hello! How can I help you today?" {
		t.Fatalf("last message = %+v", last)
	}
	if err := sess.BeginTurn(); err != nil {
		t.Fatalf("session still busy after turn: %v", err)
	}
}

func TestTurnRejectedWhileBusy(t *testing.T) {
	m := &scriptedModel{script: []scriptStep{
		{msg: schema.AssistantMessage("ok", nil)},
	}}
	e := newTestEngine(t, DefaultSkills(), m)
	sess := NewSession("en", testProfile())

	if err := sess.BeginTurn(); err != nil {
		t.Fatalf("BeginTurn: %v", err)
	}
	if _, err := e.RunTurn(context.Background(), sess, "hi"); err == nil {
		t.Fatal("RunTurn succeeded while a turn is in flight")
	}
}

func TestEnterAndLeaveSkillRestoresStack(t *testing.T) {
	m := &scriptedModel{script: []scriptStep{
		// primary hands off to the payment assistant
		{msg: assistantWithToolCall(ToolToMakePaymentAssistant)},
		// the payment assistant immediately escalates back
		{msg: assistantWithToolCall(ToolCompleteOrEscalate)},
		// primary resumes with a final answer
		{msg: schema.AssistantMessage("What else can I do for you?", nil)},
	}}
	e := newTestEngine(t, DefaultSkills(), m)
	sess := NewSession("en", testProfile())

	stream, err := e.RunTurn(context.Background(), sess, "I want to pay")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	drainEvents(t, stream)

	if depth := sess.StackDepth(); depth != 0 {
		t.Fatalf("stack depth = %d after enter+leave, want 0", depth)
	}
	if sess.ActiveSkill() != PrimarySkill {
		t.Fatalf("active skill = %q, want %q", sess.ActiveSkill(), PrimarySkill)
	}

	var sawEntry, sawResume bool
	for _, msg := range sess.Messages() {
		if msg.Role == schema.Tool {
			if strings.Contains(msg.Content, "routed to the Make Payment Assistant") {
				sawEntry = true
			}
			if strings.Contains(msg.Content, "Resuming dialog with the host assistant") {
				sawResume = true
			}
		}
	}
	if !sawEntry {
		t.Error("entry hand-off message missing from history")
	}
	if !sawResume {
		t.Error("resume message missing from history")
	}
}

func TestDeterministicToolEndsWithoutModelCall(t *testing.T) {
	m := &scriptedModel{script: []scriptStep{
		{msg: assistantWithToolCall(ToolTransferToLiveAgent)},
	}}
	e := newTestEngine(t, DefaultSkills(), m)
	sess := NewSession("en", testProfile())

	stream, err := e.RunTurn(context.Background(), sess, "get me a human")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	evs := drainEvents(t, stream)

	if calls := m.callCount(); calls != 1 {
		t.Fatalf("model calls = %d, want 1 (deterministic result bypasses the model)", calls)
	}

	last := sess.Last()
	if last.Role != schema.Assistant || last.Content != liveAgentTextEN {
		t.Fatalf("last message = %+v, want live agent text", last)
	}

	var sawToolEnd bool
	for _, ev := range evs {
		if ev.Kind == EventToolEnd && strings.Contains(ev.Text, "live agent") {
			sawToolEnd = true
		}
	}
	if !sawToolEnd {
		t.Error("tool.end event with live agent text missing")
	}
}

func TestRouteDirectivePopsSkill(t *testing.T) {
	m := &scriptedModel{script: []scriptStep{
		// the payment assistant calls validate with nothing to validate,
		// which routes control back to the host assistant
		{msg: assistantWithToolCall(ToolValidatePayment)},
		{msg: schema.AssistantMessage("How else can I help?", nil)},
	}}
	e := newTestEngine(t, DefaultSkills(), m)
	sess := NewSession("en", testProfile())
	sess.Push(SkillMakePayment)

	stream, err := e.RunTurn(context.Background(), sess, "actually never mind")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	drainEvents(t, stream)

	if depth := sess.StackDepth(); depth != 0 {
		t.Fatalf("stack depth = %d, want 0 after route directive", depth)
	}
	if last := sess.Last(); last.Content != "How else can I help?" {
		t.Fatalf("last message = %q", last.Content)
	}
}

func TestToolFailureSynthesizesCorrectiveMessage(t *testing.T) {
	failing := &funcTool{
		info: &schema.ToolInfo{Name: "lookup_balance", Desc: "always fails"},
		fn: func(_ context.Context, _ map[string]any) (ToolResult, error) {
			return ToolResult{}, fmt.Errorf("backend unavailable")
		},
	}
	skills := DefaultSkills()
	skills[PrimarySkill].Tools = append(skills[PrimarySkill].Tools, tool.InvokableTool(failing))

	m := &scriptedModel{script: []scriptStep{
		{msg: assistantWithToolCall("lookup_balance")},
		{msg: schema.AssistantMessage("Sorry, I could not reach that system.", nil)},
	}}
	e := newTestEngine(t, skills, m)
	sess := NewSession("en", testProfile())

	stream, err := e.RunTurn(context.Background(), sess, "what's my balance")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	drainEvents(t, stream)

	var sawCorrective bool
	for _, msg := range sess.Messages() {
		if msg.Role == schema.Tool && strings.Contains(msg.Content, "please fix your mistakes") {
			sawCorrective = true
		}
	}
	if !sawCorrective {
		t.Fatal("corrective tool message missing from history")
	}
	if calls := m.callCount(); calls != 2 {
		t.Fatalf("model calls = %d, want 2 (model re-invoked after tool failure)", calls)
	}
}

func TestRetryExhaustionDegradesToApology(t *testing.T) {
	m := &scriptedModel{script: []scriptStep{
		{err: errors.New("connection reset")},
		{err: errors.New("connection reset")},
	}}
	e := newTestEngine(t, DefaultSkills(), m)
	sess := NewSession("en", testProfile())

	stream, err := e.RunTurn(context.Background(), sess, "hi")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	evs := drainEvents(t, stream)

	if last := sess.Last(); last.Content != apologyText {
		t.Fatalf("last message = %q, want apology", last.Content)
	}
	if got := sess.Degraded(); len(got) != 1 || got[0] != PrimarySkill {
		t.Fatalf("degraded = %v, want [%s]", got, PrimarySkill)
	}
	if !strings.Contains(textOfChunks(evs), apologyText) {
		t.Fatal("apology text missing from turn stream")
	}
	if calls := m.callCount(); calls != 2 {
		t.Fatalf("model calls = %d, want 2 retries", calls)
	}
}

func TestNonTransientErrorSkipsRetry(t *testing.T) {
	m := &scriptedModel{script: []scriptStep{
		{err: errors.New("401 unauthorized")},
		{msg: schema.AssistantMessage("never reached", nil)},
	}}
	e := newTestEngine(t, DefaultSkills(), m)
	sess := NewSession("en", testProfile())

	stream, err := e.RunTurn(context.Background(), sess, "hi")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	drainEvents(t, stream)

	if calls := m.callCount(); calls != 1 {
		t.Fatalf("model calls = %d, want 1 (auth errors are not retried)", calls)
	}
	if last := sess.Last(); last.Content != apologyText {
		t.Fatalf("last message = %q, want apology", last.Content)
	}
}

func TestEngineRejectsUnknownEscapeTarget(t *testing.T) {
	skills := DefaultSkills()
	skills[PrimarySkill].Escapes["bogus_tool"] = "no-such-node"

	_, err := NewEngine(context.Background(), skills, fixedResolver{&scriptedModel{}}, config.DialogConfig{}, nil)
	if err == nil {
		t.Fatal("NewEngine accepted an escape tool mapped to an unknown node")
	}
}

func TestKoreanLiveAgentText(t *testing.T) {
	m := &scriptedModel{script: []scriptStep{
		{msg: assistantWithToolCall(ToolTransferToLiveAgent)},
	}}
	e := newTestEngine(t, DefaultSkills(), m)
	sess := NewSession("kr", testProfile())

	stream, err := e.RunTurn(context.Background(), sess, "상담원 연결해 주세요")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	drainEvents(t, stream)

	if last := sess.Last(); last.Content != liveAgentTextKR {
		t.Fatalf("last message = %q, want Korean live agent text", last.Content)
	}
}
