package dialog

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/slingshot-ai/slingdial/internal/config"
	"github.com/slingshot-ai/slingdial/internal/events"
)

// Graph node names. Skill nodes are named after the skill; sub-skills
// additionally get an enter adapter and a tools node.
const (
	NodeDispatch          = "dispatch"
	NodePrimary           = PrimarySkill
	NodePrimaryTools      = PrimarySkill + "-tools"
	NodePopSkill          = "pop-skill"
	NodeDeterministicWrap = "deterministic-wrap"
	NodeRouteByName       = "route-by-name"
	NodeAccountNote       = "account_note"

	SkillMakePayment     = "make_payment"
	NodeMakePayment      = SkillMakePayment
	NodeEnterMakePayment = "enter-" + SkillMakePayment
	NodeMakePaymentTools = SkillMakePayment + "-tools"
)

const (
	resumeText      = "Resuming dialog with the host assistant. Please reflect on the past conversation. First, call a function if appropriate. If not, respond to the user."
	noteAccountText = "No problem.  I have noted on your account about your request."
)

const (
	defaultMaxRetries   = 5
	defaultMaxTurnSteps = 25
)

// TurnState flows through the graph for one turn. The session is mutated in
// place; the sink feeds the segmenter.
type TurnState struct {
	Session *Session

	sink *schema.StreamWriter[Event]
}

func (st *TurnState) emit(e Event) {
	if st.sink != nil {
		st.sink.Send(e, nil)
	}
}

// Engine is the dialog state machine: a static graph built once at startup
// from the configured skills, executed once per user turn. Construction
// fails loudly on routing configuration errors (an escape tool mapped to an
// unknown node); the graph itself performs no runtime recovery.
type Engine struct {
	skills     SkillSet
	tools      map[string]tool.InvokableTool
	resolver   ModelResolver
	routeTable map[string]string
	runner     compose.Runnable[*TurnState, *TurnState]
	maxRetries int
	bus        *events.Bus
}

// NewEngine builds and compiles the dialog graph.
func NewEngine(ctx context.Context, skills SkillSet, resolver ModelResolver, cfg config.DialogConfig, bus *events.Bus) (*Engine, error) {
	if _, err := skills.Get(PrimarySkill); err != nil {
		return nil, fmt.Errorf("skill set has no primary skill")
	}

	tools, err := buildToolIndex(skills)
	if err != nil {
		return nil, err
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	maxSteps := cfg.MaxTurnSteps
	if maxSteps <= 0 {
		maxSteps = defaultMaxTurnSteps
	}

	e := &Engine{
		skills:     skills,
		tools:      tools,
		resolver:   resolver,
		routeTable: buildRouteTable(skills),
		maxRetries: maxRetries,
		bus:        bus,
	}

	runner, err := e.buildGraph(ctx, maxSteps)
	if err != nil {
		return nil, fmt.Errorf("build dialog graph: %w", err)
	}
	e.runner = runner
	return e, nil
}

// buildRouteTable maps routable tool names to destination nodes: every
// escape tool of every skill, plus the deterministic live-agent path and the
// account-note administrative node.
func buildRouteTable(skills SkillSet) map[string]string {
	table := map[string]string{
		ToolTransferToLiveAgent: NodePrimaryTools,
		ToolNoteAccount:         NodeAccountNote,
	}
	for _, skill := range skills {
		for toolName, node := range skill.Escapes {
			table[toolName] = node
		}
	}
	return table
}

// graphBuilder accumulates graph construction calls, keeping the first
// error and the set of declared node names for validation.
type graphBuilder struct {
	g     *compose.Graph[*TurnState, *TurnState]
	nodes map[string]bool
	err   error
}

func (b *graphBuilder) node(name string, fn func(context.Context, *TurnState) (*TurnState, error)) {
	if b.err != nil {
		return
	}
	b.err = b.g.AddLambdaNode(name, compose.InvokableLambda(fn))
	b.nodes[name] = true
}

func (b *graphBuilder) edge(from, to string) {
	if b.err != nil {
		return
	}
	b.err = b.g.AddEdge(from, to)
}

func (b *graphBuilder) branch(from string, cond func(context.Context, *TurnState) (string, error), targets ...string) {
	if b.err != nil {
		return
	}
	ends := make(map[string]bool, len(targets))
	for _, t := range targets {
		ends[t] = true
	}
	b.err = b.g.AddBranch(from, compose.NewGraphBranch(cond, ends))
}

func (e *Engine) buildGraph(ctx context.Context, maxSteps int) (compose.Runnable[*TurnState, *TurnState], error) {
	b := &graphBuilder{
		g:     compose.NewGraph[*TurnState, *TurnState](),
		nodes: map[string]bool{},
	}

	skillNodes := make([]string, 0, len(e.skills))
	for name := range e.skills {
		skillNodes = append(skillNodes, name)
	}

	// Declare every node first; wiring references nodes by name.
	b.node(NodeDispatch, func(_ context.Context, st *TurnState) (*TurnState, error) {
		return st, nil
	})

	for _, skill := range e.skills {
		skill := skill
		b.node(skill.Name, func(ctx context.Context, st *TurnState) (*TurnState, error) {
			err := e.runSkill(ctx, st, skill)
			st.emit(Event{Kind: EventNodeEnd, Node: skill.Name})
			return st, err
		})

		tools := toolsNode(skill.Name)
		b.node(tools, func(ctx context.Context, st *TurnState) (*TurnState, error) {
			err := e.executeTools(ctx, st, tools)
			st.emit(Event{Kind: EventNodeEnd, Node: tools})
			return st, err
		})

		if skill.Name != PrimarySkill {
			b.node(enterNode(skill.Name), e.enterSkillNode(skill))
		}
	}

	b.node(NodePopSkill, e.popSkillNode)

	b.node(NodeDeterministicWrap, func(_ context.Context, st *TurnState) (*TurnState, error) {
		text := StripMarkers(st.Session.Last().Content)
		st.Session.Append(schema.AssistantMessage(text, nil))
		st.emit(Event{Kind: EventNodeEnd, Node: NodeDeterministicWrap})
		return st, nil
	})

	b.node(NodeRouteByName, e.routeByNameNode)

	b.node(NodeAccountNote, func(_ context.Context, st *TurnState) (*TurnState, error) {
		st.Session.Append(schema.AssistantMessage(noteAccountText, nil))
		st.emit(Event{Kind: EventNodeEnd, Node: NodeAccountNote, Text: noteAccountText})
		return st, nil
	})

	// Every route destination must exist: an unmapped name is a
	// configuration defect, not a runtime condition.
	for toolName, node := range e.routeTable {
		if !b.nodes[node] {
			return nil, fmt.Errorf("route target for tool %q: unknown node %q", toolName, node)
		}
	}
	for _, skill := range e.skills {
		for toolName, node := range skill.Escapes {
			if !b.nodes[node] {
				return nil, fmt.Errorf("skill %s: escape tool %q maps to unknown node %q", skill.Name, toolName, node)
			}
		}
	}

	// Wiring.
	b.edge(compose.START, NodeDispatch)
	b.branch(NodeDispatch, routeEntry, skillNodes...)

	for _, skill := range e.skills {
		tools := toolsNode(skill.Name)

		targets := []string{compose.END, tools}
		for _, node := range skill.Escapes {
			targets = append(targets, node)
		}
		b.branch(skill.Name, routeSkill(skill), targets...)

		b.branch(tools, routePostTool,
			append([]string{NodeDeterministicWrap, NodeRouteByName}, skillNodes...)...)

		if skill.Name != PrimarySkill {
			b.edge(enterNode(skill.Name), skill.Name)
		}
	}

	b.edge(NodePopSkill, NodePrimary)
	b.edge(NodeDeterministicWrap, compose.END)
	b.edge(NodeAccountNote, compose.END)

	routeTargets := make([]string, 0, len(e.routeTable)+len(skillNodes))
	for _, node := range e.routeTable {
		routeTargets = append(routeTargets, node)
	}
	routeTargets = append(routeTargets, skillNodes...)
	b.branch(NodeRouteByName, e.routeByName, routeTargets...)

	if b.err != nil {
		return nil, b.err
	}

	return b.g.Compile(ctx, compose.WithMaxRunSteps(maxSteps))
}

// enterSkillNode builds the adapter that answers the escape tool call with
// the skill's hand-off message and pushes the skill onto the dialog stack.
func (e *Engine) enterSkillNode(skill *Skill) func(context.Context, *TurnState) (*TurnState, error) {
	enter := enterNode(skill.Name)
	return func(_ context.Context, st *TurnState) (*TurnState, error) {
		last := st.Session.Last()
		if last == nil || len(last.ToolCalls) == 0 {
			return nil, fmt.Errorf("%s: no triggering tool call", enter)
		}
		entry := skill.Entry
		if entry == "" {
			entry = fmt.Sprintf("The conversation has been routed to the %s assistant.", skill.Name)
		}
		st.Session.Append(schema.ToolMessage(entry, last.ToolCalls[0].ID))
		st.Session.Push(skill.Name)
		st.emit(Event{Kind: EventNodeEnd, Node: enter})
		return st, nil
	}
}

// popSkillNode answers the leave tool call with the resume message, pops the
// dialog stack and hands control back to the primary skill.
func (e *Engine) popSkillNode(_ context.Context, st *TurnState) (*TurnState, error) {
	last := st.Session.Last()
	if last != nil && len(last.ToolCalls) > 0 {
		st.Session.Append(schema.ToolMessage(resumeText, last.ToolCalls[0].ID))
	}
	st.Session.Pop()
	st.emit(Event{Kind: EventNodeEnd, Node: NodePopSkill})
	return st, nil
}

// routeByNameNode rewraps a ROUTE directive as a synthetic assistant tool
// call so the name table can dispatch it.
func (e *Engine) routeByNameNode(_ context.Context, st *TurnState) (*TurnState, error) {
	last := st.Session.Last()
	if last == nil {
		return nil, fmt.Errorf("route-by-name: empty history")
	}
	result := ParseToolResult(last.Content)
	if result.Kind != ResultRouteTo {
		return nil, fmt.Errorf("route-by-name: last message carries no route directive")
	}

	msg := schema.AssistantMessage("", []schema.ToolCall{{
		ID: uuid.New().String(),
		Function: schema.FunctionCall{
			Name:      result.Target,
			Arguments: "{}",
		},
	}})
	st.Session.Append(msg)
	st.emit(Event{Kind: EventNodeEnd, Node: NodeRouteByName})
	return st, nil
}

func (e *Engine) publish(st *TurnState, payload events.EventPayload) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(events.NewTypedEventWithThread(events.SourceDialog, payload, st.Session.ThreadID))
}
