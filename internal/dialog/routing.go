package dialog

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
)

// Routing policy: pure decision functions over the session state. Each
// returns the name of the next graph node, or compose.END to finish the
// turn. Routing inspects only the first tool call of a message; parallel
// tool calls are out of scope upstream.

// routeEntry dispatches a new turn to whichever skill owns the conversation.
func routeEntry(_ context.Context, st *TurnState) (string, error) {
	return st.Session.ActiveSkill(), nil
}

// routeSkill decides where control goes after a skill's model call: end the
// turn on a final message, hand off to the mapped node for an escape tool,
// or run the skill's tool layer.
func routeSkill(skill *Skill) func(context.Context, *TurnState) (string, error) {
	tools := toolsNode(skill.Name)
	return func(_ context.Context, st *TurnState) (string, error) {
		last := st.Session.Last()
		if last == nil {
			return "", fmt.Errorf("route %s: empty history", skill.Name)
		}
		if last.Role != schema.Assistant || len(last.ToolCalls) == 0 {
			return compose.END, nil
		}
		name := last.ToolCalls[0].Function.Name
		if node, ok := skill.Escapes[name]; ok {
			return node, nil
		}
		return tools, nil
	}
}

// routePostTool inspects the latest tool result: deterministic text is
// rewrapped without another model call, a route directive goes through the
// name table, and anything else resumes the skill on top of the dialog
// stack. Deterministic wins when a result carries both markers.
func routePostTool(_ context.Context, st *TurnState) (string, error) {
	last := st.Session.Last()
	if last == nil {
		return "", fmt.Errorf("post-tool route: empty history")
	}
	switch ParseToolResult(last.Content).Kind {
	case ResultDeterministic:
		return NodeDeterministicWrap, nil
	case ResultRouteTo:
		return NodeRouteByName, nil
	default:
		return st.Session.ActiveSkill(), nil
	}
}

// routeByName translates the synthetic tool call planted by the
// route-by-name node into a destination node, falling back to the active
// skill for unmapped names.
func (e *Engine) routeByName(_ context.Context, st *TurnState) (string, error) {
	last := st.Session.Last()
	if last == nil || len(last.ToolCalls) == 0 {
		return "", fmt.Errorf("route-by-name: no routed tool call")
	}
	name := last.ToolCalls[0].Function.Name
	if node, ok := e.routeTable[name]; ok {
		return node, nil
	}
	return st.Session.ActiveSkill(), nil
}

func enterNode(skill string) string { return "enter-" + skill }
func toolsNode(skill string) string { return skill + "-tools" }
