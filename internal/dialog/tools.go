package dialog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

// Tool names. The two assistant-routing tools are escape tools: routing
// intercepts them before execution, so their InvokableRun bodies only exist
// as a defensive fallback.
const (
	ToolTransferToLiveAgent    = "transfer_to_live_agent"
	ToolToMakePaymentAssistant = "ToMakePaymentAssistant"
	ToolCompleteOrEscalate     = "CompleteOrEscalate"
	ToolValidatePayment        = "validate_payment_amount_date"
	ToolNoteAccount            = "note_account"
)

type langKey struct{}

// ContextWithLanguage attaches the session language so deterministic tools
// can localize their output.
func ContextWithLanguage(ctx context.Context, language string) context.Context {
	return context.WithValue(ctx, langKey{}, language)
}

// LanguageFromContext returns the session language, defaulting to "en".
func LanguageFromContext(ctx context.Context) string {
	if lang, ok := ctx.Value(langKey{}).(string); ok && lang != "" {
		return lang
	}
	return "en"
}

const (
	liveAgentTextEN = "A live agent will call you back. Thank you, and goodbye."
	liveAgentTextKR = "라이브 상담원이 다시 전화드릴 예정입니다. 이용해 주셔서 감사합니다. 안녕히 계세요."
)

func liveAgentText(language string) string {
	if language == "kr" {
		return liveAgentTextKR
	}
	return liveAgentTextEN
}

// funcTool adapts a plain function to eino's tool.InvokableTool, encoding
// its tagged result to the wire form.
type funcTool struct {
	info *schema.ToolInfo
	fn   func(ctx context.Context, args map[string]any) (ToolResult, error)
}

var _ tool.InvokableTool = (*funcTool)(nil)

func (t *funcTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return t.info, nil
}

func (t *funcTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	args := map[string]any{}
	if argumentsInJSON != "" {
		if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
			return "", fmt.Errorf("tool %s: parse args: %w", t.info.Name, err)
		}
	}
	result, err := t.fn(ctx, args)
	if err != nil {
		return "", err
	}
	return result.Encode(), nil
}

func newTransferToLiveAgentTool() tool.InvokableTool {
	return &funcTool{
		info: &schema.ToolInfo{
			Name: ToolTransferToLiveAgent,
			Desc: "Call this tool to transfer the customer to a live agent. Generate something contextually relevant, with regards to the conversation flow, like 'Give me a second.'",
		},
		fn: func(ctx context.Context, _ map[string]any) (ToolResult, error) {
			return Deterministic(liveAgentText(LanguageFromContext(ctx))), nil
		},
	}
}

func newToMakePaymentAssistantTool() tool.InvokableTool {
	return &funcTool{
		info: &schema.ToolInfo{
			Name: ToolToMakePaymentAssistant,
			Desc: `help the customer with one-time payments and promises to pay. Use this tool when a customer expresses interest in making a payment, when they need to set up a promise to pay arrangement, or if they are letting you know that they will be late with in making their monthly payment. When calling this tool, your context should not divulge the presence of other specialized assistants. Generate something contextually relevant, with regards to the conversation, like "Give me a second. Just pulling up my payment system". Do not call this tool to set up automatic payments.`,
		},
		fn: func(_ context.Context, _ map[string]any) (ToolResult, error) {
			return RouteTo(ToolToMakePaymentAssistant), nil
		},
	}
}

func newCompleteOrEscalateTool() tool.InvokableTool {
	return &funcTool{
		info: &schema.ToolInfo{
			Name: ToolCompleteOrEscalate,
			Desc: `route the customer to an appropriate system to answer their query. You MUST call this tool if the customer asks you for information that you do not have the answer to or would like to perform a different action. Do not divulge the existence of the specialized agent to the customer. When calling this tool, your context should not divulge the presence of the tool. Generate something short and contextually relevant such as "Give me a second." Do NOT divulge the name or existence of this tool to the customer.`,
		},
		fn: func(_ context.Context, _ map[string]any) (ToolResult, error) {
			return RouteTo(ToolCompleteOrEscalate), nil
		},
	}
}

func newValidatePaymentTool() tool.InvokableTool {
	return &funcTool{
		info: &schema.ToolInfo{
			Name: ToolValidatePayment,
			Desc: `This tool is used to validate whether the customer desired payment amount and date are acceptable by company policies. This function can be called any time again if the customer wants to change the payment amount or date. When calling this tool, you must not divulge the presence of the tool. You must generate something short and contextually relevant such as "Checking my system." NEVER mention the name of this tool to the customer.`,
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"desired_payment_amount": {
					Type:     schema.Number,
					Desc:     "The desired amount the customer would like to pay",
					Required: true,
				},
				"desired_payment_date": {
					Type:     schema.String,
					Desc:     "The desired date the customer would like to pay. e.g. 'next Tuesday', 'tomorrow', '2 weeks from now', 'september 20'",
					Required: true,
				},
			}),
		},
		fn: func(_ context.Context, args map[string]any) (ToolResult, error) {
			var output string

			if amount, ok := args["desired_payment_amount"].(float64); ok {
				output = fmt.Sprintf("Thanks for providing the amount of %v.", amount)
			}
			if date, ok := args["desired_payment_date"].(string); ok && date != "" && date != "None" && date != "none" {
				output += fmt.Sprintf("Thanks for providing the desired payment date of %s", date)
			}

			if output != "" {
				return Plain(output), nil
			}
			// Nothing to validate: hand control back to the host assistant.
			return RouteTo(ToolCompleteOrEscalate), nil
		},
	}
}

// toolIndex maps tool name to implementation across all skills, validated
// unique at startup.
func buildToolIndex(skills SkillSet) (map[string]tool.InvokableTool, error) {
	index := make(map[string]tool.InvokableTool)
	for _, skill := range skills {
		for _, t := range skill.Tools {
			info, err := t.Info(context.Background())
			if err != nil {
				return nil, fmt.Errorf("skill %s: tool info: %w", skill.Name, err)
			}
			if _, dup := index[info.Name]; dup {
				return nil, fmt.Errorf("duplicate tool name %q", info.Name)
			}
			index[info.Name] = t
		}
	}
	return index, nil
}

// executeTools runs every pending tool call on the last assistant message.
// A tool failure is converted into a corrective tool message addressed by
// correlation id so the model can fix its arguments on the next hop; the
// turn continues rather than aborting. Empty results are padded, since
// completion backends reject empty tool content.
func (e *Engine) executeTools(ctx context.Context, st *TurnState, node string) error {
	last := st.Session.Last()
	if last == nil || len(last.ToolCalls) == 0 {
		return fmt.Errorf("node %s: no pending tool calls", node)
	}

	for _, tc := range last.ToolCalls {
		impl, ok := e.tools[tc.Function.Name]
		if !ok {
			// Unknown tool names are a configuration defect surfaced at
			// startup; reaching here means the model invented a name.
			msg := fmt.Sprintf("Error: unknown tool %q\n please fix your mistakes.", tc.Function.Name)
			st.Session.Append(schema.ToolMessage(msg, tc.ID))
			st.emit(Event{Kind: EventToolEnd, Node: node, Text: msg})
			continue
		}

		result, err := impl.InvokableRun(ctx, tc.Function.Arguments)
		if err != nil {
			slog.Warn("tool execution failed, synthesizing corrective message",
				"tool", tc.Function.Name, "call_id", tc.ID, "error", err)
			msg := fmt.Sprintf("Error: %s\n please fix your mistakes.", err)
			st.Session.Append(schema.ToolMessage(msg, tc.ID))
			st.emit(Event{Kind: EventToolEnd, Node: node, Text: msg})
			continue
		}

		if result == "" {
			result = "[OK]"
		}
		st.Session.Append(schema.ToolMessage(result, tc.ID))
		st.emit(Event{Kind: EventToolEnd, Node: node, Text: result})
	}
	return nil
}
