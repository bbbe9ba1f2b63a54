package dialog

import "strings"

// Tool results travel over the wire as plain text; two reserved markers let a
// tool short-circuit the model loop. The markers are parsed exactly once, at
// this boundary, into a tagged ToolResult. Nothing downstream sniffs strings.
const (
	deterministicMarker = "DETERMINISTIC"
	routeMarker         = "ROUTE "
)

// ResultKind tags a tool result.
type ResultKind int

const (
	// ResultPlain is an ordinary textual result fed back to the model.
	ResultPlain ResultKind = iota
	// ResultDeterministic means the tool already produced the final
	// user-facing text; no further model call is needed.
	ResultDeterministic
	// ResultRouteTo transfers control to the named skill or tool node.
	ResultRouteTo
)

func (k ResultKind) String() string {
	switch k {
	case ResultDeterministic:
		return "deterministic"
	case ResultRouteTo:
		return "route-to"
	default:
		return "plain"
	}
}

// ToolResult is the tagged form of a tool's textual output.
type ToolResult struct {
	Kind   ResultKind
	Text   string
	Target string // route destination, ResultRouteTo only
}

// Plain wraps text in a plain result.
func Plain(text string) ToolResult {
	return ToolResult{Kind: ResultPlain, Text: text}
}

// Deterministic wraps final user-facing text.
func Deterministic(text string) ToolResult {
	return ToolResult{Kind: ResultDeterministic, Text: text}
}

// RouteTo transfers control to the named destination.
func RouteTo(target string) ToolResult {
	return ToolResult{Kind: ResultRouteTo, Target: target}
}

// Encode renders the result to its wire form.
func (r ToolResult) Encode() string {
	switch r.Kind {
	case ResultDeterministic:
		return deterministicMarker + " " + r.Text
	case ResultRouteTo:
		return routeMarker + r.Target
	default:
		return r.Text
	}
}

// ParseToolResult decodes a wire-form tool result. The deterministic marker
// is checked first: a result carrying both markers is deterministic.
func ParseToolResult(text string) ToolResult {
	if strings.Contains(text, deterministicMarker) {
		return ToolResult{Kind: ResultDeterministic, Text: StripMarkers(text)}
	}
	if idx := strings.LastIndex(text, routeMarker); idx >= 0 {
		target := strings.TrimSpace(text[idx+len(routeMarker):])
		if target != "" {
			return ToolResult{Kind: ResultRouteTo, Target: target}
		}
	}
	return ToolResult{Kind: ResultPlain, Text: text}
}

// StripMarkers removes the deterministic marker from text and trims the
// surrounding whitespace.
func StripMarkers(text string) string {
	return strings.TrimSpace(strings.ReplaceAll(text, deterministicMarker, ""))
}
