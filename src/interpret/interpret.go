// Package interpret recovers structured tool invocations from free-form
// model output. Model text is adversarial: extraction degrades through
// independent strategies instead of failing, and descriptive prose must
// never be mistaken for a call.
package interpret

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/agentforge/ollama-agent/src/channel"
)

// Reason explains why Extract produced no invocation.
type Reason int

const (
	// ReasonCall means an invocation was extracted.
	ReasonCall Reason = iota
	// ReasonProse means the text carries no JSON markers at all and is a
	// plain direct answer.
	ReasonProse
	// ReasonNoParse means the text looked JSON-like but no candidate
	// survived parsing; an observability signal, not an error.
	ReasonNoParse
)

var (
	// Smallest flat {...} span holding "tool_name". Nested braces inside
	// arguments defeat this pattern; that limitation is intentional and
	// covered by the fenced-block and scrape strategies.
	flatBraceRe = regexp.MustCompile(`(?s)\{[^{}]*"tool_name"[^{}]*\}`)

	// Fenced code block, optionally language-tagged.
	fenceRe = regexp.MustCompile("(?s)```(?:[a-zA-Z0-9_-]+)?\\s*\n?(.*?)\n?```")

	// Legacy looser retry: allows opening braces inside the span.
	looseBraceRe = regexp.MustCompile(`(?s)\{[^}]*"tool_name"[^}]*\}`)

	trailingCommaObjRe = regexp.MustCompile(`,\s*}`)
	trailingCommaArrRe = regexp.MustCompile(`,\s*]`)

	scrapeToolRe  = regexp.MustCompile(`"tool_name"\s*:\s*"([^"]+)"`)
	scrapeQueryRe = regexp.MustCompile(`"query"\s*:\s*"([^"]+)"`)
)

// Extract attempts to recover a tool invocation from model text.
// Strategies run in strict priority order: a flat brace span outside
// fenced code, then a fenced block body, then a looser brace retry,
// then a narrow regex scrape once JSON parsing has failed. The flat
// scanner cannot recover nested-object arguments.
func Extract(text string) (channel.Invocation, bool) {
	inv, reason := ExtractDetail(text)
	return inv, reason == ReasonCall
}

// ExtractDetail is Extract plus the classification of the no-call case,
// distinguishing plain prose from a failed parse.
func ExtractDetail(text string) (channel.Invocation, Reason) {
	candidate, found := findCandidate(text)
	if !found {
		if hasJSONMarkers(text) {
			return channel.Invocation{}, ReasonNoParse
		}
		return channel.Invocation{}, ReasonProse
	}

	if inv, ok := parseCandidate(candidate); ok {
		return inv, ReasonCall
	}
	if inv, ok := scrape(text); ok {
		return inv, ReasonCall
	}
	return channel.Invocation{}, ReasonNoParse
}

// Render produces the free-text wire shape for an invocation, fenced the
// way tool-capable models are prompted to reply.
func Render(inv channel.Invocation) string {
	args := inv.Arguments
	if args == nil {
		args = map[string]any{}
	}
	payload := struct {
		ToolName string         `json:"tool_name"`
		Args     map[string]any `json:"args"`
	}{ToolName: inv.Name, Args: args}

	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte(fmt.Sprintf(`{"tool_name":%q,"args":{}}`, inv.Name))
	}
	return "```json\n" + string(data) + "\n```"
}

func findCandidate(text string) (string, bool) {
	// Stage 1: flat span outside fenced code.
	if m := flatBraceRe.FindString(stripFences(text)); m != "" {
		return strings.TrimSpace(m), true
	}
	// Stage 2: fenced block body.
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		body := strings.TrimSpace(m[1])
		if body != "" {
			return body, true
		}
	}
	// Stage 3: legacy loose retry over the raw text.
	if m := looseBraceRe.FindString(text); m != "" {
		return strings.TrimSpace(m), true
	}
	return "", false
}

func stripFences(text string) string {
	return fenceRe.ReplaceAllString(text, "")
}

func hasJSONMarkers(text string) bool {
	if strings.Contains(text, "```") {
		return true
	}
	return strings.Contains(text, "{") && strings.Contains(text, `"tool_name"`)
}

// repair strips trailing commas before closing braces and brackets, the
// one malformation models produce constantly.
func repair(candidate string) string {
	candidate = trailingCommaObjRe.ReplaceAllString(candidate, "}")
	candidate = trailingCommaArrRe.ReplaceAllString(candidate, "]")
	return candidate
}

func parseCandidate(candidate string) (channel.Invocation, bool) {
	repaired := repair(candidate)
	if !gjson.Valid(repaired) {
		return channel.Invocation{}, false
	}

	parsed := gjson.Parse(repaired)
	name := parsed.Get("tool_name")
	if name.Type != gjson.String || name.Str == "" {
		return channel.Invocation{}, false
	}

	args := map[string]any{}
	if raw := parsed.Get("args"); raw.IsObject() {
		if m, ok := raw.Value().(map[string]any); ok {
			args = m
		}
	}
	return channel.Invocation{Name: name.Str, Arguments: args}, true
}

// scrape recovers exactly tool_name plus an optional query argument from
// otherwise unparsable text.
func scrape(text string) (channel.Invocation, bool) {
	tool := scrapeToolRe.FindStringSubmatch(text)
	if tool == nil {
		return channel.Invocation{}, false
	}
	args := map[string]any{}
	if query := scrapeQueryRe.FindStringSubmatch(text); query != nil {
		args["query"] = query[1]
	}
	return channel.Invocation{Name: tool[1], Arguments: args}, true
}
