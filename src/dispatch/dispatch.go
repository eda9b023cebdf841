// Package dispatch executes tool invocations through the capability
// channel and collapses heterogeneous result shapes into one text
// contract.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/agentforge/ollama-agent/src/channel"
)

// NoSignal replaces outputs that carry no usable content.
const NoSignal = "No relevant results from tool call."

// Dispatch runs one invocation on the channel and normalizes the
// result. Channel-level failures are returned to the caller untouched;
// normalization itself never fails.
func Dispatch(ctx context.Context, inv channel.Invocation, ch channel.Channel) (string, error) {
	if strings.TrimSpace(inv.Name) == "" {
		return "", errors.New("dispatch: tool name is empty")
	}
	if inv.Arguments == nil {
		inv.Arguments = map[string]any{}
	}

	result, err := ch.Call(ctx, inv.Name, inv.Arguments)
	if err != nil {
		return "", err
	}
	return Normalize(result), nil
}

// Normalize flattens a channel result to text: content parts first,
// then a structured "result" field, then the raw rendering. Outputs
// that look empty are replaced with the no-signal message.
func Normalize(result channel.Result) string {
	if len(result.Parts) > 0 {
		parts := make([]string, 0, len(result.Parts))
		for _, p := range result.Parts {
			parts = append(parts, renderPart(p))
		}
		text := strings.Join(parts, "\n")
		if !looksEmpty(text) {
			return text
		}
	}

	if result.Structured != nil {
		if value, ok := result.Structured["result"]; ok {
			return fmt.Sprint(value)
		}
	}

	if !looksEmpty(result.Raw) {
		return result.Raw
	}
	return NoSignal
}

func renderPart(p channel.ResultPart) string {
	switch p.Kind {
	case channel.PartText:
		return p.Text
	case channel.PartImage:
		return "[Image content]"
	case channel.PartAudio:
		return "[Audio content]"
	case channel.PartResource:
		uri := p.URI
		if uri == "" {
			uri = "Unknown"
		}
		return fmt.Sprintf("[Resource: %s]", uri)
	default:
		return p.Raw
	}
}

func looksEmpty(text string) bool {
	switch text {
	case "", "[]", "No results":
		return true
	}
	return false
}
