package models

import (
	"context"
	"errors"

	"github.com/agentforge/ollama-agent/src/channel"
	"github.com/agentforge/ollama-agent/src/memory"
)

// ErrToolsUnsupported marks the one probe failure that is not an error:
// the model runtime rejected the synthetic tool-enabled request because
// the model lacks native tool calling.
var ErrToolsUnsupported = errors.New("model does not support tools")

// Options tune a single model call.
type Options struct {
	Temperature float64
	MaxTokens   int
}

// Response is the outcome of one multi-turn model call: either native
// tool calls or free text, never both meaningfully. Token counts ride
// along for bookkeeping.
type Response struct {
	Text         string
	ToolCalls    []channel.Invocation
	PromptTokens int
	EvalTokens   int
}

// HasToolCalls reports whether the model chose the native tool path.
func (r Response) HasToolCalls() bool { return len(r.ToolCalls) > 0 }

// Invoker is a language-model runtime client.
type Invoker interface {
	// Invoke runs a multi-turn call over the conversation history.
	// Capability definitions are attached natively when provided.
	Invoke(ctx context.Context, turns []memory.Turn, caps []channel.Capability, opts Options) (Response, error)

	// Generate is a memoryless one-shot call.
	Generate(ctx context.Context, prompt, system string, opts Options) (string, error)

	// SupportsTools probes the runtime with a minimal synthetic
	// tool-enabled request. It reports false only when the rejection is
	// specifically the unsupported-feature kind; any other failure is
	// returned as an error.
	SupportsTools(ctx context.Context) (bool, error)
}

// NewProvider returns a concrete Invoker for the named provider.
func NewProvider(provider, model string) (Invoker, error) {
	switch provider {
	case "ollama", "":
		return NewOllamaLLM(model)
	case "openai":
		return NewOpenAILLMFromEnv(model), nil
	default:
		return nil, errors.New("unknown provider: " + provider)
	}
}
