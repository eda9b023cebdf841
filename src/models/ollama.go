package models

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/agentforge/ollama-agent/src/channel"
	"github.com/agentforge/ollama-agent/src/memory"
)

// OllamaLLM talks to an Ollama runtime over its native API.
type OllamaLLM struct {
	Client *api.Client
	Model  string
}

// NewOllamaLLM builds a client for the given model, honoring OLLAMA_HOST.
func NewOllamaLLM(model string) (*OllamaLLM, error) {
	host := os.Getenv("OLLAMA_HOST")
	if host == "" {
		host = "http://localhost:11434"
	}

	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid OLLAMA_HOST %q: %w", host, err)
	}

	httpClient := &http.Client{Timeout: 120 * time.Second}
	return &OllamaLLM{Client: api.NewClient(u, httpClient), Model: model}, nil
}

// Invoke runs a non-streaming chat call over the full history. When
// capabilities are provided they are attached as native tool definitions.
func (o *OllamaLLM) Invoke(ctx context.Context, turns []memory.Turn, caps []channel.Capability, opts Options) (Response, error) {
	messages := make([]api.Message, 0, len(turns))
	for _, t := range turns {
		messages = append(messages, api.Message{Role: string(t.Role), Content: t.Content})
	}

	stream := false
	req := &api.ChatRequest{
		Model:    o.Model,
		Messages: messages,
		Stream:   &stream,
		Options:  callOptions(opts),
	}
	if len(caps) > 0 {
		req.Tools = OllamaTools(caps)
	}

	var out Response
	err := o.Client.Chat(ctx, req, func(resp api.ChatResponse) error {
		out.Text = resp.Message.Content
		out.PromptTokens = resp.Metrics.PromptEvalCount
		out.EvalTokens = resp.Metrics.EvalCount
		for _, tc := range resp.Message.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, channel.Invocation{
				Name:      tc.Function.Name,
				Arguments: map[string]any(tc.Function.Arguments),
			})
		}
		return nil
	})
	if err != nil {
		return Response{}, fmt.Errorf("ollama chat: %w", err)
	}
	return out, nil
}

// Generate is a memoryless one-shot completion with a system instruction.
func (o *OllamaLLM) Generate(ctx context.Context, prompt, system string, opts Options) (string, error) {
	stream := false
	req := &api.GenerateRequest{
		Model:   o.Model,
		Prompt:  prompt,
		System:  system,
		Stream:  &stream,
		Options: callOptions(opts),
	}

	var text strings.Builder
	err := o.Client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		text.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	return text.String(), nil
}

// SupportsTools issues a minimal synthetic tool-enabled chat request.
// The runtime rejects models without native tool calling with a
// descriptive 400; only that rejection reports false.
func (o *OllamaLLM) SupportsTools(ctx context.Context) (bool, error) {
	probe := channel.Capability{
		Name:        "get_current_weather",
		Description: "Get current weather for a city",
		Params: map[string]channel.Param{
			"city": {Type: "string", Description: "Name of city", Required: true},
		},
	}

	stream := false
	req := &api.ChatRequest{
		Model:    o.Model,
		Messages: []api.Message{{Role: "user", Content: "What is the weather in New York?"}},
		Tools:    OllamaTools([]channel.Capability{probe}),
		Stream:   &stream,
	}

	err := o.Client.Chat(ctx, req, func(api.ChatResponse) error { return nil })
	if err == nil {
		return true, nil
	}

	var statusErr api.StatusError
	if errors.As(err, &statusErr) && strings.Contains(statusErr.ErrorMessage, "does not support tools") {
		return false, nil
	}
	return false, fmt.Errorf("probe tool support: %w", err)
}

// OllamaTools converts discovered capabilities into the machine
// tool-definition list the Ollama chat API expects.
func OllamaTools(caps []channel.Capability) api.Tools {
	tools := make(api.Tools, 0, len(caps))
	for _, c := range caps {
		var tool api.Tool
		tool.Type = "function"
		tool.Function.Name = c.Name
		tool.Function.Description = c.Description
		tool.Function.Parameters.Type = "object"

		props := make(map[string]api.ToolProperty, len(c.Params))
		var required []string
		for name, p := range c.Params {
			typ := p.Type
			if typ == "" {
				typ = "string"
			}
			props[name] = api.ToolProperty{
				Type:        api.PropertyType{typ},
				Description: p.Description,
			}
			if p.Required {
				required = append(required, name)
			}
		}
		tool.Function.Parameters.Properties = props
		tool.Function.Parameters.Required = required
		tools = append(tools, tool)
	}
	return tools
}

func callOptions(opts Options) map[string]any {
	options := map[string]any{}
	if opts.Temperature > 0 {
		options["temperature"] = opts.Temperature
	}
	if opts.MaxTokens > 0 {
		options["num_predict"] = opts.MaxTokens
	}
	return options
}
