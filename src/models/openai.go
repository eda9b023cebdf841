package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/agentforge/ollama-agent/src/channel"
	"github.com/agentforge/ollama-agent/src/memory"
)

// OpenAILLM targets OpenAI-compatible chat endpoints, which includes
// Ollama's own /v1 surface and hosted gateways.
type OpenAILLM struct {
	Client *openai.Client
	Model  string
}

// NewOpenAILLM builds a client for an explicit endpoint. An empty
// baseURL keeps the library default.
func NewOpenAILLM(model, baseURL, apiKey string) *OpenAILLM {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAILLM{Client: openai.NewClientWithConfig(cfg), Model: model}
}

// NewOpenAILLMFromEnv reads OPENAI_BASE_URL and OPENAI_API_KEY.
func NewOpenAILLMFromEnv(model string) *OpenAILLM {
	return NewOpenAILLM(model, os.Getenv("OPENAI_BASE_URL"), os.Getenv("OPENAI_API_KEY"))
}

func (o *OpenAILLM) Invoke(ctx context.Context, turns []memory.Turn, caps []channel.Capability, opts Options) (Response, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(turns))
	for _, t := range turns {
		messages = append(messages, openai.ChatCompletionMessage{Role: string(t.Role), Content: t.Content})
	}

	req := openai.ChatCompletionRequest{
		Model:       o.Model,
		Messages:    messages,
		Temperature: float32(opts.Temperature),
		MaxTokens:   opts.MaxTokens,
	}
	if len(caps) > 0 {
		req.Tools = OpenAITools(caps)
	}

	resp, err := o.Client.CreateChatCompletion(ctx, req)
	if err != nil {
		return Response{}, fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, errors.New("openai chat: empty choice list")
	}

	choice := resp.Choices[0].Message
	out := Response{
		Text:         choice.Content,
		PromptTokens: resp.Usage.PromptTokens,
		EvalTokens:   resp.Usage.CompletionTokens,
	}
	for _, tc := range choice.ToolCalls {
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			// Tolerate malformed argument payloads; dispatch validates names.
			_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		}
		out.ToolCalls = append(out.ToolCalls, channel.Invocation{Name: tc.Function.Name, Arguments: args})
	}
	return out, nil
}

func (o *OpenAILLM) Generate(ctx context.Context, prompt, system string, opts Options) (string, error) {
	messages := []openai.ChatCompletionMessage{}
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	resp, err := o.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.Model,
		Messages:    messages,
		Temperature: float32(opts.Temperature),
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("openai generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai generate: empty choice list")
	}
	return resp.Choices[0].Message.Content, nil
}

func (o *OpenAILLM) SupportsTools(ctx context.Context) (bool, error) {
	probe := channel.Capability{
		Name:        "get_current_weather",
		Description: "Get current weather for a city",
		Params: map[string]channel.Param{
			"city": {Type: "string", Description: "Name of city", Required: true},
		},
	}

	_, err := o.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    o.Model,
		Messages: []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: "What is the weather in New York?"}},
		Tools:    OpenAITools([]channel.Capability{probe}),
	})
	if err == nil {
		return true, nil
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && strings.Contains(apiErr.Message, "does not support tools") {
		return false, nil
	}
	return false, fmt.Errorf("probe tool support: %w", err)
}

// OpenAITools converts capabilities into OpenAI function definitions.
func OpenAITools(caps []channel.Capability) []openai.Tool {
	tools := make([]openai.Tool, 0, len(caps))
	for _, c := range caps {
		properties := map[string]any{}
		var required []string
		for name, p := range c.Params {
			typ := p.Type
			if typ == "" {
				typ = "string"
			}
			properties[name] = map[string]any{"type": typ, "description": p.Description}
			if p.Required {
				required = append(required, name)
			}
		}
		parameters := map[string]any{"type": "object", "properties": properties}
		if len(required) > 0 {
			parameters["required"] = required
		}
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        c.Name,
				Description: c.Description,
				Parameters:  parameters,
			},
		})
	}
	return tools
}
