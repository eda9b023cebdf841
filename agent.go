// Package agent orchestrates the per-query pipeline: decide whether the
// model answers directly or calls a tool, recover structured calls from
// free text, dispatch them through the capability channel and reshape
// the raw output for the user, all over a bounded durable conversation
// history.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/agentforge/ollama-agent/src/channel"
	"github.com/agentforge/ollama-agent/src/dispatch"
	"github.com/agentforge/ollama-agent/src/format"
	"github.com/agentforge/ollama-agent/src/interpret"
	"github.com/agentforge/ollama-agent/src/memory"
	"github.com/agentforge/ollama-agent/src/models"
)

// Answer tags, part of the query surface contract.
const (
	TagDirect = "Direct Response"
	TagTool   = "Tool Call Result"
)

const defaultMaxHistory = 15

const nativeSystemPrompt = `You are an AI assistant that can answer queries and call external tools when needed.

Behavior:
- If the query is about current events, news, or recent data, call google_search.
- If the query involves running commands, system checks, or file operations, call execute_cli_command or list_directory.
- If the query can be answered with your own knowledge, respond directly in plain text.

Tool usage:
- When calling a tool, reply ONLY with valid JSON (no extra text).
- JSON format (no trailing commas):
{
  "tool_name": "<tool_name>",
  "args": {
    "<arg_name>": "<value>"
  }
}

IMPORTANT: Never mix natural language with JSON tool calls.`

const textConventionPrompt = `You are an AI assistant that can call external tools to answer queries.
You CANNOT answer questions about current events or today's news using your own knowledge.
Available tools:
%s
Rules:
- If the user asks for recent info, trends, news, or data not in your knowledge, use google_search
- If the user wants to execute CLI commands, run terminal commands, check system info, list files, or perform file operations, use execute_cli_command or list_directory
- If you can answer directly with your knowledge, respond with plain text
- When using tools, respond with JSON specifying the tool to call and arguments
- JSON format (NO trailing commas):
{
  "tool_name": "<tool_to_call>",
  "args": {
    "<arg_name>": "<value>"
  }
}

IMPORTANT: Ensure valid JSON syntax - no trailing commas after the last property!`

// Options configure a new Agent. Everything is passed explicitly; the
// orchestrator holds no global state.
type Options struct {
	Invoker    models.Invoker    // primary model
	Formatter  *format.Formatter // second-pass rewrite, usually a smaller model
	Channel    channel.Channel
	Memory     *memory.Store
	MaxHistory int
	InvokeOpts models.Options
	Logger     *slog.Logger
}

// Agent runs the per-query state machine.
type Agent struct {
	invoker    models.Invoker
	formatter  *format.Formatter
	channel    channel.Channel
	memory     *memory.Store
	maxHistory int
	invokeOpts models.Options
	log        *slog.Logger
}

// New creates an Agent with the provided options.
func New(opts Options) (*Agent, error) {
	if opts.Invoker == nil {
		return nil, errors.New("agent requires a model invoker")
	}
	if opts.Channel == nil {
		return nil, errors.New("agent requires an execution channel")
	}
	if opts.Memory == nil {
		return nil, errors.New("agent requires conversation memory")
	}
	if opts.Formatter == nil {
		opts.Formatter = format.New(opts.Invoker, opts.InvokeOpts)
	}
	if opts.MaxHistory <= 0 {
		opts.MaxHistory = defaultMaxHistory
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Agent{
		invoker:    opts.Invoker,
		formatter:  opts.Formatter,
		channel:    opts.Channel,
		memory:     opts.Memory,
		maxHistory: opts.MaxHistory,
		invokeOpts: opts.InvokeOpts,
		log:        opts.Logger,
	}, nil
}

// HandleQuery runs one query through the state machine and returns a
// tagged answer. Every component fault surfaces as a single wrapped
// error here; nothing deeper escapes to callers.
func (a *Agent) HandleQuery(ctx context.Context, query string) (string, error) {
	answer, err := a.handle(ctx, query)
	if err != nil {
		a.log.Error("query failed", "error", err)
		return "", fmt.Errorf("process query: %w", err)
	}
	return answer, nil
}

func (a *Agent) handle(ctx context.Context, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", errors.New("query is empty")
	}

	if err := a.memory.Load(); err != nil {
		return "", err
	}

	caps, err := a.channel.Capabilities(ctx)
	if err != nil {
		return "", fmt.Errorf("discover capabilities: %w", err)
	}

	// Re-evaluated on every query; callers wanting a cached probe wrap
	// the invoker (models.CachedInvoker).
	native, err := a.invoker.SupportsTools(ctx)
	if err != nil {
		return "", err
	}
	a.log.Debug("capability probe", "native_tools", native, "capabilities", len(caps))

	if native {
		a.memory.EnsureSystem(nativeSystemPrompt)
	} else {
		a.memory.EnsureSystem(fmt.Sprintf(textConventionPrompt, channel.Listing(caps)))
	}
	a.memory.Append(memory.Turn{Role: memory.RoleUser, Content: query})

	var invokeCaps []channel.Capability
	if native {
		invokeCaps = caps
	}
	resp, err := a.invoker.Invoke(ctx, a.memory.Turns(), invokeCaps, a.invokeOpts)
	if err != nil {
		return "", err
	}
	a.log.Debug("model response", "text", resp.Text, "tool_calls", len(resp.ToolCalls),
		"prompt_tokens", resp.PromptTokens, "eval_tokens", resp.EvalTokens)

	a.memory.Append(memory.Turn{Role: memory.RoleAssistant, Content: resp.Text})
	a.memory.Truncate(a.maxHistory)
	if err := a.memory.Persist(); err != nil {
		return "", err
	}

	if resp.HasToolCalls() {
		// When the model returns several calls each one is dispatched in
		// order, but only the last result is kept.
		var output string
		for _, inv := range resp.ToolCalls {
			output, err = dispatch.Dispatch(ctx, inv, a.channel)
			if err != nil {
				return "", err
			}
		}
		return a.finishToolCall(ctx, output, query)
	}

	inv, reason := interpret.ExtractDetail(resp.Text)
	switch reason {
	case interpret.ReasonCall:
		a.log.Debug("extracted tool call", "tool", inv.Name, "args", inv.Arguments)
		output, err := dispatch.Dispatch(ctx, inv, a.channel)
		if err != nil {
			return "", err
		}
		return a.finishToolCall(ctx, output, query)
	case interpret.ReasonNoParse:
		a.log.Warn("response looked like a tool call but did not parse", "text", resp.Text)
	}
	return fmt.Sprintf("%s:\n\n%s", TagDirect, resp.Text), nil
}

// finishToolCall always runs the formatter, even over the no-signal
// message, then tags the answer.
func (a *Agent) finishToolCall(ctx context.Context, rawOutput, query string) (string, error) {
	formatted, err := a.formatter.Format(ctx, rawOutput, query)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:\n\n%s", TagTool, formatted), nil
}

// ClearMemory drops the conversation history, optionally keeping the
// leading system turn.
func (a *Agent) ClearMemory(keepSystem bool) error {
	if err := a.memory.Load(); err != nil {
		return err
	}
	return a.memory.Clear(keepSystem)
}

// ViewMemory renders the current history for display.
func (a *Agent) ViewMemory() (string, error) {
	if err := a.memory.Load(); err != nil {
		return "", err
	}
	return a.memory.Describe(), nil
}

// MemoryStats counts turns per role.
func (a *Agent) MemoryStats() (memory.Stats, error) {
	if err := a.memory.Load(); err != nil {
		return memory.Stats{}, err
	}
	return a.memory.Stats(), nil
}
