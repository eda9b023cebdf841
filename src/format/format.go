// Package format rewrites raw tool output into a user-facing answer via
// a second, memoryless model pass.
package format

import (
	"context"
	"fmt"

	"github.com/agentforge/ollama-agent/src/models"
)

const instruction = `You are a small AI assistant. Your job is to process the raw output returned by external tools and present it to the user in a clear, concise, and user-friendly way.

Rules:
- Always focus on answering the user's original query directly and clearly.
- Summarize or reformat the tool output so it is easy to understand.
- Keep the answer concise and remove irrelevant or redundant details.
- If the tool output contains unrelated information, ignore it unless it directly helps answer the query.
- Use plain text, bullet points, or JSON if structured output is requested.
- Never invent new information; stick strictly to the tool output.
- Ensure tone is factual, neutral, and helpful.`

// Formatter drives the second-pass rewrite with a fixed instruction.
type Formatter struct {
	Invoker models.Invoker
	Options models.Options
}

// New builds a formatter over the given (typically smaller) model.
func New(invoker models.Invoker, opts models.Options) *Formatter {
	return &Formatter{Invoker: invoker, Options: opts}
}

// Format compresses and clarifies raw tool output relative to the
// user's query. The model's text is returned unmodified; no memory is
// touched.
func (f *Formatter) Format(ctx context.Context, rawOutput, userQuery string) (string, error) {
	prompt := fmt.Sprintf("%s\n\n User Prompt: %s", rawOutput, userQuery)
	text, err := f.Invoker.Generate(ctx, prompt, instruction, f.Options)
	if err != nil {
		return "", fmt.Errorf("format tool output: %w", err)
	}
	return text, nil
}
