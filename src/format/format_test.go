package format

import (
	"context"
	"strings"
	"testing"

	"github.com/agentforge/ollama-agent/src/models"
)

func TestFormatPromptShape(t *testing.T) {
	d := &models.DummyLLM{GenerateText: "clean answer"}
	f := New(d, models.Options{})

	got, err := f.Format(context.Background(), "raw tool output", "what is the weather?")
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if got != "clean answer" {
		t.Fatalf("got %q", got)
	}

	if len(d.GenerateCalls) != 1 {
		t.Fatalf("expected 1 generate call, got %d", len(d.GenerateCalls))
	}
	prompt := d.GenerateCalls[0]
	if !strings.HasPrefix(prompt, "raw tool output") {
		t.Fatalf("raw output missing from prompt: %q", prompt)
	}
	if !strings.Contains(prompt, "User Prompt: what is the weather?") {
		t.Fatalf("user query missing from prompt: %q", prompt)
	}
}
