package agent

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/agentforge/ollama-agent/src/channel"
	"github.com/agentforge/ollama-agent/src/dispatch"
	"github.com/agentforge/ollama-agent/src/memory"
	"github.com/agentforge/ollama-agent/src/models"
)

// fakeChannel advertises a fixed capability set and records invocations.
type fakeChannel struct {
	caps    []channel.Capability
	results map[string]channel.Result
	callErr error
	calls   []channel.Invocation
}

func (f *fakeChannel) Capabilities(context.Context) ([]channel.Capability, error) {
	return f.caps, nil
}

func (f *fakeChannel) Call(_ context.Context, name string, args map[string]any) (channel.Result, error) {
	f.calls = append(f.calls, channel.Invocation{Name: name, Arguments: args})
	if f.callErr != nil {
		return channel.Result{}, f.callErr
	}
	return f.results[name], nil
}

func (f *fakeChannel) Close() error { return nil }

func listDirCap() channel.Capability {
	return channel.Capability{
		Name:        "list_directory",
		Description: "List directory contents",
		Params: map[string]channel.Param{
			"path": {Type: "string", Description: "directory to list", Required: true},
		},
	}
}

func newTestAgent(t *testing.T, model *models.DummyLLM, ch channel.Channel) *Agent {
	t.Helper()
	a, err := New(Options{
		Invoker: model,
		Channel: ch,
		Memory:  memory.NewStore(filepath.Join(t.TempDir(), "memory.json")),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestNewValidation(t *testing.T) {
	ch := &fakeChannel{}
	mem := memory.NewStore(filepath.Join(t.TempDir(), "memory.json"))

	if _, err := New(Options{Channel: ch, Memory: mem}); err == nil {
		t.Fatal("expected error without invoker")
	}
	if _, err := New(Options{Invoker: &models.DummyLLM{}, Memory: mem}); err == nil {
		t.Fatal("expected error without channel")
	}
	if _, err := New(Options{Invoker: &models.DummyLLM{}, Channel: ch}); err == nil {
		t.Fatal("expected error without memory")
	}
}

func TestHandleQueryEmpty(t *testing.T) {
	a := newTestAgent(t, &models.DummyLLM{Script: []models.Response{{Text: "x"}}}, &fakeChannel{})
	if _, err := a.HandleQuery(context.Background(), "   "); err == nil {
		t.Fatal("expected error for empty query")
	}
}

func TestDirectAnswer(t *testing.T) {
	model := &models.DummyLLM{Script: []models.Response{{Text: "2+2 equals 4."}}}
	ch := &fakeChannel{caps: []channel.Capability{listDirCap()}}
	a := newTestAgent(t, model, ch)

	got, err := a.HandleQuery(context.Background(), "What is 2+2?")
	if err != nil {
		t.Fatalf("HandleQuery: %v", err)
	}
	if got != TagDirect+":\n\n2+2 equals 4." {
		t.Fatalf("unexpected answer: %q", got)
	}
	if len(ch.calls) != 0 {
		t.Fatalf("dispatcher must not run on the direct path, got %d calls", len(ch.calls))
	}
	if len(model.GenerateCalls) != 0 {
		t.Fatal("formatter must not run on the direct path")
	}
}

func TestTextConventionToolCall(t *testing.T) {
	model := &models.DummyLLM{
		Script: []models.Response{
			{Text: "```json\n{\"tool_name\": \"list_directory\", \"args\": {\"path\": \"/tmp\"}}\n```"},
		},
		GenerateText: "The directory holds two files.",
	}
	ch := &fakeChannel{
		caps: []channel.Capability{listDirCap()},
		results: map[string]channel.Result{
			"list_directory": {Parts: []channel.ResultPart{{Kind: channel.PartText, Text: "a.txt\nb.txt"}}},
		},
	}
	a := newTestAgent(t, model, ch)

	got, err := a.HandleQuery(context.Background(), "What is in /tmp?")
	if err != nil {
		t.Fatalf("HandleQuery: %v", err)
	}
	if got != TagTool+":\n\nThe directory holds two files." {
		t.Fatalf("unexpected answer: %q", got)
	}

	if len(ch.calls) != 1 {
		t.Fatalf("expected 1 dispatch, got %d", len(ch.calls))
	}
	call := ch.calls[0]
	if call.Name != "list_directory" || call.Arguments["path"] != "/tmp" {
		t.Fatalf("unexpected dispatch: %+v", call)
	}

	// The formatter saw the normalized tool output and the query.
	if len(model.GenerateCalls) != 1 {
		t.Fatalf("expected 1 formatter call, got %d", len(model.GenerateCalls))
	}
	prompt := model.GenerateCalls[0]
	if !strings.Contains(prompt, "a.txt\nb.txt") || !strings.Contains(prompt, "What is in /tmp?") {
		t.Fatalf("formatter prompt incomplete: %q", prompt)
	}

	// Without native tool support the system prompt embeds the listing
	// and no capability definitions ride on the model call.
	turns := model.InvokeCalls[0]
	if turns[0].Role != memory.RoleSystem || !strings.Contains(turns[0].Content, "list_directory") {
		t.Fatalf("text-convention system prompt missing: %+v", turns[0])
	}
	if len(model.InvokeCaps[0]) != 0 {
		t.Fatal("capabilities must not be attached without native support")
	}
}

func TestNativeToolCallLastResultWins(t *testing.T) {
	model := &models.DummyLLM{
		ToolSupport: true,
		Script: []models.Response{
			{ToolCalls: []channel.Invocation{
				{Name: "google_search", Arguments: map[string]any{"query": "first"}},
				{Name: "list_directory", Arguments: map[string]any{"path": "/"}},
			}},
		},
		GenerateText: "final answer",
	}
	ch := &fakeChannel{
		caps: []channel.Capability{listDirCap()},
		results: map[string]channel.Result{
			"google_search":  {Raw: "search output"},
			"list_directory": {Raw: "listing output"},
		},
	}
	a := newTestAgent(t, model, ch)

	got, err := a.HandleQuery(context.Background(), "do both")
	if err != nil {
		t.Fatalf("HandleQuery: %v", err)
	}
	if !strings.HasPrefix(got, TagTool+":") {
		t.Fatalf("unexpected tag: %q", got)
	}

	if len(ch.calls) != 2 {
		t.Fatalf("expected both calls dispatched, got %d", len(ch.calls))
	}
	// Only the last result reaches the formatter.
	if !strings.Contains(model.GenerateCalls[0], "listing output") {
		t.Fatalf("last result missing: %q", model.GenerateCalls[0])
	}
	if strings.Contains(model.GenerateCalls[0], "search output") {
		t.Fatalf("earlier result leaked: %q", model.GenerateCalls[0])
	}

	// Native support attaches capability definitions.
	if len(model.InvokeCaps[0]) != 1 {
		t.Fatalf("capabilities not attached: %v", model.InvokeCaps[0])
	}
}

func TestUnparsableToolishTextFallsBackToDirect(t *testing.T) {
	model := &models.DummyLLM{
		Script: []models.Response{{Text: "```json\n{\"name\": \"broken\"}\n```"}},
	}
	ch := &fakeChannel{caps: []channel.Capability{listDirCap()}}
	a := newTestAgent(t, model, ch)

	got, err := a.HandleQuery(context.Background(), "hm")
	if err != nil {
		t.Fatalf("HandleQuery: %v", err)
	}
	if !strings.HasPrefix(got, TagDirect+":") {
		t.Fatalf("expected direct fallback, got %q", got)
	}
	if len(ch.calls) != 0 {
		t.Fatal("failed parse must not dispatch")
	}
}

func TestEmptyToolOutputStillFormatted(t *testing.T) {
	model := &models.DummyLLM{
		Script: []models.Response{
			{Text: `{"tool_name": "list_directory", "args": {"path": "/empty"}}`},
		},
		GenerateText: "Nothing was found.",
	}
	ch := &fakeChannel{
		caps:    []channel.Capability{listDirCap()},
		results: map[string]channel.Result{"list_directory": {Raw: "[]"}},
	}
	a := newTestAgent(t, model, ch)

	got, err := a.HandleQuery(context.Background(), "anything in /empty?")
	if err != nil {
		t.Fatalf("HandleQuery: %v", err)
	}
	if !strings.HasPrefix(got, TagTool+":") {
		t.Fatalf("unexpected tag: %q", got)
	}
	if !strings.Contains(model.GenerateCalls[0], dispatch.NoSignal) {
		t.Fatalf("no-signal message must pass through the formatter: %q", model.GenerateCalls[0])
	}
}

func TestChannelFailureSurfacesAsError(t *testing.T) {
	wantErr := errors.New("server crashed")
	model := &models.DummyLLM{
		Script: []models.Response{
			{Text: `{"tool_name": "list_directory", "args": {"path": "/"}}`},
		},
	}
	ch := &fakeChannel{caps: []channel.Capability{listDirCap()}, callErr: wantErr}
	a := newTestAgent(t, model, ch)

	_, err := a.HandleQuery(context.Background(), "list it")
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected channel error, got %v", err)
	}
}

func TestMemoryPersistsAcrossQueries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.json")
	model := &models.DummyLLM{Script: []models.Response{{Text: "answer"}}}
	ch := &fakeChannel{caps: []channel.Capability{listDirCap()}}

	a, err := New(Options{Invoker: model, Channel: ch, Memory: memory.NewStore(path)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := a.HandleQuery(context.Background(), "first question"); err != nil {
		t.Fatalf("HandleQuery: %v", err)
	}

	// A second agent over the same snapshot sees the prior conversation.
	b, err := New(Options{Invoker: model, Channel: ch, Memory: memory.NewStore(path)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := b.HandleQuery(context.Background(), "second question"); err != nil {
		t.Fatalf("HandleQuery: %v", err)
	}

	st, err := b.MemoryStats()
	if err != nil {
		t.Fatalf("MemoryStats: %v", err)
	}
	if st.System != 1 {
		t.Fatalf("expected exactly 1 system turn, got %d", st.System)
	}
	if st.User != 2 || st.Assistant != 2 {
		t.Fatalf("unexpected stats: %+v", st)
	}

	out, err := b.ViewMemory()
	if err != nil {
		t.Fatalf("ViewMemory: %v", err)
	}
	if !strings.Contains(out, "first question") || !strings.Contains(out, "second question") {
		t.Fatalf("history incomplete:\n%s", out)
	}
}

func TestHistoryBounded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.json")
	model := &models.DummyLLM{Script: []models.Response{{Text: "answer"}}}
	ch := &fakeChannel{caps: []channel.Capability{listDirCap()}}

	a, err := New(Options{
		Invoker:    model,
		Channel:    ch,
		Memory:     memory.NewStore(path),
		MaxHistory: 5,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for i := 0; i < 10; i++ {
		if _, err := a.HandleQuery(context.Background(), "question"); err != nil {
			t.Fatalf("HandleQuery: %v", err)
		}
	}

	st, err := a.MemoryStats()
	if err != nil {
		t.Fatalf("MemoryStats: %v", err)
	}
	if st.Total > 5 {
		t.Fatalf("history exceeded bound: %d turns", st.Total)
	}
	if st.System != 1 {
		t.Fatalf("system turn lost under truncation: %+v", st)
	}
}

func TestClearMemory(t *testing.T) {
	model := &models.DummyLLM{Script: []models.Response{{Text: "answer"}}}
	ch := &fakeChannel{caps: []channel.Capability{listDirCap()}}
	a := newTestAgent(t, model, ch)

	if _, err := a.HandleQuery(context.Background(), "q"); err != nil {
		t.Fatalf("HandleQuery: %v", err)
	}
	if err := a.ClearMemory(true); err != nil {
		t.Fatalf("ClearMemory: %v", err)
	}
	st, err := a.MemoryStats()
	if err != nil {
		t.Fatalf("MemoryStats: %v", err)
	}
	if st.Total != 1 || st.System != 1 {
		t.Fatalf("expected only the system turn, got %+v", st)
	}

	if err := a.ClearMemory(false); err != nil {
		t.Fatalf("ClearMemory: %v", err)
	}
	st, _ = a.MemoryStats()
	if st.Total != 0 {
		t.Fatalf("expected empty memory, got %+v", st)
	}
}

func TestNativePromptOmitsListing(t *testing.T) {
	model := &models.DummyLLM{
		ToolSupport: true,
		Script:      []models.Response{{Text: "plain answer"}},
	}
	ch := &fakeChannel{caps: []channel.Capability{listDirCap()}}
	a := newTestAgent(t, model, ch)

	if _, err := a.HandleQuery(context.Background(), "q"); err != nil {
		t.Fatalf("HandleQuery: %v", err)
	}
	turns := model.InvokeCalls[0]
	if turns[0].Role != memory.RoleSystem {
		t.Fatalf("system turn missing: %+v", turns)
	}
	if strings.Contains(turns[0].Content, "Args:") {
		t.Fatal("native prompt must not embed the capability listing")
	}
}
