package dispatch

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/agentforge/ollama-agent/src/channel"
)

// fakeChannel returns a canned result and records the call.
type fakeChannel struct {
	result   channel.Result
	err      error
	lastName string
	lastArgs map[string]any
}

func (f *fakeChannel) Capabilities(context.Context) ([]channel.Capability, error) {
	return nil, nil
}

func (f *fakeChannel) Call(_ context.Context, name string, args map[string]any) (channel.Result, error) {
	f.lastName = name
	f.lastArgs = args
	return f.result, f.err
}

func (f *fakeChannel) Close() error { return nil }

func TestDispatchEmptyNameFails(t *testing.T) {
	_, err := Dispatch(context.Background(), channel.Invocation{Name: "  "}, &fakeChannel{})
	if err == nil {
		t.Fatal("expected error for empty tool name")
	}
}

func TestDispatchNilArgsBecomeEmptyMap(t *testing.T) {
	ch := &fakeChannel{result: channel.Result{Raw: "ok"}}
	if _, err := Dispatch(context.Background(), channel.Invocation{Name: "t"}, ch); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if ch.lastArgs == nil {
		t.Fatal("nil args must be passed as an empty map")
	}
}

func TestDispatchPropagatesChannelError(t *testing.T) {
	wantErr := errors.New("transport down")
	ch := &fakeChannel{err: wantErr}
	_, err := Dispatch(context.Background(), channel.Invocation{Name: "t"}, ch)
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected channel error, got %v", err)
	}
}

func TestNormalizeTextParts(t *testing.T) {
	got := Normalize(channel.Result{
		Parts: []channel.ResultPart{
			{Kind: channel.PartText, Text: "line one"},
			{Kind: channel.PartText, Text: "line two"},
		},
	})
	if got != "line one\nline two" {
		t.Fatalf("unexpected normalization: %q", got)
	}
}

func TestNormalizePlaceholders(t *testing.T) {
	got := Normalize(channel.Result{
		Parts: []channel.ResultPart{
			{Kind: channel.PartImage},
			{Kind: channel.PartAudio},
			{Kind: channel.PartResource, URI: "file:///tmp/x"},
			{Kind: channel.PartResource},
		},
	})
	want := "[Image content]\n[Audio content]\n[Resource: file:///tmp/x]\n[Resource: Unknown]"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestNormalizeUnknownPartUsesRaw(t *testing.T) {
	got := Normalize(channel.Result{
		Parts: []channel.ResultPart{{Kind: channel.PartUnknown, Raw: "mystery payload"}},
	})
	if got != "mystery payload" {
		t.Fatalf("got %q", got)
	}
}

func TestNormalizeStructuredResultField(t *testing.T) {
	got := Normalize(channel.Result{
		Structured: map[string]any{"result": "42 files"},
		Raw:        `{"result":"42 files"}`,
	})
	if got != "42 files" {
		t.Fatalf("got %q", got)
	}
}

func TestNormalizeFallsBackToRaw(t *testing.T) {
	got := Normalize(channel.Result{
		Structured: map[string]any{"other": "value"},
		Raw:        "raw rendering",
	})
	if got != "raw rendering" {
		t.Fatalf("got %q", got)
	}
}

func TestNormalizeEmptyLookingOutputs(t *testing.T) {
	cases := []channel.Result{
		{},
		{Raw: "[]"},
		{Raw: "No results"},
		{Parts: []channel.ResultPart{{Kind: channel.PartText, Text: ""}}},
		{Parts: []channel.ResultPart{{Kind: channel.PartText, Text: "No results"}}},
	}
	for i, res := range cases {
		if got := Normalize(res); got != NoSignal {
			t.Fatalf("case %d: got %q, want no-signal message", i, got)
		}
	}
}

func TestNormalizeWhitespaceIsNotEmpty(t *testing.T) {
	// Only the exact empty-looking strings are replaced.
	got := Normalize(channel.Result{Raw: " "})
	if got != " " {
		t.Fatalf("got %q", got)
	}
	if strings.Contains(got, NoSignal) {
		t.Fatal("whitespace must not be treated as empty")
	}
}

func TestNormalizeEmptyPartsFallThrough(t *testing.T) {
	// Parts that render empty fall through to the structured payload.
	got := Normalize(channel.Result{
		Parts:      []channel.ResultPart{{Kind: channel.PartText, Text: ""}},
		Structured: map[string]any{"result": "from structured"},
	})
	if got != "from structured" {
		t.Fatalf("got %q", got)
	}
}
