package models

import (
	"context"
	"errors"

	"github.com/agentforge/ollama-agent/src/channel"
	"github.com/agentforge/ollama-agent/src/memory"
)

// DummyLLM is a scripted model implementation for local testing without
// a running runtime. Invoke responses are consumed in order; the last
// one repeats once the script runs out.
type DummyLLM struct {
	Script       []Response
	GenerateText string
	ToolSupport  bool
	ProbeErr     error

	InvokeCalls   [][]memory.Turn
	InvokeCaps    [][]channel.Capability
	GenerateCalls []string

	cursor int
}

func (d *DummyLLM) Invoke(_ context.Context, turns []memory.Turn, caps []channel.Capability, _ Options) (Response, error) {
	d.InvokeCalls = append(d.InvokeCalls, turns)
	d.InvokeCaps = append(d.InvokeCaps, caps)
	if len(d.Script) == 0 {
		return Response{}, errors.New("dummy model has no scripted response")
	}
	resp := d.Script[d.cursor]
	if d.cursor < len(d.Script)-1 {
		d.cursor++
	}
	return resp, nil
}

func (d *DummyLLM) Generate(_ context.Context, prompt, _ string, _ Options) (string, error) {
	d.GenerateCalls = append(d.GenerateCalls, prompt)
	if d.GenerateText == "" {
		return "Dummy summary: " + prompt, nil
	}
	return d.GenerateText, nil
}

func (d *DummyLLM) SupportsTools(_ context.Context) (bool, error) {
	if d.ProbeErr != nil {
		return false, d.ProbeErr
	}
	return d.ToolSupport, nil
}
