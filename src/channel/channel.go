package channel

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownTool is returned when an invocation names a capability the
// channel never advertised.
var ErrUnknownTool = errors.New("unknown tool")

// Invocation is a structured request to run one capability.
type Invocation struct {
	Name      string
	Arguments map[string]any
}

// Param describes a single capability argument.
type Param struct {
	Type        string
	Description string
	Required    bool
}

// Capability describes an externally executable function discovered from
// the channel. The set is discovered once per session and never mutated;
// capabilities are equal when their names are equal.
type Capability struct {
	Name        string
	Description string
	Params      map[string]Param
}

// PartKind discriminates the closed set of tool-result content parts.
type PartKind int

const (
	PartText PartKind = iota
	PartImage
	PartAudio
	PartResource
	PartUnknown
)

// ResultPart is one content part of a tool result, classified once at
// the channel boundary so downstream code never inspects raw payloads.
type ResultPart struct {
	Kind PartKind
	Text string // PartText
	URI  string // PartResource
	Raw  string // PartUnknown: best-effort string rendering
}

// Result is a normalized channel response: content parts when the server
// returned any, an optional structured payload, and a raw rendering used
// as the last-resort fallback.
type Result struct {
	Parts      []ResultPart
	Structured map[string]any
	Raw        string
}

// Channel enumerates and invokes capabilities. Implementations own the
// transport; callers must treat Call errors as channel-level failures.
type Channel interface {
	Capabilities(ctx context.Context) ([]Capability, error)
	Call(ctx context.Context, name string, args map[string]any) (Result, error)
	Close() error
}

// Listing renders capabilities as the numbered human-readable block used
// in the text-convention prompt for models without native tool calling.
func Listing(caps []Capability) string {
	var sb strings.Builder
	for i, c := range caps {
		args := make([]string, 0, len(c.Params))
		for name, p := range c.Params {
			typ := p.Type
			if typ == "" {
				typ = "unknown"
			}
			args = append(args, fmt.Sprintf("%s (%s)", name, typ))
		}
		sort.Strings(args)
		fmt.Fprintf(&sb, "%d. %s : %s\n   Args: %s\n", i+1, c.Name, c.Description, strings.Join(args, ", "))
	}
	return sb.String()
}
