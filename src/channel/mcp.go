package channel

import (
	"context"
	"encoding/json"
	"fmt"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// Options controls how the stdio tool-server subprocess is launched.
type Options struct {
	Command string
	Args    []string
	Env     []string
}

// MCPChannel speaks the Model Context Protocol to a stdio subprocess.
// The capability set is discovered during Dial and immutable afterwards.
type MCPChannel struct {
	client *mcpclient.Client
	caps   []Capability
	byName map[string]Capability
}

// Dial launches the tool server, performs the initialize handshake and
// discovers the capability set.
func Dial(ctx context.Context, opts Options) (*MCPChannel, error) {
	if opts.Command == "" {
		return nil, fmt.Errorf("mcp channel: command is empty")
	}

	c, err := mcpclient.NewStdioMCPClient(opts.Command, opts.Env, opts.Args...)
	if err != nil {
		return nil, fmt.Errorf("start tool server: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "ollama-agent", Version: "1.0.0"}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("initialize tool server: %w", err)
	}

	listed, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("list tools: %w", err)
	}

	ch := &MCPChannel{client: c, byName: make(map[string]Capability)}
	for _, tool := range listed.Tools {
		discovered := capabilityFromTool(tool)
		ch.caps = append(ch.caps, discovered)
		ch.byName[discovered.Name] = discovered
	}
	return ch, nil
}

// Capabilities returns the set discovered at Dial time.
func (ch *MCPChannel) Capabilities(_ context.Context) ([]Capability, error) {
	out := make([]Capability, len(ch.caps))
	copy(out, ch.caps)
	return out, nil
}

// Call invokes a discovered capability. Names that were never advertised
// fail with ErrUnknownTool before anything touches the wire.
func (ch *MCPChannel) Call(ctx context.Context, name string, args map[string]any) (Result, error) {
	if _, ok := ch.byName[name]; !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if args == nil {
		args = map[string]any{}
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	res, err := ch.client.CallTool(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("call tool %s: %w", name, err)
	}
	return convertResult(res), nil
}

// Close terminates the tool-server session.
func (ch *MCPChannel) Close() error {
	if ch.client == nil {
		return nil
	}
	return ch.client.Close()
}

func capabilityFromTool(tool mcp.Tool) Capability {
	out := Capability{
		Name:        tool.Name,
		Description: tool.Description,
		Params:      map[string]Param{},
	}

	required := make(map[string]bool, len(tool.InputSchema.Required))
	for _, name := range tool.InputSchema.Required {
		required[name] = true
	}
	for name, raw := range tool.InputSchema.Properties {
		p := Param{Type: "string", Required: required[name]}
		if info, ok := raw.(map[string]any); ok {
			if t, ok := info["type"].(string); ok && t != "" {
				p.Type = t
			}
			if d, ok := info["description"].(string); ok {
				p.Description = d
			}
		}
		out.Params[name] = p
	}
	return out
}

// convertResult classifies every content item exactly once so the rest
// of the pipeline works with the closed ResultPart set.
func convertResult(res *mcp.CallToolResult) Result {
	if res == nil {
		return Result{}
	}

	out := Result{}
	for _, item := range res.Content {
		out.Parts = append(out.Parts, classifyContent(item))
	}

	if structured, ok := res.StructuredContent.(map[string]any); ok {
		out.Structured = structured
	}

	if raw, err := json.Marshal(res); err == nil {
		out.Raw = string(raw)
	} else {
		out.Raw = fmt.Sprint(res)
	}
	return out
}

func classifyContent(item mcp.Content) ResultPart {
	if text, ok := mcp.AsTextContent(item); ok {
		return ResultPart{Kind: PartText, Text: text.Text}
	}
	if _, ok := mcp.AsImageContent(item); ok {
		return ResultPart{Kind: PartImage}
	}
	if _, ok := mcp.AsAudioContent(item); ok {
		return ResultPart{Kind: PartAudio}
	}
	if res, ok := mcp.AsEmbeddedResource(item); ok {
		return ResultPart{Kind: PartResource, URI: resourceURI(res.Resource)}
	}
	return ResultPart{Kind: PartUnknown, Raw: fmt.Sprint(item)}
}

func resourceURI(contents mcp.ResourceContents) string {
	switch rc := contents.(type) {
	case mcp.TextResourceContents:
		return rc.URI
	case mcp.BlobResourceContents:
		return rc.URI
	case *mcp.TextResourceContents:
		return rc.URI
	case *mcp.BlobResourceContents:
		return rc.URI
	default:
		return ""
	}
}
