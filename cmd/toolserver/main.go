// Command toolserver exposes the agent's tool set over stdio MCP:
// google_search, execute_cli_command, list_directory and remember.
//
// google_search needs GOOGLE_API_KEY and GOOGLE_CSE_ID in the
// environment (a .env file next to the binary works too).
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/tidwall/gjson"
)

const (
	searchEndpoint = "https://www.googleapis.com/customsearch/v1"
	commandTimeout = 30 * time.Second
	notesDir       = "agent_notes"
)

// Substrings that disqualify a command outright.
var dangerousCommands = []string{
	"rm -rf /",
	"mkfs",
	"dd if=",
	":(){",
	"shutdown",
	"reboot",
	"> /dev/sda",
}

func main() {
	_ = godotenv.Load()

	s := server.NewMCPServer("agent-toolserver", "1.0.0",
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	s.AddTool(mcp.NewTool("google_search",
		mcp.WithDescription("Search the web with Google and return the top results"),
		mcp.WithString("query",
			mcp.Description("Search query"),
			mcp.Required(),
		),
	), handleSearch)

	s.AddTool(mcp.NewTool("execute_cli_command",
		mcp.WithDescription("Run a shell command on the host and return its output"),
		mcp.WithString("command",
			mcp.Description("Command line to execute"),
			mcp.Required(),
		),
	), handleCommand)

	s.AddTool(mcp.NewTool("list_directory",
		mcp.WithDescription("List the contents of a directory, folders first"),
		mcp.WithString("path",
			mcp.Description("Directory path, defaults to the current directory"),
		),
	), handleListDirectory)

	s.AddTool(mcp.NewTool("remember",
		mcp.WithDescription("Save a short note for a user, or read the saved notes back"),
		mcp.WithString("user",
			mcp.Description("Who the note belongs to"),
			mcp.Required(),
		),
		mcp.WithString("note",
			mcp.Description("Note text; omit to read existing notes"),
		),
	), handleRemember)

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintln(os.Stderr, "toolserver:", err)
		os.Exit(1)
	}
}

func handleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return nil, err
	}
	apiKey := os.Getenv("GOOGLE_API_KEY")
	cseID := os.Getenv("GOOGLE_CSE_ID")
	if apiKey == "" || cseID == "" {
		return mcp.NewToolResultText("Search is not configured: set GOOGLE_API_KEY and GOOGLE_CSE_ID."), nil
	}

	u := searchEndpoint + "?" + url.Values{
		"key": {apiKey},
		"cx":  {cseID},
		"q":   {query},
		"num": {"5"},
	}.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := gjson.GetBytes(body, "error.message").String()
		if msg == "" {
			msg = resp.Status
		}
		return nil, fmt.Errorf("search failed: %s", msg)
	}

	items := gjson.GetBytes(body, "items")
	if !items.Exists() || len(items.Array()) == 0 {
		return mcp.NewToolResultText("No results"), nil
	}

	var sb strings.Builder
	for i, item := range items.Array() {
		fmt.Fprintf(&sb, "%d. %s\n%s\n%s\n\n",
			i+1,
			item.Get("title").String(),
			item.Get("link").String(),
			item.Get("snippet").String(),
		)
	}
	return mcp.NewToolResultText(strings.TrimSpace(sb.String())), nil
}

func handleCommand(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	command, err := req.RequireString("command")
	if err != nil {
		return nil, err
	}
	lowered := strings.ToLower(command)
	for _, blocked := range dangerousCommands {
		if strings.Contains(lowered, blocked) {
			return mcp.NewToolResultText("Command refused: it matches a blocked pattern."), nil
		}
	}

	cmdCtx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(cmdCtx, "cmd", "/C", command)
	} else {
		cmd = exec.CommandContext(cmdCtx, "sh", "-c", command)
	}

	out, err := cmd.CombinedOutput()
	text := strings.TrimSpace(string(out))
	if cmdCtx.Err() == context.DeadlineExceeded {
		return mcp.NewToolResultText("Command timed out after " + commandTimeout.String()), nil
	}
	if err != nil {
		if text == "" {
			text = err.Error()
		} else {
			text = text + "\n(exit: " + err.Error() + ")"
		}
	}
	if text == "" {
		text = "Command completed with no output."
	}
	return mcp.NewToolResultText(text), nil
}

func handleListDirectory(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := req.GetString("path", ".")
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}
	if len(entries) == 0 {
		return mcp.NewToolResultText("Directory is empty."), nil
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir() != entries[j].IsDir() {
			return entries[i].IsDir()
		}
		return entries[i].Name() < entries[j].Name()
	})

	var sb strings.Builder
	fmt.Fprintf(&sb, "Contents of %s:\n", path)
	for _, e := range entries {
		if e.IsDir() {
			fmt.Fprintf(&sb, "  [DIR]  %s\n", e.Name())
			continue
		}
		size := int64(0)
		if info, err := e.Info(); err == nil {
			size = info.Size()
		}
		fmt.Fprintf(&sb, "  [FILE] %s (%d bytes)\n", e.Name(), size)
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func handleRemember(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	user, err := req.RequireString("user")
	if err != nil {
		return nil, err
	}
	if strings.ContainsAny(user, `/\.`) {
		return nil, fmt.Errorf("invalid user name %q", user)
	}
	notePath := filepath.Join(notesDir, user+".txt")

	note := req.GetString("note", "")
	if note == "" {
		data, err := os.ReadFile(notePath)
		if err != nil {
			if os.IsNotExist(err) {
				return mcp.NewToolResultText("No notes saved for " + user + "."), nil
			}
			return nil, fmt.Errorf("read notes: %w", err)
		}
		return mcp.NewToolResultText(strings.TrimSpace(string(data))), nil
	}

	if err := os.MkdirAll(notesDir, 0o755); err != nil {
		return nil, fmt.Errorf("create notes dir: %w", err)
	}
	f, err := os.OpenFile(notePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open notes: %w", err)
	}
	defer f.Close()
	stamp := time.Now().Format("2006-01-02 15:04")
	if _, err := fmt.Fprintf(f, "[%s] %s\n", stamp, note); err != nil {
		return nil, fmt.Errorf("write note: %w", err)
	}
	return mcp.NewToolResultText("Noted for " + user + "."), nil
}
