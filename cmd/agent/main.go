// Command agent answers queries with an Ollama-hosted model, calling
// external tools over a stdio MCP server when the query needs them.
//
// Examples:
//
//	go run ./cmd/agent "What is the capital of France?"
//	go run ./cmd/agent -i
//	go run ./cmd/agent -provider openai -model gpt-4o-mini "latest Go release"
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	agent "github.com/agentforge/ollama-agent"
	"github.com/agentforge/ollama-agent/src/channel"
	"github.com/agentforge/ollama-agent/src/config"
	"github.com/agentforge/ollama-agent/src/format"
	"github.com/agentforge/ollama-agent/src/memory"
	"github.com/agentforge/ollama-agent/src/models"
)

var (
	flagQuery       = flag.String("q", "", "Single query (also accepted as a positional argument)")
	flagInteractive = flag.Bool("i", false, "Interactive mode")
	flagProvider    = flag.String("provider", "", "Model provider: ollama|openai (default from config)")
	flagModel       = flag.String("model", "", "Big model override")
	flagSmallModel  = flag.String("small-model", "", "Formatter model override")
	flagConfig      = flag.String("config", "models.json", "Model configuration file")
	flagMemory      = flag.String("memory", "agent_memory.json", "Conversation snapshot path")
	flagServer      = flag.String("server", "", "Tool server command (default: go run ./cmd/toolserver)")
	flagHistory     = flag.Int("history", 15, "Maximum conversation turns kept")
	flagTimeout     = flag.Duration("timeout", 5*time.Minute, "Per-query timeout")
	flagVerbose     = flag.Bool("v", false, "Debug logging")
)

var commands = []string{"/help", "/exit", "/quit", "/memory", "/model"}

func main() {
	flag.Parse()
	config.LoadEnv()

	level := slog.LevelWarn
	if *flagVerbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := config.Load(*flagConfig)
	if err != nil {
		logger.Warn("using default model configuration", "error", err)
	}
	provider := cfg.Settings.Provider
	if *flagProvider != "" {
		provider = *flagProvider
	}
	bigModel := cfg.ModelName("big")
	if *flagModel != "" {
		bigModel = *flagModel
	}
	smallModel := cfg.ModelName("small")
	if *flagSmallModel != "" {
		smallModel = *flagSmallModel
	}

	big, err := models.NewProvider(provider, bigModel)
	if err != nil {
		fatal(err)
	}
	small, err := models.NewProvider(provider, smallModel)
	if err != nil {
		fatal(err)
	}

	ctx := context.Background()
	ch, err := dialToolServer(ctx, *flagServer)
	if err != nil {
		fatal(err)
	}
	defer ch.Close()

	bigParams := cfg.ModelParams("big")
	smallParams := cfg.ModelParams("small")
	a, err := agent.New(agent.Options{
		Invoker: big,
		Formatter: format.New(small, models.Options{
			Temperature: smallParams.Temperature,
			MaxTokens:   smallParams.MaxTokens,
		}),
		Channel:    ch,
		Memory:     memory.NewStore(*flagMemory),
		MaxHistory: *flagHistory,
		InvokeOpts: models.Options{
			Temperature: bigParams.Temperature,
			MaxTokens:   bigParams.MaxTokens,
		},
		Logger: logger,
	})
	if err != nil {
		fatal(err)
	}

	query := *flagQuery
	if query == "" && flag.NArg() > 0 {
		query = strings.Join(flag.Args(), " ")
	}

	switch {
	case *flagInteractive:
		runInteractive(ctx, a, cfg, os.Stdin, os.Stdout)
	case query != "":
		if err := runQuery(ctx, a, query, os.Stdout); err != nil {
			fatal(err)
		}
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func dialToolServer(ctx context.Context, command string) (channel.Channel, error) {
	opts := channel.Options{Command: "go", Args: []string{"run", "./cmd/toolserver"}}
	if command != "" {
		parts := strings.Fields(command)
		opts = channel.Options{Command: parts[0], Args: parts[1:]}
	}
	opts.Env = os.Environ()

	dialCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return channel.Dial(dialCtx, opts)
}

// runQuery answers one query; errors are returned so interactive mode
// can keep the session alive.
func runQuery(ctx context.Context, a *agent.Agent, query string, out io.Writer) error {
	qctx, cancel := context.WithTimeout(ctx, *flagTimeout)
	defer cancel()

	answer, err := a.HandleQuery(qctx, query)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, answer)
	return nil
}

func runInteractive(ctx context.Context, a *agent.Agent, cfg *config.Config, in io.Reader, out io.Writer) {
	fmt.Fprintln(out, "Interactive mode. Type /help for commands, /exit to quit.")
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := runCommand(a, cfg, line, out); quit {
				return
			}
			continue
		}
		// A failed query must not end the session.
		if err := runQuery(ctx, a, line, out); err != nil {
			fmt.Fprintln(out, "error:", err)
		}
	}
}

// runCommand handles one slash command; it reports whether to quit.
func runCommand(a *agent.Agent, cfg *config.Config, line string, out io.Writer) bool {
	fields := strings.Fields(line)
	sub := ""
	if len(fields) > 1 {
		sub = fields[1]
	}

	switch fields[0] {
	case "/exit", "/quit":
		return true
	case "/help":
		fmt.Fprintln(out, "Commands:")
		fmt.Fprintln(out, "  /memory view       show conversation history (default)")
		fmt.Fprintln(out, "  /memory stats      show memory statistics")
		fmt.Fprintln(out, "  /memory clear      clear conversation, keep system prompt")
		fmt.Fprintln(out, "  /memory clear-all  clear conversation including system prompt")
		fmt.Fprintln(out, "  /model summary     show model configuration (default)")
		fmt.Fprintln(out, "  /model defaults    show default model selections")
		fmt.Fprintln(out, "  /model config      dump the full configuration as JSON")
		fmt.Fprintln(out, "  /exit              quit")
	case "/memory":
		runMemoryCommand(a, sub, out)
	case "/model", "/models":
		runModelCommand(cfg, sub, out)
	default:
		fmt.Fprintf(out, "Unknown command %q.", fields[0])
		if suggestion := closestCommand(fields[0]); suggestion != "" {
			fmt.Fprintf(out, " Did you mean %s?", suggestion)
		}
		fmt.Fprintln(out)
	}
	return false
}

func runMemoryCommand(a *agent.Agent, sub string, out io.Writer) {
	switch sub {
	case "", "view":
		view, err := a.ViewMemory()
		if err != nil {
			fmt.Fprintln(out, "error:", err)
			return
		}
		fmt.Fprintln(out, view)
	case "stats":
		st, err := a.MemoryStats()
		if err != nil {
			fmt.Fprintln(out, "error:", err)
			return
		}
		fmt.Fprintf(out, "Turns: %d total, %d system, %d user, %d assistant\n",
			st.Total, st.System, st.User, st.Assistant)
	case "clear":
		if err := a.ClearMemory(true); err != nil {
			fmt.Fprintln(out, "error:", err)
			return
		}
		fmt.Fprintln(out, "Memory cleared (system prompt kept).")
	case "clear-all":
		if err := a.ClearMemory(false); err != nil {
			fmt.Fprintln(out, "error:", err)
			return
		}
		fmt.Fprintln(out, "Memory cleared.")
	default:
		fmt.Fprintf(out, "Unknown /memory subcommand %q (view, stats, clear, clear-all).\n", sub)
	}
}

func runModelCommand(cfg *config.Config, sub string, out io.Writer) {
	switch sub {
	case "", "summary":
		fmt.Fprint(out, cfg.Summary())
	case "defaults":
		fmt.Fprint(out, cfg.Defaults())
	case "config":
		dump, err := cfg.Dump()
		if err != nil {
			fmt.Fprintln(out, "error:", err)
			return
		}
		fmt.Fprintln(out, dump)
	default:
		fmt.Fprintf(out, "Unknown /model subcommand %q (summary, defaults, config).\n", sub)
	}
}

// closestCommand finds a known command within edit distance 2.
func closestCommand(input string) string {
	best, bestDist := "", 3
	for _, c := range commands {
		if d := levenshtein(input, c); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

func levenshtein(a, b string) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, min(cur[j-1]+1, prev[j-1]+cost))
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
