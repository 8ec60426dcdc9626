package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/jplck/mf-samples-with-speckit/pkg/engine"
)

var version = "dev"

// defaultConfigPath is loaded when -config is not given and the file exists.
const defaultConfigPath = "shopagents.yaml"

type globalFlags struct {
	configPath string
	envFile    string
	agentName  string
	logJSON    bool
	verbose    bool
}

func main() {
	var g globalFlags

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: shopagents [flags] <command> [args]\n\nFlags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Commands:
  run <prompt>   Run the agent once and print its answer
  chat           Read prompts line by line from stdin
  serve          Host the agents over HTTP
  mcp            Serve a built-in toolbox over stdio MCP
  agents         List the configured agents
`)
	}

	flag.StringVar(&g.configPath, "config", "", "path to configuration file (default: "+defaultConfigPath+" or the built-in shop deployment)")
	flag.StringVar(&g.envFile, "env", ".env", "path to .env file (ignored if missing)")
	flag.StringVar(&g.agentName, "agent", "", "agent to run (overrides entry_agent in config)")
	flag.BoolVar(&g.logJSON, "log-json", false, "log as JSON")
	flag.BoolVar(&g.verbose, "verbose", false, "show conversation events and debug logs")
	flag.Parse()

	if err := loadDotEnv(g.envFile); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := dispatch(g, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func dispatch(g globalFlags, args []string) error {
	if len(args) == 0 {
		flag.Usage()
		return errors.New("missing command")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log := newLogger(os.Stderr, g.logJSON, g.verbose)

	switch cmd, rest := args[0], args[1:]; cmd {
	case "run":
		return runCmd(ctx, g, log, rest)
	case "chat":
		return chatCmd(ctx, g, log, os.Stdin, os.Stdout)
	case "serve":
		return serveCmd(ctx, g, log, rest)
	case "mcp":
		return mcpCmd(ctx, log, rest, os.Stdin, os.Stdout)
	case "agents":
		return agentsCmd(ctx, g, log, os.Stdout)
	case "version":
		fmt.Println(version)
		return nil
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// loadConfig resolves the configuration: explicit flag, then
// shopagents.yaml in the working directory, then the built-in default.
func loadConfig(path string) (engine.Config, error) {
	if path != "" {
		return engine.LoadConfig(path)
	}
	if _, err := os.Stat(defaultConfigPath); err == nil {
		return engine.LoadConfig(defaultConfigPath)
	}
	return engine.DefaultConfig(), nil
}

func newEngine(ctx context.Context, g globalFlags, opts ...engine.Option) (*engine.Engine, error) {
	cfg, err := loadConfig(g.configPath)
	if err != nil {
		return nil, err
	}
	return engine.New(ctx, cfg, opts...)
}

func agentsCmd(ctx context.Context, g globalFlags, log *slog.Logger, out io.Writer) error {
	eng, err := newEngine(ctx, g, engine.WithLogger(log))
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	for _, e := range eng.Agents() {
		marker := " "
		if e.Name == eng.EntryAgent() {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %s\t%s\n", marker, agentNameStyle.Render(e.Name), dimStyle.Render(e.Description))
	}
	return nil
}
