package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/jplck/mf-samples-with-speckit/pkg/agents"
	"github.com/jplck/mf-samples-with-speckit/pkg/agents/helpdesk"
	"github.com/jplck/mf-samples-with-speckit/pkg/agents/order"
	"github.com/jplck/mf-samples-with-speckit/pkg/conversation"
	"github.com/jplck/mf-samples-with-speckit/pkg/engine"
	"github.com/jplck/mf-samples-with-speckit/pkg/server"
	"github.com/jplck/mf-samples-with-speckit/pkg/tools/mcpserver"
	"github.com/jplck/mf-samples-with-speckit/pkg/tools/toolbox"
)

// watchEvents prints engine events to w until the returned stop function
// is called.
func watchEvents(bus *engine.EventBus, w io.Writer) (stop func()) {
	sub := bus.Subscribe(256)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for e := range sub.C {
			fmt.Fprintln(w, formatEvent(e))
		}
	}()

	return func() {
		bus.Unsubscribe(sub)
		<-done
	}
}

func openAgent(ctx context.Context, g globalFlags, log *slog.Logger) (agents.Agent, func(), error) {
	eng, err := newEngine(ctx, g, engine.WithLogger(log))
	if err != nil {
		return nil, nil, err
	}

	a, err := eng.Agent(g.agentName)
	if err != nil {
		_ = eng.Close()
		return nil, nil, err
	}

	stop := func() {}
	if g.verbose {
		stop = watchEvents(eng.Events(), os.Stderr)
	}

	return a, func() {
		stop()
		_ = eng.Close()
	}, nil
}

func runCmd(ctx context.Context, g globalFlags, log *slog.Logger, args []string) error {
	prompt := strings.TrimSpace(strings.Join(args, " "))
	if prompt == "" {
		return errors.New("usage: shopagents run <prompt>")
	}

	a, closeFn, err := openAgent(ctx, g, log)
	if err != nil {
		return err
	}
	defer closeFn()

	resp := a.Run(ctx, prompt)

	fmt.Println(newRenderer(0).response(resp))

	if k := resp.Outcome.Kind; k == conversation.KindCancelled || k == conversation.KindError {
		return fmt.Errorf("%s run failed", resp.Agent)
	}
	return nil
}

func chatCmd(ctx context.Context, g globalFlags, log *slog.Logger, in io.Reader, out io.Writer) error {
	a, closeFn, err := openAgent(ctx, g, log)
	if err != nil {
		return err
	}
	defer closeFn()

	fmt.Fprintf(out, "Chatting with %s. Send an empty line or EOF to quit.\n", agentNameStyle.Render(a.Name()))

	return chatLoop(ctx, a, in, out, newRenderer(0))
}

// chatLoop runs a for every line of in until an empty line, EOF or ctx
// cancellation.
func chatLoop(ctx context.Context, a agents.Agent, in io.Reader, out io.Writer, r *renderer) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, userPrefixStyle.Render("you > "))

		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			return nil
		}

		resp := a.Run(ctx, line)
		fmt.Fprintln(out, r.response(resp))

		if ctx.Err() != nil {
			return nil
		}
	}
}

func serveCmd(ctx context.Context, g globalFlags, log *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", "", "listen address (overrides server.addr in config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	eng, err := newEngine(ctx, g, engine.WithLogger(log))
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	if g.verbose {
		defer watchEvents(eng.Events(), os.Stderr)()
	}

	sc := eng.Config().Server
	reqTimeout, shutdownTimeout, err := sc.Timeouts()
	if err != nil {
		return err
	}

	opts := server.Options{
		Addr:            sc.Addr,
		RequestTimeout:  reqTimeout,
		ShutdownTimeout: shutdownTimeout,
		Logger:          log.With("component", "server"),
	}
	if *addr != "" {
		opts.Addr = *addr
	}

	return server.New(eng, opts).ListenAndServe(ctx)
}

// builtinToolBox returns a toolbox the mcp command can serve.
func builtinToolBox(name string) (*toolbox.ToolBox, error) {
	switch name {
	case engine.ToolboxOrder:
		return order.NewCatalog().Tools(), nil
	case engine.ToolboxHR:
		return helpdesk.HRTools(), nil
	default:
		return nil, fmt.Errorf("unknown toolbox %q (want %s or %s)", name, engine.ToolboxOrder, engine.ToolboxHR)
	}
}

func mcpCmd(ctx context.Context, log *slog.Logger, args []string, in io.Reader, out io.Writer) error {
	fs := flag.NewFlagSet("mcp", flag.ContinueOnError)
	name := fs.String("toolbox", engine.ToolboxOrder, "toolbox to serve (order or hr)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	tb, err := builtinToolBox(*name)
	if err != nil {
		return err
	}

	log.Info("serving mcp", "toolbox", *name, "tools", tb.Len())

	return mcpserver.New("shopagents-"+*name, version, tb).Serve(ctx, in, out)
}
