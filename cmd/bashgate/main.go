// Command bashgate runs the MCP server as a stdio subprocess, or checks
// a single command with the `check` subcommand.
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
	"strings"
	"syscall"

	"github.com/bashgate/bashgate"
	"github.com/bashgate/bashgate/analyzer"
)

var version = "dev"

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{}))
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, os.Args[1:]); err != nil {
		logger.Error("bashgate failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, args []string) error {
	if len(args) == 0 {
		return runStdio(ctx, logger)
	}

	switch args[0] {
	case "check":
		return runCheck(args[1:])
	case "help", "-h", "--help":
		printHelp(os.Stdout)
		return nil
	case "version", "-v", "--version":
		fmt.Printf("bashgate %s\n", version)
		return nil
	default:
		printHelp(os.Stderr)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func runStdio(ctx context.Context, logger *slog.Logger) error {
	err := bashgate.RunStdio(ctx, bashgate.Config{Logger: logger})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// runCheck analyzes a command without connecting anywhere. Exit code 0
// means allowed; a block prints the reason and exits 1.
func runCheck(args []string) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	cwd := fs.String("cwd", "", "working directory the command would run in")
	strict := fs.Bool("strict", false, "reject commands that fail to parse")
	paranoidRm := fs.Bool("paranoid-rm", false, "block every recursive-force rm")
	paranoidInterp := fs.Bool("paranoid-interpreters", false, "block interpreter one-liners outright")
	if err := fs.Parse(args); err != nil {
		return err
	}

	command := strings.Join(fs.Args(), " ")
	if strings.TrimSpace(command) == "" {
		return errors.New("usage: bashgate check [flags] -- COMMAND")
	}

	opts := []analyzer.Option{}
	if *cwd != "" {
		opts = append(opts, analyzer.WithCwd(*cwd))
	}
	if *strict {
		opts = append(opts, analyzer.WithStrict())
	}
	if *paranoidRm {
		opts = append(opts, analyzer.WithParanoidRm())
	}
	if *paranoidInterp {
		opts = append(opts, analyzer.WithParanoidInterpreters())
	}

	if finding := analyzer.Analyze(command, opts...); finding != nil {
		fmt.Fprintf(os.Stderr, "blocked: %s\n", finding.Reason)
		if finding.Segment != "" {
			fmt.Fprintf(os.Stderr, "segment: %s\n", finding.Segment)
		}
		os.Exit(1)
	}

	fmt.Println("allowed")
	return nil
}

func printHelp(w io.Writer) {
	_, _ = fmt.Fprintln(w, "bashgate - safety-gated MCP server for remote command execution")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "Usage:")
	_, _ = fmt.Fprintln(w, "  bashgate                  Start MCP server over stdio (default)")
	_, _ = fmt.Fprintln(w, "  bashgate check -- CMD     Analyze a command and report allow/block")
	_, _ = fmt.Fprintln(w, "  bashgate help             Show this help")
	_, _ = fmt.Fprintln(w, "  bashgate version          Show version")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "Check flags:")
	_, _ = fmt.Fprintln(w, "  --cwd DIR                 Working directory the command would run in")
	_, _ = fmt.Fprintln(w, "  --strict                  Reject commands that fail to parse")
	_, _ = fmt.Fprintln(w, "  --paranoid-rm             Block every recursive-force rm")
	_, _ = fmt.Fprintln(w, "  --paranoid-interpreters   Block interpreter one-liners outright")
}
