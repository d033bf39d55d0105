// Command kiejob drives KIE generation tasks from the command line.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/GoCodeAlone/kiejob/failure"
	"github.com/GoCodeAlone/kiejob/internal/version"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(argv []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("kiejob", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		configPath = fs.String("config", os.Getenv("KIEJOB_CONFIG"), "path to config file")
		quiet      = fs.Bool("quiet", false, "suppress progress logging")
	)
	fs.Usage = func() { usage(stderr) }
	if err := fs.Parse(argv); err != nil {
		return 2
	}

	args := fs.Args()
	if len(args) == 0 {
		usage(stderr)
		return 2
	}
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "version":
		fmt.Fprintln(stdout, version.String())
		return 0
	case "help":
		usage(stdout)
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(*configPath, *quiet, stdout)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	defer a.Close()

	switch cmd {
	case "run":
		err = a.cmdRun(ctx, rest)
	case "status":
		err = a.cmdStatus(ctx, rest)
	case "wait":
		err = a.cmdWait(ctx, rest)
	case "credits":
		err = a.cmdCredits(ctx, rest)
	case "models":
		err = a.cmdModels(rest)
	case "chat":
		err = a.cmdChat(ctx, rest)
	case "suno":
		err = a.cmdSuno(ctx, rest)
	case "upload":
		err = a.cmdUpload(ctx, rest)
	case "grid":
		err = a.cmdGrid(rest)
	case "history":
		err = a.cmdHistory(rest)
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n", cmd)
		usage(stderr)
		return 2
	}

	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitCode(err)
	}
	return 0
}

// exitCode maps failure kinds so scripts can tell a retryable outcome apart.
func exitCode(err error) int {
	switch failure.KindOf(err) {
	case failure.Transient:
		return 3
	case failure.Timeout:
		return 4
	default:
		return 1
	}
}

func usage(w io.Writer) {
	fmt.Fprint(w, `kiejob - KIE task runner

Usage:
  kiejob [flags] <command> [args]

Flags:
  --config <path>   config file (or $KIEJOB_CONFIG)
  --quiet           suppress progress logging

Commands:
  version                     print version
  run <manifest.yaml>         submit a job, wait for it and fetch results
  status <taskId>             query a task once
  wait <taskId>               poll an existing task to completion
  credits                     show remaining credits
  models                      list known models and timeout floors
  chat [flags] <prompt>       gemini chat completion
  suno [flags]                submit a Suno music task
  upload <file>...            upload files and print their URLs
  grid [flags] <image>        slice a contact sheet into tiles
  history [list|show|delete]  inspect the local task ledger
`)
}
