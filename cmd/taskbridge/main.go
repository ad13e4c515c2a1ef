// Package main implements the taskbridge CLI: a bridge between a chat model
// and a remote MCP task server, with direct task inspection commands and a
// tool-calling analysis loop.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
)

const version = "0.1.0"

type globalFlags struct {
	ConfigPath string
	JSON       bool
	Verbose    bool
	Help       bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	global, args, err := parseGlobalFlags(os.Args[1:])
	if err != nil {
		fatal(err, global.JSON)
	}
	if global.Help || len(args) == 0 {
		printUsage()
		return
	}

	app, err := newApp(global)
	if err != nil {
		fatal(err, global.JSON)
	}
	defer app.Close(ctx)

	cmd := args[0]
	rest := args[1:]

	switch cmd {
	case "list":
		err = app.runList(ctx, rest)
	case "status":
		err = app.runStatus(ctx, rest)
	case "stats":
		err = app.runStats(ctx, rest)
	case "tools":
		err = app.runTools(ctx, rest)
	case "analyze":
		err = app.runAnalyze(ctx, rest)
	case "chat":
		err = app.runChat(ctx, rest)
	case "audit":
		err = app.runAudit(ctx, rest)
	case "help":
		printUsage()
	case "version":
		fmt.Println(version)
	default:
		err = fmt.Errorf("unknown command %q", cmd)
	}
	if err != nil {
		fatal(err, global.JSON)
	}
}

func parseGlobalFlags(args []string) (globalFlags, []string, error) {
	var flags globalFlags
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return flags, args[i+1:], nil
		}
		if !strings.HasPrefix(arg, "-") {
			return flags, args[i:], nil
		}
		switch {
		case arg == "-h" || arg == "--help":
			flags.Help = true
			return flags, nil, nil
		case arg == "-json" || arg == "--json":
			flags.JSON = true
		case arg == "-verbose" || arg == "--verbose" || arg == "-v":
			flags.Verbose = true
		case arg == "-config" || arg == "--config":
			if i+1 >= len(args) {
				return flags, nil, fmt.Errorf("missing value for -config")
			}
			flags.ConfigPath = args[i+1]
			i++
		case strings.HasPrefix(arg, "-config="):
			flags.ConfigPath = strings.TrimPrefix(arg, "-config=")
		case strings.HasPrefix(arg, "--config="):
			flags.ConfigPath = strings.TrimPrefix(arg, "--config=")
		default:
			return flags, nil, fmt.Errorf("unknown global flag %q", arg)
		}
	}
	return flags, nil, nil
}

func printUsage() {
	fmt.Println(`taskbridge ` + version + `

Usage:
  taskbridge [global flags] <command> [args]

Global flags:
  -config <path>   Path to config file (YAML)
  -json            JSON output
  -verbose         Debug logging

Commands:
  list                          List all tasks
  status <status>               List tasks with the given status
  stats                         Summary statistics over all tasks
  tools                         List tools exposed to the model
  analyze [-out <path>]         Analyze the task snapshot with the model
  analyze -with-tools [...]     Analyze with the full tool-calling loop
  chat "<request>"              Run an ad-hoc request through the loop
  audit [-tool <name>] [-n N]   Show recorded tool invocations
  version                       Print version`)
}

func fatal(err error, asJSON bool) {
	printCLIError(err, asJSON)
	os.Exit(1)
}
