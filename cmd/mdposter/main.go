package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/automaxprocs/maxprocs"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	// Error ignored: maxprocs.Set only fails if GOMAXPROCS env is invalid,
	// in which case Go runtime defaults apply.
	_, _ = maxprocs.Set(maxprocs.Logger(func(string, ...interface{}) {}))

	os.Exit(runMain(os.Args, DefaultEnv()))
}

// runMain installs signal handling and dispatches the command.
func runMain(args []string, env *Environment) int {
	ctx, stop := notifyContext(context.Background())
	defer stop()
	return runCommand(ctx, args, env)
}

// runCommand dispatches args[1] to a command. Without a command, or when
// the first argument is a flag, it serves.
func runCommand(ctx context.Context, args []string, env *Environment) int {
	if len(args) < 2 || strings.HasPrefix(args[1], "-") {
		if len(args) >= 2 && (args[1] == "-h" || args[1] == "--help") {
			printUsage(env.Stdout)
			return ExitSuccess
		}
		return runServe(ctx, tail(args, 1), env)
	}

	cmd, rest := args[1], args[2:]
	switch cmd {
	case "serve":
		return runServe(ctx, rest, env)
	case "render":
		return runRender(ctx, rest, env)
	case "doctor":
		return runDoctorCmd(rest, env)
	case "version":
		fmt.Fprintf(env.Stdout, "mdposter %s\n", Version)
		return ExitSuccess
	case "help":
		return printHelp(env.Stdout, rest)
	default:
		fmt.Fprintf(env.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage(env.Stderr)
		return ExitUsage
	}
}

func tail(args []string, from int) []string {
	if len(args) <= from {
		return nil
	}
	return args[from:]
}
