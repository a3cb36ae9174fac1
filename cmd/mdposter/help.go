package main

import (
	"fmt"
	"io"
)

// printUsage prints the main usage message.
func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: mdposter <command> [flags] [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve      Run the poster HTTP service (default)")
	fmt.Fprintln(w, "  render     Render one markdown file to PNG")
	fmt.Fprintln(w, "  doctor     Check Chrome and environment setup")
	fmt.Fprintln(w, "  version    Show version information")
	fmt.Fprintln(w, "  help       Show help for a command")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'mdposter help <command>' for details on a specific command.")
}

func printBrowserFlags(w io.Writer) {
	fmt.Fprintln(w, "Browser:")
	fmt.Fprintln(w, "      --browser-bin <path>   Chrome executable (env: MDPOSTER_BROWSER_BIN, CHROME_PATH)")
	fmt.Fprintln(w, "      --no-sandbox           Disable the Chrome sandbox (containers)")
	fmt.Fprintln(w, "      --pool-min <n>         Sessions kept warm")
	fmt.Fprintln(w, "      --pool-max <n>         Maximum live sessions")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Poster:")
	fmt.Fprintln(w, "      --surface-url <url>    External poster page base URL")
	fmt.Fprintln(w, "      --assets-dir <dir>     Custom themes/ and templates/ directory")
	fmt.Fprintln(w, "      --default-theme <s>    Theme for requests that name none")
	fmt.Fprintln(w, "      --cache-dir <dir>      Poster cache directory")
	fmt.Fprintln(w)
}

// printServeUsage prints usage for the serve command.
func printServeUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: mdposter serve [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Serve POST /api/posters, GET /posters/{hash}.png, /api/themes, /healthz and /metrics.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Server:")
	fmt.Fprintln(w, "  -c, --config <name>        Config file name or path (env: MDPOSTER_CONFIG)")
	fmt.Fprintln(w, "  -l, --listen <addr>        Listen address (default :8080)")
	fmt.Fprintln(w, "      --token <s>            API token (env: MDPOSTER_TOKEN)")
	fmt.Fprintln(w, "      --token-header <s>     Header carrying the token (default Authorization)")
	fmt.Fprintln(w, "      --log-level <s>        debug, info, warn, error")
	fmt.Fprintln(w, "      --coalesce             Share renders between identical concurrent requests")
	fmt.Fprintln(w, "      --shutdown-timeout <d> Graceful shutdown limit (default 30s)")
	fmt.Fprintln(w, "  -v, --verbose              Debug logging")
	fmt.Fprintln(w)
	printBrowserFlags(w)
}

// printRenderUsage prints usage for the render command.
func printRenderUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: mdposter render <input.md|-> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Render one markdown file to PNG with the same pipeline the service uses.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Output:")
	fmt.Fprintln(w, "  -o, --output <path>        Output PNG (default: input name with .png)")
	fmt.Fprintln(w, "      --header <s>           Header text")
	fmt.Fprintln(w, "      --footer <s>           Footer text")
	fmt.Fprintln(w, "  -t, --theme <s>            Poster theme")
	fmt.Fprintln(w, "      --no-cache             Skip the poster cache")
	fmt.Fprintln(w, "  -c, --config <name>        Config file name or path")
	fmt.Fprintln(w, "  -v, --verbose              Debug logging")
	fmt.Fprintln(w)
	printBrowserFlags(w)
}

// printDoctorUsage prints usage for the doctor command.
func printDoctorUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: mdposter doctor [--json]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Check Chrome, sandbox and cache directory setup.")
}

// printHelp dispatches help for a named command.
func printHelp(w io.Writer, args []string) int {
	if len(args) == 0 {
		printUsage(w)
		return ExitSuccess
	}
	switch args[0] {
	case "serve":
		printServeUsage(w)
	case "render":
		printRenderUsage(w)
	case "doctor":
		printDoctorUsage(w)
	case "version":
		fmt.Fprintln(w, "Usage: mdposter version")
	default:
		fmt.Fprintf(w, "Unknown command: %s\n\n", args[0])
		printUsage(w)
		return ExitUsage
	}
	return ExitSuccess
}
