// Package hints provides actionable error hints for common failure scenarios.
// Hints are formatted consistently as "\n  hint: <text>" for appending to error messages.
package hints

import (
	"strings"

	"github.com/alnah/go-mdposter/internal/fileutil"
)

// dockerMarker is the file Docker creates in every container.
const dockerMarker = "/.dockerenv"

// ciVars are set by common CI runners.
var ciVars = []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "CIRCLECI"}

// DetectContainer reports whether the process runs in a container and which
// signal said so. MDPOSTER_CONTAINER=1 forces detection.
func DetectContainer(getenv func(string) string) (bool, string) {
	return detectContainer(getenv, dockerMarker)
}

func detectContainer(getenv func(string) string, marker string) (bool, string) {
	if getenv("MDPOSTER_CONTAINER") == "1" {
		return true, "MDPOSTER_CONTAINER=1"
	}
	if fileutil.FileExists(marker) {
		return true, marker
	}
	if v := getenv("container"); v != "" {
		return true, "container=" + v
	}
	if getenv("KUBERNETES_SERVICE_HOST") != "" {
		return true, "KUBERNETES_SERVICE_HOST"
	}
	return false, ""
}

// DetectCI reports whether a CI runner variable is set.
func DetectCI(getenv func(string) string) bool {
	for _, v := range ciVars {
		if getenv(v) != "" {
			return true
		}
	}
	return false
}

// ForBrowserConnect returns hints for browser launch and connection errors,
// suggesting the variables that usually fix a CI or container setup.
func ForBrowserConnect(getenv func(string) string) string {
	inContainer, _ := DetectContainer(getenv)
	return forBrowserConnect(getenv, inContainer)
}

func forBrowserConnect(getenv func(string) string, inContainer bool) string {
	var hints []string

	if (DetectCI(getenv) || inContainer) && getenv("MDPOSTER_BROWSER_NO_SANDBOX") != "1" {
		hints = append(hints, "set MDPOSTER_BROWSER_NO_SANDBOX=1 for Docker/CI")
	}

	if getenv("MDPOSTER_BROWSER_BIN") == "" && getenv("CHROME_PATH") == "" && getenv("ROD_BROWSER_BIN") == "" {
		hints = append(hints, "set MDPOSTER_BROWSER_BIN (or CHROME_PATH) to use an installed Chrome")
	}

	return formatHints(hints)
}

// ForAcquireTimeout returns a hint for pool exhaustion.
func ForAcquireTimeout() string {
	return format("raise pool.max or pool.acquireTimeout if load is sustained")
}

// ForConfigNotFound returns hints for config file not found errors.
func ForConfigNotFound(searchedPaths []string) string {
	hint := "use --config /path/to/file.yaml"

	for _, p := range searchedPaths {
		if strings.Contains(p, ".config/mdposter") {
			hint += " or create " + p
			break
		}
	}

	return format(hint)
}

// ForMissingToken returns a hint for a server started without an API token.
func ForMissingToken() string {
	return format("set MDPOSTER_TOKEN, token in the config file, or --token")
}

// ForCacheDir returns a hint for cache directory errors.
func ForCacheDir() string {
	return format("check cache.dir exists or its parent is writable")
}

// format creates a single hint string with consistent formatting.
func format(hint string) string {
	if hint == "" {
		return ""
	}
	return "\n  hint: " + hint
}

// formatHints joins multiple hints with consistent formatting.
func formatHints(hints []string) string {
	if len(hints) == 0 {
		return ""
	}
	return format(strings.Join(hints, "; "))
}
