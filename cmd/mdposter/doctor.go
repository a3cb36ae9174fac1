package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/go-rod/rod/lib/launcher"

	"github.com/alnah/go-mdposter/internal/config"
	"github.com/alnah/go-mdposter/internal/hints"
)

// doctorResult holds all diagnostic information.
type doctorResult struct {
	Status   string     `json:"status"` // "ready", "warnings", "errors"
	Chrome   chromeInfo `json:"chrome"`
	Env      envInfo    `json:"environment"`
	Cache    cacheInfo  `json:"cache"`
	Warnings []string   `json:"warnings,omitempty"`
	Errors   []string   `json:"errors,omitempty"`
}

// chromeInfo holds Chrome/Chromium detection results.
type chromeInfo struct {
	Found   bool   `json:"found"`
	Path    string `json:"path,omitempty"`
	Version string `json:"version,omitempty"`
	Sandbox bool   `json:"sandbox"`
}

// envInfo holds environment detection results.
type envInfo struct {
	OS            string `json:"os"`
	Arch          string `json:"arch"`
	Container     bool   `json:"container"`
	ContainerHint string `json:"container_hint,omitempty"`
	CI            bool   `json:"ci"`
	TokenSet      bool   `json:"token_set"`
}

// cacheInfo holds cache backend checks.
type cacheInfo struct {
	Backend  string `json:"backend"`
	Location string `json:"location"`
	Writable bool   `json:"writable"`
}

// lookChrome finds a Chrome binary when none is configured.
var lookChrome = launcher.LookPath

// runDoctorCmd executes the doctor command and returns an exit code.
// Exit codes: 0 = OK (including warnings), 1 = errors found.
func runDoctorCmd(args []string, env *Environment) int {
	jsonOutput := false
	configName := ""
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--json":
			jsonOutput = true
		case "-c", "--config":
			if i+1 < len(args) {
				configName = args[i+1]
				i++
			}
		}
	}

	cfg, err := loadConfig(configName, env)
	if err != nil {
		fmt.Fprintln(env.Stderr, err)
		return exitCodeFor(err)
	}

	result := runDoctor(cfg, env)

	if jsonOutput {
		enc := json.NewEncoder(env.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(result)
	} else {
		printDoctorResult(env.Stdout, result)
	}

	if result.Status == "errors" {
		return ExitGeneral
	}
	return ExitSuccess
}

// runDoctor performs all diagnostic checks.
func runDoctor(cfg *config.Config, env *Environment) *doctorResult {
	result := &doctorResult{
		Status: "ready",
		Env: envInfo{
			OS:       runtime.GOOS,
			Arch:     runtime.GOARCH,
			TokenSet: cfg.Token != "",
		},
	}

	checkChrome(result, cfg)
	checkEnvironment(result, cfg, env.Getenv)
	checkCache(result, cfg)

	if len(result.Errors) > 0 {
		result.Status = "errors"
	} else if len(result.Warnings) > 0 {
		result.Status = "warnings"
	}

	return result
}

// checkChrome detects the Chrome/Chromium installation the pool would use.
func checkChrome(result *doctorResult, cfg *config.Config) {
	chromePath := cfg.Browser.Bin
	result.Chrome.Sandbox = !cfg.Browser.NoSandbox

	if chromePath == "" {
		var found bool
		chromePath, found = lookChrome()
		if !found {
			result.Errors = append(result.Errors,
				"Chrome/Chromium not found. Install Chrome or set MDPOSTER_BROWSER_BIN")
			return
		}
	}

	if _, err := os.Stat(chromePath); err != nil {
		result.Errors = append(result.Errors,
			fmt.Sprintf("Chrome not found at %s", chromePath))
		return
	}

	result.Chrome.Found = true
	result.Chrome.Path = chromePath

	out, err := exec.Command(chromePath, "--version").Output() // #nosec G204 -- configured browser path
	if err == nil {
		result.Chrome.Version = strings.TrimSpace(string(out))
	} else {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("Could not get Chrome version: %v", err))
	}
}

// checkEnvironment detects container and CI environments.
func checkEnvironment(result *doctorResult, cfg *config.Config, getenv func(string) string) {
	result.Env.Container, result.Env.ContainerHint = hints.DetectContainer(getenv)
	result.Env.CI = hints.DetectCI(getenv)

	if (result.Env.Container || result.Env.CI) && !cfg.Browser.NoSandbox {
		result.Warnings = append(result.Warnings,
			"Container/CI detected but the sandbox is enabled. Set MDPOSTER_BROWSER_NO_SANDBOX=1")
	}
	if !result.Env.TokenSet {
		result.Warnings = append(result.Warnings,
			"No API token configured. 'serve' will refuse to start until MDPOSTER_TOKEN is set")
	}
}

// checkCache verifies the file cache directory is writable. S3 is only
// reported: probing it would need network access.
func checkCache(result *doctorResult, cfg *config.Config) {
	result.Cache.Backend = cfg.Cache.Backend
	if cfg.Cache.Backend == config.CacheBackendS3 {
		result.Cache.Location = cfg.Cache.S3.Endpoint + "/" + cfg.Cache.S3.Bucket
		return
	}

	result.Cache.Location = cfg.Cache.Dir
	if err := os.MkdirAll(cfg.Cache.Dir, 0o750); err != nil {
		result.Errors = append(result.Errors,
			fmt.Sprintf("Cache directory not usable: %s", cfg.Cache.Dir))
		return
	}
	marker := filepath.Join(cfg.Cache.Dir, ".mdposter-doctor-test")
	if err := os.WriteFile(marker, []byte("test"), 0o600); err != nil {
		result.Errors = append(result.Errors,
			fmt.Sprintf("Cache directory not writable: %s", cfg.Cache.Dir))
		return
	}
	_ = os.Remove(marker)
	result.Cache.Writable = true
}

// printDoctorResult outputs human-readable diagnostic results.
func printDoctorResult(w io.Writer, r *doctorResult) {
	fmt.Fprintln(w, "mdposter doctor")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Chrome/Chromium")
	if r.Chrome.Found {
		fmt.Fprintf(w, "  [OK] Found at %s\n", r.Chrome.Path)
		if r.Chrome.Version != "" {
			fmt.Fprintf(w, "  [OK] Version: %s\n", r.Chrome.Version)
		}
		if r.Chrome.Sandbox {
			fmt.Fprintln(w, "  [OK] Sandbox: enabled")
		} else {
			fmt.Fprintln(w, "  [OK] Sandbox: disabled")
		}
	} else {
		fmt.Fprintln(w, "  [ERROR] Not found")
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Environment")
	fmt.Fprintf(w, "  [OK] Platform: %s/%s\n", r.Env.OS, r.Env.Arch)
	if r.Env.Container {
		fmt.Fprintf(w, "  [OK] Container: detected (%s)\n", r.Env.ContainerHint)
	}
	if r.Env.CI {
		fmt.Fprintln(w, "  [OK] CI: detected")
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Cache")
	if r.Cache.Writable || r.Cache.Backend == config.CacheBackendS3 {
		fmt.Fprintf(w, "  [OK] %s: %s\n", r.Cache.Backend, r.Cache.Location)
	} else {
		fmt.Fprintf(w, "  [ERROR] %s: %s\n", r.Cache.Backend, r.Cache.Location)
	}
	fmt.Fprintln(w)

	if len(r.Warnings) > 0 {
		fmt.Fprintln(w, "Warnings:")
		for _, warn := range r.Warnings {
			fmt.Fprintf(w, "  [WARN] %s\n", warn)
		}
		fmt.Fprintln(w)
	}

	if len(r.Errors) > 0 {
		fmt.Fprintln(w, "Errors:")
		for _, err := range r.Errors {
			fmt.Fprintf(w, "  [ERROR] %s\n", err)
		}
		fmt.Fprintln(w)
	}

	switch r.Status {
	case "ready":
		fmt.Fprintln(w, "Status: Ready to serve")
	case "warnings":
		fmt.Fprintln(w, "Status: Ready with warnings")
	case "errors":
		fmt.Fprintln(w, "Status: Not ready (see errors above)")
	}
}
