package main

// Notes:
// - checkChrome: a shell script stands in for Chrome so --version can run;
//   those tests are skipped on Windows.
// - Container detection: /.dockerenv may exist on the machine running the
//   tests, so only positive detection is asserted here. internal/hints covers
//   the rest.

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// fakeChrome writes an executable that prints a Chrome version.
func fakeChrome(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in needs a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "chrome")
	script := "#!/bin/sh\necho 'Chromium 130.0.6723.58'\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil { // #nosec G306 -- test executable
		t.Fatal(err)
	}
	return path
}

func runDoctorJSON(t *testing.T, vars map[string]string, args ...string) (*doctorResult, int) {
	t.Helper()

	env := newTestEnv(t, vars)
	code := runCommand(context.Background(), append([]string{"mdposter", "doctor", "--json"}, args...), env.Environment)

	var result doctorResult
	if err := json.Unmarshal([]byte(env.stdout.String()), &result); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, env.stdout.String())
	}
	return &result, code
}

// ---------------------------------------------------------------------------
// TestRunDoctorCmd - Diagnostics
// ---------------------------------------------------------------------------

func TestRunDoctorCmd_Ready(t *testing.T) {
	t.Parallel()

	chrome := fakeChrome(t)
	result, code := runDoctorJSON(t, map[string]string{
		"MDPOSTER_BROWSER_BIN": chrome,
		"MDPOSTER_TOKEN":       "secret",
		"MDPOSTER_CACHE_DIR":   t.TempDir(),
	})

	if code != ExitSuccess {
		t.Errorf("exit code = %d, want 0", code)
	}
	if !result.Chrome.Found || result.Chrome.Path != chrome {
		t.Errorf("Chrome = %+v, want found at %s", result.Chrome, chrome)
	}
	if !strings.Contains(result.Chrome.Version, "Chromium 130") {
		t.Errorf("Chrome.Version = %q", result.Chrome.Version)
	}
	if !result.Cache.Writable {
		t.Error("Cache.Writable = false for a temp dir")
	}
	if !result.Env.TokenSet {
		t.Error("Env.TokenSet = false with MDPOSTER_TOKEN set")
	}
}

func TestRunDoctorCmd_MissingChrome(t *testing.T) {
	t.Parallel()

	result, code := runDoctorJSON(t, map[string]string{
		"MDPOSTER_BROWSER_BIN": filepath.Join(t.TempDir(), "no-such-chrome"),
		"MDPOSTER_CACHE_DIR":   t.TempDir(),
	})

	if code != ExitGeneral {
		t.Errorf("exit code = %d, want %d", code, ExitGeneral)
	}
	if result.Status != "errors" {
		t.Errorf("Status = %q, want errors", result.Status)
	}
	if result.Chrome.Found {
		t.Error("Chrome.Found = true for a missing binary")
	}
}

func TestRunDoctorCmd_LegacyChromePath(t *testing.T) {
	t.Parallel()

	chrome := fakeChrome(t)
	result, _ := runDoctorJSON(t, map[string]string{
		"CHROME_PATH":        chrome,
		"MDPOSTER_CACHE_DIR": t.TempDir(),
	})
	if result.Chrome.Path != chrome {
		t.Errorf("Chrome.Path = %q, want %q", result.Chrome.Path, chrome)
	}
}

func TestRunDoctorCmd_CacheNotWritable(t *testing.T) {
	t.Parallel()

	// A regular file where the directory should be.
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	result, code := runDoctorJSON(t, map[string]string{
		"MDPOSTER_BROWSER_BIN": fakeChrome(t),
		"MDPOSTER_CACHE_DIR":   filepath.Join(blocker, "cache"),
	})
	if code != ExitGeneral {
		t.Errorf("exit code = %d, want %d", code, ExitGeneral)
	}
	if result.Cache.Writable {
		t.Error("Cache.Writable = true under a regular file")
	}
}

func TestRunDoctorCmd_ContainerDetection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		vars     map[string]string
		wantHint string
	}{
		{name: "override", vars: map[string]string{"MDPOSTER_CONTAINER": "1"}, wantHint: "MDPOSTER_CONTAINER=1"},
		{name: "kubernetes", vars: map[string]string{"KUBERNETES_SERVICE_HOST": "10.0.0.1"}},
		{name: "podman", vars: map[string]string{"container": "podman"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tt.vars["MDPOSTER_CACHE_DIR"] = t.TempDir()
			result, _ := runDoctorJSON(t, tt.vars)
			if !result.Env.Container {
				t.Fatal("Env.Container = false, want true")
			}
			if tt.wantHint != "" && result.Env.ContainerHint != tt.wantHint {
				t.Errorf("ContainerHint = %q, want %q", result.Env.ContainerHint, tt.wantHint)
			}
		})
	}
}

func TestRunDoctorCmd_SandboxWarning(t *testing.T) {
	t.Parallel()

	chrome := fakeChrome(t)
	cacheDir := t.TempDir()

	t.Run("container with sandbox warns", func(t *testing.T) {
		t.Parallel()

		result, code := runDoctorJSON(t, map[string]string{
			"MDPOSTER_BROWSER_BIN": chrome,
			"MDPOSTER_CACHE_DIR":   cacheDir,
			"MDPOSTER_TOKEN":       "secret",
			"MDPOSTER_CONTAINER":   "1",
		})
		if code != ExitSuccess {
			t.Errorf("exit code = %d, warnings must not fail", code)
		}
		if result.Status != "warnings" {
			t.Errorf("Status = %q, want warnings", result.Status)
		}
		if !containsWarning(result.Warnings, "MDPOSTER_BROWSER_NO_SANDBOX") {
			t.Errorf("Warnings = %v, want a sandbox warning", result.Warnings)
		}
	})

	t.Run("CI without sandbox is quiet", func(t *testing.T) {
		t.Parallel()

		result, _ := runDoctorJSON(t, map[string]string{
			"MDPOSTER_BROWSER_BIN":        chrome,
			"MDPOSTER_CACHE_DIR":          cacheDir,
			"MDPOSTER_TOKEN":              "secret",
			"GITHUB_ACTIONS":              "true",
			"MDPOSTER_BROWSER_NO_SANDBOX": "1",
		})
		if !result.Env.CI {
			t.Error("Env.CI = false with GITHUB_ACTIONS set")
		}
		if result.Chrome.Sandbox {
			t.Error("Chrome.Sandbox = true with MDPOSTER_BROWSER_NO_SANDBOX=1")
		}
		if containsWarning(result.Warnings, "sandbox") {
			t.Errorf("Warnings = %v, want no sandbox warning", result.Warnings)
		}
	})
}

func TestRunDoctorCmd_TokenWarning(t *testing.T) {
	t.Parallel()

	result, _ := runDoctorJSON(t, map[string]string{
		"MDPOSTER_BROWSER_BIN": fakeChrome(t),
		"MDPOSTER_CACHE_DIR":   t.TempDir(),
	})
	if !containsWarning(result.Warnings, "MDPOSTER_TOKEN") {
		t.Errorf("Warnings = %v, want a token warning", result.Warnings)
	}
}

func TestRunDoctorCmd_HumanOutput(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, map[string]string{
		"MDPOSTER_BROWSER_BIN": fakeChrome(t),
		"MDPOSTER_CACHE_DIR":   t.TempDir(),
		"MDPOSTER_TOKEN":       "secret",
		"MDPOSTER_CONTAINER":   "1",
	})
	runCommand(context.Background(), []string{"mdposter", "doctor"}, env.Environment)

	out := env.stdout.String()
	for _, want := range []string{
		"mdposter doctor",
		"[OK] Found at",
		"[OK] Container: detected (MDPOSTER_CONTAINER=1)",
		"[WARN]",
		"Status: Ready with warnings",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintDoctorResult_StatusLine(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"ready":    "Status: Ready to serve",
		"warnings": "Status: Ready with warnings",
		"errors":   "Status: Not ready (see errors above)",
	}
	for status, want := range tests {
		var buf syncBuffer
		printDoctorResult(&buf, &doctorResult{Status: status})
		if !strings.Contains(buf.String(), want) {
			t.Errorf("status %q: output missing %q", status, want)
		}
	}
}

func containsWarning(warnings []string, substr string) bool {
	for _, w := range warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}
