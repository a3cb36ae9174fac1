package hints

// Notes:
// - Container detection goes through detectContainer with a marker path that
//   never exists, so results do not depend on the machine running the tests.

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func envOf(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

// ---------------------------------------------------------------------------
// TestDetect - Container and CI detection
// ---------------------------------------------------------------------------

func TestDetectContainer(t *testing.T) {
	t.Parallel()

	noMarker := filepath.Join(t.TempDir(), "dockerenv")

	tests := []struct {
		name     string
		env      map[string]string
		want     bool
		wantHint string
	}{
		{name: "nothing", env: nil, want: false},
		{name: "override", env: map[string]string{"MDPOSTER_CONTAINER": "1", "container": "podman"}, want: true, wantHint: "MDPOSTER_CONTAINER=1"},
		{name: "override must be 1", env: map[string]string{"MDPOSTER_CONTAINER": "yes"}, want: false},
		{name: "podman", env: map[string]string{"container": "podman"}, want: true, wantHint: "container=podman"},
		{name: "kubernetes", env: map[string]string{"KUBERNETES_SERVICE_HOST": "10.0.0.1"}, want: true, wantHint: "KUBERNETES_SERVICE_HOST"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, hint := detectContainer(envOf(tt.env), noMarker)
			if got != tt.want || hint != tt.wantHint {
				t.Errorf("detectContainer() = (%v, %q), want (%v, %q)", got, hint, tt.want, tt.wantHint)
			}
		})
	}
}

func TestDetectContainer_Marker(t *testing.T) {
	t.Parallel()

	marker := filepath.Join(t.TempDir(), "dockerenv")
	if err := writeEmpty(marker); err != nil {
		t.Fatal(err)
	}
	if got, hint := detectContainer(envOf(nil), marker); !got || hint != marker {
		t.Errorf("detectContainer() = (%v, %q), want the marker file", got, hint)
	}
}

func TestDetectCI(t *testing.T) {
	t.Parallel()

	if DetectCI(envOf(nil)) {
		t.Error("DetectCI() = true with no variables")
	}
	for _, v := range ciVars {
		if !DetectCI(envOf(map[string]string{v: "true"})) {
			t.Errorf("DetectCI() = false with %s set", v)
		}
	}
}

// ---------------------------------------------------------------------------
// TestForBrowserConnect - Browser launch hints
// ---------------------------------------------------------------------------

func TestForBrowserConnect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		env         map[string]string
		container   bool
		wantSandbox bool
		wantBin     bool
	}{
		{name: "CI", env: map[string]string{"CI": "true"}, wantSandbox: true, wantBin: true},
		{name: "container", container: true, wantSandbox: true, wantBin: true},
		{name: "sandbox already off", env: map[string]string{"MDPOSTER_BROWSER_NO_SANDBOX": "1"}, container: true, wantBin: true},
		{name: "mdposter bin set", env: map[string]string{"MDPOSTER_BROWSER_BIN": "/usr/bin/chromium"}},
		{name: "chrome path set", env: map[string]string{"CHROME_PATH": "/usr/bin/chromium"}},
		{name: "rod bin set", env: map[string]string{"ROD_BROWSER_BIN": "/usr/bin/chromium"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			hint := forBrowserConnect(envOf(tt.env), tt.container)
			if got := strings.Contains(hint, "MDPOSTER_BROWSER_NO_SANDBOX"); got != tt.wantSandbox {
				t.Errorf("sandbox hint = %v, want %v (%q)", got, tt.wantSandbox, hint)
			}
			if got := strings.Contains(hint, "MDPOSTER_BROWSER_BIN"); got != tt.wantBin {
				t.Errorf("browser bin hint = %v, want %v (%q)", got, tt.wantBin, hint)
			}
			if !tt.wantSandbox && !tt.wantBin && hint != "" {
				t.Errorf("hint = %q, want none", hint)
			}
		})
	}
}

func TestForConfigNotFound(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		paths []string
		want  string
	}{
		{
			name:  "suggests user config",
			paths: []string{"mdposter.yaml", "/home/u/.config/mdposter/mdposter.yaml"},
			want:  "or create /home/u/.config/mdposter/mdposter.yaml",
		},
		{
			name:  "flag only",
			paths: []string{"mdposter.yaml"},
			want:  "use --config /path/to/file.yaml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := ForConfigNotFound(tt.paths); !strings.Contains(got, tt.want) {
				t.Errorf("ForConfigNotFound() = %q, want it to contain %q", got, tt.want)
			}
		})
	}
}

func TestFormat_Consistency(t *testing.T) {
	t.Parallel()

	for name, hint := range map[string]string{
		"acquire timeout": ForAcquireTimeout(),
		"missing token":   ForMissingToken(),
		"cache dir":       ForCacheDir(),
		"config":          ForConfigNotFound(nil),
	} {
		if !strings.HasPrefix(hint, "\n  hint: ") {
			t.Errorf("%s hint %q lacks the standard prefix", name, hint)
		}
	}

	if format("") != "" {
		t.Error("format(\"\") should be empty")
	}
	if formatHints(nil) != "" {
		t.Error("formatHints(nil) should be empty")
	}
}

func writeEmpty(path string) error {
	return os.WriteFile(path, nil, 0o600)
}
