package main

// Notes:
// - loadConfig/apply: we test the precedence chain flags > env > file >
//   defaults through the same calls the commands make.
// - openCache: only the file backend is built here; the S3 backend needs a
//   server and is covered in internal/cache.

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	mdposter "github.com/alnah/go-mdposter"
	"github.com/alnah/go-mdposter/internal/assets"
	"github.com/alnah/go-mdposter/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mdposter.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// ---------------------------------------------------------------------------
// TestLoadConfig - Layered configuration
// ---------------------------------------------------------------------------

func TestLoadConfig_Precedence(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
listen: ":9000"
token: from-file
pool:
  min: 1
  max: 3
render:
  defaultTheme: Classic
`)
	env := newTestEnv(t, map[string]string{
		"MDPOSTER_CONFIG":   path,
		"MDPOSTER_POOL_MAX": "5",
		"MDPOSTER_TOKEN":    "from-env",
	})

	flags, err := parseServeFlags([]string{"--pool-max", "7", "--default-theme", "Midnight"}, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := loadConfig(flags.common.config, env.Environment)
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	flags.apply(cfg)

	if cfg.Listen != ":9000" {
		t.Errorf("Listen = %q, want the file value", cfg.Listen)
	}
	if cfg.Pool.Min != 1 {
		t.Errorf("Pool.Min = %d, want the file value", cfg.Pool.Min)
	}
	if cfg.Token != "from-env" {
		t.Errorf("Token = %q, env must override the file", cfg.Token)
	}
	if cfg.Pool.Max != 7 {
		t.Errorf("Pool.Max = %d, flags must override env", cfg.Pool.Max)
	}
	if cfg.Render.DefaultTheme != "Midnight" {
		t.Errorf("DefaultTheme = %q, flags must override the file", cfg.Render.DefaultTheme)
	}
	if cfg.Pool.AcquireTimeout != 30*time.Second {
		t.Errorf("AcquireTimeout = %v, unset keys keep defaults", cfg.Pool.AcquireTimeout)
	}
}

func TestLoadConfig_FlagBeatsEnvConfigName(t *testing.T) {
	t.Parallel()

	fromFlag := writeConfig(t, "token: flag-file\n")
	env := newTestEnv(t, map[string]string{"MDPOSTER_CONFIG": filepath.Join(t.TempDir(), "missing.yaml")})

	cfg, err := loadConfig(fromFlag, env.Environment)
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Token != "flag-file" {
		t.Errorf("Token = %q, want flag-file", cfg.Token)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		config  string
		vars    map[string]string
		wantErr error
	}{
		{
			name:    "explicit config missing",
			config:  filepath.Join(t.TempDir(), "missing.yaml"),
			wantErr: config.ErrConfigNotFound,
		},
		{
			name:    "env config missing",
			vars:    map[string]string{"MDPOSTER_CONFIG": filepath.Join(t.TempDir(), "missing.yaml")},
			wantErr: config.ErrConfigNotFound,
		},
		{
			name:    "bad env value",
			vars:    map[string]string{"MDPOSTER_POOL_MAX": "lots"},
			wantErr: config.ErrInvalidValue,
		},
		{
			name:    "bad yaml",
			config:  writeConfig(t, "pool: [unclosed\n"),
			wantErr: config.ErrConfigParse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := newTestEnv(t, tt.vars)
			if _, err := loadConfig(tt.config, env.Environment); !errors.Is(err, tt.wantErr) {
				t.Errorf("loadConfig() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfig_NotFoundHint(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"), env.Environment)
	if err == nil || !strings.Contains(err.Error(), "--config") {
		t.Errorf("loadConfig() error = %v, want a --config hint", err)
	}
}

// ---------------------------------------------------------------------------
// TestOpenCache / TestNewSurface - Component construction
// ---------------------------------------------------------------------------

func TestOpenCache_CreatesDir(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "posters")
	store, err := openCache(config.CacheConfig{Backend: config.CacheBackendFile, Dir: dir})
	if err != nil {
		t.Fatalf("openCache() error = %v", err)
	}
	if store == nil {
		t.Fatal("openCache() returned nil store")
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Errorf("cache dir not created: %v", err)
	}
}

func TestOpenCache_Unwritable(t *testing.T) {
	t.Parallel()

	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := openCache(config.CacheConfig{Backend: config.CacheBackendFile, Dir: filepath.Join(blocker, "posters")})
	if !errors.Is(err, mdposter.ErrCacheIO) {
		t.Errorf("openCache() error = %v, want ErrCacheIO", err)
	}
}

func TestNewSurface_BadAssetsDir(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Surface.AssetsDir = filepath.Join(t.TempDir(), "missing")

	env := newTestEnv(t, nil)
	_, err := newSurface(cfg, newLogger(env.Stderr, "error"))
	if !errors.Is(err, assets.ErrInvalidBasePath) {
		t.Errorf("newSurface() error = %v, want ErrInvalidBasePath", err)
	}
}

func TestWithBrowserHint(t *testing.T) {
	t.Parallel()

	getenv := func(string) string { return "" }

	plain := errors.New("boom")
	if got := withBrowserHint(plain, getenv); got != plain {
		t.Errorf("withBrowserHint(plain) = %v, want unchanged", got)
	}

	hinted := withBrowserHint(mdposter.ErrAcquisitionTimeout, getenv)
	if !errors.Is(hinted, mdposter.ErrAcquisitionTimeout) {
		t.Error("hint must keep the sentinel in the chain")
	}
	if hinted.Error() == mdposter.ErrAcquisitionTimeout.Error() {
		t.Error("withBrowserHint() added no hint")
	}

	launch := withBrowserHint(mdposter.ErrSessionCreate, getenv)
	if !strings.Contains(launch.Error(), "MDPOSTER_BROWSER_BIN") {
		t.Errorf("launch failure hint = %q, want a browser bin suggestion", launch)
	}
}

func TestNewLogger_Level(t *testing.T) {
	t.Parallel()

	var buf syncBuffer
	logger := newLogger(&buf, "warn")
	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Errorf("log output = %q, want only the warning", out)
	}
}
