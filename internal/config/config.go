package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alnah/go-mdposter/internal/fileutil"
	"github.com/alnah/go-mdposter/internal/yamlutil"
)

// Sentinel errors for config operations.
var (
	ErrConfigNotFound  = errors.New("config file not found")
	ErrEmptyConfigName = errors.New("config name cannot be empty")
	ErrConfigParse     = errors.New("failed to parse config")
	ErrFieldTooLong    = errors.New("field exceeds maximum length")
	ErrMissingToken    = errors.New("token is required")
	ErrInvalidValue    = errors.New("invalid config value")
)

// Field length limits.
const (
	MaxTokenLength    = 256
	MaxURLLength      = 2048
	MaxSelectorLength = 256
	MaxFontCSSLength  = 64 << 10
	MaxThemeLength    = 64
)

// Cache backends.
const (
	CacheBackendFile = "file"
	CacheBackendS3   = "s3"
)

// Config holds all configuration for the poster service.
type Config struct {
	Listen          string          `yaml:"listen"`
	Token           string          `yaml:"token"`
	TokenHeader     string          `yaml:"tokenHeader"` // "Authorization" accepts "Bearer <token>"
	LogLevel        string          `yaml:"logLevel"`    // debug, info, warn, error
	ShutdownTimeout time.Duration   `yaml:"shutdownTimeout"`
	Pool            PoolConfig      `yaml:"pool"`
	Browser         BrowserConfig   `yaml:"browser"`
	Render          RenderConfig    `yaml:"render"`
	Cache           CacheConfig     `yaml:"cache"`
	Surface         SurfaceConfig   `yaml:"surface"`
	RateLimit       RateLimitConfig `yaml:"rateLimit"`
}

// PoolConfig bounds the browser session pool.
type PoolConfig struct {
	Min            int           `yaml:"min"`
	Max            int           `yaml:"max"`
	AcquireTimeout time.Duration `yaml:"acquireTimeout"`
	MaxUses        int           `yaml:"maxUses"`
	Warm           bool          `yaml:"warm"` // create Min sessions at startup
}

// BrowserConfig defines how Chrome is launched.
type BrowserConfig struct {
	Bin       string `yaml:"bin"` // empty = let rod find or download Chrome
	NoSandbox bool   `yaml:"noSandbox"`
}

// RenderConfig tunes the render pipeline.
type RenderConfig struct {
	SurfaceURL      string        `yaml:"surfaceURL"` // empty = built-in surface on Listen
	SurfacePath     string        `yaml:"surfacePath"`
	TargetSelector  string        `yaml:"targetSelector"`
	ReadySelector   string        `yaml:"readySelector"`
	NavigateTimeout time.Duration `yaml:"navigateTimeout"`
	ReadyTimeout    time.Duration `yaml:"readyTimeout"`
	SettleDelay     time.Duration `yaml:"settleDelay"`
	ViewportWidth   int           `yaml:"viewportWidth"`
	ViewportHeight  int           `yaml:"viewportHeight"`
	AcceptLanguage  string        `yaml:"acceptLanguage"`
	Lang            string        `yaml:"lang"`
	FontCSS         string        `yaml:"fontCSS"`
	DefaultTheme    string        `yaml:"defaultTheme"`
	Coalesce        bool          `yaml:"coalesce"`
}

// CacheConfig selects and configures the poster cache.
type CacheConfig struct {
	Backend string   `yaml:"backend"` // "file" or "s3"
	Dir     string   `yaml:"dir"`
	S3      S3Config `yaml:"s3"`
}

// S3Config configures the S3-compatible cache backend.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"` // empty = ask the server on first use
	UseSSL    bool   `yaml:"useSSL"`
}

// SurfaceConfig controls the built-in poster page.
type SurfaceConfig struct {
	Builtin   bool   `yaml:"builtin"`
	AssetsDir string `yaml:"assetsDir"` // optional themes/ and templates/ overrides

	// Public serves the built-in page to any client. By default only
	// loopback clients, such as the pooled browsers, may load it.
	Public bool `yaml:"public"`
}

// RateLimitConfig configures the API token bucket. RPS 0 disables it.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// DefaultConfig returns the configuration used when nothing overrides it.
// The token is left empty and must be provided.
func DefaultConfig() *Config {
	return &Config{
		Listen:          ":8080",
		TokenHeader:     "Authorization",
		LogLevel:        "info",
		ShutdownTimeout: 30 * time.Second,
		Pool: PoolConfig{
			Min:            2,
			Max:            4,
			AcquireTimeout: 30 * time.Second,
			MaxUses:        50,
			Warm:           true,
		},
		Render: RenderConfig{
			SurfacePath:     "/poster",
			TargetSelector:  ".poster-content",
			ReadySelector:   "body[data-poster-ready]",
			NavigateTimeout: 30 * time.Second,
			ReadyTimeout:    15 * time.Second,
			SettleDelay:     time.Second,
			ViewportWidth:   1200,
			ViewportHeight:  1600,
			AcceptLanguage:  "zh-CN,zh;q=0.9",
			Lang:            "zh-CN",
			DefaultTheme:    "SpringGradientWave",
		},
		Cache: CacheConfig{
			Backend: CacheBackendFile,
			Dir:     filepath.Join("public", "uploads", "posters"),
		},
		Surface: SurfaceConfig{Builtin: true},
		RateLimit: RateLimitConfig{
			RPS:   10,
			Burst: 20,
		},
	}
}

// Validate checks ranges, enums and lengths.
// The CLI calls it once env and flag overrides are applied.
func (c *Config) Validate() error {
	if c.Token == "" {
		return ErrMissingToken
	}
	if err := validateFieldLength("token", c.Token, MaxTokenLength); err != nil {
		return err
	}
	if c.TokenHeader == "" {
		return fmt.Errorf("%w: tokenHeader: must not be empty", ErrInvalidValue)
	}
	return c.ValidateRendering()
}

// ValidateRendering checks everything except the API token settings, which
// one-shot rendering does not use.
func (c *Config) ValidateRendering() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: logLevel: %q (must be debug, info, warn, or error)", ErrInvalidValue, c.LogLevel)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: shutdownTimeout: must be positive", ErrInvalidValue)
	}

	if err := c.Pool.validate(); err != nil {
		return err
	}
	if err := c.Render.validate(c.Surface.Builtin); err != nil {
		return err
	}
	if err := c.Cache.validate(); err != nil {
		return err
	}

	if c.RateLimit.RPS < 0 {
		return fmt.Errorf("%w: rateLimit.rps: must not be negative", ErrInvalidValue)
	}
	if c.RateLimit.RPS > 0 && c.RateLimit.Burst < 1 {
		return fmt.Errorf("%w: rateLimit.burst: must be at least 1 when rps is set", ErrInvalidValue)
	}
	return nil
}

func (p PoolConfig) validate() error {
	if p.Max < 1 {
		return fmt.Errorf("%w: pool.max: must be at least 1, got %d", ErrInvalidValue, p.Max)
	}
	if p.Min < 0 || p.Min > p.Max {
		return fmt.Errorf("%w: pool.min: must be between 0 and pool.max (%d), got %d", ErrInvalidValue, p.Max, p.Min)
	}
	if p.AcquireTimeout <= 0 {
		return fmt.Errorf("%w: pool.acquireTimeout: must be positive", ErrInvalidValue)
	}
	if p.MaxUses < 1 {
		return fmt.Errorf("%w: pool.maxUses: must be at least 1, got %d", ErrInvalidValue, p.MaxUses)
	}
	return nil
}

func (r RenderConfig) validate(builtinSurface bool) error {
	if r.SurfaceURL == "" && !builtinSurface {
		return fmt.Errorf("%w: render.surfaceURL: required when the built-in surface is disabled", ErrInvalidValue)
	}
	if r.SurfaceURL != "" {
		if err := validateFieldLength("render.surfaceURL", r.SurfaceURL, MaxURLLength); err != nil {
			return err
		}
		if !fileutil.IsURL(r.SurfaceURL) {
			return fmt.Errorf("%w: render.surfaceURL: %q is not an http(s) URL", ErrInvalidValue, r.SurfaceURL)
		}
		if _, err := url.Parse(r.SurfaceURL); err != nil {
			return fmt.Errorf("%w: render.surfaceURL: %v", ErrInvalidValue, err)
		}
	}
	if !strings.HasPrefix(r.SurfacePath, "/") {
		return fmt.Errorf("%w: render.surfacePath: must start with /", ErrInvalidValue)
	}
	if r.TargetSelector == "" {
		return fmt.Errorf("%w: render.targetSelector: must not be empty", ErrInvalidValue)
	}
	if err := validateFieldLength("render.targetSelector", r.TargetSelector, MaxSelectorLength); err != nil {
		return err
	}
	if err := validateFieldLength("render.readySelector", r.ReadySelector, MaxSelectorLength); err != nil {
		return err
	}
	if err := validateFieldLength("render.fontCSS", r.FontCSS, MaxFontCSSLength); err != nil {
		return err
	}
	if err := validateFieldLength("render.defaultTheme", r.DefaultTheme, MaxThemeLength); err != nil {
		return err
	}
	if r.NavigateTimeout <= 0 || r.ReadyTimeout <= 0 {
		return fmt.Errorf("%w: render timeouts must be positive", ErrInvalidValue)
	}
	if r.SettleDelay < 0 {
		return fmt.Errorf("%w: render.settleDelay: must not be negative", ErrInvalidValue)
	}
	if r.ViewportWidth < 1 || r.ViewportHeight < 1 {
		return fmt.Errorf("%w: render viewport must be positive, got %dx%d", ErrInvalidValue, r.ViewportWidth, r.ViewportHeight)
	}
	return nil
}

func (c CacheConfig) validate() error {
	switch c.Backend {
	case CacheBackendFile:
		if c.Dir == "" {
			return fmt.Errorf("%w: cache.dir: required for the file backend", ErrInvalidValue)
		}
	case CacheBackendS3:
		if c.S3.Endpoint == "" || c.S3.Bucket == "" {
			return fmt.Errorf("%w: cache.s3: endpoint and bucket are required", ErrInvalidValue)
		}
	default:
		return fmt.Errorf("%w: cache.backend: %q (must be file or s3)", ErrInvalidValue, c.Backend)
	}
	return nil
}

// SurfaceBaseURL returns the URL the browser uses to reach the poster page:
// render.surfaceURL when set, otherwise the local listen address.
func (c *Config) SurfaceBaseURL() (string, error) {
	if c.Render.SurfaceURL != "" {
		return c.Render.SurfaceURL, nil
	}
	host, port, err := net.SplitHostPort(c.Listen)
	if err != nil {
		return "", fmt.Errorf("%w: listen: %v", ErrInvalidValue, err)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port), nil
}

// validateFieldLength checks if a field exceeds its maximum allowed length.
func validateFieldLength(fieldName, value string, maxLength int) error {
	if len(value) > maxLength {
		return fmt.Errorf("%w: %s (%d chars, max %d)", ErrFieldTooLong, fieldName, len(value), maxLength)
	}
	return nil
}

// LoadConfig loads configuration from a file path or config name, on top of
// DefaultConfig. If nameOrPath contains a path separator, it's treated as a
// file path. Otherwise, it's searched in standard locations.
// The result is not validated: overrides may still follow.
func LoadConfig(nameOrPath string) (*Config, error) {
	if nameOrPath == "" {
		return nil, ErrEmptyConfigName
	}

	var configPath string
	var err error

	if isFilePath(nameOrPath) {
		configPath = nameOrPath
	} else {
		configPath, err = resolveConfigPath(nameOrPath)
		if err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- config path is user-provided
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, configPath)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yamlutil.UnmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigParse, err)
	}
	return cfg, nil
}

// isFilePath returns true if the string looks like a file path.
func isFilePath(s string) bool {
	return strings.ContainsAny(s, "/\\") || strings.HasSuffix(s, ".yaml") || strings.HasSuffix(s, ".yml")
}

// SearchPaths returns the locations resolveConfigPath tries for name.
func SearchPaths(name string) []string {
	extensions := []string{".yaml", ".yml"}
	paths := make([]string, 0, len(extensions)*2)
	for _, ext := range extensions {
		paths = append(paths, name+ext)
	}
	if userConfigDir, err := os.UserConfigDir(); err == nil {
		for _, ext := range extensions {
			paths = append(paths, filepath.Join(userConfigDir, "mdposter", name+ext))
		}
	}
	return paths
}

// resolveConfigPath searches for a config file by name in standard locations:
// the current directory, then the user config directory (mdposter/).
func resolveConfigPath(name string) (string, error) {
	if err := fileutil.ValidateName(name); err != nil {
		return "", fmt.Errorf("%w: config name %q: %v", ErrInvalidValue, name, err)
	}
	paths := SearchPaths(name)
	for _, p := range paths {
		if fileutil.FileExists(p) {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: tried %s", ErrConfigNotFound, strings.Join(paths, ", "))
}
