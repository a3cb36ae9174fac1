package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix prefixes every service environment variable.
const EnvPrefix = "MDPOSTER_"

// EnvConfigPath names the config file to load.
const EnvConfigPath = "MDPOSTER_CONFIG"

// EnvContainer forces container detection in the doctor command.
const EnvContainer = "MDPOSTER_CONTAINER"

// envSetter applies one environment value to a config.
type envSetter func(cfg *Config, value string) error

// envVars maps recognized variables to their setters. Non-prefixed names are
// kept for deployments configured for the previous service.
var envVars = map[string]envSetter{
	EnvConfigPath:                   func(*Config, string) error { return nil },
	EnvContainer:                    func(*Config, string) error { return nil },
	"MDPOSTER_LISTEN":               setString(func(c *Config) *string { return &c.Listen }),
	"MDPOSTER_TOKEN":                setString(func(c *Config) *string { return &c.Token }),
	"MDPOSTER_TOKEN_HEADER":         setString(func(c *Config) *string { return &c.TokenHeader }),
	"MDPOSTER_LOG_LEVEL":            setString(func(c *Config) *string { return &c.LogLevel }),
	"MDPOSTER_SHUTDOWN_TIMEOUT":     setDuration(func(c *Config) *time.Duration { return &c.ShutdownTimeout }),
	"MDPOSTER_POOL_MIN":             setInt(func(c *Config) *int { return &c.Pool.Min }),
	"MDPOSTER_POOL_MAX":             setInt(func(c *Config) *int { return &c.Pool.Max }),
	"MDPOSTER_POOL_ACQUIRE_TIMEOUT": setDuration(func(c *Config) *time.Duration { return &c.Pool.AcquireTimeout }),
	"MDPOSTER_POOL_MAX_USES":        setInt(func(c *Config) *int { return &c.Pool.MaxUses }),
	"MDPOSTER_POOL_WARM":            setBool(func(c *Config) *bool { return &c.Pool.Warm }),
	"MDPOSTER_BROWSER_BIN":          setString(func(c *Config) *string { return &c.Browser.Bin }),
	"MDPOSTER_BROWSER_NO_SANDBOX":   setBool(func(c *Config) *bool { return &c.Browser.NoSandbox }),
	"MDPOSTER_SURFACE_URL":          setString(func(c *Config) *string { return &c.Render.SurfaceURL }),
	"MDPOSTER_SURFACE_BUILTIN":      setBool(func(c *Config) *bool { return &c.Surface.Builtin }),
	"MDPOSTER_SURFACE_ASSETS_DIR":   setString(func(c *Config) *string { return &c.Surface.AssetsDir }),
	"MDPOSTER_SURFACE_PUBLIC":       setBool(func(c *Config) *bool { return &c.Surface.Public }),
	"MDPOSTER_DEFAULT_THEME":        setString(func(c *Config) *string { return &c.Render.DefaultTheme }),
	"MDPOSTER_FONT_CSS":             setString(func(c *Config) *string { return &c.Render.FontCSS }),
	"MDPOSTER_COALESCE":             setBool(func(c *Config) *bool { return &c.Render.Coalesce }),
	"MDPOSTER_CACHE_BACKEND":        setString(func(c *Config) *string { return &c.Cache.Backend }),
	"MDPOSTER_CACHE_DIR":            setString(func(c *Config) *string { return &c.Cache.Dir }),
	"MDPOSTER_S3_ENDPOINT":          setString(func(c *Config) *string { return &c.Cache.S3.Endpoint }),
	"MDPOSTER_S3_ACCESS_KEY":        setString(func(c *Config) *string { return &c.Cache.S3.AccessKey }),
	"MDPOSTER_S3_SECRET_KEY":        setString(func(c *Config) *string { return &c.Cache.S3.SecretKey }),
	"MDPOSTER_S3_BUCKET":            setString(func(c *Config) *string { return &c.Cache.S3.Bucket }),
	"MDPOSTER_S3_PREFIX":            setString(func(c *Config) *string { return &c.Cache.S3.Prefix }),
	"MDPOSTER_S3_REGION":            setString(func(c *Config) *string { return &c.Cache.S3.Region }),
	"MDPOSTER_S3_USE_SSL":           setBool(func(c *Config) *bool { return &c.Cache.S3.UseSSL }),
	"MDPOSTER_RATE_LIMIT_RPS":       setFloat(func(c *Config) *float64 { return &c.RateLimit.RPS }),
	"MDPOSTER_RATE_LIMIT_BURST":     setInt(func(c *Config) *int { return &c.RateLimit.Burst }),
}

// legacyEnvVars are applied before the MDPOSTER_* variables, which win.
var legacyEnvVars = []struct {
	name string
	set  envSetter
}{
	{"ROD_BROWSER_BIN", setString(func(c *Config) *string { return &c.Browser.Bin })},
	{"CHROME_PATH", setString(func(c *Config) *string { return &c.Browser.Bin })},
	{"CHROME_POOL_MIN", setInt(func(c *Config) *int { return &c.Pool.Min })},
	{"CHROME_POOL_MAX", setInt(func(c *Config) *int { return &c.Pool.Max })},
}

// ApplyEnv overrides cfg with environment values read through getenv.
// Empty values are ignored. Precedence: flags > env > file > defaults.
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}

	for _, v := range legacyEnvVars {
		if value := getenv(v.name); value != "" {
			if err := v.set(cfg, value); err != nil {
				return fmt.Errorf("%s: %w", v.name, err)
			}
		}
	}

	names := make([]string, 0, len(envVars))
	for name := range envVars {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value := getenv(name)
		if value == "" {
			continue
		}
		if err := envVars[name](cfg, value); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// UnknownEnvVars returns MDPOSTER_* names in environ that are not recognized,
// so typos like MDPOSTER_POOL_MAXX can be reported.
func UnknownEnvVars(environ []string) []string {
	var unknown []string
	for _, env := range environ {
		if !strings.HasPrefix(env, EnvPrefix) {
			continue
		}
		name := strings.SplitN(env, "=", 2)[0]
		if _, ok := envVars[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	return unknown
}

// KnownEnvVars lists every recognized variable, legacy names included.
func KnownEnvVars() []string {
	names := make([]string, 0, len(envVars)+len(legacyEnvVars))
	for name := range envVars {
		names = append(names, name)
	}
	for _, v := range legacyEnvVars {
		names = append(names, v.name)
	}
	sort.Strings(names)
	return names
}

func setString(field func(*Config) *string) envSetter {
	return func(c *Config, v string) error {
		*field(c) = v
		return nil
	}
}

func setInt(field func(*Config) *int) envSetter {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %q is not an integer", ErrInvalidValue, v)
		}
		*field(c) = n
		return nil
	}
}

func setFloat(field func(*Config) *float64) envSetter {
	return func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: %q is not a number", ErrInvalidValue, v)
		}
		*field(c) = f
		return nil
	}
}

func setBool(field func(*Config) *bool) envSetter {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %q is not a boolean", ErrInvalidValue, v)
		}
		*field(c) = b
		return nil
	}
}

func setDuration(field func(*Config) *time.Duration) envSetter {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %q is not a duration", ErrInvalidValue, v)
		}
		*field(c) = d
		return nil
	}
}
