package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	mdposter "github.com/alnah/go-mdposter"
	"github.com/alnah/go-mdposter/internal/assets"
	"github.com/alnah/go-mdposter/internal/cache"
	"github.com/alnah/go-mdposter/internal/config"
	"github.com/alnah/go-mdposter/internal/hints"
	"github.com/alnah/go-mdposter/internal/surface"
)

// defaultConfigName is tried silently when no config is named.
const defaultConfigName = "mdposter"

// loadConfig resolves configuration: defaults, then the config file, then
// environment variables. Flags are applied by the caller.
func loadConfig(name string, env *Environment) (*config.Config, error) {
	explicit := name != ""
	if !explicit {
		name = env.Getenv(config.EnvConfigPath)
		explicit = name != ""
	}
	if !explicit {
		name = defaultConfigName
	}

	cfg, err := config.LoadConfig(name)
	switch {
	case err == nil:
	case errors.Is(err, config.ErrConfigNotFound) && !explicit:
		cfg = config.DefaultConfig()
	case errors.Is(err, config.ErrConfigNotFound):
		return nil, fmt.Errorf("%w%s", err, hints.ForConfigNotFound(config.SearchPaths(name)))
	default:
		return nil, err
	}

	if err := config.ApplyEnv(cfg, env.Getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// warnUnknownEnv logs MDPOSTER_* variables nothing reads, usually typos.
func warnUnknownEnv(logger *slog.Logger, env *Environment) {
	for _, name := range config.UnknownEnvVars(env.Environ()) {
		logger.Warn("unknown environment variable", "name", name)
	}
}

// newLogger returns a text logger at the configured level.
func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// openCache builds the configured cache backend.
func openCache(cfg config.CacheConfig) (mdposter.Cache, error) {
	switch cfg.Backend {
	case config.CacheBackendS3:
		store, err := cache.NewS3Store(cache.S3Config{
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Bucket:    cfg.S3.Bucket,
			Prefix:    cfg.S3.Prefix,
			Region:    cfg.S3.Region,
			UseSSL:    cfg.S3.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
			return nil, fmt.Errorf("%w: %v%s", mdposter.ErrCacheIO, err, hints.ForCacheDir())
		}
		store, err := cache.NewFileStore(cfg.Dir)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}

// newSurface builds the built-in poster page handler.
func newSurface(cfg *config.Config, logger *slog.Logger) (*surface.Surface, error) {
	resolver, err := assets.NewAssetResolver(cfg.Surface.AssetsDir)
	if err != nil {
		return nil, err
	}
	if resolver.HasCustomLoader() {
		logger.Debug("custom surface assets", "dir", cfg.Surface.AssetsDir)
	}
	s, err := surface.New(
		surface.WithAssets(resolver),
		surface.WithLang(cfg.Render.Lang),
		surface.WithDefaultTheme(cfg.Render.DefaultTheme),
		surface.WithLogger(logger.With("component", "surface")),
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// newPool builds the session pool over env's browser factory.
func newPool(cfg *config.Config, env *Environment, logger *slog.Logger, opts ...mdposter.PoolOption) *mdposter.Pool {
	factory := env.NewFactory(mdposter.BrowserConfig{
		Bin:       cfg.Browser.Bin,
		NoSandbox: cfg.Browser.NoSandbox,
	})
	opts = append([]mdposter.PoolOption{mdposter.WithPoolLogger(logger.With("component", "pool"))}, opts...)
	return mdposter.NewPool(factory, mdposter.PoolConfig{
		Min:            cfg.Pool.Min,
		Max:            cfg.Pool.Max,
		AcquireTimeout: cfg.Pool.AcquireTimeout,
		MaxUses:        cfg.Pool.MaxUses,
	}, opts...)
}

// rendererOptions maps render settings onto renderer options.
func rendererOptions(cfg *config.Config, surfaceURL string, logger *slog.Logger) []mdposter.RendererOption {
	r := cfg.Render
	return []mdposter.RendererOption{
		mdposter.WithSurfaceURL(surfaceURL),
		mdposter.WithSurfacePath(r.SurfacePath),
		mdposter.WithTargetSelector(r.TargetSelector),
		mdposter.WithReadySelector(r.ReadySelector),
		mdposter.WithNavigateTimeout(r.NavigateTimeout),
		mdposter.WithReadyTimeout(r.ReadyTimeout),
		mdposter.WithSettleDelay(r.SettleDelay),
		mdposter.WithViewport(r.ViewportWidth, r.ViewportHeight),
		mdposter.WithAcceptLanguage(r.AcceptLanguage),
		mdposter.WithLang(r.Lang),
		mdposter.WithFontCSS(r.FontCSS),
		mdposter.WithDefaultTheme(r.DefaultTheme),
		mdposter.WithCoalescing(r.Coalesce),
		mdposter.WithRendererLogger(logger.With("component", "renderer")),
	}
}

// withBrowserHint appends setup hints to browser launch failures.
func withBrowserHint(err error, getenv func(string) string) error {
	switch {
	case errors.Is(err, mdposter.ErrBrowserConnect), errors.Is(err, mdposter.ErrSessionCreate):
		return fmt.Errorf("%w%s", err, hints.ForBrowserConnect(getenv))
	case errors.Is(err, mdposter.ErrAcquisitionTimeout):
		return fmt.Errorf("%w%s", err, hints.ForAcquireTimeout())
	}
	return err
}
