package main

import (
	"fmt"
	"io"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/alnah/go-mdposter/internal/config"
)

// commonFlags holds flags shared across commands.
type commonFlags struct {
	config  string
	verbose bool
}

// browserFlags holds Chrome and rendering overrides.
type browserFlags struct {
	bin          string
	noSandbox    bool
	poolMin      int
	poolMax      int
	surfaceURL   string
	assetsDir    string
	defaultTheme string
	cacheDir     string
}

// serveFlags holds flags for the serve command.
type serveFlags struct {
	common          commonFlags
	browser         browserFlags
	listen          string
	token           string
	tokenHeader     string
	logLevel        string
	coalesce        bool
	shutdownTimeout time.Duration
	fs              *flag.FlagSet
}

// renderFlags holds flags for the render command.
type renderFlags struct {
	common  commonFlags
	browser browserFlags
	output  string
	header  string
	footer  string
	theme   string
	noCache bool
	fs      *flag.FlagSet
}

func addCommonFlags(fs *flag.FlagSet, f *commonFlags) {
	fs.StringVarP(&f.config, "config", "c", "", "Config file name or path")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "Debug logging")
}

func addBrowserFlags(fs *flag.FlagSet, f *browserFlags) {
	fs.StringVar(&f.bin, "browser-bin", "", "Chrome executable")
	fs.BoolVar(&f.noSandbox, "no-sandbox", false, "Disable the Chrome sandbox")
	fs.IntVar(&f.poolMin, "pool-min", 0, "Sessions kept warm")
	fs.IntVar(&f.poolMax, "pool-max", 0, "Maximum live sessions")
	fs.StringVar(&f.surfaceURL, "surface-url", "", "External poster page base URL")
	fs.StringVar(&f.assetsDir, "assets-dir", "", "Directory with custom themes/ and templates/")
	fs.StringVar(&f.defaultTheme, "default-theme", "", "Theme for requests that name none")
	fs.StringVar(&f.cacheDir, "cache-dir", "", "Poster cache directory (file backend)")
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.SortFlags = false
	return fs
}

func parseServeFlags(args []string, stderr io.Writer) (*serveFlags, error) {
	f := &serveFlags{fs: newFlagSet("serve", stderr)}
	fs := f.fs
	addCommonFlags(fs, &f.common)
	addBrowserFlags(fs, &f.browser)
	fs.StringVarP(&f.listen, "listen", "l", "", "Listen address")
	fs.StringVar(&f.token, "token", "", "API token")
	fs.StringVar(&f.tokenHeader, "token-header", "", "Header carrying the API token")
	fs.StringVar(&f.logLevel, "log-level", "", "debug, info, warn, or error")
	fs.BoolVar(&f.coalesce, "coalesce", false, "Share one render between concurrent identical requests")
	fs.DurationVar(&f.shutdownTimeout, "shutdown-timeout", 0, "Graceful shutdown limit")
	fs.Usage = func() { printServeUsage(stderr) }

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("%w: unexpected argument %q", ErrUsage, fs.Arg(0))
	}
	return f, nil
}

func parseRenderFlags(args []string, stderr io.Writer) (*renderFlags, []string, error) {
	f := &renderFlags{fs: newFlagSet("render", stderr)}
	fs := f.fs
	addCommonFlags(fs, &f.common)
	addBrowserFlags(fs, &f.browser)
	fs.StringVarP(&f.output, "output", "o", "", "Output PNG path")
	fs.StringVar(&f.header, "header", "", "Header text")
	fs.StringVar(&f.footer, "footer", "", "Footer text")
	fs.StringVarP(&f.theme, "theme", "t", "", "Poster theme")
	fs.BoolVar(&f.noCache, "no-cache", false, "Neither read nor write the poster cache")
	fs.Usage = func() { printRenderUsage(stderr) }

	if err := fs.Parse(args); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	return f, fs.Args(), nil
}

// apply copies explicitly set browser flags onto cfg.
func (f *browserFlags) apply(fs *flag.FlagSet, cfg *config.Config) {
	if fs.Changed("browser-bin") {
		cfg.Browser.Bin = f.bin
	}
	if fs.Changed("no-sandbox") {
		cfg.Browser.NoSandbox = f.noSandbox
	}
	if fs.Changed("pool-min") {
		cfg.Pool.Min = f.poolMin
	}
	if fs.Changed("pool-max") {
		cfg.Pool.Max = f.poolMax
	}
	if fs.Changed("surface-url") {
		cfg.Render.SurfaceURL = f.surfaceURL
	}
	if fs.Changed("assets-dir") {
		cfg.Surface.AssetsDir = f.assetsDir
	}
	if fs.Changed("default-theme") {
		cfg.Render.DefaultTheme = f.defaultTheme
	}
	if fs.Changed("cache-dir") {
		cfg.Cache.Dir = f.cacheDir
	}
}

// apply copies explicitly set serve flags onto cfg.
func (f *serveFlags) apply(cfg *config.Config) {
	f.browser.apply(f.fs, cfg)
	if f.fs.Changed("listen") {
		cfg.Listen = f.listen
	}
	if f.fs.Changed("token") {
		cfg.Token = f.token
	}
	if f.fs.Changed("token-header") {
		cfg.TokenHeader = f.tokenHeader
	}
	if f.fs.Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if f.fs.Changed("coalesce") {
		cfg.Render.Coalesce = f.coalesce
	}
	if f.fs.Changed("shutdown-timeout") {
		cfg.ShutdownTimeout = f.shutdownTimeout
	}
	if f.common.verbose {
		cfg.LogLevel = "debug"
	}
}

// apply copies explicitly set render flags onto cfg.
func (f *renderFlags) apply(cfg *config.Config) {
	f.browser.apply(f.fs, cfg)
	if f.common.verbose {
		cfg.LogLevel = "debug"
	}
}
