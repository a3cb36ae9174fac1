package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	mdposter "github.com/alnah/go-mdposter"
	"github.com/alnah/go-mdposter/internal/config"
	"github.com/alnah/go-mdposter/internal/fileutil"
)

// maxInputBytes bounds markdown read from a file or stdin.
const maxInputBytes = 1 << 20

// outputPerm is the permission of written PNG files.
const outputPerm = 0o644

// noCache satisfies mdposter.Cache without storing anything.
type noCache struct{}

func (noCache) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (noCache) Put(context.Context, string, []byte) error         { return nil }

// runRender executes the render command and returns an exit code.
func runRender(ctx context.Context, args []string, env *Environment) int {
	flags, positional, err := parseRenderFlags(args, env.Stderr)
	if err != nil {
		fmt.Fprintln(env.Stderr, err)
		return ExitUsage
	}
	if len(positional) != 1 {
		fmt.Fprintln(env.Stderr, "render: exactly one input file (or -) is required")
		printRenderUsage(env.Stderr)
		return ExitUsage
	}

	cfg, err := loadConfig(flags.common.config, env)
	if err != nil {
		fmt.Fprintln(env.Stderr, err)
		return exitCodeFor(err)
	}
	flags.apply(cfg)
	if err := cfg.ValidateRendering(); err != nil {
		fmt.Fprintln(env.Stderr, err)
		return exitCodeFor(err)
	}

	logger := newLogger(env.Stderr, cfg.LogLevel)
	warnUnknownEnv(logger, env)

	out, err := renderOnce(ctx, cfg, env, logger, flags, positional[0])
	if err != nil {
		fmt.Fprintln(env.Stderr, withBrowserHint(err, env.Getenv))
		return exitCodeFor(err)
	}
	fmt.Fprintln(env.Stdout, out)
	return ExitSuccess
}

// renderOnce renders input to a PNG and returns the written path.
func renderOnce(ctx context.Context, cfg *config.Config, env *Environment, logger *slog.Logger, flags *renderFlags, input string) (string, error) {
	content, err := readInput(input, env.Stdin)
	if err != nil {
		return "", err
	}
	req := mdposter.Request{Content: content, Header: flags.header, Footer: flags.footer, Theme: flags.theme}
	if err := req.Validate(); err != nil {
		return "", err
	}

	surfaceURL := cfg.Render.SurfaceURL
	if surfaceURL == "" {
		stop, u, err := startLocalSurface(cfg, env, logger)
		if err != nil {
			return "", err
		}
		defer stop()
		surfaceURL = u
	}

	var store mdposter.Cache = noCache{}
	if !flags.noCache {
		if store, err = openCache(cfg.Cache); err != nil {
			return "", err
		}
	}

	// One poster needs one session; never keep a spare.
	cfg.Pool.Min = 0
	cfg.Pool.Max = 1
	pool := newPool(cfg, env, logger)
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := pool.Drain(dctx); err != nil {
			logger.Warn("drain incomplete", "error", err)
		}
	}()

	renderer, err := mdposter.NewRenderer(pool, store, rendererOptions(cfg, surfaceURL, logger)...)
	if err != nil {
		return "", err
	}

	res, err := renderer.Generate(ctx, req)
	if err != nil {
		return "", err
	}
	if res.CacheErr != nil {
		logger.Warn("poster not cached", "error", res.CacheErr)
	}

	out := flags.output
	if out == "" {
		out = defaultOutput(input, res.Hash)
	}
	if err := fileutil.WriteFileAtomic(out, res.Image, outputPerm); err != nil {
		return "", fmt.Errorf("%w: %v", ErrWriteOutput, err)
	}
	logger.Debug("poster written", "path", out, "source", res.Source, "hash", res.Hash)
	return out, nil
}

// readInput reads markdown from path, or from stdin when path is "-".
func readInput(path string, stdin io.Reader) (string, error) {
	var r io.Reader
	if path == "-" {
		r = stdin
	} else {
		f, err := os.Open(path) // #nosec G304 -- user-provided input path
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrReadInput, err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}

	data, err := io.ReadAll(io.LimitReader(r, maxInputBytes+1))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrReadInput, err)
	}
	if len(data) > maxInputBytes {
		return "", fmt.Errorf("%w: input larger than %d bytes", ErrReadInput, maxInputBytes)
	}
	return string(data), nil
}

// defaultOutput swaps the input extension for .png; stdin input is named
// after the content hash.
func defaultOutput(input, hash string) string {
	if input == "-" {
		return hash + ".png"
	}
	return strings.TrimSuffix(input, filepath.Ext(input)) + ".png"
}

// startLocalSurface serves the poster page on a loopback port for the
// duration of one render.
func startLocalSurface(cfg *config.Config, env *Environment, logger *slog.Logger) (func(), string, error) {
	page, err := newSurface(cfg, logger)
	if err != nil {
		return nil, "", err
	}
	ln, err := env.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrListen, err)
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Render.SurfacePath, page)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: readHeaderTimeout}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("local surface stopped", "error", err)
		}
	}()

	stop := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
	return stop, "http://" + ln.Addr().String(), nil
}
