package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	mdposter "github.com/alnah/go-mdposter"
	"github.com/alnah/go-mdposter/internal/config"
	"github.com/alnah/go-mdposter/internal/hints"
	"github.com/alnah/go-mdposter/internal/server"
)

// HTTP server timeouts. The write timeout also covers a full render, so it
// is derived from the render budget in serverTimeouts.
const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	idleTimeout       = 2 * time.Minute
	writeSlack        = 15 * time.Second
)

// service is the assembled poster service.
type service struct {
	cfg        *config.Config
	logger     *slog.Logger
	pool       *mdposter.Pool
	listener   net.Listener
	httpServer *http.Server
	supervisor *mdposter.Supervisor
	getenv     func(string) string
}

// runServe executes the serve command and returns an exit code.
func runServe(ctx context.Context, args []string, env *Environment) int {
	flags, err := parseServeFlags(args, env.Stderr)
	if err != nil {
		fmt.Fprintln(env.Stderr, err)
		return ExitUsage
	}

	cfg, err := loadConfig(flags.common.config, env)
	if err != nil {
		fmt.Fprintln(env.Stderr, err)
		return exitCodeFor(err)
	}
	flags.apply(cfg)
	if err := cfg.Validate(); err != nil {
		if errors.Is(err, config.ErrMissingToken) {
			err = fmt.Errorf("%w%s", err, hints.ForMissingToken())
		}
		fmt.Fprintln(env.Stderr, err)
		return exitCodeFor(err)
	}

	logger := newLogger(env.Stderr, cfg.LogLevel)
	warnUnknownEnv(logger, env)

	svc, err := newService(cfg, env, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return exitCodeFor(err)
	}
	if err := svc.run(ctx); err != nil {
		logger.Error("service stopped with error", "error", err)
		return exitCodeFor(err)
	}
	return ExitSuccess
}

// newService wires pool, cache, surface, renderer and HTTP server.
func newService(cfg *config.Config, env *Environment, logger *slog.Logger) (*service, error) {
	ln, err := env.Listen("tcp", cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrListen, cfg.Listen, err)
	}

	svc, err := buildService(cfg, env, logger, ln)
	if err != nil {
		_ = ln.Close()
		return nil, err
	}
	return svc, nil
}

func buildService(cfg *config.Config, env *Environment, logger *slog.Logger, ln net.Listener) (*service, error) {
	// The built-in surface is reached through the bound address, which
	// differs from cfg.Listen when the port is 0.
	bound := *cfg
	bound.Listen = ln.Addr().String()
	surfaceURL, err := bound.SurfaceBaseURL()
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	store, err := openCache(cfg.Cache)
	if err != nil {
		return nil, err
	}

	pool := newPool(cfg, env, logger, mdposter.WithPoolRegisterer(reg))

	renderer, err := mdposter.NewRenderer(pool, store,
		append(rendererOptions(cfg, surfaceURL, logger), mdposter.WithRendererRegisterer(reg))...)
	if err != nil {
		return nil, err
	}

	opts := []server.Option{
		server.WithToken(cfg.TokenHeader, cfg.Token),
		server.WithImages(store),
		server.WithStats(pool),
		server.WithRateLimit(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
		server.WithMetrics(reg, reg),
		server.WithLogger(logger.With("component", "http")),
	}
	if cfg.Surface.Builtin {
		page, err := newSurface(cfg, logger)
		if err != nil {
			return nil, err
		}
		opts = append(opts, server.WithSurface(cfg.Render.SurfacePath, page), server.WithThemes(page))
		if cfg.Surface.Public {
			opts = append(opts, server.WithPublicSurface())
		}
	}
	srv := server.New(renderer, opts...)

	httpServer := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout(cfg),
		IdleTimeout:       idleTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	supervisor := mdposter.NewSupervisor(pool,
		mdposter.WithBeforeDrain(httpServer.Shutdown),
		mdposter.WithShutdownTimeout(cfg.ShutdownTimeout),
		mdposter.WithSupervisorLogger(logger.With("component", "supervisor")),
	)

	return &service{
		cfg:        cfg,
		logger:     logger,
		pool:       pool,
		listener:   ln,
		httpServer: httpServer,
		supervisor: supervisor,
		getenv:     env.Getenv,
	}, nil
}

// writeTimeout covers the slowest successful request: waiting for a
// session, then every bounded render stage.
func writeTimeout(cfg *config.Config) time.Duration {
	r := cfg.Render
	return cfg.Pool.AcquireTimeout + r.NavigateTimeout + r.ReadyTimeout + r.SettleDelay + writeSlack
}

// run serves until ctx is cancelled or the listener fails, then shuts down
// through the supervisor.
func (s *service) run(ctx context.Context) error {
	s.logger.Info("mdposter listening",
		"addr", s.listener.Addr().String(),
		"version", Version,
		"gomaxprocs", runtime.GOMAXPROCS(0),
		"pool_min", s.pool.Config().Min,
		"pool_max", s.pool.Config().Max,
		"cache", s.cfg.Cache.Backend,
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := s.httpServer.Serve(s.listener); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%w: %v", ErrListen, err)
		}
		return nil
	})

	if s.cfg.Pool.Warm {
		g.Go(func() error {
			if err := s.pool.Warm(gctx); err != nil && gctx.Err() == nil {
				s.logger.Warn("pool warm-up incomplete, sessions will start on demand",
					"error", withBrowserHint(err, s.getenv))
			}
			return nil
		})
	}

	g.Go(func() error {
		return s.supervisor.Run(gctx)
	})

	return g.Wait()
}
