// Package server exposes poster generation over HTTP.
package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	mdposter "github.com/alnah/go-mdposter"
)

// Route patterns.
const (
	RoutePosters       = "/api/posters"
	RouteLegacyPosters = "/api/generateAndCachePoster"
	RouteImage         = "GET /posters/{file}"
	RouteThemes        = "GET /api/themes"
	RouteHealth        = "GET /healthz"
	RouteMetrics       = "GET /metrics"
)

// DefaultMaxBodyBytes bounds the JSON request body.
const DefaultMaxBodyBytes int64 = 1 << 20

// DefaultTokenHeader is the header the API token is read from.
const DefaultTokenHeader = "Authorization"

// Generator produces posters.
type Generator interface {
	Generate(ctx context.Context, req mdposter.Request) (*mdposter.Result, error)
}

// ImageStore reads cached posters by key.
type ImageStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
}

// StatsSource reports pool accounting for the health endpoint.
type StatsSource interface {
	Stats() mdposter.PoolStats
}

// ThemeSource lists the themes the surface can render.
type ThemeSource interface {
	Themes() ([]string, error)
	DefaultTheme() string
}

// Option configures a Server.
type Option func(*Server)

// WithToken requires token in header on the generation endpoint.
func WithToken(header, token string) Option {
	return func(s *Server) {
		if header != "" {
			s.tokenHeader = header
		}
		s.token = token
	}
}

// WithImages serves cached posters from store.
func WithImages(store ImageStore) Option {
	return func(s *Server) { s.images = store }
}

// WithStats reports pool stats on the health endpoint.
func WithStats(src StatsSource) Option {
	return func(s *Server) { s.stats = src }
}

// WithSurface mounts the poster page handler at path. Only loopback
// clients may load it unless WithPublicSurface is set.
func WithSurface(path string, h http.Handler) Option {
	return func(s *Server) {
		s.surfacePath = path
		s.surface = h
	}
}

// WithPublicSurface lets any client load the poster page.
func WithPublicSurface() Option {
	return func(s *Server) { s.surfacePublic = true }
}

// WithThemes serves the theme list at RouteThemes.
func WithThemes(src ThemeSource) Option {
	return func(s *Server) { s.themes = src }
}

// WithRateLimit limits generation requests to rps with the given burst.
// A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		if rps <= 0 {
			s.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithMaxBodyBytes overrides DefaultMaxBodyBytes.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// WithMetrics registers HTTP metrics on reg and serves gatherer at /metrics.
func WithMetrics(reg prometheus.Registerer, gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.registerer = reg
		s.gatherer = gatherer
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// Server routes poster API requests.
type Server struct {
	gen           Generator
	images        ImageStore
	stats         StatsSource
	themes        ThemeSource
	surface       http.Handler
	surfacePath   string
	surfacePublic bool
	token         string
	tokenHeader   string
	limiter       *rate.Limiter
	maxBodyBytes  int64
	registerer    prometheus.Registerer
	gatherer      prometheus.Gatherer
	logger        *slog.Logger
	mux           *http.ServeMux
	handler       http.Handler
}

// New creates a Server. The token must be set with WithToken; requests
// to the generation endpoint are rejected while it is empty.
func New(gen Generator, opts ...Option) *Server {
	s := &Server{
		gen:          gen,
		tokenHeader:  DefaultTokenHeader,
		maxBodyBytes: DefaultMaxBodyBytes,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		mux:          http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()

	metrics := newHTTPMetrics(s.registerer)
	s.handler = Chain(s.mux, metrics.middleware, WithLogging(s.logger), WithRequestID)
	return s
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() {
	generate := http.HandlerFunc(s.handleGenerate)
	s.mux.Handle(RoutePosters, s.guardGenerate(generate))
	s.mux.Handle(RouteLegacyPosters, s.guardGenerate(generate))

	if s.images != nil {
		s.mux.HandleFunc(RouteImage, s.handleImage)
	}
	if s.themes != nil {
		s.mux.HandleFunc(RouteThemes, s.handleThemes)
	}
	s.mux.HandleFunc(RouteHealth, s.handleHealth)
	if s.gatherer != nil {
		s.mux.Handle(RouteMetrics, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	if s.surface != nil && s.surfacePath != "" {
		page := s.surface
		if !s.surfacePublic {
			page = loopbackOnly(page)
		}
		s.mux.Handle(s.surfacePath, page)
	}
}

// guardGenerate applies method, token and rate checks in that order, so an
// unauthorized request never reaches the pool or the cache.
func (s *Server) guardGenerate(next http.Handler) http.Handler {
	limited := rateLimit(s.limiter, next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeError(w, http.StatusMethodNotAllowed, "Only POST requests are supported")
			return
		}
		if !s.authorized(r) {
			writeError(w, http.StatusUnauthorized, "Unauthorized: "+mdposter.ErrUnauthorized.Error())
			return
		}
		limited.ServeHTTP(w, r)
	})
}
