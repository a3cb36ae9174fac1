package mdposter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"

	"github.com/alnah/go-mdposter/engine"
)

// Compile-time interface checks.
var _ SessionPool = (*Pool)(nil)

// Stage names a step of the render pipeline.
type Stage string

// Pipeline stages, in execution order.
const (
	StageFingerprint  Stage = "fingerprint"
	StageCacheLookup  Stage = "cache_lookup"
	StageAcquire      Stage = "acquire"
	StageConfigure    Stage = "configure"
	StageNavigate     Stage = "navigate"
	StageAwaitReady   Stage = "await_ready"
	StageLocateTarget Stage = "locate_target"
	StageCapture      Stage = "capture"
	StagePersist      Stage = "persist"
	StageRelease      Stage = "release"
	StageDone         Stage = "done"
)

// StageError reports the pipeline stage a generation failed in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// SessionPool lends browser sessions to the renderer.
type SessionPool interface {
	Acquire(ctx context.Context) (*PooledSession, error)
	Release(ps *PooledSession)
}

type rendererConfig struct {
	surfaceURL      string
	surfacePath     string
	targetSelector  string
	readySelector   string
	navigateTimeout time.Duration
	readyTimeout    time.Duration
	settleDelay     time.Duration
	viewportWidth   int
	viewportHeight  int
	acceptLanguage  string
	lang            string
	fontCSS         string
	defaultTheme    string
	coalesce        bool
	logger          *slog.Logger
	registerer      prometheus.Registerer
}

// RendererOption configures a Renderer.
type RendererOption func(*rendererConfig)

// WithSurfaceURL sets the base URL of the poster page, e.g. "http://127.0.0.1:8080".
func WithSurfaceURL(u string) RendererOption {
	return func(c *rendererConfig) { c.surfaceURL = u }
}

// WithSurfacePath sets the poster page path. Default: "/poster".
func WithSurfacePath(p string) RendererOption {
	return func(c *rendererConfig) { c.surfacePath = p }
}

// WithTargetSelector sets the CSS selector of the element to capture.
func WithTargetSelector(sel string) RendererOption {
	return func(c *rendererConfig) { c.targetSelector = sel }
}

// WithReadySelector sets a selector that must exist before capture.
// Empty disables the check.
func WithReadySelector(sel string) RendererOption {
	return func(c *rendererConfig) { c.readySelector = sel }
}

// WithNavigateTimeout bounds page navigation.
func WithNavigateTimeout(d time.Duration) RendererOption {
	return func(c *rendererConfig) { c.navigateTimeout = d }
}

// WithReadyTimeout bounds the readiness wait and target lookup.
func WithReadyTimeout(d time.Duration) RendererOption {
	return func(c *rendererConfig) { c.readyTimeout = d }
}

// WithSettleDelay sets the pause between readiness and capture.
func WithSettleDelay(d time.Duration) RendererOption {
	return func(c *rendererConfig) { c.settleDelay = d }
}

// WithViewport sets the page viewport in CSS pixels.
func WithViewport(width, height int) RendererOption {
	return func(c *rendererConfig) {
		c.viewportWidth = width
		c.viewportHeight = height
	}
}

// WithAcceptLanguage sets the Accept-Language header sent by the page.
func WithAcceptLanguage(v string) RendererOption {
	return func(c *rendererConfig) { c.acceptLanguage = v }
}

// WithLang sets the document language.
func WithLang(lang string) RendererOption {
	return func(c *rendererConfig) { c.lang = lang }
}

// WithFontCSS injects CSS (typically @font-face rules) into every page.
func WithFontCSS(css string) RendererOption {
	return func(c *rendererConfig) { c.fontCSS = css }
}

// WithDefaultTheme sets the theme used when a request names none.
func WithDefaultTheme(name string) RendererOption {
	return func(c *rendererConfig) { c.defaultTheme = name }
}

// WithCoalescing makes concurrent misses for the same key share one render.
func WithCoalescing(on bool) RendererOption {
	return func(c *rendererConfig) { c.coalesce = on }
}

// WithRendererLogger sets the renderer's logger.
func WithRendererLogger(l *slog.Logger) RendererOption {
	return func(c *rendererConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRendererRegisterer registers the renderer's metrics with reg.
func WithRendererRegisterer(reg prometheus.Registerer) RendererOption {
	return func(c *rendererConfig) { c.registerer = reg }
}

// Renderer turns poster requests into PNG images, serving repeats from cache.
//
// A miss runs the pipeline
//
//	FINGERPRINT → CACHE_LOOKUP → ACQUIRE → CONFIGURE → NAVIGATE →
//	AWAIT_READY → LOCATE_TARGET → CAPTURE → PERSIST → RELEASE → DONE
//
// and any stage may fail with a *StageError. Once opened, the page is closed
// and the session released on every path.
type Renderer struct {
	pool    SessionPool
	cache   Cache
	cfg     rendererConfig
	surface *url.URL
	logger  *slog.Logger
	metrics *rendererMetrics
	group   *singleflight.Group
}

// NewRenderer creates a Renderer. The surface URL is required.
func NewRenderer(pool SessionPool, cache Cache, opts ...RendererOption) (*Renderer, error) {
	cfg := rendererConfig{
		surfacePath:     DefaultSurfacePath,
		targetSelector:  DefaultTargetSelector,
		readySelector:   DefaultReadySelector,
		navigateTimeout: DefaultNavigateTimeout,
		readyTimeout:    DefaultReadyTimeout,
		settleDelay:     DefaultSettleDelay,
		viewportWidth:   DefaultViewportWidth,
		viewportHeight:  DefaultViewportHeight,
		acceptLanguage:  DefaultAcceptLanguage,
		lang:            DefaultLang,
		defaultTheme:    DefaultTheme,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if pool == nil || cache == nil {
		return nil, errors.New("renderer needs a session pool and a cache")
	}

	surface, err := url.Parse(cfg.surfaceURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSurfaceURL, err)
	}
	if (surface.Scheme != "http" && surface.Scheme != "https") || surface.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSurfaceURL, cfg.surfaceURL)
	}
	if cfg.targetSelector == "" {
		cfg.targetSelector = DefaultTargetSelector
	}
	if cfg.defaultTheme == "" {
		cfg.defaultTheme = DefaultTheme
	}
	if !strings.HasPrefix(cfg.surfacePath, "/") {
		cfg.surfacePath = "/" + cfg.surfacePath
	}

	r := &Renderer{
		pool:    pool,
		cache:   cache,
		cfg:     cfg,
		surface: surface,
		logger:  cfg.logger,
		metrics: newRendererMetrics(cfg.registerer),
	}
	if cfg.coalesce {
		r.group = &singleflight.Group{}
	}
	return r, nil
}

// Generate returns the poster for req, from cache when possible.
// On success the result always carries the image and its hash, even if
// persisting it failed (see Result.CacheErr).
func (r *Renderer) Generate(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, r.fail(StageFingerprint, err)
	}
	req = req.withDefaults(r.cfg.defaultTheme)
	key := Fingerprint(req)
	log := r.logger.With("hash", key)

	if img, ok := r.lookup(ctx, key, log); ok {
		r.metrics.hits.Inc()
		log.Debug("poster served from cache")
		return &Result{Image: img, Source: SourceCache, Hash: key}, nil
	}
	r.metrics.misses.Inc()

	if r.group == nil {
		return r.render(ctx, req, key, log)
	}

	// The first caller's context governs a shared render.
	v, err, shared := r.group.Do(key, func() (any, error) {
		return r.render(ctx, req, key, log)
	})
	if shared {
		r.metrics.coalesced.Inc()
	}
	if err != nil {
		return nil, err
	}
	res := *v.(*Result)
	return &res, nil
}

// Key returns the cache key Generate would use for req.
func (r *Renderer) Key(req Request) string {
	return Fingerprint(req.withDefaults(r.cfg.defaultTheme))
}

// lookup reads the cache. Read errors are logged and count as a miss.
func (r *Renderer) lookup(ctx context.Context, key string, log *slog.Logger) ([]byte, bool) {
	img, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		log.Warn("cache lookup failed, rendering instead", "stage", StageCacheLookup, "error", err)
		return nil, false
	}
	return img, ok
}

// render runs the miss path from ACQUIRE to DONE.
func (r *Renderer) render(ctx context.Context, req Request, key string, log *slog.Logger) (*Result, error) {
	start := time.Now()

	ps, err := r.pool.Acquire(ctx)
	if err != nil {
		log.Error("acquiring browser session", "stage", StageAcquire, "error", err)
		return nil, r.fail(StageAcquire, err)
	}
	defer func() {
		r.pool.Release(ps)
		log.Debug("browser session released", "stage", StageRelease, "session", ps.ID())
	}()

	img, err := r.capture(ctx, ps.Session(), req, log.With("session", ps.ID()))
	if err != nil {
		var se *StageError
		stage := StageCapture
		if errors.As(err, &se) {
			stage = se.Stage
		}
		log.Error("rendering poster", "stage", stage, "error", err)
		return nil, err
	}

	res := &Result{Image: img, Source: SourceGenerated, Hash: key}
	if err := r.cache.Put(ctx, key, img); err != nil {
		r.metrics.cacheErrs.Inc()
		log.Error("poster rendered but not cached", "stage", StagePersist, "error", err)
		res.CacheErr = &StageError{Stage: StagePersist, Err: err}
	}

	r.metrics.duration.Observe(time.Since(start).Seconds())
	log.Info("poster generated", "bytes", len(img), "duration", time.Since(start).String())
	return res, nil
}

// capture drives one page from CONFIGURE to CAPTURE.
func (r *Renderer) capture(ctx context.Context, sess engine.Session, req Request, log *slog.Logger) ([]byte, error) {
	page, err := sess.NewPage(ctx)
	if err != nil {
		return nil, r.fail(StageConfigure, ensure(err, ErrPageCreate))
	}
	defer func() {
		if err := page.Close(); err != nil {
			log.Warn("closing page", "error", err)
		}
	}()

	err = page.Configure(ctx, engine.PageConfig{
		Width:          r.cfg.viewportWidth,
		Height:         r.cfg.viewportHeight,
		AcceptLanguage: r.cfg.acceptLanguage,
		Lang:           r.cfg.lang,
		FontCSS:        r.cfg.fontCSS,
	})
	if err != nil {
		return nil, r.fail(StageConfigure, ensure(err, ErrPageConfigure))
	}

	navCtx, cancel := context.WithTimeout(ctx, r.cfg.navigateTimeout)
	err = page.Navigate(navCtx, r.posterURL(req))
	cancel()
	if err != nil {
		return nil, r.fail(StageNavigate, ensure(err, ErrPageLoad))
	}

	readyCtx, cancel := context.WithTimeout(ctx, r.cfg.readyTimeout)
	defer cancel()

	err = page.WaitReady(readyCtx, engine.ReadyConfig{
		Selector: r.cfg.readySelector,
		Settle:   r.cfg.settleDelay,
	})
	if err != nil {
		return nil, r.fail(StageAwaitReady, ensure(err, ErrNotReady))
	}

	region, err := page.Locate(readyCtx, r.cfg.targetSelector)
	if err != nil {
		if !errors.Is(err, ErrBoundsUnavailable) {
			err = ensure(err, ErrTargetNotFound)
		}
		return nil, r.fail(StageLocateTarget, err)
	}
	if region.Empty() {
		return nil, r.fail(StageLocateTarget, ErrBoundsUnavailable)
	}

	img, err := page.Capture(ctx, region)
	if err != nil {
		return nil, r.fail(StageCapture, ensure(err, ErrCapture))
	}
	return img, nil
}

// posterURL builds the surface URL carrying the request as query parameters.
func (r *Renderer) posterURL(req Request) string {
	u := *r.surface
	u.Path = strings.TrimRight(u.Path, "/") + r.cfg.surfacePath
	u.RawQuery = url.Values{
		"content": {req.Content},
		"header":  {req.Header},
		"footer":  {req.Footer},
		"theme":   {req.Theme},
	}.Encode()
	u.Fragment = ""
	return u.String()
}

func (r *Renderer) fail(stage Stage, err error) error {
	r.metrics.failures.WithLabelValues(string(stage)).Inc()
	return &StageError{Stage: stage, Err: err}
}

// ensure wraps err with sentinel unless it already matches it.
func ensure(err, sentinel error) error {
	if errors.Is(err, sentinel) {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}
