// Package surface serves the poster page that the browser renders and the
// pool screenshots.
package surface

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/styles"

	"github.com/alnah/go-mdposter/internal/assets"
)

// Sentinel errors for the poster surface.
var (
	ErrTemplate = errors.New("poster template error")
	ErrTheme    = errors.New("theme unavailable")
)

// DefaultLang is the document language of the poster page.
const DefaultLang = "zh-CN"

// defaultCodeStyles maps poster themes to chroma styles for code blocks.
var defaultCodeStyles = map[string]string{
	"SpringGradientWave": "friendly",
	"Classic":            "github",
	"Midnight":           "nord",
}

const fallbackCodeStyle = "github"

// Page holds the query parameters of one poster page.
type Page struct {
	Content string
	Header  string
	Footer  string
	Theme   string
}

// PageFromQuery reads a Page from the surface query string.
func PageFromQuery(r *http.Request) Page {
	q := r.URL.Query()
	return Page{
		Content: q.Get("content"),
		Header:  q.Get("header"),
		Footer:  q.Get("footer"),
		Theme:   q.Get("theme"),
	}
}

type pageData struct {
	Lang     string
	Theme    string
	ThemeCSS template.CSS
	CodeCSS  template.CSS
	Header   string
	Footer   string
	Body     template.HTML
}

// Option configures a Surface.
type Option func(*Surface)

// WithAssets sets the theme and template source. Defaults to embedded assets.
func WithAssets(l assets.AssetLoader) Option {
	return func(s *Surface) {
		if l != nil {
			s.assets = l
		}
	}
}

// WithConverter replaces the markdown converter.
func WithConverter(c MarkdownConverter) Option {
	return func(s *Surface) {
		if c != nil {
			s.converter = c
		}
	}
}

// WithLang sets the html lang attribute.
func WithLang(lang string) Option {
	return func(s *Surface) {
		if lang != "" {
			s.lang = lang
		}
	}
}

// WithDefaultTheme sets the theme used for empty or unknown theme names.
func WithDefaultTheme(name string) Option {
	return func(s *Surface) {
		if name != "" {
			s.defaultTheme = name
		}
	}
}

// WithCodeStyle maps a theme to a chroma style name.
func WithCodeStyle(theme, style string) Option {
	return func(s *Surface) {
		s.codeStyles[theme] = style
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Surface) {
		if l != nil {
			s.logger = l
		}
	}
}

// Surface renders poster pages.
type Surface struct {
	assets       assets.AssetLoader
	converter    MarkdownConverter
	tmpl         *template.Template
	lang         string
	defaultTheme string
	codeStyles   map[string]string
	logger       *slog.Logger

	mu      sync.Mutex
	codeCSS map[string]template.CSS
}

// New creates a Surface and parses the poster template.
func New(opts ...Option) (*Surface, error) {
	s := &Surface{
		assets:       assets.NewEmbeddedLoader(),
		converter:    NewGoldmarkConverter(),
		lang:         DefaultLang,
		defaultTheme: assets.DefaultThemeName,
		codeStyles:   make(map[string]string, len(defaultCodeStyles)),
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		codeCSS:      make(map[string]template.CSS),
	}
	for theme, style := range defaultCodeStyles {
		s.codeStyles[theme] = style
	}
	for _, opt := range opts {
		opt(s)
	}

	src, err := s.assets.LoadTemplate(assets.DefaultTemplateName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTemplate, err)
	}
	tmpl, err := template.New(assets.DefaultTemplateName).Parse(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTemplate, err)
	}
	s.tmpl = tmpl

	if _, err := s.assets.LoadTheme(s.defaultTheme); err != nil {
		return nil, fmt.Errorf("%w: default theme %q: %v", ErrTheme, s.defaultTheme, err)
	}
	return s, nil
}

// Render produces the complete poster page for p.
func (s *Surface) Render(ctx context.Context, p Page) ([]byte, error) {
	theme, css, err := s.theme(p.Theme)
	if err != nil {
		return nil, err
	}

	body, err := s.converter.ToHTML(ctx, p.Content)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	err = s.tmpl.Execute(&buf, pageData{
		Lang:     s.lang,
		Theme:    theme,
		ThemeCSS: template.CSS(sanitizeCSS(css)), // #nosec G203 -- trusted theme source
		CodeCSS:  s.codeStyleCSS(theme),
		Header:   p.Header,
		Footer:   p.Footer,
		Body:     template.HTML(body), // #nosec G203 -- goldmark output without raw HTML
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTemplate, err)
	}
	return buf.Bytes(), nil
}

// themeLister is implemented by loaders that can enumerate their themes.
type themeLister interface {
	ThemeNames() ([]string, error)
}

// Themes lists the theme names a request may use. Loaders that cannot
// enumerate themes report the built-in set.
func (s *Surface) Themes() ([]string, error) {
	if l, ok := s.assets.(themeLister); ok {
		names, err := l.ThemeNames()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTheme, err)
		}
		return names, nil
	}
	return assets.ThemeNames(), nil
}

// DefaultTheme returns the theme used for empty or unknown names.
func (s *Surface) DefaultTheme() string {
	return s.defaultTheme
}

// theme resolves name to a loadable theme, falling back to the default for
// empty, invalid or unknown names.
func (s *Surface) theme(name string) (string, string, error) {
	if name != "" && name != s.defaultTheme {
		css, err := s.assets.LoadTheme(name)
		if err == nil {
			return name, css, nil
		}
		if !assets.IsNotFound(err) && !errors.Is(err, assets.ErrInvalidAssetName) {
			return "", "", fmt.Errorf("%w: %v", ErrTheme, err)
		}
		s.logger.Debug("unknown theme, using default", "theme", name, "default", s.defaultTheme)
	}

	css, err := s.assets.LoadTheme(s.defaultTheme)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrTheme, err)
	}
	return s.defaultTheme, css, nil
}

// codeStyleCSS returns the chroma stylesheet for a theme, generated once.
func (s *Surface) codeStyleCSS(theme string) template.CSS {
	name, ok := s.codeStyles[theme]
	if !ok {
		name = fallbackCodeStyle
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if css, ok := s.codeCSS[name]; ok {
		return css
	}

	var buf bytes.Buffer
	formatter := chromahtml.New(chromahtml.WithClasses(true))
	if err := formatter.WriteCSS(&buf, styles.Get(name)); err != nil {
		s.logger.Warn("code style unavailable", "style", name, "error", err)
		buf.Reset()
	}
	css := template.CSS(sanitizeCSS(buf.String())) // #nosec G203 -- generated by chroma
	s.codeCSS[name] = css
	return css
}

// ServeHTTP renders the page described by the query string.
func (s *Surface) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	page, err := s.Render(r.Context(), PageFromQuery(r))
	if err != nil {
		s.logger.Error("poster page failed", "error", err)
		http.Error(w, "failed to render poster page", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		_, _ = w.Write(page)
	}
}

// sanitizeCSS escapes sequences that could close the enclosing <style> block.
func sanitizeCSS(css string) string {
	return strings.ReplaceAll(css, "</", `<\/`)
}
