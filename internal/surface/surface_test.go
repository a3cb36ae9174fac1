package surface

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alnah/go-mdposter/internal/assets"
)

func newSurface(t *testing.T, opts ...Option) *Surface {
	t.Helper()

	s, err := New(opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestSurface_Render(t *testing.T) {
	t.Parallel()

	s := newSurface(t)
	page, err := s.Render(context.Background(), Page{
		Content: "# Title\n\nbody",
		Header:  "Weekly <b>digest</b>",
		Footer:  "footer text",
		Theme:   "Midnight",
	})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	got := string(page)

	for _, want := range []string{
		`<html lang="zh-CN">`,
		`class="theme-Midnight"`,
		`<div class="header-content">Weekly &lt;b&gt;digest&lt;/b&gt;</div>`,
		`<div class="footer-content">footer text</div>`,
		`<div class="markdown-content"><h1 id="title">Title</h1>`,
		"#11151c",
		".chroma",
		"data-poster-ready",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("Render() missing %q", want)
		}
	}
}

func TestSurface_Render_OmitsEmptyHeaderAndFooter(t *testing.T) {
	t.Parallel()

	page, err := newSurface(t).Render(context.Background(), Page{Content: "x"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if strings.Contains(string(page), `class="header-content"`) || strings.Contains(string(page), `class="footer-content"`) {
		t.Error("empty header/footer must not be rendered")
	}
}

func TestSurface_ThemeFallback(t *testing.T) {
	t.Parallel()

	s := newSurface(t)

	tests := []struct {
		name  string
		theme string
		want  string
	}{
		{name: "empty", theme: "", want: assets.DefaultThemeName},
		{name: "unknown", theme: "Neon", want: assets.DefaultThemeName},
		{name: "traversal", theme: "../../etc/passwd", want: assets.DefaultThemeName},
		{name: "known", theme: "Classic", want: "Classic"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			page, err := s.Render(context.Background(), Page{Content: "x", Theme: tt.theme})
			if err != nil {
				t.Fatalf("Render() error = %v", err)
			}
			if !strings.Contains(string(page), `class="theme-`+tt.want+`"`) {
				t.Errorf("theme %q did not resolve to %s", tt.theme, tt.want)
			}
		})
	}
}

func TestSurface_CustomAssets(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	if err := os.MkdirAll(filepath.Join(base, "themes"), 0o755); err != nil {
		t.Fatal(err)
	}
	css := ".poster-content { color: teal; } </style><script>x</script>"
	if err := os.WriteFile(filepath.Join(base, "themes", "Corporate.css"), []byte(css), 0o644); err != nil {
		t.Fatal(err)
	}
	resolver, err := assets.NewAssetResolver(base)
	if err != nil {
		t.Fatal(err)
	}

	s := newSurface(t, WithAssets(resolver), WithLang("en"))
	page, err := s.Render(context.Background(), Page{Content: "x", Theme: "Corporate"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	got := string(page)
	if !strings.Contains(got, "color: teal") {
		t.Error("custom theme CSS not rendered")
	}
	if strings.Contains(got, "</style><script>x") {
		t.Error("theme CSS closed the style block")
	}
	if !strings.Contains(got, `<html lang="en">`) {
		t.Error("WithLang not applied")
	}

	themes, err := s.Themes()
	if err != nil {
		t.Fatalf("Themes() error = %v", err)
	}
	if !strings.Contains(strings.Join(themes, ","), "Corporate") {
		t.Errorf("Themes() = %v, want the custom theme listed", themes)
	}
}

// embeddedOnly hides the resolver's ThemeNames.
type embeddedOnly struct{ assets.AssetLoader }

func TestSurface_ThemesBuiltIn(t *testing.T) {
	t.Parallel()

	s := newSurface(t, WithAssets(embeddedOnly{assets.NewEmbeddedLoader()}))
	got, err := s.Themes()
	if err != nil {
		t.Fatalf("Themes() error = %v", err)
	}
	if strings.Join(got, ",") != strings.Join(assets.ThemeNames(), ",") {
		t.Errorf("Themes() = %v, want %v", got, assets.ThemeNames())
	}
	if s.DefaultTheme() != assets.DefaultThemeName {
		t.Errorf("DefaultTheme() = %q, want %q", s.DefaultTheme(), assets.DefaultThemeName)
	}
}

func TestNew_MissingDefaultTheme(t *testing.T) {
	t.Parallel()

	_, err := New(WithDefaultTheme("Nope"))
	if !errors.Is(err, ErrTheme) {
		t.Errorf("New() error = %v, want ErrTheme", err)
	}
}

type failingConverter struct{}

func (failingConverter) ToHTML(context.Context, string) (string, error) {
	return "", ErrMarkdown
}

func TestSurface_ServeHTTP(t *testing.T) {
	t.Parallel()

	s := newSurface(t)

	t.Run("renders query", func(t *testing.T) {
		t.Parallel()

		q := url.Values{"content": {"**bold**"}, "header": {"H"}, "theme": {"Classic"}}
		req := httptest.NewRequest(http.MethodGet, "/poster?"+q.Encode(), nil)
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
			t.Errorf("Content-Type = %q", ct)
		}
		if !strings.Contains(rec.Body.String(), "<strong>bold</strong>") {
			t.Error("markdown not rendered")
		}
	})

	t.Run("head has no body", func(t *testing.T) {
		t.Parallel()

		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/poster?content=x", nil))
		if rec.Code != http.StatusOK || rec.Body.Len() != 0 {
			t.Errorf("HEAD status = %d, body = %d bytes", rec.Code, rec.Body.Len())
		}
	})

	t.Run("rejects post", func(t *testing.T) {
		t.Parallel()

		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/poster", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("status = %d, want 405", rec.Code)
		}
	})

	t.Run("conversion failure", func(t *testing.T) {
		t.Parallel()

		failing := newSurface(t, WithConverter(failingConverter{}))
		rec := httptest.NewRecorder()
		failing.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/poster?content=x", nil))
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", rec.Code)
		}
	})
}
