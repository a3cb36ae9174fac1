package mdposter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"

	"github.com/alnah/go-mdposter/engine"
	"github.com/alnah/go-mdposter/internal/process"
)

// Compile-time interface checks
var (
	_ engine.Factory = (*RodFactory)(nil)
	_ engine.Session = (*rodSession)(nil)
	_ engine.Page    = (*rodPage)(nil)
)

// chromeFlags keep rendering deterministic across hosts: no GPU, no
// sub-pixel font positioning, no hinting.
var chromeFlags = map[flags.Flag][]string{
	"disable-gpu":                       nil,
	"disable-dev-shm-usage":             nil,
	"no-first-run":                      nil,
	"disable-web-security":              nil,
	"ignore-certificate-errors":         nil,
	"disable-font-subpixel-positioning": nil,
	"font-render-hinting":               {"none"},
}

// BrowserConfig configures how Chrome is launched.
type BrowserConfig struct {
	// Bin is the Chrome executable. Empty lets rod find or download one.
	Bin string

	// NoSandbox disables the Chrome sandbox (required in most containers).
	NoSandbox bool
}

// RodFactory launches headless Chrome sessions with go-rod.
type RodFactory struct {
	cfg BrowserConfig
}

// NewRodFactory creates a RodFactory.
func NewRodFactory(cfg BrowserConfig) *RodFactory {
	return &RodFactory{cfg: cfg}
}

// Create launches a browser and connects to it.
// Launching is not cancellable in rod, so on ctx expiry the late browser is
// closed in the background.
func (f *RodFactory) Create(ctx context.Context) (engine.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type result struct {
		s   *rodSession
		err error
	}
	done := make(chan result, 1)

	go func() {
		s, err := f.launch()
		done <- result{s: s, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		return r.s, nil
	case <-ctx.Done():
		go func() {
			if r := <-done; r.s != nil {
				_ = r.s.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

func (f *RodFactory) launch() (*rodSession, error) {
	l := launcher.New().Headless(true)
	if f.cfg.Bin != "" {
		l = l.Bin(f.cfg.Bin)
	}
	if f.cfg.NoSandbox {
		l = l.NoSandbox(true)
	}
	for name, values := range chromeFlags {
		l = l.Set(name, values...)
	}

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBrowserConnect, err)
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("%w: %v", ErrBrowserConnect, err)
	}

	return &rodSession{browser: browser, launcher: l}, nil
}

// rodSession is one Chrome process.
type rodSession struct {
	browser  *rod.Browser
	launcher *launcher.Launcher

	closeOnce sync.Once
	closeErr  error
}

func (s *rodSession) NewPage(ctx context.Context) (engine.Page, error) {
	page, err := s.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPageCreate, err)
	}
	// Drop the creation context so later calls can carry their own.
	return &rodPage{page: page.Context(context.Background())}, nil
}

// Healthy asks the browser for its version over the CDP connection.
func (s *rodSession) Healthy(ctx context.Context) bool {
	_, err := s.browser.Context(ctx).Version()
	return err == nil
}

// Close closes the browser, then makes sure the process tree is gone.
func (s *rodSession) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.browser.Close()
		pid := s.launcher.PID()
		s.launcher.Kill()
		// launcher.Kill only reaches the leader.
		_ = process.KillTree(pid)
	})
	return s.closeErr
}

// rodPage is one tab, opened per request.
type rodPage struct {
	page *rod.Page

	mu     sync.Mutex
	closed bool
}

func (p *rodPage) Configure(ctx context.Context, cfg engine.PageConfig) error {
	page := p.page.Context(ctx)

	if cfg.AcceptLanguage != "" {
		if _, err := page.SetExtraHeaders([]string{"Accept-Language", cfg.AcceptLanguage}); err != nil {
			return fmt.Errorf("%w: headers: %v", ErrPageConfigure, err)
		}
	}

	if _, err := page.EvalOnNewDocument(documentSetupScript(cfg.Lang, cfg.FontCSS)); err != nil {
		return fmt.Errorf("%w: document setup: %v", ErrPageConfigure, err)
	}

	if cfg.Width > 0 && cfg.Height > 0 {
		err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             cfg.Width,
			Height:            cfg.Height,
			DeviceScaleFactor: 1,
		})
		if err != nil {
			return fmt.Errorf("%w: viewport: %v", ErrPageConfigure, err)
		}
	}
	return nil
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	page := p.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("%w: %v", ErrPageLoad, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("%w: %v", ErrPageLoad, err)
	}
	return nil
}

// WaitReady waits for the browser to go idle, for web fonts, and for the
// optional readiness selector, then lets layout settle.
func (p *rodPage) WaitReady(ctx context.Context, cfg engine.ReadyConfig) error {
	page := p.page.Context(ctx)

	remaining := time.Minute
	if deadline, ok := ctx.Deadline(); ok {
		remaining = time.Until(deadline)
	}
	if err := page.WaitIdle(remaining); err != nil {
		return fmt.Errorf("%w: idle: %v", ErrNotReady, err)
	}

	if _, err := page.Eval(`() => document.fonts.ready.then(() => true)`); err != nil {
		return fmt.Errorf("%w: fonts: %v", ErrNotReady, err)
	}

	if cfg.Selector != "" {
		if _, err := page.Element(cfg.Selector); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrNotReady, cfg.Selector, err)
		}
	}

	if cfg.Settle > 0 {
		t := time.NewTimer(cfg.Settle)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrNotReady, ctx.Err())
		}
	}
	return nil
}

// Locate returns the element's box in document coordinates, so the clip
// stays correct when the element extends past the viewport.
func (p *rodPage) Locate(ctx context.Context, selector string) (engine.Region, error) {
	page := p.page.Context(ctx)

	el, err := page.Element(selector)
	if err != nil {
		return engine.Region{}, fmt.Errorf("%w: %s: %v", ErrTargetNotFound, selector, err)
	}

	res, err := el.Eval(`function () {
		const r = this.getBoundingClientRect();
		return { x: r.left + window.scrollX, y: r.top + window.scrollY, width: r.width, height: r.height };
	}`)
	if err != nil {
		return engine.Region{}, fmt.Errorf("%w: %v", ErrBoundsUnavailable, err)
	}

	region := engine.Region{
		X:      res.Value.Get("x").Num(),
		Y:      res.Value.Get("y").Num(),
		Width:  res.Value.Get("width").Num(),
		Height: res.Value.Get("height").Num(),
	}
	if region.Empty() {
		return engine.Region{}, fmt.Errorf("%w: %s has no extent", ErrBoundsUnavailable, selector)
	}
	return region, nil
}

func (p *rodPage) Capture(ctx context.Context, region engine.Region) ([]byte, error) {
	img, err := p.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
		Clip: &proto.PageViewport{
			X:      region.X,
			Y:      region.Y,
			Width:  region.Width,
			Height: region.Height,
			Scale:  1,
		},
		CaptureBeyondViewport: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCapture, err)
	}
	return img, nil
}

func (p *rodPage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if err := p.page.Close(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// documentSetupScript sets the document language, forces a UTF-8 charset
// meta and injects font CSS before any page script runs.
func documentSetupScript(lang, fontCSS string) string {
	langJSON, _ := json.Marshal(lang)
	cssJSON, _ := json.Marshal(fontCSS)

	var b strings.Builder
	b.WriteString("(() => {\n")
	fmt.Fprintf(&b, "  const lang = %s;\n  const css = %s;\n", langJSON, cssJSON)
	b.WriteString(`  const apply = () => {
    if (lang) document.documentElement.lang = lang;
    const head = document.head || document.documentElement;
    const meta = document.createElement("meta");
    meta.setAttribute("charset", "UTF-8");
    head.insertBefore(meta, head.firstChild);
    if (css) {
      const style = document.createElement("style");
      style.textContent = css;
      head.appendChild(style);
    }
  };
  if (document.readyState === "loading") {
    document.addEventListener("DOMContentLoaded", apply, { once: true });
  } else {
    apply();
  }
})();`)
	return b.String()
}
