// Package engine defines the narrow capability interface the poster pipeline
// needs from a headless rendering engine.
//
// The pool and pipeline depend only on these interfaces. The production
// implementation is backed by go-rod (see mdposter.RodFactory); tests use the
// fake in internal/testutil.
package engine

import (
	"context"
	"time"
)

// Factory constructs rendering sessions.
type Factory interface {
	// Create starts a new session. The returned session is owned by the caller
	// and must be closed.
	Create(ctx context.Context) (Session, error)
}

// Session is one running engine instance (a browser process).
// A session is used by at most one caller at a time.
type Session interface {
	// NewPage opens a per-request page (tab) on the session.
	NewPage(ctx context.Context) (Page, error)

	// Healthy reports whether the session is still connected and usable.
	Healthy(ctx context.Context) bool

	// Close destroys the session and releases its process.
	Close() error
}

// Page is a per-request sub-resource opened on a Session.
type Page interface {
	// Configure applies locale, encoding, font and viewport settings.
	// Must be called before Navigate.
	Configure(ctx context.Context, cfg PageConfig) error

	// Navigate loads url and waits for the load event.
	Navigate(ctx context.Context, url string) error

	// WaitReady blocks until the loaded document signals it is ready to capture.
	WaitReady(ctx context.Context, cfg ReadyConfig) error

	// Locate finds the element matching selector and returns its bounding box.
	Locate(ctx context.Context, selector string) (Region, error)

	// Capture takes a PNG screenshot of exactly the given region.
	Capture(ctx context.Context, region Region) ([]byte, error)

	// Close closes the page. Safe to call more than once.
	Close() error
}

// PageConfig holds per-page settings applied before navigation.
type PageConfig struct {
	Width          int    // viewport width in CSS pixels
	Height         int    // viewport height in CSS pixels
	AcceptLanguage string // Accept-Language header, e.g. "zh-CN,zh;q=0.9"
	Lang           string // document lang attribute, e.g. "zh-CN"
	FontCSS        string // CSS injected into every new document (font-face rules)
}

// ReadyConfig controls what WaitReady waits for.
type ReadyConfig struct {
	// Selector, when set, must match an element before the page is ready.
	Selector string

	// Settle is an extra delay after fonts are loaded.
	Settle time.Duration
}

// Region is a rectangle in page coordinates (CSS pixels).
type Region struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Empty reports whether the region has no measurable extent.
func (r Region) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}
