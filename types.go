package mdposter

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"
)

// DefaultTheme is applied when a request does not name a theme.
const DefaultTheme = "SpringGradientWave"

// Source tells where a result's image came from.
type Source string

const (
	SourceCache     Source = "cache"
	SourceGenerated Source = "generated"
)

// Request describes one poster. All fields are untrusted text.
type Request struct {
	Content string // markdown, required
	Header  string // optional header line
	Footer  string // optional footer line
	Theme   string // theme name, DefaultTheme when empty
}

// Validate checks that required fields are present and that every field is
// valid UTF-8. Invalid bytes would be replaced by U+FFFD when fingerprinted,
// mapping different inputs onto one key.
func (r Request) Validate() error {
	if r.Content == "" {
		return ErrEmptyContent
	}
	for _, f := range [...]struct{ name, value string }{
		{"content", r.Content},
		{"header", r.Header},
		{"footer", r.Footer},
		{"theme", r.Theme},
	} {
		if !utf8.ValidString(f.value) {
			return fmt.Errorf("%w: %s", ErrInvalidEncoding, f.name)
		}
	}
	return nil
}

// withDefaults returns a copy with defaults filled in, using defaultTheme
// for an empty Theme. Fingerprints are always computed on this form so a
// default never changes a cached identity silently.
func (r Request) withDefaults(defaultTheme string) Request {
	if r.Theme == "" {
		r.Theme = defaultTheme
	}
	return r
}

// Result is the outcome of a successful generation.
type Result struct {
	Image  []byte // PNG bytes
	Source Source
	Hash   string // hex-encoded cache key

	// CacheErr is set when the image was generated but could not be persisted.
	CacheErr error
}

// Cache is a durable, write-once-per-key store of rendered images.
type Cache interface {
	// Get returns the stored bytes and true, or false on a normal miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Put persists data under key. Readers never observe a partial write.
	Put(ctx context.Context, key string, data []byte) error
}

// Render defaults, taken from the poster template contract.
const (
	DefaultSurfacePath     = "/poster"
	DefaultTargetSelector  = ".poster-content"
	DefaultReadySelector   = "body[data-poster-ready]"
	DefaultViewportWidth   = 1200
	DefaultViewportHeight  = 1600
	DefaultAcceptLanguage  = "zh-CN,zh;q=0.9"
	DefaultLang            = "zh-CN"
	DefaultNavigateTimeout = 30 * time.Second
	DefaultReadyTimeout    = 15 * time.Second
	DefaultSettleDelay     = time.Second
)
