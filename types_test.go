package mdposter

// Notes:
// - Fingerprint: the golden key pins the canonical JSON form. If it changes,
//   every cached poster is orphaned, so the change must be deliberate.

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// TestRequest_Validate - Request validation
// ---------------------------------------------------------------------------

func TestRequest_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		req     Request
		wantErr error
	}{
		{name: "content only", req: Request{Content: "# Hi"}},
		{name: "all fields", req: Request{Content: "x", Header: "h", Footer: "f", Theme: "Classic"}},
		{name: "empty content", req: Request{Header: "h"}, wantErr: ErrEmptyContent},
		{name: "invalid utf-8 content", req: Request{Content: "poster \xff"}, wantErr: ErrInvalidEncoding},
		{name: "invalid utf-8 header", req: Request{Content: "x", Header: "\xfe"}, wantErr: ErrInvalidEncoding},
		{name: "invalid utf-8 footer", req: Request{Content: "x", Footer: "a\xc3"}, wantErr: ErrInvalidEncoding},
		{name: "invalid utf-8 theme", req: Request{Content: "x", Theme: "Classic\x80"}, wantErr: ErrInvalidEncoding},
		{name: "multibyte text", req: Request{Content: "# 海报", Header: "页眉", Footer: "页脚"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if err := tt.req.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRequest_WithDefaults(t *testing.T) {
	t.Parallel()

	if got := (Request{Content: "x"}).withDefaults(DefaultTheme).Theme; got != DefaultTheme {
		t.Errorf("Theme = %q, want %q", got, DefaultTheme)
	}
	if got := (Request{Content: "x", Theme: "Midnight"}).withDefaults(DefaultTheme).Theme; got != "Midnight" {
		t.Errorf("Theme = %q, explicit theme must be kept", got)
	}
}

// ---------------------------------------------------------------------------
// TestFingerprint - Cache key derivation
// ---------------------------------------------------------------------------

func TestFingerprint_Golden(t *testing.T) {
	t.Parallel()

	got := Fingerprint(Request{Content: "# Hi", Theme: DefaultTheme})
	want := "3b7f48216b02475ff671bf234a67e2de81bf30215f4e3a56a8b00dee4a8032b4"
	if got != want {
		t.Errorf("Fingerprint() = %s, want %s", got, want)
	}
}

func TestFingerprint_Deterministic(t *testing.T) {
	t.Parallel()

	req := Request{Content: "# 你好\n\n- a\n- b", Header: "head", Footer: "foot", Theme: "Classic"}
	first := Fingerprint(req)
	for i := 0; i < 10; i++ {
		if got := Fingerprint(req); got != first {
			t.Fatalf("Fingerprint() not deterministic: %s vs %s", got, first)
		}
	}
	if len(first) != KeyLength || !IsValidKey(first) {
		t.Errorf("Fingerprint() = %q, not a valid key", first)
	}
}

func TestFingerprint_SensitiveToEveryField(t *testing.T) {
	t.Parallel()

	base := Request{Content: "c", Header: "h", Footer: "f", Theme: "t"}
	variants := map[string]Request{
		"content": {Content: "c2", Header: "h", Footer: "f", Theme: "t"},
		"header":  {Content: "c", Header: "h2", Footer: "f", Theme: "t"},
		"footer":  {Content: "c", Header: "h", Footer: "f2", Theme: "t"},
		"theme":   {Content: "c", Header: "h", Footer: "f", Theme: "t2"},
	}

	baseKey := Fingerprint(base)
	for field, req := range variants {
		if Fingerprint(req) == baseKey {
			t.Errorf("changing %s did not change the fingerprint", field)
		}
	}
}

func TestGenerate_RejectsInvalidUTF8(t *testing.T) {
	t.Parallel()

	fx := newRendererFixture(t, poolConfig(0, 1))

	// Both byte strings would become "poster \uFFFD" in canonical JSON.
	for _, content := range []string{"poster \xff", "poster \xfe"} {
		_, err := fx.renderer.Generate(context.Background(), Request{Content: content})
		if !errors.Is(err, ErrInvalidEncoding) {
			t.Errorf("Generate(%q) error = %v, want ErrInvalidEncoding", content, err)
		}
	}
	if fx.cache.Gets() != 0 || fx.factory.Creates() != 0 {
		t.Error("invalid request touched the cache or the pool")
	}
}

func TestFingerprint_FieldBoundaries(t *testing.T) {
	t.Parallel()

	// Moving text between fields must not collide.
	a := Fingerprint(Request{Content: "ab", Header: ""})
	b := Fingerprint(Request{Content: "a", Header: "b"})
	if a == b {
		t.Error("field boundary collision")
	}
}

func TestIsValidKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		key  string
		want bool
	}{
		{name: "fingerprint", key: Fingerprint(Request{Content: "x"}), want: true},
		{name: "empty", key: "", want: false},
		{name: "short", key: strings.Repeat("a", KeyLength-1), want: false},
		{name: "long", key: strings.Repeat("a", KeyLength+1), want: false},
		{name: "uppercase", key: strings.Repeat("A", KeyLength), want: false},
		{name: "non hex", key: strings.Repeat("z", KeyLength), want: false},
		{name: "traversal", key: "../" + strings.Repeat("a", KeyLength-3), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := IsValidKey(tt.key); got != tt.want {
				t.Errorf("IsValidKey(%q) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}
