package main

import (
	"bytes"
	"io"
	"net"
	"strings"
	"sync"
	"testing"

	mdposter "github.com/alnah/go-mdposter"
	"github.com/alnah/go-mdposter/engine"
	"github.com/alnah/go-mdposter/internal/testutil"
)

// ---------------------------------------------------------------------------
// Test Infrastructure - Injectable environment
// ---------------------------------------------------------------------------

// syncBuffer is a bytes.Buffer safe for the concurrent writes of a running
// service.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// testEnv is an Environment over buffers, a fixed variable set and the fake
// engine. Listeners opened by the command are published on listeners.
type testEnv struct {
	*Environment
	stdout    *syncBuffer
	stderr    *syncBuffer
	factory   *testutil.FakeFactory
	listeners chan net.Listener
	vars      map[string]string
}

func newTestEnv(t *testing.T, vars map[string]string) *testEnv {
	t.Helper()

	if vars == nil {
		vars = map[string]string{}
	}
	te := &testEnv{
		stdout:    &syncBuffer{},
		stderr:    &syncBuffer{},
		factory:   testutil.NewFakeFactory(),
		listeners: make(chan net.Listener, 4),
		vars:      vars,
	}
	te.Environment = &Environment{
		Stdin:  strings.NewReader(""),
		Stdout: te.stdout,
		Stderr: te.stderr,
		Getenv: func(k string) string { return vars[k] },
		Environ: func() []string {
			out := make([]string, 0, len(vars))
			for k, v := range vars {
				out = append(out, k+"="+v)
			}
			return out
		},
		NewFactory: func(mdposter.BrowserConfig) engine.Factory { return te.factory },
		Listen: func(network, address string) (net.Listener, error) {
			ln, err := net.Listen(network, address)
			if err != nil {
				return nil, err
			}
			te.listeners <- ln
			return ln, nil
		},
	}
	return te
}

// failingListen is a Listen func that always fails.
func failingListen(string, string) (net.Listener, error) {
	return nil, io.ErrClosedPipe
}
