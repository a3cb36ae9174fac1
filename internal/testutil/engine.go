// Package testutil provides an in-memory rendering engine for tests.
//
// FakeFactory, FakeSession and FakePage implement the engine interfaces,
// count every create, open and close, and can fail or block at any step.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alnah/go-mdposter/engine"
)

// Compile-time interface checks.
var (
	_ engine.Factory = (*FakeFactory)(nil)
	_ engine.Session = (*FakeSession)(nil)
	_ engine.Page    = (*FakePage)(nil)
)

// Step names a page operation for failure injection.
type Step string

const (
	StepNewPage   Step = "new_page"
	StepConfigure Step = "configure"
	StepNavigate  Step = "navigate"
	StepWaitReady Step = "wait_ready"
	StepLocate    Step = "locate"
	StepCapture   Step = "capture"
)

// ErrInjected is the default error returned by an injected failure.
var ErrInjected = errors.New("injected failure")

// DefaultRegion is the box returned by Locate unless overridden.
var DefaultRegion = engine.Region{X: 0, Y: 0, Width: 1200, Height: 900}

// Behavior controls what pages do.
type Behavior struct {
	FailAt Step  // step that fails, empty for none
	Err    error // error for FailAt, ErrInjected when nil

	// BlockAt makes a step wait for its context to end.
	BlockAt Step

	// Region overrides DefaultRegion when non-nil.
	Region *engine.Region

	// Gate, when non-nil, makes Capture wait until it is closed.
	Gate chan struct{}
}

// FakeFactory creates FakeSessions.
type FakeFactory struct {
	mu        sync.Mutex
	createErr error
	delay     time.Duration
	behavior  Behavior
	sessions  []*FakeSession
	urls      []string

	creates     atomic.Int64
	pagesOpened atomic.Int64
	pagesClosed atomic.Int64
}

// NewFakeFactory returns a factory whose sessions render successfully.
func NewFakeFactory() *FakeFactory {
	return &FakeFactory{}
}

// SetCreateErr makes later Create calls fail with err (nil restores success).
func (f *FakeFactory) SetCreateErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createErr = err
}

// SetCreateDelay makes Create take d, or until its context ends.
func (f *FakeFactory) SetCreateDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
}

// SetBehavior sets the behavior of pages opened from now on.
func (f *FakeFactory) SetBehavior(b Behavior) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.behavior = b
}

// Create returns a new healthy session.
func (f *FakeFactory) Create(ctx context.Context) (engine.Session, error) {
	f.mu.Lock()
	err, delay := f.createErr, f.delay
	f.mu.Unlock()

	f.creates.Add(1)

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	s := &FakeSession{id: len(f.sessions) + 1, factory: f}
	s.healthy.Store(true)
	f.sessions = append(f.sessions, s)
	return s, nil
}

// Sessions returns every session created so far.
func (f *FakeFactory) Sessions() []*FakeSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeSession(nil), f.sessions...)
}

// Creates counts Create calls, failed ones included.
func (f *FakeFactory) Creates() int { return int(f.creates.Load()) }

// OpenSessions counts sessions created and not yet closed.
func (f *FakeFactory) OpenSessions() int {
	n := 0
	for _, s := range f.Sessions() {
		if !s.Closed() {
			n++
		}
	}
	return n
}

// PagesOpened counts successful NewPage calls across sessions.
func (f *FakeFactory) PagesOpened() int { return int(f.pagesOpened.Load()) }

// PagesClosed counts page closes across sessions.
func (f *FakeFactory) PagesClosed() int { return int(f.pagesClosed.Load()) }

// URLs returns every URL navigated to, in order.
func (f *FakeFactory) URLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.urls...)
}

func (f *FakeFactory) currentBehavior() Behavior {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.behavior
}

func (f *FakeFactory) recordURL(u string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, u)
}

// FakeSession is an in-memory browser.
type FakeSession struct {
	id      int
	factory *FakeFactory
	healthy atomic.Bool
	closed  atomic.Bool
	closes  atomic.Int64
}

// ID is the session's creation order, starting at 1.
func (s *FakeSession) ID() int { return s.id }

// SetHealthy changes what Healthy reports.
func (s *FakeSession) SetHealthy(ok bool) { s.healthy.Store(ok) }

// Closed reports whether Close was called.
func (s *FakeSession) Closed() bool { return s.closed.Load() }

// Closes counts Close calls.
func (s *FakeSession) Closes() int { return int(s.closes.Load()) }

func (s *FakeSession) NewPage(ctx context.Context) (engine.Page, error) {
	b := s.factory.currentBehavior()
	if err := step(ctx, b, StepNewPage); err != nil {
		return nil, err
	}
	s.factory.pagesOpened.Add(1)
	return &FakePage{session: s, behavior: b}, nil
}

func (s *FakeSession) Healthy(ctx context.Context) bool {
	return ctx.Err() == nil && s.healthy.Load() && !s.closed.Load()
}

func (s *FakeSession) Close() error {
	s.closes.Add(1)
	s.closed.Store(true)
	return nil
}

// FakePage renders an image derived from the navigated URL, so identical
// requests yield identical bytes.
type FakePage struct {
	session  *FakeSession
	behavior Behavior

	mu     sync.Mutex
	url    string
	closed bool
}

func (p *FakePage) Configure(ctx context.Context, _ engine.PageConfig) error {
	return step(ctx, p.behavior, StepConfigure)
}

func (p *FakePage) Navigate(ctx context.Context, url string) error {
	if err := step(ctx, p.behavior, StepNavigate); err != nil {
		return err
	}
	p.mu.Lock()
	p.url = url
	p.mu.Unlock()
	p.session.factory.recordURL(url)
	return nil
}

func (p *FakePage) WaitReady(ctx context.Context, _ engine.ReadyConfig) error {
	return step(ctx, p.behavior, StepWaitReady)
}

func (p *FakePage) Locate(ctx context.Context, _ string) (engine.Region, error) {
	if err := step(ctx, p.behavior, StepLocate); err != nil {
		return engine.Region{}, err
	}
	if p.behavior.Region != nil {
		return *p.behavior.Region, nil
	}
	return DefaultRegion, nil
}

func (p *FakePage) Capture(ctx context.Context, r engine.Region) ([]byte, error) {
	if p.behavior.Gate != nil {
		select {
		case <-p.behavior.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := step(ctx, p.behavior, StepCapture); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return []byte(fmt.Sprintf("PNG %gx%g %s", r.Width, r.Height, p.url)), nil
}

func (p *FakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.session.factory.pagesClosed.Add(1)
	return nil
}

// step applies injected blocking and failure for s.
func step(ctx context.Context, b Behavior, s Step) error {
	if b.BlockAt == s {
		<-ctx.Done()
		return ctx.Err()
	}
	if b.FailAt == s {
		if b.Err != nil {
			return b.Err
		}
		return fmt.Errorf("%s: %w", s, ErrInjected)
	}
	return ctx.Err()
}
